package authstack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainProvider implements Provider but not Provisioner.
type plainProvider struct{ name ProviderName }

func (p *plainProvider) Name() ProviderName            { return p.name }
func (p *plainProvider) Capabilities() []Capability    { return nil }
func (p *plainProvider) HasCapability(Capability) bool { return false }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	fake := newFakeProvisioner(ProviderCognito)

	require.NoError(t, r.Register(fake))
	err := r.Register(fake)
	assert.True(t, IsCategory(err, ErrCategoryConflict))

	got, err := r.Get(ProviderCognito)
	require.NoError(t, err)
	assert.Same(t, fake, got)

	_, err = r.Get(ProviderCloudFormation)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	calls := 0
	var gotConfig map[string]interface{}
	require.NoError(t, r.RegisterFactory(ProviderCognito, ProviderFactoryFunc(
		func(ctx context.Context, config map[string]interface{}) (Provider, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			gotConfig = config
			return newFakeProvisioner(ProviderCognito), nil
		})))

	err := r.RegisterFactory(ProviderCognito, ProviderFactoryFunc(nil))
	assert.True(t, IsCategory(err, ErrCategoryConflict))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetOrCreate(context.Background(), ProviderCognito, map[string]interface{}{"region": "us-east-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, "us-east-1", gotConfig["region"])

	_, err = r.GetOrCreate(context.Background(), "terraform", nil)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))
	assert.Equal(t, "Available engines: cognito", Hint(err))
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory(ProviderCognito, ProviderFactoryFunc(
		func(ctx context.Context, config map[string]interface{}) (Provider, error) {
			return nil, errors.New("no credentials")
		})))

	_, err := r.GetOrCreate(context.Background(), ProviderCognito, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestRegistry_GetProvisioner(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&plainProvider{name: "plain"}))
	require.NoError(t, r.Register(newFakeProvisioner(ProviderCloudFormation)))

	_, err := r.GetProvisioner(context.Background(), "plain", nil)
	assert.True(t, IsCategory(err, ErrCategoryUnsupported))

	pv, err := r.GetProvisioner(context.Background(), ProviderCloudFormation, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderCloudFormation, pv.Name())
}

func TestRegistry_ListAndDescribe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeProvisioner(ProviderCognito)))
	require.NoError(t, r.RegisterFactory(ProviderCloudFormation, ProviderFactoryFunc(nil)))

	assert.Equal(t, []ProviderName{ProviderCloudFormation, ProviderCognito}, r.List())

	infos := r.Describe()
	require.Len(t, infos, 2)
	assert.Equal(t, ProviderInfo{Name: ProviderCloudFormation}, infos[0])
	assert.Equal(t, ProviderCognito, infos[1].Name)
	assert.True(t, infos[1].Instantiated)
	assert.True(t, infos[1].IsProvisioner)
	assert.True(t, HasCapability(infos[1].Capabilities, CapabilityDeploy))
}
