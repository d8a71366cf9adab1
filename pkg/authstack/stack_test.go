package authstack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthStack_Directory(t *testing.T) {
	s := NewAuthStack("AuthStack", nil)
	d := s.Directory

	require.NotNil(t, d)
	assert.Equal(t, "StepsUserPool", d.ConstructID)
	assert.Equal(t, "steps-user-pool", d.Name)
	assert.True(t, d.SelfSignUpEnabled)
	assert.Equal(t, SignInAliases{Username: true, PreferredUsername: true}, d.SignInAliases)
	assert.Equal(t, AutoVerify{Email: true}, d.AutoVerify)
	assert.Equal(t, []string{AttrGivenName, AttrFamilyName, AttrEmail}, d.StandardAttributes.Required())

	tenant := d.CustomAttributes[CustomAttrTenantID]
	assert.Equal(t, CustomAttributeString, tenant.Type)
	assert.True(t, tenant.Mutable)
	require.NotNil(t, tenant.StringConstraints)
	assert.Equal(t, 10, tenant.StringConstraints.MinLen)
	assert.Equal(t, 15, tenant.StringConstraints.MaxLen)

	createdAt := d.CustomAttributes[CustomAttrCreatedAt]
	assert.Equal(t, CustomAttributeDateTime, createdAt.Type)
	assert.True(t, createdAt.Mutable)
	assert.Nil(t, createdAt.StringConstraints)

	assert.Equal(t, PasswordPolicy{MinLength: 11, TempPasswordValidity: 7 * 24 * time.Hour}, d.PasswordPolicy)
	assert.Equal(t, 7, d.PasswordPolicy.TempPasswordValidityDays())
	assert.Equal(t, AccountRecoveryEmailOnly, d.AccountRecovery)
	assert.Equal(t, RemovalPolicyDestroy, d.RemovalPolicy)
}

func TestNewAuthStack_Client(t *testing.T) {
	s := NewAuthStack("AuthStack", nil)
	c := s.Client

	require.NotNil(t, c)
	assert.Equal(t, "userpool-client", c.ConstructID)
	assert.Same(t, s.Directory, c.Directory)
	assert.False(t, c.GenerateSecret)
	assert.Equal(t, []AuthFlow{AuthFlowAdminUserPassword, AuthFlowCustom, AuthFlowUserSRP}, c.AuthFlows.Enabled())
	assert.Equal(t, []string{"COGNITO"}, c.IdentityProviderNames())
	assert.Equal(t, "userpool-client", c.ClientName())

	assert.Len(t, c.ReadAttributes.Names(), 21)
	assert.True(t, c.ReadAttributes.Has(AttrEmailVerified))
	assert.True(t, c.ReadAttributes.Has("custom:tenantId"))

	assert.Len(t, c.WriteAttributes.Names(), 19)
	assert.False(t, c.WriteAttributes.Has(AttrEmailVerified))
	assert.False(t, c.WriteAttributes.Has(AttrPhoneNumberVerified))
	assert.True(t, c.WriteAttributes.Has("custom:createdAt"))
}

func TestNewAuthStack_Outputs(t *testing.T) {
	s := NewAuthStack("AuthStack", nil)

	assert.Equal(t, []string{"stepsUserPoolId", "stepsUserPoolClientId"}, s.OutputNames())

	out, ok := s.Output(OutputUserPoolID)
	require.True(t, ok)
	assert.Equal(t, DirectoryConstructID, out.Target)

	out, ok = s.Output(OutputUserPoolClientID)
	require.True(t, ok)
	assert.Equal(t, ClientConstructID, out.Target)

	_, ok = s.Output("missing")
	assert.False(t, ok)
}

func TestNewAuthStack_DeclarationOrder(t *testing.T) {
	s := NewAuthStack("AuthStack", nil)

	assert.Equal(t, []Declaration{
		{Kind: DeclarationDirectory, ID: DirectoryConstructID},
		{Kind: DeclarationAttributeSet, ID: "ClientReadAttributes"},
		{Kind: DeclarationAttributeSet, ID: "ClientWriteAttributes"},
		{Kind: DeclarationClient, ID: ClientConstructID},
		{Kind: DeclarationOutput, ID: OutputUserPoolID},
		{Kind: DeclarationOutput, ID: OutputUserPoolClientID},
	}, s.Declarations())

	// Callers get a copy.
	decls := s.Declarations()
	decls[0].ID = "changed"
	assert.Equal(t, DirectoryConstructID, s.Declarations()[0].ID)
}

func TestNewAuthStack_PropsPassThrough(t *testing.T) {
	props := &StackProps{
		Env:  Environment{Account: "123456789012", Region: "us-east-1"},
		Tags: map[string]string{"team": "identity"},
	}
	s := NewAuthStack("AuthStack", props)

	assert.Equal(t, *props, s.Props)
	assert.NoError(t, s.Validate())

	// Identical inputs produce identical stacks.
	assert.Equal(t, s, NewAuthStack("AuthStack", props))
}

func TestStack_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Stack)
		errMsg string
	}{
		{
			name:   "default stack",
			mutate: func(s *Stack) {},
		},
		{
			name:   "empty id",
			mutate: func(s *Stack) { s.ID = "" },
			errMsg: "stack id is required",
		},
		{
			name:   "bad account",
			mutate: func(s *Stack) { s.Props.Env.Account = "1234" },
			errMsg: "invalid AWS account ID",
		},
		{
			name:   "bad region",
			mutate: func(s *Stack) { s.Props.Env.Region = "US_EAST" },
			errMsg: "invalid AWS region",
		},
		{
			name:   "email not required",
			mutate: func(s *Stack) { s.Directory.StandardAttributes.Email.Required = false },
			errMsg: "standard attribute email must be required",
		},
		{
			name: "inverted tenant bounds",
			mutate: func(s *Stack) {
				s.Directory.CustomAttributes[CustomAttrTenantID] = StringAttribute(true, 20, 10)
			},
			errMsg: "min_len 20 exceeds max_len 10",
		},
		{
			name: "string constraints on datetime",
			mutate: func(s *Stack) {
				attr := DateTimeAttribute(true)
				attr.StringConstraints = &StringConstraints{MaxLen: 5}
				s.Directory.CustomAttributes[CustomAttrCreatedAt] = attr
			},
			errMsg: "string constraints on DateTime attribute",
		},
		{
			name:   "unknown recovery",
			mutate: func(s *Stack) { s.Directory.AccountRecovery = "CARRIER_PIGEON" },
			errMsg: "unknown account recovery setting",
		},
		{
			name:   "unknown removal policy",
			mutate: func(s *Stack) { s.Directory.RemovalPolicy = "snapshot" },
			errMsg: "unknown removal policy",
		},
		{
			name: "writable verification flag",
			mutate: func(s *Stack) {
				std := AllStandardAttributes()
				s.Client.WriteAttributes = NewAttributeSet(std, CustomAttrTenantID)
			},
			errMsg: "write attributes must not include email_verified",
		},
		{
			name: "undeclared custom attribute",
			mutate: func(s *Stack) {
				s.Client.ReadAttributes = NewAttributeSet(AllStandardAttributes(), "plan")
			},
			errMsg: "custom attribute plan is not declared",
		},
		{
			name: "client bound to foreign directory",
			mutate: func(s *Stack) {
				other := NewAuthStack("Other", nil)
				s.Client.Directory = other.Directory
			},
			errMsg: "not part of this stack",
		},
		{
			name: "duplicate output",
			mutate: func(s *Stack) {
				s.Outputs = append(s.Outputs, Output{Name: OutputUserPoolID, Target: DirectoryConstructID})
			},
			errMsg: "duplicate output name",
		},
		{
			name: "output to undeclared construct",
			mutate: func(s *Stack) {
				s.Outputs[1].Target = "nowhere"
			},
			errMsg: "undeclared construct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAuthStack("AuthStack", nil)
			tt.mutate(s)

			err := s.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMergeTags(t *testing.T) {
	assert.Nil(t, MergeTags(nil, nil))
	assert.Equal(t, map[string]string{"a": "1"}, MergeTags(map[string]string{"a": "1"}, nil))
	assert.Equal(t,
		map[string]string{"a": "2", "b": "3"},
		MergeTags(map[string]string{"a": "1"}, map[string]string{"a": "2", "b": "3"}),
	)
}

func TestValidateAWSRegion(t *testing.T) {
	for _, r := range []string{"us-east-1", "eu-west-2", "ap-southeast-1", "us-gov-west-1"} {
		assert.NoError(t, ValidateAWSRegion(r), r)
	}
	for _, r := range []string{"", "useast1", "us-east", "US-EAST-1"} {
		assert.Error(t, ValidateAWSRegion(r), r)
	}
}
