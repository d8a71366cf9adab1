package cognito

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

// listPageSize is the largest page ListUserPools accepts.
const listPageSize = 60

type sdkClient struct {
	api *cip.Client
}

// NewSDKClient returns a Client backed by the AWS SDK.
func NewSDKClient(cfg aws.Config) Client {
	return &sdkClient{api: cip.NewFromConfig(cfg)}
}

func newSTSClient(cfg aws.Config) *sts.Client {
	return sts.NewFromConfig(cfg)
}

func (c *sdkClient) ListUserPools(ctx context.Context) ([]Summary, error) {
	var out []Summary
	pages := cip.NewListUserPoolsPaginator(c.api, &cip.ListUserPoolsInput{MaxResults: aws.Int32(listPageSize)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.UserPools {
			out = append(out, Summary{ID: aws.ToString(p.Id), Name: aws.ToString(p.Name)})
		}
	}
	return out, nil
}

func (c *sdkClient) DescribeUserPool(ctx context.Context, poolID string) (*UserPool, error) {
	out, err := c.api.DescribeUserPool(ctx, &cip.DescribeUserPoolInput{UserPoolId: aws.String(poolID)})
	if err != nil {
		return nil, err
	}
	if out.UserPool == nil {
		return nil, authstack.ErrNotFound("user pool", poolID)
	}
	return userPoolFromSDK(out.UserPool), nil
}

func (c *sdkClient) CreateUserPool(ctx context.Context, props authstack.UserPoolProperties) (*UserPool, error) {
	out, err := c.api.CreateUserPool(ctx, &cip.CreateUserPoolInput{
		PoolName:               aws.String(props.UserPoolName),
		AdminCreateUserConfig:  adminCreateUserConfigToSDK(props.AdminCreateUserConfig),
		AliasAttributes:        toEnums[types.AliasAttributeType](props.AliasAttributes),
		AutoVerifiedAttributes: toEnums[types.VerifiedAttributeType](props.AutoVerifiedAttributes),
		Schema:                 SchemaToSDK(props.Schema),
		Policies:               policiesToSDK(props.Policies),
		AccountRecoverySetting: recoveryToSDK(props.AccountRecoverySetting),
		DeletionProtection:     types.DeletionProtectionType(props.DeletionProtection),
		UserPoolTags:           props.UserPoolTags,
	})
	if err != nil {
		return nil, err
	}
	return userPoolFromSDK(out.UserPool), nil
}

// UpdateUserPool applies the mutable settings. Schema and sign-in aliases
// are fixed at creation and are not sent.
func (c *sdkClient) UpdateUserPool(ctx context.Context, poolID string, props authstack.UserPoolProperties) error {
	_, err := c.api.UpdateUserPool(ctx, &cip.UpdateUserPoolInput{
		UserPoolId:             aws.String(poolID),
		AdminCreateUserConfig:  adminCreateUserConfigToSDK(props.AdminCreateUserConfig),
		AutoVerifiedAttributes: toEnums[types.VerifiedAttributeType](props.AutoVerifiedAttributes),
		Policies:               policiesToSDK(props.Policies),
		AccountRecoverySetting: recoveryToSDK(props.AccountRecoverySetting),
		DeletionProtection:     types.DeletionProtectionType(props.DeletionProtection),
		UserPoolTags:           props.UserPoolTags,
	})
	return err
}

func (c *sdkClient) DeleteUserPool(ctx context.Context, poolID string) error {
	_, err := c.api.DeleteUserPool(ctx, &cip.DeleteUserPoolInput{UserPoolId: aws.String(poolID)})
	return err
}

func (c *sdkClient) ListUserPoolClients(ctx context.Context, poolID string) ([]Summary, error) {
	var out []Summary
	pages := cip.NewListUserPoolClientsPaginator(c.api, &cip.ListUserPoolClientsInput{UserPoolId: aws.String(poolID)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cl := range page.UserPoolClients {
			out = append(out, Summary{ID: aws.ToString(cl.ClientId), Name: aws.ToString(cl.ClientName)})
		}
	}
	return out, nil
}

func (c *sdkClient) DescribeUserPoolClient(ctx context.Context, poolID, clientID string) (*UserPoolClient, error) {
	out, err := c.api.DescribeUserPoolClient(ctx, &cip.DescribeUserPoolClientInput{
		UserPoolId: aws.String(poolID),
		ClientId:   aws.String(clientID),
	})
	if err != nil {
		return nil, err
	}
	if out.UserPoolClient == nil {
		return nil, authstack.ErrNotFound("user pool client", clientID)
	}
	return clientFromSDK(out.UserPoolClient), nil
}

func (c *sdkClient) CreateUserPoolClient(ctx context.Context, poolID string, cfg ClientConfig) (*UserPoolClient, error) {
	out, err := c.api.CreateUserPoolClient(ctx, &cip.CreateUserPoolClientInput{
		UserPoolId:                 aws.String(poolID),
		ClientName:                 aws.String(cfg.Name),
		ExplicitAuthFlows:          toEnums[types.ExplicitAuthFlowsType](cfg.ExplicitAuthFlows),
		GenerateSecret:             cfg.GenerateSecret,
		SupportedIdentityProviders: cfg.SupportedIdentityProviders,
		ReadAttributes:             cfg.ReadAttributes,
		WriteAttributes:            cfg.WriteAttributes,
	})
	if err != nil {
		return nil, err
	}
	return clientFromSDK(out.UserPoolClient), nil
}

func (c *sdkClient) UpdateUserPoolClient(ctx context.Context, poolID, clientID string, cfg ClientConfig) error {
	_, err := c.api.UpdateUserPoolClient(ctx, &cip.UpdateUserPoolClientInput{
		UserPoolId:                 aws.String(poolID),
		ClientId:                   aws.String(clientID),
		ClientName:                 aws.String(cfg.Name),
		ExplicitAuthFlows:          toEnums[types.ExplicitAuthFlowsType](cfg.ExplicitAuthFlows),
		SupportedIdentityProviders: cfg.SupportedIdentityProviders,
		ReadAttributes:             cfg.ReadAttributes,
		WriteAttributes:            cfg.WriteAttributes,
	})
	return err
}

func (c *sdkClient) DeleteUserPoolClient(ctx context.Context, poolID, clientID string) error {
	_, err := c.api.DeleteUserPoolClient(ctx, &cip.DeleteUserPoolClientInput{
		UserPoolId: aws.String(poolID),
		ClientId:   aws.String(clientID),
	})
	return err
}

// Conversions

func toEnums[T ~string](in []string) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = T(s)
	}
	return out
}

func fromEnums[T ~string](in []T) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func adminCreateUserConfigToSDK(c authstack.AdminCreateUserConfig) *types.AdminCreateUserConfigType {
	return &types.AdminCreateUserConfigType{AllowAdminCreateUserOnly: c.AllowAdminCreateUserOnly}
}

func policiesToSDK(p authstack.UserPoolPolicies) *types.UserPoolPolicyType {
	pp := p.PasswordPolicy
	return &types.UserPoolPolicyType{
		PasswordPolicy: &types.PasswordPolicyType{
			MinimumLength:                 aws.Int32(int32(pp.MinimumLength)),
			RequireLowercase:              pp.RequireLowercase,
			RequireUppercase:              pp.RequireUppercase,
			RequireNumbers:                pp.RequireNumbers,
			RequireSymbols:                pp.RequireSymbols,
			TemporaryPasswordValidityDays: int32(pp.TemporaryPasswordValidityDays),
		},
	}
}

func recoveryToSDK(s authstack.AccountRecoverySetting) *types.AccountRecoverySettingType {
	if len(s.RecoveryMechanisms) == 0 {
		return nil
	}
	out := &types.AccountRecoverySettingType{}
	for _, m := range s.RecoveryMechanisms {
		out.RecoveryMechanisms = append(out.RecoveryMechanisms, types.RecoveryOptionType{
			Name:     types.RecoveryOptionNameType(m.Name),
			Priority: aws.Int32(int32(m.Priority)),
		})
	}
	return out
}

// SchemaToSDK converts rendered schema attributes to the SDK form.
func SchemaToSDK(schema []authstack.SchemaAttribute) []types.SchemaAttributeType {
	out := make([]types.SchemaAttributeType, 0, len(schema))
	for _, a := range schema {
		attr := types.SchemaAttributeType{
			Name:              aws.String(a.Name),
			AttributeDataType: types.AttributeDataType(a.AttributeDataType),
			Mutable:           aws.Bool(a.Mutable),
			Required:          a.Required,
		}
		if c := a.StringAttributeConstraints; c != nil {
			attr.StringAttributeConstraints = &types.StringAttributeConstraintsType{
				MinLength: optionalString(c.MinLength),
				MaxLength: optionalString(c.MaxLength),
			}
		}
		if c := a.NumberAttributeConstraints; c != nil {
			attr.NumberAttributeConstraints = &types.NumberAttributeConstraintsType{
				MinValue: optionalString(c.MinValue),
				MaxValue: optionalString(c.MaxValue),
			}
		}
		out = append(out, attr)
	}
	return out
}

// SchemaFromSDK converts live schema attributes to the rendered form.
func SchemaFromSDK(schema []types.SchemaAttributeType) []authstack.SchemaAttribute {
	out := make([]authstack.SchemaAttribute, 0, len(schema))
	for _, a := range schema {
		attr := authstack.SchemaAttribute{
			Name:              aws.ToString(a.Name),
			AttributeDataType: string(a.AttributeDataType),
			Mutable:           aws.ToBool(a.Mutable),
			Required:          a.Required,
		}
		if c := a.StringAttributeConstraints; c != nil {
			attr.StringAttributeConstraints = &authstack.StringAttributeConstraints{
				MinLength: aws.ToString(c.MinLength),
				MaxLength: aws.ToString(c.MaxLength),
			}
		}
		if c := a.NumberAttributeConstraints; c != nil {
			attr.NumberAttributeConstraints = &authstack.NumberAttributeConstraints{
				MinValue: aws.ToString(c.MinValue),
				MaxValue: aws.ToString(c.MaxValue),
			}
		}
		out = append(out, attr)
	}
	return out
}

func userPoolFromSDK(p *types.UserPoolType) *UserPool {
	if p == nil {
		return &UserPool{}
	}

	props := authstack.UserPoolProperties{
		UserPoolName:           aws.ToString(p.Name),
		AliasAttributes:        fromEnums(p.AliasAttributes),
		AutoVerifiedAttributes: fromEnums(p.AutoVerifiedAttributes),
		Schema:                 SchemaFromSDK(p.SchemaAttributes),
		DeletionProtection:     string(p.DeletionProtection),
		UserPoolTags:           p.UserPoolTags,
	}
	if p.AdminCreateUserConfig != nil {
		props.AdminCreateUserConfig.AllowAdminCreateUserOnly = p.AdminCreateUserConfig.AllowAdminCreateUserOnly
	}
	if p.Policies != nil && p.Policies.PasswordPolicy != nil {
		pp := p.Policies.PasswordPolicy
		props.Policies.PasswordPolicy = authstack.PasswordPolicyProperties{
			MinimumLength:                 int(aws.ToInt32(pp.MinimumLength)),
			RequireLowercase:              pp.RequireLowercase,
			RequireUppercase:              pp.RequireUppercase,
			RequireNumbers:                pp.RequireNumbers,
			RequireSymbols:                pp.RequireSymbols,
			TemporaryPasswordValidityDays: int(pp.TemporaryPasswordValidityDays),
		}
	}
	if p.AccountRecoverySetting != nil {
		for _, m := range p.AccountRecoverySetting.RecoveryMechanisms {
			props.AccountRecoverySetting.RecoveryMechanisms = append(props.AccountRecoverySetting.RecoveryMechanisms,
				authstack.RecoveryOption{Name: string(m.Name), Priority: int(aws.ToInt32(m.Priority))})
		}
	}

	return &UserPool{
		ID:         aws.ToString(p.Id),
		ARN:        aws.ToString(p.Arn),
		Properties: props,
	}
}

func clientFromSDK(c *types.UserPoolClientType) *UserPoolClient {
	if c == nil {
		return &UserPoolClient{}
	}
	return &UserPoolClient{
		ID:         aws.ToString(c.ClientId),
		UserPoolID: aws.ToString(c.UserPoolId),
		Config: ClientConfig{
			Name:                       aws.ToString(c.ClientName),
			ExplicitAuthFlows:          fromEnums(c.ExplicitAuthFlows),
			GenerateSecret:             aws.ToString(c.ClientSecret) != "",
			SupportedIdentityProviders: c.SupportedIdentityProviders,
			ReadAttributes:             c.ReadAttributes,
			WriteAttributes:            c.WriteAttributes,
		},
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
