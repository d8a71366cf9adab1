package cognito

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

func TestSchemaRoundTrip(t *testing.T) {
	stack := authstack.NewAuthStack("AuthStack", nil)
	schema := authstack.SchemaAttributes(stack.Directory)

	sdk := SchemaToSDK(schema)
	require.Len(t, sdk, len(schema))
	assert.Equal(t, schema, SchemaFromSDK(sdk))

	for _, a := range sdk {
		if aws.ToString(a.Name) == authstack.CustomAttrTenantID {
			assert.Equal(t, types.AttributeDataTypeString, a.AttributeDataType)
			require.NotNil(t, a.StringAttributeConstraints)
			assert.Equal(t, "10", aws.ToString(a.StringAttributeConstraints.MinLength))
			assert.Equal(t, "15", aws.ToString(a.StringAttributeConstraints.MaxLength))
		}
	}
}

func TestPoliciesToSDK(t *testing.T) {
	props := authstack.NewAuthStack("AuthStack", nil).UserPoolProperties(nil)

	pp := policiesToSDK(props.Policies).PasswordPolicy
	assert.Equal(t, int32(11), aws.ToInt32(pp.MinimumLength))
	assert.Equal(t, int32(7), pp.TemporaryPasswordValidityDays)
	assert.False(t, pp.RequireSymbols)

	rec := recoveryToSDK(props.AccountRecoverySetting)
	require.NotNil(t, rec)
	require.Len(t, rec.RecoveryMechanisms, 1)
	assert.Equal(t, types.RecoveryOptionNameTypeVerifiedEmail, rec.RecoveryMechanisms[0].Name)
	assert.Equal(t, int32(1), aws.ToInt32(rec.RecoveryMechanisms[0].Priority))

	assert.Nil(t, recoveryToSDK(authstack.AccountRecoverySetting{}))
}

func TestUserPoolFromSDK(t *testing.T) {
	assert.Equal(t, &UserPool{}, userPoolFromSDK(nil))

	pool := userPoolFromSDK(&types.UserPoolType{
		Id:                     aws.String("us-east-1_abc"),
		Arn:                    aws.String("arn:aws:cognito-idp:us-east-1:123456789012:userpool/us-east-1_abc"),
		Name:                   aws.String("steps-user-pool"),
		AliasAttributes:        []types.AliasAttributeType{types.AliasAttributeTypePreferredUsername},
		AutoVerifiedAttributes: []types.VerifiedAttributeType{types.VerifiedAttributeTypeEmail},
		DeletionProtection:     types.DeletionProtectionTypeActive,
		UserPoolTags:           map[string]string{"managed-by": "steps-auth"},
		Policies: &types.UserPoolPolicyType{PasswordPolicy: &types.PasswordPolicyType{
			MinimumLength:                 aws.Int32(11),
			TemporaryPasswordValidityDays: 7,
		}},
		AccountRecoverySetting: &types.AccountRecoverySettingType{
			RecoveryMechanisms: []types.RecoveryOptionType{{Name: types.RecoveryOptionNameTypeVerifiedEmail, Priority: aws.Int32(1)}},
		},
	})

	assert.Equal(t, "us-east-1_abc", pool.ID)
	assert.Equal(t, "steps-user-pool", pool.Properties.UserPoolName)
	assert.Equal(t, []string{"preferred_username"}, pool.Properties.AliasAttributes)
	assert.Equal(t, []string{"email"}, pool.Properties.AutoVerifiedAttributes)
	assert.Equal(t, "ACTIVE", pool.Properties.DeletionProtection)
	assert.Equal(t, 11, pool.Properties.Policies.PasswordPolicy.MinimumLength)
	assert.Equal(t, 7, pool.Properties.Policies.PasswordPolicy.TemporaryPasswordValidityDays)
	assert.Equal(t, []authstack.RecoveryOption{{Name: "verified_email", Priority: 1}},
		pool.Properties.AccountRecoverySetting.RecoveryMechanisms)
}

func TestClientFromSDK(t *testing.T) {
	assert.Equal(t, &UserPoolClient{}, clientFromSDK(nil))

	c := clientFromSDK(&types.UserPoolClientType{
		ClientId:          aws.String("client123"),
		UserPoolId:        aws.String("us-east-1_abc"),
		ClientName:        aws.String("userpool-client"),
		ExplicitAuthFlows: []types.ExplicitAuthFlowsType{types.ExplicitAuthFlowsTypeAllowUserSrpAuth},
		ReadAttributes:    []string{"email"},
	})
	assert.Equal(t, "client123", c.ID)
	assert.Equal(t, "us-east-1_abc", c.UserPoolID)
	assert.Equal(t, []string{"ALLOW_USER_SRP_AUTH"}, c.Config.ExplicitAuthFlows)
	assert.False(t, c.Config.GenerateSecret)

	c = clientFromSDK(&types.UserPoolClientType{ClientSecret: aws.String("s3cret")})
	assert.True(t, c.Config.GenerateSecret)
}

func TestEnumConversion(t *testing.T) {
	assert.Nil(t, toEnums[types.ExplicitAuthFlowsType](nil))
	assert.Nil(t, fromEnums[types.ExplicitAuthFlowsType](nil))

	flows := toEnums[types.ExplicitAuthFlowsType]([]string{"ALLOW_CUSTOM_AUTH"})
	assert.Equal(t, []types.ExplicitAuthFlowsType{types.ExplicitAuthFlowsTypeAllowCustomAuth}, flows)
	assert.Equal(t, []string{"ALLOW_CUSTOM_AUTH"}, fromEnums(flows))
}
