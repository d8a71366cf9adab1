package authstack

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// CloudFormation resource types emitted by Synthesize.
const (
	ResourceTypeUserPool       = "AWS::Cognito::UserPool"
	ResourceTypeUserPoolClient = "AWS::Cognito::UserPoolClient"

	templateFormatVersion = "2010-09-09"
)

// Template is a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                    `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                    `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]Resource       `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]TemplateOutput `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// Resource is a template resource.
type Resource struct {
	Type                string      `json:"Type" yaml:"Type"`
	Properties          interface{} `json:"Properties" yaml:"Properties"`
	DependsOn           []string    `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string      `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string      `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

// Ref is an intrinsic reference to another resource.
type Ref struct {
	Ref string `json:"Ref" yaml:"Ref"`
}

// TemplateOutput is a template output.
type TemplateOutput struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       Ref     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Export names an exported output.
type Export struct {
	Name string `json:"Name" yaml:"Name"`
}

// UserPoolProperties are the AWS::Cognito::UserPool properties.
type UserPoolProperties struct {
	UserPoolName           string                 `json:"UserPoolName" yaml:"UserPoolName"`
	AdminCreateUserConfig  AdminCreateUserConfig  `json:"AdminCreateUserConfig" yaml:"AdminCreateUserConfig"`
	AliasAttributes        []string               `json:"AliasAttributes,omitempty" yaml:"AliasAttributes,omitempty"`
	AutoVerifiedAttributes []string               `json:"AutoVerifiedAttributes,omitempty" yaml:"AutoVerifiedAttributes,omitempty"`
	Schema                 []SchemaAttribute      `json:"Schema,omitempty" yaml:"Schema,omitempty"`
	Policies               UserPoolPolicies       `json:"Policies" yaml:"Policies"`
	AccountRecoverySetting AccountRecoverySetting `json:"AccountRecoverySetting" yaml:"AccountRecoverySetting"`
	DeletionProtection     string                 `json:"DeletionProtection,omitempty" yaml:"DeletionProtection,omitempty"`
	UserPoolTags           map[string]string      `json:"UserPoolTags,omitempty" yaml:"UserPoolTags,omitempty"`
}

// AdminCreateUserConfig controls self sign-up.
type AdminCreateUserConfig struct {
	AllowAdminCreateUserOnly bool `json:"AllowAdminCreateUserOnly" yaml:"AllowAdminCreateUserOnly"`
}

// SchemaAttribute is one entry of the user pool schema.
type SchemaAttribute struct {
	Name                       string                      `json:"Name" yaml:"Name"`
	AttributeDataType          string                      `json:"AttributeDataType,omitempty" yaml:"AttributeDataType,omitempty"`
	Mutable                    bool                        `json:"Mutable" yaml:"Mutable"`
	Required                   *bool                       `json:"Required,omitempty" yaml:"Required,omitempty"`
	StringAttributeConstraints *StringAttributeConstraints `json:"StringAttributeConstraints,omitempty" yaml:"StringAttributeConstraints,omitempty"`
	NumberAttributeConstraints *NumberAttributeConstraints `json:"NumberAttributeConstraints,omitempty" yaml:"NumberAttributeConstraints,omitempty"`
}

// StringAttributeConstraints are rendered as strings, as the engine expects.
type StringAttributeConstraints struct {
	MinLength string `json:"MinLength,omitempty" yaml:"MinLength,omitempty"`
	MaxLength string `json:"MaxLength,omitempty" yaml:"MaxLength,omitempty"`
}

// NumberAttributeConstraints are rendered as strings, as the engine expects.
type NumberAttributeConstraints struct {
	MinValue string `json:"MinValue,omitempty" yaml:"MinValue,omitempty"`
	MaxValue string `json:"MaxValue,omitempty" yaml:"MaxValue,omitempty"`
}

// UserPoolPolicies wraps the password policy.
type UserPoolPolicies struct {
	PasswordPolicy PasswordPolicyProperties `json:"PasswordPolicy" yaml:"PasswordPolicy"`
}

// PasswordPolicyProperties is the rendered password policy. Every flag is
// emitted, including false ones.
type PasswordPolicyProperties struct {
	MinimumLength                 int  `json:"MinimumLength" yaml:"MinimumLength"`
	RequireLowercase              bool `json:"RequireLowercase" yaml:"RequireLowercase"`
	RequireUppercase              bool `json:"RequireUppercase" yaml:"RequireUppercase"`
	RequireNumbers                bool `json:"RequireNumbers" yaml:"RequireNumbers"`
	RequireSymbols                bool `json:"RequireSymbols" yaml:"RequireSymbols"`
	TemporaryPasswordValidityDays int  `json:"TemporaryPasswordValidityDays,omitempty" yaml:"TemporaryPasswordValidityDays,omitempty"`
}

// AccountRecoverySetting lists the recovery mechanisms.
type AccountRecoverySetting struct {
	RecoveryMechanisms []RecoveryOption `json:"RecoveryMechanisms" yaml:"RecoveryMechanisms"`
}

// RecoveryOption is a rendered recovery mechanism.
type RecoveryOption struct {
	Name     string `json:"Name" yaml:"Name"`
	Priority int    `json:"Priority" yaml:"Priority"`
}

// UserPoolClientProperties are the AWS::Cognito::UserPoolClient properties.
type UserPoolClientProperties struct {
	UserPoolId                 Ref      `json:"UserPoolId" yaml:"UserPoolId"`
	ClientName                 string   `json:"ClientName,omitempty" yaml:"ClientName,omitempty"`
	ExplicitAuthFlows          []string `json:"ExplicitAuthFlows,omitempty" yaml:"ExplicitAuthFlows,omitempty"`
	GenerateSecret             bool     `json:"GenerateSecret" yaml:"GenerateSecret"`
	SupportedIdentityProviders []string `json:"SupportedIdentityProviders,omitempty" yaml:"SupportedIdentityProviders,omitempty"`
	ReadAttributes             []string `json:"ReadAttributes,omitempty" yaml:"ReadAttributes,omitempty"`
	WriteAttributes            []string `json:"WriteAttributes,omitempty" yaml:"WriteAttributes,omitempty"`
}

// LogicalID turns a construct ID into a template logical ID by dropping
// every non-alphanumeric character.
func LogicalID(constructID string) string {
	var b strings.Builder
	for _, r := range constructID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Synthesize renders the stack as a CloudFormation template.
func (s *Stack) Synthesize() (*Template, error) {
	if s.Directory == nil || s.Client == nil {
		return nil, ErrValidation("stack is not assembled").WithOperation("synthesize")
	}

	poolID := LogicalID(s.Directory.ConstructID)
	clientID := LogicalID(s.Client.ConstructID)
	if poolID == clientID {
		return nil, ErrConflict("logical id", poolID, "directory and client construct IDs collide").WithOperation("synthesize")
	}

	tpl := &Template{
		AWSTemplateFormatVersion: templateFormatVersion,
		Description:              s.Props.Description,
		Resources:                make(map[string]Resource),
		Outputs:                  make(map[string]TemplateOutput),
	}

	policy := s.Directory.RemovalPolicy.DeletionPolicy()
	tpl.Resources[poolID] = Resource{
		Type:                ResourceTypeUserPool,
		Properties:          userPoolProperties(s.Directory, s.Props.Tags),
		DeletionPolicy:      policy,
		UpdateReplacePolicy: policy,
	}
	tpl.Resources[clientID] = Resource{
		Type:       ResourceTypeUserPoolClient,
		Properties: userPoolClientProperties(s.Client, poolID),
	}

	for _, o := range s.Outputs {
		out := TemplateOutput{Description: o.Description, Value: Ref{Ref: LogicalID(o.Target)}}
		if s.Props.ExportPrefix != "" {
			out.Export = &Export{Name: s.Props.ExportPrefix + "-" + o.Name}
		}
		tpl.Outputs[o.Name] = out
	}

	return tpl, nil
}

// UserPoolProperties returns the directory's rendered properties with extra
// tags merged over the stack's own.
func (s *Stack) UserPoolProperties(extraTags map[string]string) UserPoolProperties {
	return userPoolProperties(s.Directory, MergeTags(s.Props.Tags, extraTags))
}

func userPoolProperties(d *DirectorySpec, tags map[string]string) UserPoolProperties {
	props := UserPoolProperties{
		UserPoolName:           d.Name,
		AdminCreateUserConfig:  AdminCreateUserConfig{AllowAdminCreateUserOnly: !d.SelfSignUpEnabled},
		AliasAttributes:        d.SignInAliases.AliasAttributes(),
		AutoVerifiedAttributes: d.AutoVerify.Attributes(),
		Schema:                 SchemaAttributes(d),
		Policies: UserPoolPolicies{PasswordPolicy: PasswordPolicyProperties{
			MinimumLength:                 d.PasswordPolicy.MinLength,
			RequireLowercase:              d.PasswordPolicy.RequireLowercase,
			RequireUppercase:              d.PasswordPolicy.RequireUppercase,
			RequireNumbers:                d.PasswordPolicy.RequireDigits,
			RequireSymbols:                d.PasswordPolicy.RequireSymbols,
			TemporaryPasswordValidityDays: d.PasswordPolicy.TempPasswordValidityDays(),
		}},
		DeletionProtection: "INACTIVE",
		UserPoolTags:       copyTags(tags),
	}
	if d.RemovalPolicy == RemovalPolicyRetain {
		props.DeletionProtection = "ACTIVE"
	}
	for _, m := range d.AccountRecovery.Mechanisms() {
		props.AccountRecoverySetting.RecoveryMechanisms = append(props.AccountRecoverySetting.RecoveryMechanisms,
			RecoveryOption{Name: m.Name, Priority: m.Priority})
	}
	return props
}

// SchemaAttributes renders the standard and custom schema entries.
func SchemaAttributes(d *DirectorySpec) []SchemaAttribute {
	var schema []SchemaAttribute
	for _, std := range d.StandardAttributes.Declared() {
		required := std.Required
		schema = append(schema, SchemaAttribute{
			Name:     std.Name,
			Mutable:  std.Mutable,
			Required: &required,
		})
	}
	for _, c := range d.SortedCustomAttributes() {
		attr := SchemaAttribute{
			Name:              c.Name,
			AttributeDataType: string(c.Type),
			Mutable:           c.Mutable,
		}
		if sc := c.StringConstraints; sc != nil {
			attr.StringAttributeConstraints = &StringAttributeConstraints{
				MinLength: optionalInt(sc.MinLen),
				MaxLength: optionalInt(sc.MaxLen),
			}
		}
		if nc := c.NumberConstraints; nc != nil {
			attr.NumberAttributeConstraints = &NumberAttributeConstraints{}
			if nc.Min != nil {
				attr.NumberAttributeConstraints.MinValue = strconv.Itoa(*nc.Min)
			}
			if nc.Max != nil {
				attr.NumberAttributeConstraints.MaxValue = strconv.Itoa(*nc.Max)
			}
		}
		schema = append(schema, attr)
	}
	return schema
}

func userPoolClientProperties(c *ClientSpec, poolLogicalID string) UserPoolClientProperties {
	return UserPoolClientProperties{
		UserPoolId:                 Ref{Ref: poolLogicalID},
		ClientName:                 c.Name,
		ExplicitAuthFlows:          c.AuthFlows.ExplicitAuthFlows(),
		GenerateSecret:             c.GenerateSecret,
		SupportedIdentityProviders: c.IdentityProviderNames(),
		ReadAttributes:             c.ReadAttributes.Names(),
		WriteAttributes:            c.WriteAttributes.Names(),
	}
}

func optionalInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// ResourceIDs returns the logical IDs in the template, sorted.
func (t *Template) ResourceIDs() []string {
	ids := make([]string, 0, len(t.Resources))
	for id := range t.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// JSON renders the template as indented JSON.
func (t *Template) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return data, nil
}

// YAML renders the template as YAML.
func (t *Template) YAML() ([]byte, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return data, nil
}

// Render renders the template in the named format ("json" or "yaml").
func (t *Template) Render(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return t.JSON()
	case "yaml", "yml":
		return t.YAML()
	default:
		return nil, ErrValidation(fmt.Sprintf("unsupported template format: %s", format))
	}
}
