package authstack

import (
	"fmt"
	"regexp"
	"time"
)

// Stable names. Output names are consumed by other stacks and deploy
// tooling and must not change.
const (
	DirectoryConstructID = "StepsUserPool"
	DirectoryName        = "steps-user-pool"
	ClientConstructID    = "userpool-client"

	OutputUserPoolID       = "stepsUserPoolId"
	OutputUserPoolClientID = "stepsUserPoolClientId"

	CustomAttrTenantID  = "tenantId"
	CustomAttrCreatedAt = "createdAt"

	readAttributesID  = "ClientReadAttributes"
	writeAttributesID = "ClientWriteAttributes"
)

// Environment is the deployment target. Both fields are optional and are
// passed through to the provisioner untouched.
type Environment struct {
	Account string `json:"account,omitempty" yaml:"account,omitempty" mapstructure:"account"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
}

// StackProps are the hosting properties of a stack.
type StackProps struct {
	Env Environment `json:"env" yaml:"env"`

	// Description is rendered into the template header.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Tags are applied to every taggable resource.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// ExportPrefix, when set, exports each output as "<prefix>-<output name>".
	ExportPrefix string `json:"export_prefix,omitempty" yaml:"export_prefix,omitempty"`
}

// MergeTags returns base overlaid with extra. The result is nil when both are empty.
func MergeTags(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Output is a named value exported from the stack.
type Output struct {
	// Name is the stable output name.
	Name string `json:"name" yaml:"name"`

	// Target is the construct ID whose engine-assigned identifier is exported.
	Target string `json:"target" yaml:"target"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DeclarationKind classifies an entry in the stack's declaration order.
type DeclarationKind string

const (
	DeclarationDirectory    DeclarationKind = "directory"
	DeclarationAttributeSet DeclarationKind = "attribute_set"
	DeclarationClient       DeclarationKind = "client"
	DeclarationOutput       DeclarationKind = "output"
)

// Declaration is one construct in the order it was declared.
type Declaration struct {
	Kind DeclarationKind `json:"kind"`
	ID   string          `json:"id"`
}

// Stack is the fully assembled declaration: one directory, the client's
// attribute sets, one client bound to the directory, and two outputs.
type Stack struct {
	ID    string
	Props StackProps

	Directory       *DirectorySpec
	ReadAttributes  AttributeSet
	WriteAttributes AttributeSet
	Client          *ClientSpec
	Outputs         []Output

	declarations []Declaration
}

// NewAuthStack assembles the identity stack. Construction order is fixed:
// directory, read set, write set, client, outputs. Nothing is validated
// here; see Validate.
func NewAuthStack(id string, props *StackProps) *Stack {
	s := &Stack{ID: id}
	if props != nil {
		s.Props = *props
	}

	s.Directory = newDirectory()
	s.declare(DeclarationDirectory, s.Directory.ConstructID)

	s.ReadAttributes = NewAttributeSet(AllStandardAttributes(), CustomAttrTenantID, CustomAttrCreatedAt)
	s.declare(DeclarationAttributeSet, readAttributesID)

	s.WriteAttributes = WritableAttributes(s.ReadAttributes)
	s.declare(DeclarationAttributeSet, writeAttributesID)

	s.Client = newClient(s.Directory, s.ReadAttributes, s.WriteAttributes)
	s.declare(DeclarationClient, s.Client.ConstructID)

	s.Outputs = []Output{
		{Name: OutputUserPoolID, Target: s.Directory.ConstructID},
		{Name: OutputUserPoolClientID, Target: s.Client.ConstructID},
	}
	for _, o := range s.Outputs {
		s.declare(DeclarationOutput, o.Name)
	}

	return s
}

func newDirectory() *DirectorySpec {
	return &DirectorySpec{
		ConstructID:       DirectoryConstructID,
		Name:              DirectoryName,
		SelfSignUpEnabled: true,
		SignInAliases: SignInAliases{
			Username:          true, // holds the email
			PreferredUsername: true,
		},
		AutoVerify: AutoVerify{Email: true},
		StandardAttributes: StandardAttributeSchema{
			GivenName:  &StandardAttribute{Required: true, Mutable: true},
			FamilyName: &StandardAttribute{Required: true, Mutable: true},
			Email:      &StandardAttribute{Required: true, Mutable: true},
		},
		CustomAttributes: map[string]CustomAttribute{
			CustomAttrTenantID:  StringAttribute(true, 10, 15),
			CustomAttrCreatedAt: DateTimeAttribute(true),
		},
		PasswordPolicy: PasswordPolicy{
			MinLength:            11,
			RequireLowercase:     false,
			RequireUppercase:     false,
			RequireDigits:        false,
			RequireSymbols:       false,
			TempPasswordValidity: 7 * 24 * time.Hour,
		},
		AccountRecovery: AccountRecoveryEmailOnly,
		RemovalPolicy:   RemovalPolicyDestroy,
	}
}

func newClient(dir *DirectorySpec, read, write AttributeSet) *ClientSpec {
	return &ClientSpec{
		ConstructID: ClientConstructID,
		Directory:   dir,
		AuthFlows: AuthFlows{
			AdminUserPassword: true,
			Custom:            true,
			UserSRP:           true,
		},
		SupportedIdentityProviders: []IdentityProvider{IdentityProviderCognito},
		ReadAttributes:             read,
		WriteAttributes:            write,
	}
}

func (s *Stack) declare(kind DeclarationKind, id string) {
	s.declarations = append(s.declarations, Declaration{Kind: kind, ID: id})
}

// Declarations returns the constructs in declaration order.
func (s *Stack) Declarations() []Declaration {
	return append([]Declaration(nil), s.declarations...)
}

// Output returns the output with the given name.
func (s *Stack) Output(name string) (Output, bool) {
	for _, o := range s.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// OutputNames returns the output names in declaration order.
func (s *Stack) OutputNames() []string {
	names := make([]string, 0, len(s.Outputs))
	for _, o := range s.Outputs {
		names = append(names, o.Name)
	}
	return names
}

var (
	awsAccountIDRegex = regexp.MustCompile(`^\d{12}$`)
	awsRegionRegex    = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`)
)

// ValidateAWSAccountID validates an AWS account ID format.
func ValidateAWSAccountID(id string) error {
	if !awsAccountIDRegex.MatchString(id) {
		return fmt.Errorf("invalid AWS account ID format: %s", id)
	}
	return nil
}

// ValidateAWSRegion validates an AWS region name format.
func ValidateAWSRegion(region string) error {
	if !awsRegionRegex.MatchString(region) {
		return fmt.Errorf("invalid AWS region format: %s", region)
	}
	return nil
}

// Validate re-checks the constraints the declaration encodes. It runs
// before the stack is handed to a provisioner, never during construction.
func (s *Stack) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("stack id is required")
	}
	if s.Props.Env.Account != "" {
		if err := ValidateAWSAccountID(s.Props.Env.Account); err != nil {
			return err
		}
	}
	if s.Props.Env.Region != "" {
		if err := ValidateAWSRegion(s.Props.Env.Region); err != nil {
			return err
		}
	}
	if err := validateDirectory(s.Directory); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	if err := validateClient(s.Client, s.Directory); err != nil {
		return fmt.Errorf("client: %w", err)
	}

	declared := map[string]bool{s.Directory.ConstructID: true, s.Client.ConstructID: true}
	seen := make(map[string]bool)
	for _, o := range s.Outputs {
		if o.Name == "" {
			return fmt.Errorf("output name is required")
		}
		if seen[o.Name] {
			return fmt.Errorf("duplicate output name: %s", o.Name)
		}
		seen[o.Name] = true
		if !declared[o.Target] {
			return fmt.Errorf("output %s references undeclared construct %q", o.Name, o.Target)
		}
	}
	return nil
}

func validateDirectory(d *DirectorySpec) error {
	if d == nil {
		return fmt.Errorf("directory spec is required")
	}
	if d.ConstructID == "" {
		return fmt.Errorf("construct_id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}

	required := make(map[string]bool)
	for _, name := range d.StandardAttributes.Required() {
		required[name] = true
	}
	for _, name := range []string{AttrGivenName, AttrFamilyName, AttrEmail} {
		if !required[name] {
			return fmt.Errorf("standard attribute %s must be required", name)
		}
	}

	for _, attr := range d.SortedCustomAttributes() {
		if c := attr.StringConstraints; c != nil {
			if attr.Type != CustomAttributeString {
				return fmt.Errorf("custom attribute %s: string constraints on %s attribute", attr.Name, attr.Type)
			}
			if c.MinLen < 0 || c.MaxLen < 0 {
				return fmt.Errorf("custom attribute %s: length bounds must not be negative", attr.Name)
			}
			if c.MaxLen != 0 && c.MinLen > c.MaxLen {
				return fmt.Errorf("custom attribute %s: min_len %d exceeds max_len %d", attr.Name, c.MinLen, c.MaxLen)
			}
		}
	}

	if d.AccountRecovery.Mechanisms() == nil {
		return fmt.Errorf("unknown account recovery setting: %q", d.AccountRecovery)
	}
	switch d.RemovalPolicy {
	case RemovalPolicyDestroy, RemovalPolicyRetain:
	default:
		return fmt.Errorf("unknown removal policy: %q", d.RemovalPolicy)
	}
	return nil
}

func validateClient(c *ClientSpec, dir *DirectorySpec) error {
	if c == nil {
		return fmt.Errorf("client spec is required")
	}
	if c.Directory == nil {
		return fmt.Errorf("client must reference a directory")
	}
	if c.Directory != dir {
		return fmt.Errorf("client references directory %q which is not part of this stack", c.Directory.ConstructID)
	}
	for _, name := range VerificationAttributes() {
		if c.WriteAttributes.Has(name) {
			return fmt.Errorf("write attributes must not include %s", name)
		}
	}

	known := make(map[string]bool)
	for _, name := range dir.CustomAttributeNames() {
		known[name] = true
	}
	for _, set := range []AttributeSet{c.ReadAttributes, c.WriteAttributes} {
		for _, name := range set.Custom() {
			if !known[name] {
				return fmt.Errorf("custom attribute %s is not declared on the directory", name)
			}
		}
	}
	return nil
}
