package authstack

// AuthFlow is an explicit authentication flow name on the wire.
type AuthFlow string

const (
	AuthFlowAdminUserPassword AuthFlow = "ALLOW_ADMIN_USER_PASSWORD_AUTH"
	AuthFlowCustom            AuthFlow = "ALLOW_CUSTOM_AUTH"
	AuthFlowUserSRP           AuthFlow = "ALLOW_USER_SRP_AUTH"
	AuthFlowUserPassword      AuthFlow = "ALLOW_USER_PASSWORD_AUTH"
	AuthFlowRefreshToken      AuthFlow = "ALLOW_REFRESH_TOKEN_AUTH"
)

// AuthFlows selects the authentication flows a client may initiate.
type AuthFlows struct {
	AdminUserPassword bool `json:"admin_user_password" yaml:"admin_user_password"`
	Custom            bool `json:"custom" yaml:"custom"`
	UserSRP           bool `json:"user_srp" yaml:"user_srp"`
	UserPassword      bool `json:"user_password" yaml:"user_password"`
}

// Enabled returns the declared flows.
func (f AuthFlows) Enabled() []AuthFlow {
	var out []AuthFlow
	if f.AdminUserPassword {
		out = append(out, AuthFlowAdminUserPassword)
	}
	if f.Custom {
		out = append(out, AuthFlowCustom)
	}
	if f.UserSRP {
		out = append(out, AuthFlowUserSRP)
	}
	if f.UserPassword {
		out = append(out, AuthFlowUserPassword)
	}
	return out
}

// ExplicitAuthFlows returns the flows as sent to the engine. Refresh is
// appended whenever any flow is enabled so issued refresh tokens stay usable.
func (f AuthFlows) ExplicitAuthFlows() []string {
	enabled := f.Enabled()
	if len(enabled) == 0 {
		return nil
	}
	out := make([]string, 0, len(enabled)+1)
	for _, flow := range enabled {
		out = append(out, string(flow))
	}
	return append(out, string(AuthFlowRefreshToken))
}

// IdentityProvider is a source of identities for a client.
type IdentityProvider string

// IdentityProviderCognito is the directory itself.
const IdentityProviderCognito IdentityProvider = "COGNITO"

// ClientSpec declares an application client bound to one directory.
type ClientSpec struct {
	// ConstructID names the client inside the stack.
	ConstructID string `json:"construct_id" yaml:"construct_id"`

	// Name is the client name. Empty means the construct ID is used when the
	// engine requires one.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Directory is the directory this client authenticates against.
	Directory *DirectorySpec `json:"-" yaml:"-"`

	AuthFlows AuthFlows `json:"auth_flows" yaml:"auth_flows"`

	// GenerateSecret requests a client secret. Public clients leave it false.
	GenerateSecret bool `json:"generate_secret" yaml:"generate_secret"`

	SupportedIdentityProviders []IdentityProvider `json:"supported_identity_providers" yaml:"supported_identity_providers"`

	ReadAttributes  AttributeSet `json:"-" yaml:"-"`
	WriteAttributes AttributeSet `json:"-" yaml:"-"`
}

// ClientName returns the name to register the client under.
func (c *ClientSpec) ClientName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ConstructID
}

// IdentityProviderNames returns the supported identity providers as strings.
func (c *ClientSpec) IdentityProviderNames() []string {
	out := make([]string, 0, len(c.SupportedIdentityProviders))
	for _, p := range c.SupportedIdentityProviders {
		out = append(out, string(p))
	}
	return out
}
