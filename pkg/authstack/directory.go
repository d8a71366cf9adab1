package authstack

import (
	"sort"
	"time"
)

// SignInAliases controls which identifiers a user can sign in with.
type SignInAliases struct {
	// Username enables sign-in with the username (the app stores the email there).
	Username bool `json:"username" yaml:"username"`

	// Email enables sign-in with a verified email attribute.
	Email bool `json:"email" yaml:"email"`

	// Phone enables sign-in with a verified phone number attribute.
	Phone bool `json:"phone" yaml:"phone"`

	// PreferredUsername enables sign-in with the preferred_username attribute.
	PreferredUsername bool `json:"preferred_username" yaml:"preferred_username"`
}

// AliasAttributes returns the Cognito alias attribute names.
// Username is the pool's native identifier and never an alias.
func (a SignInAliases) AliasAttributes() []string {
	var out []string
	if a.Email {
		out = append(out, AttrEmail)
	}
	if a.Phone {
		out = append(out, AttrPhoneNumber)
	}
	if a.PreferredUsername {
		out = append(out, AttrPreferredUsername)
	}
	return out
}

// AutoVerify lists the channels verified automatically on sign-up.
type AutoVerify struct {
	Email bool `json:"email" yaml:"email"`
	Phone bool `json:"phone" yaml:"phone"`
}

// Attributes returns the auto-verified attribute names.
func (a AutoVerify) Attributes() []string {
	var out []string
	if a.Email {
		out = append(out, AttrEmail)
	}
	if a.Phone {
		out = append(out, AttrPhoneNumber)
	}
	return out
}

// StandardAttribute configures a standard attribute in the directory schema.
type StandardAttribute struct {
	Required bool `json:"required" yaml:"required"`
	Mutable  bool `json:"mutable" yaml:"mutable"`
}

// StandardAttributeSchema declares standard attributes in the directory
// schema. A nil field leaves the attribute at the engine's default
// (optional, mutable).
type StandardAttributeSchema struct {
	GivenName         *StandardAttribute `json:"given_name,omitempty" yaml:"given_name,omitempty"`
	FamilyName        *StandardAttribute `json:"family_name,omitempty" yaml:"family_name,omitempty"`
	Email             *StandardAttribute `json:"email,omitempty" yaml:"email,omitempty"`
	Address           *StandardAttribute `json:"address,omitempty" yaml:"address,omitempty"`
	Birthdate         *StandardAttribute `json:"birthdate,omitempty" yaml:"birthdate,omitempty"`
	Gender            *StandardAttribute `json:"gender,omitempty" yaml:"gender,omitempty"`
	Locale            *StandardAttribute `json:"locale,omitempty" yaml:"locale,omitempty"`
	MiddleName        *StandardAttribute `json:"middle_name,omitempty" yaml:"middle_name,omitempty"`
	Fullname          *StandardAttribute `json:"fullname,omitempty" yaml:"fullname,omitempty"`
	Nickname          *StandardAttribute `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	PhoneNumber       *StandardAttribute `json:"phone_number,omitempty" yaml:"phone_number,omitempty"`
	ProfilePicture    *StandardAttribute `json:"profile_picture,omitempty" yaml:"profile_picture,omitempty"`
	PreferredUsername *StandardAttribute `json:"preferred_username,omitempty" yaml:"preferred_username,omitempty"`
	ProfilePage       *StandardAttribute `json:"profile_page,omitempty" yaml:"profile_page,omitempty"`
	Timezone          *StandardAttribute `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	LastUpdateTime    *StandardAttribute `json:"last_update_time,omitempty" yaml:"last_update_time,omitempty"`
	Website           *StandardAttribute `json:"website,omitempty" yaml:"website,omitempty"`
}

// DeclaredStandardAttribute pairs a wire name with its schema settings.
type DeclaredStandardAttribute struct {
	Name string
	StandardAttribute
}

// Declared returns the declared standard attributes in a stable order.
func (s StandardAttributeSchema) Declared() []DeclaredStandardAttribute {
	entries := []struct {
		name string
		attr *StandardAttribute
	}{
		{AttrGivenName, s.GivenName},
		{AttrFamilyName, s.FamilyName},
		{AttrEmail, s.Email},
		{AttrAddress, s.Address},
		{AttrBirthdate, s.Birthdate},
		{AttrGender, s.Gender},
		{AttrLocale, s.Locale},
		{AttrMiddleName, s.MiddleName},
		{AttrFullname, s.Fullname},
		{AttrNickname, s.Nickname},
		{AttrPhoneNumber, s.PhoneNumber},
		{AttrProfilePicture, s.ProfilePicture},
		{AttrPreferredUsername, s.PreferredUsername},
		{AttrProfilePage, s.ProfilePage},
		{AttrTimezone, s.Timezone},
		{AttrLastUpdateTime, s.LastUpdateTime},
		{AttrWebsite, s.Website},
	}

	var out []DeclaredStandardAttribute
	for _, e := range entries {
		if e.attr != nil {
			out = append(out, DeclaredStandardAttribute{Name: e.name, StandardAttribute: *e.attr})
		}
	}
	return out
}

// Required returns the wire names of the required standard attributes.
func (s StandardAttributeSchema) Required() []string {
	var out []string
	for _, d := range s.Declared() {
		if d.Required {
			out = append(out, d.Name)
		}
	}
	return out
}

// CustomAttributeType is the data type of a custom attribute.
type CustomAttributeType string

const (
	CustomAttributeString   CustomAttributeType = "String"
	CustomAttributeNumber   CustomAttributeType = "Number"
	CustomAttributeDateTime CustomAttributeType = "DateTime"
	CustomAttributeBoolean  CustomAttributeType = "Boolean"
)

// StringConstraints bounds the length of a string attribute.
// Zero means unbounded on that side.
type StringConstraints struct {
	MinLen int `json:"min_len,omitempty" yaml:"min_len,omitempty"`
	MaxLen int `json:"max_len,omitempty" yaml:"max_len,omitempty"`
}

// NumberConstraints bounds the value of a number attribute.
type NumberConstraints struct {
	Min *int `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int `json:"max,omitempty" yaml:"max,omitempty"`
}

// CustomAttribute is a tenant-defined attribute in the directory schema.
// Constraints are declared, not enforced here; the engine applies them.
type CustomAttribute struct {
	Type    CustomAttributeType `json:"type" yaml:"type"`
	Mutable bool                `json:"mutable" yaml:"mutable"`

	StringConstraints *StringConstraints `json:"string_constraints,omitempty" yaml:"string_constraints,omitempty"`
	NumberConstraints *NumberConstraints `json:"number_constraints,omitempty" yaml:"number_constraints,omitempty"`
}

// StringAttribute declares a string custom attribute with length bounds.
func StringAttribute(mutable bool, minLen, maxLen int) CustomAttribute {
	attr := CustomAttribute{Type: CustomAttributeString, Mutable: mutable}
	if minLen != 0 || maxLen != 0 {
		attr.StringConstraints = &StringConstraints{MinLen: minLen, MaxLen: maxLen}
	}
	return attr
}

// DateTimeAttribute declares a datetime custom attribute.
func DateTimeAttribute(mutable bool) CustomAttribute {
	return CustomAttribute{Type: CustomAttributeDateTime, Mutable: mutable}
}

// NumberAttribute declares a number custom attribute with optional bounds.
func NumberAttribute(mutable bool, min, max *int) CustomAttribute {
	attr := CustomAttribute{Type: CustomAttributeNumber, Mutable: mutable}
	if min != nil || max != nil {
		attr.NumberConstraints = &NumberConstraints{Min: min, Max: max}
	}
	return attr
}

// BooleanAttribute declares a boolean custom attribute.
func BooleanAttribute(mutable bool) CustomAttribute {
	return CustomAttribute{Type: CustomAttributeBoolean, Mutable: mutable}
}

// PasswordPolicy is the directory's password policy.
type PasswordPolicy struct {
	MinLength        int  `json:"min_length" yaml:"min_length"`
	RequireLowercase bool `json:"require_lowercase" yaml:"require_lowercase"`
	RequireUppercase bool `json:"require_uppercase" yaml:"require_uppercase"`
	RequireDigits    bool `json:"require_digits" yaml:"require_digits"`
	RequireSymbols   bool `json:"require_symbols" yaml:"require_symbols"`

	// TempPasswordValidity is how long an admin-issued temporary password stays valid.
	// Cognito stores it in whole days.
	TempPasswordValidity time.Duration `json:"temp_password_validity" yaml:"temp_password_validity"`
}

// TempPasswordValidityDays returns the temporary password validity in whole days.
func (p PasswordPolicy) TempPasswordValidityDays() int {
	return int(p.TempPasswordValidity / (24 * time.Hour))
}

// AccountRecovery selects how users recover a lost password.
type AccountRecovery string

const (
	AccountRecoveryEmailOnly               AccountRecovery = "EMAIL_ONLY"
	AccountRecoveryPhoneOnlyWithoutMFA     AccountRecovery = "PHONE_ONLY_WITHOUT_MFA"
	AccountRecoveryEmailAndPhoneWithoutMFA AccountRecovery = "EMAIL_AND_PHONE_WITHOUT_MFA"
	AccountRecoveryPhoneWithoutMFAAndEmail AccountRecovery = "PHONE_WITHOUT_MFA_AND_EMAIL"
	AccountRecoveryNone                    AccountRecovery = "NONE"
)

// Recovery mechanism names on the wire.
const (
	RecoveryVerifiedEmail = "verified_email"
	RecoveryVerifiedPhone = "verified_phone_number"
	RecoveryAdminOnly     = "admin_only"
)

// RecoveryMechanism is one prioritized recovery channel.
type RecoveryMechanism struct {
	Name     string `json:"name" yaml:"name"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Mechanisms expands the recovery setting into prioritized channels.
func (r AccountRecovery) Mechanisms() []RecoveryMechanism {
	switch r {
	case AccountRecoveryEmailOnly:
		return []RecoveryMechanism{{Name: RecoveryVerifiedEmail, Priority: 1}}
	case AccountRecoveryPhoneOnlyWithoutMFA:
		return []RecoveryMechanism{{Name: RecoveryVerifiedPhone, Priority: 1}}
	case AccountRecoveryEmailAndPhoneWithoutMFA:
		return []RecoveryMechanism{
			{Name: RecoveryVerifiedEmail, Priority: 1},
			{Name: RecoveryVerifiedPhone, Priority: 2},
		}
	case AccountRecoveryPhoneWithoutMFAAndEmail:
		return []RecoveryMechanism{
			{Name: RecoveryVerifiedPhone, Priority: 1},
			{Name: RecoveryVerifiedEmail, Priority: 2},
		}
	case AccountRecoveryNone:
		return []RecoveryMechanism{{Name: RecoveryAdminOnly, Priority: 1}}
	default:
		return nil
	}
}

// RemovalPolicy decides what happens to a resource when the stack is torn down.
type RemovalPolicy string

const (
	// RemovalPolicyDestroy deletes the resource and all of its records.
	RemovalPolicyDestroy RemovalPolicy = "destroy"
	// RemovalPolicyRetain orphans the resource on teardown.
	RemovalPolicyRetain RemovalPolicy = "retain"
)

// DeletionPolicy returns the CloudFormation DeletionPolicy value.
func (p RemovalPolicy) DeletionPolicy() string {
	if p == RemovalPolicyRetain {
		return "Retain"
	}
	return "Delete"
}

// DirectorySpec declares a managed user directory (a Cognito user pool).
type DirectorySpec struct {
	// ConstructID names the directory inside the stack.
	ConstructID string `json:"construct_id" yaml:"construct_id"`

	// Name is the user pool name.
	Name string `json:"name" yaml:"name"`

	// SelfSignUpEnabled lets end users register themselves.
	SelfSignUpEnabled bool `json:"self_sign_up_enabled" yaml:"self_sign_up_enabled"`

	SignInAliases SignInAliases `json:"sign_in_aliases" yaml:"sign_in_aliases"`

	AutoVerify AutoVerify `json:"auto_verify" yaml:"auto_verify"`

	StandardAttributes StandardAttributeSchema `json:"standard_attributes" yaml:"standard_attributes"`

	// CustomAttributes are keyed by name without the "custom:" prefix.
	CustomAttributes map[string]CustomAttribute `json:"custom_attributes,omitempty" yaml:"custom_attributes,omitempty"`

	PasswordPolicy PasswordPolicy `json:"password_policy" yaml:"password_policy"`

	AccountRecovery AccountRecovery `json:"account_recovery" yaml:"account_recovery"`

	RemovalPolicy RemovalPolicy `json:"removal_policy" yaml:"removal_policy"`
}

// NamedCustomAttribute pairs a custom attribute with its name.
type NamedCustomAttribute struct {
	Name string
	CustomAttribute
}

// SortedCustomAttributes returns the custom attributes ordered by name.
func (d *DirectorySpec) SortedCustomAttributes() []NamedCustomAttribute {
	names := make([]string, 0, len(d.CustomAttributes))
	for name := range d.CustomAttributes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]NamedCustomAttribute, 0, len(names))
	for _, name := range names {
		out = append(out, NamedCustomAttribute{Name: name, CustomAttribute: d.CustomAttributes[name]})
	}
	return out
}

// CustomAttributeNames returns the custom attribute names ordered by name.
func (d *DirectorySpec) CustomAttributeNames() []string {
	var names []string
	for _, a := range d.SortedCustomAttributes() {
		names = append(names, a.Name)
	}
	return names
}
