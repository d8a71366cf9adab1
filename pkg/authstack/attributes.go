package authstack

import (
	"sort"
)

// Cognito wire names for the standard attributes.
const (
	AttrGivenName           = "given_name"
	AttrFamilyName          = "family_name"
	AttrEmail               = "email"
	AttrEmailVerified       = "email_verified"
	AttrAddress             = "address"
	AttrBirthdate           = "birthdate"
	AttrGender              = "gender"
	AttrLocale              = "locale"
	AttrMiddleName          = "middle_name"
	AttrFullname            = "name"
	AttrNickname            = "nickname"
	AttrPhoneNumber         = "phone_number"
	AttrPhoneNumberVerified = "phone_number_verified"
	AttrProfilePicture      = "picture"
	AttrPreferredUsername   = "preferred_username"
	AttrProfilePage         = "profile"
	AttrTimezone            = "zoneinfo"
	AttrLastUpdateTime      = "updated_at"
	AttrWebsite             = "website"
)

// CustomAttributePrefix is prepended to custom attribute names on the wire.
const CustomAttributePrefix = "custom:"

// StandardAttributes flags which standard attributes are visible to a client.
type StandardAttributes struct {
	GivenName           bool `json:"given_name" yaml:"given_name"`
	FamilyName          bool `json:"family_name" yaml:"family_name"`
	Email               bool `json:"email" yaml:"email"`
	EmailVerified       bool `json:"email_verified" yaml:"email_verified"`
	Address             bool `json:"address" yaml:"address"`
	Birthdate           bool `json:"birthdate" yaml:"birthdate"`
	Gender              bool `json:"gender" yaml:"gender"`
	Locale              bool `json:"locale" yaml:"locale"`
	MiddleName          bool `json:"middle_name" yaml:"middle_name"`
	Fullname            bool `json:"fullname" yaml:"fullname"`
	Nickname            bool `json:"nickname" yaml:"nickname"`
	PhoneNumber         bool `json:"phone_number" yaml:"phone_number"`
	PhoneNumberVerified bool `json:"phone_number_verified" yaml:"phone_number_verified"`
	ProfilePicture      bool `json:"profile_picture" yaml:"profile_picture"`
	PreferredUsername   bool `json:"preferred_username" yaml:"preferred_username"`
	ProfilePage         bool `json:"profile_page" yaml:"profile_page"`
	Timezone            bool `json:"timezone" yaml:"timezone"`
	LastUpdateTime      bool `json:"last_update_time" yaml:"last_update_time"`
	Website             bool `json:"website" yaml:"website"`
}

// AllStandardAttributes returns a set with every standard attribute visible.
func AllStandardAttributes() StandardAttributes {
	return StandardAttributes{
		GivenName:           true,
		FamilyName:          true,
		Email:               true,
		EmailVerified:       true,
		Address:             true,
		Birthdate:           true,
		Gender:              true,
		Locale:              true,
		MiddleName:          true,
		Fullname:            true,
		Nickname:            true,
		PhoneNumber:         true,
		PhoneNumberVerified: true,
		ProfilePicture:      true,
		PreferredUsername:   true,
		ProfilePage:         true,
		Timezone:            true,
		LastUpdateTime:      true,
		Website:             true,
	}
}

type attributeFlag struct {
	name string
	set  bool
}

func (a StandardAttributes) flags() []attributeFlag {
	return []attributeFlag{
		{AttrGivenName, a.GivenName},
		{AttrFamilyName, a.FamilyName},
		{AttrEmail, a.Email},
		{AttrEmailVerified, a.EmailVerified},
		{AttrAddress, a.Address},
		{AttrBirthdate, a.Birthdate},
		{AttrGender, a.Gender},
		{AttrLocale, a.Locale},
		{AttrMiddleName, a.MiddleName},
		{AttrFullname, a.Fullname},
		{AttrNickname, a.Nickname},
		{AttrPhoneNumber, a.PhoneNumber},
		{AttrPhoneNumberVerified, a.PhoneNumberVerified},
		{AttrProfilePicture, a.ProfilePicture},
		{AttrPreferredUsername, a.PreferredUsername},
		{AttrProfilePage, a.ProfilePage},
		{AttrTimezone, a.Timezone},
		{AttrLastUpdateTime, a.LastUpdateTime},
		{AttrWebsite, a.Website},
	}
}

// Names returns the wire names of the flagged attributes, in declaration order.
func (a StandardAttributes) Names() []string {
	var names []string
	for _, f := range a.flags() {
		if f.set {
			names = append(names, f.name)
		}
	}
	return names
}

// AttributeSet is a named collection of standard and custom attributes
// exposed to a client for read or write. It is a value type; the custom
// slice is copied on construction and on every accessor.
type AttributeSet struct {
	standard StandardAttributes
	custom   []string
}

// NewAttributeSet builds an attribute set from standard flags and custom attribute names.
func NewAttributeSet(standard StandardAttributes, custom ...string) AttributeSet {
	return AttributeSet{
		standard: standard,
		custom:   append([]string(nil), custom...),
	}
}

// Standard returns the standard attribute flags.
func (s AttributeSet) Standard() StandardAttributes {
	return s.standard
}

// Custom returns the custom attribute names without the "custom:" prefix.
func (s AttributeSet) Custom() []string {
	return append([]string(nil), s.custom...)
}

// Names returns the sorted wire names of every attribute in the set.
func (s AttributeSet) Names() []string {
	names := s.standard.Names()
	for _, c := range s.custom {
		names = append(names, CustomAttributePrefix+c)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the wire name is part of the set.
func (s AttributeSet) Has(name string) bool {
	for _, n := range s.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// WritableAttributes derives the write set from a read set. Verification
// flags are server-managed, so they are always dropped; everything else
// is carried over unchanged.
func WritableAttributes(read AttributeSet) AttributeSet {
	std := read.standard
	std.EmailVerified = false
	std.PhoneNumberVerified = false
	return NewAttributeSet(std, read.custom...)
}

// VerificationAttributes lists the server-managed verification flags.
func VerificationAttributes() []string {
	return []string{AttrEmailVerified, AttrPhoneNumberVerified}
}
