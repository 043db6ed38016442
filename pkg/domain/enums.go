package domain

import dErrors "opsgate/pkg/domain-errors"

// PIIScope is the tiered data-visibility level granted to a user.
// Invariant: the value must be one of the supported scopes.
type PIIScope string

const (
	PIIScopeNone   PIIScope = "none"
	PIIScopeMasked PIIScope = "masked"
	PIIScopeFull   PIIScope = "full"
)

var validPIIScopes = map[PIIScope]bool{
	PIIScopeNone:   true,
	PIIScopeMasked: true,
	PIIScopeFull:   true,
}

// ParsePIIScope constructs a PIIScope from external input. An empty string
// defaults to none: scope must be granted, never assumed.
func ParsePIIScope(s string) (PIIScope, error) {
	if s == "" {
		return PIIScopeNone, nil
	}
	p := PIIScope(s)
	if !validPIIScopes[p] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid pii scope")
	}
	return p, nil
}

func (p PIIScope) IsValid() bool  { return validPIIScopes[p] }
func (p PIIScope) String() string { return string(p) }

// AtLeast reports whether p grants at least the visibility of other.
func (p PIIScope) AtLeast(other PIIScope) bool {
	return piiScopeRank[p] >= piiScopeRank[other]
}

var piiScopeRank = map[PIIScope]int{
	PIIScopeNone:   0,
	PIIScopeMasked: 1,
	PIIScopeFull:   2,
}

// DataClass is the sensitivity classification of a resource.
type DataClass string

const (
	DataClassInternal     DataClass = "internal"
	DataClassConfidential DataClass = "confidential"
	DataClassRestricted   DataClass = "restricted"
)

var validDataClasses = map[DataClass]bool{
	DataClassInternal:     true,
	DataClassConfidential: true,
	DataClassRestricted:   true,
}

// ParseDataClass constructs a DataClass from external input. There is no
// default: an unclassified resource is a provisioning bug, not internal data.
func ParseDataClass(s string) (DataClass, error) {
	c := DataClass(s)
	if !validDataClasses[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data class")
	}
	return c, nil
}

func (c DataClass) IsValid() bool  { return validDataClasses[c] }
func (c DataClass) String() string { return string(c) }

// Channel identifies the surface a request arrived on.
type Channel string

const (
	ChannelUI    Channel = "ui"
	ChannelAPI   Channel = "api"
	ChannelBatch Channel = "batch"
)

var validChannels = map[Channel]bool{
	ChannelUI:    true,
	ChannelAPI:   true,
	ChannelBatch: true,
}

// ParseChannel constructs a Channel from external input; empty defaults to api.
func ParseChannel(s string) (Channel, error) {
	if s == "" {
		return ChannelAPI, nil
	}
	c := Channel(s)
	if !validChannels[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
	}
	return c, nil
}

func (c Channel) IsValid() bool  { return validChannels[c] }
func (c Channel) String() string { return string(c) }

// MFAMethod is a second-factor proof mechanism accepted by the MFA gate.
type MFAMethod string

const (
	MFAMethodTOTP        MFAMethod = "totp"
	MFAMethodBackupCode  MFAMethod = "backup_code"
	MFAMethodHardwareKey MFAMethod = "hardware_key"
)

var validMFAMethods = map[MFAMethod]bool{
	MFAMethodTOTP:        true,
	MFAMethodBackupCode:  true,
	MFAMethodHardwareKey: true,
}

func (m MFAMethod) IsValid() bool  { return validMFAMethods[m] }
func (m MFAMethod) String() string { return string(m) }

// DataCategorySensitivePersonal marks resources that require an explicit
// legal basis before any access, regardless of scope.
const DataCategorySensitivePersonal = "sensitive_personal_information"
