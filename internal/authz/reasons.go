package authz

// Reason strings are part of the engine's contract: callers and tests match
// on them, so they are stable. One precise reason per distinct cause.
const (
	// Normalizer
	ReasonInvalidRegion  = "Invalid region identifier"
	ReasonInvalidAction  = "Invalid action identifier"
	ReasonInvalidCase    = "Invalid case identifier"
	ReasonInvalidRequest = "Malformed request"

	// RBAC
	ReasonNoActiveRoles     = "No active roles found"
	ReasonInvalidRoleConfig = "Invalid role configuration"
	ReasonMissingPermission = "Missing required permission"
	ReasonRBACGranted       = "RBAC permission granted"

	// Regional
	ReasonCrossRegionNeedsCase  = "Cross-region access requires valid case ID"
	ReasonInvalidCaseOverride   = "Invalid case ID for cross-region override"
	ReasonTempAccessExpired     = "Temporary access expired"
	ReasonRegionalDenied        = "Regional access denied"
	ReasonCrossRegionOverride   = "Cross-region override granted"
	ReasonRegionalAccessGranted = "Regional access granted"

	// Sensitivity
	ReasonRestrictedNeedsSpecialized = "Restricted data requires specialized access"
	ReasonRestrictedPIINeedsMFA      = "Restricted PII requires full scope with MFA"
	ReasonPIIScopeInsufficient       = "PII access denied - insufficient scope"
	ReasonConfidentialCrossRegion    = "Cross-region confidential data access denied"
	ReasonBatchPIINeedsScope         = "Batch PII operations require elevated scope"
	ReasonBatchPIINeedsMFA           = "MFA required for batch PII operations"
	ReasonLegalBasisRequired         = "Legal basis required for sensitive personal information"
	ReasonExportNeedsFullScope       = "Unmasked export requires full PII scope"

	// MFA
	ReasonMFARequired      = "MFA required for sensitive operation"
	ReasonMFAExpired       = "MFA verification expired"
	ReasonStepUpRequired   = "Fresh MFA required for elevated operation"
	ReasonInvalidMFAMethod = "Invalid or unsupported MFA method"
	ReasonMFAVerified      = "MFA verified"
)

// Obligation keys. Obligations are directives the caller must enforce; they
// accompany allow decisions and, for a few defensive cases, denies.
const (
	ObAuditLevel            = "auditLevel"
	ObMaskPII               = "maskPII"
	ObMaskedFields          = "maskedFields"
	ObPIIScope              = "piiScope"
	ObExportRestrictions    = "exportRestrictions"
	ObPreventPIILeak        = "preventPIILeak"
	ObNotifyDPO             = "notifyDPO"
	ObRequireMFA            = "requireMFA"
	ObMFAChallenge          = "mfaChallenge"
	ObMFAReason             = "mfaReason"
	ObAuditMFA              = "auditMFA"
	ObSecurityFlags         = "securityFlags"
	ObRequireSecurityReview = "requireSecurityReview"
	ObNotifySecurityTeam    = "notifySecurityTeam"
)

// Metadata keys. Metadata is informational: it never binds the caller.
const (
	MetaCacheHit     = "cacheHit"
	MetaOverridePath = "overridePath"
	MetaSecurityFlag = "securityFlag"
	MetaMFAMethod    = "mfaMethod"
	MetaAuditFields  = "auditFields"
	MetaRiskScore    = "riskScore"
)

// Audit level values, ordered by strictness.
const (
	AuditLevelStandard = "standard"
	AuditLevelEnhanced = "enhanced"
	AuditLevelMaximum  = "maximum"
)

// Security flag values raised by heuristics.
const (
	FlagTokenReplay     = "token_replay_attempt"
	FlagAPIMFABypass    = "api_mfa_bypass_attempt"
	FlagSuspiciousGeo   = "suspicious_location_change"
	FlagRepeatedMFAFail = "repeated_mfa_failures"
)

// Override paths recorded on successful escalation.
const (
	OverridePathSupport   = "support_escalation"
	OverridePathTemporary = "temporary_escalation"
)

// MFA challenge / staleness reasons.
const (
	MFAChallengeTOTPOrBackup = "totp_or_backup"
	MFAReasonSessionTimeout  = "session_timeout"
	MFAReasonStepUp          = "step_up_required"
)
