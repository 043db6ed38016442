package audit

import (
	"time"

	id "opsgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: legal-basis access to sensitive personal information,
	// cross-region override grants, unmasked PII exports.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. These feed into SIEM systems and alerting pipelines.
	// Examples: MFA bypass attempts, token replay heuristics, repeated
	// MFA failures, injection-shaped identifiers.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: routine allow decisions, cache behavior.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the decision pipeline to capture the outcome of an
// evaluation. Keep it transport-agnostic so stores and sinks can fan out.
// Emission is fire-and-forget: a failed append never alters the Decision
// that was already returned to the caller.
type Event struct {
	Category EventCategory
	// Name identifies the condition that produced the record; consumers
	// route on it independently of the retention category.
	Name      AuditEvent
	Timestamp time.Time
	UserID    id.UserID
	Action    string
	Region    string
	CaseID    string
	Decision  string
	Reason    string
	// AuditLevel mirrors the auditLevel obligation when one was attached
	// ("enhanced", "maximum").
	AuditLevel string
	// SecurityFlags carries anomaly markers raised by the gates
	// (e.g. "api_mfa_bypass_attempt", "token_replay_attempt").
	SecurityFlags []string
	MFAMethod     string
	// RequestID is the correlation ID from the transport, when present.
	RequestID string
}

// AuditEvent names the condition that produced an audit record.
type AuditEvent string

const (
	EventDecisionEvaluated   AuditEvent = "decision_evaluated"
	EventAccessDenied        AuditEvent = "access_denied"
	EventCrossRegionOverride AuditEvent = "cross_region_override"
	EventLegalBasisAccess    AuditEvent = "legal_basis_access"
	EventMFAChallengeIssued  AuditEvent = "mfa_challenge_issued"
	EventStepUpRequired      AuditEvent = "step_up_required"
	EventSecurityFlagRaised  AuditEvent = "security_flag_raised"
	EventBatchPIIBlocked     AuditEvent = "batch_pii_blocked"
	EventRoleCatalogReplaced AuditEvent = "role_catalog_replaced"
)
