// Package authz implements the policy decision point for the operations
// platform: given an authenticated identity, a target resource, an action,
// and request context, it produces an allow/deny Decision with machine
// readable reasons and enforcement obligations.
//
// The pipeline is Normalize -> RBAC -> Regional -> Sensitivity -> MFA ->
// Assemble, with a shared temporary-access resolver feeding the regional and
// sensitivity stages. Every stage is a pure function over the request plus
// the evaluation clock; the only I/O in an evaluation is the decision cache,
// the role catalog snapshot, and the optional session oracle.
package authz

import (
	"time"

	id "opsgate/pkg/domain"
)

// Effect is the outcome of an evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// RoleAssignment binds a user to a catalog role over a region set. Only
// active assignments participate in evaluation. The role is referenced by
// name and resolved against the catalog; nothing else about it is trusted.
type RoleAssignment struct {
	Role       string
	AssignedAt time.Time
	Active     bool
	Regions    id.Regions
}

// TemporaryAccess is a time-bounded, case-justified escalation grant
// produced by an external approval workflow. Validity is purely
// time(now) < ExpiresAt && Active; grants are read lazily and never
// garbage-collected here.
type TemporaryAccess struct {
	ID                 id.GrantID
	GrantedPermissions []id.Action
	GrantedRegions     id.Regions
	PIIScopeOverride   id.PIIScope // empty means no override
	CaseID             id.CaseID
	EscalationType     string
	Justification      string
	ExpiresAt          time.Time
	Active             bool
	RequestedBy        id.UserID
	ApprovedBy         id.UserID
}

// Valid reports whether the grant is live at the given instant.
func (t TemporaryAccess) Valid(now time.Time) bool {
	return t.Active && now.Before(t.ExpiresAt)
}

// User is the identity snapshot supplied by the caller for one evaluation.
// It is an immutable value for the duration of the evaluation.
type User struct {
	ID          id.UserID
	Assignments []RoleAssignment
	PIIScope    id.PIIScope
	MFAEnabled  bool
	Grants      []TemporaryAccess

	// AdvisoryPermissions is whatever permission list the caller carried on
	// its user object. It is advisory only and MUST NOT influence the
	// decision: effective permissions are always re-derived from the role
	// catalog, which defeats token/object-tampering capability unions.
	AdvisoryPermissions []string
}

// Resource describes the target of the requested action.
type Resource struct {
	Region       id.RegionID
	DataClass    id.DataClass
	ContainsPII  bool
	DataCategory string
}

// RequestContext carries the ambient facts about the request. Defaults are
// explicit: the normalizer fills zero fields from configuration before any
// stage reads them.
type RequestContext struct {
	Channel id.Channel

	MFAPresent   bool
	MFATimestamp time.Time
	MFAMethod    id.MFAMethod
	// MFATimeout / StepUpTimeout override the configured windows when the
	// calling service negotiated shorter ones. Zero means "use configured".
	MFATimeout    time.Duration
	StepUpTimeout time.Duration

	ElevatedOperation bool
	CaseID            id.CaseID

	// LegalBasis is set when the caller holds a court order or equivalent
	// legal basis for sensitive personal information access.
	LegalBasis bool

	Export         bool
	ExportUnmasked bool
	Batch          bool

	// OriginalRegion is a transport hint of where the session was minted;
	// a mismatch feeds the token-replay heuristic.
	OriginalRegion id.RegionID

	// Passthrough fields for audit and anomaly heuristics.
	DeviceID    string
	IPAddress   string
	GeoLocation string
}

// EvaluateRequest is the single input of the engine.
type EvaluateRequest struct {
	User     User
	Resource Resource
	Action   id.Action
	Context  RequestContext
}

// Decision is the engine's output: an effect, ordered machine-readable
// reasons (always at least one), obligations the caller must enforce, and
// informational metadata. A returned Decision is final; the engine never
// mutates it afterwards.
type Decision struct {
	Effect      Effect         `json:"decision"`
	Reasons     []string       `json:"reasons"`
	Obligations map[string]any `json:"obligations"`
	Metadata    map[string]any `json:"metadata"`
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool { return d.Effect == EffectAllow }

// clone deep-copies the decision so cached values can never be mutated
// through a previously returned one.
func (d Decision) clone() Decision {
	out := Decision{
		Effect:      d.Effect,
		Reasons:     append([]string(nil), d.Reasons...),
		Obligations: make(map[string]any, len(d.Obligations)),
		Metadata:    make(map[string]any, len(d.Metadata)),
	}
	for k, v := range d.Obligations {
		out.Obligations[k] = cloneValue(v)
	}
	for k, v := range d.Metadata {
		out.Metadata[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, s := range vv {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
