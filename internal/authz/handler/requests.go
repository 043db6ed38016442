package handler

import (
	"time"

	"github.com/go-playground/validator/v10"

	"opsgate/internal/authz"
	id "opsgate/pkg/domain"
	dErrors "opsgate/pkg/domain-errors"
	strutil "opsgate/pkg/platform/strings"
)

var validate = validator.New()

// EvaluateRequest is the HTTP request body for POST /v1/authz/evaluate.
// Structural constraints live in validator tags; semantic parsing into
// typed identifiers happens in Validate, which is where untrusted text
// gets rejected.
type EvaluateRequest struct {
	User     UserPayload     `json:"user" validate:"required"`
	Resource ResourcePayload `json:"resource" validate:"required"`
	Action   string          `json:"action" validate:"required,max=64"`
	Context  ContextPayload  `json:"context"`

	parsed authz.EvaluateRequest
}

// UserPayload mirrors the caller's identity snapshot.
type UserPayload struct {
	ID          string                   `json:"id" validate:"required,max=64"`
	Roles       []RoleAssignmentPayload  `json:"roles" validate:"max=32,dive"`
	Permissions []string                 `json:"permissions" validate:"max=128"`
	PIIScope    string                   `json:"piiScope" validate:"max=16"`
	MFAEnabled  bool                     `json:"mfaEnabled"`
	Grants      []TemporaryAccessPayload `json:"temporaryAccess" validate:"max=16,dive"`
}

// RoleAssignmentPayload is one role binding on the user object. Only the
// role name, activity flag, and region set matter; the catalog owns the
// rest.
type RoleAssignmentPayload struct {
	Role       string     `json:"role" validate:"required,max=64"`
	AssignedAt time.Time  `json:"assignedAt"`
	Active     bool       `json:"active"`
	Regions    *[]string  `json:"regions" validate:"omitempty,max=64"`
}

// TemporaryAccessPayload is one escalation grant carried on the request.
type TemporaryAccessPayload struct {
	ID               string    `json:"id" validate:"required,max=64"`
	Permissions      []string  `json:"grantedPermissions" validate:"max=64"`
	Regions          *[]string `json:"grantedRegions" validate:"omitempty,max=64"`
	PIIScopeOverride string    `json:"piiScopeOverride" validate:"max=16"`
	CaseID           string    `json:"caseId" validate:"required,max=64"`
	EscalationType   string    `json:"escalationType" validate:"max=64"`
	Justification    string    `json:"justification" validate:"max=1024"`
	ExpiresAt        time.Time `json:"expiresAt" validate:"required"`
	Active           bool      `json:"active"`
	RequestedBy      string    `json:"requestedBy" validate:"max=64"`
	ApprovedBy       string    `json:"approvedBy" validate:"max=64"`
}

// ResourcePayload describes the target of the action.
type ResourcePayload struct {
	Region       string `json:"region" validate:"required,max=64"`
	DataClass    string `json:"dataClass" validate:"required,max=32"`
	ContainsPII  bool   `json:"containsPII"`
	DataCategory string `json:"dataCategory" validate:"max=64"`
}

// ContextPayload carries the ambient request facts. All fields optional;
// the engine applies fail-closed defaults.
type ContextPayload struct {
	Channel           string    `json:"channel" validate:"max=16"`
	MFAPresent        bool      `json:"mfaPresent"`
	MFATimestamp      time.Time `json:"mfaTimestamp"`
	MFAMethod         string    `json:"mfaMethod" validate:"max=32"`
	MFATimeoutSecs    int       `json:"mfaTimeoutSeconds" validate:"min=0,max=86400"`
	StepUpTimeoutSecs int       `json:"stepUpTimeoutSeconds" validate:"min=0,max=86400"`
	ElevatedOperation bool      `json:"elevatedOperation"`
	CaseID            string    `json:"caseId" validate:"max=64"`
	LegalBasis        bool      `json:"legalBasis"`
	Export            bool      `json:"export"`
	ExportUnmasked    bool      `json:"exportUnmasked"`
	Batch             bool      `json:"batch"`
	OriginalRegion    string    `json:"originalRegion" validate:"max=64"`
	DeviceID          string    `json:"deviceId" validate:"max=128"`
	IPAddress         string    `json:"ipAddress" validate:"max=64"`
	GeoLocation       string    `json:"geoLocation" validate:"max=128"`
}

// Validate checks structural constraints, then parses the payload into
// typed domain values. Implements httputil.Validatable.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := validate.Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return dErrors.New(dErrors.CodeValidation, "invalid field: "+verrs[0].Namespace())
		}
		return dErrors.New(dErrors.CodeValidation, "request validation failed")
	}

	userID, err := id.ParseUserID(r.User.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "user.id")
	}

	user := authz.User{
		ID:                  userID,
		PIIScope:            id.PIIScope(r.User.PIIScope),
		MFAEnabled:          r.User.MFAEnabled,
		AdvisoryPermissions: strutil.DedupeAndTrim(r.User.Permissions),
	}

	for _, role := range r.User.Roles {
		user.Assignments = append(user.Assignments, authz.RoleAssignment{
			Role:       role.Role,
			AssignedAt: role.AssignedAt,
			Active:     role.Active,
			Regions:    parseRegions(role.Regions),
		})
	}

	for _, g := range r.User.Grants {
		grantID, err := id.ParseGrantID(g.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "temporaryAccess.id")
		}
		grant := authz.TemporaryAccess{
			ID:               grantID,
			PIIScopeOverride: id.PIIScope(g.PIIScopeOverride),
			CaseID:           id.CaseID(g.CaseID),
			EscalationType:   g.EscalationType,
			Justification:    g.Justification,
			ExpiresAt:        g.ExpiresAt,
			Active:           g.Active,
			GrantedRegions:   parseRegions(g.Regions),
		}
		for _, p := range g.Permissions {
			grant.GrantedPermissions = append(grant.GrantedPermissions, id.Action(p))
		}
		user.Grants = append(user.Grants, grant)
	}

	r.parsed = authz.EvaluateRequest{
		User: user,
		Resource: authz.Resource{
			Region:       id.RegionID(r.Resource.Region),
			DataClass:    id.DataClass(r.Resource.DataClass),
			ContainsPII:  r.Resource.ContainsPII,
			DataCategory: r.Resource.DataCategory,
		},
		Action: id.Action(r.Action),
		Context: authz.RequestContext{
			Channel:           id.Channel(r.Context.Channel),
			MFAPresent:        r.Context.MFAPresent,
			MFATimestamp:      r.Context.MFATimestamp,
			MFAMethod:         id.MFAMethod(r.Context.MFAMethod),
			MFATimeout:        time.Duration(r.Context.MFATimeoutSecs) * time.Second,
			StepUpTimeout:     time.Duration(r.Context.StepUpTimeoutSecs) * time.Second,
			ElevatedOperation: r.Context.ElevatedOperation,
			CaseID:            id.CaseID(r.Context.CaseID),
			LegalBasis:        r.Context.LegalBasis,
			Export:            r.Context.Export,
			ExportUnmasked:    r.Context.ExportUnmasked,
			Batch:             r.Context.Batch,
			OriginalRegion:    id.RegionID(r.Context.OriginalRegion),
			DeviceID:          r.Context.DeviceID,
			IPAddress:         r.Context.IPAddress,
			GeoLocation:       r.Context.GeoLocation,
		},
	}
	return nil
}

// Parsed returns the typed evaluation request. Only valid after Validate.
func (r *EvaluateRequest) Parsed() authz.EvaluateRequest {
	return r.parsed
}

// parseRegions maps the wire convention onto the Regions sum type: an
// absent field and an empty list both denote unrestricted access. Identifier
// validity is checked by the engine's normalizer, which turns bad regions
// into denials rather than HTTP 400s.
func parseRegions(raw *[]string) id.Regions {
	if raw == nil || len(*raw) == 0 {
		return id.GlobalRegions()
	}
	ids := make([]id.RegionID, 0, len(*raw))
	for _, s := range *raw {
		ids = append(ids, id.RegionID(s))
	}
	return id.RegionSubset(ids...)
}
