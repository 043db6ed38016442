package authz

import (
	id "opsgate/pkg/domain"

	"opsgate/internal/authz/config"
)

// normalize validates the structural shape of a request and fills explicit
// defaults before any policy stage runs. It is the first line of defense:
// injection-shaped identifiers (wildcards, traversal tokens, null bytes,
// metacharacters) are rejected here, before a single role is resolved.
//
// The engine re-validates even though the HTTP adapter already parsed typed
// identifiers, because the engine is also a library surface and Go type
// conversions do not run the parsers.
func normalize(cfg config.Config, req EvaluateRequest) (EvaluateRequest, string) {
	if req.User.ID.IsZero() {
		return req, ReasonInvalidRequest
	}

	if _, err := id.ParseAction(req.Action.String()); err != nil {
		return req, ReasonInvalidAction
	}

	if _, err := id.ParseRegionID(req.Resource.Region.String()); err != nil {
		return req, ReasonInvalidRegion
	}
	if !req.Resource.DataClass.IsValid() {
		return req, ReasonInvalidRequest
	}

	if req.Context.CaseID != "" {
		if _, err := id.ParseCaseID(req.Context.CaseID.String()); err != nil {
			return req, ReasonInvalidCase
		}
	}
	if req.Context.OriginalRegion != "" {
		if _, err := id.ParseRegionID(req.Context.OriginalRegion.String()); err != nil {
			return req, ReasonInvalidRegion
		}
	}

	// Region sets inside the identity snapshot went through external
	// provisioning, but they cross the trust boundary with the request and
	// get the same treatment.
	for _, a := range req.User.Assignments {
		for _, region := range a.Regions.List() {
			if _, err := id.ParseRegionID(region.String()); err != nil {
				return req, ReasonInvalidRegion
			}
		}
	}
	for _, g := range req.User.Grants {
		for _, region := range g.GrantedRegions.List() {
			if _, err := id.ParseRegionID(region.String()); err != nil {
				return req, ReasonInvalidRegion
			}
		}
		if g.CaseID != "" {
			if _, err := id.ParseCaseID(g.CaseID.String()); err != nil {
				return req, ReasonInvalidCase
			}
		}
		if g.PIIScopeOverride != "" && !g.PIIScopeOverride.IsValid() {
			return req, ReasonInvalidRequest
		}
	}

	// Explicit defaults. A zero scope means none was granted; a zero channel
	// is an API caller; zero timeout windows fall back to configuration. A
	// context may tighten a window but never widen it past the ceiling.
	if req.User.PIIScope == "" {
		req.User.PIIScope = id.PIIScopeNone
	}
	if !req.User.PIIScope.IsValid() {
		return req, ReasonInvalidRequest
	}
	if req.Context.Channel == "" {
		req.Context.Channel = id.ChannelAPI
	}
	if !req.Context.Channel.IsValid() {
		return req, ReasonInvalidRequest
	}
	if req.Context.MFATimeout <= 0 || req.Context.MFATimeout > cfg.MFATimeout {
		req.Context.MFATimeout = cfg.MFATimeout
	}
	if req.Context.StepUpTimeout <= 0 || req.Context.StepUpTimeout > cfg.StepUpTimeout {
		req.Context.StepUpTimeout = cfg.StepUpTimeout
	}
	if req.Context.Channel == id.ChannelBatch {
		req.Context.Batch = true
	}

	return req, ""
}
