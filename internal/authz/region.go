package authz

import (
	"opsgate/internal/authz/config"
	"opsgate/internal/authz/ports"
)

// regionOutcome carries the regional stage result plus whether a
// cross-region override was granted; the sensitivity stage needs that fact
// for its confidential-data rule.
type regionOutcome struct {
	stageResult
	overrideGranted bool
}

// evaluateRegion enforces geographic boundaries. Standing access comes from
// the union of allowed regions across active assignments; anything outside
// that set must ride a live, case-matched temporary access grant held by an
// escalation-eligible primary role.
func evaluateRegion(cfg config.Config, catalog ports.RoleCatalog, req EvaluateRequest, grant grantResolution) regionOutcome {
	var out regionOutcome

	standing := effectiveRegions(req.User)
	if standing.Contains(req.Resource.Region) {
		out.addReason(ReasonRegionalAccessGranted)
		return out
	}

	if cfg.CaseExemptActions[req.Action] {
		out.addReason(ReasonRegionalAccessGranted)
		return out
	}

	// Escalation path. Every requirement failing below is a deny; the
	// replay heuristic annotates but never changes the outcome.
	denyWith := func(reason string) regionOutcome {
		out.deny(reason)
		if orig := req.Context.OriginalRegion; orig != "" && orig != req.Resource.Region {
			out.meta(MetaSecurityFlag, FlagTokenReplay)
		}
		return out
	}

	// Escalation is only open to the configured eligible roles; everyone
	// else gets the generic regional deny, with no hint that a case-backed
	// path exists.
	role, ok := primaryRole(catalog, req.User)
	if !ok || !cfg.EscalationEligibleRoles[role.Name] {
		return denyWith(ReasonRegionalDenied)
	}

	if req.Context.CaseID == "" {
		return denyWith(ReasonCrossRegionNeedsCase)
	}

	if grant.grant == nil {
		if grant.expired {
			return denyWith(ReasonTempAccessExpired)
		}
		return denyWith(ReasonInvalidCaseOverride)
	}
	if !grant.coversRegion(req.Resource.Region) {
		return denyWith(ReasonRegionalDenied)
	}

	out.overrideGranted = true
	out.addReason(ReasonCrossRegionOverride)
	out.obligation(ObAuditLevel, AuditLevelEnhanced)
	out.meta(MetaOverridePath, overridePath(role, grant))
	return out
}

// overridePath names how the escalation was satisfied, for audit trails.
func overridePath(role ports.Role, grant grantResolution) string {
	if grant.grant != nil && grant.grant.EscalationType != "" {
		return grant.grant.EscalationType
	}
	if role.Name == "support" {
		return OverridePathSupport
	}
	return OverridePathTemporary
}
