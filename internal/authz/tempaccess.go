package authz

import (
	"time"

	id "opsgate/pkg/domain"
)

// grantResolution is the outcome of matching the request's case against the
// user's temporary access grants. Expired or inactive grants are treated as
// absent for policy purposes, but the distinction is kept so the regional
// stage can report the precise cause.
type grantResolution struct {
	// grant is the single live, case-matched grant, or nil.
	grant *TemporaryAccess
	// expired is true when a grant matched the case but is no longer live.
	// Only meaningful when grant is nil.
	expired bool
}

// resolveTemporaryAccess finds the active grant matching (user, caseID) at
// the given instant. When several live grants match the same case, the one
// expiring last wins: it is the most recently approved view of the case.
func resolveTemporaryAccess(user User, caseID id.CaseID, now time.Time) grantResolution {
	if caseID == "" {
		return grantResolution{}
	}

	var (
		best    *TemporaryAccess
		matched bool
	)
	for i := range user.Grants {
		g := &user.Grants[i]
		if g.CaseID != caseID {
			continue
		}
		matched = true
		if !g.Valid(now) {
			continue
		}
		if best == nil || g.ExpiresAt.After(best.ExpiresAt) {
			best = g
		}
	}

	if best != nil {
		g := *best
		return grantResolution{grant: &g}
	}
	return grantResolution{expired: matched}
}

// scopeOverride returns the PII scope override held by the resolved grant,
// if any. The override applies only while its case context matches, which
// resolveTemporaryAccess already guarantees.
func (r grantResolution) scopeOverride() (id.PIIScope, bool) {
	if r.grant == nil || r.grant.PIIScopeOverride == "" {
		return "", false
	}
	return r.grant.PIIScopeOverride, true
}

// coversRegion reports whether the live grant extends access to the region.
func (r grantResolution) coversRegion(region id.RegionID) bool {
	return r.grant != nil && r.grant.GrantedRegions.Contains(region)
}

// expiresAt reports the grant's expiry for cache TTL clamping.
func (r grantResolution) expiresAt() (time.Time, bool) {
	if r.grant == nil {
		return time.Time{}, false
	}
	return r.grant.ExpiresAt, true
}
