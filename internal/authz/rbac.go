package authz

import (
	id "opsgate/pkg/domain"

	"opsgate/internal/authz/ports"
)

// evaluateRBAC resolves the user's effective permissions from active role
// assignments against the catalog and checks the requested action.
//
// Effective permissions are derived solely from the catalog, keyed by role
// name. The permissions array a caller may have carried on the user object
// is never consulted: unioning request-carried claims is exactly the
// capability-escalation attack this stage exists to defeat.
func evaluateRBAC(catalog ports.RoleCatalog, user User, action id.Action) stageResult {
	var res stageResult

	active := 0
	allowed := false
	for _, assignment := range user.Assignments {
		if !assignment.Active {
			continue
		}
		role, ok := catalog.Lookup(assignment.Role)
		if !ok || assignment.Role == "" {
			// A live assignment pointing at a role the catalog cannot
			// resolve is a provisioning fault; fail closed.
			res.deny(ReasonInvalidRoleConfig)
			return res
		}
		active++
		if role.Allows(action) {
			allowed = true
		}
	}

	if active == 0 {
		res.deny(ReasonNoActiveRoles)
		return res
	}
	if !allowed {
		res.deny(ReasonMissingPermission)
		return res
	}

	res.addReason(ReasonRBACGranted)
	return res
}

// primaryRole returns the highest-level resolvable role among active
// assignments; ties break toward the earliest assignment. Escalation
// eligibility is judged against this role.
func primaryRole(catalog ports.RoleCatalog, user User) (ports.Role, bool) {
	var (
		best      ports.Role
		bestIdx   = -1
		bestLevel = -1
	)
	for i, assignment := range user.Assignments {
		if !assignment.Active {
			continue
		}
		role, ok := catalog.Lookup(assignment.Role)
		if !ok {
			continue
		}
		if role.Level > bestLevel {
			best, bestLevel, bestIdx = role, role.Level, i
		}
	}
	return best, bestIdx >= 0
}

// primaryRegions returns the region set of the assignment carrying the
// primary role. Confidential data outside these regions needs an override.
func primaryRegions(catalog ports.RoleCatalog, user User) id.Regions {
	var (
		regions   id.Regions
		bestLevel = -1
	)
	for _, assignment := range user.Assignments {
		if !assignment.Active {
			continue
		}
		role, ok := catalog.Lookup(assignment.Role)
		if !ok {
			continue
		}
		if role.Level > bestLevel {
			bestLevel = role.Level
			regions = assignment.Regions
		}
	}
	return regions
}

// effectiveRegions unions allowed regions across all active assignments.
func effectiveRegions(user User) id.Regions {
	regions := id.RegionSubset()
	for _, assignment := range user.Assignments {
		if !assignment.Active {
			continue
		}
		regions = regions.Union(assignment.Regions)
	}
	return regions
}
