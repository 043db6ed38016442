// Package catalog holds the canonical role definitions consulted by every
// authorization decision. The catalog is the single source of truth for
// permissions: role payloads arriving on requests are lookup keys only.
package catalog

import (
	"sync/atomic"

	"opsgate/internal/authz/ports"
	id "opsgate/pkg/domain"
)

// Catalog is an atomically swapped snapshot of role definitions. Lookups
// never block behind updates: Replace installs a complete new snapshot and
// in-flight readers keep the one they started with.
type Catalog struct {
	snapshot atomic.Pointer[map[string]ports.Role]
}

// New builds a catalog from the given roles.
func New(roles []ports.Role) *Catalog {
	c := &Catalog{}
	c.Replace(roles)
	return c
}

// Lookup resolves a role name to its canonical definition.
func (c *Catalog) Lookup(name string) (ports.Role, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		return ports.Role{}, false
	}
	role, ok := (*snap)[name]
	return role, ok
}

// Replace installs a wholesale new role set. There is no per-role mutation:
// partial updates would let a reader observe a mixed policy.
func (c *Catalog) Replace(roles []ports.Role) {
	snap := make(map[string]ports.Role, len(roles))
	for _, role := range roles {
		perms := make(map[id.Action]bool, len(role.Permissions))
		for action, allowed := range role.Permissions {
			perms[action] = allowed
		}
		role.Permissions = perms
		snap[role.Name] = role
	}
	c.snapshot.Store(&snap)
}

// Names lists the role names in the current snapshot (diagnostics).
func (c *Catalog) Names() []string {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(*snap))
	for name := range *snap {
		names = append(names, name)
	}
	return names
}

func perms(actions ...id.Action) map[id.Action]bool {
	m := make(map[id.Action]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

// Default returns the built-in role table for the operations platform.
// Levels order roles for primary-role selection; higher level wins.
func Default() *Catalog {
	return New([]ports.Role{
		{
			Name:  "ground_ops",
			Level: 10,
			Permissions: perms(
				"assign_driver",
				"view_delivery",
				"update_delivery_status",
				"view_route",
			),
		},
		{
			Name:  "dispatcher",
			Level: 20,
			Permissions: perms(
				"assign_driver",
				"view_delivery",
				"update_delivery_status",
				"view_route",
				"reassign_route",
				"cancel_delivery",
			),
		},
		{
			Name:  "support",
			Level: 30,
			Permissions: perms(
				"case_open",
				"case_view",
				"case_update",
				"view_delivery",
				"view_customer_profile",
				"issue_refund",
			),
		},
		{
			Name:  "risk_investigator",
			Level: 40,
			Permissions: perms(
				"case_view",
				"view_customer_profile",
				"unmask_pii_with_mfa",
				"export_customer_data",
				"flag_account",
				"view_transaction_history",
			),
		},
		{
			Name:  "regional_manager",
			Level: 50,
			Permissions: perms(
				"view_delivery",
				"view_route",
				"view_customer_profile",
				"case_view",
				"view_regional_reports",
				"approve_refund",
			),
		},
		{
			Name:  "compliance_officer",
			Level: 60,
			Permissions: perms(
				"case_view",
				"view_customer_profile",
				"unmask_pii_with_mfa",
				"export_customer_data",
				"view_audit_log",
				"view_regional_reports",
			),
		},
		{
			Name:  "platform_admin",
			Level: 70,
			Permissions: perms(
				"manage_users",
				"modify_permissions",
				"approve_escalation",
				"view_audit_log",
				"manage_roles",
			),
		},
	})
}
