// Package config holds the tunable evaluation parameters of the decision
// engine. Everything here is a reviewable table, not a constant buried in a
// rule: cross-region escalation eligibility, the sensitive/elevated action
// sets, and the time windows are all swappable per deployment.
package config

import (
	"os"
	"strings"
	"time"

	id "opsgate/pkg/domain"
)

// Config captures evaluation policy parameters.
type Config struct {
	// MFATimeout is the default session MFA freshness window. A request
	// context may tighten it, never widen it past this ceiling.
	MFATimeout time.Duration

	// StepUpTimeout is the freshness window for elevated operations.
	StepUpTimeout time.Duration

	// DecisionCacheTTL caps how long any decision may be served from cache.
	// Individual entries are clamped further by their time-bound inputs.
	DecisionCacheTTL time.Duration

	// EscalationEligibleRoles are the primary roles allowed to consume
	// cross-region temporary access grants.
	EscalationEligibleRoles map[string]bool

	// CaseExemptActions lists actions allowed to cross regions without a
	// case ID. Empty by default: every cross-region access, reads included,
	// requires a case.
	CaseExemptActions map[id.Action]bool

	// SensitiveActions maps MFA-requiring actions to their action-specific
	// deny reason when MFA is absent.
	SensitiveActions map[id.Action]string

	// ElevatedActions require step-up freshness on top of MFA presence.
	ElevatedActions map[id.Action]bool

	// MFAFailureRiskThreshold is the failure count at which the repeated
	// failure heuristic starts raising the risk score.
	MFAFailureRiskThreshold int
}

// Default returns the evaluation parameters used when the environment does
// not override them.
func Default() Config {
	return Config{
		MFATimeout:       30 * time.Minute,
		StepUpTimeout:    5 * time.Minute,
		DecisionCacheTTL: 60 * time.Second,
		EscalationEligibleRoles: map[string]bool{
			"support":           true,
			"risk_investigator": true,
			"regional_manager":  true,
		},
		CaseExemptActions: map[id.Action]bool{},
		SensitiveActions: map[id.Action]string{
			"unmask_pii_with_mfa":  "MFA required for PII unmasking",
			"export_customer_data": "MFA required for customer data export",
			"manage_users":         "MFA required for user management",
			"modify_permissions":   "MFA required for permission changes",
			"approve_escalation":   "MFA required for escalation approval",
		},
		ElevatedActions: map[id.Action]bool{
			"manage_users":       true,
			"modify_permissions": true,
			"approve_escalation": true,
		},
		MFAFailureRiskThreshold: 3,
	}
}

// FromEnv applies environment overrides on top of the defaults.
func FromEnv() Config {
	cfg := Default()
	cfg.MFATimeout = envDuration("OPSGATE_MFA_TIMEOUT", cfg.MFATimeout)
	cfg.StepUpTimeout = envDuration("OPSGATE_STEPUP_TIMEOUT", cfg.StepUpTimeout)
	cfg.DecisionCacheTTL = envDuration("OPSGATE_DECISION_CACHE_TTL", cfg.DecisionCacheTTL)
	if roles := os.Getenv("OPSGATE_ESCALATION_ROLES"); roles != "" {
		set := make(map[string]bool)
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				set[r] = true
			}
		}
		cfg.EscalationEligibleRoles = set
	}
	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
