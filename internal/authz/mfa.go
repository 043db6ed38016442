package authz

import (
	"time"

	id "opsgate/pkg/domain"

	"opsgate/internal/authz/config"
	"opsgate/internal/authz/ports"
)

// mfaState is the derived view of the user's second factor at evaluation
// time. It is computed once and shared between the sensitivity gate (which
// needs freshness for PII rules) and the MFA gate itself.
type mfaState struct {
	present     bool
	method      id.MFAMethod
	verifiedAt  time.Time
	fresh       bool
	stepUpFresh bool
}

// deriveMFAState prefers the self-reported context; when the context asserts
// presence without a timestamp and a session oracle is wired, the oracle's
// observation fills the gap. Absent both, MFA is stale.
func deriveMFAState(ctx RequestContext, obs *ports.MFAObservation, now time.Time) mfaState {
	state := mfaState{
		present:    ctx.MFAPresent,
		method:     ctx.MFAMethod,
		verifiedAt: ctx.MFATimestamp,
	}
	if state.present && state.verifiedAt.IsZero() && obs != nil {
		state.verifiedAt = obs.LastVerifiedAt
		if state.method == "" {
			state.method = obs.Method
		}
	}
	if !state.present || state.verifiedAt.IsZero() {
		return state
	}
	age := now.Sub(state.verifiedAt)
	state.fresh = age >= 0 && age <= ctx.MFATimeout
	state.stepUpFresh = age >= 0 && age <= ctx.StepUpTimeout
	return state
}

// evaluateMFA enforces presence, method validity, freshness, and step-up
// rules for the configured sensitive and elevated action sets. The rules are
// uniform across channels; non-interactive channels attempting a sensitive
// action without MFA are additionally flagged for security review.
func evaluateMFA(cfg config.Config, req EvaluateRequest, state mfaState, obs *ports.MFAObservation, now time.Time) stageResult {
	denyReason, sensitive := cfg.SensitiveActions[req.Action]
	elevated := cfg.ElevatedActions[req.Action] || req.Context.ElevatedOperation
	if !sensitive && !elevated {
		return stageResult{}
	}

	res := mfaGate(req, state, denyReason, elevated)

	// Behavioral heuristics annotate whatever the gate decided; they never
	// change the outcome themselves.
	if obs != nil {
		if obs.FailureCount >= cfg.MFAFailureRiskThreshold {
			res.addSecurityFlag(FlagRepeatedMFAFail)
			res.meta(MetaRiskScore, riskScore(obs.FailureCount))
		}
		if suspiciousLocationChange(req.Context, *obs, now) {
			res.addSecurityFlag(FlagSuspiciousGeo)
			res.obligation(ObRequireSecurityReview, true)
			res.obligation(ObNotifySecurityTeam, true)
		}
	}
	return res
}

// mfaGate applies the presence, method, freshness, and step-up rules for an
// action that requires a second factor.
func mfaGate(req EvaluateRequest, state mfaState, denyReason string, elevated bool) stageResult {
	var res stageResult

	if !state.present {
		if denyReason == "" {
			denyReason = ReasonMFARequired
		}
		res.deny(denyReason)
		res.obligation(ObRequireMFA, true)
		res.obligation(ObMFAChallenge, MFAChallengeTOTPOrBackup)
		if req.Context.Channel != id.ChannelUI {
			res.meta(MetaSecurityFlag, FlagAPIMFABypass)
		}
		return res
	}

	// A supplied method must be a supported one. Absence is tolerated:
	// callers assert presence without always echoing the mechanism.
	if state.method != "" && !state.method.IsValid() {
		res.deny(ReasonInvalidMFAMethod)
		return res
	}

	if !state.fresh {
		res.deny(ReasonMFAExpired)
		res.obligation(ObMFAReason, MFAReasonSessionTimeout)
		return res
	}

	if elevated && !state.stepUpFresh {
		res.deny(ReasonStepUpRequired)
		res.obligation(ObMFAReason, MFAReasonStepUp)
		return res
	}

	res.addReason(ReasonMFAVerified)
	res.obligation(ObAuditMFA, true)
	res.obligation(ObAuditLevel, AuditLevelEnhanced)
	if state.method != "" {
		res.meta(MetaMFAMethod, state.method.String())
	}
	res.meta(MetaAuditFields, map[string]string{
		"method":    state.method.String(),
		"timestamp": state.verifiedAt.UTC().Format(time.RFC3339),
		"device_id": req.Context.DeviceID,
		"ip":        req.Context.IPAddress,
	})
	return res
}

// suspiciousLocationChange flags an implausible jump between the session's
// last observed location and the current one.
func suspiciousLocationChange(ctx RequestContext, obs ports.MFAObservation, now time.Time) bool {
	if ctx.GeoLocation == "" || obs.LastLocation == "" {
		return false
	}
	if ctx.GeoLocation == obs.LastLocation {
		return false
	}
	// A location change within an hour of the last sighting is not a
	// plausible travel window for an operations session.
	return !obs.LastSeenAt.IsZero() && now.Sub(obs.LastSeenAt) < time.Hour
}

// riskScore grows with consecutive failures and saturates at 100.
func riskScore(failures int) int {
	score := failures * 20
	if score > 100 {
		return 100
	}
	return score
}
