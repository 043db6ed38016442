package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"opsgate/internal/authz/config"
	"opsgate/internal/authz/metrics"
	"opsgate/internal/authz/ports"
	"opsgate/pkg/platform/audit"
	"opsgate/pkg/platform/sentinel"
	strutil "opsgate/pkg/platform/strings"
	"opsgate/pkg/requestcontext"
)

// Stage names used in metrics and deny attribution.
const (
	stageNormalizer  = "normalizer"
	stageRBAC        = "rbac"
	stageRegional    = "regional"
	stageSensitivity = "sensitivity"
	stageMFA         = "mfa"
	stageNone        = "none"
)

// Service is the policy decision point. Evaluate is safe for concurrent use:
// the catalog is an atomically swapped snapshot, the cache is sharded, and
// everything else is pure computation over the request.
type Service struct {
	catalog ports.RoleCatalog
	cache   DecisionCache
	oracle  ports.SessionOracle
	auditor ports.AuditPort
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     config.Config
	now     func() time.Time
	tracer  trace.Tracer

	group singleflight.Group
}

type Option func(*Service)

// WithCache wires a decision cache.
func WithCache(cache DecisionCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithSessionOracle wires the optional session/MFA oracle.
func WithSessionOracle(oracle ports.SessionOracle) Option {
	return func(s *Service) { s.oracle = oracle }
}

// WithAuditor wires the audit sink.
func WithAuditor(auditor ports.AuditPort) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithMetrics wires prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConfig overrides the default evaluation parameters.
func WithConfig(cfg config.Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithClock pins the evaluation clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the decision service. The role catalog is the only hard
// dependency: without it every decision would be a deny, which is a
// configuration fault rather than a policy outcome.
func New(catalog ports.RoleCatalog, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("role catalog is required")
	}
	s := &Service{
		catalog: catalog,
		cfg:     config.Default(),
		now:     time.Now,
		tracer:  otel.Tracer("opsgate/authz"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Evaluate decides allow/deny for one request. Policy outcomes are Decision
// values, never errors; the error return is reserved for subsystem faults
// that must not be silently downgraded in either direction.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (Decision, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "authz.Evaluate")
	defer span.End()

	// One "now" per evaluation: the middleware-pinned request time when
	// present, the service clock otherwise.
	now := s.now()
	if t, ok := requestcontext.PinnedTime(ctx); ok {
		now = t
	}

	normalized, denyReason := normalize(s.cfg, req)
	if denyReason != "" {
		decision := denyDecision(denyReason)
		decision.Metadata[MetaCacheHit] = false
		s.finish(ctx, span, normalized, decision, stageNormalizer, start)
		return decision, nil
	}

	key := cacheKey(normalized)

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			decision := entry.Decision.clone()
			decision.Metadata[MetaCacheHit] = true
			s.metrics.IncrementCacheLookup("hit")
			s.metrics.ObserveEvaluateLatency(time.Since(start))
			span.SetAttributes(attribute.Bool("authz.cache_hit", true))
			// Compliance records are per access, not per computation: a
			// memoized decision still audits each time it is served.
			s.audit(ctx, normalized, decision)
			return decision, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementCacheLookup("miss")
		default:
			// A broken cache recomputes; it never flips an outcome.
			s.metrics.IncrementCacheLookup("error")
			if s.logger != nil {
				s.logger.WarnContext(ctx, "decision cache lookup failed", "error", err)
			}
		}
	}

	// Collapse concurrent identical misses into one computation. The key
	// covers every decision-relevant input, so sharing the result is safe.
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, normalized, now), nil
	})
	if err != nil {
		return Decision{}, err
	}
	out := v.(computed)

	if s.cache != nil && out.ttl > 0 {
		entry := CacheEntry{Decision: out.decision.clone(), StoredAt: now}
		if cerr := s.cache.Set(ctx, key, entry, out.ttl); cerr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "decision cache store failed", "error", cerr)
		}
	}

	decision := out.decision.clone()
	decision.Metadata[MetaCacheHit] = false
	s.finish(ctx, span, normalized, decision, out.denyStage, start)
	return decision, nil
}

// computed is one pipeline run plus its cacheability window.
type computed struct {
	decision  Decision
	denyStage string
	ttl       time.Duration
}

// compute runs the stage pipeline. Stages execute in fixed order and the
// first deny short-circuits; the normalizer already ran.
func (s *Service) compute(ctx context.Context, req EvaluateRequest, now time.Time) computed {
	asm := newAssembler()
	denyStage := stageNone

	var obs *ports.MFAObservation
	if s.oracle != nil {
		if o, err := s.oracle.Observe(ctx, req.User.ID); err == nil {
			obs = &o
		} else if s.logger != nil {
			// Without the oracle the context is authoritative; freshness
			// that cannot be established stays unestablished (fail closed).
			s.logger.WarnContext(ctx, "session oracle unavailable", "error", err)
		}
	}

	grant := resolveTemporaryAccess(req.User, req.Context.CaseID, now)
	state := deriveMFAState(req.Context, obs, now)

	stageStart := time.Now()
	rbac := evaluateRBAC(s.catalog, req.User, req.Action)
	s.metrics.ObserveStageLatency(stageRBAC, time.Since(stageStart))
	if !asm.merge(rbac) {
		denyStage = stageRBAC
		return s.assemble(asm, req, state, grant, denyStage, now)
	}

	stageStart = time.Now()
	region := evaluateRegion(s.cfg, s.catalog, req, grant)
	s.metrics.ObserveStageLatency(stageRegional, time.Since(stageStart))
	if !asm.merge(region.stageResult) {
		denyStage = stageRegional
		return s.assemble(asm, req, state, grant, denyStage, now)
	}

	stageStart = time.Now()
	sens := evaluateSensitivity(s.catalog, req, grant, state, region.overrideGranted)
	s.metrics.ObserveStageLatency(stageSensitivity, time.Since(stageStart))
	if !asm.merge(sens) {
		denyStage = stageSensitivity
		return s.assemble(asm, req, state, grant, denyStage, now)
	}

	stageStart = time.Now()
	mfa := evaluateMFA(s.cfg, req, state, obs, now)
	s.metrics.ObserveStageLatency(stageMFA, time.Since(stageStart))
	if !asm.merge(mfa) {
		denyStage = stageMFA
	}

	return s.assemble(asm, req, state, grant, denyStage, now)
}

func (s *Service) assemble(asm *assembler, req EvaluateRequest, state mfaState, grant grantResolution, denyStage string, now time.Time) computed {
	return computed{
		decision:  asm.decision(),
		denyStage: denyStage,
		ttl:       s.cacheTTL(req, state, grant, now),
	}
}

// cacheTTL clamps the configured TTL to the nearest time boundary of any
// time-bound input: a cached decision must never outlive the MFA freshness
// window or a consulted grant's expiry.
func (s *Service) cacheTTL(req EvaluateRequest, state mfaState, grant grantResolution, now time.Time) time.Duration {
	ttl := s.cfg.DecisionCacheTTL

	if state.present && !state.verifiedAt.IsZero() {
		if remaining := state.verifiedAt.Add(req.Context.MFATimeout).Sub(now); remaining < ttl {
			ttl = remaining
		}
		if s.cfg.ElevatedActions[req.Action] || req.Context.ElevatedOperation {
			if remaining := state.verifiedAt.Add(req.Context.StepUpTimeout).Sub(now); remaining < ttl {
				ttl = remaining
			}
		}
	}
	if expiry, ok := grant.expiresAt(); ok {
		if remaining := expiry.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// finish records metrics, tracing, and the audit event for a decision that
// is about to be returned. Audit emission is fire-and-forget: failures are
// logged and never alter the decision.
func (s *Service) finish(ctx context.Context, span trace.Span, req EvaluateRequest, decision Decision, denyStage string, start time.Time) {
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	s.metrics.IncrementOutcome(string(decision.Effect), denyStage)

	span.SetAttributes(
		attribute.String("authz.effect", string(decision.Effect)),
		attribute.String("authz.action", req.Action.String()),
		attribute.String("authz.region", req.Resource.Region.String()),
		attribute.Bool("authz.cache_hit", false),
	)

	s.audit(ctx, req, decision)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "decision evaluated",
			"user_id", req.User.ID.String(),
			"action", req.Action.String(),
			"region", req.Resource.Region.String(),
			"effect", string(decision.Effect),
			"reason", decision.Reasons[0],
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// audit emits one event when the decision asks for it. Emission failures
// are logged and swallowed; the sink never alters an outcome.
func (s *Service) audit(ctx context.Context, req EvaluateRequest, decision Decision) {
	if s.auditor == nil || !shouldAudit(decision) {
		return
	}
	event := buildAuditEvent(ctx, req, decision)
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emission failed", "error", err)
	}
}

// shouldAudit reports whether any audit*/notify* obligation or security flag
// fired, which is the contract for invoking the audit sink.
func shouldAudit(decision Decision) bool {
	for key := range decision.Obligations {
		if strings.HasPrefix(key, "audit") || strings.HasPrefix(key, "notify") {
			return true
		}
	}
	if _, ok := decision.Obligations[ObSecurityFlags]; ok {
		return true
	}
	if _, ok := decision.Metadata[MetaSecurityFlag]; ok {
		return true
	}
	return false
}

func buildAuditEvent(ctx context.Context, req EvaluateRequest, decision Decision) audit.Event {
	event := audit.Event{
		UserID:    req.User.ID,
		Action:    req.Action.String(),
		Region:    req.Resource.Region.String(),
		CaseID:    req.Context.CaseID.String(),
		Decision:  string(decision.Effect),
		Reason:    decision.Reasons[0],
		RequestID: requestcontext.RequestID(ctx),
	}
	if level, ok := decision.Obligations[ObAuditLevel].(string); ok {
		event.AuditLevel = level
	}
	if flags, ok := decision.Obligations[ObSecurityFlags].([]string); ok {
		event.SecurityFlags = append(event.SecurityFlags, flags...)
	}
	if flag, ok := decision.Metadata[MetaSecurityFlag].(string); ok {
		event.SecurityFlags = append(event.SecurityFlags, flag)
	}
	// The obligation list and the metadata flag can carry the same marker.
	event.SecurityFlags = strutil.DedupeAndTrim(event.SecurityFlags)
	if method, ok := decision.Metadata[MetaMFAMethod].(string); ok {
		event.MFAMethod = method
	}
	event.Name = classifyAuditEvent(decision, event.SecurityFlags)

	switch {
	case len(event.SecurityFlags) > 0:
		event.Category = audit.CategorySecurity
	case decision.Allowed() && (event.AuditLevel == AuditLevelEnhanced || event.AuditLevel == AuditLevelMaximum):
		event.Category = audit.CategoryCompliance
	case decision.Obligations[ObNotifyDPO] == true:
		event.Category = audit.CategoryCompliance
	default:
		event.Category = audit.CategoryOperations
	}
	return event
}

// classifyAuditEvent names the record for downstream routing. Names are
// ordered by severity: a raised security flag trumps everything else.
func classifyAuditEvent(decision Decision, flags []string) audit.AuditEvent {
	if len(flags) > 0 {
		return audit.EventSecurityFlagRaised
	}
	if !decision.Allowed() {
		switch decision.Reasons[0] {
		case ReasonStepUpRequired:
			return audit.EventStepUpRequired
		case ReasonMFARequired, ReasonMFAExpired, ReasonInvalidMFAMethod:
			return audit.EventMFAChallengeIssued
		case ReasonBatchPIINeedsScope, ReasonBatchPIINeedsMFA:
			return audit.EventBatchPIIBlocked
		}
		return audit.EventAccessDenied
	}
	if _, ok := decision.Metadata[MetaOverridePath]; ok {
		return audit.EventCrossRegionOverride
	}
	if decision.Obligations[ObNotifyDPO] == true {
		return audit.EventLegalBasisAccess
	}
	return audit.EventDecisionEvaluated
}
