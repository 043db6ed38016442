package authz

// stageResult is one stage's contribution to the final decision. A non-empty
// denyReason short-circuits the pipeline; reasons, obligations, and metadata
// are merged into the decision either way (deny decisions keep defensive
// obligations like requireMFA and preventPIILeak).
type stageResult struct {
	denyReason  string
	reasons     []string
	obligations map[string]any
	metadata    map[string]any
}

func (r *stageResult) deny(reason string) {
	r.denyReason = reason
}

func (r *stageResult) addReason(reason string) {
	r.reasons = append(r.reasons, reason)
}

func (r *stageResult) obligation(key string, value any) {
	if r.obligations == nil {
		r.obligations = make(map[string]any)
	}
	r.obligations[key] = value
}

func (r *stageResult) meta(key string, value any) {
	if r.metadata == nil {
		r.metadata = make(map[string]any)
	}
	r.metadata[key] = value
}

// addSecurityFlag appends to the securityFlags obligation list.
func (r *stageResult) addSecurityFlag(flag string) {
	if r.obligations == nil {
		r.obligations = make(map[string]any)
	}
	flags, _ := r.obligations[ObSecurityFlags].([]string)
	r.obligations[ObSecurityFlags] = append(flags, flag)
}

// assembler merges stage outputs. Deny overrides allow: the first denying
// stage's reason is authoritative and evaluation stops there; on overall
// allow, contributions from every executed stage are merged in pipeline
// order.
type assembler struct {
	reasons     []string
	obligations map[string]any
	metadata    map[string]any
	denied      bool
	denyReason  string
}

func newAssembler() *assembler {
	return &assembler{
		obligations: make(map[string]any),
		metadata:    make(map[string]any),
	}
}

// merge folds a stage result in. Returns false once the pipeline is denied.
func (a *assembler) merge(res stageResult) bool {
	for k, v := range res.obligations {
		if k == ObSecurityFlags {
			have, _ := a.obligations[ObSecurityFlags].([]string)
			add, _ := v.([]string)
			a.obligations[ObSecurityFlags] = append(have, add...)
			continue
		}
		if k == ObAuditLevel {
			a.obligations[k] = maxAuditLevel(a.obligations[k], v)
			continue
		}
		a.obligations[k] = v
	}
	for k, v := range res.metadata {
		a.metadata[k] = v
	}
	if res.denyReason != "" {
		a.denied = true
		a.denyReason = res.denyReason
		return false
	}
	a.reasons = append(a.reasons, res.reasons...)
	return true
}

// maxAuditLevel keeps the strictest audit level when stages disagree.
func maxAuditLevel(a, b any) any {
	rank := map[string]int{
		AuditLevelStandard: 0,
		AuditLevelEnhanced: 1,
		AuditLevelMaximum:  2,
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	if rank[bs] > rank[as] {
		return bs
	}
	if as == "" {
		return bs
	}
	return as
}

// decision produces the final immutable Decision value.
func (a *assembler) decision() Decision {
	d := Decision{
		Obligations: a.obligations,
		Metadata:    a.metadata,
	}
	if a.denied {
		d.Effect = EffectDeny
		d.Reasons = []string{a.denyReason}
		return d
	}
	d.Effect = EffectAllow
	d.Reasons = a.reasons
	if len(d.Reasons) == 0 {
		// Decisions always carry at least one reason.
		d.Reasons = []string{ReasonRBACGranted}
	}
	return d
}

// denyDecision builds a standalone deny for pre-pipeline failures
// (normalization), with optional defensive obligations.
func denyDecision(reason string) Decision {
	return Decision{
		Effect:      EffectDeny,
		Reasons:     []string{reason},
		Obligations: map[string]any{},
		Metadata:    map[string]any{},
	}
}
