package authz

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsgate/internal/authz/catalog"
	"opsgate/internal/authz/ports"
	id "opsgate/pkg/domain"
	"opsgate/pkg/platform/audit"
	"opsgate/pkg/platform/sentinel"
)

// =============================================================================
// Decision Engine Test Suite
// =============================================================================
// Justification for unit tests: the engine is the product. Every stage rule,
// reason string, and obligation is contract; the acceptance scenarios below
// are verified end to end through Evaluate rather than stage by stage so the
// pipeline ordering itself is under test.

type EngineSuite struct {
	suite.Suite
	engine *Service
	cache  *recordingCache
	audits *recordingAuditor
	oracle *stubOracle
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	s.cache = newRecordingCache()
	s.audits = &recordingAuditor{}
	s.oracle = &stubOracle{}

	var err error
	s.engine, err = New(catalog.Default(),
		WithCache(s.cache),
		WithSessionOracle(s.oracle),
		WithAuditor(s.audits),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type recordingCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	ttls    map[string]time.Duration
	sets    int
	gets    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{
		entries: make(map[string]CacheEntry),
		ttls:    make(map[string]time.Duration),
	}
}

func (c *recordingCache) Get(ctx context.Context, key string) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	entry, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

func (c *recordingCache) Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = entry
	c.ttls[key] = ttl
	return nil
}

func (c *recordingCache) lastTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ttl := range c.ttls {
		return ttl
	}
	return 0
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
	fail   bool
}

func (a *recordingAuditor) Emit(ctx context.Context, event audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("sink unavailable")
	}
	a.events = append(a.events, event)
	return nil
}

type stubOracle struct {
	obs ports.MFAObservation
}

func (o *stubOracle) Observe(ctx context.Context, userID id.UserID) (ports.MFAObservation, error) {
	return o.obs, nil
}
func (o *stubOracle) RecordFailure(ctx context.Context, userID id.UserID) error  { return nil }
func (o *stubOracle) ClearFailures(ctx context.Context, userID id.UserID) error { return nil }

// -----------------------------------------------------------------------------
// Request builders
// -----------------------------------------------------------------------------

func groundOpsUser() User {
	return User{
		ID: id.NewUserID(),
		Assignments: []RoleAssignment{{
			Role:    "ground_ops",
			Active:  true,
			Regions: id.RegionSubset("manila"),
		}},
		PIIScope: id.PIIScopeNone,
	}
}

func investigatorUser() User {
	return User{
		ID: id.NewUserID(),
		Assignments: []RoleAssignment{{
			Role:    "risk_investigator",
			Active:  true,
			Regions: id.RegionSubset("cebu", "davao"),
		}},
		PIIScope:   id.PIIScopeFull,
		MFAEnabled: true,
	}
}

func supportUser(grants ...TemporaryAccess) User {
	return User{
		ID: id.NewUserID(),
		Assignments: []RoleAssignment{{
			Role:    "support",
			Active:  true,
			Regions: id.RegionSubset("cebu"),
		}},
		PIIScope: id.PIIScopeMasked,
		Grants:   grants,
	}
}

func internalResource(region id.RegionID) Resource {
	return Resource{Region: region, DataClass: id.DataClassInternal}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *EngineSuite) TestNew() {
	s.Run("nil catalog returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "role catalog is required")
	})

	s.Run("catalog alone is sufficient", func() {
		engine, err := New(catalog.Default())
		s.NoError(err)
		s.NotNil(engine)
	})
}

// =============================================================================
// Scenario A: regional RBAC baseline
// =============================================================================

func (s *EngineSuite) TestScenarioGroundOps() {
	ctx := context.Background()
	user := groundOpsUser()

	s.Run("assign_driver in home region allows without MFA", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Contains(decision.Reasons, ReasonRBACGranted)
		s.Equal(false, decision.Metadata[MetaCacheHit])
	})

	s.Run("manage_users denies with missing permission", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "manage_users",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonMissingPermission}, decision.Reasons)
	})

	s.Run("assign_driver outside home region denies regionally", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("cebu"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonRegionalDenied}, decision.Reasons)
	})
}

// =============================================================================
// Scenario B: MFA gate on sensitive actions
// =============================================================================

func (s *EngineSuite) TestScenarioInvestigatorMFA() {
	ctx := context.Background()
	user := investigatorUser()
	resource := Resource{
		Region:      "cebu",
		DataClass:   id.DataClassConfidential,
		ContainsPII: true,
	}

	s.Run("fresh MFA allows with enhanced audit level", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: resource,
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-2 * time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Equal(AuditLevelEnhanced, decision.Obligations[ObAuditLevel])
		s.Contains(decision.Reasons, ReasonMFAVerified)
		s.Equal("totp", decision.Metadata[MetaMFAMethod])
	})

	s.Run("absent MFA denies with action-specific reason and challenge", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: resource,
			Action:   "unmask_pii_with_mfa",
			Context:  RequestContext{MFAPresent: false},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{"MFA required for PII unmasking"}, decision.Reasons)
		s.Equal(true, decision.Obligations[ObRequireMFA])
		s.Equal(MFAChallengeTOTPOrBackup, decision.Obligations[ObMFAChallenge])
	})

	s.Run("stale MFA denies with session timeout", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: resource,
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-45 * time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonMFAExpired}, decision.Reasons)
		s.Equal(MFAReasonSessionTimeout, decision.Obligations[ObMFAReason])
	})

	s.Run("unsupported MFA method denies", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: resource,
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-2 * time.Minute),
				MFAMethod:    "sms",
			},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonInvalidMFAMethod}, decision.Reasons)
	})

	s.Run("api channel missing MFA raises bypass flag", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: resource,
			Action:   "unmask_pii_with_mfa",
			Context:  RequestContext{Channel: id.ChannelAPI},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal(FlagAPIMFABypass, decision.Metadata[MetaSecurityFlag])
	})
}

// =============================================================================
// Elevated operations: step-up freshness
// =============================================================================

func (s *EngineSuite) TestStepUp() {
	ctx := context.Background()
	admin := User{
		ID: id.NewUserID(),
		Assignments: []RoleAssignment{{
			Role:    "platform_admin",
			Active:  true,
			Regions: id.GlobalRegions(),
		}},
		PIIScope: id.PIIScopeFull,
	}

	s.Run("MFA older than step-up window denies elevated action", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     admin,
			Resource: internalResource("manila"),
			Action:   "manage_users",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-10 * time.Minute),
				MFAMethod:    id.MFAMethodHardwareKey,
			},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonStepUpRequired}, decision.Reasons)
		s.Equal(MFAReasonStepUp, decision.Obligations[ObMFAReason])
	})

	s.Run("MFA within step-up window allows elevated action", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     admin,
			Resource: internalResource("manila"),
			Action:   "manage_users",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-2 * time.Minute),
				MFAMethod:    id.MFAMethodHardwareKey,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
	})
}

// =============================================================================
// Scenario C: cross-region escalation via temporary access
// =============================================================================

func (s *EngineSuite) TestScenarioCrossRegionOverride() {
	ctx := context.Background()
	grant := TemporaryAccess{
		ID:             id.NewGrantID(),
		CaseID:         "CASE-SUPPORT-MNL-001",
		GrantedRegions: id.RegionSubset("manila"),
		ExpiresAt:      s.now.Add(4 * time.Hour),
		Active:         true,
	}
	user := supportUser(grant)

	s.Run("matching case grants override with enhanced audit", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Contains(decision.Reasons, ReasonCrossRegionOverride)
		s.Equal(AuditLevelEnhanced, decision.Obligations[ObAuditLevel])
		s.Equal(OverridePathSupport, decision.Metadata[MetaOverridePath])
	})

	s.Run("unknown case denies as invalid override", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "INVALID-CASE-999"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonInvalidCaseOverride}, decision.Reasons)
	})

	s.Run("missing case denies requiring case ID", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "case_open",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonCrossRegionNeedsCase}, decision.Reasons)
	})

	s.Run("expired grant denies as expired, never contributes", func() {
		expired := grant
		expired.ExpiresAt = s.now.Add(-time.Minute)
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(expired),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonTempAccessExpired}, decision.Reasons)
	})

	s.Run("inactive grant denies as expired", func() {
		inactive := grant
		inactive.Active = false
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(inactive),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonTempAccessExpired}, decision.Reasons)
	})

	s.Run("grant not covering region denies regionally", func() {
		elsewhere := grant
		elsewhere.GrantedRegions = id.RegionSubset("davao")
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(elsewhere),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonRegionalDenied}, decision.Reasons)
	})

	s.Run("ineligible primary role denies regionally despite grant", func() {
		ineligible := User{
			ID: id.NewUserID(),
			Assignments: []RoleAssignment{{
				Role:    "ground_ops",
				Active:  true,
				Regions: id.RegionSubset("cebu"),
			}},
			Grants: []TemporaryAccess{grant},
		}
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     ineligible,
			Resource: internalResource("manila"),
			Action:   "view_delivery",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonRegionalDenied}, decision.Reasons)
	})

	s.Run("original region mismatch flags replay without changing outcome", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{OriginalRegion: "cebu"},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal(FlagTokenReplay, decision.Metadata[MetaSecurityFlag])
	})
}

// =============================================================================
// RBAC hardening
// =============================================================================

func (s *EngineSuite) TestRBACHardening() {
	ctx := context.Background()

	s.Run("zero active roles denies", func() {
		user := groundOpsUser()
		user.Assignments[0].Active = false
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonNoActiveRoles}, decision.Reasons)
	})

	s.Run("unresolvable role denies as invalid configuration", func() {
		user := groundOpsUser()
		user.Assignments[0].Role = "nonexistent_role"
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonInvalidRoleConfig}, decision.Reasons)
	})

	s.Run("advisory permissions on the user object are ignored", func() {
		user := groundOpsUser()
		user.AdvisoryPermissions = []string{"manage_users", "modify_permissions"}
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "manage_users",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonMissingPermission}, decision.Reasons)
	})
}

// =============================================================================
// Normalizer: adversarial identifiers
// =============================================================================

func (s *EngineSuite) TestAdversarialIdentifiers() {
	ctx := context.Background()
	user := groundOpsUser()

	regions := []string{
		"manila'; DROP TABLE regions;--",
		"../../../etc/passwd",
		"manila\x00",
		"*",
		"region; rm -rf /",
	}
	for _, region := range regions {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: Resource{Region: id.RegionID(region), DataClass: id.DataClassInternal},
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed(), "region %q must deny", region)
		s.Equal([]string{ReasonInvalidRegion}, decision.Reasons, "region %q", region)
	}

	s.Run("adversarial action identifier denies before RBAC", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver'; --",
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonInvalidAction}, decision.Reasons)
	})

	s.Run("adversarial grant region denies whole request", func() {
		tainted := groundOpsUser()
		tainted.Grants = []TemporaryAccess{{
			ID:             id.NewGrantID(),
			CaseID:         "CASE-X-1",
			GrantedRegions: id.RegionSubset("manila/*"),
			ExpiresAt:      s.now.Add(time.Hour),
			Active:         true,
		}}
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     tainted,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonInvalidRegion}, decision.Reasons)
	})
}

// =============================================================================
// Sensitivity gate
// =============================================================================

func (s *EngineSuite) TestSensitivity() {
	ctx := context.Background()

	s.Run("restricted PII requires full scope with fresh MFA", func() {
		user := supportUser() // masked scope
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: user,
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassRestricted,
				ContainsPII: true,
			},
			Action: "case_view",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonRestrictedPIINeedsMFA}, decision.Reasons)
	})

	s.Run("confidential PII with no scope denies", func() {
		user := groundOpsUser() // scope none
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: user,
			Resource: Resource{
				Region:      "manila",
				DataClass:   id.DataClassConfidential,
				ContainsPII: true,
			},
			Action: "view_delivery",
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonPIIScopeInsufficient}, decision.Reasons)
	})

	s.Run("internal PII below full scope masks", func() {
		user := supportUser()
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: user,
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action: "view_customer_profile",
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Equal(true, decision.Obligations[ObMaskPII])
		s.ElementsMatch(
			[]string{"full_name", "phone", "email", "address", "government_id"},
			decision.Obligations[ObMaskedFields],
		)
		s.Equal("masked", decision.Obligations[ObPIIScope])
	})

	s.Run("grant scope override lifts masking while case matches", func() {
		grant := TemporaryAccess{
			ID:               id.NewGrantID(),
			CaseID:           "CASE-SUPPORT-CEB-002",
			GrantedRegions:   id.RegionSubset("cebu"),
			PIIScopeOverride: id.PIIScopeFull,
			ExpiresAt:        s.now.Add(time.Hour),
			Active:           true,
		}
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: supportUser(grant),
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action: "view_customer_profile",
			Context: RequestContext{
				CaseID:       "CASE-SUPPORT-CEB-002",
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.NotContains(decision.Obligations, ObMaskPII)
		s.Equal("full", decision.Obligations[ObPIIScope])
	})

	s.Run("batch PII with no scope denies with leak prevention", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: groundOpsUser(),
			Resource: Resource{
				Region:      "manila",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action:  "view_delivery",
			Context: RequestContext{Channel: id.ChannelBatch},
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonBatchPIINeedsScope}, decision.Reasons)
		s.Equal(true, decision.Obligations[ObPreventPIILeak])
	})

	s.Run("batch PII without MFA presence denies regardless of scope", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: investigatorUser(),
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action:  "view_customer_profile",
			Context: RequestContext{Channel: id.ChannelBatch},
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonBatchPIINeedsMFA}, decision.Reasons)
	})

	s.Run("unmasked export requires full scope", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: supportUser(),
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action:  "view_customer_profile",
			Context: RequestContext{Export: true, ExportUnmasked: true},
		})
		s.Require().NoError(err)
		s.Equal([]string{ReasonExportNeedsFullScope}, decision.Reasons)
	})

	s.Run("allowed export attaches restrictions", func() {
		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: investigatorUser(),
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassInternal,
				ContainsPII: true,
			},
			Action: "export_customer_data",
			Context: RequestContext{
				Export:       true,
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.ElementsMatch(
			[]string{"mask_personal_data", "redact_sensitive_fields", "audit_export_access"},
			decision.Obligations[ObExportRestrictions],
		)
	})

	s.Run("sensitive personal information requires legal basis", func() {
		resource := Resource{
			Region:       "cebu",
			DataClass:    id.DataClassConfidential,
			ContainsPII:  true,
			DataCategory: id.DataCategorySensitivePersonal,
		}
		req := EvaluateRequest{
			User:     investigatorUser(),
			Resource: resource,
			Action:   "case_view",
		}

		decision, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.Equal([]string{ReasonLegalBasisRequired}, decision.Reasons)

		req.Context.LegalBasis = true
		decision, err = s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Equal(true, decision.Obligations[ObNotifyDPO])
		s.Equal(AuditLevelMaximum, decision.Obligations[ObAuditLevel])
	})
}

// =============================================================================
// Cache behavior
// =============================================================================

func (s *EngineSuite) TestCache() {
	ctx := context.Background()

	s.Run("repeat evaluation is a hit with identical decision", func() {
		req := EvaluateRequest{
			User:     groundOpsUser(),
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		}

		first, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.Equal(false, first.Metadata[MetaCacheHit])

		second, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.Equal(true, second.Metadata[MetaCacheHit])

		s.Equal(first.Effect, second.Effect)
		s.Equal(first.Reasons, second.Reasons)
		s.Equal(first.Obligations, second.Obligations)
	})

	s.Run("changing a decision-relevant input misses", func() {
		user := groundOpsUser()
		base := EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		}
		_, err := s.engine.Evaluate(ctx, base)
		s.Require().NoError(err)

		other := base
		other.Resource.Region = "cebu"
		decision, err := s.engine.Evaluate(ctx, other)
		s.Require().NoError(err)
		s.Equal(false, decision.Metadata[MetaCacheHit])
	})

	s.Run("TTL clamps to MFA freshness window", func() {
		s.cache.entries = map[string]CacheEntry{}
		s.cache.ttls = map[string]time.Duration{}

		_, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User: investigatorUser(),
			Resource: Resource{
				Region:      "cebu",
				DataClass:   id.DataClassConfidential,
				ContainsPII: true,
			},
			Action: "unmask_pii_with_mfa",
			Context: RequestContext{
				// 29m40s into the 30m window: 20s of validity remain,
				// under the configured 60s TTL.
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-29*time.Minute - 40*time.Second),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.Equal(20*time.Second, s.cache.lastTTL())
	})

	s.Run("TTL clamps to nearest grant expiry", func() {
		s.cache.entries = map[string]CacheEntry{}
		s.cache.ttls = map[string]time.Duration{}

		grant := TemporaryAccess{
			ID:             id.NewGrantID(),
			CaseID:         "CASE-SUPPORT-MNL-001",
			GrantedRegions: id.RegionSubset("manila"),
			ExpiresAt:      s.now.Add(30 * time.Second),
			Active:         true,
		}
		_, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(grant),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)
		s.Equal(30*time.Second, s.cache.lastTTL())
	})

	s.Run("a hit still produces a per-access audit record", func() {
		req := EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		}
		_, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.audits.mu.Lock()
		before := len(s.audits.events)
		s.audits.mu.Unlock()

		second, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.Equal(true, second.Metadata[MetaCacheHit])

		s.audits.mu.Lock()
		defer s.audits.mu.Unlock()
		s.Require().Len(s.audits.events, before+1)
		s.Equal("allow", s.audits.events[len(s.audits.events)-1].Decision)
	})

	s.Run("mutating a returned decision does not poison the cache", func() {
		req := EvaluateRequest{
			User:     groundOpsUser(),
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		}
		first, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		first.Obligations["tampered"] = true
		first.Reasons[0] = "tampered"

		second, err := s.engine.Evaluate(ctx, req)
		s.Require().NoError(err)
		s.NotContains(second.Obligations, "tampered")
		s.Equal(ReasonRBACGranted, second.Reasons[0])
	})
}

// =============================================================================
// Audit emission
// =============================================================================

func (s *EngineSuite) TestAuditEmission() {
	ctx := context.Background()

	s.Run("enhanced-audit decisions reach the sink", func() {
		grant := TemporaryAccess{
			ID:             id.NewGrantID(),
			CaseID:         "CASE-SUPPORT-MNL-001",
			GrantedRegions: id.RegionSubset("manila"),
			ExpiresAt:      s.now.Add(4 * time.Hour),
			Active:         true,
		}
		_, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     supportUser(grant),
			Resource: internalResource("manila"),
			Action:   "case_open",
			Context:  RequestContext{CaseID: "CASE-SUPPORT-MNL-001"},
		})
		s.Require().NoError(err)

		s.audits.mu.Lock()
		defer s.audits.mu.Unlock()
		s.Require().NotEmpty(s.audits.events)
		event := s.audits.events[len(s.audits.events)-1]
		s.Equal("allow", event.Decision)
		s.Equal(AuditLevelEnhanced, event.AuditLevel)
		s.Equal(audit.CategoryCompliance, event.Category)
		s.Equal(audit.EventCrossRegionOverride, event.Name)
	})

	s.Run("audit failure never alters the decision", func() {
		s.audits.fail = true
		defer func() { s.audits.fail = false }()

		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
	})
}

// =============================================================================
// Behavioral heuristics via the session oracle
// =============================================================================

func (s *EngineSuite) TestOracleHeuristics() {
	ctx := context.Background()

	s.Run("repeated failures raise flag and risk score without blocking", func() {
		s.oracle.obs = ports.MFAObservation{FailureCount: 4}
		defer func() { s.oracle.obs = ports.MFAObservation{} }()

		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Contains(decision.Obligations[ObSecurityFlags], FlagRepeatedMFAFail)
		s.Equal(80, decision.Metadata[MetaRiskScore])
	})

	s.Run("repeated failures annotate an invalid-method deny", func() {
		s.oracle.obs = ports.MFAObservation{FailureCount: 4}
		defer func() { s.oracle.obs = ports.MFAObservation{} }()

		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    "sms",
			},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Equal([]string{ReasonInvalidMFAMethod}, decision.Reasons)
		s.Contains(decision.Obligations[ObSecurityFlags], FlagRepeatedMFAFail)
		s.Equal(80, decision.Metadata[MetaRiskScore])
	})

	s.Run("repeated failures annotate a missing-MFA deny on the ui channel", func() {
		s.oracle.obs = ports.MFAObservation{FailureCount: 5}
		defer func() { s.oracle.obs = ports.MFAObservation{} }()

		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context:  RequestContext{Channel: id.ChannelUI},
		})
		s.Require().NoError(err)
		s.False(decision.Allowed())
		s.Contains(decision.Obligations[ObSecurityFlags], FlagRepeatedMFAFail)
		s.Equal(100, decision.Metadata[MetaRiskScore])
	})

	s.Run("implausible location change flags review without blocking", func() {
		s.oracle.obs = ports.MFAObservation{
			LastLocation: "Manila, PH",
			LastSeenAt:   s.now.Add(-10 * time.Minute),
		}
		defer func() { s.oracle.obs = ports.MFAObservation{} }()

		decision, err := s.engine.Evaluate(ctx, EvaluateRequest{
			User:     investigatorUser(),
			Resource: Resource{Region: "cebu", DataClass: id.DataClassConfidential, ContainsPII: true},
			Action:   "unmask_pii_with_mfa",
			Context: RequestContext{
				MFAPresent:   true,
				MFATimestamp: s.now.Add(-time.Minute),
				MFAMethod:    id.MFAMethodTOTP,
				GeoLocation:  "Frankfurt, DE",
			},
		})
		s.Require().NoError(err)
		s.True(decision.Allowed())
		s.Contains(decision.Obligations[ObSecurityFlags], FlagSuspiciousGeo)
		s.Equal(true, decision.Obligations[ObRequireSecurityReview])
		s.Equal(true, decision.Obligations[ObNotifySecurityTeam])
	})
}

// =============================================================================
// Concurrency and latency
// =============================================================================

func (s *EngineSuite) TestConcurrentEvaluation() {
	ctx := context.Background()
	req := EvaluateRequest{
		User:     groundOpsUser(),
		Resource: internalResource("manila"),
		Action:   "assign_driver",
	}

	var wg sync.WaitGroup
	results := make([]Decision, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := s.engine.Evaluate(ctx, req)
			s.NoError(err)
			results[i] = decision
		}(i)
	}
	wg.Wait()

	for _, decision := range results {
		s.Equal(EffectAllow, decision.Effect)
		s.Equal([]string{ReasonRBACGranted, ReasonRegionalAccessGranted}, decision.Reasons)
	}
}

func (s *EngineSuite) TestEvaluationLatency() {
	// The pipeline is pure computation plus map lookups; 100 sequential
	// uncached evaluations should clear the 50ms p95 target comfortably.
	engine, err := New(catalog.Default(),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	ctx := context.Background()
	user := groundOpsUser()
	durations := make([]time.Duration, 0, 100)
	for range 100 {
		start := time.Now()
		_, err := engine.Evaluate(ctx, EvaluateRequest{
			User:     user,
			Resource: internalResource("manila"),
			Action:   "assign_driver",
		})
		s.Require().NoError(err)
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := durations[94]
	s.Less(p95, 50*time.Millisecond, "p95 latency %v exceeds target", p95)
}

func BenchmarkEvaluate(b *testing.B) {
	engine, err := New(catalog.Default())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	req := EvaluateRequest{
		User:     groundOpsUser(),
		Resource: internalResource("manila"),
		Action:   "assign_driver",
	}
	b.ResetTimer()
	for range b.N {
		if _, err := engine.Evaluate(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
