package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"opsgate/internal/authz"
	"opsgate/pkg/testutil"
)

type stubService struct {
	decision authz.Decision
	err      error
	lastReq  authz.EvaluateRequest
}

func (s *stubService) Evaluate(ctx context.Context, req authz.EvaluateRequest) (authz.Decision, error) {
	s.lastReq = req
	if s.err != nil {
		return authz.Decision{}, s.err
	}
	return s.decision, nil
}

type HandlerSuite struct {
	suite.Suite

	service *stubService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{
		decision: authz.Decision{
			Effect:      authz.EffectAllow,
			Reasons:     []string{"All authorization checks passed"},
			Obligations: map[string]any{"auditLevel": "standard"},
			Metadata:    map[string]any{"cacheHit": false},
		},
	}
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) evaluate(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/evaluate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func validBody() string {
	return `{
		"user": {
			"id": "b3d4f8a0-1111-4222-8333-444455556666",
			"roles": [{"role": "ground_ops", "active": true, "regions": ["manila"]}]
		},
		"resource": {"region": "manila", "dataClass": "internal"},
		"action": "assign_driver",
		"context": {"channel": "api"}
	}`
}

// === Evaluation responses ===

func (s *HandlerSuite) TestEvaluateAllow() {
	rec := s.evaluate(validBody())

	s.Equal(http.StatusOK, rec.Code)

	var resp EvaluateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("allow", resp.Decision)
	s.Equal([]string{"All authorization checks passed"}, resp.Reasons)
	s.Equal("standard", resp.Obligations["auditLevel"])
}

func (s *HandlerSuite) TestPolicyDenyIsStillHTTP200() {
	s.service.decision = authz.Decision{
		Effect:      authz.EffectDeny,
		Reasons:     []string{"Regional access denied"},
		Obligations: map[string]any{},
		Metadata:    map[string]any{},
	}

	rec := s.evaluate(validBody())

	s.Equal(http.StatusOK, rec.Code, "a policy denial is an answer, not a transport failure")

	var resp EvaluateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("deny", resp.Decision)
	s.Equal([]string{"Regional access denied"}, resp.Reasons)
}

func (s *HandlerSuite) TestEngineFault() {
	s.service.err = fmt.Errorf("catalog unavailable")

	rec := s.evaluate(validBody())

	s.Equal(http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotContains(resp["error_description"], "catalog", "internal details must not leak")
}

// === Request validation ===

func (s *HandlerSuite) TestMalformedBody() {
	rec := s.evaluate(`{"user": `)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMissingRequiredFields() {
	s.Run("missing action", func() {
		rec := s.evaluate(`{
			"user": {"id": "b3d4f8a0-1111-4222-8333-444455556666"},
			"resource": {"region": "manila", "dataClass": "internal"}
		}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing user id", func() {
		rec := s.evaluate(`{
			"user": {},
			"resource": {"region": "manila", "dataClass": "internal"},
			"action": "assign_driver"
		}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestInvalidUserIDIsRejectedAtTheEdge() {
	rec := s.evaluate(`{
		"user": {"id": "not-a-uuid"},
		"resource": {"region": "manila", "dataClass": "internal"},
		"action": "assign_driver"
	}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestBadRegionReachesTheEngine() {
	// Identifier validity is the engine's concern: a hostile region string
	// must become a deny decision, not a 400.
	rec := s.evaluate(`{
		"user": {
			"id": "b3d4f8a0-1111-4222-8333-444455556666",
			"roles": [{"role": "ground_ops", "active": true, "regions": ["manila"]}]
		},
		"resource": {"region": "manila'; DROP TABLE--", "dataClass": "internal"},
		"action": "assign_driver"
	}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("manila'; DROP TABLE--", string(s.service.lastReq.Resource.Region))
}

// === Region wire convention ===

func (s *HandlerSuite) TestAbsentRegionsMeansGlobal() {
	rec := s.evaluate(`{
		"user": {
			"id": "b3d4f8a0-1111-4222-8333-444455556666",
			"roles": [{"role": "platform_admin", "active": true}]
		},
		"resource": {"region": "manila", "dataClass": "internal"},
		"action": "manage_users"
	}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Require().Len(s.service.lastReq.User.Assignments, 1)
	s.True(s.service.lastReq.User.Assignments[0].Regions.IsGlobal())
}

func (s *HandlerSuite) TestEmptyRegionListMeansGlobal() {
	rec := s.evaluate(`{
		"user": {
			"id": "b3d4f8a0-1111-4222-8333-444455556666",
			"roles": [{"role": "ground_ops", "active": true, "regions": []}]
		},
		"resource": {"region": "manila", "dataClass": "internal"},
		"action": "assign_driver"
	}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Require().Len(s.service.lastReq.User.Assignments, 1)
	s.True(s.service.lastReq.User.Assignments[0].Regions.IsGlobal())
}

// === Client metadata fallback ===

func (s *HandlerSuite) TestIPFallsBackToClientMetadata() {
	body := bytes.NewBufferString(validBody())
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/evaluate", body)
	req = testutil.WithClientMetadata(req, "203.0.113.7", "test-agent")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("203.0.113.7", s.service.lastReq.Context.IPAddress)
}

func (s *HandlerSuite) TestResponseEchoesRequestID() {
	body := bytes.NewBufferString(validBody())
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/evaluate", body)
	req = testutil.WithRequestID(req, "req-0042")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)

	var resp EvaluateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("req-0042", resp.RequestID)
}

func (s *HandlerSuite) TestDeviceIDFallsBackToHeaderContext() {
	body := bytes.NewBufferString(validBody())
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/evaluate", body)
	req = testutil.WithDeviceID(req, "device-7f3a")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("device-7f3a", s.service.lastReq.Context.DeviceID)
}

func (s *HandlerSuite) TestExplicitIPWins() {
	body := `{
		"user": {"id": "b3d4f8a0-1111-4222-8333-444455556666"},
		"resource": {"region": "manila", "dataClass": "internal"},
		"action": "assign_driver",
		"context": {"ipAddress": "198.51.100.4"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/authz/evaluate", bytes.NewBufferString(body))
	req = testutil.WithClientMetadata(req, "203.0.113.7", "test-agent")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("198.51.100.4", s.service.lastReq.Context.IPAddress)
}
