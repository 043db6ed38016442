package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"opsgate/internal/authz"
	"opsgate/pkg/platform/httputil"
	"opsgate/pkg/platform/middleware/device"
	"opsgate/pkg/platform/middleware/metadata"
	"opsgate/pkg/requestcontext"
)

// Service defines the interface for decision evaluation.
type Service interface {
	Evaluate(ctx context.Context, req authz.EvaluateRequest) (authz.Decision, error)
}

// Handler wires authorization endpoints to the decision service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an authorization handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts authorization endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/authz/evaluate", h.HandleEvaluate)
}

// HandleEvaluate handles POST /v1/authz/evaluate requests.
//
// Policy denials come back 200 with decision=deny: the caller asked a
// question and got an answer. Non-2xx is reserved for malformed requests
// and engine faults.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	domainReq := req.Parsed()
	if domainReq.Context.IPAddress == "" {
		domainReq.Context.IPAddress = metadata.GetClientIP(ctx)
	}
	if domainReq.Context.DeviceID == "" {
		domainReq.Context.DeviceID = device.GetDeviceID(ctx)
	}

	decision, err := h.service.Evaluate(ctx, domainReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "authorization evaluation failed",
			"request_id", requestID,
			"user_id", req.User.ID,
			"action", req.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "authorization evaluated",
		"request_id", requestID,
		"user_id", req.User.ID,
		"action", req.Action,
		"region", req.Resource.Region,
		"decision", string(decision.Effect),
		"reason", decision.Reasons[0],
		"user_agent", metadata.GetUserAgent(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromDecision(decision, requestID))
}
