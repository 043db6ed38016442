package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "opsgate/pkg/domain-errors"
	"opsgate/pkg/platform/httputil"
	"opsgate/pkg/requestcontext"
)

// Handler exposes role catalog management under /v1/admin. Mount it behind
// the admin-token middleware: these routes change authorization behavior for
// every caller.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts catalog management endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/admin/roles", h.HandleListRoles)
	r.Put("/v1/admin/roles", h.HandleReplaceRoles)
}

// HandleListRoles handles GET /v1/admin/roles.
func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"roles": h.service.Roles(r.Context()),
	})
}

// HandleReplaceRoles handles PUT /v1/admin/roles. The body is the complete
// new role set; there is no per-role patching.
func (h *Handler) HandleReplaceRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Roles []RoleDefinition `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	if err := h.service.ReplaceRoles(ctx, body.Roles); err != nil {
		h.logger.WarnContext(ctx, "catalog replace rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"roles": h.service.Roles(ctx),
	})
}
