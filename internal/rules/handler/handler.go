package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tokengate/internal/rules"
	"tokengate/pkg/apperrors"
	"tokengate/pkg/httputil"
)

// Service defines the interface for rule management operations.
type Service interface {
	Create(ctx context.Context, rule *rules.Rule) (*rules.Rule, error)
	Update(ctx context.Context, rule *rules.Rule) (*rules.Rule, error)
	Get(ctx context.Context, tag string) (*rules.Rule, error)
	Delete(ctx context.Context, tag string) error
	List(ctx context.Context) ([]*rules.Rule, error)
}

// Handler wires rule management endpoints to the rules service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a rules handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts rule management endpoints on the router. Callers guard the
// router with the admin token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/rules", h.HandleList)
	r.Post("/rules", h.HandleCreate)
	r.Get("/rules/system-tags", h.HandleSystemTags)
	r.Get("/rules/{tag}", h.HandleGet)
	r.Put("/rules/{tag}", h.HandleUpdate)
	r.Delete("/rules/{tag}", h.HandleDelete)
}

// ruleRequest is the wire shape for creating and updating rules.
type ruleRequest struct {
	Tag          string `json:"tag"`
	Enabled      bool   `json:"enabled"`
	Score        int    `json:"score"`
	Action       string `json:"action"`
	ActionToTake string `json:"action_to_take"`
}

// HandleList handles GET /rules requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": list})
}

// HandleCreate handles POST /rules requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decode(ctx, w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, &rules.Rule{
		Tag:          req.Tag,
		Enabled:      req.Enabled,
		Score:        req.Score,
		Action:       req.Action,
		ActionToTake: rules.ActionToTake(req.ActionToTake),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleGet handles GET /rules/{tag} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Get(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleUpdate handles PUT /rules/{tag} requests. The tag in the path wins
// over any tag in the body; rules are renamed by delete-and-create.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decode(ctx, w, r)
	if !ok {
		return
	}

	existing, err := h.service.Get(ctx, chi.URLParam(r, "tag"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	existing.Enabled = req.Enabled
	existing.Score = req.Score
	existing.Action = req.Action
	existing.ActionToTake = rules.ActionToTake(req.ActionToTake)

	updated, err := h.service.Update(ctx, existing)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /rules/{tag} requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "tag")); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSystemTags handles GET /rules/system-tags requests, listing the well-known
// tags administrators can create rules for.
func (h *Handler) HandleSystemTags(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tags": rules.SystemTags})
}

func (h *Handler) decode(ctx context.Context, w http.ResponseWriter, r *http.Request) (ruleRequest, bool) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "undecodable rule payload", "error", err)
		httputil.WriteError(w, apperrors.New(apperrors.CodeInvalidInput, "request body is not valid JSON"))
		return ruleRequest{}, false
	}
	return req, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if apperrors.CodeOf(err) == apperrors.CodeInternal {
		h.logger.ErrorContext(ctx, "rule operation failed", "error", err)
	}
	httputil.WriteError(w, err)
}
