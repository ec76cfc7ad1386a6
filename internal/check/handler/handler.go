package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tokengate/internal/captcha"
	"tokengate/internal/check"
	"tokengate/pkg/apperrors"
	"tokengate/pkg/httputil"
)

// SessionCookie names the cookie carrying the client's session id. The stash
// of the last verification summary is keyed by it.
const SessionCookie = "tokengate_session"

// Service defines the interface for validation operations.
type Service interface {
	Validate(ctx context.Context, req check.Request) (*check.Decision, error)
}

// Handler exposes the token check endpoint.
type Handler struct {
	service        Service
	enabled        bool
	trustedProxies []string
	logger         *slog.Logger
}

// New constructs a check handler. enabled gates the whole endpoint; a
// disabled deployment answers every check with a 400 rather than verifying.
func New(service Service, enabled bool, trustedProxies []string, logger *slog.Logger) *Handler {
	return &Handler{
		service:        service,
		enabled:        enabled,
		trustedProxies: trustedProxies,
		logger:         logger,
	}
}

// Register mounts the check endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleIndex)
	r.Post("/check", h.HandleCheck)
}

// checkResponse is the wire shape of a check result.
type checkResponse struct {
	Result     string   `json:"result"`
	Threshold  *float64 `json:"threshold"`
	Score      *float64 `json:"score"`
	ErrorCodes []string `json:"errorcodes"`
}

func emptyFail() checkResponse {
	return checkResponse{Result: "FAIL", ErrorCodes: []string{}}
}

// HandleIndex answers bare requests with a 403; only the check action is
// served.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusForbidden, map[string]string{"result": "FAIL"})
}

// HandleCheck handles POST /check requests. The token field is required; the
// action field enables response-action matching; the score field overrides
// the configured default threshold for this call only.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.PostFormValue("token")
	if !h.enabled || token == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, emptyFail())
		return
	}

	var score *float64
	if raw := r.PostFormValue("score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, emptyFail())
			return
		}
		score = &parsed
	}

	req := check.Request{
		Token:     token,
		Tag:       r.PostFormValue("tag"),
		Action:    r.PostFormValue("action"),
		Score:     score,
		RemoteIP:  captcha.ResolveClientIP(r, h.trustedProxies),
		SessionID: sessionID(r),
	}

	decision, err := h.service.Validate(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	status := http.StatusBadRequest
	result := "FAIL"
	if decision.Allowed {
		status = http.StatusOK
		result = "OK"
	}
	threshold := decision.Threshold
	httputil.WriteJSON(w, status, checkResponse{
		Result:     result,
		Threshold:  &threshold,
		Score:      decision.Score,
		ErrorCodes: decision.ErrorCodes,
	})
}

// writeError maps infrastructure failures: bad caller input is a 400,
// everything else is a 500 with the diagnostic message in a header so
// operators can see it without it leaking into the response body.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.ErrorContext(ctx, "token check failed", "error", err)

	if apperrors.CodeOf(err) == apperrors.CodeInvalidInput {
		httputil.WriteJSON(w, http.StatusBadRequest, emptyFail())
		return
	}
	w.Header().Set("X-Error-Message", err.Error())
	httputil.WriteJSON(w, http.StatusInternalServerError, emptyFail())
}

func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
