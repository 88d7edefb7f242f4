package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	apiContext "dingbot/internal/api/context"
	"dingbot/internal/pkg/errors"
	"dingbot/internal/platform/audit"
	"dingbot/internal/platform/auth"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(auditLog *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLog}
}

// List returns recent registry changes, newest first. ?limit caps the page.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.audit.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list audit logs")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal error", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, entries)
}

// actor is the subject of the caller's token.
func actor(r *http.Request) string {
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
		return claims.Subject
	}
	return "unknown"
}
