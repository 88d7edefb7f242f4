package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"dingbot/internal/engine/notify"
	"dingbot/internal/pkg/errors"
)

type HealthHandler struct {
	db    *sql.DB
	queue notify.Queue
}

func NewHealthHandler(db *sql.DB, queue notify.Queue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.queue != nil {
		if err := h.queue.Ping(ctx); err != nil {
			checks["queue"] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			checks["queue"] = "healthy"
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	errors.WriteJSON(w, statusCode, response)
}
