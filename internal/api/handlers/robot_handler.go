package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "dingbot/internal/api/context"
	"dingbot/internal/engine/dingtalk"
	"dingbot/internal/pkg/errors"
	"dingbot/internal/pkg/validator"
	"dingbot/internal/platform/audit"
	"dingbot/internal/platform/models"
	"dingbot/internal/platform/repositories"
)

// RobotCache is told which robot names changed in the registry.
type RobotCache interface {
	Forget(names ...string)
}

type RobotHandler struct {
	repo  *repositories.RobotRepository
	audit *audit.Logger
	cache RobotCache
}

func NewRobotHandler(repo *repositories.RobotRepository, auditLog *audit.Logger, cache RobotCache) *RobotHandler {
	return &RobotHandler{repo: repo, audit: auditLog, cache: cache}
}

type robotRequest struct {
	Name       *string `json:"name"`
	WebhookURL *string `json:"webhook_url"`
	Secret     *string `json:"secret"`
	Status     *string `json:"status"`
}

func (h *RobotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req robotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	robot := &models.Robot{Status: models.RobotStatusActive}
	if msg := applyRobotRequest(robot, req); msg != "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, msg, nil)
		return
	}
	if robot.Name == "" || robot.WebhookURL == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "name and webhook_url are required", nil)
		return
	}

	if err := h.repo.Create(robot); err != nil {
		h.writeRepoError(w, err)
		return
	}

	log.Info().Str("robot", robot.Name).Str("webhook", dingtalk.MaskURL(robot.WebhookURL)).Msg("robot registered")
	h.record(r, audit.ActionRobotCreate, robot.ID, map[string]interface{}{"name": robot.Name})
	errors.WriteJSON(w, http.StatusCreated, redact(robot))
}

func (h *RobotHandler) List(w http.ResponseWriter, r *http.Request) {
	robots, err := h.repo.List()
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	for _, robot := range robots {
		redact(robot)
	}
	errors.WriteJSON(w, http.StatusOK, robots)
}

func (h *RobotHandler) Get(w http.ResponseWriter, r *http.Request) {
	robot, err := h.repo.GetByID(robotID(r))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, redact(robot))
}

func (h *RobotHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req robotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	robot, err := h.repo.GetByID(robotID(r))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	previousName := robot.Name
	if msg := applyRobotRequest(robot, req); msg != "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, msg, nil)
		return
	}

	if err := h.repo.Update(robot); err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.forget(previousName, robot.Name)
	h.record(r, audit.ActionRobotUpdate, robot.ID, map[string]interface{}{"fields": changedFields(req)})
	errors.WriteJSON(w, http.StatusOK, redact(robot))
}

func (h *RobotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := robotID(r)
	robot, err := h.repo.GetByID(id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	if err := h.repo.Delete(id); err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.forget(robot.Name)
	h.record(r, audit.ActionRobotDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RobotHandler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, repositories.ErrRobotNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Robot not found", nil)
	case stderrors.Is(err, repositories.ErrRobotExists):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("robot registry failure")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal error", nil)
	}
}

// applyRobotRequest copies the set fields and returns a validation message.
func applyRobotRequest(robot *models.Robot, req robotRequest) string {
	if req.Name != nil {
		robot.Name = strings.TrimSpace(*req.Name)
	}
	if req.WebhookURL != nil {
		if err := validator.WebhookURL(*req.WebhookURL); err != nil {
			return err.Error()
		}
		robot.WebhookURL = strings.TrimSpace(*req.WebhookURL)
	}
	if req.Secret != nil {
		robot.Secret = strings.TrimSpace(*req.Secret)
	}
	if req.Status != nil {
		switch *req.Status {
		case models.RobotStatusActive, models.RobotStatusDisabled:
			robot.Status = *req.Status
		default:
			return "status must be active or disabled"
		}
	}
	return ""
}

// changedFields names the fields an update touched; values are left out so
// secrets never reach the audit log.
func changedFields(req robotRequest) []string {
	fields := []string{}
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.WebhookURL != nil {
		fields = append(fields, "webhook_url")
	}
	if req.Secret != nil {
		fields = append(fields, "secret")
	}
	if req.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

func (h *RobotHandler) forget(names ...string) {
	if h.cache != nil {
		h.cache.Forget(names...)
	}
}

func (h *RobotHandler) record(r *http.Request, action, id string, metadata map[string]interface{}) {
	h.audit.Log(r.Context(), &audit.Entry{
		Actor:        actor(r),
		Action:       action,
		ResourceType: audit.ResourceRobot,
		ResourceID:   id,
		Metadata:     metadata,
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

// redact hides the signing secret from API responses.
func redact(robot *models.Robot) *models.Robot {
	robot.Secret = ""
	return robot
}

func robotID(r *http.Request) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName("robot_id")
}
