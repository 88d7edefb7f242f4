package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "dingbot/internal/api/context"
	"dingbot/internal/engine/dingtalk"
	"dingbot/internal/engine/notify"
	"dingbot/internal/pkg/errors"
	"dingbot/internal/pkg/validator"
)

const maxInvocationBytes = 1 << 20

type NotifyHandler struct {
	dispatcher *notify.Dispatcher
}

func NewNotifyHandler(dispatcher *notify.Dispatcher) *NotifyHandler {
	return &NotifyHandler{dispatcher: dispatcher}
}

// Send accepts an invocation for the robot in the path. By default the send
// is queued and 202 is returned; ?sync=true posts inline and reports the
// robot's answer.
func (h *NotifyHandler) Send(w http.ResponseWriter, r *http.Request) {
	robot := ""
	if params, ok := r.Context().Value(apiContext.Params).(httprouter.Params); ok {
		robot = params.ByName("robot")
	}

	var inv dingtalk.Invocation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvocationBytes)).Decode(&inv); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	for _, mobile := range inv.Target {
		if err := validator.Mobile(mobile); err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), map[string]string{"target": mobile})
			return
		}
	}

	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	if sync {
		ack, err := h.dispatcher.Notify(r.Context(), robot, inv)
		if err != nil {
			writeNotifyError(w, err)
			return
		}
		errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "sent",
			"errcode": ack.ErrCode,
			"errmsg":  ack.ErrMsg,
		})
		return
	}

	job, err := h.dispatcher.Enqueue(r.Context(), robot, inv)
	if err != nil {
		writeNotifyError(w, err)
		return
	}

	errors.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"id":     job.ID,
	})
}

func writeNotifyError(w http.ResponseWriter, err error) {
	var remote *dingtalk.RemoteError

	switch {
	case dingtalk.ErrorKind(err) == dingtalk.KindUnsupportedType:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeUnsupportedMessageType, err.Error(), nil)
	case stderrors.Is(err, notify.ErrUnknownRobot), stderrors.Is(err, notify.ErrNoRobot):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, err.Error(), nil)
	case stderrors.Is(err, notify.ErrRobotDisabled):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, err.Error(), nil)
	case stderrors.Is(err, notify.ErrQueueFull), stderrors.Is(err, notify.ErrQueueClosed):
		w.Header().Set("Retry-After", "1")
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeQueueFull, "System busy, please try again later", nil)
	case stderrors.As(err, &remote):
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeDeliveryFailed, err.Error(), map[string]interface{}{
			"kind":    dingtalk.KindRemote,
			"errcode": remote.Code,
			"errmsg":  remote.Message,
		})
	case dingtalk.ErrorKind(err) != dingtalk.KindUnknown:
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeDeliveryFailed, err.Error(), map[string]string{
			"kind": dingtalk.ErrorKind(err),
		})
	default:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to send notification", nil)
	}
}
