package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/models"
)

// ControlHandler applies pause, resume or cancel to every group
type ControlHandler struct {
	control ControlService
	logger  arbor.ILogger
}

// NewControlHandler creates a new control handler
func NewControlHandler(control ControlService, logger arbor.ILogger) *ControlHandler {
	return &ControlHandler{
		control: control,
		logger:  logger,
	}
}

// PauseAllHandler pauses every non-terminal group
// POST /api/control/pause
func (h *ControlHandler) PauseAllHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "pause", h.control.PauseAll)
}

// ResumeAllHandler resumes every non-terminal group
// POST /api/control/resume
func (h *ControlHandler) ResumeAllHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "resume", h.control.ResumeAll)
}

// CancelAllHandler cancels every non-terminal group
// POST /api/control/cancel
func (h *ControlHandler) CancelAllHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "cancel", h.control.CancelAll)
}

func (h *ControlHandler) apply(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context) []models.Group) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	groups := fn(r.Context())
	if groups == nil {
		groups = []models.Group{}
	}

	h.logger.Info().Str("action", action).Int("groups", len(groups)).Msg("Control action applied to all groups")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"action": action,
		"groups": groups,
	})
}
