package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/models"
)

// stopTimeout bounds how long DELETE ?force=true waits for running jobs
const stopTimeout = 10 * time.Second

// GroupHandler handles group-related API requests
type GroupHandler struct {
	groups GroupService
	logger arbor.ILogger
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groups GroupService, logger arbor.ILogger) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		logger: logger,
	}
}

// ListGroupsHandler returns every group
// GET /api/groups
func (h *GroupHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"groups": h.groups.Groups(),
	})
}

// CreateGroupHandler creates a group and queues its jobs
// POST /api/groups
func (h *GroupHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	detail, err := h.groups.CreateGroup(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("group_id", detail.Group.ID).
		Int("jobs", len(detail.Jobs)).
		Msg("Group created via API")
	WriteJSON(w, http.StatusCreated, detail)
}

// GetGroupHandler returns a group with its jobs
// GET /api/groups/{id}
func (h *GroupHandler) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := groupID(w, r)
	if !ok {
		return
	}

	detail, err := h.groups.GroupDetail(id)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// DeleteGroupHandler removes a terminal group. With ?force=true the group is
// cancelled first and removed once its jobs have stopped.
// DELETE /api/groups/{id}
func (h *GroupHandler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := groupID(w, r)
	if !ok {
		return
	}

	var (
		group models.Group
		err   error
	)
	if GetBoolParam(r, "force") {
		ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
		defer cancel()
		group, err = h.groups.StopGroup(ctx, id)
	} else {
		group, err = h.groups.RemoveGroup(r.Context(), id)
	}
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, group)
}

// GroupActionHandler applies pause, resume or cancel to a group and its jobs
// POST /api/groups/{id}/{action}
func (h *GroupHandler) GroupActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	segments := PathSegments(r.URL.Path, "/api/groups/")
	if len(segments) != 2 {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	var action func(context.Context, string) (models.Group, error)
	switch segments[1] {
	case "pause":
		action = h.groups.PauseGroup
	case "resume":
		action = h.groups.ResumeGroup
	case "cancel":
		action = h.groups.CancelGroup
	default:
		WriteError(w, http.StatusNotFound, "Unknown action: "+segments[1])
		return
	}

	group, err := action(r.Context(), segments[0])
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, group)
}

func groupID(w http.ResponseWriter, r *http.Request) (string, bool) {
	segments := PathSegments(r.URL.Path, "/api/groups/")
	if len(segments) != 1 {
		WriteError(w, http.StatusNotFound, "Not found")
		return "", false
	}
	return segments[0], true
}
