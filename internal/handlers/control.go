package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/services"
)

type ControlHandler struct {
	control      *services.ControlService
	sessions     *services.SessionService
	participants *services.ParticipantService
}

func NewControlHandler(control *services.ControlService, sessions *services.SessionService, participants *services.ParticipantService) *ControlHandler {
	return &ControlHandler{control: control, sessions: sessions, participants: participants}
}

// ControlRequest is the optional body of every control mutation.
type ControlRequest struct {
	ExpectedVersion *int `json:"expected_version" example:"3"`
}

func bindControl(c *gin.Context) (*int, bool) {
	var req ControlRequest
	if c.Request.ContentLength == 0 {
		return nil, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return nil, false
	}
	return req.ExpectedVersion, true
}

type sessionOp func(sessionID, userID uint, expectedVersion *int) (*services.ControlState, error)

func (h *ControlHandler) runSessionOp(c *gin.Context, op sessionOp) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	version, ok := bindControl(c)
	if !ok {
		return
	}
	state, err := op(sessionID, currentUser(c), version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StartSession godoc
// @Summary      Start a session
// @Description  draft to waiting; a waiting session goes active when its first block is activated, and starting it again is a no-op
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/start [post]
func (h *ControlHandler) StartSession(c *gin.Context) {
	h.runSessionOp(c, h.control.StartSession)
}

// PauseSession godoc
// @Summary      Pause a session
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/pause [post]
func (h *ControlHandler) PauseSession(c *gin.Context) {
	h.runSessionOp(c, h.control.PauseSession)
}

// ResumeSession godoc
// @Summary      Resume a paused session
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/resume [post]
func (h *ControlHandler) ResumeSession(c *gin.Context) {
	h.runSessionOp(c, h.control.ResumeSession)
}

// EndSession godoc
// @Summary      End a session
// @Description  Terminal; closes any active block
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/end [post]
func (h *ControlHandler) EndSession(c *gin.Context) {
	h.runSessionOp(c, h.control.EndSession)
}

// BlockAction godoc
// @Summary      Change a block's status
// @Description  action is one of activate, close, skip, complete, reset
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        blockId path int true "Block ID"
// @Param        action path string true "Action"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/blocks/{blockId}/{action} [post]
func (h *ControlHandler) BlockAction(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	blockID, ok := paramID(c, "blockId")
	if !ok {
		return
	}
	action, valid := lifecycle.ParseAction(c.Param("action"))
	if !valid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown block action"})
		return
	}
	version, ok := bindControl(c)
	if !ok {
		return
	}

	state, err := h.control.ApplyBlockAction(sessionID, blockID, currentUser(c), action, version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Navigate godoc
// @Summary      Move the presentation cursor
// @Description  direction is next or previous; moving past either end is a no-op
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        direction path string true "next or previous"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/navigate/{direction} [post]
func (h *ControlHandler) Navigate(c *gin.Context) {
	var forward bool
	switch c.Param("direction") {
	case "next":
		forward = true
	case "previous":
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "direction must be next or previous"})
		return
	}
	h.runSessionOp(c, func(sessionID, userID uint, v *int) (*services.ControlState, error) {
		return h.control.Navigate(sessionID, userID, forward, v)
	})
}

// JumpTo godoc
// @Summary      Move the presentation cursor to a block
// @Description  index is the zero-based block position; jumping to the current block is a no-op
// @Tags         control
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        index path int true "Block position"
// @Param        request body ControlRequest false "Optimistic version"
// @Success      200 {object} services.ControlState
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/jump/{index} [post]
func (h *ControlHandler) JumpTo(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "index must be a non-negative integer"})
		return
	}
	h.runSessionOp(c, func(sessionID, userID uint, v *int) (*services.ControlState, error) {
		return h.control.JumpTo(sessionID, userID, index, v)
	})
}

// GetControl godoc
// @Summary      Control panel snapshot
// @Tags         control
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} services.ControlState
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/control [get]
func (h *ControlHandler) GetControl(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	state, err := h.control.PresenterState(sessionID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetLeaderboard godoc
// @Summary      Presenter leaderboard
// @Description  Always available to presenters regardless of show_leaderboard
// @Tags         control
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {array} services.LeaderboardEntry
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/leaderboard [get]
func (h *ControlHandler) GetLeaderboard(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.sessions.LoadControllable(sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	entries, err := h.participants.Leaderboard(sessionID, true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
