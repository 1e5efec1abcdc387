package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/services"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

type ReorderBlocksRequest struct {
	BlockIDs []uint `json:"block_ids" binding:"required,min=1"`
}

type AddEditorRequest struct {
	Email string `json:"email" binding:"required,email" example:"editor@example.com"`
}

// CreateSession godoc
// @Summary      Create a live session
// @Description  Creates a draft session with a generated join code
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Param        request body services.SessionInput true "Session settings"
// @Success      201 {object} services.SessionDetail
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.SessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.sessionService.CreateSession(orgID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions godoc
// @Summary      List organization sessions
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {array} services.SessionSummary
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	sessions, err := h.sessionService.ListSessions(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession godoc
// @Summary      Get a session with its blocks
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Success      200 {object} services.SessionDetail
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.sessionService.GetDetail(sessionID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateSettings godoc
// @Summary      Update session settings
// @Description  Allowed while the session is draft or waiting
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body services.SessionInput true "Session settings"
// @Success      200 {object} services.SessionDetail
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [put]
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.SessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	detail, err := h.sessionService.UpdateSettings(sessionID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// AddBlock godoc
// @Summary      Append a block
// @Tags         blocks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body services.BlockInput true "Block data"
// @Success      201 {object} Block
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/blocks [post]
func (h *SessionHandler) AddBlock(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.BlockInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	block, err := h.sessionService.AddBlock(sessionID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}

// UpdateBlock godoc
// @Summary      Update a block
// @Tags         blocks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        blockId path int true "Block ID"
// @Param        request body services.BlockInput true "Block data"
// @Success      200 {object} Block
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/blocks/{blockId} [put]
func (h *SessionHandler) UpdateBlock(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	blockID, ok := paramID(c, "blockId")
	if !ok {
		return
	}
	var req services.BlockInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	block, err := h.sessionService.UpdateBlock(sessionID, blockID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}

// DeleteBlock godoc
// @Summary      Delete a block
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        blockId path int true "Block ID"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/blocks/{blockId} [delete]
func (h *SessionHandler) DeleteBlock(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	blockID, ok := paramID(c, "blockId")
	if !ok {
		return
	}
	if err := h.sessionService.DeleteBlock(sessionID, blockID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "block deleted"})
}

// ReorderBlocks godoc
// @Summary      Reorder blocks
// @Tags         blocks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body ReorderBlocksRequest true "Every block ID in the new order"
// @Success      200 {array} Block
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/blocks/reorder [put]
func (h *SessionHandler) ReorderBlocks(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ReorderBlocksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	blocks, err := h.sessionService.ReorderBlocks(sessionID, currentUser(c), req.BlockIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blocks)
}

// AddEditor godoc
// @Summary      Add a session editor
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        request body AddEditorRequest true "Editor email"
// @Success      200 {object} models.SessionEditor
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/editors [post]
func (h *SessionHandler) AddEditor(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AddEditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	editor, err := h.sessionService.AddEditor(sessionID, currentUser(c), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, editor)
}

// RemoveEditor godoc
// @Summary      Remove a session editor
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        userId path int true "User ID"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/editors/{userId} [delete]
func (h *SessionHandler) RemoveEditor(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	if err := h.sessionService.RemoveEditor(sessionID, currentUser(c), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "editor removed"})
}
