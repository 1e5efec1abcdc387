package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/services"
)

type ParticipantHandler struct {
	participants *services.ParticipantService
}

func NewParticipantHandler(participants *services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participants: participants}
}

type JoinRequest struct {
	Code        string `json:"code" binding:"required,len=6" example:"482913"`
	SessionKey  string `json:"session_key" example:"a1b2c3d4"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100" example:"Wanjiru"`
	Token       string `json:"token" example:""`
}

type JoinResponse struct {
	services.JoinResult
	State *services.ParticipantState `json:"state"`
}

type SubmitResponseRequest struct {
	BlockID uint            `json:"block_id" binding:"required" example:"12"`
	Payload json.RawMessage `json:"payload" binding:"required" swaggertype:"object"`
}

type ChatRequest struct {
	Text string `json:"text" binding:"required,max=500" example:"Great question!"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required" example:"👏"`
}

// Join godoc
// @Summary      Join a live session
// @Description  Join by code (and key for private sessions); pass a previous token to rejoin
// @Tags         play
// @Accept       json
// @Produce      json
// @Param        request body JoinRequest true "Join data"
// @Success      200 {object} JoinResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/join [post]
func (h *ParticipantHandler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.participants.Join(req.Code, req.SessionKey, req.DisplayName, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	state, err := h.participants.State(result.SessionID, &result.Participant)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JoinResponse{JoinResult: *result, State: state})
}

// GetState godoc
// @Summary      Participant session state
// @Tags         play
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Success      200 {object} services.ParticipantState
// @Failure      401 {object} ErrorResponse
// @Router       /api/v1/play/state [get]
func (h *ParticipantHandler) GetState(c *gin.Context) {
	p := currentParticipant(c)
	state, err := h.participants.State(p.SessionID, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Leave godoc
// @Summary      Leave the session
// @Tags         play
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Success      200 {object} MessageResponse
// @Router       /api/v1/play/leave [post]
func (h *ParticipantHandler) Leave(c *gin.Context) {
	if err := h.participants.Leave(currentParticipant(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "left session"})
}

// SubmitResponse godoc
// @Summary      Answer the active block
// @Description  Resubmitting while the block is active replaces the earlier answer
// @Tags         play
// @Accept       json
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Param        request body SubmitResponseRequest true "Response"
// @Success      200 {object} models.Response
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/play/responses [post]
func (h *ParticipantHandler) SubmitResponse(c *gin.Context) {
	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.participants.SubmitResponse(currentParticipant(c), req.BlockID, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SendChat godoc
// @Summary      Send a chat message
// @Tags         play
// @Accept       json
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Param        request body ChatRequest true "Message"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/play/chat [post]
func (h *ParticipantHandler) SendChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.participants.SendChat(currentParticipant(c), req.Text); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "sent"})
}

// SendReaction godoc
// @Summary      Send a reaction
// @Tags         play
// @Accept       json
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Param        request body ReactionRequest true "Reaction"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/play/reactions [post]
func (h *ParticipantHandler) SendReaction(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.participants.SendReaction(currentParticipant(c), req.Emoji); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "sent"})
}

// GetLeaderboard godoc
// @Summary      Participant leaderboard
// @Description  Only available when the session shows a leaderboard
// @Tags         play
// @Produce      json
// @Param        X-Participant-Token header string true "Participant token"
// @Success      200 {array} services.LeaderboardEntry
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/play/leaderboard [get]
func (h *ParticipantHandler) GetLeaderboard(c *gin.Context) {
	entries, err := h.participants.Leaderboard(currentParticipant(c).SessionID, false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
