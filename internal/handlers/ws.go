package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/services"
	"github.com/gonasi/gonasi-sub007/internal/ws"
)

type WSHandler struct {
	hub          *ws.Hub
	control      *services.ControlService
	sessions     *services.SessionService
	participants *services.ParticipantService
}

func NewWSHandler(hub *ws.Hub, control *services.ControlService, sessions *services.SessionService, participants *services.ParticipantService) *WSHandler {
	return &WSHandler{hub: hub, control: control, sessions: sessions, participants: participants}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PresenterSocket godoc
// @Summary      Presenter event stream
// @Description  Sends a state_sync snapshot, then every session event
// @Tags         websocket
// @Param        id path int true "Session ID"
// @Param        token query string true "Presenter JWT"
// @Router       /ws/sessions/{id} [get]
func (h *WSHandler) PresenterSocket(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.sessions.LoadControllable(sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "error", err)
		return
	}

	client, err := h.hub.Subscribe(sessionID, conn, func() (interface{}, error) {
		return h.control.ControlState(sessionID)
	})
	if err != nil {
		slog.Error("websocket subscribe failed", "session_id", sessionID, "error", err)
		conn.Close()
		return
	}
	defer h.hub.Unsubscribe(client)

	client.ReadLoop(nil)
}

type chatFrame struct {
	Text string `json:"text"`
}

type reactionFrame struct {
	Emoji string `json:"emoji"`
}

// ParticipantSocket godoc
// @Summary      Participant event stream
// @Description  Sends a state_sync snapshot, then every session event; accepts chat_message and reaction frames
// @Tags         websocket
// @Param        code path string true "Session code"
// @Param        token query string true "Participant token"
// @Router       /ws/play/{code} [get]
func (h *WSHandler) ParticipantSocket(c *gin.Context) {
	p := currentParticipant(c)
	sessionID, err := h.participants.SessionIDByCode(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	if sessionID != p.SessionID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "token does not belong to this session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade error", "error", err)
		return
	}

	client, err := h.hub.Subscribe(sessionID, conn, func() (interface{}, error) {
		return h.participants.State(sessionID, p)
	})
	if err != nil {
		slog.Error("websocket subscribe failed", "session_id", sessionID, "error", err)
		conn.Close()
		return
	}
	defer h.hub.Unsubscribe(client)

	client.ReadLoop(func(msg ws.Inbound) {
		h.handleParticipantFrame(p, msg)
	})
}

func (h *WSHandler) handleParticipantFrame(p *models.Participant, msg ws.Inbound) {
	var err error
	switch msg.Type {
	case services.EventChatMessage:
		var f chatFrame
		if err = json.Unmarshal(msg.Data, &f); err == nil {
			err = h.participants.SendChat(p, f.Text)
		}
	case services.EventReaction:
		var f reactionFrame
		if err = json.Unmarshal(msg.Data, &f); err == nil {
			err = h.participants.SendReaction(p, f.Emoji)
		}
	default:
		return
	}
	if err != nil {
		slog.Debug("participant frame rejected", "participant_id", p.ID, "type", msg.Type, "error", err)
	}
}
