package services

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
)

const (
	maxChatLength  = 500
	maxPayloadSize = 4 << 10
)

var closedToJoin = []lifecycle.SessionStatus{lifecycle.SessionDraft, lifecycle.SessionEnded}

var allowedReactions = map[string]bool{
	"👍": true, "👏": true, "❤️": true, "😂": true, "😮": true, "🎉": true,
}

type ParticipantService struct {
	db    *gorm.DB
	bus   Broadcaster
	locks *SessionLocks
	now   func() time.Time
}

func NewParticipantService(db *gorm.DB, bus Broadcaster, locks *SessionLocks) *ParticipantService {
	return &ParticipantService{db: db, bus: bus, locks: locks, now: time.Now}
}

type JoinResult struct {
	SessionID   uint               `json:"session_id"`
	Participant models.Participant `json:"participant"`
	Token       string             `json:"token"`
	IsRejoin    bool               `json:"is_rejoin"`
}

// ParticipantState is the full state a participant needs after (re)joining.
type ParticipantState struct {
	SessionID         uint                    `json:"session_id"`
	Name              string                  `json:"name"`
	Status            lifecycle.SessionStatus `json:"status"`
	Version           int                     `json:"version"`
	ShowLeaderboard   bool                    `json:"show_leaderboard"`
	EnableChat        bool                    `json:"enable_chat"`
	EnableReactions   bool                    `json:"enable_reactions"`
	CurrentBlockIndex int                     `json:"current_block_index"`
	Blocks            []PublicBlock           `json:"blocks"`
	ParticipantCount  int                     `json:"participant_count"`
	Me                *models.Participant     `json:"me,omitempty"`
	MyResponse        *models.Response        `json:"my_response,omitempty"`
}

type LeaderboardEntry struct {
	Position      int    `json:"position"`
	ParticipantID uint   `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	TotalScore    int    `json:"total_score"`
}

// Join admits a participant by session code. A participant presenting a
// token they already hold for this session rejoins instead. Admission runs
// under the session lock so the seat count and late-join rule see the
// current session.
func (s *ParticipantService) Join(code, sessionKey, displayName, token string) (*JoinResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, newError(ErrInvalidInput, "display name is required")
	}

	var found models.Session
	if err := s.db.Where("session_code = ? AND status NOT IN ?", code, closedToJoin).
		First(&found).Error; err != nil {
		return nil, notFound(err, "session")
	}

	unlock := s.locks.Lock(found.ID)
	defer unlock()

	var (
		result  *JoinResult
		session models.Session
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status NOT IN ?", found.ID, closedToJoin).
			First(&session).Error; err != nil {
			return notFound(err, "session")
		}
		if session.Visibility == models.VisibilityPrivate && sessionKey != session.SessionKey {
			return newError(ErrForbidden, "invalid session key")
		}

		if token != "" {
			var existing models.Participant
			err := tx.Where("session_id = ? AND token = ?", session.ID, token).First(&existing).Error
			if err == nil {
				existing.LeftAt = nil
				existing.DisplayName = displayName
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				result = &JoinResult{SessionID: session.ID, Participant: existing, Token: existing.Token, IsRejoin: true}
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if !session.AllowLateJoin && session.Status != lifecycle.SessionWaiting {
			return newError(ErrConflict, "session is not accepting late joiners")
		}
		if session.MaxParticipants != nil {
			var count int64
			if err := tx.Model(&models.Participant{}).
				Where("session_id = ? AND left_at IS NULL", session.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if int(count) >= *session.MaxParticipants {
				return newError(ErrConflict, "session is full")
			}
		}
		participant := models.Participant{
			SessionID:   session.ID,
			DisplayName: displayName,
			Token:       uuid.NewString(),
			JoinedAt:    s.now(),
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		result = &JoinResult{SessionID: session.ID, Participant: participant, Token: participant.Token}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.IsRejoin {
		s.bus.Publish(session.ID, EventParticipantJoined, result.Participant)
	}
	return result, nil
}

// Authenticate resolves a participant token to its participant.
func (s *ParticipantService) Authenticate(token string) (*models.Participant, error) {
	if token == "" {
		return nil, newError(ErrForbidden, "participant token required")
	}
	var p models.Participant
	if err := s.db.Where("token = ?", token).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrForbidden, "unknown participant token")
		}
		return nil, err
	}
	return &p, nil
}

func (s *ParticipantService) Leave(p *models.Participant) error {
	if p.LeftAt != nil {
		return nil
	}
	now := s.now()
	if err := s.db.Model(p).Update("left_at", &now).Error; err != nil {
		return err
	}
	p.LeftAt = &now
	s.bus.Publish(p.SessionID, EventParticipantLeft, ParticipantLeftEvent{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	})
	return nil
}

// SubmitResponse records an answer to the active block. Resubmitting while
// the block is still active replaces the earlier answer. The status checks
// and the write share the session lock with control actions, so a block
// cannot close between them.
func (s *ParticipantService) SubmitResponse(p *models.Participant, blockID uint, payload json.RawMessage) (*models.Response, error) {
	if p.LeftAt != nil {
		return nil, newError(ErrForbidden, "participant has left the session")
	}
	if len(payload) == 0 || len(payload) > maxPayloadSize {
		return nil, newError(ErrInvalidInput, "payload is missing or too large")
	}

	unlock := s.locks.Lock(p.SessionID)
	defer unlock()

	var (
		resp  models.Response
		count int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.First(&session, p.SessionID).Error; err != nil {
			return notFound(err, "session")
		}
		if session.Status != lifecycle.SessionActive {
			return newError(ErrConflict, "session is not accepting responses")
		}

		var block models.Block
		if err := tx.Where("id = ? AND session_id = ?", blockID, p.SessionID).First(&block).Error; err != nil {
			return notFound(err, "block")
		}
		if block.Status != lifecycle.BlockActive {
			return newError(ErrConflict, "block is not accepting responses")
		}
		if block.DeadlineAt != nil && s.now().After(*block.DeadlineAt) {
			return newError(ErrConflict, "time is up for this block")
		}
		if block.Scored() {
			c, err := parseChoice(block.Content)
			if err != nil {
				return err
			}
			if _, err := parseSelection(datatypes.JSON(payload), len(c.Options)); err != nil {
				return newError(ErrInvalidInput, err.Error())
			}
		}

		resp = models.Response{
			SessionID:     p.SessionID,
			BlockID:       blockID,
			ParticipantID: p.ID,
			Payload:       datatypes.JSON(payload),
			SubmittedAt:   s.now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "block_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "submitted_at"}),
		}).Create(&resp).Error; err != nil {
			return err
		}
		return tx.Model(&models.Response{}).Where("block_id = ?", blockID).Count(&count).Error
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(p.SessionID, EventResponseSubmitted, ResponseEvent{
		BlockID:       blockID,
		ParticipantID: p.ID,
		ResponseCount: int(count),
	})
	return &resp, nil
}

func (s *ParticipantService) SendChat(p *models.Participant, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxChatLength {
		return newError(ErrInvalidInput, "chat message must be 1-500 characters")
	}
	session, err := s.liveSession(p)
	if err != nil {
		return err
	}
	if !session.EnableChat {
		return newError(ErrForbidden, "chat is disabled for this session")
	}
	s.bus.Publish(p.SessionID, EventChatMessage, ChatEvent{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Text:          text,
		SentAt:        s.now(),
	})
	return nil
}

func (s *ParticipantService) SendReaction(p *models.Participant, emoji string) error {
	if !allowedReactions[emoji] {
		return newError(ErrInvalidInput, "unsupported reaction")
	}
	session, err := s.liveSession(p)
	if err != nil {
		return err
	}
	if !session.EnableReactions {
		return newError(ErrForbidden, "reactions are disabled for this session")
	}
	s.bus.Publish(p.SessionID, EventReaction, ReactionEvent{ParticipantID: p.ID, Emoji: emoji})
	return nil
}

func (s *ParticipantService) liveSession(p *models.Participant) (*models.Session, error) {
	if p.LeftAt != nil {
		return nil, newError(ErrForbidden, "participant has left the session")
	}
	var session models.Session
	if err := s.db.First(&session, p.SessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	if session.Status == lifecycle.SessionEnded {
		return nil, newError(ErrConflict, lifecycle.ErrSessionClosed.Error())
	}
	return &session, nil
}

// State builds the participant view of a session. p may be nil for an
// anonymous snapshot.
func (s *ParticipantService) State(sessionID uint, p *models.Participant) (*ParticipantState, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	var blocks []models.Block
	if err := s.db.Where("session_id = ?", sessionID).Order("position ASC").Find(&blocks).Error; err != nil {
		return nil, err
	}

	state := &ParticipantState{
		SessionID:         session.ID,
		Name:              session.Name,
		Status:            session.Status,
		Version:           session.Version,
		ShowLeaderboard:   session.ShowLeaderboard,
		EnableChat:        session.EnableChat,
		EnableReactions:   session.EnableReactions,
		CurrentBlockIndex: session.CurrentBlockIndex,
		Blocks:            make([]PublicBlock, len(blocks)),
		Me:                p,
	}
	for i, b := range blocks {
		state.Blocks[i] = publicBlock(b)
	}

	var count int64
	if err := s.db.Model(&models.Participant{}).Where("session_id = ? AND left_at IS NULL", sessionID).Count(&count).Error; err != nil {
		return nil, err
	}
	state.ParticipantCount = int(count)

	if p != nil {
		for _, b := range blocks {
			if b.Status != lifecycle.BlockActive {
				continue
			}
			var resp models.Response
			if err := s.db.Where("block_id = ? AND participant_id = ?", b.ID, p.ID).First(&resp).Error; err == nil {
				state.MyResponse = &resp
			}
			break
		}
	}
	return state, nil
}

// Leaderboard ranks participants by score. Participants only see it when the
// session shows a leaderboard; presenters pass force.
func (s *ParticipantService) Leaderboard(sessionID uint, force bool) ([]LeaderboardEntry, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	if !force && !session.ShowLeaderboard {
		return nil, newError(ErrForbidden, "leaderboard is hidden for this session")
	}

	var participants []models.Participant
	if err := s.db.Where("session_id = ?", sessionID).
		Order("total_score DESC").Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = LeaderboardEntry{
			Position:      i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			TotalScore:    p.TotalScore,
		}
	}
	return entries, nil
}

// SessionIDByCode resolves a join code for websocket subscriptions.
func (s *ParticipantService) SessionIDByCode(code string) (uint, error) {
	var session models.Session
	if err := s.db.Select("id").Where("session_code = ? AND status != ?", code, lifecycle.SessionEnded).
		Order("created_at DESC").First(&session).Error; err != nil {
		return 0, notFound(err, "session")
	}
	return session.ID, nil
}
