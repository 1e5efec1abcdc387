package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/validation"
)

type SessionService struct {
	db        *gorm.DB
	orgs      *OrganizationService
	validator *validation.Validator
	locks     *SessionLocks
}

func NewSessionService(db *gorm.DB, orgs *OrganizationService, v *validation.Validator, locks *SessionLocks) *SessionService {
	v.RegisterStructRule(sessionInputRules, map[string]string{
		"key_not_private": "{0} can only be set on private sessions",
	}, SessionInput{})
	v.RegisterStructRule(blockInputRules, map[string]string{
		"choice_content": "{0} needs options and at least one valid correct index",
	}, BlockInput{})
	return &SessionService{db: db, orgs: orgs, validator: v, locks: locks}
}

type SessionInput struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Visibility           string `json:"visibility" validate:"omitempty,oneof=public unlisted private"`
	SessionKey           string `json:"session_key" validate:"omitempty,min=4,max=64"`
	MaxParticipants      *int   `json:"max_participants" validate:"omitempty,min=1,max=1000"`
	AllowLateJoin        bool   `json:"allow_late_join"`
	ShowLeaderboard      bool   `json:"show_leaderboard"`
	EnableChat           bool   `json:"enable_chat"`
	EnableReactions      bool   `json:"enable_reactions"`
	TimeLimitPerQuestion *int   `json:"time_limit_per_question" validate:"omitempty,min=1,max=600"`
}

func sessionInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(SessionInput)
	if in.SessionKey != "" && in.Visibility != models.VisibilityPrivate {
		sl.ReportError(in.SessionKey, "session_key", "SessionKey", "key_not_private", "")
	}
}

type BlockInput struct {
	PluginType string         `json:"plugin_type" validate:"required,oneof=multiple_choice true_false poll open_ended"`
	Title      string         `json:"title" validate:"max=255"`
	Content    datatypes.JSON `json:"content" swaggertype:"object"`
	TimeLimit  int            `json:"time_limit" validate:"min=0,max=600"`
	Difficulty string         `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

func blockInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(BlockInput)
	if in.PluginType != models.PluginMultipleChoice && in.PluginType != models.PluginTrueFalse {
		return
	}
	if _, err := parseChoice(in.Content); err != nil {
		sl.ReportError(in.Content, "content", "Content", "choice_content", "")
	}
}

type SessionSummary struct {
	ID               uint                    `json:"id"`
	Name             string                  `json:"name"`
	SessionCode      string                  `json:"session_code"`
	Status           lifecycle.SessionStatus `json:"status"`
	Visibility       string                  `json:"visibility"`
	BlockCount       int                     `json:"block_count"`
	ParticipantCount int                     `json:"participant_count"`
	CreatedAt        time.Time               `json:"created_at"`
}

// SessionDetail is what presenters see; it includes the private key.
type SessionDetail struct {
	models.Session
	SessionKey string `json:"session_key,omitempty"`
}

func (s *SessionService) CreateSession(orgID, userID uint, in SessionInput) (*SessionDetail, error) {
	if _, err := s.orgs.requireRole(orgID, userID, models.RoleOwner, models.RoleAdmin, models.RoleEditor); err != nil {
		return nil, err
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	code, err := s.generateUniqueCode()
	if err != nil {
		return nil, err
	}
	session := models.Session{
		OrganizationID: orgID,
		CreatedBy:      userID,
		SessionCode:    code,
		Status:         lifecycle.SessionDraft,
	}
	applySessionInput(&session, in)

	if err := s.db.Create(&session).Error; err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, SessionKey: session.SessionKey}, nil
}

func applySessionInput(session *models.Session, in SessionInput) {
	session.Name = in.Name
	session.Visibility = in.Visibility
	session.MaxParticipants = in.MaxParticipants
	session.AllowLateJoin = in.AllowLateJoin
	session.ShowLeaderboard = in.ShowLeaderboard
	session.EnableChat = in.EnableChat
	session.EnableReactions = in.EnableReactions
	session.TimeLimitPerQuestion = in.TimeLimitPerQuestion

	switch {
	case in.Visibility != models.VisibilityPrivate:
		session.SessionKey = ""
	case in.SessionKey != "":
		session.SessionKey = in.SessionKey
	case session.SessionKey == "":
		session.SessionKey = uuid.NewString()[:8]
	}
}

// UpdateSettings changes configuration before the session goes live. Only
// the settings columns are written, and only if no control action bumped the
// version since the session was read.
func (s *SessionService) UpdateSettings(sessionID, userID uint, in SessionInput) (*SessionDetail, error) {
	if _, err := s.LoadControllable(sessionID, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.First(&session, sessionID).Error; err != nil {
			return notFound(err, "session")
		}
		if session.Status != lifecycle.SessionDraft && session.Status != lifecycle.SessionWaiting {
			return newError(ErrConflict, "settings can only change before the session is live")
		}
		if in.Visibility == "" {
			in.Visibility = session.Visibility
		}
		if err := s.validator.Struct(in); err != nil {
			return err
		}

		oldVersion := session.Version
		applySessionInput(&session, in)
		session.Version = oldVersion + 1
		session.UpdatedAt = time.Now()
		res := tx.Model(&models.Session{}).
			Where("id = ? AND version = ?", sessionID, oldVersion).
			Select("name", "visibility", "session_key", "max_participants", "allow_late_join",
				"show_leaderboard", "enable_chat", "enable_reactions", "time_limit_per_question",
				"version", "updated_at").
			Updates(&session)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrConflict, "session was modified concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDetail(sessionID, userID)
}

// LoadControllable loads a session and checks that userID may control it.
func (s *SessionService) LoadControllable(sessionID, userID uint) (*models.Session, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	ok, err := s.orgs.CanControlSession(userID, &session)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrForbidden, "you cannot manage this session")
	}
	return &session, nil
}

func (s *SessionService) GetDetail(sessionID, userID uint) (*SessionDetail, error) {
	if _, err := s.LoadControllable(sessionID, userID); err != nil {
		return nil, err
	}
	var session models.Session
	err := s.db.Preload("Blocks", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("Editors").First(&session, sessionID).Error
	if err != nil {
		return nil, notFound(err, "session")
	}
	return &SessionDetail{Session: session, SessionKey: session.SessionKey}, nil
}

func (s *SessionService) ListSessions(orgID, userID uint) ([]SessionSummary, error) {
	if _, err := s.orgs.requireRole(orgID, userID); err != nil {
		return nil, err
	}

	var sessions []models.Session
	if err := s.db.Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	result := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		var blockCount, participantCount int64
		if err := s.db.Model(&models.Block{}).Where("session_id = ?", sess.ID).Count(&blockCount).Error; err != nil {
			return nil, err
		}
		if err := s.db.Model(&models.Participant{}).Where("session_id = ? AND left_at IS NULL", sess.ID).Count(&participantCount).Error; err != nil {
			return nil, err
		}

		result[i] = SessionSummary{
			ID:               sess.ID,
			Name:             sess.Name,
			SessionCode:      sess.SessionCode,
			Status:           sess.Status,
			Visibility:       sess.Visibility,
			BlockCount:       int(blockCount),
			ParticipantCount: int(participantCount),
			CreatedAt:        sess.CreatedAt,
		}
	}
	return result, nil
}

func (s *SessionService) loadDraft(sessionID, userID uint) (*models.Session, error) {
	session, err := s.LoadControllable(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanAuthor(session.Status); err != nil {
		return nil, newError(ErrConflict, err.Error())
	}
	return session, nil
}

func (s *SessionService) AddBlock(sessionID, userID uint, in BlockInput) (*models.Block, error) {
	if _, err := s.loadDraft(sessionID, userID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.Block{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return nil, err
	}

	block := models.Block{
		SessionID: sessionID,
		Position:  int(count),
		Status:    lifecycle.BlockPending,
	}
	applyBlockInput(&block, in)
	if err := s.db.Create(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func applyBlockInput(block *models.Block, in BlockInput) {
	block.PluginType = in.PluginType
	block.Title = in.Title
	block.Content = in.Content
	block.TimeLimit = in.TimeLimit
	block.Difficulty = in.Difficulty
	if block.Difficulty == "" {
		block.Difficulty = models.DifficultyMedium
	}
}

func (s *SessionService) UpdateBlock(sessionID, blockID, userID uint, in BlockInput) (*models.Block, error) {
	if _, err := s.loadDraft(sessionID, userID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var block models.Block
	if err := s.db.Where("id = ? AND session_id = ?", blockID, sessionID).First(&block).Error; err != nil {
		return nil, notFound(err, "block")
	}
	applyBlockInput(&block, in)
	if err := s.db.Save(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

// DeleteBlock removes a block from a draft session and closes the gap in
// positions.
func (s *SessionService) DeleteBlock(sessionID, blockID, userID uint) error {
	if _, err := s.loadDraft(sessionID, userID); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var block models.Block
		if err := tx.Where("id = ? AND session_id = ?", blockID, sessionID).First(&block).Error; err != nil {
			return notFound(err, "block")
		}
		if err := tx.Delete(&block).Error; err != nil {
			return err
		}
		var rest []models.Block
		if err := tx.Where("session_id = ?", sessionID).Order("position ASC").Find(&rest).Error; err != nil {
			return err
		}
		ids := make([]uint, len(rest))
		for i, b := range rest {
			ids[i] = b.ID
		}
		return renumber(tx, sessionID, ids)
	})
}

// ReorderBlocks sets the order of a draft session's blocks. blockIDs must
// name every block exactly once.
func (s *SessionService) ReorderBlocks(sessionID, userID uint, blockIDs []uint) ([]models.Block, error) {
	if _, err := s.loadDraft(sessionID, userID); err != nil {
		return nil, err
	}

	var blocks []models.Block
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing []models.Block
		if err := tx.Where("session_id = ?", sessionID).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) != len(blockIDs) {
			return newError(ErrInvalidInput, "block_ids must list every block in the session")
		}
		known := make(map[uint]bool, len(existing))
		for _, b := range existing {
			known[b.ID] = true
		}
		for _, id := range blockIDs {
			if !known[id] {
				return newError(ErrInvalidInput, fmt.Sprintf("block %d is not in this session or is repeated", id))
			}
			delete(known, id)
		}
		if err := renumber(tx, sessionID, blockIDs); err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Order("position ASC").Find(&blocks).Error
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// renumber assigns positions 0..n-1 in the given order. Positions are unique
// per session, so blocks are first parked on negative positions.
func renumber(tx *gorm.DB, sessionID uint, ids []uint) error {
	for i, id := range ids {
		if err := tx.Model(&models.Block{}).Where("id = ? AND session_id = ?", id, sessionID).
			Update("position", -(i + 1)).Error; err != nil {
			return err
		}
	}
	for i, id := range ids {
		if err := tx.Model(&models.Block{}).Where("id = ? AND session_id = ?", id, sessionID).
			Update("position", i).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) AddEditor(sessionID, actorID uint, email string) (*models.SessionEditor, error) {
	session, err := s.LoadControllable(sessionID, actorID)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	if _, err := s.orgs.MemberRole(session.OrganizationID, user.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrInvalidInput, "editors must belong to the session's organization")
		}
		return nil, err
	}

	editor := models.SessionEditor{SessionID: sessionID, UserID: user.ID}
	if err := s.db.Where(editor).FirstOrCreate(&editor).Error; err != nil {
		return nil, err
	}
	return &editor, nil
}

func (s *SessionService) RemoveEditor(sessionID, actorID, userID uint) error {
	if _, err := s.LoadControllable(sessionID, actorID); err != nil {
		return err
	}
	res := s.db.Where("session_id = ? AND user_id = ?", sessionID, userID).Delete(&models.SessionEditor{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(ErrNotFound, "editor not found")
	}
	return nil
}

func (s *SessionService) generateUniqueCode() (string, error) {
	for {
		code := fmt.Sprintf("%06d", rand.Intn(1000000))
		var count int64
		if err := s.db.Model(&models.Session{}).
			Where("session_code = ? AND status != ?", code, lifecycle.SessionEnded).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}
