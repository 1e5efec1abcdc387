package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/validation"
)

const maxImportBlocks = 200

// SessionExport is the portable form of a session's blocks.
type SessionExport struct {
	Name   string       `json:"name"`
	Blocks []BlockInput `json:"blocks"`
}

func (s *SessionService) ExportBlocks(sessionID, userID uint) (*SessionExport, error) {
	session, err := s.LoadControllable(sessionID, userID)
	if err != nil {
		return nil, err
	}
	var blocks []models.Block
	if err := s.db.Where("session_id = ?", sessionID).Order("position ASC").Find(&blocks).Error; err != nil {
		return nil, err
	}

	out := &SessionExport{Name: session.Name, Blocks: make([]BlockInput, len(blocks))}
	for i, b := range blocks {
		out.Blocks[i] = BlockInput{
			PluginType: b.PluginType,
			Title:      b.Title,
			Content:    b.Content,
			TimeLimit:  b.TimeLimit,
			Difficulty: b.Difficulty,
		}
	}
	return out, nil
}

// ImportBlocks appends the exported blocks to a draft session. Either every
// block is imported or none is.
func (s *SessionService) ImportBlocks(sessionID, userID uint, data SessionExport) (int, error) {
	if _, err := s.loadDraft(sessionID, userID); err != nil {
		return 0, err
	}
	if len(data.Blocks) == 0 {
		return 0, newError(ErrInvalidInput, "no blocks to import")
	}
	if len(data.Blocks) > maxImportBlocks {
		return 0, newError(ErrInvalidInput, fmt.Sprintf("at most %d blocks can be imported at once", maxImportBlocks))
	}
	for i, in := range data.Blocks {
		if err := s.validator.Struct(in); err != nil {
			if verr, ok := err.(*validation.Error); ok {
				prefixed := make(map[string]string, len(verr.Fields))
				for f, msg := range verr.Fields {
					prefixed[fmt.Sprintf("blocks[%d].%s", i, f)] = msg
				}
				return 0, &validation.Error{Fields: prefixed}
			}
			return 0, err
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Block{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		for i, in := range data.Blocks {
			block := models.Block{
				SessionID: sessionID,
				Position:  int(count) + i,
				Status:    lifecycle.BlockPending,
			}
			applyBlockInput(&block, in)
			if err := tx.Create(&block).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(data.Blocks), nil
}
