package services

import (
	"encoding/json"
	"errors"
	"sort"

	"gorm.io/datatypes"

	"github.com/gonasi/gonasi-sub007/internal/models"
)

// choiceContent is the content of multiple_choice and true_false blocks.
type choiceContent struct {
	Options []string `json:"options"`
	Correct []int    `json:"correct"`
}

// choicePayload is a participant's answer to a choice block.
type choicePayload struct {
	Selected []int `json:"selected"`
}

func parseChoice(raw datatypes.JSON) (choiceContent, error) {
	var c choiceContent
	if len(raw) == 0 {
		return c, errors.New("content is empty")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, err
	}
	if len(c.Options) < 2 || len(c.Correct) == 0 {
		return c, errors.New("choice content needs options and a correct answer")
	}
	for _, idx := range c.Correct {
		if idx < 0 || idx >= len(c.Options) {
			return c, errors.New("correct index out of range")
		}
	}
	return c, nil
}

func parseSelection(raw datatypes.JSON, options int) ([]int, error) {
	var p choicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Selected) == 0 {
		return nil, errors.New("selected is required")
	}
	for _, idx := range p.Selected {
		if idx < 0 || idx >= options {
			return nil, errors.New("selected option out of range")
		}
	}
	return p.Selected, nil
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

type ScoringService struct{}

func NewScoringService() *ScoringService {
	return &ScoringService{}
}

// CalculateScores scores responses to a closed block. Correct answers earn
// 100 plus a speed bonus by submission order among correct answers; wrong
// answers and unscored plugins earn nothing.
func (s *ScoringService) CalculateScores(block models.Block, responses []models.Response, totalParticipants int) []models.Response {
	if len(responses) == 0 {
		return responses
	}

	sort.Slice(responses, func(a, b int) bool {
		return responses[a].SubmittedAt.Before(responses[b].SubmittedAt)
	})

	if !block.Scored() {
		for i := range responses {
			responses[i].IsCorrect = false
			responses[i].Score = 0
		}
		return responses
	}

	content, err := parseChoice(block.Content)
	if err != nil {
		return responses
	}

	maxBonus := totalParticipants * 10
	if maxBonus < 10 {
		maxBonus = 10
	}
	step := 10

	rank := 0
	for i := range responses {
		selected, err := parseSelection(responses[i].Payload, len(content.Options))
		responses[i].IsCorrect = err == nil && sameSet(selected, content.Correct)
		if !responses[i].IsCorrect {
			responses[i].Score = 0
			continue
		}
		rank++
		speedBonus := maxBonus - (rank-1)*step
		if speedBonus < 10 {
			speedBonus = 10
		}
		responses[i].Score = 100 + speedBonus
	}

	return responses
}
