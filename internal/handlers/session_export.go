package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/services"
)

const maxCSVOptions = 6

var csvHeader = []string{
	"plugin_type", "title", "time_limit", "difficulty",
	"option1", "option2", "option3", "option4", "option5", "option6", "correct",
}

type csvChoice struct {
	Options []string `json:"options"`
	Correct []int    `json:"correct,omitempty"`
}

// ExportSession godoc
// @Summary      Export session blocks
// @Description  Download a session's blocks as JSON (default) or CSV
// @Tags         sessions
// @Produce      json
// @Produce      text/csv
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        format query string false "json or csv"
// @Success      200 {object} services.SessionExport
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/export [get]
func (h *SessionHandler) ExportSession(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	data, err := h.sessionService.ExportBlocks(sessionID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	filename := strings.ReplaceAll(data.Name, " ", "_")

	if c.DefaultQuery("format", "json") == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

		w := csv.NewWriter(c.Writer)
		w.Write(csvHeader)
		for _, b := range data.Blocks {
			w.Write(blockToRow(b))
		}
		w.Flush()
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", filename))
	c.JSON(http.StatusOK, data)
}

func blockToRow(b services.BlockInput) []string {
	row := make([]string, len(csvHeader))
	row[0] = b.PluginType
	row[1] = b.Title
	row[2] = strconv.Itoa(b.TimeLimit)
	row[3] = b.Difficulty

	var content csvChoice
	if len(b.Content) > 0 {
		_ = json.Unmarshal(b.Content, &content)
	}
	for i, opt := range content.Options {
		if i < maxCSVOptions {
			row[4+i] = opt
		}
	}
	correct := make([]string, len(content.Correct))
	for i, idx := range content.Correct {
		correct[i] = strconv.Itoa(idx + 1)
	}
	row[10] = strings.Join(correct, "|")
	return row
}

// ImportSession godoc
// @Summary      Import blocks into a draft session
// @Description  Upload a JSON or CSV file produced by export
// @Tags         sessions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Session ID"
// @Param        file formData file true "Export file (.json or .csv)"
// @Success      200 {object} map[string]int
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/import [post]
func (h *SessionHandler) ImportSession(c *gin.Context) {
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read file"})
		return
	}

	var data services.SessionExport
	if strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		data, err = parseBlocksCSV(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	} else if err := json.Unmarshal(body, &data); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	count, err := h.sessionService.ImportBlocks(sessionID, currentUser(c), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported_blocks": count})
}

func parseBlocksCSV(data []byte) (services.SessionExport, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return services.SessionExport{}, fmt.Errorf("invalid CSV: %w", err)
	}
	if len(records) < 2 {
		return services.SessionExport{}, fmt.Errorf("CSV must have header + at least 1 row")
	}

	var out services.SessionExport
	for n, row := range records[1:] {
		if len(row) < len(csvHeader) {
			return out, fmt.Errorf("row %d: expected %d columns, got %d", n+2, len(csvHeader), len(row))
		}
		block, err := rowToBlock(row)
		if err != nil {
			return out, fmt.Errorf("row %d: %w", n+2, err)
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out, nil
}

func rowToBlock(row []string) (services.BlockInput, error) {
	b := services.BlockInput{
		PluginType: strings.TrimSpace(row[0]),
		Title:      strings.TrimSpace(row[1]),
		Difficulty: strings.TrimSpace(row[3]),
	}
	if s := strings.TrimSpace(row[2]); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			return b, fmt.Errorf("invalid time_limit %q", s)
		}
		b.TimeLimit = limit
	}

	if b.PluginType == models.PluginOpenEnded {
		b.Content = datatypes.JSON(`{}`)
		return b, nil
	}

	var content csvChoice
	for _, opt := range row[4 : 4+maxCSVOptions] {
		if opt = strings.TrimSpace(opt); opt != "" {
			content.Options = append(content.Options, opt)
		}
	}
	if s := strings.TrimSpace(row[10]); s != "" {
		for _, part := range strings.Split(s, "|") {
			idx, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || idx < 1 {
				return b, fmt.Errorf("invalid correct index %q", part)
			}
			content.Correct = append(content.Correct, idx-1)
		}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return b, err
	}
	b.Content = datatypes.JSON(raw)
	return b, nil
}
