package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/middleware"
	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/services"
	"github.com/gonasi/gonasi-sub007/internal/validation"
)

type ErrorResponse struct {
	Error  string            `json:"error" example:"something went wrong"`
	Fields map[string]string `json:"fields,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message" example:"operation successful"`
}

// Type aliases so swag can resolve models in annotations.
type Session = models.Session
type Block = models.Block
type Participant = models.Participant
type Organization = models.Organization

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// paramID parses a numeric path parameter, writing a 400 when it is invalid.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) uint {
	return c.GetUint(middleware.UserIDKey)
}

func currentParticipant(c *gin.Context) *models.Participant {
	p, _ := c.MustGet(middleware.ParticipantKey).(*models.Participant)
	return p
}
