package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/services"
)

const (
	UserIDKey      = "user_id"
	ParticipantKey = "participant"

	participantHeader = "X-Participant-Token"
)

// JWTAuth authenticates presenters by bearer token. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func JWTAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		userID, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// ParticipantAuth resolves the participant token issued on join.
func ParticipantAuth(participants *services.ParticipantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(participantHeader)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "participant token required"})
			return
		}

		p, err := participants.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid participant token"})
			return
		}

		c.Set(ParticipantKey, p)
		c.Next()
	}
}
