package middleware

import (
	"net/http"

	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// OwnIdentityOnly rejects requests whose :telegram_id path parameter does
// not belong to the authenticated Telegram user. Every per-user route is
// guarded by it; there is no admin override in this app.
func OwnIdentityOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		userData, exists := c.Get("telegram_user")
		if !exists {
			log.Error("telegram user data not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		telegramUser, ok := userData.(*auth.TelegramUserData)
		if !ok {
			log.Error("invalid type assertion for telegram user data")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if id := c.Param("telegram_id"); id != "" && id != telegramUser.Identity() {
			log.Info("identity mismatch on per-user route",
				zap.String("path_id", id),
				zap.String("auth_id", telegramUser.Identity()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cannot act on another user"})
			return
		}

		c.Next()
	}
}
