package api

import (
	"net/http"

	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"

	"github.com/gin-gonic/gin"
)

// telegramUser pulls the authenticated Telegram user out of the request
// context populated by the auth middleware.
func telegramUser(c *gin.Context) (*auth.TelegramUserData, bool) {
	log := logger.Logger()

	userData, exists := c.Get("telegram_user")
	if !exists {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	user, ok := userData.(*auth.TelegramUserData)
	if !ok {
		log.Error("invalid type assertion for telegram user data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	return user, true
}

func toUserResponse(user *model.User) UserResponse {
	return UserResponse{
		TelegramID:    user.TelegramID,
		DisplayName:   user.DisplayName,
		XP:            user.XP,
		CurrentStreak: user.CurrentStreak,
		MaxStreak:     user.MaxStreak,
		LastCheckin:   user.LastCheckin,
		ReferralCode:  user.ReferralCode,
	}
}
