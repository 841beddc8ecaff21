package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"neon_checkin_miniapp/internal/middleware"
	"neon_checkin_miniapp/internal/service"
	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type userRoutes struct {
	us service.UserServiceI
	a  *auth.TelegramAuth
}

func NewUserRoutes(handler *gin.RouterGroup, us service.UserServiceI, a *auth.TelegramAuth) {
	r := &userRoutes{us: us, a: a}
	h := handler.Group("/users")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("/", r.RegisterUser)
		h.GET("/leaderboard", r.GetLeaderboard)
		h.GET("/:telegram_id", middleware.OwnIdentityOnly(), r.GetUser)
		h.GET("/:telegram_id/avatar", middleware.OwnIdentityOnly(), r.GetUserAvatar)
	}
}

type UserResponse struct {
	TelegramID    string     `json:"telegram_id"`
	DisplayName   string     `json:"display_name"`
	XP            int        `json:"xp"`
	CurrentStreak int        `json:"current_streak"`
	MaxStreak     int        `json:"max_streak"`
	LastCheckin   *time.Time `json:"last_checkin,omitempty"`
	ReferralCode  *string    `json:"referral_code,omitempty"`
}

// RegisterUser resolves (or creates on first sight) the profile of the
// authenticated user. The identity and display name come from the
// validated init data, never from the request body.
func (r *userRoutes) RegisterUser(c *gin.Context) {
	log := logger.Logger()

	user, ok := telegramUser(c)
	if !ok {
		return
	}

	profile, err := r.us.GetOrCreate(c.Request.Context(), user.Identity(), service.ProfileHints{
		DisplayName: user.DisplayName(),
	})
	if err != nil {
		log.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to register user, try again later"})
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(profile))
}

func (r *userRoutes) GetUser(c *gin.Context) {
	log := logger.Logger()

	profile, err := r.us.Get(c.Request.Context(), c.Param("telegram_id"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided telegram_id"})
			return
		}
		log.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load profile, try again later"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(profile))
}

type leaderboardEntry struct {
	DisplayName   string `json:"display_name"`
	XP            int    `json:"xp"`
	CurrentStreak int    `json:"current_streak"`
	MaxStreak     int    `json:"max_streak"`
}

func (r *userRoutes) GetLeaderboard(c *gin.Context) {
	log := logger.Logger()

	users, err := r.us.Leaderboard(c.Request.Context())
	if err != nil {
		log.Error("failed to get leaderboard", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load leaderboard"})
		return
	}

	out := make([]leaderboardEntry, len(users))
	for i, user := range users {
		out[i] = leaderboardEntry{
			DisplayName:   user.DisplayName,
			XP:            user.XP,
			CurrentStreak: user.CurrentStreak,
			MaxStreak:     user.MaxStreak,
		}
	}

	c.JSON(http.StatusOK, out)
}

func (r *userRoutes) GetUserAvatar(c *gin.Context) {
	log := logger.Logger()

	user, ok := telegramUser(c)
	if !ok {
		return
	}

	avatarFilePath, err := r.getUserAvatarURL(user.ID)
	if err != nil {
		log.Error("failed to get user avatar",
			zap.Error(err),
			zap.Int64("telegram_id", user.ID))
		c.JSON(http.StatusNotFound, gin.H{"error": "no avatar found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"avatar_file_path": avatarFilePath,
	})
}

func (r *userRoutes) getUserAvatarURL(userID int64) (string, error) {
	bot, err := tgbotapi.NewBotAPI(r.a.GetBotToken())
	if err != nil {
		return "", fmt.Errorf("failed to initialize bot: %w", err)
	}

	photos, err := bot.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get user photos: %w", err)
	}

	if len(photos.Photos) == 0 {
		return "", fmt.Errorf("no photo found")
	}

	file, err := bot.GetFile(tgbotapi.FileConfig{
		FileID: photos.Photos[0][0].FileID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", err)
	}

	return file.FilePath, nil
}
