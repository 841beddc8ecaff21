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
)

type checkinRoutes struct {
	cs  service.CheckinServiceI
	a   *auth.TelegramAuth
	hub *EventHub
}

func NewCheckinRoutes(handler *gin.RouterGroup, cs service.CheckinServiceI, a *auth.TelegramAuth, hub *EventHub) {
	r := &checkinRoutes{cs: cs, a: a, hub: hub}
	h := handler.Group("/checkin")
	h.Use(a.TelegramAuthMiddleware())
	h.Use(middleware.OwnIdentityOnly())
	{
		h.GET("/:telegram_id", r.GetCheckinStatus)
		h.GET("/:telegram_id/history", r.GetCheckinHistory)
		h.POST("/:telegram_id", r.PerformCheckin)
	}
}

type DayRewardResponse struct {
	Day    int `json:"day"`
	Reward int `json:"reward"`
}

type CheckinStatusResponse struct {
	UserTelegramID string              `json:"user_telegram_id"`
	CanCheckin     bool                `json:"can_checkin"`
	CurrentStreak  int                 `json:"current_streak"`
	MaxStreak      int                 `json:"max_streak"`
	LastCheckin    *time.Time          `json:"last_checkin,omitempty"`
	RecentStreaks  []int               `json:"recent_streaks"`
	DailyRewards   []DayRewardResponse `json:"daily_rewards"`
}

func (r *checkinRoutes) GetCheckinStatus(c *gin.Context) {
	log := logger.Logger()

	status, err := r.cs.Status(c.Request.Context(), c.Param("telegram_id"))
	if err != nil {
		log.Error("failed to get checkin status", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load checkin status, try again later"})
		return
	}

	rewards := make([]DayRewardResponse, len(status.DailyRewards))
	for i, reward := range status.DailyRewards {
		rewards[i] = DayRewardResponse{
			Day:    reward.Day,
			Reward: reward.Reward,
		}
	}

	c.JSON(http.StatusOK, CheckinStatusResponse{
		UserTelegramID: status.UserID,
		CanCheckin:     status.CanCheckin,
		CurrentStreak:  status.CurrentStreak,
		MaxStreak:      status.MaxStreak,
		LastCheckin:    status.LastCheckin,
		RecentStreaks:  status.RecentStreaks,
		DailyRewards:   rewards,
	})
}

type checkinHistoryEntry struct {
	Streak    int       `json:"streak"`
	XPEarned  int       `json:"xp_earned"`
	CheckedAt time.Time `json:"checked_at"`
}

func (r *checkinRoutes) GetCheckinHistory(c *gin.Context) {
	log := logger.Logger()

	records, err := r.cs.History(c.Request.Context(), c.Param("telegram_id"))
	if err != nil {
		log.Error("failed to get checkin history", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load checkin history, try again later"})
		return
	}

	out := make([]checkinHistoryEntry, len(records))
	for i, record := range records {
		out[i] = checkinHistoryEntry{
			Streak:    record.StreakCount,
			XPEarned:  record.XPEarned,
			CheckedAt: record.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"checkins": out})
}

type CheckinResultResponse struct {
	Success  bool   `json:"success"`
	Streak   int    `json:"streak"`
	XPEarned int    `json:"xp_earned"`
	XP       int    `json:"xp"`
	Message  string `json:"message"`
}

func (r *checkinRoutes) PerformCheckin(c *gin.Context) {
	log := logger.Logger()
	identity := c.Param("telegram_id")

	result, err := r.cs.PerformCheckin(c.Request.Context(), identity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyCheckedIn):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"reason":  "AlreadyCheckedIn",
				"message": "You have already checked in today",
			})
		default:
			log.Error("failed to perform checkin", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"reason":  "Unavailable",
				"message": "Something went wrong, please try again later",
			})
		}
		return
	}

	r.hub.Publish(Event{
		Type: "checkin",
		Data: map[string]interface{}{
			"telegram_id": identity,
			"streak":      result.Streak,
			"xp_earned":   result.XPEarned,
		},
	})

	message := fmt.Sprintf("Checked in! +%d XP", result.XPEarned)
	if result.Streak > 1 {
		message = fmt.Sprintf("Checked in! +%d XP (day %d streak)", result.XPEarned, result.Streak)
	}

	c.JSON(http.StatusOK, CheckinResultResponse{
		Success:  true,
		Streak:   result.Streak,
		XPEarned: result.XPEarned,
		XP:       result.NewXP,
		Message:  message,
	})
}
