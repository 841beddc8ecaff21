package api

import (
	"errors"
	"net/http"
	"time"

	"neon_checkin_miniapp/internal/middleware"
	"neon_checkin_miniapp/internal/service"
	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type referralRoutes struct {
	rs  service.ReferralServiceI
	a   *auth.TelegramAuth
	hub *EventHub
}

func NewReferralRoutes(handler *gin.RouterGroup, rs service.ReferralServiceI, a *auth.TelegramAuth, hub *EventHub) {
	r := &referralRoutes{rs: rs, a: a, hub: hub}
	h := handler.Group("/referrals")
	h.Use(a.TelegramAuthMiddleware())
	h.Use(middleware.OwnIdentityOnly())
	{
		h.GET("/:telegram_id", r.GetReferrals)
		h.GET("/:telegram_id/code", r.GetReferralCode)
		h.POST("/:telegram_id/apply", r.ApplyReferralCode)
	}
}

func (r *referralRoutes) GetReferralCode(c *gin.Context) {
	log := logger.Logger()

	code, err := r.rs.EnsureReferralCode(c.Request.Context(), c.Param("telegram_id"))
	if err != nil {
		log.Error("failed to ensure referral code", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to get referral code, try again later"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"referral_code": code})
}

type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

func (r *referralRoutes) ApplyReferralCode(c *gin.Context) {
	log := logger.Logger()
	identity := c.Param("telegram_id")

	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	outcome, err := r.rs.ApplyReferralCode(c.Request.Context(), identity, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"reason":  "InvalidCode",
				"message": "That referral code does not exist",
			})
		case errors.Is(err, service.ErrSelfReferral):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"reason":  "SelfReferral",
				"message": "You cannot use your own referral code",
			})
		case errors.Is(err, service.ErrAlreadyReferred):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"reason":  "AlreadyReferred",
				"message": "You have already used a referral code",
			})
		default:
			log.Error("failed to apply referral code", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"reason":  "Unavailable",
				"message": "Something went wrong, please try again later",
			})
		}
		return
	}

	r.hub.Publish(Event{
		Type: "referral",
		Data: map[string]interface{}{
			"referrer_id": outcome.ReferrerID,
			"referred_id": outcome.ReferredID,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Referral code applied! You received 20 XP",
		"xp":      outcome.ReferredXP,
	})
}

type referralEntry struct {
	DisplayName string    `json:"display_name"`
	XP          int       `json:"xp"`
	InvitedAt   time.Time `json:"invited_at"`
}

func (r *referralRoutes) GetReferrals(c *gin.Context) {
	log := logger.Logger()
	identity := c.Param("telegram_id")

	count, err := r.rs.ReferralsCount(c.Request.Context(), identity)
	if err != nil {
		log.Error("failed to count referrals", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load referrals, try again later"})
		return
	}

	refs, err := r.rs.Referrals(c.Request.Context(), identity)
	if err != nil {
		log.Error("failed to list referrals", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load referrals, try again later"})
		return
	}

	out := make([]referralEntry, len(refs))
	for i, ref := range refs {
		out[i] = referralEntry{
			DisplayName: ref.DisplayName,
			XP:          ref.XP,
			InvitedAt:   ref.InvitedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     count,
		"referrals": out,
	})
}
