package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"neon_checkin_miniapp/internal/cache"
	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// BaseXP is paid for every check-in.
	BaseXP = 10
	// StreakBonusStep is the extra XP per consecutive day beyond the first.
	StreakBonusStep = 5
	// StreakBonusCapDays caps the bonus: day 8 and beyond pay the same as
	// day 8 (BaseXP + StreakBonusCapDays*StreakBonusStep).
	StreakBonusCapDays = 7

	rewardScheduleDays = 7
	historyLimit       = 14
)

// CheckinService is the daily check-in state machine: eligibility, streak
// continuation/reset, reward computation, and the three-call commit.
type CheckinService struct {
	users UserManager
	repo  CheckinRepository
	cache *cache.Cache
	loc   *time.Location
	now   func() time.Time
}

func NewCheckinService(users UserManager, repo CheckinRepository, c *cache.Cache, loc *time.Location) *CheckinService {
	if loc == nil {
		loc = time.Local
	}
	return &CheckinService{
		users: users,
		repo:  repo,
		cache: c,
		loc:   loc,
		now:   time.Now,
	}
}

// Reward is the XP paid for reaching the given streak value.
func Reward(streak int) int {
	bonusDays := streak - 1
	if bonusDays > StreakBonusCapDays {
		bonusDays = StreakBonusCapDays
	}
	if bonusDays < 0 {
		bonusDays = 0
	}
	return BaseXP + bonusDays*StreakBonusStep
}

// CanCheckin reports whether the user may check in today. The answer is
// cached per identity so repeated UI refreshes don't each hit the store.
func (s *CheckinService) CanCheckin(ctx context.Context, identity string) (bool, error) {
	key := cache.Key("checkin-eligible", identity)
	if v, ok := s.cache.Get(key); ok {
		return v.(bool), nil
	}

	profile, err := s.users.GetOrCreate(ctx, identity, ProfileHints{})
	if err != nil {
		return false, err
	}

	eligible := s.eligible(profile)
	s.cache.Set(key, eligible, cache.EligibilityTTL)
	return eligible, nil
}

func (s *CheckinService) eligible(profile *model.User) bool {
	if profile.LastCheckin == nil {
		return true
	}
	return !sameCalendarDay(*profile.LastCheckin, s.now(), s.loc)
}

// PerformCheckin runs the full transition: eligibility guard, streak and
// reward computation, then the three commit writes (history row, profile
// update, XP increment). The history row is the point of no return: once
// it exists the check-in has happened, and failures of the two remaining
// writes are absorbed into optimistic local state to be reconciled by a
// later read.
func (s *CheckinService) PerformCheckin(ctx context.Context, identity string) (*model.CheckinResult, error) {
	profile, err := s.users.GetOrCreate(ctx, identity, ProfileHints{})
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)

	// Sole idempotence guard: one check-in per calendar day.
	if profile.LastCheckin != nil && sameCalendarDay(*profile.LastCheckin, now, s.loc) {
		return nil, ErrAlreadyCheckedIn
	}

	newStreak := 1
	if profile.LastCheckin != nil && wholeDaysBetween(*profile.LastCheckin, now, s.loc) == 1 {
		newStreak = profile.CurrentStreak + 1
	}
	reward := Reward(newStreak)

	eligKey := cache.Key("checkin-eligible", identity)
	s.cache.Set(eligKey, false, cache.EligibilityTTL)

	record := &model.CheckinRecord{
		ID:          uuid.New(),
		UserID:      identity,
		StreakCount: newStreak,
		XPEarned:    reward,
		CreatedAt:   now.UTC(),
	}
	if err := s.repo.CreateCheckin(ctx, record); err != nil {
		// Nothing committed; let the user retry.
		s.cache.Set(eligKey, true, cache.EligibilityTTL)
		return nil, fmt.Errorf("failed to record checkin: %w", err)
	}

	maxStreak := profile.MaxStreak
	if newStreak > maxStreak {
		maxStreak = newStreak
	}

	patch := model.ProfilePatch{
		CurrentStreak: &newStreak,
		MaxStreak:     &maxStreak,
		LastCheckin:   &now,
	}
	if _, err := s.users.Update(ctx, identity, patch); err != nil {
		logger.Logger().Warn("checkin profile update failed after history row was written",
			zap.String("telegram_id", identity), zap.Error(err))
	}

	newXP, err := s.users.IncrementXP(ctx, identity, reward)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		logger.Logger().Warn("checkin xp increment failed after history row was written",
			zap.String("telegram_id", identity), zap.Error(err))
	}

	return &model.CheckinResult{
		Streak:   newStreak,
		XPEarned: reward,
		NewXP:    newXP,
	}, nil
}

// Status is the read-only view for the check-in screen: eligibility,
// streak counters, recent streak history and the upcoming reward table.
func (s *CheckinService) Status(ctx context.Context, identity string) (*model.CheckinStatus, error) {
	profile, err := s.users.GetOrCreate(ctx, identity, ProfileHints{})
	if err != nil {
		return nil, err
	}

	history, err := s.repo.CheckinStreakHistory(ctx, identity, historyLimit)
	if err != nil {
		// History is decoration; the screen renders without it.
		logger.Logger().Warn("failed to load checkin history",
			zap.String("telegram_id", identity), zap.Error(err))
		history = nil
	}

	rewards := make([]model.DayReward, rewardScheduleDays)
	for i := 0; i < rewardScheduleDays; i++ {
		rewards[i] = model.DayReward{Day: i + 1, Reward: Reward(i + 1)}
	}

	return &model.CheckinStatus{
		UserID:        identity,
		CanCheckin:    s.eligible(profile),
		CurrentStreak: profile.CurrentStreak,
		MaxStreak:     profile.MaxStreak,
		LastCheckin:   profile.LastCheckin,
		RecentStreaks: history,
		DailyRewards:  rewards,
	}, nil
}

// History returns the user's most recent check-in rows, newest first.
func (s *CheckinService) History(ctx context.Context, identity string) ([]model.CheckinRecord, error) {
	return s.repo.RecentCheckins(ctx, identity, historyLimit)
}

func sameCalendarDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// wholeDaysBetween counts calendar days from a to b, comparing midnights
// so the wall-clock time of either moment doesn't matter.
func wholeDaysBetween(a, b time.Time, loc *time.Location) int {
	a, b = a.In(loc), b.In(loc)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, loc)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, loc)
	return int(math.Round(db.Sub(da).Hours() / 24))
}
