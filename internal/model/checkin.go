package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckinRecord is one successful daily check-in. Rows are append-only:
// created exactly once per successful check-in, never mutated.
type CheckinRecord struct {
	ID          uuid.UUID
	UserID      string
	StreakCount int
	XPEarned    int
	CreatedAt   time.Time
}

// CheckinResult is what a successful PerformCheckin reports back to the UI.
type CheckinResult struct {
	Streak   int
	XPEarned int
	NewXP    int
}

// CheckinStatus is the read-only view backing the check-in screen.
type CheckinStatus struct {
	UserID        string
	CanCheckin    bool
	CurrentStreak int
	MaxStreak     int
	LastCheckin   *time.Time
	RecentStreaks []int
	DailyRewards  []DayReward
}

// DayReward is the XP paid on a given consecutive day of the streak.
type DayReward struct {
	Day    int
	Reward int
}
