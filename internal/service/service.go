package service

import (
	"context"
	"errors"

	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/internal/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadyCheckedIn = errors.New("already checked in today")

	ErrInvalidCode     = errors.New("referral code does not exist")
	ErrSelfReferral    = errors.New("cannot redeem your own referral code")
	ErrAlreadyReferred = errors.New("a referral code was already redeemed for this user")

	ErrCodeExhausted = errors.New("could not allocate a unique referral code")
)

// isTransient reports whether err is a store failure worth recovering
// from a cached value, as opposed to a business-rule violation.
func isTransient(err error) bool {
	return errors.Is(err, repository.ErrTimeout) || errors.Is(err, repository.ErrBackend)
}

type UserServiceI interface {
	GetOrCreate(ctx context.Context, identity string, hints ProfileHints) (*model.User, error)
	Get(ctx context.Context, identity string) (*model.User, error)
	Leaderboard(ctx context.Context) ([]*model.User, error)
}

type CheckinServiceI interface {
	CanCheckin(ctx context.Context, identity string) (bool, error)
	PerformCheckin(ctx context.Context, identity string) (*model.CheckinResult, error)
	Status(ctx context.Context, identity string) (*model.CheckinStatus, error)
	History(ctx context.Context, identity string) ([]model.CheckinRecord, error)
}

type ReferralServiceI interface {
	EnsureReferralCode(ctx context.Context, identity string) (string, error)
	ApplyReferralCode(ctx context.Context, identity, code string) (*model.ReferralOutcome, error)
	ReferralsCount(ctx context.Context, identity string) (int, error)
	Referrals(ctx context.Context, identity string) ([]*model.UserReferral, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, telegramID string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, telegramID string, patch model.ProfilePatch) error
	IncrementXP(ctx context.Context, telegramID string, amount int) (int, error)
	TopUsers(ctx context.Context, limit int) ([]*model.User, error)
}

type CheckinRepository interface {
	CreateCheckin(ctx context.Context, checkin *model.CheckinRecord) error
	RecentCheckins(ctx context.Context, telegramID string, limit int) ([]model.CheckinRecord, error)
	CheckinStreakHistory(ctx context.Context, telegramID string, limit int) ([]int, error)
}

type ReferralRepository interface {
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	CreateReferral(ctx context.Context, referrerID, referredID string) error
	HasBeenReferred(ctx context.Context, telegramID string) (bool, error)
	CountReferralsByReferrer(ctx context.Context, telegramID string) (int, error)
	GetUserReferrals(ctx context.Context, telegramID string) ([]*model.UserReferral, error)
}

// UserManager is the slice of the User Record Manager the engines consume.
// All profile writes go through it; the engines never talk to the users
// table directly.
type UserManager interface {
	GetOrCreate(ctx context.Context, identity string, hints ProfileHints) (*model.User, error)
	Update(ctx context.Context, identity string, patch model.ProfilePatch) (*model.User, error)
	IncrementXP(ctx context.Context, identity string, amount int) (int, error)
}
