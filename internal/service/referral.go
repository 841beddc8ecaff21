package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"neon_checkin_miniapp/internal/cache"
	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/internal/repository"
	"neon_checkin_miniapp/pkg/logger"

	"go.uber.org/zap"
)

const (
	// ReferrerBonusXP is paid to the code owner per invited user.
	ReferrerBonusXP = 50
	// ReferredBonusXP is paid to the invited user on redemption.
	ReferredBonusXP = 20

	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 8
	maxCodeAttempts = 5
)

// ReferralService generates/validates referral codes and awards the
// one-time bonuses for redeemed invitations.
type ReferralService struct {
	users UserManager
	repo  ReferralRepository
	cache *cache.Cache
}

func NewReferralService(users UserManager, repo ReferralRepository, c *cache.Cache) *ReferralService {
	return &ReferralService{
		users: users,
		repo:  repo,
		cache: c,
	}
}

// EnsureReferralCode returns the user's code, lazily allocating one.
// Candidates are checked for global uniqueness against the store and
// regenerated on collision, a bounded number of times.
func (s *ReferralService) EnsureReferralCode(ctx context.Context, identity string) (string, error) {
	profile, err := s.users.GetOrCreate(ctx, identity, ProfileHints{})
	if err != nil {
		return "", err
	}
	if profile.ReferralCode != nil && *profile.ReferralCode != "" {
		return *profile.ReferralCode, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := generateCode()

		_, err := s.repo.GetUserByReferralCode(ctx, code)
		if err == nil {
			continue // taken
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("failed to check referral code: %w", err)
		}

		if _, err := s.users.Update(ctx, identity, model.ProfilePatch{ReferralCode: &code}); err != nil {
			// The code must be durable before it is handed out, otherwise a
			// second device would mint a different one.
			return "", err
		}
		return code, nil
	}

	return "", ErrCodeExhausted
}

// ApplyReferralCode redeems a code for identity, awarding both parties
// exactly once. The referred-side uniqueness is checked twice: a read
// check for the common case, and the store's unique constraint for the
// race where two redemptions pass the read check together.
func (s *ReferralService) ApplyReferralCode(ctx context.Context, identity, code string) (*model.ReferralOutcome, error) {
	owner, err := s.repo.GetUserByReferralCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}

	if owner.TelegramID == identity {
		return nil, ErrSelfReferral
	}

	referred, err := s.repo.HasBeenReferred(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to check referral status: %w", err)
	}
	if referred {
		return nil, ErrAlreadyReferred
	}

	err = s.repo.CreateReferral(ctx, owner.TelegramID, identity)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, ErrAlreadyReferred
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}

	// The edge is the exactly-once marker; failed awards below are logged
	// and reconciled by a later read, never re-attempted through a second
	// redemption.
	referrerXP, err := s.users.IncrementXP(ctx, owner.TelegramID, ReferrerBonusXP)
	if err != nil {
		logger.Logger().Warn("referrer bonus not persisted",
			zap.String("referrer_id", owner.TelegramID), zap.Error(err))
	}
	referredXP, err := s.users.IncrementXP(ctx, identity, ReferredBonusXP)
	if err != nil {
		logger.Logger().Warn("referred bonus not persisted",
			zap.String("referred_id", identity), zap.Error(err))
	}

	s.cache.Invalidate(cache.Key("referral-count", owner.TelegramID))

	return &model.ReferralOutcome{
		ReferrerID:   owner.TelegramID,
		ReferredID:   identity,
		ReferrerXP:   referrerXP,
		ReferredXP:   referredXP,
		BonusAwarded: ReferredBonusXP,
	}, nil
}

// ReferralsCount returns how many users identity has invited, cache-backed
// with stale fallback on store failure.
func (s *ReferralService) ReferralsCount(ctx context.Context, identity string) (int, error) {
	key := cache.Key("referral-count", identity)
	if v, ok := s.cache.Get(key); ok {
		return v.(int), nil
	}

	count, err := s.repo.CountReferralsByReferrer(ctx, identity)
	if err != nil {
		if isTransient(err) {
			if v, ok := s.cache.GetStale(key); ok {
				return v.(int), nil
			}
		}
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}

	s.cache.Set(key, count, cache.ReferralTTL)
	return count, nil
}

func (s *ReferralService) Referrals(ctx context.Context, identity string) ([]*model.UserReferral, error) {
	refs, err := s.repo.GetUserReferrals(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get user referrals: %w", err)
	}
	return refs, nil
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(code)
}
