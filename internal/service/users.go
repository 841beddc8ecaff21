package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"neon_checkin_miniapp/internal/cache"
	"neon_checkin_miniapp/internal/mirror"
	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/internal/repository"
	"neon_checkin_miniapp/pkg/logger"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const leaderboardSize = 100

// ProfileHints carries optional identity-provider data used only when a
// profile is created on first sight.
type ProfileHints struct {
	DisplayName string
}

// UserService is the single owner of UserProfile writes. It keeps the
// cache and the local mirror coherent with every write, and recovers
// reads from them when the store is unreachable.
type UserService struct {
	repo   UserRepository
	cache  *cache.Cache
	mirror *mirror.Store
	now    func() time.Time
}

func NewUserService(repo UserRepository, c *cache.Cache, m *mirror.Store) *UserService {
	return &UserService{
		repo:   repo,
		cache:  c,
		mirror: m,
		now:    time.Now,
	}
}

// GetOrCreate resolves the profile for an identity, creating it on first
// sight. Store failures fall back to the cached snapshot (any age), then
// to the local mirror, before surfacing.
func (s *UserService) GetOrCreate(ctx context.Context, identity string, hints ProfileHints) (*model.User, error) {
	key := cache.Key("user", identity)
	if v, ok := s.cache.Get(key); ok {
		return snapshot(v.(*model.User)), nil
	}

	user, err := s.repo.GetUser(ctx, identity)
	if err == nil {
		s.remember(key, identity, user)
		return snapshot(user), nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		return s.create(ctx, identity, hints)
	}

	if fallback, ok := s.recover(key, identity, err); ok {
		return fallback, nil
	}
	return nil, fmt.Errorf("failed to get user: %w", err)
}

// Get resolves an existing profile without creating one.
func (s *UserService) Get(ctx context.Context, identity string) (*model.User, error) {
	key := cache.Key("user", identity)
	if v, ok := s.cache.Get(key); ok {
		return snapshot(v.(*model.User)), nil
	}

	user, err := s.repo.GetUser(ctx, identity)
	if err == nil {
		s.remember(key, identity, user)
		return snapshot(user), nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}

	if fallback, ok := s.recover(key, identity, err); ok {
		return fallback, nil
	}
	return nil, fmt.Errorf("failed to get user: %w", err)
}

func (s *UserService) create(ctx context.Context, identity string, hints ProfileHints) (*model.User, error) {
	user := &model.User{
		TelegramID:       identity,
		DisplayName:      displayName(identity, hints),
		RegistrationDate: s.now().UTC(),
	}

	err := s.repo.CreateUser(ctx, user)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Another device won the race; their row is the profile.
		user, err = s.repo.GetUser(ctx, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.remember(cache.Key("user", identity), identity, user)
	return snapshot(user), nil
}

// Update applies a partial profile update. The store write may fail
// without being fatal to the caller: the merged snapshot is still applied
// to the cache and the mirror so the UI stays responsive, and is returned
// together with the error for the caller to surface or ignore.
func (s *UserService) Update(ctx context.Context, identity string, patch model.ProfilePatch) (*model.User, error) {
	err := s.repo.UpdateUser(ctx, identity, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}

	key := cache.Key("user", identity)
	merged := s.mergeIntoCache(ctx, key, identity, patch, err == nil)

	if err != nil {
		logger.Logger().Warn("profile update not persisted, local state updated optimistically",
			zap.String("telegram_id", identity), zap.Error(err))
		return merged, fmt.Errorf("failed to update user: %w", err)
	}
	return merged, nil
}

// mergeIntoCache read-modify-writes the cached snapshot instead of
// re-fetching. Without any local base after a successful write, one fetch
// rebuilds it.
func (s *UserService) mergeIntoCache(ctx context.Context, key, identity string, patch model.ProfilePatch, persisted bool) *model.User {
	var base *model.User
	if v, ok := s.cache.GetStale(key); ok {
		base = v.(*model.User)
	} else if m, ok := s.mirrorGet(identity); ok {
		base = m
	} else if persisted {
		fetched, err := s.repo.GetUser(ctx, identity)
		if err != nil {
			return nil
		}
		base = fetched
	} else {
		return nil
	}

	merged := patch.ApplyTo(base)
	s.remember(key, identity, merged)
	return snapshot(merged)
}

// IncrementXP prefers the store's atomic increment. The cache gets the
// authoritative post-increment value when the call succeeds, otherwise
// the delta is applied optimistically and the error returned alongside.
func (s *UserService) IncrementXP(ctx context.Context, identity string, amount int) (int, error) {
	key := cache.Key("user", identity)

	newXP, err := s.repo.IncrementXP(ctx, identity, amount)
	if err == nil {
		if v, ok := s.cache.GetStale(key); ok {
			u := *v.(*model.User)
			u.XP = newXP
			s.remember(key, identity, &u)
		}
		return newXP, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrUserNotFound
	}

	optimistic := 0
	if v, ok := s.cache.GetStale(key); ok {
		u := *v.(*model.User)
		u.XP += amount
		optimistic = u.XP
		s.remember(key, identity, &u)
	}

	logger.Logger().Warn("xp increment not persisted",
		zap.String("telegram_id", identity), zap.Int("amount", amount), zap.Error(err))
	return optimistic, fmt.Errorf("failed to increment xp: %w", err)
}

func (s *UserService) Leaderboard(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.TopUsers(ctx, leaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return users, nil
}

// remember seeds both local layers after any authoritative read or write.
func (s *UserService) remember(key, identity string, user *model.User) {
	s.cache.Set(key, snapshot(user), cache.ProfileTTL)
	s.mirrorPut(identity, user)
}

// recover serves a last-known value after a transient store failure:
// stale cache first, mirror second.
func (s *UserService) recover(key, identity string, err error) (*model.User, bool) {
	if !isTransient(err) {
		return nil, false
	}
	if v, ok := s.cache.GetStale(key); ok {
		logger.Logger().Warn("serving stale cached profile after store failure",
			zap.String("telegram_id", identity), zap.Error(err))
		return snapshot(v.(*model.User)), true
	}
	if user, ok := s.mirrorGet(identity); ok {
		logger.Logger().Warn("serving mirrored profile after store failure",
			zap.String("telegram_id", identity), zap.Error(err))
		return user, true
	}
	return nil, false
}

func (s *UserService) mirrorPut(identity string, user *model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	s.mirror.Set(cache.Key("user", identity), string(data))
}

func (s *UserService) mirrorGet(identity string) (*model.User, bool) {
	raw, ok := s.mirror.Get(cache.Key("user", identity))
	if !ok {
		return nil, false
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, false
	}
	return &user, true
}

func snapshot(u *model.User) *model.User {
	cp := *u
	return &cp
}

func displayName(identity string, hints ProfileHints) string {
	if hints.DisplayName != "" {
		return hints.DisplayName
	}
	short := identity
	if len(short) > 4 {
		short = short[:4]
	}
	return "Player_" + short
}
