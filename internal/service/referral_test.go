package service

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"neon_checkin_miniapp/internal/cache"
	"neon_checkin_miniapp/internal/mirror"
	"neon_checkin_miniapp/internal/model"
	"neon_checkin_miniapp/internal/repository"
	"neon_checkin_miniapp/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type referralFixture struct {
	svc          *ReferralService
	userRepo     *mocks.MockUserRepository
	referralRepo *mocks.MockReferralRepository
	cache        *cache.Cache
}

func newReferralFixture(t *testing.T) *referralFixture {
	t.Helper()

	userRepo := &mocks.MockUserRepository{}
	referralRepo := &mocks.MockReferralRepository{}
	c := cache.New()
	m := mirror.Open(filepath.Join(t.TempDir(), "mirror.json"))

	users := NewUserService(userRepo, c, m)
	svc := NewReferralService(users, referralRepo, c)

	return &referralFixture{svc: svc, userRepo: userRepo, referralRepo: referralRepo, cache: c}
}

var codeShape = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestReferralService_EnsureReferralCode(t *testing.T) {
	t.Run("Existing code is returned untouched", func(t *testing.T) {
		f := newReferralFixture(t)
		code := "AB12CD34"
		f.userRepo.On("GetUser", mock.Anything, "100").
			Return(&model.User{TelegramID: "100", ReferralCode: &code}, nil).Once()

		got, err := f.svc.EnsureReferralCode(context.Background(), "100")
		assert.NoError(t, err)
		assert.Equal(t, "AB12CD34", got)
		f.referralRepo.AssertNotCalled(t, "GetUserByReferralCode", mock.Anything, mock.Anything)
	})

	t.Run("Missing code is generated, checked and persisted", func(t *testing.T) {
		f := newReferralFixture(t)
		f.userRepo.On("GetUser", mock.Anything, "100").
			Return(&model.User{TelegramID: "100"}, nil).Once()
		f.referralRepo.On("GetUserByReferralCode", mock.Anything, mock.Anything).
			Return(nil, repository.ErrNotFound).Once()
		f.userRepo.On("UpdateUser", mock.Anything, "100", mock.MatchedBy(func(p model.ProfilePatch) bool {
			return p.ReferralCode != nil && codeShape.MatchString(*p.ReferralCode)
		})).Return(nil)

		got, err := f.svc.EnsureReferralCode(context.Background(), "100")
		assert.NoError(t, err)
		assert.Regexp(t, codeShape, got)

		f.userRepo.AssertExpectations(t)
		f.referralRepo.AssertExpectations(t)
	})

	t.Run("Collision triggers regeneration", func(t *testing.T) {
		f := newReferralFixture(t)
		f.userRepo.On("GetUser", mock.Anything, "100").
			Return(&model.User{TelegramID: "100"}, nil).Once()
		f.referralRepo.On("GetUserByReferralCode", mock.Anything, mock.Anything).
			Return(&model.User{TelegramID: "999"}, nil).Once()
		f.referralRepo.On("GetUserByReferralCode", mock.Anything, mock.Anything).
			Return(nil, repository.ErrNotFound).Once()
		f.userRepo.On("UpdateUser", mock.Anything, "100", mock.Anything).Return(nil)

		got, err := f.svc.EnsureReferralCode(context.Background(), "100")
		assert.NoError(t, err)
		assert.Regexp(t, codeShape, got)
		f.referralRepo.AssertNumberOfCalls(t, "GetUserByReferralCode", 2)
	})

	t.Run("Exhausted attempts give up with a typed error", func(t *testing.T) {
		f := newReferralFixture(t)
		f.userRepo.On("GetUser", mock.Anything, "100").
			Return(&model.User{TelegramID: "100"}, nil).Once()
		f.referralRepo.On("GetUserByReferralCode", mock.Anything, mock.Anything).
			Return(&model.User{TelegramID: "999"}, nil)

		_, err := f.svc.EnsureReferralCode(context.Background(), "100")
		assert.ErrorIs(t, err, ErrCodeExhausted)
	})
}

func TestReferralService_ApplyReferralCode(t *testing.T) {
	owner := &model.User{TelegramID: "500", DisplayName: "Inviter", XP: 100}

	tests := []struct {
		name          string
		identity      string
		code          string
		mockSetup     func(f *referralFixture)
		expectedError error
		edgeAttempted bool
		check         func(t *testing.T, outcome *model.ReferralOutcome, f *referralFixture)
	}{
		{
			name:     "Unknown code",
			identity: "100",
			code:     "NOPE0000",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "NOPE0000").
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrInvalidCode,
		},
		{
			name:     "Own code",
			identity: "500",
			code:     "AB12CD34",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "AB12CD34").
					Return(owner, nil)
			},
			expectedError: ErrSelfReferral,
		},
		{
			name:     "Already redeemed a code before",
			identity: "100",
			code:     "AB12CD34",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "AB12CD34").
					Return(owner, nil)
				f.referralRepo.On("HasBeenReferred", mock.Anything, "100").
					Return(true, nil)
			},
			expectedError: ErrAlreadyReferred,
		},
		{
			name:     "Race on the unique index maps to AlreadyReferred",
			identity: "100",
			code:     "AB12CD34",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "AB12CD34").
					Return(owner, nil)
				f.referralRepo.On("HasBeenReferred", mock.Anything, "100").
					Return(false, nil)
				f.referralRepo.On("CreateReferral", mock.Anything, "500", "100").
					Return(repository.ErrAlreadyExists)
			},
			expectedError: ErrAlreadyReferred,
			edgeAttempted: true,
		},
		{
			name:     "Successful redemption pays both parties",
			identity: "100",
			code:     "AB12CD34",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "AB12CD34").
					Return(owner, nil)
				f.referralRepo.On("HasBeenReferred", mock.Anything, "100").
					Return(false, nil)
				f.referralRepo.On("CreateReferral", mock.Anything, "500", "100").
					Return(nil)
				f.userRepo.On("IncrementXP", mock.Anything, "500", ReferrerBonusXP).
					Return(150, nil)
				f.userRepo.On("IncrementXP", mock.Anything, "100", ReferredBonusXP).
					Return(20, nil)
			},
			check: func(t *testing.T, outcome *model.ReferralOutcome, f *referralFixture) {
				assert.Equal(t, "500", outcome.ReferrerID)
				assert.Equal(t, "100", outcome.ReferredID)
				assert.Equal(t, 150, outcome.ReferrerXP)
				assert.Equal(t, 20, outcome.ReferredXP)
			},
		},
		{
			name:     "Bonus write failure does not undo the redemption",
			identity: "100",
			code:     "AB12CD34",
			mockSetup: func(f *referralFixture) {
				f.referralRepo.On("GetUserByReferralCode", mock.Anything, "AB12CD34").
					Return(owner, nil)
				f.referralRepo.On("HasBeenReferred", mock.Anything, "100").
					Return(false, nil)
				f.referralRepo.On("CreateReferral", mock.Anything, "500", "100").
					Return(nil)
				f.userRepo.On("IncrementXP", mock.Anything, "500", ReferrerBonusXP).
					Return(0, repository.ErrTimeout)
				f.userRepo.On("IncrementXP", mock.Anything, "100", ReferredBonusXP).
					Return(20, nil)
			},
			check: func(t *testing.T, outcome *model.ReferralOutcome, f *referralFixture) {
				assert.Equal(t, 20, outcome.ReferredXP)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReferralFixture(t)
			tt.mockSetup(f)

			outcome, err := f.svc.ApplyReferralCode(context.Background(), tt.identity, tt.code)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, outcome)
				if !tt.edgeAttempted {
					f.referralRepo.AssertNotCalled(t, "CreateReferral", mock.Anything, mock.Anything, mock.Anything)
				}
				f.userRepo.AssertNotCalled(t, "IncrementXP", mock.Anything, mock.Anything, mock.Anything)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, outcome)
			if tt.check != nil {
				tt.check(t, outcome, f)
			}
			f.referralRepo.AssertExpectations(t)
		})
	}
}

func TestReferralService_ReferralsCount(t *testing.T) {
	t.Run("Count is cached", func(t *testing.T) {
		f := newReferralFixture(t)
		f.referralRepo.On("CountReferralsByReferrer", mock.Anything, "100").
			Return(3, nil).Once()

		count, err := f.svc.ReferralsCount(context.Background(), "100")
		assert.NoError(t, err)
		assert.Equal(t, 3, count)

		count, err = f.svc.ReferralsCount(context.Background(), "100")
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
		f.referralRepo.AssertNumberOfCalls(t, "CountReferralsByReferrer", 1)
	})

	t.Run("Store failure serves the stale count", func(t *testing.T) {
		f := newReferralFixture(t)
		f.cache.Set(cache.Key("referral-count", "100"), 3, time.Nanosecond)
		f.referralRepo.On("CountReferralsByReferrer", mock.Anything, "100").
			Return(0, repository.ErrTimeout)

		count, err := f.svc.ReferralsCount(context.Background(), "100")
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Failure with no fallback surfaces", func(t *testing.T) {
		f := newReferralFixture(t)
		f.referralRepo.On("CountReferralsByReferrer", mock.Anything, "100").
			Return(0, repository.ErrBackend)

		_, err := f.svc.ReferralsCount(context.Background(), "100")
		assert.ErrorIs(t, err, repository.ErrBackend)
	})
}
