package service

import (
	"context"
	"path/filepath"
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

// noon on an arbitrary fixed day; all checkin tests run on this clock.
var checkinNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type checkinFixture struct {
	svc         *CheckinService
	userRepo    *mocks.MockUserRepository
	checkinRepo *mocks.MockCheckinRepository
	cache       *cache.Cache
}

func newCheckinFixture(t *testing.T) *checkinFixture {
	t.Helper()

	userRepo := &mocks.MockUserRepository{}
	checkinRepo := &mocks.MockCheckinRepository{}
	c := cache.New()
	m := mirror.Open(filepath.Join(t.TempDir(), "mirror.json"))

	users := NewUserService(userRepo, c, m)
	svc := NewCheckinService(users, checkinRepo, c, time.UTC)
	svc.now = func() time.Time { return checkinNow }

	return &checkinFixture{svc: svc, userRepo: userRepo, checkinRepo: checkinRepo, cache: c}
}

func daysAgo(n int) *time.Time {
	ts := checkinNow.AddDate(0, 0, -n)
	return &ts
}

func TestReward(t *testing.T) {
	tests := []struct {
		streak   int
		expected int
	}{
		{1, 10},
		{2, 15},
		{3, 20},
		{4, 25},
		{7, 40},
		{8, 45},
		{9, 45},
		{30, 45},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Reward(tt.streak), "streak %d", tt.streak)
	}

	// Monotonic: the reward never shrinks as the streak grows.
	for streak := 2; streak <= 60; streak++ {
		assert.GreaterOrEqual(t, Reward(streak), Reward(streak-1))
	}
}

func TestCheckinService_PerformCheckin(t *testing.T) {
	tests := []struct {
		name           string
		profile        *model.User
		expectedStreak int
		expectedXP     int
		expectedMax    int
	}{
		{
			name:           "First ever checkin starts the streak",
			profile:        &model.User{TelegramID: "123"},
			expectedStreak: 1,
			expectedXP:     10,
			expectedMax:    1,
		},
		{
			name: "Checkin the day after continues the streak",
			profile: &model.User{
				TelegramID:    "124",
				CurrentStreak: 3,
				MaxStreak:     3,
				LastCheckin:   daysAgo(1),
			},
			expectedStreak: 4,
			expectedXP:     25,
			expectedMax:    4,
		},
		{
			name: "A missed day resets the streak to one",
			profile: &model.User{
				TelegramID:    "125",
				CurrentStreak: 9,
				MaxStreak:     9,
				LastCheckin:   daysAgo(3),
			},
			expectedStreak: 1,
			expectedXP:     10,
			expectedMax:    9,
		},
		{
			name: "Long streak pays the capped bonus",
			profile: &model.User{
				TelegramID:    "126",
				CurrentStreak: 11,
				MaxStreak:     11,
				LastCheckin:   daysAgo(1),
			},
			expectedStreak: 12,
			expectedXP:     45,
			expectedMax:    12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckinFixture(t)
			id := tt.profile.TelegramID

			f.userRepo.On("GetUser", mock.Anything, id).Return(tt.profile, nil).Once()

			f.checkinRepo.On("CreateCheckin", mock.Anything, mock.MatchedBy(func(rec *model.CheckinRecord) bool {
				return rec.UserID == id &&
					rec.StreakCount == tt.expectedStreak &&
					rec.XPEarned == tt.expectedXP
			})).Return(nil)

			f.userRepo.On("UpdateUser", mock.Anything, id, mock.MatchedBy(func(p model.ProfilePatch) bool {
				return p.CurrentStreak != nil && *p.CurrentStreak == tt.expectedStreak &&
					p.MaxStreak != nil && *p.MaxStreak == tt.expectedMax &&
					p.LastCheckin != nil
			})).Return(nil)

			f.userRepo.On("IncrementXP", mock.Anything, id, tt.expectedXP).
				Return(tt.profile.XP+tt.expectedXP, nil)

			result, err := f.svc.PerformCheckin(context.Background(), id)
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedStreak, result.Streak)
			assert.Equal(t, tt.expectedXP, result.XPEarned)

			f.userRepo.AssertExpectations(t)
			f.checkinRepo.AssertExpectations(t)
		})
	}
}

func TestCheckinService_PerformCheckin_SameDayIsRejected(t *testing.T) {
	f := newCheckinFixture(t)
	earlier := checkinNow.Add(-2 * time.Hour)

	f.userRepo.On("GetUser", mock.Anything, "123").Return(&model.User{
		TelegramID:    "123",
		CurrentStreak: 5,
		MaxStreak:     5,
		LastCheckin:   &earlier,
	}, nil).Once()

	result, err := f.svc.PerformCheckin(context.Background(), "123")
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.Nil(t, result)

	// The guard fires before any write.
	f.checkinRepo.AssertNotCalled(t, "CreateCheckin", mock.Anything, mock.Anything)
	f.userRepo.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	f.userRepo.AssertNotCalled(t, "IncrementXP", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckinService_PerformCheckin_YesterdayLateNightStillCounts(t *testing.T) {
	f := newCheckinFixture(t)

	// 23:50 yesterday to 12:00 today is far less than 24h but exactly one
	// calendar day, so the streak continues.
	lastNight := time.Date(2025, time.March, 9, 23, 50, 0, 0, time.UTC)
	f.userRepo.On("GetUser", mock.Anything, "123").Return(&model.User{
		TelegramID:    "123",
		CurrentStreak: 2,
		MaxStreak:     6,
		LastCheckin:   &lastNight,
	}, nil).Once()

	f.checkinRepo.On("CreateCheckin", mock.Anything, mock.Anything).Return(nil)
	f.userRepo.On("UpdateUser", mock.Anything, "123", mock.MatchedBy(func(p model.ProfilePatch) bool {
		return *p.CurrentStreak == 3 && *p.MaxStreak == 6
	})).Return(nil)
	f.userRepo.On("IncrementXP", mock.Anything, "123", 20).Return(20, nil)

	result, err := f.svc.PerformCheckin(context.Background(), "123")
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Streak)
	assert.Equal(t, 20, result.XPEarned)
}

func TestCheckinService_PerformCheckin_HistoryRowFailureAborts(t *testing.T) {
	f := newCheckinFixture(t)

	f.userRepo.On("GetUser", mock.Anything, "123").
		Return(&model.User{TelegramID: "123"}, nil).Once()
	f.checkinRepo.On("CreateCheckin", mock.Anything, mock.Anything).
		Return(repository.ErrTimeout)

	result, err := f.svc.PerformCheckin(context.Background(), "123")
	assert.ErrorIs(t, err, repository.ErrTimeout)
	assert.Nil(t, result)

	// Nothing committed, so the user stays eligible and may retry.
	eligible, ok := f.cache.Get(cache.Key("checkin-eligible", "123"))
	assert.True(t, ok)
	assert.Equal(t, true, eligible)

	f.userRepo.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	f.userRepo.AssertNotCalled(t, "IncrementXP", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckinService_PerformCheckin_ToleratesPartialCommit(t *testing.T) {
	f := newCheckinFixture(t)

	f.userRepo.On("GetUser", mock.Anything, "123").
		Return(&model.User{TelegramID: "123", XP: 40, CurrentStreak: 1, MaxStreak: 1, LastCheckin: daysAgo(1)}, nil).Once()
	f.checkinRepo.On("CreateCheckin", mock.Anything, mock.Anything).Return(nil)

	// The history row landed but the profile update and the increment both
	// time out: the check-in still happened from the caller's view.
	f.userRepo.On("UpdateUser", mock.Anything, "123", mock.Anything).
		Return(repository.ErrTimeout)
	f.userRepo.On("IncrementXP", mock.Anything, "123", 15).
		Return(0, repository.ErrTimeout)

	result, err := f.svc.PerformCheckin(context.Background(), "123")
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Streak)
	assert.Equal(t, 15, result.XPEarned)
	assert.Equal(t, 55, result.NewXP, "optimistic total from the cached snapshot")

	// Local state reflects the check-in even though the store doesn't yet.
	eligible, ok := f.cache.Get(cache.Key("checkin-eligible", "123"))
	assert.True(t, ok)
	assert.Equal(t, false, eligible)

	cached, err := f.svc.users.GetOrCreate(context.Background(), "123", ProfileHints{})
	assert.NoError(t, err)
	assert.Equal(t, 2, cached.CurrentStreak)
	assert.Equal(t, 55, cached.XP)
}

func TestCheckinService_CanCheckin(t *testing.T) {
	t.Run("Answer is cached per identity", func(t *testing.T) {
		f := newCheckinFixture(t)
		f.userRepo.On("GetUser", mock.Anything, "123").
			Return(&model.User{TelegramID: "123"}, nil).Once()

		ok, err := f.svc.CanCheckin(context.Background(), "123")
		assert.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.svc.CanCheckin(context.Background(), "123")
		assert.NoError(t, err)
		assert.True(t, ok)
		f.userRepo.AssertNumberOfCalls(t, "GetUser", 1)
	})

	t.Run("Checked in today means not eligible", func(t *testing.T) {
		f := newCheckinFixture(t)
		earlier := checkinNow.Add(-1 * time.Hour)
		f.userRepo.On("GetUser", mock.Anything, "124").
			Return(&model.User{TelegramID: "124", LastCheckin: &earlier}, nil).Once()

		ok, err := f.svc.CanCheckin(context.Background(), "124")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("A successful checkin flips the cached answer", func(t *testing.T) {
		f := newCheckinFixture(t)
		f.userRepo.On("GetUser", mock.Anything, "125").
			Return(&model.User{TelegramID: "125"}, nil).Once()
		f.checkinRepo.On("CreateCheckin", mock.Anything, mock.Anything).Return(nil)
		f.userRepo.On("UpdateUser", mock.Anything, "125", mock.Anything).Return(nil)
		f.userRepo.On("IncrementXP", mock.Anything, "125", 10).Return(10, nil)

		ok, err := f.svc.CanCheckin(context.Background(), "125")
		assert.NoError(t, err)
		assert.True(t, ok)

		_, err = f.svc.PerformCheckin(context.Background(), "125")
		assert.NoError(t, err)

		ok, err = f.svc.CanCheckin(context.Background(), "125")
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCheckinService_Status(t *testing.T) {
	f := newCheckinFixture(t)

	f.userRepo.On("GetUser", mock.Anything, "123").Return(&model.User{
		TelegramID:    "123",
		CurrentStreak: 4,
		MaxStreak:     9,
		LastCheckin:   daysAgo(1),
	}, nil).Once()
	f.checkinRepo.On("CheckinStreakHistory", mock.Anything, "123", historyLimit).
		Return([]int{4, 3, 2, 1}, nil)

	status, err := f.svc.Status(context.Background(), "123")
	assert.NoError(t, err)
	assert.True(t, status.CanCheckin)
	assert.Equal(t, 4, status.CurrentStreak)
	assert.Equal(t, 9, status.MaxStreak)
	assert.Equal(t, []int{4, 3, 2, 1}, status.RecentStreaks)

	assert.Len(t, status.DailyRewards, 7)
	assert.Equal(t, model.DayReward{Day: 1, Reward: 10}, status.DailyRewards[0])
	assert.Equal(t, model.DayReward{Day: 7, Reward: 40}, status.DailyRewards[6])
}

func TestCheckinService_Status_HistoryFailureIsNotFatal(t *testing.T) {
	f := newCheckinFixture(t)

	f.userRepo.On("GetUser", mock.Anything, "123").
		Return(&model.User{TelegramID: "123"}, nil).Once()
	f.checkinRepo.On("CheckinStreakHistory", mock.Anything, "123", historyLimit).
		Return(nil, repository.ErrTimeout)

	status, err := f.svc.Status(context.Background(), "123")
	assert.NoError(t, err)
	assert.Empty(t, status.RecentStreaks)
}

func TestWholeDaysBetween(t *testing.T) {
	loc := time.UTC
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, loc)

	tests := []struct {
		name     string
		a        time.Time
		expected int
	}{
		{"same day morning", time.Date(2025, time.March, 10, 1, 0, 0, 0, loc), 0},
		{"yesterday late night", time.Date(2025, time.March, 9, 23, 59, 0, 0, loc), 1},
		{"yesterday morning", time.Date(2025, time.March, 9, 2, 0, 0, 0, loc), 1},
		{"two days ago", time.Date(2025, time.March, 8, 12, 0, 0, 0, loc), 2},
		{"across month boundary", time.Date(2025, time.February, 28, 12, 0, 0, 0, loc), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, wholeDaysBetween(tt.a, base, loc))
		})
	}
}
