package mocks

import (
	"context"

	"neon_checkin_miniapp/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, telegramID string) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, telegramID string, patch model.ProfilePatch) error {
	args := m.Called(ctx, telegramID, patch)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementXP(ctx context.Context, telegramID string, amount int) (int, error) {
	args := m.Called(ctx, telegramID, amount)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) TopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.User), args.Error(1)
}

type MockCheckinRepository struct {
	mock.Mock
}

func (m *MockCheckinRepository) CreateCheckin(ctx context.Context, checkin *model.CheckinRecord) error {
	args := m.Called(ctx, checkin)
	return args.Error(0)
}

func (m *MockCheckinRepository) RecentCheckins(ctx context.Context, telegramID string, limit int) ([]model.CheckinRecord, error) {
	args := m.Called(ctx, telegramID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CheckinRecord), args.Error(1)
}

func (m *MockCheckinRepository) CheckinStreakHistory(ctx context.Context, telegramID string, limit int) ([]int, error) {
	args := m.Called(ctx, telegramID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

type MockReferralRepository struct {
	mock.Mock
}

func (m *MockReferralRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockReferralRepository) CreateReferral(ctx context.Context, referrerID, referredID string) error {
	args := m.Called(ctx, referrerID, referredID)
	return args.Error(0)
}

func (m *MockReferralRepository) HasBeenReferred(ctx context.Context, telegramID string) (bool, error) {
	args := m.Called(ctx, telegramID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReferralRepository) CountReferralsByReferrer(ctx context.Context, telegramID string) (int, error) {
	args := m.Called(ctx, telegramID)
	return args.Int(0), args.Error(1)
}

func (m *MockReferralRepository) GetUserReferrals(ctx context.Context, telegramID string) ([]*model.UserReferral, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.UserReferral), args.Error(1)
}
