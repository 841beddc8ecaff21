package repository

import (
	"context"
	"time"

	"neon_checkin_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type User struct {
	TelegramID       string     `db:"telegram_id"`
	DisplayName      string     `db:"display_name"`
	XP               int        `db:"xp"`
	CurrentStreak    int        `db:"current_streak"`
	MaxStreak        int        `db:"max_streak"`
	LastCheckin      *time.Time `db:"last_checkin"`
	ReferralCode     *string    `db:"referral_code"`
	RegistrationDate time.Time  `db:"registration_date"`
}

func (u *User) toModel() *model.User {
	return &model.User{
		TelegramID:       u.TelegramID,
		DisplayName:      u.DisplayName,
		XP:               u.XP,
		CurrentStreak:    u.CurrentStreak,
		MaxStreak:        u.MaxStreak,
		LastCheckin:      u.LastCheckin,
		ReferralCode:     u.ReferralCode,
		RegistrationDate: u.RegistrationDate,
	}
}

func (r *Repository) GetUser(ctx context.Context, telegramID string) (*model.User, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("*").
		From("users").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var user User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		return nil, classify(err)
	}

	return user.toModel(), nil
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("*").
		From("users").
		Where(squirrel.Eq{"referral_code": code}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var user User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		return nil, classify(err)
	}

	return user.toModel(), nil
}

func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Insert("users").
		SetMap(map[string]interface{}{
			"telegram_id":       user.TelegramID,
			"display_name":      user.DisplayName,
			"xp":                user.XP,
			"current_streak":    user.CurrentStreak,
			"max_streak":        user.MaxStreak,
			"last_checkin":      user.LastCheckin,
			"referral_code":     user.ReferralCode,
			"registration_date": user.RegistrationDate,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build user insert query")
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}

	return nil
}

// UpdateUser writes only the fields the patch carries.
func (r *Repository) UpdateUser(ctx context.Context, telegramID string, patch model.ProfilePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	fields := map[string]interface{}{}
	if patch.DisplayName != nil {
		fields["display_name"] = *patch.DisplayName
	}
	if patch.CurrentStreak != nil {
		fields["current_streak"] = *patch.CurrentStreak
	}
	if patch.MaxStreak != nil {
		fields["max_streak"] = *patch.MaxStreak
	}
	if patch.LastCheckin != nil {
		fields["last_checkin"] = *patch.LastCheckin
	}
	if patch.ReferralCode != nil {
		fields["referral_code"] = *patch.ReferralCode
	}

	query, args, err := squirrel.
		Update("users").
		SetMap(fields).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build user update query")
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementXP bumps a user's XP server-side and returns the new total.
// The increment_xp SQL function is the atomic path; if the function is
// missing from the schema (undefined_function) it falls back to a
// read-then-write inside a transaction.
func (r *Repository) IncrementXP(ctx context.Context, telegramID string, amount int) (int, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	var newXP int
	err := r.db.GetContext(ctx, &newXP, "SELECT increment_xp($1, $2)", telegramID, amount)
	if err == nil {
		return newXP, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUndefinedFunction {
		return 0, classify(err)
	}

	err = r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Select("xp").
			From("users").
			Where(squirrel.Eq{"telegram_id": telegramID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var current int
		if err := tx.GetContext(ctx, &current, query, args...); err != nil {
			return classify(err)
		}

		updateQuery, updateArgs, err := squirrel.
			Update("users").
			Set("xp", current+amount).
			Where(squirrel.Eq{"telegram_id": telegramID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
			return classify(err)
		}

		newXP = current + amount
		return nil
	})
	if err != nil {
		return 0, err
	}

	return newXP, nil
}

func (r *Repository) TopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("telegram_id", "display_name", "xp", "current_streak", "max_streak").
		From("users").
		OrderBy("xp DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, classify(err)
	}

	userList := make([]*model.User, len(users))
	for i := range users {
		userList[i] = users[i].toModel()
	}

	return userList, nil
}
