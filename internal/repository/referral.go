package repository

import (
	"context"
	"time"

	"neon_checkin_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

type referralRow struct {
	TelegramID  string    `db:"telegram_id"`
	DisplayName string    `db:"display_name"`
	XP          int       `db:"xp"`
	InvitedAt   time.Time `db:"created_at"`
}

// CreateReferral inserts one referral edge. The unique index on
// referred_id makes a second redemption surface as ErrAlreadyExists even
// when two requests pass the read-side check concurrently.
func (r *Repository) CreateReferral(ctx context.Context, referrerID, referredID string) error {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Insert("referrals").
		SetMap(map[string]interface{}{
			"referrer_id": referrerID,
			"referred_id": referredID,
			"created_at":  time.Now().UTC(),
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build referral insert query")
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}

	return nil
}

// HasBeenReferred reports whether the user ever redeemed a code, i.e.
// appears on the referred side of an edge.
func (r *Repository) HasBeenReferred(ctx context.Context, telegramID string) (bool, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("COUNT(*)").
		From("referrals").
		Where(squirrel.Eq{"referred_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, classify(err)
	}

	return count > 0, nil
}

func (r *Repository) CountReferralsByReferrer(ctx context.Context, telegramID string) (int, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("COUNT(*)").
		From("referrals").
		Where(squirrel.Eq{"referrer_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, classify(err)
	}

	return count, nil
}

// GetUserReferrals lists the users invited by telegramID, best first.
func (r *Repository) GetUserReferrals(ctx context.Context, telegramID string) ([]*model.UserReferral, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("u.telegram_id", "u.display_name", "u.xp", "r.created_at").
		From("referrals r").
		Join("users u ON u.telegram_id = r.referred_id").
		Where(squirrel.Eq{"r.referrer_id": telegramID}).
		OrderBy("u.xp DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build referrals query")
	}

	var rows []referralRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(err)
	}

	refs := make([]*model.UserReferral, len(rows))
	for i, row := range rows {
		refs[i] = &model.UserReferral{
			TelegramID:  row.TelegramID,
			DisplayName: row.DisplayName,
			XP:          row.XP,
			InvitedAt:   row.InvitedAt,
		}
	}

	return refs, nil
}
