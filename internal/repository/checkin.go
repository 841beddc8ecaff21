package repository

import (
	"context"
	"time"

	"neon_checkin_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type Checkin struct {
	ID          uuid.UUID `db:"id"`
	UserID      string    `db:"user_id"`
	StreakCount int       `db:"streak_count"`
	XPEarned    int       `db:"xp_earned"`
	CreatedAt   time.Time `db:"created_at"`
}

// CreateCheckin appends one check-in row. Rows are never updated or
// deleted afterwards.
func (r *Repository) CreateCheckin(ctx context.Context, checkin *model.CheckinRecord) error {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Insert("checkins").
		SetMap(map[string]interface{}{
			"id":           checkin.ID,
			"user_id":      checkin.UserID,
			"streak_count": checkin.StreakCount,
			"xp_earned":    checkin.XPEarned,
			"created_at":   checkin.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build checkin insert query")
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}

	return nil
}

func (r *Repository) RecentCheckins(ctx context.Context, telegramID string, limit int) ([]model.CheckinRecord, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	query, args, err := squirrel.
		Select("id", "user_id", "streak_count", "xp_earned", "created_at").
		From("checkins").
		Where(squirrel.Eq{"user_id": telegramID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []Checkin
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(err)
	}

	records := make([]model.CheckinRecord, len(rows))
	for i, row := range rows {
		records[i] = model.CheckinRecord{
			ID:          row.ID,
			UserID:      row.UserID,
			StreakCount: row.StreakCount,
			XPEarned:    row.XPEarned,
			CreatedAt:   row.CreatedAt,
		}
	}

	return records, nil
}

// CheckinStreakHistory returns the streak values of the user's most
// recent check-ins, newest first, aggregated store-side.
func (r *Repository) CheckinStreakHistory(ctx context.Context, telegramID string, limit int) ([]int, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	var streaks pq.Int64Array
	err := r.db.GetContext(ctx, &streaks,
		`SELECT COALESCE(array_agg(streak_count ORDER BY created_at DESC), '{}')
		 FROM (
		     SELECT streak_count, created_at
		     FROM checkins
		     WHERE user_id = $1
		     ORDER BY created_at DESC
		     LIMIT $2
		 ) recent`,
		telegramID, limit)
	if err != nil {
		return nil, classify(err)
	}

	history := make([]int, len(streaks))
	for i, s := range streaks {
		history[i] = int(s)
	}

	return history, nil
}
