package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"neon_checkin_miniapp/pkg/logger"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound: the record is absent. Callers treat this as "create it",
	// not as a fault.
	ErrNotFound = errors.New("not found")

	// ErrTimeout: the per-call deadline expired before the store answered.
	ErrTimeout = errors.New("store call timed out")

	// ErrAlreadyExists: a uniqueness constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")

	// ErrBackend: any other store-side failure.
	ErrBackend = errors.New("backend failure")
)

const (
	pgUniqueViolation   = "23505"
	pgUndefinedFunction = "42883"
)

const DefaultCallTimeout = 5 * time.Second

type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

type Config struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`

	CallTimeoutSeconds int `json:"callTimeoutSeconds"`
}

func New(cfg Config) (*Repository, error) {
	db, err := sqlx.Connect("pgx", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Logger().Info("Connected to database successfully")

	timeout := DefaultCallTimeout
	if cfg.CallTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.CallTimeoutSeconds) * time.Second
	}

	return &Repository{
		db:      db,
		timeout: timeout,
	}, nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// callCtx bounds one outbound store call. Every exported operation goes
// through this; an expired deadline classifies as ErrTimeout, never as a
// generic backend failure.
func (r *Repository) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// classify maps driver errors onto the repository's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

func (r *Repository) Transaction(ctx context.Context, t func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return classify(tx.Commit())
}
