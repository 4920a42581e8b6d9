package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

// DB is the subset of *pgxpool.Pool used by the state storage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// StateStorage keeps persisted session state in the session_state table.
type StateStorage struct {
	db DB
}

// NewStateStorage instantiates a Postgres-backed state storage.
func NewStateStorage(db DB) *StateStorage {
	return &StateStorage{db: db}
}

func (r *StateStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM session_state WHERE key = $1`

	var value []byte
	if err := r.db.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStateNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *StateStorage) SetItem(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO session_state (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE
	SET value = EXCLUDED.value,
		updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, key, value)
	return err
}

func (r *StateStorage) RemoveItem(ctx context.Context, key string) error {
	const query = `DELETE FROM session_state WHERE key = $1`
	_, err := r.db.Exec(ctx, query, key)
	return err
}

func (r *StateStorage) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	const query = `DELETE FROM session_state WHERE updated_at < $1`
	tag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *StateStorage) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var (
	_ repository.StateStorage = (*StateStorage)(nil)
	_ repository.StatePurger  = (*StateStorage)(nil)
	_ repository.Pinger       = (*StateStorage)(nil)
)
