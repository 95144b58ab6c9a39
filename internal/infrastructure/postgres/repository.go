package postgres

import (
	"context"
	"errors"

	"github.com/herverfred/mission-center/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool

	outboxMaxRetries int
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, outboxMaxRetries: outboxMaxRetriesDefault}
}

// SetOutboxMaxRetries overrides the per-row retry ceiling for newly enqueued
// outbox messages.
func (r *Repository) SetOutboxMaxRetries(n int) {
	if n > 0 {
		r.outboxMaxRetries = n
	}
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password, points, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Points, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password, points, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Password, &u.Points, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) GameExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) ListGames(ctx context.Context) ([]domain.Game, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM games ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
