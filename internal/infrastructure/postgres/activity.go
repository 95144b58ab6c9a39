package postgres

import (
	"context"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

func (r *Repository) InsertLoginDay(ctx context.Context, userID int64, date time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_login_records (user_id, login_date, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, login_date) DO NOTHING
	`, userID, date)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) LoginDaysInWindow(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT login_date
		FROM user_login_records
		WHERE user_id = $1 AND login_date >= $2
		ORDER BY login_date DESC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (r *Repository) InsertGameLaunch(ctx context.Context, userID, gameID int64, date time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_game_launches (user_id, game_id, launch_date, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, game_id, launch_date) DO NOTHING
	`, userID, gameID, date)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) CountDistinctLaunches(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT game_id)
		FROM user_game_launches
		WHERE user_id = $1 AND launch_date >= $2
	`, userID, since).Scan(&n)
	return n, err
}

// InsertPlaySession is keyed on event_id: redelivery of the same ingress
// event never creates a second row.
func (r *Repository) InsertPlaySession(ctx context.Context, s domain.PlaySession) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO games_play_record (event_id, user_id, game_id, score, played_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, s.EventID, s.UserID, s.GameID, s.Score, s.PlayedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) PlayStatsInWindow(ctx context.Context, userID int64, since time.Time) (domain.PlayStats, error) {
	var stats domain.PlayStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(score), 0)
		FROM games_play_record
		WHERE user_id = $1 AND played_at >= $2
	`, userID, since).Scan(&stats.Count, &stats.TotalScore)
	return stats, err
}
