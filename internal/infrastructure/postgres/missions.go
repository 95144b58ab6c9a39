package postgres

import (
	"context"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

func (r *Repository) MissionsInCycle(ctx context.Context, userID int64, since time.Time) ([]domain.Mission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, mission_type, cycle_start_date, is_completed, completed_at, created_at
		FROM missions
		WHERE user_id = $1
		  AND cycle_start_date >= $2
		ORDER BY cycle_start_date DESC, mission_type
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []domain.Mission
	for rows.Next() {
		var m domain.Mission
		var mt string
		if err := rows.Scan(&m.ID, &m.UserID, &mt, &m.CycleStartDate, &m.IsCompleted, &m.CompletedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = domain.MissionType(mt)
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

func (r *Repository) CountMissionsInCycle(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM missions
		WHERE user_id = $1 AND cycle_start_date >= $2
	`, userID, since).Scan(&n)
	return n, err
}

func (r *Repository) CountCompletedInCycle(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM missions
		WHERE user_id = $1 AND cycle_start_date >= $2 AND is_completed
	`, userID, since).Scan(&n)
	return n, err
}

func (r *Repository) InsertMission(ctx context.Context, userID int64, mt domain.MissionType, cycleStart time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO missions (user_id, mission_type, cycle_start_date, is_completed, created_at)
		VALUES ($1, $2, $3, false, NOW())
		ON CONFLICT (user_id, mission_type, cycle_start_date) DO NOTHING
	`, userID, string(mt), cycleStart)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteMission is the CAS transition: the WHERE clause lets exactly one
// concurrent caller observe a row count of 1.
func (r *Repository) CompleteMission(ctx context.Context, missionID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE missions
		SET is_completed = true,
		    completed_at = $2
		WHERE id = $1
		  AND is_completed = false
	`, missionID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
