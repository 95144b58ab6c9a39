package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

// DistributeReward inserts the guard row and increments the user's points in
// one transaction. If the guard insert hits the unique key, nothing changes
// and (false, nil) is returned. A guard insert that succeeds while the points
// update matches no user aborts the tx: the reward row must not be orphaned.
func (r *Repository) DistributeReward(ctx context.Context, userID int64, rewardType, period string, points int, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO mission_rewards (user_id, reward_type, reward_period, points, distributed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, reward_type, reward_period) DO NOTHING
	`, userID, rewardType, period, points, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Already rewarded this period.
		return false, tx.Commit(ctx)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE users
		SET points = points + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, points)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("%w: user %d", domain.ErrPointsNotApplied, userID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) RewardsByUser(ctx context.Context, userID int64) ([]domain.Reward, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, reward_type, reward_period, points, distributed_at
		FROM mission_rewards
		WHERE user_id = $1
		ORDER BY distributed_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []domain.Reward
	for rows.Next() {
		var rw domain.Reward
		if err := rows.Scan(&rw.ID, &rw.UserID, &rw.RewardType, &rw.RewardPeriod, &rw.Points, &rw.DistributedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}
