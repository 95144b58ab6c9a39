package postgres

import (
	"context"
	"time"

	"github.com/herverfred/mission-center/internal/metrics"
	"github.com/herverfred/mission-center/internal/pkg/logger"
)

const (
	outboxBatchSize = 20
	// Claimed rows stay invisible to other sweepers for this long; it must
	// exceed the publish path's worst case.
	outboxInFlight = 15 * time.Second
)

// RawPublisher re-publishes a buffered payload synchronously.
type RawPublisher interface {
	PublishRaw(ctx context.Context, topic, eventID string, body []byte) error
}

// SweeperConfig carries the retry knobs. Zero values take the spec defaults.
type SweeperConfig struct {
	Every      time.Duration // sweep interval, default 30s
	RetryDelay time.Duration // fixed backoff between attempts, default 30s
}

// StartOutboxSweeper periodically re-publishes PENDING rows. The outbox is
// not an ordered queue: reordering under retry is fine because every
// downstream consumer is idempotent. Multiple processes may sweep; duplicates
// land on those same idempotent consumers.
func (r *Repository) StartOutboxSweeper(ctx context.Context, pub RawPublisher, cfg SweeperConfig) {
	if cfg.Every == 0 {
		cfg.Every = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = outboxRetryDelay
	}

	go func() {
		log := logger.Logger.With().Str("component", "outbox_sweeper").Logger()

		ticker := time.NewTicker(cfg.Every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				if err := r.sweepOnce(ctx, pub, cfg.RetryDelay); err != nil {
					log.Warn().Err(err).Msg("outbox sweep failed")
				}
			}
		}
	}()
}

func (r *Repository) sweepOnce(ctx context.Context, pub RawPublisher, retryDelay time.Duration) error {
	batch, err := r.claimDue(ctx, outboxBatchSize, outboxInFlight)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	log := logger.Logger.With().Str("component", "outbox_sweeper").Logger()
	log.Info().Int("pending", len(batch)).Msg("re-publishing outbox messages")

	for _, m := range batch {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pub.PublishRaw(pubCtx, m.Topic, m.EventID, m.Payload)
		cancel()

		if err == nil {
			if derr := r.deleteSent(ctx, m.ID); derr != nil {
				log.Warn().Err(derr).Str("event_id", m.EventID).Msg("sent row delete failed")
			}
			metrics.OutboxResent()
			log.Info().
				Str("event_id", m.EventID).
				Str("topic", m.Topic).
				Msg("outbox message re-published")
			continue
		}

		dead, merr := r.markRetry(ctx, m, err.Error(), retryDelay)
		if merr != nil {
			log.Warn().Err(merr).Str("event_id", m.EventID).Msg("retry bookkeeping failed")
			continue
		}
		if dead {
			metrics.OutboxDead()
			log.Error().
				Str("event_id", m.EventID).
				Str("topic", m.Topic).
				Int("retries", m.RetryCount+1).
				Msg("outbox message exceeded max retries; marked FAILED")
		} else {
			metrics.OutboxRetried()
			log.Warn().
				Err(err).
				Str("event_id", m.EventID).
				Str("topic", m.Topic).
				Int("retries", m.RetryCount+1).
				Msg("outbox re-publish failed; scheduled retry")
		}
	}
	return nil
}
