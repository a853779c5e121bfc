package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"

	"github.com/jpillora/backoff"
)

// withRetry calls fn until it succeeds, fails with something other than a rate limit,
// or the configured retries are used up. Each wait is announced through emit.
func (s *SyncService) withRetry(ctx context.Context, op string, phase domain.SyncPhase, emit func(domain.Progress), fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    s.cfg.RateLimitBaseDelay,
		Max:    s.cfg.RateLimitMaxDelay,
		Factor: 2,
		Jitter: true,
	}
	for {
		err := fn(ctx)
		if err == nil || !errors.Is(err, ports.ErrRateLimited) {
			return err
		}
		attempt := int(b.Attempt()) + 1
		if attempt > s.cfg.RateLimitMaxRetries {
			return fmt.Errorf("%s still rate limited after %d retries: %w", op, s.cfg.RateLimitMaxRetries, err)
		}

		delay := b.Duration()
		s.metrics.FetchRetries.WithLabelValues(op).Inc()
		s.logger.Warn(ctx, "Rate limited, backing off", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
		})
		if emit != nil {
			emit(domain.Progress{
				Phase:   phase,
				Message: fmt.Sprintf("rate limited on %s, retrying in %s (%d/%d)", op, delay.Round(time.Millisecond), attempt, s.cfg.RateLimitMaxRetries),
			})
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s canceled while backing off: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-t.C:
		}
	}
}
