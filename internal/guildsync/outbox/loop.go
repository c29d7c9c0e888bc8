package outbox

import (
	"context"
	"log"
	"time"
)

// DefaultPollInterval is how often the loop drains when idle.
const DefaultPollInterval = 15 * time.Second

// Loop drains the consumer on a fixed interval until the context ends. Drain
// errors are logged and the loop keeps polling; a broken store or provider
// should not take the bot down.
func Loop(ctx context.Context, consumer *Consumer, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := consumer.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("outbox: drain failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
