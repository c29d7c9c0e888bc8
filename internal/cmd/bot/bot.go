// Package bot parses bot command flags and launches the bot runtime.
package bot

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/ashgrove-games/talespinner/internal/platform/cmd"
)

// Config holds bot command configuration.
type Config struct {
	Port          int           `env:"TALESPINNER_BOT_PORT" envDefault:"8091"`
	BotToken      string        `env:"TALESPINNER_BOT_TOKEN"`
	DBPath        string        `env:"TALESPINNER_BOT_DB_PATH" envDefault:"data/talespinner.db"`
	OutboxTarget  string        `env:"TALESPINNER_BOT_OUTBOX_TARGET" envDefault:"discord"`
	PollInterval  time.Duration `env:"TALESPINNER_BOT_POLL_INTERVAL" envDefault:"15s"`
	PaceInterval  time.Duration `env:"TALESPINNER_BOT_PACE_INTERVAL" envDefault:"1200ms"`
	MaxAttempts   int           `env:"TALESPINNER_BOT_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff  time.Duration `env:"TALESPINNER_BOT_RETRY_BACKOFF" envDefault:"30s"`
	RetryMaxDelay time.Duration `env:"TALESPINNER_BOT_RETRY_MAX_DELAY" envDefault:"15m"`
	BatchSize     int           `env:"TALESPINNER_BOT_BATCH_SIZE" envDefault:"20"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The bot health gRPC server port")
	fs.StringVar(&cfg.BotToken, "bot-token", cfg.BotToken, "The Discord bot token")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The bot SQLite database path")
	fs.StringVar(&cfg.OutboxTarget, "outbox-target", cfg.OutboxTarget, "Sync outbox target this bot drains")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Sync outbox poll interval")
	fs.DurationVar(&cfg.PaceInterval, "pace-interval", cfg.PaceInterval, "Delay between mutating Discord calls")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum records drained per poll")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the bot runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBot, func(context.Context) error {
		return runRuntime(ctx, cfg)
	})
}
