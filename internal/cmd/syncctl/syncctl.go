// Package syncctl implements the operator CLI for the sync engine: outbox
// inspection, dead-letter requeue, and one-shot campaign resync triggers.
package syncctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/ashgrove-games/talespinner/internal/guildsync/storage"
	guildsqlite "github.com/ashgrove-games/talespinner/internal/guildsync/storage/sqlite"
	entrypoint "github.com/ashgrove-games/talespinner/internal/platform/cmd"
	"github.com/ashgrove-games/talespinner/internal/platform/timeouts"
)

// Config holds syncctl command configuration.
type Config struct {
	DBPath  string        `env:"TALESPINNER_BOT_DB_PATH" envDefault:"data/talespinner.db"`
	Target  string        `env:"TALESPINNER_BOT_OUTBOX_TARGET" envDefault:"discord"`
	Timeout time.Duration `env:"TALESPINNER_SYNCCTL_TIMEOUT" envDefault:"30s"`
	Limit   int

	// Command is the first positional argument: summary, dead, requeue, or
	// resync. Args holds the remaining positional arguments.
	Command string
	Args    []string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.CLIRequest
	}
	cfg.Limit = 50
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The bot SQLite database path")
	fs.StringVar(&cfg.Target, "target", cfg.Target, "Sync outbox target")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Operation timeout")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Maximum records to list")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("usage: syncctl [flags] summary|dead|requeue|resync [args]")
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

// Run executes one syncctl command against the bot's database.
func Run(ctx context.Context, cfg Config, stdout io.Writer) error {
	store, err := guildsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer store.Close()

	switch cfg.Command {
	case "summary":
		return runSummary(ctx, store, stdout)
	case "dead":
		return runDead(ctx, store, cfg.Limit, stdout)
	case "requeue":
		return runRequeue(ctx, store, cfg.Args, stdout)
	case "resync":
		return runResync(ctx, store, cfg.Target, cfg.Args, stdout)
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

// runSummary prints queue depth by status.
func runSummary(ctx context.Context, store *guildsqlite.Store, stdout io.Writer) error {
	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "pending:   %d\n", summary.PendingCount)
	fmt.Fprintf(stdout, "processed: %d\n", summary.ProcessedCount)
	fmt.Fprintf(stdout, "dead:      %d\n", summary.DeadCount)
	if !summary.OldestPendingAt.IsZero() {
		fmt.Fprintf(stdout, "oldest pending: %s\n", summary.OldestPendingAt.Format(time.RFC3339))
	}
	return nil
}

// runDead lists dead-lettered records with their last error.
func runDead(ctx context.Context, store *guildsqlite.Store, limit int, stdout io.Writer) error {
	records, err := store.ListByStatus(ctx, storage.StatusDead, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "no dead records")
		return nil
	}
	for _, record := range records {
		fmt.Fprintf(stdout, "%s  %s %s %s  attempts=%d  %s\n",
			record.ID, record.ObjectType, record.UpdateType, record.ObjectID,
			record.AttemptCount, record.LastError)
	}
	return nil
}

// runRequeue moves dead records back to pending.
func runRequeue(ctx context.Context, store *guildsqlite.Store, ids []string, stdout io.Writer) error {
	if len(ids) == 0 {
		return fmt.Errorf("usage: syncctl requeue <record-id>...")
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if err := store.Requeue(ctx, id, now); err != nil {
			return fmt.Errorf("requeue %s: %w", id, err)
		}
		fmt.Fprintf(stdout, "requeued %s\n", id)
	}
	return nil
}

// runResync enqueues a full resync for one campaign, or for every campaign in
// a guild. The bot's drain loop picks the records up on its next poll.
func runResync(ctx context.Context, store *guildsqlite.Store, target string, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: syncctl resync <campaign-id> | syncctl resync -guild <guild-id>")
	}

	var campaignIDs []string
	var guildID string
	if args[0] == "-guild" {
		if len(args) < 2 {
			return fmt.Errorf("usage: syncctl resync -guild <guild-id>")
		}
		guildID = args[1]
		campaigns, err := store.ListCampaignsByGuild(ctx, guildID)
		if err != nil {
			return err
		}
		for _, campaign := range campaigns {
			campaignIDs = append(campaignIDs, campaign.ID)
		}
	} else {
		campaign, err := store.GetCampaign(ctx, args[0])
		if err != nil {
			return err
		}
		campaignIDs = append(campaignIDs, campaign.ID)
		guildID = campaign.GuildID
	}

	for _, id := range campaignIDs {
		err := store.Enqueue(ctx, storage.OutboxRecord{
			Target:     target,
			ObjectType: storage.ObjectTypeCampaign,
			ObjectID:   id,
			GuildID:    guildID,
			UpdateType: storage.UpdateTypeUpdate,
		})
		if err != nil {
			return fmt.Errorf("enqueue resync for %s: %w", id, err)
		}
		fmt.Fprintf(stdout, "resync queued for campaign %s\n", id)
	}
	return nil
}
