// Package storage defines the persistence interfaces the synchronizer
// depends on: the campaign entity store and the web-sync outbox.
package storage

import (
	"context"
	"time"

	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
)

// EntityStore persists campaigns, books, and characters, including the
// channel ids written back by reconciliation passes.
type EntityStore interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	PutCampaign(ctx context.Context, campaign domain.Campaign) error
	ListCampaignsByGuild(ctx context.Context, guildID string) ([]domain.Campaign, error)

	GetBook(ctx context.Context, id string) (domain.Book, error)
	PutBook(ctx context.Context, book domain.Book) error
	// ListBooks returns the campaign's books ordered by book number.
	ListBooks(ctx context.Context, campaignID string) ([]domain.Book, error)

	GetCharacter(ctx context.Context, id string) (domain.Character, error)
	PutCharacter(ctx context.Context, character domain.Character) error
	ListPlayerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error)
	ListStorytellerCharacters(ctx context.Context, campaignID string) ([]domain.Character, error)
}

// Outbox object types bridged from the web editor.
const (
	ObjectTypeCampaign  = "campaign"
	ObjectTypeBook      = "book"
	ObjectTypeCharacter = "character"
)

// Outbox update types.
const (
	UpdateTypeCreate = "CREATE"
	UpdateTypeUpdate = "UPDATE"
	UpdateTypeDelete = "DELETE"
)

// Outbox record statuses. A record is pending until a drain succeeds
// (processed) or exhausts its attempts (dead).
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// OutboxRecord is one sync request appended by the web write path, which
// cannot reach Discord itself. The consumer drains records in arrival order
// and replays them through the orchestrator.
type OutboxRecord struct {
	ID         string
	Target     string
	ObjectType string
	ObjectID   string
	GuildID    string
	// UserID is the acting user, kept for permission context and audit.
	UserID     string
	UpdateType string
	Status     string
	// AttemptCount counts failed drains. Records dead-letter once it
	// reaches the consumer's attempt cap.
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// Processed reports whether the record completed successfully.
func (r OutboxRecord) Processed() bool {
	return r.Status == StatusProcessed
}

// OutboxSummary reports queue depth by status and the oldest pending record.
type OutboxSummary struct {
	PendingCount    int
	ProcessedCount  int
	DeadCount       int
	OldestPendingAt time.Time
}

// OutboxStore persists the web-to-Discord sync outbox.
type OutboxStore interface {
	// Enqueue appends a new pending record.
	Enqueue(ctx context.Context, record OutboxRecord) error
	// ListDue returns pending records whose next attempt time has passed,
	// oldest first.
	ListDue(ctx context.Context, target string, now time.Time, limit int) ([]OutboxRecord, error)
	// MarkProcessed finalizes a record after a successful drain.
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	// MarkFailed records a failed attempt and schedules the retry.
	MarkFailed(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error
	// MarkDead moves a record to the dead-letter state.
	MarkDead(ctx context.Context, id string, lastError string, at time.Time) error
	// Requeue returns a dead record to pending with a cleared attempt count.
	Requeue(ctx context.Context, id string, at time.Time) error
	// ListByStatus returns records in a given status, oldest first.
	ListByStatus(ctx context.Context, status string, limit int) ([]OutboxRecord, error)
	// Summary reports queue depth by status.
	Summary(ctx context.Context) (OutboxSummary, error)
}
