// Package outbox drains channel-sync requests appended by the web write
// path, which has no Discord connection of its own, and replays them through
// the campaign orchestrator.
package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/storage"
)

// Default consumer tuning.
const (
	DefaultMaxAttempts   = 5
	DefaultRetryBackoff  = 30 * time.Second
	DefaultRetryMaxDelay = 15 * time.Minute
	DefaultBatchSize     = 20
)

// Orchestrator is the slice of the campaign orchestrator the consumer
// dispatches into.
type Orchestrator interface {
	ResyncCampaign(ctx context.Context, campaign domain.Campaign) error
	ConfirmBookChannel(ctx context.Context, book domain.Book, campaign *domain.Campaign) error
	ConfirmCharacterChannel(ctx context.Context, character domain.Character, campaign *domain.Campaign) error
	DeleteCampaignChannels(ctx context.Context, campaign domain.Campaign) error
	DeleteBookChannel(ctx context.Context, book domain.Book) error
	DeleteCharacterChannel(ctx context.Context, character domain.Character) error
}

// Consumer drains due outbox records and applies them. Failed records retry
// with exponential backoff until MaxAttempts, then move to the dead-letter
// state where an operator can inspect and requeue them.
type Consumer struct {
	outbox       storage.OutboxStore
	entities     storage.EntityStore
	orchestrator Orchestrator
	clock        func() time.Time

	// Target selects which records this consumer owns.
	Target        string
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	BatchSize     int
}

// NewConsumer creates a Consumer with default tuning.
func NewConsumer(outbox storage.OutboxStore, entities storage.EntityStore, orchestrator Orchestrator, target string) *Consumer {
	return &Consumer{
		outbox:        outbox,
		entities:      entities,
		orchestrator:  orchestrator,
		clock:         time.Now,
		Target:        target,
		MaxAttempts:   DefaultMaxAttempts,
		RetryBackoff:  DefaultRetryBackoff,
		RetryMaxDelay: DefaultRetryMaxDelay,
		BatchSize:     DefaultBatchSize,
	}
}

// Drain processes one batch of due records in arrival order. Processing is
// at-least-once: a record is only marked processed after its sync applied,
// so a crash mid-batch replays the record on the next drain. Replays are
// safe because every sync operation is idempotent.
func (c *Consumer) Drain(ctx context.Context) error {
	if c == nil || c.outbox == nil {
		return nil
	}
	now := c.clock().UTC()
	records, err := c.outbox.ListDue(ctx, c.Target, now, c.BatchSize)
	if err != nil {
		return fmt.Errorf("list due outbox records: %w", err)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.dispatch(ctx, record); err != nil {
			c.recordFailure(ctx, record, err)
			continue
		}
		if err := c.outbox.MarkProcessed(ctx, record.ID, c.clock().UTC()); err != nil {
			return fmt.Errorf("mark outbox record %s processed: %w", record.ID, err)
		}
	}
	return nil
}

// dispatch routes one record to the sync operation its object and update
// types call for. An entity already deleted from the store is treated as
// success: the deletion raced ahead of the queue and the next full resync
// covers any leftover channel.
func (c *Consumer) dispatch(ctx context.Context, record storage.OutboxRecord) error {
	switch record.ObjectType {
	case storage.ObjectTypeCampaign:
		return c.dispatchCampaign(ctx, record)
	case storage.ObjectTypeBook:
		return c.dispatchBook(ctx, record)
	case storage.ObjectTypeCharacter:
		return c.dispatchCharacter(ctx, record)
	default:
		return apperrors.Newf(apperrors.CodeOutboxInvalidObjectType, "object type %q", record.ObjectType)
	}
}

func (c *Consumer) dispatchCampaign(ctx context.Context, record storage.OutboxRecord) error {
	campaign, err := c.entities.GetCampaign(ctx, record.ObjectID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Without the row the category id is unknown. The next resync of
			// surviving campaigns cannot reach it either, so this is logged
			// for the operator rather than silently retried.
			log.Printf("outbox: campaign %s already gone, skipping %s", record.ObjectID, record.UpdateType)
			return nil
		}
		return fmt.Errorf("fetch campaign %s: %w", record.ObjectID, err)
	}
	switch record.UpdateType {
	case storage.UpdateTypeCreate, storage.UpdateTypeUpdate:
		return c.orchestrator.ResyncCampaign(ctx, campaign)
	case storage.UpdateTypeDelete:
		return c.orchestrator.DeleteCampaignChannels(ctx, campaign)
	default:
		return apperrors.Newf(apperrors.CodeOutboxInvalidUpdateType, "update type %q", record.UpdateType)
	}
}

func (c *Consumer) dispatchBook(ctx context.Context, record storage.OutboxRecord) error {
	book, err := c.entities.GetBook(ctx, record.ObjectID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// The row is gone, so the orphaned channel can only be reached by
			// the sweep of a full resync.
			return c.resyncGuildCampaigns(ctx, record.GuildID)
		}
		return fmt.Errorf("fetch book %s: %w", record.ObjectID, err)
	}
	switch record.UpdateType {
	case storage.UpdateTypeCreate, storage.UpdateTypeUpdate:
		return c.orchestrator.ConfirmBookChannel(ctx, book, nil)
	case storage.UpdateTypeDelete:
		if err := c.orchestrator.DeleteBookChannel(ctx, book); err != nil {
			return err
		}
		return c.resyncCampaignByID(ctx, book.CampaignID)
	default:
		return apperrors.Newf(apperrors.CodeOutboxInvalidUpdateType, "update type %q", record.UpdateType)
	}
}

func (c *Consumer) dispatchCharacter(ctx context.Context, record storage.OutboxRecord) error {
	character, err := c.entities.GetCharacter(ctx, record.ObjectID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.resyncGuildCampaigns(ctx, record.GuildID)
		}
		return fmt.Errorf("fetch character %s: %w", record.ObjectID, err)
	}
	switch record.UpdateType {
	case storage.UpdateTypeCreate, storage.UpdateTypeUpdate:
		return c.orchestrator.ConfirmCharacterChannel(ctx, character, nil)
	case storage.UpdateTypeDelete:
		return c.orchestrator.DeleteCharacterChannel(ctx, character)
	default:
		return apperrors.Newf(apperrors.CodeOutboxInvalidUpdateType, "update type %q", record.UpdateType)
	}
}

func (c *Consumer) resyncCampaignByID(ctx context.Context, campaignID string) error {
	campaign, err := c.entities.GetCampaign(ctx, campaignID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			log.Printf("outbox: campaign %s already gone, skipping resync", campaignID)
			return nil
		}
		return fmt.Errorf("fetch campaign %s: %w", campaignID, err)
	}
	return c.orchestrator.ResyncCampaign(ctx, campaign)
}

// resyncGuildCampaigns runs a full resync of every campaign in the guild. The
// fallback when a record points at an entity the web path already deleted:
// the entity's channel is orphaned and only a resync sweep can remove it.
func (c *Consumer) resyncGuildCampaigns(ctx context.Context, guildID string) error {
	campaigns, err := c.entities.ListCampaignsByGuild(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list campaigns for guild %s: %w", guildID, err)
	}
	for _, campaign := range campaigns {
		if err := c.orchestrator.ResyncCampaign(ctx, campaign); err != nil {
			return err
		}
	}
	return nil
}

// recordFailure schedules a retry or dead-letters the record once its
// attempts are exhausted. Bookkeeping failures are logged, not returned: the
// record stays due and the next drain retries it.
func (c *Consumer) recordFailure(ctx context.Context, record storage.OutboxRecord, cause error) {
	attempts := record.AttemptCount + 1
	now := c.clock().UTC()

	if attempts >= c.MaxAttempts {
		log.Printf("outbox: record %s dead after %d attempts: %v", record.ID, attempts, cause)
		if err := c.outbox.MarkDead(ctx, record.ID, cause.Error(), now); err != nil {
			log.Printf("outbox: mark record %s dead: %v", record.ID, err)
		}
		return
	}

	next := now.Add(c.backoff(attempts))
	log.Printf("outbox: record %s attempt %d failed, retry at %s: %v", record.ID, attempts, next.Format(time.RFC3339), cause)
	if err := c.outbox.MarkFailed(ctx, record.ID, attempts, cause.Error(), next); err != nil {
		log.Printf("outbox: mark record %s failed: %v", record.ID, err)
	}
}

// backoff returns the delay before the given attempt number's retry,
// doubling per attempt and capped at RetryMaxDelay.
func (c *Consumer) backoff(attempts int) time.Duration {
	delay := c.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= c.RetryMaxDelay {
			return c.RetryMaxDelay
		}
	}
	if delay > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return delay
}
