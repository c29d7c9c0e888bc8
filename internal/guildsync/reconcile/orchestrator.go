package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/provider"
	"github.com/ashgrove-games/talespinner/internal/guildsync/storage"
)

// Orchestrator drives campaign-level synchronization, composing the
// Reconciler's primitives into full and single-entity passes.
type Orchestrator struct {
	store      storage.EntityStore
	provider   provider.ChannelProvider
	reconciler *Reconciler
	clock      func() time.Time
}

// NewOrchestrator creates an Orchestrator with default dependencies.
func NewOrchestrator(store storage.EntityStore, p provider.ChannelProvider, reconciler *Reconciler) *Orchestrator {
	return &Orchestrator{
		store:      store,
		provider:   p,
		reconciler: reconciler,
		clock:      time.Now,
	}
}

// ResyncCampaign recomputes the campaign's entire desired topology from live
// entity data and reconciles the guild against it. The pass is
// level-triggered and idempotent: category first, then common channels,
// books, and characters, then garbage collection of orphans, then ordering.
// GC and sort run last because both need the fully-updated set of desired ids.
func (o *Orchestrator) ResyncCampaign(ctx context.Context, campaign domain.Campaign) error {
	category, err := o.reconciler.ConfirmCategory(ctx, campaign.GuildID, campaign.CategoryChannelID, domain.CategoryName(campaign))
	if err != nil {
		return err
	}
	if campaign.CategoryChannelID != category.ID {
		campaign.CategoryChannelID = category.ID
		if err := o.putCampaign(ctx, &campaign); err != nil {
			return err
		}
	}

	existing, err := o.provider.ChannelsInCategory(ctx, campaign.GuildID, category.ID)
	if err != nil {
		return fmt.Errorf("list campaign channels: %w", err)
	}

	keep := make(map[string]bool)

	general, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForGeneral(campaign))
	if err != nil {
		return err
	}
	keep[general.ID] = true

	storyteller, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForStoryteller(campaign))
	if err != nil {
		return err
	}
	keep[storyteller.ID] = true

	if campaign.GeneralChannelID != general.ID || campaign.StorytellerChannelID != storyteller.ID {
		campaign.GeneralChannelID = general.ID
		campaign.StorytellerChannelID = storyteller.ID
		if err := o.putCampaign(ctx, &campaign); err != nil {
			return err
		}
	}

	books, err := o.store.ListBooks(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}
	for _, book := range books {
		channel, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForBook(book))
		if err != nil {
			return err
		}
		keep[channel.ID] = true
		if book.ChannelID != channel.ID {
			book.ChannelID = channel.ID
			if err := o.store.PutBook(ctx, book); err != nil {
				return fmt.Errorf("write back book channel id: %w", err)
			}
		}
	}

	for _, list := range []func(context.Context, string) ([]domain.Character, error){
		o.store.ListPlayerCharacters,
		o.store.ListStorytellerCharacters,
	} {
		characters, err := list(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("list characters: %w", err)
		}
		for _, character := range characters {
			channel, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForCharacter(character))
			if err != nil {
				return err
			}
			keep[channel.ID] = true
			if character.ChannelID != channel.ID {
				character.ChannelID = channel.ID
				if err := o.store.PutCharacter(ctx, character); err != nil {
					return fmt.Errorf("write back character channel id: %w", err)
				}
			}
		}
	}

	// Re-list so channels created or renamed above are observed with their
	// final names before the sweep.
	current, err := o.provider.ChannelsInCategory(ctx, campaign.GuildID, category.ID)
	if err != nil {
		return fmt.Errorf("list channels for sweep: %w", err)
	}
	if err := o.reconciler.RemoveUnusedChannels(ctx, campaign.GuildID, current, keep); err != nil {
		return err
	}

	if err := o.reconciler.SortChannels(ctx, campaign.GuildID, category.ID); err != nil {
		return err
	}

	log.Printf("campaign %q resynced in guild %s", campaign.Name, campaign.GuildID)
	return nil
}

// ConfirmBookChannel is the edge-triggered path for a single book: confirm
// its channel and re-sort, without the cost of a full resync. A missing
// campaign or category means someone deleted it out from under us; that is
// logged and skipped, not an error.
func (o *Orchestrator) ConfirmBookChannel(ctx context.Context, book domain.Book, campaign *domain.Campaign) error {
	campaign, err := o.resolveCampaign(ctx, book.CampaignID, campaign)
	if err != nil || campaign == nil {
		return err
	}
	category, ok, err := o.campaignCategory(ctx, *campaign)
	if err != nil || !ok {
		return err
	}

	existing, err := o.provider.ChannelsInCategory(ctx, campaign.GuildID, category.ID)
	if err != nil {
		return fmt.Errorf("list campaign channels: %w", err)
	}

	channel, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForBook(book))
	if err != nil {
		return err
	}
	if book.ChannelID != channel.ID {
		book.ChannelID = channel.ID
		if err := o.store.PutBook(ctx, book); err != nil {
			return fmt.Errorf("write back book channel id: %w", err)
		}
	}
	return o.reconciler.SortChannels(ctx, campaign.GuildID, category.ID)
}

// ConfirmCharacterChannel is the edge-triggered path for a single character.
func (o *Orchestrator) ConfirmCharacterChannel(ctx context.Context, character domain.Character, campaign *domain.Campaign) error {
	campaign, err := o.resolveCampaign(ctx, character.CampaignID, campaign)
	if err != nil || campaign == nil {
		return err
	}
	category, ok, err := o.campaignCategory(ctx, *campaign)
	if err != nil || !ok {
		return err
	}

	existing, err := o.provider.ChannelsInCategory(ctx, campaign.GuildID, category.ID)
	if err != nil {
		return fmt.Errorf("list campaign channels: %w", err)
	}

	channel, err := o.reconciler.ConfirmChannel(ctx, campaign.GuildID, category.ID, existing, domain.TargetForCharacter(character))
	if err != nil {
		return err
	}
	if character.ChannelID != channel.ID {
		character.ChannelID = channel.ID
		if err := o.store.PutCharacter(ctx, character); err != nil {
			return fmt.Errorf("write back character channel id: %w", err)
		}
	}
	return o.reconciler.SortChannels(ctx, campaign.GuildID, category.ID)
}

// DeleteBookChannel deletes a single book's channel and clears its recorded id.
func (o *Orchestrator) DeleteBookChannel(ctx context.Context, book domain.Book) error {
	if book.ChannelID == "" {
		return nil
	}
	campaign, err := o.resolveCampaign(ctx, book.CampaignID, nil)
	if err != nil || campaign == nil {
		return err
	}
	if err := o.reconciler.DeleteChannel(ctx, campaign.GuildID, book.ChannelID); err != nil {
		return err
	}
	book.ChannelID = ""
	if err := o.store.PutBook(ctx, book); err != nil {
		return fmt.Errorf("clear book channel id: %w", err)
	}
	return nil
}

// DeleteCharacterChannel deletes a single character's channel and clears its
// recorded id.
func (o *Orchestrator) DeleteCharacterChannel(ctx context.Context, character domain.Character) error {
	if character.ChannelID == "" {
		return nil
	}
	campaign, err := o.resolveCampaign(ctx, character.CampaignID, nil)
	if err != nil || campaign == nil {
		return err
	}
	if err := o.reconciler.DeleteChannel(ctx, campaign.GuildID, character.ChannelID); err != nil {
		return err
	}
	character.ChannelID = ""
	if err := o.store.PutCharacter(ctx, character); err != nil {
		return fmt.Errorf("clear character channel id: %w", err)
	}
	return nil
}

// DeleteCampaignChannels tears down every channel belonging to the campaign:
// book and character channels first, then the common channels, and the
// category last. Each recorded id is cleared as its channel goes, so an
// interrupted teardown never leaves an entity referencing a deleted category.
func (o *Orchestrator) DeleteCampaignChannels(ctx context.Context, campaign domain.Campaign) error {
	books, err := o.store.ListBooks(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}
	for _, book := range books {
		if err := o.DeleteBookChannel(ctx, book); err != nil {
			return err
		}
	}

	for _, list := range []func(context.Context, string) ([]domain.Character, error){
		o.store.ListPlayerCharacters,
		o.store.ListStorytellerCharacters,
	} {
		characters, err := list(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("list characters: %w", err)
		}
		for _, character := range characters {
			if err := o.DeleteCharacterChannel(ctx, character); err != nil {
				return err
			}
		}
	}

	if campaign.GeneralChannelID != "" {
		if err := o.reconciler.DeleteChannel(ctx, campaign.GuildID, campaign.GeneralChannelID); err != nil {
			return err
		}
		campaign.GeneralChannelID = ""
		if err := o.putCampaign(ctx, &campaign); err != nil {
			return err
		}
	}
	if campaign.StorytellerChannelID != "" {
		if err := o.reconciler.DeleteChannel(ctx, campaign.GuildID, campaign.StorytellerChannelID); err != nil {
			return err
		}
		campaign.StorytellerChannelID = ""
		if err := o.putCampaign(ctx, &campaign); err != nil {
			return err
		}
	}

	if campaign.CategoryChannelID != "" {
		if err := o.reconciler.DeleteChannel(ctx, campaign.GuildID, campaign.CategoryChannelID); err != nil {
			return err
		}
		campaign.CategoryChannelID = ""
		if err := o.putCampaign(ctx, &campaign); err != nil {
			return err
		}
	}

	log.Printf("campaign %q channels deleted in guild %s", campaign.Name, campaign.GuildID)
	return nil
}

func (o *Orchestrator) putCampaign(ctx context.Context, campaign *domain.Campaign) error {
	campaign.UpdatedAt = o.clock().UTC()
	if err := o.store.PutCampaign(ctx, *campaign); err != nil {
		return fmt.Errorf("write back campaign: %w", err)
	}
	return nil
}

// resolveCampaign returns the campaign, fetching it when the caller did not
// already have it. A missing campaign resolves to (nil, nil): the entity was
// deleted underneath us and the operation is skipped.
func (o *Orchestrator) resolveCampaign(ctx context.Context, campaignID string, campaign *domain.Campaign) (*domain.Campaign, error) {
	if campaign != nil {
		return campaign, nil
	}
	fetched, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			log.Printf("campaign %s not found, skipping sync", campaignID)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch campaign %s: %w", campaignID, err)
	}
	return &fetched, nil
}

// campaignCategory resolves the campaign's recorded category. A cleared or
// dangling id resolves to ok=false: without a category there is nothing to
// reconcile into, and the next full resync will recreate it.
func (o *Orchestrator) campaignCategory(ctx context.Context, campaign domain.Campaign) (provider.Channel, bool, error) {
	if campaign.CategoryChannelID == "" {
		log.Printf("campaign %q has no category yet, skipping sync", campaign.Name)
		return provider.Channel{}, false, nil
	}
	category, ok, err := o.provider.GetChannel(ctx, campaign.GuildID, campaign.CategoryChannelID)
	if err != nil {
		return provider.Channel{}, false, fmt.Errorf("fetch category %s: %w", campaign.CategoryChannelID, err)
	}
	if !ok {
		log.Printf("campaign %q category %s is gone, skipping sync", campaign.Name, campaign.CategoryChannelID)
		return provider.Channel{}, false, nil
	}
	return category, true, nil
}
