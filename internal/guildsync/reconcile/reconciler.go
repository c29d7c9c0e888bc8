// Package reconcile computes and applies the difference between the channel
// topology a campaign should have and the topology its guild actually has.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/provider"
)

// defaultPaceInterval spaces mutating provider calls far enough apart to stay
// under Discord's shared per-guild rate limit.
const defaultPaceInterval = 1200 * time.Millisecond

// Reconciler performs idempotent upsert, rename-on-drift, orphan deletion,
// and canonical ordering for the channels of one category. All mutating
// provider calls wait on the shared pacer first.
type Reconciler struct {
	provider provider.ChannelProvider
	pacer    *rate.Limiter
}

// NewReconciler creates a Reconciler. A nil pacer falls back to the default
// pacing interval.
func NewReconciler(p provider.ChannelProvider, pacer *rate.Limiter) *Reconciler {
	if pacer == nil {
		pacer = rate.NewLimiter(rate.Every(defaultPaceInterval), 1)
	}
	return &Reconciler{provider: p, pacer: pacer}
}

func (r *Reconciler) pace(ctx context.Context) error {
	return r.pacer.Wait(ctx)
}

// ConfirmChannel ensures a channel matching the target exists in the
// category and carries the target's name, topic, and permissions.
//
// Match priority, first hit wins:
//
//  1. Name match. The canonical name is the identity players see, so an
//     existing channel with the target name is authoritative even when its id
//     differs from the recorded one. Updating it in place self-heals a stale
//     stored id.
//  2. Recorded-id match. The underlying entity was renamed; the channel is
//     renamed in place rather than recreated.
//  3. Neither: create a new channel.
//
// Callers must write the returned channel's id back to the owning entity
// when it differs from the recorded id.
func (r *Reconciler) ConfirmChannel(ctx context.Context, guildID, categoryID string, existing []provider.Channel, target domain.SyncTarget) (provider.Channel, error) {
	overwrites := domain.OverwritesFor(target.Kind, target.OwnerUserID)

	for _, channel := range existing {
		if channel.Name != target.Name {
			continue
		}
		if target.KnownChannelID != "" && channel.ID != target.KnownChannelID {
			log.Printf("channel %q exists with id %s, recorded id %s is stale", target.Name, channel.ID, target.KnownChannelID)
		}
		if channelInSync(channel, categoryID, target, overwrites) {
			return channel, nil
		}
		if err := r.editChannel(ctx, guildID, categoryID, channel.ID, target, overwrites); err != nil {
			return provider.Channel{}, err
		}
		channel.Topic = target.Topic
		channel.CategoryID = categoryID
		channel.Overwrites = overwrites
		return channel, nil
	}

	if target.KnownChannelID != "" {
		for _, channel := range existing {
			if channel.ID != target.KnownChannelID {
				continue
			}
			log.Printf("channel %s drifted to name %q, renaming to %q", channel.ID, channel.Name, target.Name)
			if err := r.editChannel(ctx, guildID, categoryID, channel.ID, target, overwrites); err != nil {
				return provider.Channel{}, err
			}
			channel.Name = target.Name
			channel.Topic = target.Topic
			channel.CategoryID = categoryID
			channel.Overwrites = overwrites
			return channel, nil
		}
	}

	if err := r.pace(ctx); err != nil {
		return provider.Channel{}, err
	}
	log.Printf("creating channel %q in category %s", target.Name, categoryID)
	channel, err := r.provider.CreateTextChannel(ctx, guildID, categoryID, target.Name, target.Topic, overwrites)
	if err != nil {
		return provider.Channel{}, fmt.Errorf("create channel %q: %w", target.Name, err)
	}
	return channel, nil
}

func (r *Reconciler) editChannel(ctx context.Context, guildID, categoryID, channelID string, target domain.SyncTarget, overwrites []domain.Overwrite) error {
	if err := r.pace(ctx); err != nil {
		return err
	}
	edit := provider.ChannelEdit{
		Name:       &target.Name,
		Topic:      &target.Topic,
		CategoryID: &categoryID,
		Overwrites: overwrites,
	}
	if err := r.provider.EditTextChannel(ctx, guildID, channelID, edit); err != nil {
		return fmt.Errorf("update channel %q: %w", target.Name, err)
	}
	return nil
}

// channelInSync reports whether an observed channel already carries the
// target's topic, category, and permission overwrites. Name equality is the
// caller's match condition. An in-sync channel needs no edit, so a repeat
// pass over an unchanged campaign issues no mutating calls.
func channelInSync(channel provider.Channel, categoryID string, target domain.SyncTarget, overwrites []domain.Overwrite) bool {
	return channel.Topic == target.Topic &&
		channel.CategoryID == categoryID &&
		overwritesEqual(channel.Overwrites, overwrites)
}

// overwritesEqual compares observed overwrites against the desired set by
// subject. Desired entries with default access are ignored because the
// provider writes no overwrite for them.
func overwritesEqual(observed, desired []domain.Overwrite) bool {
	type subject struct {
		kind   domain.OverwriteSubject
		userID string
	}
	want := make(map[subject]domain.AccessLevel)
	for _, overwrite := range desired {
		if overwrite.Access == domain.AccessDefault {
			continue
		}
		want[subject{overwrite.Subject, overwrite.UserID}] = overwrite.Access
	}
	if len(observed) != len(want) {
		return false
	}
	for _, overwrite := range observed {
		access, ok := want[subject{overwrite.Subject, overwrite.UserID}]
		if !ok || access != overwrite.Access {
			return false
		}
	}
	return true
}

// ConfirmCategory ensures the campaign's category exists under the given
// canonical name. A recorded id pointing at a deleted category is replaced by
// a fresh create; a name drift is corrected in place.
func (r *Reconciler) ConfirmCategory(ctx context.Context, guildID, knownChannelID, name string) (provider.Channel, error) {
	if knownChannelID != "" {
		category, ok, err := r.provider.GetChannel(ctx, guildID, knownChannelID)
		if err != nil {
			return provider.Channel{}, fmt.Errorf("fetch category %s: %w", knownChannelID, err)
		}
		if ok {
			if category.Name == name {
				return category, nil
			}
			if err := r.pace(ctx); err != nil {
				return provider.Channel{}, err
			}
			log.Printf("renaming category %s to %q", category.ID, name)
			if err := r.provider.EditCategory(ctx, category.ID, name); err != nil {
				return provider.Channel{}, fmt.Errorf("rename category %q: %w", name, err)
			}
			category.Name = name
			return category, nil
		}
	}

	if err := r.pace(ctx); err != nil {
		return provider.Channel{}, err
	}
	log.Printf("creating category %q", name)
	category, err := r.provider.CreateCategory(ctx, guildID, name)
	if err != nil {
		return provider.Channel{}, fmt.Errorf("create category %q: %w", name, err)
	}
	return category, nil
}

// RemoveUnusedChannels deletes every channel whose name marks it as managed
// but whose id is absent from keep. This is mark-and-sweep, not a
// transactional diff: a channel another actor created with a managed prefix
// is swept as well. Channels with unrecognized prefixes are never touched.
func (r *Reconciler) RemoveUnusedChannels(ctx context.Context, guildID string, existing []provider.Channel, keep map[string]bool) error {
	for _, channel := range existing {
		if !domain.KindOf(channel.Name).Managed() {
			continue
		}
		if keep[channel.ID] {
			continue
		}
		if err := r.pace(ctx); err != nil {
			return err
		}
		log.Printf("deleting orphaned channel %q (%s)", channel.Name, channel.ID)
		if err := r.provider.DeleteChannel(ctx, guildID, channel.ID); err != nil {
			return fmt.Errorf("delete channel %q: %w", channel.Name, err)
		}
	}
	return nil
}

// DeleteChannel deletes one channel, pacing first.
func (r *Reconciler) DeleteChannel(ctx context.Context, guildID, channelID string) error {
	if err := r.pace(ctx); err != nil {
		return err
	}
	if err := r.provider.DeleteChannel(ctx, guildID, channelID); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// SortChannels applies the canonical ordering to a category: ascending by
// (kind tier, name). Channels already in position generate no provider calls.
func (r *Reconciler) SortChannels(ctx context.Context, guildID, categoryID string) error {
	channels, err := r.provider.ChannelsInCategory(ctx, guildID, categoryID)
	if err != nil {
		return fmt.Errorf("list channels for sort: %w", err)
	}

	sorted := make([]provider.Channel, len(channels))
	copy(sorted, channels)
	sort.SliceStable(sorted, func(i, j int) bool {
		tierI, tierJ := domain.KindOf(sorted[i].Name).Tier(), domain.KindOf(sorted[j].Name).Tier()
		if tierI != tierJ {
			return tierI < tierJ
		}
		return sorted[i].Name < sorted[j].Name
	})

	for position, channel := range sorted {
		if channel.Position == position {
			continue
		}
		if err := r.pace(ctx); err != nil {
			return err
		}
		if err := r.provider.SetPosition(ctx, guildID, channel.ID, position); err != nil {
			return fmt.Errorf("set position of %q: %w", channel.Name, err)
		}
	}
	return nil
}
