// Package provider defines the external channel surface the synchronizer
// reconciles against. Implementations wrap a concrete chat API; the
// reconciler only sees this interface.
package provider

import (
	"context"

	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
)

// Channel is the synchronizer's view of one external channel. It is observed
// state, never owned: the provider is the source of truth for every field.
type Channel struct {
	ID         string
	Name       string
	Topic      string
	CategoryID string
	Position   int
	// Overwrites holds the channel's observed permission overwrites,
	// normalized to domain subjects. Overwrites the synchronizer never
	// writes (foreign roles, unrecognized bit masks) are omitted.
	Overwrites []domain.Overwrite
}

// ChannelEdit describes a partial update to an existing text channel. Nil
// fields are left unchanged.
type ChannelEdit struct {
	Name       *string
	Topic      *string
	CategoryID *string
	Overwrites []domain.Overwrite
}

// ChannelProvider is the external chat API consumed by the reconciler. Every
// mutating call counts against a shared per-guild rate limit; callers pace
// themselves before invoking one.
type ChannelProvider interface {
	// CreateCategory creates a category channel in the guild.
	CreateCategory(ctx context.Context, guildID, name string) (Channel, error)
	// EditCategory renames an existing category.
	EditCategory(ctx context.Context, channelID, name string) error
	// GetChannel fetches one channel by id. The boolean is false when the
	// channel no longer exists.
	GetChannel(ctx context.Context, guildID, channelID string) (Channel, bool, error)
	// ChannelsInCategory lists the text channels currently under a category.
	ChannelsInCategory(ctx context.Context, guildID, categoryID string) ([]Channel, error)
	// CreateTextChannel creates a text channel under a category.
	CreateTextChannel(ctx context.Context, guildID, categoryID, name, topic string, overwrites []domain.Overwrite) (Channel, error)
	// EditTextChannel applies a partial update to a text channel.
	EditTextChannel(ctx context.Context, guildID, channelID string, edit ChannelEdit) error
	// SetPosition moves a channel to the given position within its category.
	SetPosition(ctx context.Context, guildID, channelID string, position int) error
	// DeleteChannel deletes a channel or category.
	DeleteChannel(ctx context.Context, guildID, channelID string) error
}
