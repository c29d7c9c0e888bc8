// Package discord adapts the Discord API to the channel provider interface
// the reconciler consumes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
	"github.com/ashgrove-games/talespinner/internal/guildsync/provider"
)

// Role names the synchronizer expects guild admins to maintain.
const (
	PlayerRoleName      = "Player"
	StorytellerRoleName = "Storyteller"
)

// Adapter implements the channel provider over a discordgo session.
type Adapter struct {
	session   *discordgo.Session
	botUserID string

	mu    sync.Mutex
	roles map[string]guildRoleIDs
}

// NewAdapter wraps an open discordgo session. botUserID is the bot's own user
// id, used for its manage overwrite on every channel.
func NewAdapter(session *discordgo.Session, botUserID string) *Adapter {
	return &Adapter{
		session:   session,
		botUserID: botUserID,
		roles:     make(map[string]guildRoleIDs),
	}
}

// guildRoles resolves the guild's subject roles, caching per guild. The
// everyone role always shares the guild's id.
func (a *Adapter) guildRoles(ctx context.Context, guildID string) (guildRoleIDs, error) {
	a.mu.Lock()
	cached, ok := a.roles[guildID]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	roles, err := a.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return guildRoleIDs{}, wrapProviderError("fetch guild roles", err)
	}

	resolved := guildRoleIDs{everyone: guildID}
	for _, role := range roles {
		switch role.Name {
		case PlayerRoleName:
			resolved.player = role.ID
		case StorytellerRoleName:
			resolved.storyteller = role.ID
		}
	}

	a.mu.Lock()
	a.roles[guildID] = resolved
	a.mu.Unlock()
	return resolved, nil
}

// InvalidateRoles drops the cached role ids for a guild. Called when the
// guild's roles change.
func (a *Adapter) InvalidateRoles(guildID string) {
	a.mu.Lock()
	delete(a.roles, guildID)
	a.mu.Unlock()
}

// CreateCategory creates a category channel in the guild.
func (a *Adapter) CreateCategory(ctx context.Context, guildID, name string) (provider.Channel, error) {
	roles, err := a.guildRoles(ctx, guildID)
	if err != nil {
		return provider.Channel{}, err
	}
	channel, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return provider.Channel{}, wrapProviderError("create category", err)
	}
	return toProviderChannel(channel, roles, a.botUserID), nil
}

// EditCategory renames an existing category.
func (a *Adapter) EditCategory(ctx context.Context, channelID, name string) error {
	_, err := a.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return wrapProviderError("edit category", err)
	}
	return nil
}

// GetChannel fetches one channel by id. A deleted channel reports ok=false
// rather than an error.
func (a *Adapter) GetChannel(ctx context.Context, guildID, channelID string) (provider.Channel, bool, error) {
	roles, err := a.guildRoles(ctx, guildID)
	if err != nil {
		return provider.Channel{}, false, err
	}
	channel, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return provider.Channel{}, false, nil
		}
		return provider.Channel{}, false, wrapProviderError("fetch channel", err)
	}
	return toProviderChannel(channel, roles, a.botUserID), true, nil
}

// ChannelsInCategory lists the text channels currently under a category.
func (a *Adapter) ChannelsInCategory(ctx context.Context, guildID, categoryID string) ([]provider.Channel, error) {
	roles, err := a.guildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapProviderError("list guild channels", err)
	}
	return filterCategoryChannels(channels, categoryID, roles, a.botUserID), nil
}

// CreateTextChannel creates a text channel under a category with the given
// permission overwrites applied atomically at creation.
func (a *Adapter) CreateTextChannel(ctx context.Context, guildID, categoryID, name, topic string, overwrites []domain.Overwrite) (provider.Channel, error) {
	roles, err := a.guildRoles(ctx, guildID)
	if err != nil {
		return provider.Channel{}, err
	}

	channel, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             categoryID,
		PermissionOverwrites: permissionOverwrites(overwrites, roles, a.botUserID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return provider.Channel{}, wrapProviderError("create text channel", err)
	}
	return toProviderChannel(channel, roles, a.botUserID), nil
}

// EditTextChannel applies a partial update to a text channel.
func (a *Adapter) EditTextChannel(ctx context.Context, guildID, channelID string, edit provider.ChannelEdit) error {
	channelEdit := &discordgo.ChannelEdit{}
	if edit.Name != nil {
		channelEdit.Name = *edit.Name
	}
	if edit.Topic != nil {
		channelEdit.Topic = *edit.Topic
	}
	if edit.CategoryID != nil {
		channelEdit.ParentID = *edit.CategoryID
	}
	if edit.Overwrites != nil {
		roles, err := a.guildRoles(ctx, guildID)
		if err != nil {
			return err
		}
		channelEdit.PermissionOverwrites = permissionOverwrites(edit.Overwrites, roles, a.botUserID)
	}

	if _, err := a.session.ChannelEdit(channelID, channelEdit, discordgo.WithContext(ctx)); err != nil {
		return wrapProviderError("edit text channel", err)
	}
	return nil
}

// SetPosition moves a channel to the given position within its category.
func (a *Adapter) SetPosition(ctx context.Context, guildID, channelID string, position int) error {
	_, err := a.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Position: &position}, discordgo.WithContext(ctx))
	if err != nil {
		return wrapProviderError("set channel position", err)
	}
	return nil
}

// DeleteChannel deletes a channel or category. Deleting an already-deleted
// channel succeeds, the desired state holds either way.
func (a *Adapter) DeleteChannel(ctx context.Context, guildID, channelID string) error {
	if _, err := a.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return wrapProviderError("delete channel", err)
	}
	return nil
}

func toProviderChannel(channel *discordgo.Channel, roles guildRoleIDs, botUserID string) provider.Channel {
	return provider.Channel{
		ID:         channel.ID,
		Name:       channel.Name,
		Topic:      channel.Topic,
		CategoryID: channel.ParentID,
		Position:   channel.Position,
		Overwrites: observedOverwrites(channel.PermissionOverwrites, roles, botUserID),
	}
}

// filterCategoryChannels keeps the text channels parented to categoryID.
func filterCategoryChannels(channels []*discordgo.Channel, categoryID string, roles guildRoleIDs, botUserID string) []provider.Channel {
	var out []provider.Channel
	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildText || channel.ParentID != categoryID {
			continue
		}
		out = append(out, toProviderChannel(channel, roles, botUserID))
	}
	return out
}

// isNotFound reports whether the Discord API rejected the request because the
// resource no longer exists.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func wrapProviderError(op string, err error) error {
	if isNotFound(err) {
		return apperrors.Wrap(apperrors.CodeNotFound, op, err)
	}
	return apperrors.Wrap(apperrors.CodeProviderUnavailable, fmt.Sprintf("%s failed", op), err)
}
