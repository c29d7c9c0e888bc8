package domain

import (
	"strings"
	"time"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
)

var (
	// ErrEmptyCampaignName indicates a missing campaign name.
	ErrEmptyCampaignName = apperrors.New(apperrors.CodeCampaignNameEmpty, "campaign name is required")
	// ErrEmptyGuildID indicates a campaign without a guild.
	ErrEmptyGuildID = apperrors.New(apperrors.CodeCampaignEmptyGuildID, "guild id is required")
	// ErrEmptyBookName indicates a missing book name.
	ErrEmptyBookName = apperrors.New(apperrors.CodeBookEmptyName, "book name is required")
	// ErrBookEmptyCampaignID indicates a book without an owning campaign.
	ErrBookEmptyCampaignID = apperrors.New(apperrors.CodeBookEmptyCampaignID, "book campaign id is required")
	// ErrEmptyCharacterName indicates a missing character name.
	ErrEmptyCharacterName = apperrors.New(apperrors.CodeCharacterEmptyName, "character name is required")
	// ErrCharacterEmptyCampaignID indicates a character without an owning campaign.
	ErrCharacterEmptyCampaignID = apperrors.New(apperrors.CodeCharacterEmptyCampaignID, "character campaign id is required")
)

// Campaign represents one campaign and the Discord channels recorded for it.
// Channel id fields hold the last id written back by a reconciliation pass;
// an empty string means no channel is known. A recorded id may be stale, the
// next pass self-heals it.
type Campaign struct {
	ID      string
	GuildID string
	Name    string
	// CategoryChannelID is the Discord category grouping this campaign's channels.
	CategoryChannelID string
	// GeneralChannelID is the campaign's shared general channel.
	GeneralChannelID string
	// StorytellerChannelID is the storyteller-only common channel.
	StorytellerChannelID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Validate reports whether the campaign carries the required identity fields.
func (c Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCampaignName
	}
	if strings.TrimSpace(c.GuildID) == "" {
		return ErrEmptyGuildID
	}
	return nil
}

// Book represents a numbered campaign book with an optional channel.
type Book struct {
	ID         string
	CampaignID string
	Number     int
	Name       string
	ChannelID  string
}

// Validate reports whether the book carries the required identity fields.
func (b Book) Validate() error {
	if strings.TrimSpace(b.CampaignID) == "" {
		return ErrBookEmptyCampaignID
	}
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyBookName
	}
	return nil
}

// Character represents a player or storyteller character with an optional channel.
type Character struct {
	ID         string
	CampaignID string
	Name       string
	// OwnerUserID is the Discord user controlling this character. The owner
	// receives a post-only overwrite on the character's channel.
	OwnerUserID string
	// Storyteller marks storyteller-managed characters whose channels are
	// private to the storyteller role.
	Storyteller bool
	Alive       bool
	ChannelID   string
}

// Validate reports whether the character carries the required identity fields.
func (c Character) Validate() error {
	if strings.TrimSpace(c.CampaignID) == "" {
		return ErrCharacterEmptyCampaignID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCharacterName
	}
	return nil
}
