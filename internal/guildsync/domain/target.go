package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Common channel names shared by every campaign.
var (
	GeneralChannelName     = PrefixGeneral + "-general"
	StorytellerChannelName = PrefixStoryteller + "-storyteller"
)

// SyncTarget describes one channel that should exist: its canonical name,
// topic, permission kind, optional owning user, and the channel id last
// written back for the owning entity. Targets are synthesized fresh on every
// reconciliation pass and never persisted.
type SyncTarget struct {
	Name  string
	Topic string
	Kind  ChannelKind
	// OwnerUserID, when set, grants this user a post-only overwrite on top of
	// the role-based permissions.
	OwnerUserID string
	// KnownChannelID is the id recorded in the store for the owning entity.
	// It may be stale or empty; the reconciler treats the canonical name as
	// the stronger identity.
	KnownChannelID string
}

var slugTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowers a display name into channel-name form: diacritics stripped,
// lower-cased, spaces collapsed to hyphens.
func Slugify(name string) string {
	flattened, _, err := transform.String(slugTransformer, name)
	if err != nil {
		flattened = name
	}
	slug := strings.ToLower(strings.TrimSpace(flattened))
	return strings.Join(strings.Fields(slug), "-")
}

// CategoryName returns the canonical category name for a campaign.
func CategoryName(campaign Campaign) string {
	return PrefixCategory + "-" + Slugify(campaign.Name)
}

// TargetForGeneral builds the sync target for a campaign's general channel.
func TargetForGeneral(campaign Campaign) SyncTarget {
	return SyncTarget{
		Name:           GeneralChannelName,
		Topic:          fmt.Sprintf("General discussion for %s", campaign.Name),
		Kind:           KindGeneral,
		KnownChannelID: campaign.GeneralChannelID,
	}
}

// TargetForStoryteller builds the sync target for a campaign's
// storyteller-only common channel.
func TargetForStoryteller(campaign Campaign) SyncTarget {
	return SyncTarget{
		Name:           StorytellerChannelName,
		Topic:          fmt.Sprintf("Storyteller notes for %s", campaign.Name),
		Kind:           KindStoryteller,
		KnownChannelID: campaign.StorytellerChannelID,
	}
}

// TargetForBook builds the sync target for a campaign book.
func TargetForBook(book Book) SyncTarget {
	return SyncTarget{
		Name:           fmt.Sprintf("%s-%02d-%s", PrefixBook, book.Number, Slugify(book.Name)),
		Topic:          fmt.Sprintf("Channel for book %d. %s", book.Number, book.Name),
		Kind:           KindBook,
		KnownChannelID: book.ChannelID,
	}
}

// TargetForCharacter builds the sync target for a character. The name encodes
// alive/dead state; storyteller characters stack the private prefix so their
// channels stay hidden from players.
func TargetForCharacter(character Character) SyncTarget {
	prefix := PrefixPlayerAlive
	kind := KindPlayerAlive
	if !character.Alive {
		prefix = PrefixPlayerDead
		kind = KindPlayerDead
	}
	if character.Storyteller {
		prefix = PrefixStoryteller + prefix
		kind = KindStoryteller
	}
	return SyncTarget{
		Name:           prefix + "-" + Slugify(character.Name),
		Topic:          fmt.Sprintf("Character channel for %s", character.Name),
		Kind:           kind,
		OwnerUserID:    character.OwnerUserID,
		KnownChannelID: character.ChannelID,
	}
}
