package domain

import "strings"

// Emoji prefixes that mark a channel as managed by the synchronizer. The
// prefix is part of the canonical channel name, so it survives round-trips
// through Discord and lets a pass recognize channels it created earlier.
const (
	PrefixCategory    = "📚"
	PrefixGeneral     = "✨"
	PrefixStoryteller = "🔒"
	PrefixBook        = "📖"
	PrefixPlayerAlive = "👤"
	PrefixPlayerDead  = "💀"
)

// ChannelKind classifies a channel by the role it plays in a campaign's
// topology. Kind is derived from the canonical name prefix exactly once, via
// KindOf; all permission, garbage-collection, and ordering policy switches on
// the kind rather than re-inspecting name prefixes.
type ChannelKind int

const (
	// KindUnmanaged marks channels the synchronizer does not own. They are
	// never edited or deleted.
	KindUnmanaged ChannelKind = iota
	// KindGeneral is the campaign's shared general channel.
	KindGeneral
	// KindBook is a per-book discussion channel.
	KindBook
	// KindStoryteller covers the storyteller common channel and
	// storyteller-owned character channels, all private to the storyteller role.
	KindStoryteller
	// KindPlayerAlive is a living player character's channel.
	KindPlayerAlive
	// KindPlayerDead is a dead player character's channel.
	KindPlayerDead
)

// KindOf parses the managed-kind prefix from a channel name. The storyteller
// prefix is checked first because storyteller character channels stack it in
// front of the player prefix.
func KindOf(name string) ChannelKind {
	switch {
	case strings.HasPrefix(name, PrefixStoryteller):
		return KindStoryteller
	case strings.HasPrefix(name, PrefixGeneral):
		return KindGeneral
	case strings.HasPrefix(name, PrefixBook):
		return KindBook
	case strings.HasPrefix(name, PrefixPlayerAlive):
		return KindPlayerAlive
	case strings.HasPrefix(name, PrefixPlayerDead):
		return KindPlayerDead
	default:
		return KindUnmanaged
	}
}

// Managed reports whether channels of this kind are owned by the
// synchronizer and therefore eligible for garbage collection.
func (k ChannelKind) Managed() bool {
	return k != KindUnmanaged
}

// Tier returns the sort priority for this kind. Channels order by
// (tier, name) ascending within their category.
func (k ChannelKind) Tier() int {
	switch k {
	case KindGeneral:
		return 0
	case KindBook:
		return 1
	case KindStoryteller:
		return 2
	case KindPlayerAlive:
		return 3
	case KindPlayerDead:
		return 4
	default:
		return 5
	}
}

// String names the kind for logs.
func (k ChannelKind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindBook:
		return "book"
	case KindStoryteller:
		return "storyteller"
	case KindPlayerAlive:
		return "player-alive"
	case KindPlayerDead:
		return "player-dead"
	default:
		return "unmanaged"
	}
}
