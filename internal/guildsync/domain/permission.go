package domain

// AccessLevel is the abstract permission granted to a role or user on a
// channel. The Discord adapter translates levels into concrete
// allow/deny overwrite bitmasks.
type AccessLevel int

const (
	// AccessDefault leaves guild-level permissions untouched.
	AccessDefault AccessLevel = iota
	// AccessHidden denies viewing the channel entirely.
	AccessHidden
	// AccessReadOnly allows reading and reacting but not posting.
	AccessReadOnly
	// AccessPost allows reading and posting.
	AccessPost
	// AccessManage allows posting plus message and channel management.
	AccessManage
)

// String names the access level for logs.
func (a AccessLevel) String() string {
	switch a {
	case AccessHidden:
		return "hidden"
	case AccessReadOnly:
		return "read-only"
	case AccessPost:
		return "post"
	case AccessManage:
		return "manage"
	default:
		return "default"
	}
}

// OverwriteSubject identifies who an overwrite applies to. Role subjects are
// resolved to concrete Discord role ids by the provider adapter.
type OverwriteSubject int

const (
	// SubjectEveryone targets the guild's default role.
	SubjectEveryone OverwriteSubject = iota
	// SubjectPlayerRole targets the guild's Player role.
	SubjectPlayerRole
	// SubjectStorytellerRole targets the guild's Storyteller role.
	SubjectStorytellerRole
	// SubjectBot targets the bot's own user, which must never lock itself out.
	SubjectBot
	// SubjectUser targets a specific guild member by id.
	SubjectUser
)

// Overwrite is one abstract permission rule for a channel.
type Overwrite struct {
	Subject OverwriteSubject
	// UserID is set only when Subject is SubjectUser.
	UserID string
	Access AccessLevel
}

// permissionTriple holds the (default role, player role, storyteller role)
// access levels for a channel kind.
type permissionTriple struct {
	everyone    AccessLevel
	player      AccessLevel
	storyteller AccessLevel
}

func tripleFor(kind ChannelKind) permissionTriple {
	switch kind {
	case KindStoryteller:
		return permissionTriple{everyone: AccessHidden, player: AccessHidden, storyteller: AccessPost}
	case KindPlayerAlive, KindPlayerDead:
		return permissionTriple{everyone: AccessHidden, player: AccessReadOnly, storyteller: AccessPost}
	default:
		return permissionTriple{everyone: AccessReadOnly, player: AccessReadOnly, storyteller: AccessPost}
	}
}

// OverwritesFor computes the full overwrite set for a channel of the given
// kind. The bot always receives manage access so the reconciler cannot lock
// itself out, and the owning user, when present, receives post access layered
// on top of the role rules.
func OverwritesFor(kind ChannelKind, ownerUserID string) []Overwrite {
	triple := tripleFor(kind)
	overwrites := []Overwrite{
		{Subject: SubjectEveryone, Access: triple.everyone},
		{Subject: SubjectPlayerRole, Access: triple.player},
		{Subject: SubjectStorytellerRole, Access: triple.storyteller},
		{Subject: SubjectBot, Access: AccessManage},
	}
	if ownerUserID != "" {
		overwrites = append(overwrites, Overwrite{Subject: SubjectUser, UserID: ownerUserID, Access: AccessPost})
	}
	return overwrites
}
