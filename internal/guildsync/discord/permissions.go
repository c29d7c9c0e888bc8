package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/ashgrove-games/talespinner/internal/guildsync/domain"
)

const (
	readBits  = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory | discordgo.PermissionAddReactions
	writeBits = discordgo.PermissionSendMessages | discordgo.PermissionUseSlashCommands
	adminBits = discordgo.PermissionManageMessages | discordgo.PermissionManageChannels
)

// permissionBits maps an access level onto Discord allow and deny masks.
// AccessDefault maps to zero masks, meaning no overwrite is written and the
// guild's own permissions apply.
func permissionBits(access domain.AccessLevel) (allow, deny int64) {
	switch access {
	case domain.AccessHidden:
		return 0, readBits | writeBits
	case domain.AccessReadOnly:
		return readBits, writeBits
	case domain.AccessPost:
		return readBits | writeBits, discordgo.PermissionManageMessages
	case domain.AccessManage:
		return readBits | writeBits | adminBits, 0
	default:
		return 0, 0
	}
}

// accessFromBits maps observed allow/deny masks back to the access level
// that produces them. Masks this synchronizer never writes report ok=false.
func accessFromBits(allow, deny int64) (domain.AccessLevel, bool) {
	switch {
	case allow == 0 && deny == readBits|writeBits:
		return domain.AccessHidden, true
	case allow == readBits && deny == writeBits:
		return domain.AccessReadOnly, true
	case allow == readBits|writeBits && deny == discordgo.PermissionManageMessages:
		return domain.AccessPost, true
	case allow == readBits|writeBits|adminBits && deny == 0:
		return domain.AccessManage, true
	default:
		return domain.AccessDefault, false
	}
}

// guildRoleIDs holds the resolved role ids the permission subjects map to.
type guildRoleIDs struct {
	everyone    string
	player      string
	storyteller string
}

// permissionOverwrites converts domain overwrites into Discord overwrites.
// Subjects whose role is missing from the guild are skipped, the roles can be
// created later and a resync picks them up.
func permissionOverwrites(overwrites []domain.Overwrite, roles guildRoleIDs, botUserID string) []*discordgo.PermissionOverwrite {
	var out []*discordgo.PermissionOverwrite
	for _, overwrite := range overwrites {
		allow, deny := permissionBits(overwrite.Access)
		if allow == 0 && deny == 0 {
			continue
		}

		id := ""
		kind := discordgo.PermissionOverwriteTypeRole
		switch overwrite.Subject {
		case domain.SubjectEveryone:
			id = roles.everyone
		case domain.SubjectPlayerRole:
			id = roles.player
		case domain.SubjectStorytellerRole:
			id = roles.storyteller
		case domain.SubjectBot:
			id = botUserID
			kind = discordgo.PermissionOverwriteTypeMember
		case domain.SubjectUser:
			id = overwrite.UserID
			kind = discordgo.PermissionOverwriteTypeMember
		}
		if id == "" {
			continue
		}

		out = append(out, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  kind,
			Allow: allow,
			Deny:  deny,
		})
	}
	return out
}

// observedOverwrites translates a channel's Discord overwrites back into
// domain overwrites so the reconciler can compare desired against observed
// state. Overwrites for foreign roles, or with masks the synchronizer never
// writes, are dropped: they are not ours to reconcile.
func observedOverwrites(overwrites []*discordgo.PermissionOverwrite, roles guildRoleIDs, botUserID string) []domain.Overwrite {
	var out []domain.Overwrite
	for _, overwrite := range overwrites {
		access, ok := accessFromBits(overwrite.Allow, overwrite.Deny)
		if !ok {
			continue
		}
		switch overwrite.Type {
		case discordgo.PermissionOverwriteTypeRole:
			switch overwrite.ID {
			case roles.everyone:
				out = append(out, domain.Overwrite{Subject: domain.SubjectEveryone, Access: access})
			case roles.player:
				out = append(out, domain.Overwrite{Subject: domain.SubjectPlayerRole, Access: access})
			case roles.storyteller:
				out = append(out, domain.Overwrite{Subject: domain.SubjectStorytellerRole, Access: access})
			}
		case discordgo.PermissionOverwriteTypeMember:
			if overwrite.ID == botUserID {
				out = append(out, domain.Overwrite{Subject: domain.SubjectBot, Access: access})
			} else {
				out = append(out, domain.Overwrite{Subject: domain.SubjectUser, UserID: overwrite.ID, Access: access})
			}
		}
	}
	return out
}
