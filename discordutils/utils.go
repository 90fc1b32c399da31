package discordutils

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// MemberHasAdminPermissions returns true if the given member has admin permissions.
func MemberHasAdminPermissions(guild *discordgo.Guild, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator > 0 {
		return true
	}
	if guild == nil {
		return false
	}
	if member.User != nil && guild.OwnerID == member.User.ID {
		return true
	}

	guildRoles := make(map[string]*discordgo.Role)
	for _, role := range guild.Roles {
		guildRoles[role.ID] = role
	}

	for _, roleID := range member.Roles {
		if role, ok := guildRoles[roleID]; ok {
			if RoleAllowsAdminPermissions(role) {
				return true
			}
		}
	}

	return false
}

// RoleAllowsAdminPermissions returns true if the given role allows admin permissions.
func RoleAllowsAdminPermissions(role *discordgo.Role) bool {
	return role.Permissions&discordgo.PermissionAdministrator > 0
}

// AckInteraction sends a deferred response for the given interaction. The
// followup is only visible to the invoking user when ephemeral is set.
func AckInteraction(
	interaction *discordgo.Interaction,
	session *discordgo.Session,
	ephemeral bool,
) {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Printf("Failed to acknowledge interaction %v: %v", interaction.ID, err)
	}
}

// SendFollowup creates a followup message with the given content.
func SendFollowup(
	content string,
	interaction *discordgo.Interaction,
	session *discordgo.Session,
) {
	_, err := session.FollowupMessageCreate(
		interaction,
		true,
		&discordgo.WebhookParams{
			Content: content,
		},
	)
	if err != nil {
		log.Printf("Failed to send followup for interaction %v: %v", interaction.ID, err)
	}
}

// InteractionUser returns the user that invoked an interaction, whether it
// happened in a guild or in a DM.
func InteractionUser(interaction *discordgo.Interaction) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

// MemberDisplayName returns the name shown for a member: the guild nickname,
// then the global display name, then the username.
func MemberDisplayName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	return UserDisplayName(member.User)
}

// UserDisplayName returns the global display name or the username.
func UserDisplayName(user *discordgo.User) string {
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// ParseUserID converts a snowflake string to the numeric id used by the store.
func ParseUserID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	return n, nil
}

// FormatUserID converts a stored id back into a snowflake string.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// AddRoleToMembers adds the given role to all given members.
func AddRoleToMembers(
	guildID string,
	role *discordgo.Role,
	members []*discordgo.Member,
	session *discordgo.Session,
) {
	for _, member := range members {
		err := session.GuildMemberRoleAdd(guildID, member.User.ID, role.ID)

		if err != nil {
			log.Printf(
				"Failed to add %v role to %v (%v) in %v: %v",
				role.Name,
				member.User.Username,
				member.Nick,
				guildID,
				err,
			)
		} else {
			log.Printf(
				"Added %v role to %v (%v) in %v",
				role.Name,
				member.User.Username,
				member.Nick,
				guildID,
			)
		}
	}
}

// RemoveRoleFromMembers removes the given role from all given members.
func RemoveRoleFromMembers(
	guildID string,
	role *discordgo.Role,
	members []*discordgo.Member,
	session *discordgo.Session,
) {
	for _, member := range members {
		err := session.GuildMemberRoleRemove(guildID, member.User.ID, role.ID)
		if err != nil {
			log.Printf(
				"Failed to remove %v role from %v (%v) in %v: %v",
				role.Name,
				member.User.Username,
				member.Nick,
				guildID,
				err,
			)
		} else {
			log.Printf(
				"Removed %v role from %v (%v) in %v",
				role.Name,
				member.User.Username,
				member.Nick,
				guildID,
			)
		}
	}
}

// MemberHasRole returns true if the given member has the given role.
func MemberHasRole(member *discordgo.Member, role *discordgo.Role) bool {
	for _, roleID := range member.Roles {
		if roleID == role.ID {
			return true
		}
	}
	return false
}

// PartitionByRole splits members into those that should gain the role
// (in want, role missing) and those that should lose it (not in want, role
// present).
func PartitionByRole(
	role *discordgo.Role,
	members []*discordgo.Member,
	want map[string]bool,
) (add, remove []*discordgo.Member) {
	for _, member := range members {
		if member.User == nil {
			continue
		}
		has := MemberHasRole(member, role)
		switch {
		case want[member.User.ID] && !has:
			add = append(add, member)
		case !want[member.User.ID] && has:
			remove = append(remove, member)
		}
	}
	return
}
