package discordutils

import (
	"birthdaybot/announce"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id, nick string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		User:  &discordgo.User{ID: id, Username: "user" + id},
		Nick:  nick,
		Roles: roles,
	}
}

func TestMemberHasAdminPermissions(t *testing.T) {
	guild := &discordgo.Guild{
		OwnerID: "1",
		Roles: []*discordgo.Role{
			{ID: "admin", Permissions: discordgo.PermissionAdministrator},
			{ID: "plain", Permissions: discordgo.PermissionSendMessages},
		},
	}

	assert.True(t, MemberHasAdminPermissions(guild, member("1", "")))
	assert.True(t, MemberHasAdminPermissions(guild, member("2", "", "admin")))
	assert.False(t, MemberHasAdminPermissions(guild, member("3", "", "plain")))
	assert.False(t, MemberHasAdminPermissions(guild, nil))

	interactionMember := member("4", "")
	interactionMember.Permissions = discordgo.PermissionAdministrator
	assert.True(t, MemberHasAdminPermissions(nil, interactionMember))
}

func TestMemberDisplayName(t *testing.T) {
	m := member("1", "Nick")
	m.User.GlobalName = "Global"
	assert.Equal(t, "Nick", MemberDisplayName(m))

	m.Nick = ""
	assert.Equal(t, "Global", MemberDisplayName(m))

	m.User.GlobalName = ""
	assert.Equal(t, "user1", MemberDisplayName(m))

	assert.Equal(t, "", MemberDisplayName(nil))
}

func TestUserIDs(t *testing.T) {
	id, err := ParseUserID("123456789012345678")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), id)
	assert.Equal(t, "123456789012345678", FormatUserID(id))

	_, err = ParseUserID("not-a-snowflake")
	assert.Error(t, err)
}

func TestPartitionByRole(t *testing.T) {
	role := &discordgo.Role{ID: "bday"}
	members := []*discordgo.Member{
		member("1", "", "bday"),
		member("2", ""),
		member("3", "", "bday"),
		member("4", ""),
	}

	add, remove := PartitionByRole(role, members, map[string]bool{"1": true, "2": true})
	require.Len(t, add, 1)
	assert.Equal(t, "2", add[0].User.ID)
	require.Len(t, remove, 1)
	assert.Equal(t, "3", remove[0].User.ID)
}

func TestIsAnchorMessage(t *testing.T) {
	self := &discordgo.User{ID: "bot"}
	other := &discordgo.User{ID: "human"}

	assert.True(t, IsAnchorMessage(&discordgo.Message{Author: self, Content: "🎂 **Birthday Notifications**"}, "bot"))
	assert.False(t, IsAnchorMessage(&discordgo.Message{Author: other, Content: "birthday notifications"}, "bot"))
	assert.False(t, IsAnchorMessage(&discordgo.Message{Author: self, Content: "Happy birthday!"}, "bot"))
	assert.False(t, IsAnchorMessage(nil, "bot"))
}

func TestClassify(t *testing.T) {
	closed := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeCannotSendMessagesToThisUser},
	}
	assert.True(t, errors.Is(classify(closed), announce.ErrForbidden))

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.True(t, errors.Is(classify(forbidden), announce.ErrForbidden))

	other := errors.New("connection reset")
	assert.Equal(t, other, classify(other))
}
