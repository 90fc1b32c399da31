package discordutils

import (
	"birthdaybot/announce"
	"birthdaybot/notify"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	reactionPageSize = 100
	memberPageSize   = 1000
	// anchorScanDepth is how many recent channel messages are searched for
	// an existing anchor.
	anchorScanDepth = 100
)

// Client is the chat client used by the announcement orchestrator and the
// preference engine. It is bound to a single guild.
type Client struct {
	session *discordgo.Session
	guildID string
}

// NewClient wraps an open session.
func NewClient(session *discordgo.Session, guildID string) *Client {
	return &Client{session: session, guildID: guildID}
}

func (c *Client) selfID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// SendChannelMessage posts text to a channel.
func (c *Client) SendChannelMessage(ctx context.Context, channelID, text string) error {
	_, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to %v: %w", channelID, err)
	}
	return nil
}

// SendDirectMessage opens a DM channel with the user and posts text. Users
// that do not accept DMs yield announce.ErrForbidden.
func (c *Client) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	channel, err := c.session.UserChannelCreate(FormatUserID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	if _, err := c.session.ChannelMessageSend(channel.ID, text, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps platform refusals to announce.ErrForbidden.
func classify(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
			return fmt.Errorf("%w: %v", announce.ErrForbidden, err)
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", announce.ErrForbidden, err)
		}
	}
	return err
}

// DisplayName looks up a member's current name, from the state cache first.
func (c *Client) DisplayName(ctx context.Context, userID int64) (string, bool) {
	id := FormatUserID(userID)
	if c.session.State != nil {
		if member, err := c.session.State.Member(c.guildID, id); err == nil {
			return MemberDisplayName(member), true
		}
	}

	member, err := c.session.GuildMember(c.guildID, id, discordgo.WithContext(ctx))
	if err != nil {
		return "", false
	}
	return MemberDisplayName(member), true
}

// Members lists every member of the guild.
func (c *Client) Members(ctx context.Context) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members of %v: %w", c.guildID, err)
		}
		all = append(all, page...)
		if len(page) < memberPageSize {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// MemberIDs lists the ids of all human members of the guild.
func (c *Client) MemberIDs(ctx context.Context) ([]int64, error) {
	members, err := c.Members(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		id, err := ParseUserID(member.User.ID)
		if err != nil {
			log.Printf("Skipping member: %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Reactors lists the human users that reacted with emoji on the anchor.
func (c *Client) Reactors(ctx context.Context, anchor notify.Anchor, emoji string) ([]int64, error) {
	var ids []int64
	after := ""
	for {
		users, err := c.session.MessageReactions(
			anchor.ChannelID,
			anchor.MessageID,
			emoji,
			reactionPageSize,
			"",
			after,
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to read reactions on %v: %w", anchor.MessageID, err)
		}

		for _, user := range users {
			if user.Bot {
				continue
			}
			id, err := ParseUserID(user.ID)
			if err != nil {
				log.Printf("Skipping reactor: %v", err)
				continue
			}
			ids = append(ids, id)
		}

		if len(users) < reactionPageSize {
			return ids, nil
		}
		after = users[len(users)-1].ID
	}
}

// IsAnchorMessage reports whether msg is an anchor posted by selfID.
func IsAnchorMessage(msg *discordgo.Message, selfID string) bool {
	if msg == nil {
		return false
	}
	if selfID != "" && (msg.Author == nil || msg.Author.ID != selfID) {
		return false
	}
	return strings.Contains(strings.ToLower(msg.Content), notify.Marker)
}

// FindAnchor searches the recent history of channelID for an anchor message.
func (c *Client) FindAnchor(ctx context.Context, channelID string) (notify.Anchor, bool, error) {
	messages, err := c.session.ChannelMessages(channelID, anchorScanDepth, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return notify.Anchor{}, false, fmt.Errorf("%w: %v", notify.ErrAnchorUnavailable, err)
	}

	self := c.selfID()
	for _, msg := range messages {
		if IsAnchorMessage(msg, self) {
			return notify.Anchor{ChannelID: channelID, MessageID: msg.ID}, true, nil
		}
	}
	return notify.Anchor{}, false, nil
}

// AnchorExists fetches the anchor to confirm it has not been deleted.
func (c *Client) AnchorExists(ctx context.Context, anchor notify.Anchor) bool {
	if !anchor.Valid() {
		return false
	}
	_, err := c.session.ChannelMessage(anchor.ChannelID, anchor.MessageID, discordgo.WithContext(ctx))
	return err == nil
}

// FindOrCreateAnchor reuses an anchor found in channelID or posts a new one,
// adds the checkmark reaction and pins it.
func (c *Client) FindOrCreateAnchor(ctx context.Context, channelID string) (notify.Anchor, error) {
	anchor, found, err := c.FindAnchor(ctx, channelID)
	if err != nil {
		return notify.Anchor{}, err
	}
	if found {
		log.Printf("Found notification message %v in %v.", anchor.MessageID, channelID)
		return anchor, nil
	}

	msg, err := c.session.ChannelMessageSend(channelID, notify.AnchorText, discordgo.WithContext(ctx))
	if err != nil {
		return notify.Anchor{}, fmt.Errorf("%w: %v", notify.ErrAnchorUnavailable, err)
	}
	anchor = notify.Anchor{ChannelID: channelID, MessageID: msg.ID}

	if err := c.session.MessageReactionAdd(channelID, msg.ID, notify.Checkmark, discordgo.WithContext(ctx)); err != nil {
		log.Printf("Failed to add %v to notification message %v: %v", notify.Checkmark, msg.ID, err)
	}
	if err := c.session.ChannelMessagePin(channelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
		log.Printf("Failed to pin notification message %v: %v", msg.ID, err)
	}

	log.Printf("Created notification message %v in %v.", msg.ID, channelID)
	return anchor, nil
}
