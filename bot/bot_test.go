package bot

import (
	"birthdaybot/announce"
	"birthdaybot/config"
	"birthdaybot/dal"
	"birthdaybot/models"
	"birthdaybot/notify"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBot(clock clockwork.Clock) *Bot {
	return &Bot{
		cfg:           &config.Config{SaveCooldown: time.Hour},
		clock:         clock,
		loc:           time.UTC,
		lastSaveUsage: make(map[userID]time.Time),
	}
}

func TestSaveCooldown(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	bot := testBot(clock)

	ok, lastUse := bot.userCanChangeBirthday(1)
	assert.True(t, ok)
	assert.Nil(t, lastUse)

	bot.markSaved(1)
	clock.Advance(30 * time.Minute)
	ok, lastUse = bot.userCanChangeBirthday(1)
	assert.False(t, ok)
	require.NotNil(t, lastUse)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), *lastUse)

	ok, _ = bot.userCanChangeBirthday(2)
	assert.True(t, ok, "cooldown is per user")

	clock.Advance(30 * time.Minute)
	ok, _ = bot.userCanChangeBirthday(1)
	assert.True(t, ok)
}

func date(year int, m time.Month, d int) *time.Time {
	t := time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestBirthdayMemberIDs(t *testing.T) {
	ids := birthdayMemberIDs([]models.BirthdayRecord{{UserID: 42}, {UserID: 7}})
	assert.Equal(t, map[string]bool{"42": true, "7": true}, ids)
}

func TestNextBirthdayReply(t *testing.T) {
	today := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	records := []models.BirthdayRecord{
		{UserID: 1, DisplayName: "john_doe", FirstName: "John", LastName: "Doe", Birthday: date(1990, 12, 24)},
		{UserID: 2, DisplayName: "xavier"},
		{UserID: 3, DisplayName: "anna_b", Birthday: date(1992, 3, 1)},
		{UserID: 4, DisplayName: "anna_k", Birthday: date(1993, 4, 1)},
	}

	reply := nextBirthdayReply("john doe", records, today)
	assert.Contains(t, reply, "John Doe")
	assert.Contains(t, reply, "24.12.2024")

	reply = nextBirthdayReply("xavier", records, today)
	assert.True(t, strings.HasPrefix(reply, "No member matching"), reply)

	reply = nextBirthdayReply("anja", records, today)
	assert.True(t, strings.HasPrefix(reply, "Several members match"), reply)
	assert.Contains(t, reply, "anna_b")
	assert.Contains(t, reply, "anna_k")
}

func TestCheckReply(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "No birthdays on 10.06.2024.", checkReply(announce.Report{Date: day}))

	reply := checkReply(announce.Report{
		Date:          day,
		Announcements: []string{"🎉 Happy birthday, ann! 🎂"},
		Deliveries:    []announce.Delivery{{Recipient: 1}, {Recipient: 2, Err: announce.ErrForbidden}},
	})
	assert.Contains(t, reply, "Announced 1 birthday(s) on 10.06.2024.")
	assert.Contains(t, reply, "Delivered: 1")
	assert.Contains(t, reply, "Failed: 1")
}

func TestToReaction(t *testing.T) {
	reaction, ok := toReaction(&discordgo.MessageReaction{
		UserID:    "42",
		MessageID: "anchor",
		Emoji:     discordgo.Emoji{Name: "✅"},
	})
	require.True(t, ok)
	assert.Equal(t, int64(42), reaction.UserID)
	assert.Equal(t, "anchor", reaction.MessageID)
	assert.Equal(t, "✅", reaction.Emoji)

	_, ok = toReaction(&discordgo.MessageReaction{UserID: "bogus"})
	assert.False(t, ok)
}

func TestSetBirthdayForResolvesExistingMember(t *testing.T) {
	ctx := context.Background()
	store, err := dal.InitDB(dal.DriverSQLite, filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Upsert(ctx, models.BirthdayRecord{
		UserID:           7,
		DisplayName:      "john_doe",
		FirstName:        "John",
		LastName:         "Doe",
		NotifyPreference: true,
	}))
	require.NoError(t, store.Upsert(ctx, models.BirthdayRecord{UserID: 8, DisplayName: "jane_smith"}))

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	bot := testBot(clock)
	bot.cfg.AdminMatchThreshold = config.DefaultMatchScore
	bot.store = store
	bot.orchestrator = announce.New(announce.Options{Store: store, Clock: clock, Location: time.UTC})

	reply := bot.setBirthdayFor(ctx, "jon do", "24.12.1990", "", "")
	assert.True(t, strings.HasPrefix(reply, "Saved 24.12.1990 as the birthday of John Doe"), reply)

	records, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	record, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, record.Birthday)
	assert.Equal(t, time.Date(1990, 12, 24, 0, 0, 0, 0, time.UTC), record.Birthday.UTC())
	assert.True(t, record.NotifyPreference)
	assert.Equal(t, "john_doe", record.DisplayName)

	reply = bot.setBirthdayFor(ctx, "xavier", "24.12.1990", "", "")
	assert.True(t, strings.HasPrefix(reply, "No member matching"), reply)

	reply = bot.setBirthdayFor(ctx, "john doe", "31.12.2090", "", "")
	assert.Contains(t, reply, "Invalid date!")
}

func TestSyncReply(t *testing.T) {
	assert.Equal(t, "Notifications already in sync.", syncReply(notify.Summary{}))
	assert.Equal(
		t,
		"Notifications synced: 2 enabled, 1 disabled, 0 failed.",
		syncReply(notify.Summary{Enabled: []int64{1, 2}, Disabled: []int64{3}}),
	)
	assert.Equal(
		t,
		"Notifications synced: 0 enabled, 0 disabled, 1 failed.",
		syncReply(notify.Summary{Failed: []int64{4}}),
	)
}
