package bot

import (
	"birthdaybot/announce"
	"birthdaybot/commands"
	"birthdaybot/dal"
	"birthdaybot/dates"
	"birthdaybot/discordutils"
	"birthdaybot/fuzzy"
	"birthdaybot/models"
	"birthdaybot/notify"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const notAdmin = "Nice try."

func (bot *Bot) guild(guildID string) *discordgo.Guild {
	guild, err := bot.session.State.Guild(guildID)
	if err != nil {
		return nil
	}
	return guild
}

func (bot *Bot) isAdmin(i *discordgo.InteractionCreate) bool {
	return discordutils.MemberHasAdminPermissions(bot.guild(i.GuildID), i.Member)
}

func invokerID(i *discordgo.InteractionCreate) (int64, bool) {
	user := discordutils.InteractionUser(i.Interaction)
	if user == nil {
		return 0, false
	}
	id, err := discordutils.ParseUserID(user.ID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Help lists the commands available to the invoking member.
func (bot *Bot) Help(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)
	discordutils.SendFollowup(commands.HelpText(bot.isAdmin(i)), i.Interaction, bot.session)
}

// SetBirthday saves the invoking member's birthday.
func (bot *Bot) SetBirthday(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	id, ok := invokerID(i)
	if !ok {
		discordutils.SendFollowup("I couldn't tell who you are.", i.Interaction, bot.session)
		return
	}

	var reply string
	saved := false // if true, triggers a role re-check at the end

	if ok, lastUse := bot.userCanChangeBirthday(userID(id)); !ok {
		now := bot.clock.Now()
		reply = commands.FormatCooldown(lastUse.In(bot.loc), lastUse.Add(bot.cfg.SaveCooldown), now)
	} else {
		options := commands.Options(i.ApplicationCommandData().Options)
		update := dal.BirthdayUpdate{
			UserID:      id,
			DisplayName: discordutils.MemberDisplayName(i.Member),
			FirstName:   commands.StringOption(options, commands.OptionFirstName),
			LastName:    commands.StringOption(options, commands.OptionLastName),
		}

		reply, saved = bot.saveBirthday(&update, commands.StringOption(options, commands.OptionDate))
		if saved {
			bot.markSaved(userID(id))
			reply = fmt.Sprintf("Saved %v as your birthday.", update.Birthday.Format(dates.FullLayout))
		}
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)

	if saved {
		bot.CheckRoles(context.Background())
	}
}

// SetBirthdayFor saves the birthday of a member found by approximate name.
func (bot *Bot) SetBirthdayFor(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	options := commands.Options(i.ApplicationCommandData().Options)
	reply := bot.setBirthdayFor(
		context.Background(),
		commands.StringOption(options, commands.OptionName),
		commands.StringOption(options, commands.OptionDate),
		commands.StringOption(options, commands.OptionFirstName),
		commands.StringOption(options, commands.OptionLastName),
	)

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// setBirthdayFor resolves query to the single best stored member and saves
// the birthday on that member's record.
func (bot *Bot) setBirthdayFor(ctx context.Context, query, date, firstName, lastName string) string {
	records, err := bot.store.All(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to load members: %v", err)
	}

	match, err := fuzzy.Best(query, fuzzy.FromRecords(records), bot.cfg.AdminMatchThreshold)
	if err != nil {
		return commands.FormatNoMatch(query)
	}

	update := dal.BirthdayUpdate{
		UserID:    match.Candidate.UserID,
		FirstName: firstName,
		LastName:  lastName,
	}
	reply, saved := bot.saveBirthday(&update, date)
	if !saved {
		return reply
	}

	log.Printf("Birthday of %v set by admin for query %q.", match.Candidate.UserID, query)
	return fmt.Sprintf(
		"Saved %v as the birthday of %v (%d%% match).",
		update.Birthday.Format(dates.FullLayout),
		match.Candidate.Label(),
		match.Score,
	)
}

// saveBirthday parses input into update and stores it. On failure it returns
// the reply to show.
func (bot *Bot) saveBirthday(update *dal.BirthdayUpdate, input string) (string, bool) {
	birthday, err := dates.ParseBirthday(input, bot.orchestrator.Today())
	if err != nil {
		var verr *dates.ValidationError
		if errors.As(err, &verr) && !strings.Contains(verr.Reason, dates.InputFormat) {
			return fmt.Sprintf("Invalid date! The %v.", verr.Reason), false
		}
		return commands.FormatInvalidDate(), false
	}
	update.Birthday = birthday

	if err := bot.store.SetBirthday(context.Background(), *update); err != nil {
		log.Printf("Failed to save birthday of %v: %v", update.UserID, err)
		return fmt.Sprintf("Failed to save the birthday: %v", err), false
	}
	log.Printf("Saved birthday of %v.", update.UserID)
	return "", true
}

// ForgetBirthday removes the invoking member's birthday.
func (bot *Bot) ForgetBirthday(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	id, ok := invokerID(i)
	if !ok {
		discordutils.SendFollowup("I couldn't tell who you are.", i.Interaction, bot.session)
		return
	}

	var reply string

	if ok, lastUse := bot.userCanChangeBirthday(userID(id)); !ok {
		reply = commands.FormatCooldown(lastUse.In(bot.loc), lastUse.Add(bot.cfg.SaveCooldown), bot.clock.Now())
	} else {
		err := bot.store.ClearBirthday(context.Background(), id)
		switch {
		case errors.Is(err, dal.ErrNotFound):
			reply = "I don't seem to have your birthday on record."
		case err != nil:
			reply = fmt.Sprintf(
				"I'm unable to delete your birthday: %v\n"+
					"Please contact an admin to resolve this issue.",
				err,
			)
		default:
			bot.markSaved(userID(id))
			reply = "I have erased your birthday."
		}
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// NextBirthday shows the next birthday overall or of the named member.
func (bot *Bot) NextBirthday(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, false)

	ctx := context.Background()
	today := bot.orchestrator.Today()
	query := commands.StringOption(commands.Options(i.ApplicationCommandData().Options), commands.OptionName)

	var reply string
	if query == "" {
		upcoming, err := bot.store.Upcoming(ctx, today, 1)
		switch {
		case err != nil:
			reply = fmt.Sprintf("Failed to look up birthdays: %v", err)
		case len(upcoming) == 0:
			reply = commands.FormatUpcoming(nil, today)
		default:
			reply = commands.FormatNext(upcoming[0], today)
		}
	} else {
		reply = bot.lookupBirthday(ctx, query, today)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

func (bot *Bot) lookupBirthday(ctx context.Context, query string, today time.Time) string {
	records, err := bot.store.All(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to look up birthdays: %v", err)
	}
	return nextBirthdayReply(query, records, today)
}

func nextBirthdayReply(query string, records []models.BirthdayRecord, today time.Time) string {
	byID := make(map[int64]models.BirthdayRecord, len(records))
	var known []models.BirthdayRecord
	for _, record := range records {
		if record.HasBirthday() {
			known = append(known, record)
			byID[record.UserID] = record
		}
	}

	match, err := fuzzy.Lookup(query, fuzzy.FromRecords(known))
	var ambiguous *fuzzy.AmbiguousMatchError
	switch {
	case errors.As(err, &ambiguous):
		return commands.FormatCandidates(ambiguous)
	case err != nil:
		return commands.FormatNoMatch(query)
	}

	record := byID[match.Candidate.UserID]
	return commands.FormatNext(models.Upcoming{
		Record:    record,
		DaysUntil: dates.DaysUntil(*record.Birthday, today),
	}, today)
}

// Upcoming lists the next birthdays.
func (bot *Bot) Upcoming(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, false)

	today := bot.orchestrator.Today()

	var reply string
	upcoming, err := bot.store.Upcoming(context.Background(), today, commands.UpcomingLimit)
	if err != nil {
		reply = fmt.Sprintf("Failed to look up birthdays: %v", err)
	} else {
		reply = commands.FormatUpcoming(upcoming, today)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// BirthdayCheck runs today's announcement on demand.
func (bot *Bot) BirthdayCheck(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	var reply string
	report, err := bot.orchestrator.Run(context.Background())
	if err != nil {
		reply = fmt.Sprintf("Birthday check failed: %v", err)
	} else {
		reply = checkReply(report)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
	bot.CheckRoles(context.Background())
}

func checkReply(report announce.Report) string {
	if len(report.Announcements) == 0 {
		return fmt.Sprintf("No birthdays on %v.", report.Date.Format(dates.FullLayout))
	}
	return fmt.Sprintf(
		"Announced %d birthday(s) on %v.\n%v",
		len(report.Announcements),
		report.Date.Format(dates.FullLayout),
		commands.FormatDeliveries(report.Delivered(), report.Failed()),
	)
}

// SyncNotify reconciles notification preferences with the anchor reactions.
func (bot *Bot) SyncNotify(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	var reply string
	summary, err := bot.syncNotify(context.Background())
	if err != nil {
		reply = fmt.Sprintf("Failed to sync notifications: %v\nTry /%v first.", err, commands.SetupNotify)
	} else {
		reply = syncReply(summary)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

func syncReply(summary notify.Summary) string {
	if summary.Writes() == 0 && len(summary.Failed) == 0 {
		return "Notifications already in sync."
	}
	return fmt.Sprintf(
		"Notifications synced: %d enabled, %d disabled, %d failed.",
		len(summary.Enabled),
		len(summary.Disabled),
		len(summary.Failed),
	)
}

// SetupNotify finds or recreates the notification anchor message.
func (bot *Bot) SetupNotify(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	var reply string
	anchor, err := bot.setupAnchor(context.Background())
	if err != nil {
		reply = fmt.Sprintf("Failed to set up the notification message: %v", err)
	} else {
		reply = fmt.Sprintf(
			"Notification message ready: https://discord.com/channels/%v/%v/%v",
			bot.cfg.Discord.GuildID,
			anchor.ChannelID,
			anchor.MessageID,
		)
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// TestDM sends the invoking member a test DM.
func (bot *Bot) TestDM(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	id, ok := invokerID(i)
	if !ok {
		discordutils.SendFollowup("I couldn't tell who you are.", i.Interaction, bot.session)
		return
	}

	var reply string
	err := bot.orchestrator.TestOne(context.Background(), id)
	switch {
	case errors.Is(err, announce.ErrForbidden):
		reply = "I can't DM you. Please allow direct messages from server members."
	case err != nil:
		reply = fmt.Sprintf("Failed to send test DM: %v", err)
	default:
		reply = "Test DM sent!"
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

// TestDMAll sends a test DM to every opted-in member.
func (bot *Bot) TestDMAll(i *discordgo.InteractionCreate) {
	discordutils.AckInteraction(i.Interaction, bot.session, true)

	if !bot.isAdmin(i) {
		discordutils.SendFollowup(notAdmin, i.Interaction, bot.session)
		return
	}

	var reply string
	report, err := bot.orchestrator.TestAll(context.Background())
	if err != nil {
		reply = fmt.Sprintf("Failed to send test DMs: %v", err)
	} else {
		reply = commands.FormatDeliveries(report.Delivered(), report.Failed())
	}

	discordutils.SendFollowup(reply, i.Interaction, bot.session)
}

func (bot *Bot) userCanChangeBirthday(uid userID) (bool, *time.Time) {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	if lastUse, ok := bot.lastSaveUsage[uid]; ok {
		nextUse := lastUse.Add(bot.cfg.SaveCooldown)
		return !bot.clock.Now().Before(nextUse), &lastUse
	}
	return true, nil
}

func (bot *Bot) markSaved(uid userID) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	bot.lastSaveUsage[uid] = bot.clock.Now()
}
