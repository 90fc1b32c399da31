package bot

import (
	"birthdaybot/discordutils"
	"birthdaybot/models"
	"context"
	"fmt"
	"log"

	"github.com/go-co-op/gocron/v2"
)

// startScheduler runs DailyCheck once a day at the configured time in the
// canonical timezone.
func (bot *Bot) startScheduler() error {
	hour, minute, err := bot.cfg.AnnounceTime()
	if err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(bot.loc),
		gocron.WithClock(bot.clock),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	job, err := scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(bot.DailyCheck),
		gocron.WithName("birthday check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule birthday check: %w", err)
	}

	scheduler.Start()
	bot.scheduler = scheduler

	if next, err := job.NextRun(); err == nil {
		log.Printf("Scheduled birthday check, next run at %v.", next.In(bot.loc))
	}
	return nil
}

// DailyCheck reconciles notification preferences, announces today's
// birthdays and moves the birthday role.
func (bot *Bot) DailyCheck() {
	ctx := context.Background()

	if _, err := bot.setupAnchor(ctx); err != nil {
		log.Printf("Skipping preference reconciliation: %v", err)
	} else if _, err := bot.syncNotify(ctx); err != nil {
		log.Printf("Skipping preference reconciliation: %v", err)
	}

	if _, err := bot.orchestrator.Run(ctx); err != nil {
		log.Printf("Birthday check failed: %v", err)
	}

	bot.CheckRoles(ctx)
}

// CheckRoles gives the birthday role to today's birthday members and takes
// it away from everyone else. It does nothing when no role is configured.
func (bot *Bot) CheckRoles(ctx context.Context) {
	roleID := bot.cfg.Discord.RoleID
	if roleID == "" {
		return
	}
	guildID := bot.cfg.Discord.GuildID

	role, err := bot.session.State.Role(guildID, roleID)
	if err != nil {
		log.Printf("Can't find birthday role %v in %v: %v", roleID, guildID, err)
		return
	}
	if discordutils.RoleAllowsAdminPermissions(role) {
		log.Printf("Refusing to assign %v, it allows admin permissions.", role.Name)
		return
	}

	records, err := bot.store.Today(ctx, bot.orchestrator.Today())
	if err != nil {
		log.Printf("Failed to find today's birthdays: %v", err)
		return
	}

	members, err := bot.client.Members(ctx)
	if err != nil {
		log.Printf("Failed to list members for role check: %v", err)
		return
	}

	add, remove := discordutils.PartitionByRole(role, members, birthdayMemberIDs(records))
	discordutils.RemoveRoleFromMembers(guildID, role, remove, bot.session)
	discordutils.AddRoleToMembers(guildID, role, add, bot.session)
}

func birthdayMemberIDs(records []models.BirthdayRecord) map[string]bool {
	ids := make(map[string]bool, len(records))
	for _, record := range records {
		ids[discordutils.FormatUserID(record.UserID)] = true
	}
	return ids
}
