// Package bot wires the discord session to the birthday store, the
// announcement orchestrator and the notification preference engine.
package bot

import (
	"birthdaybot/announce"
	"birthdaybot/commands"
	"birthdaybot/config"
	"birthdaybot/dal"
	"birthdaybot/discordutils"
	"birthdaybot/notify"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

type commandHandler = func(*discordgo.InteractionCreate)

type userID int64

// Bot represents a running instance of the birthday bot.
type Bot struct {
	session      *discordgo.Session
	cfg          *config.Config
	store        *dal.Store
	client       *discordutils.Client
	engine       *notify.Engine
	orchestrator *announce.Orchestrator
	scheduler    gocron.Scheduler
	clock        clockwork.Clock
	loc          *time.Location

	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler

	mu            sync.Mutex
	anchor        notify.Anchor
	lastSaveUsage map[userID]time.Time
}

// NewSession creates a discord session with the intents the bot relies on.
// The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions
	return session, nil
}

// NewOrchestrator builds the announcement orchestrator on top of a session.
func NewOrchestrator(
	cfg *config.Config,
	store *dal.Store,
	client *discordutils.Client,
	clock clockwork.Clock,
) (*announce.Orchestrator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return announce.New(announce.Options{
		Store:     store,
		Messenger: client,
		Directory: client,
		Clock:     clock,
		Location:  loc,
		ChannelID: cfg.Discord.ChannelID,
	}), nil
}

func (bot *Bot) initSession() error {
	session, err := NewSession(bot.cfg.Discord.Token)
	if err != nil {
		return err
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Bot is up as %v!", r.User.Username)
	})

	session.AddHandler(func(
		s *discordgo.Session,
		i *discordgo.InteractionCreate,
	) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if handler, ok := bot.commandHandlers[i.ApplicationCommandData().Name]; ok {
			handler(i)
		}
	})

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		bot.onReaction(r.MessageReaction, true)
	})
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		bot.onReaction(r.MessageReaction, false)
	})

	session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		bot.ensureMember(context.Background(), m.Member)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		bot.ensureMember(context.Background(), m.Member)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	bot.session = session
	return nil
}

func (bot *Bot) registerCommands() error {
	for _, command := range commands.Definitions() {
		newCommand, err := bot.session.ApplicationCommandCreate(
			bot.session.State.User.ID,
			bot.cfg.Discord.GuildID,
			command,
		)
		if err != nil {
			return fmt.Errorf("failed to create %v command: %w", command.Name, err)
		}
		bot.registeredCommands = append(bot.registeredCommands, newCommand)
		log.Printf("Created %v command.", command.Name)
	}
	return nil
}

// New connects to discord, registers the slash commands, catches up with
// member and reaction changes made while offline and starts the daily
// birthday check.
func New(cfg *config.Config, store *dal.Store) (*Bot, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		cfg:           cfg,
		store:         store,
		clock:         clockwork.NewRealClock(),
		loc:           loc,
		lastSaveUsage: make(map[userID]time.Time),
	}

	bot.commandHandlers = map[string]commandHandler{
		commands.Help:           bot.Help,
		commands.SetBirthday:    bot.SetBirthday,
		commands.SetBirthdayFor: bot.SetBirthdayFor,
		commands.ForgetBirthday: bot.ForgetBirthday,
		commands.NextBirthday:   bot.NextBirthday,
		commands.Upcoming:       bot.Upcoming,
		commands.BirthdayCheck:  bot.BirthdayCheck,
		commands.SyncNotify:     bot.SyncNotify,
		commands.SetupNotify:    bot.SetupNotify,
		commands.TestDM:         bot.TestDM,
		commands.TestDMAll:      bot.TestDMAll,
	}

	if err := bot.initSession(); err != nil {
		return nil, err
	}

	selfID, err := discordutils.ParseUserID(bot.session.State.User.ID)
	if err != nil {
		bot.session.Close()
		return nil, err
	}

	bot.client = discordutils.NewClient(bot.session, cfg.Discord.GuildID)
	bot.engine = notify.NewEngine(store, selfID)
	bot.orchestrator, err = NewOrchestrator(cfg, store, bot.client, bot.clock)
	if err != nil {
		bot.session.Close()
		return nil, err
	}

	if err := bot.registerCommands(); err != nil {
		bot.Shutdown()
		return nil, err
	}

	ctx := context.Background()
	bot.syncMembers(ctx)
	if _, err := bot.setupAnchor(ctx); err != nil {
		log.Printf("Notification message unavailable: %v", err)
	} else if _, err := bot.syncNotify(ctx); err != nil {
		log.Printf("Failed to reconcile notification preferences: %v", err)
	}

	if err := bot.startScheduler(); err != nil {
		bot.Shutdown()
		return nil, err
	}

	return bot, nil
}

// Shutdown shuts down the bot cleanly.
func (bot *Bot) Shutdown() {
	log.Println("Shutting down.")

	if bot.scheduler != nil {
		if err := bot.scheduler.Shutdown(); err != nil {
			log.Printf("Failed to stop scheduler: %v", err)
		} else {
			log.Println("Stopped scheduler.")
		}
	}

	for _, command := range bot.registeredCommands {
		err := bot.session.ApplicationCommandDelete(
			bot.session.State.User.ID,
			bot.cfg.Discord.GuildID,
			command.ID,
		)
		if err != nil {
			log.Printf("Failed to delete %v command: %v", command.Name, err)
		} else {
			log.Printf("Deleted %v command.", command.Name)
		}
	}

	bot.session.Close()
}

func (bot *Bot) currentAnchor() notify.Anchor {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.anchor
}

// setupAnchor revalidates the known anchor or finds or creates a new one in
// the announcement channel.
func (bot *Bot) setupAnchor(ctx context.Context) (notify.Anchor, error) {
	if anchor := bot.currentAnchor(); bot.client.AnchorExists(ctx, anchor) {
		return anchor, nil
	}

	anchor, err := bot.client.FindOrCreateAnchor(ctx, bot.cfg.Discord.ChannelID)
	if err != nil {
		return notify.Anchor{}, err
	}

	bot.mu.Lock()
	bot.anchor = anchor
	bot.mu.Unlock()
	return anchor, nil
}

func (bot *Bot) syncNotify(ctx context.Context) (notify.Summary, error) {
	return bot.engine.Sync(ctx, bot.client, bot.currentAnchor())
}

func (bot *Bot) onReaction(r *discordgo.MessageReaction, added bool) {
	if r == nil || r.GuildID != bot.cfg.Discord.GuildID {
		return
	}
	reaction, ok := toReaction(r)
	if !ok {
		return
	}

	ctx := context.Background()
	anchor := bot.currentAnchor()
	var err error
	if added {
		_, err = bot.engine.OnReactionAdd(ctx, anchor, reaction)
	} else {
		_, err = bot.engine.OnReactionRemove(ctx, anchor, reaction)
	}
	if err != nil {
		log.Printf("Failed to apply reaction of %v: %v", reaction.UserID, err)
	}
}

func toReaction(r *discordgo.MessageReaction) (notify.Reaction, bool) {
	id, err := discordutils.ParseUserID(r.UserID)
	if err != nil {
		return notify.Reaction{}, false
	}
	return notify.Reaction{UserID: id, MessageID: r.MessageID, Emoji: r.Emoji.Name}, true
}

func (bot *Bot) ensureMember(ctx context.Context, member *discordgo.Member) {
	if member == nil || member.User == nil || member.User.Bot {
		return
	}
	if member.GuildID != "" && member.GuildID != bot.cfg.Discord.GuildID {
		return
	}

	id, err := discordutils.ParseUserID(member.User.ID)
	if err != nil {
		log.Printf("Skipping member: %v", err)
		return
	}

	name := discordutils.MemberDisplayName(member)
	change, err := bot.store.EnsureMember(ctx, id, name)
	switch {
	case err != nil:
		log.Printf("Failed to store member %v: %v", id, err)
	case change == dal.MemberAdded:
		log.Printf("Added member %v (%v).", id, name)
	case change == dal.MemberRenamed:
		log.Printf("Updated display name of %v to %v.", id, name)
	}
}

// syncMembers makes sure every guild member has a record.
func (bot *Bot) syncMembers(ctx context.Context) {
	members, err := bot.client.Members(ctx)
	if err != nil {
		log.Printf("Failed to sync members: %v", err)
		return
	}
	for _, member := range members {
		bot.ensureMember(ctx, member)
	}
	log.Printf("Synced %v members.", len(members))
}
