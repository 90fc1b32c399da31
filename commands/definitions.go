// Package commands describes the bot's slash commands and formats their
// replies.
package commands

import (
	"birthdaybot/dates"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Command names.
const (
	Help           = "help"
	SetBirthday    = "setbirthday"
	SetBirthdayFor = "setbirthdayfor"
	ForgetBirthday = "forgetbirthday"
	NextBirthday   = "nextbirthday"
	Upcoming       = "upcoming"
	BirthdayCheck  = "birthdaycheck"
	SyncNotify     = "syncnotify"
	SetupNotify    = "setupnotify"
	TestDM         = "testdm"
	TestDMAll      = "testdmall"
)

// Option names.
const (
	OptionDate      = "date"
	OptionFirstName = "firstname"
	OptionLastName  = "lastname"
	OptionName      = "name"
)

// UpcomingLimit is the number of entries listed by /upcoming.
const UpcomingLimit = 5

var adminPermission int64 = discordgo.PermissionAdministrator

var adminCommands = map[string]bool{
	SetBirthdayFor: true,
	BirthdayCheck:  true,
	SyncNotify:     true,
	SetupNotify:    true,
	TestDM:         true,
	TestDMAll:      true,
}

// IsAdmin reports whether the command requires administrator permissions.
func IsAdmin(name string) bool {
	return adminCommands[name]
}

func dateOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        OptionDate,
		Description: fmt.Sprintf("Date of birth (format: %v)", dates.InputFormat),
		Required:    true,
	}
}

func nameOptions() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptionFirstName,
			Description: "Optional first name.",
			Required:    false,
		}, {
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptionLastName,
			Description: "Optional last name.",
			Required:    false,
		},
	}
}

// Definitions returns every slash command the bot registers.
func Definitions() []*discordgo.ApplicationCommand {
	definitions := []*discordgo.ApplicationCommand{
		{
			Name:        Help,
			Description: "Shows the available commands.",
		}, {
			Name:        SetBirthday,
			Description: "Saves your birthday.",
			Options:     append([]*discordgo.ApplicationCommandOption{dateOption()}, nameOptions()...),
		}, {
			Name:        SetBirthdayFor,
			Description: "Saves the birthday of another member, found by name.",
			Options: append([]*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        OptionName,
					Description: "Name of the member (approximate spelling is fine).",
					Required:    true,
				},
				dateOption(),
			}, nameOptions()...),
		}, {
			Name:        ForgetBirthday,
			Description: "Removes your birthday.",
		}, {
			Name:        NextBirthday,
			Description: "Shows the next birthday, or the next birthday of a member.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        OptionName,
					Description: "The member to look up.",
					Required:    false,
				},
			},
		}, {
			Name:        Upcoming,
			Description: fmt.Sprintf("Shows the next %d birthdays.", UpcomingLimit),
		}, {
			Name:        BirthdayCheck,
			Description: "Runs today's birthday check now.",
		}, {
			Name:        SyncNotify,
			Description: "Re-reads notification opt-ins from the reactions.",
		}, {
			Name:        SetupNotify,
			Description: "Finds or recreates the notification message.",
		}, {
			Name:        TestDM,
			Description: "Sends you a test DM.",
		}, {
			Name:        TestDMAll,
			Description: "Sends a test DM to every member with notifications enabled.",
		},
	}

	for _, definition := range definitions {
		if IsAdmin(definition.Name) {
			definition.DefaultMemberPermissions = &adminPermission
		}
	}
	return definitions
}

// Options indexes interaction options by name.
func Options(
	options []*discordgo.ApplicationCommandInteractionDataOption,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		byName[option.Name] = option
	}
	return byName
}

// StringOption returns the named string option or "" when it was not given.
func StringOption(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	if option, ok := options[name]; ok {
		return option.StringValue()
	}
	return ""
}
