package commands

import (
	"birthdaybot/dates"
	"birthdaybot/fuzzy"
	"birthdaybot/models"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const noUpcoming = "No upcoming birthdays found."

var memberHelp = []string{
	"`/setbirthday date [firstname] [lastname]` - Save your birthday (DD.MM.YYYY)",
	"`/forgetbirthday` - Remove your birthday",
	"`/nextbirthday [name]` - Show the next birthday, or the next birthday of a member",
	"`/upcoming` - Show the next 5 birthdays",
	"`/help` - Show this help",
}

var adminHelp = []string{
	"`/setbirthdayfor name date [firstname] [lastname]` - Save the birthday of another member (approximate name search)",
	"`/birthdaycheck` - Run today's birthday check now",
	"`/syncnotify` - Re-read notification opt-ins from the reactions",
	"`/setupnotify` - Find or recreate the notification message",
	"`/testdm` - Send yourself a test DM",
	"`/testdmall` - Send a test DM to everyone with notifications enabled",
}

// HelpText lists the commands; administrators also see the admin commands.
func HelpText(admin bool) string {
	var b strings.Builder
	b.WriteString("**🎂 Birthday bot commands**\n")
	for _, line := range memberHelp {
		b.WriteString(line + "\n")
	}
	b.WriteString("\nReact with ✅ on the notification message in the birthday channel " +
		"to get a DM whenever someone has a birthday.\n")
	if admin {
		b.WriteString("\n**Admin commands**\n")
		for _, line := range adminHelp {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// When phrases a distance in days.
func When(daysUntil int, next, today time.Time) string {
	switch daysUntil {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return humanize.RelTime(next, today, "ago", "from now")
	}
}

// FormatUpcoming lists upcoming birthdays, one per line.
func FormatUpcoming(upcoming []models.Upcoming, today time.Time) string {
	if len(upcoming) == 0 {
		return noUpcoming
	}

	var b strings.Builder
	b.WriteString("📅 **Upcoming birthdays:**\n")
	for _, u := range upcoming {
		next := dates.NextOccurrence(*u.Record.Birthday, today)
		fmt.Fprintf(
			&b,
			"• %v: %v (%v)\n",
			u.Record.FullName(),
			u.Record.Birthday.Format(dates.DisplayLayout),
			When(u.DaysUntil, next, today),
		)
	}
	return b.String()
}

// FormatNext describes a single member's next birthday.
func FormatNext(u models.Upcoming, today time.Time) string {
	next := dates.NextOccurrence(*u.Record.Birthday, today)
	if u.DaysUntil == 0 {
		return fmt.Sprintf("🎉 %v has a birthday today!", u.Record.FullName())
	}
	return fmt.Sprintf(
		"🎂 The next birthday of %v is on %v, %v.",
		u.Record.FullName(),
		next.Format(dates.FullLayout),
		When(u.DaysUntil, next, today),
	)
}

// FormatCandidates asks the requester to pick one of several matches.
func FormatCandidates(err *fuzzy.AmbiguousMatchError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Several members match '%v'. Did you mean:\n", err.Query)
	for _, match := range err.Matches {
		fmt.Fprintf(&b, "• %v (%d%%)\n", match.Candidate.Label(), match.Score)
	}
	return b.String()
}

// FormatNoMatch explains that a name could not be resolved.
func FormatNoMatch(query string) string {
	return fmt.Sprintf(
		"No member matching '%v' found. Please check the spelling or try another name.",
		query,
	)
}

// FormatInvalidDate explains the expected date format.
func FormatInvalidDate() string {
	return fmt.Sprintf(
		"Invalid date! Please use the format %v, for example %v.",
		dates.InputFormat,
		dates.InputExample,
	)
}

// FormatCooldown explains when a member may change their birthday again.
func FormatCooldown(lastUse, nextUse, now time.Time) string {
	return fmt.Sprintf(
		"You last changed your birthday on %v. You can change it again %v.",
		lastUse.Format("2006-01-02 15:04"),
		humanize.RelTime(nextUse, now, "ago", "from now"),
	)
}

// FormatDeliveries summarises a test DM run.
func FormatDeliveries(delivered, failed int) string {
	return fmt.Sprintf("Test DMs sent!\n✅ Delivered: %d\n❌ Failed: %d", delivered, failed)
}
