package announce

import (
	"birthdaybot/models"
	"strings"
)

// Fixed private messages.
const (
	PersonalGreeting = "🎉 Happy birthday! I hope you have a wonderful day! 🎂"
	TestMessage      = "🎉 This is a test DM from the birthday bot! 🎂\n" +
		"You are receiving it because you signed up for birthday notifications."
)

// Greeting is the public announcement for record. The member is addressed by
// full name when first and last name are known, by first name or display
// name otherwise; the display name is added in parentheses only if it is not
// already part of the name used.
func Greeting(record models.BirthdayRecord) string {
	text := "🎉 Happy birthday, " + record.FullName()
	if aside := displayAside(record); aside != "" {
		text += " (" + aside + ")"
	}
	return text + "! 🎂"
}

// Notice is the private notification sent to opted-in members.
func Notice(record models.BirthdayRecord) string {
	return "🎂 " + record.PreferredName() + " has a birthday today!"
}

func displayAside(record models.BirthdayRecord) string {
	first := strings.TrimSpace(record.FirstName)
	display := strings.TrimSpace(record.DisplayName)
	if first == "" || display == "" {
		return ""
	}
	if strings.EqualFold(display, first) || strings.EqualFold(display, record.FullName()) {
		return ""
	}
	return display
}
