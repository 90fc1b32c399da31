// Package announce posts today's birthdays and fans out private
// notifications to opted-in members.
package announce

import (
	"birthdaybot/dates"
	"birthdaybot/models"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrForbidden is returned by a Messenger when the recipient does not accept
// direct messages.
var ErrForbidden = errors.New("recipient does not accept direct messages")

// Store is the part of the record store the orchestrator reads.
type Store interface {
	Today(ctx context.Context, ref time.Time) ([]models.BirthdayRecord, error)
	OptedIn(ctx context.Context) ([]int64, error)
	UpdateDisplayName(ctx context.Context, userID int64, name string) error
}

// Messenger delivers public and private messages.
type Messenger interface {
	SendChannelMessage(ctx context.Context, channelID, text string) error
	SendDirectMessage(ctx context.Context, userID int64, text string) error
}

// Directory looks up a member's current display name.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, bool)
}

// DeliveryError records a private message that could not be delivered.
type DeliveryError struct {
	Recipient int64
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver DM to %v: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Delivery is the outcome of one private message.
type Delivery struct {
	Recipient int64
	Err       error
}

// OK reports whether the message was delivered.
func (d Delivery) OK() bool {
	return d.Err == nil
}

// Report summarises one run.
type Report struct {
	RunID         string
	Date          time.Time
	Announcements []string
	Deliveries    []Delivery
	Errors        []error
}

// Delivered counts successful private messages.
func (r Report) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.OK() {
			n++
		}
	}
	return n
}

// Failed counts private messages that could not be delivered.
func (r Report) Failed() int {
	return len(r.Deliveries) - r.Delivered()
}

// Options configures an Orchestrator.
type Options struct {
	Store     Store
	Messenger Messenger
	// Directory is optional; without it stored display names are used.
	Directory Directory
	Clock     clockwork.Clock
	Location  *time.Location
	ChannelID string
}

// Orchestrator runs the daily announcement.
type Orchestrator struct {
	store     Store
	messenger Messenger
	directory Directory
	clock     clockwork.Clock
	loc       *time.Location
	channelID string
}

// New creates an Orchestrator. A nil clock means the real clock and a nil
// location means UTC.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     opts.Store,
		messenger: opts.Messenger,
		directory: opts.Directory,
		clock:     opts.Clock,
		loc:       opts.Location,
		channelID: opts.ChannelID,
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	return o
}

// Today is the current civil date in the orchestrator's timezone.
func (o *Orchestrator) Today() time.Time {
	return dates.Today(o.clock, o.loc)
}

// Run announces every birthday of today and notifies opted-in members. A
// day without birthdays yields an empty report and no error.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Date: o.Today()}

	records, err := o.store.Today(ctx, report.Date)
	if err != nil {
		return report, fmt.Errorf("failed to load today's birthdays: %w", err)
	}
	if len(records) == 0 {
		log.Printf("[%v] No birthdays on %v.", report.RunID, report.Date.Format(dates.FullLayout))
		return report, nil
	}

	optedIn, err := o.store.OptedIn(ctx)
	if err != nil {
		// Announcements still go out without private notifications.
		log.Printf("[%v] Failed to load opted in users: %v", report.RunID, err)
		report.Errors = append(report.Errors, err)
	}

	for _, record := range records {
		record = o.refreshName(ctx, record)
		text := Greeting(record)
		report.Announcements = append(report.Announcements, text)

		if err := o.messenger.SendChannelMessage(ctx, o.channelID, text); err != nil {
			log.Printf("[%v] Failed to announce %v in %v: %v", report.RunID, record.UserID, o.channelID, err)
			report.Errors = append(report.Errors, err)
		} else {
			log.Printf("[%v] Announced birthday of %v.", report.RunID, record.UserID)
		}

		for _, recipient := range optedIn {
			message := Notice(record)
			if recipient == record.UserID {
				message = PersonalGreeting
			}
			report.Deliveries = append(report.Deliveries, o.deliver(ctx, report.RunID, recipient, message))
		}
	}

	log.Printf(
		"[%v] Processed %v birthday(s): %v DM(s) delivered, %v failed.",
		report.RunID,
		len(records),
		report.Delivered(),
		report.Failed(),
	)
	return report, nil
}

// TestAll sends a test message to every opted-in member.
func (o *Orchestrator) TestAll(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Date: o.Today()}

	optedIn, err := o.store.OptedIn(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load opted in users: %w", err)
	}

	for _, recipient := range optedIn {
		report.Deliveries = append(report.Deliveries, o.deliver(ctx, report.RunID, recipient, TestMessage))
	}
	return report, nil
}

// TestOne sends a test message to a single member.
func (o *Orchestrator) TestOne(ctx context.Context, userID int64) error {
	delivery := o.deliver(ctx, "test", userID, TestMessage)
	return delivery.Err
}

func (o *Orchestrator) deliver(ctx context.Context, runID string, recipient int64, text string) Delivery {
	err := o.messenger.SendDirectMessage(ctx, recipient, text)
	if err == nil {
		return Delivery{Recipient: recipient}
	}

	if errors.Is(err, ErrForbidden) {
		log.Printf("[%v] Could not DM %v: direct messages are closed.", runID, recipient)
	} else {
		log.Printf("[%v] Failed to DM %v: %v", runID, recipient, err)
	}
	return Delivery{
		Recipient: recipient,
		Err:       &DeliveryError{Recipient: recipient, Err: err},
	}
}

func (o *Orchestrator) refreshName(ctx context.Context, record models.BirthdayRecord) models.BirthdayRecord {
	if o.directory == nil {
		return record
	}
	name, ok := o.directory.DisplayName(ctx, record.UserID)
	if !ok || name == "" || name == record.DisplayName {
		return record
	}

	if err := o.store.UpdateDisplayName(ctx, record.UserID, name); err != nil {
		log.Printf("Failed to update display name of %v: %v", record.UserID, err)
	}
	record.DisplayName = name
	return record
}
