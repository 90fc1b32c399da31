// Package notify keeps the per-user notification preference in step with
// the reactions on the anchor message.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
)

// Checkmark is the reaction that opts a member in.
const Checkmark = "✅"

// Marker identifies the anchor message when scanning channel history.
const Marker = "birthday notifications"

// AnchorText is the content of a freshly created anchor message.
const AnchorText = "🎂 **Birthday notifications**\nReact with " + Checkmark +
	" to receive birthday notifications by DM!"

// ErrAnchorUnavailable means the anchor message could not be found or read.
var ErrAnchorUnavailable = errors.New("anchor message unavailable")

// Anchor references the one message whose reactions are authoritative.
type Anchor struct {
	ChannelID string
	MessageID string
}

// Valid reports whether the anchor has been discovered.
func (a Anchor) Valid() bool {
	return a.ChannelID != "" && a.MessageID != ""
}

// Reaction is a single reaction add or remove event.
type Reaction struct {
	UserID    int64
	MessageID string
	Emoji     string
}

// PreferenceStore is the part of the record store the engine writes through.
type PreferenceStore interface {
	SetPreference(ctx context.Context, userID int64, enabled bool) error
	OptedIn(ctx context.Context) ([]int64, error)
}

// Source supplies the live state reconciliation works from. Reactors must
// not include bot accounts.
type Source interface {
	Reactors(ctx context.Context, anchor Anchor, emoji string) ([]int64, error)
	MemberIDs(ctx context.Context) ([]int64, error)
}

// Summary counts the writes made by one reconciliation pass.
type Summary struct {
	Enabled  []int64
	Disabled []int64
	Failed   []int64
}

// Writes is the number of successful preference updates.
func (s Summary) Writes() int {
	return len(s.Enabled) + len(s.Disabled)
}

// Engine applies reaction state to stored preferences.
type Engine struct {
	store  PreferenceStore
	selfID int64
	emoji  string
}

// NewEngine creates an engine that ignores reactions made by selfID.
func NewEngine(store PreferenceStore, selfID int64) *Engine {
	return &Engine{store: store, selfID: selfID, emoji: Checkmark}
}

func (e *Engine) relevant(anchor Anchor, reaction Reaction) bool {
	return anchor.Valid() &&
		reaction.MessageID == anchor.MessageID &&
		reaction.Emoji == e.emoji &&
		reaction.UserID != e.selfID
}

// OnReactionAdd opts the reacting user in. It reports whether the reaction
// was relevant.
func (e *Engine) OnReactionAdd(ctx context.Context, anchor Anchor, reaction Reaction) (bool, error) {
	return e.apply(ctx, anchor, reaction, true)
}

// OnReactionRemove opts the user out again.
func (e *Engine) OnReactionRemove(ctx context.Context, anchor Anchor, reaction Reaction) (bool, error) {
	return e.apply(ctx, anchor, reaction, false)
}

func (e *Engine) apply(ctx context.Context, anchor Anchor, reaction Reaction, enabled bool) (bool, error) {
	if !e.relevant(anchor, reaction) {
		return false, nil
	}
	if err := e.store.SetPreference(ctx, reaction.UserID, enabled); err != nil {
		return true, fmt.Errorf("failed to set preference for %v: %w", reaction.UserID, err)
	}
	log.Printf("Set notification preference of %v to %v.", reaction.UserID, enabled)
	return true, nil
}

// Sync fetches the current reactors and roster from src and reconciles.
func (e *Engine) Sync(ctx context.Context, src Source, anchor Anchor) (Summary, error) {
	if !anchor.Valid() {
		return Summary{}, ErrAnchorUnavailable
	}

	reactors, err := src.Reactors(ctx, anchor, e.emoji)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrAnchorUnavailable, err)
	}

	members, err := src.MemberIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list members: %w", err)
	}

	return e.Reconcile(ctx, reactors, members)
}

// Reconcile recomputes preferences of the given members from the reactor
// set. Users outside members are neither enabled nor disabled. Only
// differences are written; a failed write is recorded and the pass goes on.
func (e *Engine) Reconcile(ctx context.Context, reactors, members []int64) (Summary, error) {
	known := toSet(members)

	wanted := make(map[int64]bool)
	for _, id := range reactors {
		if id != e.selfID && known[id] {
			wanted[id] = true
		}
	}

	optedIn, err := e.store.OptedIn(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list opted in users: %w", err)
	}
	stored := make(map[int64]bool)
	for _, id := range optedIn {
		if known[id] {
			stored[id] = true
		}
	}

	var summary Summary
	for _, id := range difference(wanted, stored) {
		if err := e.store.SetPreference(ctx, id, true); err != nil {
			log.Printf("Failed to enable notifications for %v: %v", id, err)
			summary.Failed = append(summary.Failed, id)
			continue
		}
		summary.Enabled = append(summary.Enabled, id)
	}
	for _, id := range difference(stored, wanted) {
		if err := e.store.SetPreference(ctx, id, false); err != nil {
			log.Printf("Failed to disable notifications for %v: %v", id, err)
			summary.Failed = append(summary.Failed, id)
			continue
		}
		summary.Disabled = append(summary.Disabled, id)
	}

	log.Printf(
		"Reconciled notification preferences: %v enabled, %v disabled, %v failed.",
		len(summary.Enabled),
		len(summary.Disabled),
		len(summary.Failed),
	)
	return summary, nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// difference returns a - b in ascending order.
func difference(a, b map[int64]bool) []int64 {
	var out []int64
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
