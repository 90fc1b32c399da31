// Package fuzzy resolves free-text name queries to stored members.
package fuzzy

import (
	"birthdaybot/models"
	"fmt"
	"sort"
	"strings"
)

// Scores are on a 0-100 scale.
const (
	// MinScore discards candidates entirely.
	MinScore = 50
	// HighConfidence is the score above which a single match is returned.
	HighConfidence = 80
	// AdminThreshold is the minimum score for setting a birthday on
	// somebody else's behalf.
	AdminThreshold = 70
	// MaxMatches caps the list offered when a query is ambiguous.
	MaxMatches = 5
)

// Candidate is one identity a query can resolve to.
type Candidate struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Match is a scored candidate.
type Match struct {
	Score     int
	Candidate Candidate
}

// NoMatchError is returned when no candidate is similar enough.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no member matches %q", e.Query)
}

// AmbiguousMatchError is returned when several candidates are plausible and
// none is clearly ahead. Matches are ordered best first.
type AmbiguousMatchError struct {
	Query   string
	Matches []Match
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d members match %q", len(e.Matches), e.Query)
}

// FromRecord builds a candidate from a stored record.
func FromRecord(record models.BirthdayRecord) Candidate {
	return Candidate{
		UserID:    record.UserID,
		Username:  record.DisplayName,
		FirstName: record.FirstName,
		LastName:  record.LastName,
	}
}

// FromRecords builds candidates preserving record order.
func FromRecords(records []models.BirthdayRecord) []Candidate {
	candidates := make([]Candidate, len(records))
	for i, record := range records {
		candidates[i] = FromRecord(record)
	}
	return candidates
}

// Names lists the strings a query is compared against.
func (c Candidate) Names() []string {
	first := strings.TrimSpace(c.FirstName)
	last := strings.TrimSpace(c.LastName)

	var names []string
	for _, name := range []string{c.Username, first, last} {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	if first != "" && last != "" {
		names = append(names, first+" "+last)
	}
	return names
}

// Label is a human readable description of the candidate.
func (c Candidate) Label() string {
	first := strings.TrimSpace(c.FirstName)
	last := strings.TrimSpace(c.LastName)
	switch {
	case first != "" && last != "":
		return fmt.Sprintf("%s %s (%s)", first, last, c.Username)
	case first != "":
		return fmt.Sprintf("%s (%s)", first, c.Username)
	default:
		return c.Username
	}
}

// Score is the best similarity of query against any of the candidate's names.
func Score(query string, candidate Candidate) int {
	best := 0
	for _, name := range candidate.Names() {
		if score := Similarity(query, name); score > best {
			best = score
		}
	}
	return best
}

// Rank scores every candidate, drops those below MinScore and orders the
// rest by score. Equal scores keep candidate order.
func Rank(query string, candidates []Candidate) []Match {
	var matches []Match
	for _, candidate := range candidates {
		if score := Score(query, candidate); score >= MinScore {
			matches = append(matches, Match{Score: score, Candidate: candidate})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// FindBestMatches returns only the top match when it is above
// HighConfidence, otherwise up to MaxMatches ranked matches.
func FindBestMatches(query string, candidates []Candidate) []Match {
	matches := Rank(query, candidates)
	if len(matches) > 0 && matches[0].Score > HighConfidence {
		return matches[:1]
	}
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches
}

// Lookup resolves query to exactly one candidate or explains why it could not.
func Lookup(query string, candidates []Candidate) (Match, error) {
	matches := FindBestMatches(query, candidates)
	switch len(matches) {
	case 0:
		return Match{}, &NoMatchError{Query: query}
	case 1:
		return matches[0], nil
	default:
		return Match{}, &AmbiguousMatchError{Query: query, Matches: matches}
	}
}

// Best returns the single highest scoring candidate, rejecting it when the
// score is below threshold. It never asks the caller to disambiguate.
func Best(query string, candidates []Candidate, threshold int) (Match, error) {
	matches := Rank(query, candidates)
	if len(matches) == 0 || matches[0].Score < threshold {
		return Match{}, &NoMatchError{Query: query}
	}
	return matches[0], nil
}
