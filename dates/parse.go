package dates

import (
	"fmt"
	"strings"
	"time"
)

// Birthday input format used by every command.
const (
	InputFormat  = "DD.MM.YYYY"
	InputExample = "24.12.1990"
	inputLayout  = "2.1.2006"

	// DisplayLayout renders a birthday without its year.
	DisplayLayout = "02.01."
	// FullLayout renders a birthday including its year.
	FullLayout = "02.01.2006"
)

// Earliest year accepted for a birthday.
const MinYear = 1900

// ValidationError reports malformed user input. It never reaches the store.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseBirthday parses a DD.MM.YYYY date. Single digit days and months are
// accepted. The year must not be before MinYear and the date must not be
// after today.
func ParseBirthday(input string, today time.Time) (time.Time, error) {
	value := strings.TrimSpace(input)
	date, err := time.Parse(inputLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:  "date",
			Value:  input,
			Reason: fmt.Sprintf("expected %s, for example %s", InputFormat, InputExample),
		}
	}
	if date.Year() < MinYear || date.Year() > today.Year() {
		return time.Time{}, &ValidationError{
			Field:  "date",
			Value:  input,
			Reason: fmt.Sprintf("year must be between %d and %d", MinYear, today.Year()),
		}
	}
	if date.After(Civil(today)) {
		return time.Time{}, &ValidationError{
			Field:  "date",
			Value:  input,
			Reason: "date must not be in the future",
		}
	}
	return date, nil
}
