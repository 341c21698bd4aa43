package device

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxRoomLength = 64
)

// Draft is the user-supplied part of a new device, as submitted by the add form.
type Draft struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
	Room string `json:"room"`
}

// Normalize returns a copy of the draft with surrounding whitespace removed.
func (d Draft) Normalize() Draft {
	return Draft{
		Name: strings.TrimSpace(d.Name),
		Type: Type(strings.TrimSpace(string(d.Type))),
		Room: strings.TrimSpace(d.Room),
	}
}

// Validate checks that name, type and room are all present.
//
// Returns an error wrapping ErrMissingFields listing every empty field, or
// ErrInvalidName / ErrInvalidRoom for oversized values. An unrecognised type
// is accepted; the device will carry the fallback color.
func (d Draft) Validate() error {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Type == "" {
		missing = append(missing, "type")
	}
	if d.Room == "" {
		missing = append(missing, "room")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	if utf8.RuneCountInString(d.Name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if utf8.RuneCountInString(d.Room) > maxRoomLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoom, maxRoomLength)
	}
	return nil
}

// generateID produces a fresh device identifier. Tests may replace it.
var generateID = uuid.NewString

// GenerateID returns a new random device identifier.
func GenerateID() string {
	return generateID()
}
