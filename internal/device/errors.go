package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrMissingFields) {
//	    // ask the user to complete the form
//	}
var (
	// ErrDeviceNotFound is returned by lookups for an identifier not in the registry.
	// Toggle and Adjust never return it; they ignore unknown identifiers.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrMissingFields is returned when a draft lacks a name, type or room.
	ErrMissingFields = errors.New("device: missing required fields")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidRoom is returned when a room label is too long.
	ErrInvalidRoom = errors.New("device: invalid room")
)
