package store

import (
	"fmt"
	"strings"
)

// MaxDeviceIDLength matches the VARCHAR(64) id column.
const MaxDeviceIDLength = 64

// MaxLocationLength matches the VARCHAR(255) location column.
const MaxLocationLength = 255

// ValidateDeviceID checks a user supplied device id: non-empty, numeric
// (UPS mail reports carry a numeric serial) and within the column size.
func ValidateDeviceID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: device id is empty", ErrValidationFailed)
	}
	if len(id) > MaxDeviceIDLength {
		return fmt.Errorf("%w: device id too long: %d chars (max %d)", ErrValidationFailed, len(id), MaxDeviceIDLength)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: device id must be numeric", ErrValidationFailed)
		}
	}
	return nil
}

// ValidateLocation checks a device location.
func ValidateLocation(loc string) error {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return fmt.Errorf("%w: location is empty", ErrValidationFailed)
	}
	if len(loc) > MaxLocationLength {
		return fmt.Errorf("%w: location too long: %d chars (max %d)", ErrValidationFailed, len(loc), MaxLocationLength)
	}
	return nil
}
