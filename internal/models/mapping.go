// Package models contains domain models and entities.
package models

import (
	"errors"
	"time"
	"unicode/utf8"
)

// MaxLongValueLength is the de facto maximum URL length, counted in characters.
const MaxLongValueLength = 2000

// MaxShortCodeLength bounds caller-chosen codes; generated codes are shorter.
const MaxShortCodeLength = 32

// Mapping is the persisted pairing of a long value and its short code.
// The short code is the record key.
type Mapping struct {
	ShortCode string    `json:"short_code"`
	LongValue string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Validation errors
var (
	ErrLongValueTooLong = errors.New("long value exceeds 2000 characters")
	ErrEmptyShortCode   = errors.New("short code cannot be empty")
	ErrShortCodeLength  = errors.New("short code must be between 1 and 32 characters")
)

// ValidateLongValue checks the length bound on a long value.
func ValidateLongValue(longValue string) error {
	if utf8.RuneCountInString(longValue) > MaxLongValueLength {
		return ErrLongValueTooLong
	}
	return nil
}

// ValidateShortCode checks a caller-supplied short code.
func ValidateShortCode(code string) error {
	if code == "" {
		return ErrEmptyShortCode
	}
	if utf8.RuneCountInString(code) > MaxShortCodeLength {
		return ErrShortCodeLength
	}
	return nil
}

// Validate validates the mapping.
func (m *Mapping) Validate() error {
	if err := ValidateShortCode(m.ShortCode); err != nil {
		return err
	}
	return ValidateLongValue(m.LongValue)
}
