package idgen

import "fmt"

// DefaultAlphabet holds digits 2-9 and every consonant in both cases.
const DefaultAlphabet = "23456789bcdfghjklmnpqrstvwxyzBCDFGHJKLMNPQRSTVWXYZ"

// Reference configuration values.
const (
	DefaultCodeLength     = 6
	DefaultInitialShift   = 12
	DefaultShiftStep      = 2
	DefaultBaseMultiplier = 333
	DefaultSeedMin        = 3333
	DefaultSeedMax        = 13983816
	DefaultMaxAttempts    = 64
)

// Config is the immutable description of a code generator.
// It is copied into the Generator at construction.
type Config struct {
	// Alphabet is the ordered symbol set. The extraction mask is len(Alphabet)-1.
	Alphabet string
	// Length is the number of symbols per code.
	Length int
	// InitialShift is the right shift applied to the key for the first symbol.
	InitialShift int
	// ShiftStep is subtracted from the shift after each symbol.
	ShiftStep int
	// BaseMultiplier is the multiplier every candidate chain starts from.
	BaseMultiplier uint64
	// Increments are the values a multiplier may be perturbed by on a collision.
	Increments []uint64
	// SeedMin and SeedMax bound the uniformly drawn seed, inclusive.
	SeedMin uint64
	SeedMax uint64
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Alphabet:       DefaultAlphabet,
		Length:         DefaultCodeLength,
		InitialShift:   DefaultInitialShift,
		ShiftStep:      DefaultShiftStep,
		BaseMultiplier: DefaultBaseMultiplier,
		Increments:     []uint64{2, 3, 4, 5, 6, 7},
		SeedMin:        DefaultSeedMin,
		SeedMax:        DefaultSeedMax,
	}
}

// Base returns the extraction mask, one less than the alphabet size.
func (c Config) Base() uint64 {
	return uint64(len(c.Alphabet) - 1)
}

// Validate reports whether the configuration can generate codes.
func (c Config) Validate() error {
	if len(c.Alphabet) < 2 {
		return fmt.Errorf("%w: alphabet needs at least 2 symbols", ErrInvalidConfig)
	}

	var seen [128]bool
	for i := 0; i < len(c.Alphabet); i++ {
		ch := c.Alphabet[i]
		if ch <= ' ' || ch >= 0x7f {
			return fmt.Errorf("%w: alphabet symbol %q is not printable ASCII", ErrInvalidConfig, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: alphabet symbol %q repeated", ErrInvalidConfig, ch)
		}
		seen[ch] = true
	}

	if c.Length < 1 {
		return fmt.Errorf("%w: length must be positive", ErrInvalidConfig)
	}
	if c.InitialShift < 0 || c.ShiftStep < 0 {
		return fmt.Errorf("%w: shifts must not be negative", ErrInvalidConfig)
	}
	if c.BaseMultiplier < 1 {
		return fmt.Errorf("%w: base multiplier must be positive", ErrInvalidConfig)
	}
	if len(c.Increments) == 0 {
		return fmt.Errorf("%w: at least one multiplier increment is required", ErrInvalidConfig)
	}
	for _, inc := range c.Increments {
		if inc == 0 {
			return fmt.Errorf("%w: multiplier increments must be positive", ErrInvalidConfig)
		}
	}
	if c.SeedMin < 1 || c.SeedMin > c.SeedMax {
		return fmt.Errorf("%w: seed range [%d, %d] is empty", ErrInvalidConfig, c.SeedMin, c.SeedMax)
	}

	return nil
}

// clone copies the configuration, increments included.
func (c Config) clone() Config {
	c.Increments = append([]uint64(nil), c.Increments...)
	return c
}
