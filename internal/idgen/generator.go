// Package idgen handles short code generation.
package idgen

// Generator turns a (seed, multiplier) pair into a fixed-length code.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	cfg   Config
	base  uint64
	valid [128]bool
}

// NewGenerator creates a Generator from a validated copy of cfg.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{
		cfg:  cfg.clone(),
		base: cfg.Base(),
	}
	for i := 0; i < len(cfg.Alphabet); i++ {
		g.valid[cfg.Alphabet[i]] = true
	}

	return g, nil
}

// NewDefaultGenerator creates a Generator with the reference configuration.
func NewDefaultGenerator() *Generator {
	g, err := NewGenerator(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return g
}

// Generate computes key = seed * multiplier and emits Length symbols, each
// indexed by (key >> shift) & base, with shift starting at InitialShift and
// dropping by ShiftStep per symbol. Once the shift reaches zero it stays there.
func (g *Generator) Generate(seed, multiplier uint64) string {
	key := seed * multiplier
	shift := g.cfg.InitialShift

	code := make([]byte, g.cfg.Length)
	for i := range code {
		code[i] = g.cfg.Alphabet[(key>>uint(shift))&g.base]
		shift -= g.cfg.ShiftStep
		if shift < 0 {
			shift = 0
		}
	}

	return string(code)
}

// Valid reports whether code has the configured length and uses only
// alphabet symbols.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.cfg.Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] >= 128 || !g.valid[code[i]] {
			return false
		}
	}
	return true
}

// Config returns a copy of the generator configuration.
func (g *Generator) Config() Config {
	return g.cfg.clone()
}

// Length returns the configured code length.
func (g *Generator) Length() int {
	return g.cfg.Length
}
