package idgen

import "context"

// Chain produces the candidates for a single allocation. It starts at the
// configured base multiplier, draws a fresh seed for every candidate and
// perturbs the multiplier whenever the caller reports a collision.
//
// A candidate equal to the first one the chain produced is discarded before
// it reaches the store and regenerated with a bumped multiplier. Discarded
// candidates still consume attempts, so a chain always terminates.
//
// A Chain is not safe for concurrent use; each allocation owns one.
type Chain struct {
	gen         *Generator
	src         Source
	maxAttempts int

	multiplier uint64
	first      string
	attempts   int
	repeats    int
}

// NewChain starts a candidate chain. maxAttempts below 1 is treated as 1.
func (g *Generator) NewChain(src Source, maxAttempts int) *Chain {
	if src == nil {
		src = CryptoSource{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Chain{
		gen:         g,
		src:         src,
		maxAttempts: maxAttempts,
		multiplier:  g.cfg.BaseMultiplier,
	}
}

// Next returns the next candidate code. It returns ErrAllocationExhausted
// once maxAttempts candidates have been produced, and ctx.Err() if the
// context is done.
func (c *Chain) Next(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if c.attempts >= c.maxAttempts {
			return "", ErrAllocationExhausted
		}
		c.attempts++

		seed, err := c.seed()
		if err != nil {
			return "", err
		}

		code := c.gen.Generate(seed, c.multiplier)

		if c.first == "" {
			c.first = code
			return code, nil
		}

		if code == c.first {
			c.repeats++
			if err := c.Collide(); err != nil {
				return "", err
			}
			continue
		}

		return code, nil
	}
}

// Collide perturbs the multiplier by one of the configured increments.
func (c *Chain) Collide() error {
	incs := c.gen.cfg.Increments
	idx, err := c.src.Uint64N(uint64(len(incs)))
	if err != nil {
		return err
	}
	c.multiplier += incs[idx]
	return nil
}

// Attempts returns how many candidates the chain has produced, including
// discarded repeats.
func (c *Chain) Attempts() int {
	return c.attempts
}

// Repeats returns how many candidates were discarded for equalling the first.
func (c *Chain) Repeats() int {
	return c.repeats
}

// Multiplier returns the current multiplier.
func (c *Chain) Multiplier() uint64 {
	return c.multiplier
}

// First returns the first candidate of the chain, or "" before Next is called.
func (c *Chain) First() string {
	return c.first
}

func (c *Chain) seed() (uint64, error) {
	lo, hi := c.gen.cfg.SeedMin, c.gen.cfg.SeedMax
	n, err := c.src.Uint64N(hi - lo + 1)
	if err != nil {
		return 0, err
	}
	return lo + n, nil
}
