package ledger

import (
	"math/rand/v2"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// RandSource yields pseudo-random integers in [0, n). *math/rand/v2.Rand satisfies it.
type RandSource interface {
	IntN(n int) int
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// GlobalRand draws from the process-wide generator of math/rand/v2.
type GlobalRand struct{}

func (GlobalRand) IntN(n int) int { return rand.IntN(n) }

func between(r RandSource, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}
