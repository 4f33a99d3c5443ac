package match

import "time"

// Doom is the soft/hard query deadline pair: every level of the
// match loop inspects it and must short-circuit promptly once it trips.
// Soft doom asks the loop to return whatever partial result it has; hard
// doom asks it to abort outright.
type Doom struct {
	Soft time.Time
	Hard time.Time
}

// NewDoom builds a Doom soft/hard-after now, given the two budgets.
func NewDoom(now time.Time, soft, hard time.Duration) Doom {
	return Doom{Soft: now.Add(soft), Hard: now.Add(hard)}
}

// SoftExpired reports whether the soft deadline has passed at now.
func (d Doom) SoftExpired(now time.Time) bool { return !d.Soft.IsZero() && !now.Before(d.Soft) }

// HardExpired reports whether the hard deadline has passed at now.
func (d Doom) HardExpired(now time.Time) bool { return !d.Hard.IsZero() && !now.Before(d.Hard) }
