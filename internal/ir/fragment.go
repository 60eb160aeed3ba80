package ir

import (
	"fmt"
	"slices"
)

// FragmentType tags the payload carried by a Fragment.
type FragmentType string

const (
	FragmentTimer      FragmentType = "timer"
	FragmentRounds     FragmentType = "rounds"
	FragmentRep        FragmentType = "rep"
	FragmentEffort     FragmentType = "effort"
	FragmentResistance FragmentType = "resistance"
	FragmentDistance   FragmentType = "distance"
	FragmentAction     FragmentType = "action"
)

// FragmentTypes lists every known fragment type in declaration order.
var FragmentTypes = []FragmentType{
	FragmentTimer,
	FragmentRounds,
	FragmentRep,
	FragmentEffort,
	FragmentResistance,
	FragmentDistance,
	FragmentAction,
}

// Direction is the counting direction of a timer fragment.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Well-known action tags.
const (
	ActionEMOM  = "EMOM"
	ActionAMRAP = "AMRAP"
)

// Fragment is one typed piece of a parsed statement, e.g. "20:00" (timer),
// "3 Rounds" (rounds), "21-15-9" (rounds with a sequence), "10" (rep),
// "Pushups" (effort), "95lb" (resistance).
//
// Only the fields relevant to Type are set.
type Fragment struct {
	Type      FragmentType `json:"type"`
	Image     string       `json:"image,omitempty"`     // source text, informational
	Duration  int64        `json:"duration,omitempty"`  // timer, milliseconds
	Direction Direction    `json:"direction,omitempty"` // timer
	Count     int64        `json:"count,omitempty"`     // rounds, rep
	Sequence  []int64      `json:"sequence,omitempty"`  // rounds as a rep scheme
	Label     string       `json:"label,omitempty"`     // effort, action
	Amount    int64        `json:"amount,omitempty"`    // resistance, distance
	Unit      string       `json:"unit,omitempty"`      // resistance, distance
}

// Validate checks that the payload matches the fragment type.
func (f Fragment) Validate() error {
	switch f.Type {
	case FragmentTimer:
		if f.Duration < 0 {
			return fmt.Errorf("timer duration must be >= 0, got %d", f.Duration)
		}
		if f.Direction != "" && f.Direction != DirectionUp && f.Direction != DirectionDown {
			return fmt.Errorf("timer direction must be %q or %q, got %q", DirectionUp, DirectionDown, f.Direction)
		}
		if f.Direction == DirectionDown && f.Duration == 0 {
			return fmt.Errorf("countdown timer requires a duration")
		}
	case FragmentRounds:
		if len(f.Sequence) == 0 && f.Count < 1 {
			return fmt.Errorf("rounds requires count >= 1 or a sequence")
		}
		for i, n := range f.Sequence {
			if n < 1 {
				return fmt.Errorf("rounds sequence[%d] must be >= 1, got %d", i, n)
			}
		}
	case FragmentRep:
		if f.Count < 0 {
			return fmt.Errorf("rep count must be >= 0, got %d", f.Count)
		}
	case FragmentEffort, FragmentAction:
		if f.Label == "" {
			return fmt.Errorf("%s fragment requires a label", f.Type)
		}
	case FragmentResistance, FragmentDistance:
		if f.Amount < 0 {
			return fmt.Errorf("%s amount must be >= 0, got %d", f.Type, f.Amount)
		}
	default:
		return fmt.Errorf("unknown fragment type %q", f.Type)
	}
	return nil
}

// TimerDirection returns the effective counting direction: timers with a
// duration count down unless told otherwise.
func (f Fragment) TimerDirection() Direction {
	if f.Direction != "" {
		return f.Direction
	}
	if f.Duration > 0 {
		return DirectionDown
	}
	return DirectionUp
}

// TotalRounds returns the number of rounds a rounds fragment declares:
// the sequence length for rep schemes, otherwise Count.
func (f Fragment) TotalRounds() int64 {
	if len(f.Sequence) > 0 {
		return int64(len(f.Sequence))
	}
	return f.Count
}

func (f Fragment) toIR() IRObject {
	obj := IRObject{"type": IRString(f.Type)}
	if f.Duration != 0 {
		obj["duration"] = IRInt(f.Duration)
	}
	if f.Direction != "" {
		obj["direction"] = IRString(f.Direction)
	}
	if f.Count != 0 {
		obj["count"] = IRInt(f.Count)
	}
	if len(f.Sequence) > 0 {
		seq := make(IRArray, len(f.Sequence))
		for i, n := range f.Sequence {
			seq[i] = IRInt(n)
		}
		obj["sequence"] = seq
	}
	if f.Label != "" {
		obj["label"] = IRString(f.Label)
	}
	if f.Amount != 0 {
		obj["amount"] = IRInt(f.Amount)
	}
	if f.Unit != "" {
		obj["unit"] = IRString(f.Unit)
	}
	return obj
}

// Clone returns a deep copy.
func (f Fragment) Clone() Fragment {
	f.Sequence = slices.Clone(f.Sequence)
	return f
}
