// Interrupt trigger policy
// Maps a pin's previous/current level pair onto "interrupt condition asserted"
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TriggerMode is the canonical per-pin interrupt trigger. Peripheral register
// layouts decode into it through their own lookup tables.
type TriggerMode uint8

const (
	Disabled TriggerMode = iota
	ActiveHigh
	ActiveLow
	RisingEdge
	FallingEdge
	BothEdges

	triggerModeCount
)

// ErrInvalidTrigger is returned when a trigger mode name cannot be parsed
var ErrInvalidTrigger = errors.New("invalid trigger mode")

var triggerNames = [...]string{
	Disabled:    "disabled",
	ActiveHigh:  "active-high",
	ActiveLow:   "active-low",
	RisingEdge:  "rising-edge",
	FallingEdge: "falling-edge",
	BothEdges:   "both-edges",
}

func (m TriggerMode) String() string {
	if !m.Valid() {
		return "trigger(" + strconv.Itoa(int(m)) + ")"
	}
	return triggerNames[m]
}

// Valid reports whether m is one of the defined modes
func (m TriggerMode) Valid() bool {
	return m < triggerModeCount
}

// IsEdge reports whether m fires on transitions only
func (m TriggerMode) IsEdge() bool {
	return m == RisingEdge || m == FallingEdge || m == BothEdges
}

// IsLevel reports whether m fires for as long as the level holds
func (m TriggerMode) IsLevel() bool {
	return m == ActiveHigh || m == ActiveLow
}

// ParseTriggerMode accepts the names produced by String
func ParseTriggerMode(s string) (TriggerMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range triggerNames {
		if n == name {
			return TriggerMode(i), nil
		}
	}
	return Disabled, fmt.Errorf("%w: %q", ErrInvalidTrigger, s)
}

// Evaluate reports whether a new interrupt condition is asserted for this
// update. It is a pure function of its arguments. Level modes ignore previous
// and reassert on every call while the level holds.
func Evaluate(mode TriggerMode, previous, current bool) bool {
	switch mode {
	case ActiveHigh:
		return current
	case ActiveLow:
		return !current
	case RisingEdge:
		return !previous && current
	case FallingEdge:
		return previous && !current
	case BothEdges:
		return previous != current
	default:
		return false
	}
}

// DecodeTrigger builds a mode from the orthogonal bit layout most vendors use:
// edge selects edge vs level sensitivity, high selects rising/active-high vs
// falling/active-low, and both overrides the other two with BothEdges.
func DecodeTrigger(edge, high, both bool) TriggerMode {
	switch {
	case both:
		return BothEdges
	case edge && high:
		return RisingEdge
	case edge:
		return FallingEdge
	case high:
		return ActiveHigh
	default:
		return ActiveLow
	}
}

// EncodeTrigger is the inverse of DecodeTrigger. Disabled encodes as all
// false, which decodes to ActiveLow; callers gate it with their enable bit.
func EncodeTrigger(mode TriggerMode) (edge, high, both bool) {
	switch mode {
	case BothEdges:
		return true, false, true
	case RisingEdge:
		return true, true, false
	case FallingEdge:
		return true, false, false
	case ActiveHigh:
		return false, true, false
	default:
		return false, false, false
	}
}
