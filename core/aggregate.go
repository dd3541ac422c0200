package core

import "sort"

// Levels is the output of one aggregation pass
type Levels struct {
	Combined  bool
	Dedicated map[int]bool
}

// Aggregator folds per-pin interrupt state into the combined line and the
// dedicated per-pin lines. A pin routed to a dedicated line never
// contributes to the combined line.
type Aggregator struct {
	latch     *Latch
	dedicated []int
	routed    uint64
}

// NewAggregator creates an aggregator over latch. dedicated lists the pins
// that have their own output line; duplicates and out-of-range entries are
// dropped.
func NewAggregator(latch *Latch, dedicated []int) *Aggregator {
	a := &Aggregator{latch: latch}
	for _, pin := range dedicated {
		if pin < 0 || pin >= latch.Len() || a.routed&(1<<uint(pin)) != 0 {
			continue
		}
		a.routed |= 1 << uint(pin)
		a.dedicated = append(a.dedicated, pin)
	}
	sort.Ints(a.dedicated)
	return a
}

// DedicatedPins returns the pins with their own line, ascending
func (a *Aggregator) DedicatedPins() []int {
	return append([]int(nil), a.dedicated...)
}

// IsDedicated reports whether pin has its own line
func (a *Aggregator) IsDedicated(pin int) bool {
	return pin >= 0 && pin < 64 && a.routed&(1<<uint(pin)) != 0
}

// RawMask returns the pending bits before enable and mask gating
func (a *Aggregator) RawMask() uint64 {
	return a.latch.PendingMask()
}

// VisibleMask returns the bits of pins that are enabled, pending and unmasked
func (a *Aggregator) VisibleMask() uint64 {
	var m uint64
	for i := 0; i < a.latch.Len(); i++ {
		if a.latch.Visible(i) {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Recompute derives every line value from the current latch state
func (a *Aggregator) Recompute() Levels {
	visible := a.VisibleMask()
	out := Levels{
		Combined: visible&^a.routed != 0,
	}
	if len(a.dedicated) > 0 {
		out.Dedicated = make(map[int]bool, len(a.dedicated))
		for _, pin := range a.dedicated {
			out.Dedicated[pin] = visible&(1<<uint(pin)) != 0
		}
	}
	return out
}
