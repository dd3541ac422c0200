// Interrupt latch
// Per-pin pending/enable/mask storage with sticky or live level semantics
package core

// InterruptState is the interrupt bookkeeping of one pin
type InterruptState struct {
	Enabled bool
	Masked  bool
	Pending bool
}

// LatchGate selects whether disabled pins still record conditions
type LatchGate uint8

const (
	// LatchAlways records conditions regardless of the enable bit; enable
	// only gates aggregation.
	LatchAlways LatchGate = iota
	// LatchWhenEnabled drops conditions on pins whose interrupt is disabled
	LatchWhenEnabled
	// LatchOnChange records conditions on disabled pins only when they come
	// from a level change. A steady level condition needs the enable bit.
	LatchOnChange
)

// MaskPolicy selects how the mask bit interacts with latching
type MaskPolicy uint8

const (
	// MaskLatches lets masked pins latch; they show in the raw view only
	MaskLatches MaskPolicy = iota
	// MaskSuppresses keeps masked pins from latching at all
	MaskSuppresses
)

// Latch stores pending interrupt conditions for a bank of pins. Edge
// conditions always latch stickily. Level conditions latch stickily only when
// the latch was built with sticky set; otherwise pending follows the
// instantaneous condition.
type Latch struct {
	states []InterruptState
	sticky bool
	gate   LatchGate
	mask   MaskPolicy
}

// NewLatch creates a latch for n pins with all state cleared
func NewLatch(n int, sticky bool, gate LatchGate, mask MaskPolicy) *Latch {
	return &Latch{
		states: make([]InterruptState, n),
		sticky: sticky,
		gate:   gate,
		mask:   mask,
	}
}

// Len returns the number of pins tracked
func (l *Latch) Len() int {
	return len(l.states)
}

// State returns a copy of the state of pin i
func (l *Latch) State(i int) InterruptState {
	return l.states[i]
}

// Sticky reports whether level conditions latch until cleared
func (l *Latch) Sticky() bool {
	return l.sticky
}

// Record folds the result of one trigger evaluation into pin i
func (l *Latch) Record(i int, mode TriggerMode, occurred bool) {
	l.RecordChange(i, mode, occurred, false)
}

// RecordChange is Record for an evaluation in which the pin level changed
// when changed is set
func (l *Latch) RecordChange(i int, mode TriggerMode, occurred, changed bool) {
	s := &l.states[i]
	var gated bool
	switch l.gate {
	case LatchWhenEnabled:
		gated = !s.Enabled
	case LatchOnChange:
		gated = !s.Enabled && !changed
	}
	blocked := gated || (l.mask == MaskSuppresses && s.Masked)

	if mode.IsLevel() && !l.sticky {
		s.Pending = occurred && !blocked
		return
	}
	if occurred && !blocked {
		s.Pending = true
	}
}

// Clear drops the pending condition of pin i. A live level condition that
// still holds is re-derived on the next evaluation.
func (l *Latch) Clear(i int) {
	l.states[i].Pending = false
}

// ClearMask clears every pin whose bit is set in mask
func (l *Latch) ClearMask(mask uint64) {
	for i := range l.states {
		if mask&(1<<uint(i)) != 0 {
			l.states[i].Pending = false
		}
	}
}

// SetEnabled sets the enable bit of pin i
func (l *Latch) SetEnabled(i int, on bool) {
	l.states[i].Enabled = on
}

// SetMasked sets the mask bit of pin i
func (l *Latch) SetMasked(i int, on bool) {
	l.states[i].Masked = on
}

// Visible reports whether pin i contributes to its interrupt line
func (l *Latch) Visible(i int) bool {
	s := l.states[i]
	return s.Enabled && s.Pending && !s.Masked
}

// PendingMask returns the raw pending bits. Reading never clears them.
func (l *Latch) PendingMask() uint64 {
	var m uint64
	for i, s := range l.states {
		if s.Pending {
			m |= 1 << uint(i)
		}
	}
	return m
}

// EnabledMask returns the enable bits
func (l *Latch) EnabledMask() uint64 {
	var m uint64
	for i, s := range l.states {
		if s.Enabled {
			m |= 1 << uint(i)
		}
	}
	return m
}

// MaskedMask returns the mask bits
func (l *Latch) MaskedMask() uint64 {
	var m uint64
	for i, s := range l.states {
		if s.Masked {
			m |= 1 << uint(i)
		}
	}
	return m
}

// reset clears pending bits and, unless keepConfig is set, enable and mask
func (l *Latch) reset(keepConfig bool) {
	for i := range l.states {
		if keepConfig {
			l.states[i].Pending = false
			continue
		}
		l.states[i] = InterruptState{}
	}
}
