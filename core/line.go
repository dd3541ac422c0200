package core

import "sync"

// OutputPolicy selects how a computed line value reaches the line
type OutputPolicy uint8

const (
	// Hold keeps the line asserted while the computed value is true
	Hold OutputPolicy = iota
	// Pulse blinks the line once each time the computed value rises
	Pulse
)

func (p OutputPolicy) String() string {
	if p == Pulse {
		return "pulse"
	}
	return "hold"
}

// Line is an interrupt output consumed by interrupt controller models.
// Listeners are called only when the level changes, and on both halves of a
// pulse.
type Line struct {
	mu     sync.Mutex
	name   string
	level  bool
	pulses uint64
	sinks  []func(bool)
}

// NewLine creates a deasserted line
func NewLine(name string) *Line {
	return &Line{name: name}
}

// Name returns the line name
func (l *Line) Name() string {
	return l.name
}

// Connect adds a listener for level changes
func (l *Line) Connect(fn func(level bool)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, fn)
}

// Assert raises the line
func (l *Line) Assert() {
	l.Set(true)
}

// Deassert lowers the line
func (l *Line) Deassert() {
	l.Set(false)
}

// Set drives the line to level
func (l *Line) Set(level bool) {
	l.mu.Lock()
	if l.level == level {
		l.mu.Unlock()
		return
	}
	l.level = level
	sinks := l.sinks
	l.mu.Unlock()

	for _, fn := range sinks {
		fn(level)
	}
}

// Pulse raises and immediately lowers the line. A line that is already
// high is left high after the pulse is counted.
func (l *Line) Pulse() {
	l.mu.Lock()
	l.pulses++
	wasHigh := l.level
	sinks := l.sinks
	l.mu.Unlock()

	if wasHigh {
		return
	}
	for _, fn := range sinks {
		fn(true)
	}
	for _, fn := range sinks {
		fn(false)
	}
}

// IsSet reports whether the line is currently asserted
func (l *Line) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Pulses returns how many pulses have been issued
func (l *Line) Pulses() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulses
}
