// GPIO port
// Composes pin bank, trigger evaluation, interrupt latch and aggregation
// behind one lock so every mutation leaves the interrupt lines consistent
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// ErrInvalidConfig is returned by NewPort for unusable configurations
var ErrInvalidConfig = errors.New("invalid port configuration")

// ResetScope selects how much state a reset restores
type ResetScope uint8

const (
	// HardReset restores the power-on state of every pin and interrupt
	HardReset ResetScope = iota
	// SoftReset keeps observed levels and the trigger, enable and mask
	// configuration; directions, output drive and pending bits are cleared
	SoftReset
)

// Config describes one port instance and the behaviour of its hardware family
type Config struct {
	Name string
	Pins int // 1..MaxPins

	// Sticky makes level-triggered conditions latch until cleared.
	// Edge-triggered conditions always latch.
	Sticky   bool
	Latch    LatchGate
	Mask     MaskPolicy
	Readback ReadbackPolicy

	// SeparateDriveEnable requires DriveEnabled in addition to an output
	// direction before a pin drives its connection
	SeparateDriveEnable bool

	// Dedicated lists pins with their own interrupt line
	Dedicated       []int
	CombinedOutput  OutputPolicy
	DedicatedOutput OutputPolicy

	// StrictPins makes out-of-range pin indices return ErrInvalidPinIndex
	// instead of being logged and ignored
	StrictPins bool

	Logger *slog.Logger
}

// EventKind classifies port events
type EventKind uint8

const (
	EventInput  EventKind = iota // external level changed
	EventOutput                  // driven level changed
	EventLine                    // interrupt line changed
)

func (k EventKind) String() string {
	switch k {
	case EventInput:
		return "input"
	case EventOutput:
		return "output"
	case EventLine:
		return "line"
	default:
		return "event(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event reports one observable change on a port
type Event struct {
	Port  string
	Kind  EventKind
	Pin   int // -1 for the combined line
	Line  string
	Level bool
}

// PinInfo is one row of a port snapshot
type PinInfo struct {
	Index     int
	Direction Direction
	Level     bool
	Driven    bool
	Trigger   TriggerMode
	InterruptState
	Line string
}

// Port is a GPIO port with interrupt derivation. All methods are safe for
// concurrent use. Line and event listeners run with the port locked and must
// not call back into the same port.
type Port struct {
	mu       sync.Mutex
	name     string
	cfg      Config
	bank     *PinBank
	latch    *Latch
	agg      *Aggregator
	triggers []TriggerMode
	last     Levels

	combined  *Line
	dedicated map[int]*Line

	connect func(pin int, level bool)

	watchMu  sync.Mutex
	watchers []watcher
	nextID   int

	log *slog.Logger
}

// NewPort builds a port with every pin an undriven low input and all
// interrupts disabled
func NewPort(cfg Config) (*Port, error) {
	if cfg.Pins < 1 || cfg.Pins > MaxPins {
		return nil, fmt.Errorf("port %q: %d pins: %w", cfg.Name, cfg.Pins, ErrInvalidConfig)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("port", cfg.Name)

	p := &Port{
		name:     cfg.Name,
		cfg:      cfg,
		bank:     NewPinBank(cfg.Pins, cfg.Readback, !cfg.SeparateDriveEnable, log),
		latch:    NewLatch(cfg.Pins, cfg.Sticky, cfg.Latch, cfg.Mask),
		triggers: make([]TriggerMode, cfg.Pins),
		combined: NewLine(cfg.Name + ".irq"),
		connect:  func(int, bool) {},
		log:      log,
	}
	p.agg = NewAggregator(p.latch, cfg.Dedicated)
	p.bank.SetConnection(p.onDrive)

	p.combined.Connect(func(level bool) {
		p.emit(Event{Kind: EventLine, Pin: -1, Line: p.combined.Name(), Level: level})
	})
	if pins := p.agg.DedicatedPins(); len(pins) > 0 {
		p.dedicated = make(map[int]*Line, len(pins))
		for _, pin := range pins {
			pin := pin
			line := NewLine(cfg.Name + ".irq" + strconv.Itoa(pin))
			line.Connect(func(level bool) {
				p.emit(Event{Kind: EventLine, Pin: pin, Line: line.Name(), Level: level})
			})
			p.dedicated[pin] = line
		}
	}
	return p, nil
}

// Name returns the port name
func (p *Port) Name() string {
	return p.name
}

// Len returns the number of pins
func (p *Port) Len() int {
	return p.cfg.Pins
}

// Config returns the configuration the port was built with
func (p *Port) Config() Config {
	return p.cfg
}

// Combined returns the line carrying pins without a dedicated line
func (p *Port) Combined() *Line {
	return p.combined
}

// Dedicated returns the dedicated line of pin, or nil
func (p *Port) Dedicated(pin int) *Line {
	return p.dedicated[pin]
}

// Lines returns every interrupt line, combined first
func (p *Port) Lines() []*Line {
	out := []*Line{p.combined}
	for _, pin := range p.agg.DedicatedPins() {
		out = append(out, p.dedicated[pin])
	}
	return out
}

// Connect sets the receiver of driven output levels
func (p *Port) Connect(fn func(pin int, level bool)) {
	if fn == nil {
		fn = func(int, bool) {}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connect = fn
}

type watcher struct {
	id int
	fn func(Event)
}

// Watch adds a listener for port events. The returned function removes it.
func (p *Port) Watch(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	p.nextID++
	id := p.nextID
	p.watchers = append(p.watchers, watcher{id: id, fn: fn})
	return func() { p.unwatch(id) }
}

// unwatch builds a new slice so emit can keep iterating its copy
func (p *Port) unwatch(id int) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	kept := make([]watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		if w.id != id {
			kept = append(kept, w)
		}
	}
	p.watchers = kept
}

// OnExternalPinChange delivers an externally driven level to pin. Pins that
// do not accept input log and ignore it.
func (p *Port) OnExternalPinChange(pin int, level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkPin("external change", pin); err != nil {
		return err
	}
	if pin < 0 || pin >= p.cfg.Pins {
		return nil
	}
	before := p.bank.pins[pin].Level
	if !p.bank.SetExternalLevel(pin, level) {
		return nil
	}
	if before != level {
		p.emit(Event{Kind: EventInput, Pin: pin, Level: level})
	}
	p.refresh()
	return nil
}

// Update runs fn as one atomic register access. Interrupt lines are
// recomputed once after fn returns if it changed any state. The returned
// error is the first invalid pin access on a StrictPins port.
func (p *Port) Update(fn func(tx *Tx)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := &Tx{p: p}
	fn(tx)
	if tx.dirty {
		p.refresh()
	}
	return tx.err
}

// Read returns the level software observes on pin
func (p *Port) Read(pin int) (bool, error) {
	var level bool
	err := p.Update(func(tx *Tx) {
		level = tx.Level(pin)
	})
	return level, err
}

// SetOutput drives an output pin
func (p *Port) SetOutput(pin int, level bool) error {
	return p.Update(func(tx *Tx) { tx.SetOutput(pin, level) })
}

// SetDirection changes the direction of pin
func (p *Port) SetDirection(pin int, dir Direction) error {
	return p.Update(func(tx *Tx) { tx.SetDirection(pin, dir) })
}

// SetTrigger changes the trigger mode of pin
func (p *Port) SetTrigger(pin int, mode TriggerMode) error {
	return p.Update(func(tx *Tx) { tx.SetTrigger(pin, mode) })
}

// SetInterruptEnabled changes the enable bit of pin
func (p *Port) SetInterruptEnabled(pin int, on bool) error {
	return p.Update(func(tx *Tx) { tx.SetInterruptEnabled(pin, on) })
}

// SetInterruptMasked changes the mask bit of pin
func (p *Port) SetInterruptMasked(pin int, on bool) error {
	return p.Update(func(tx *Tx) { tx.SetInterruptMasked(pin, on) })
}

// ClearInterrupt clears the pending bit of pin
func (p *Port) ClearInterrupt(pin int) error {
	return p.Update(func(tx *Tx) { tx.ClearInterrupt(pin) })
}

// RawStatus returns pending bits before enable and mask gating
func (p *Port) RawStatus() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agg.RawMask()
}

// VisibleStatus returns the bits of pins asserting their line
func (p *Port) VisibleStatus() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agg.VisibleMask()
}

// Reset restores the state selected by scope and re-drives the lines
func (p *Port) Reset(scope ResetScope) {
	p.mu.Lock()
	defer p.mu.Unlock()

	soft := scope == SoftReset
	p.bank.reset(soft)
	p.latch.reset(soft)
	if !soft {
		for i := range p.triggers {
			p.triggers[i] = Disabled
		}
	}
	p.log.Debug("reset", "soft", soft)
	p.refresh()
}

// Snapshot returns the configuration and state of every pin
func (p *Port) Snapshot() []PinInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PinInfo, p.cfg.Pins)
	for i := range out {
		pin := p.bank.pins[i]
		line := p.combined.Name()
		if l, ok := p.dedicated[i]; ok {
			line = l.Name()
		}
		out[i] = PinInfo{
			Index:          i,
			Direction:      pin.Direction,
			Level:          p.bank.ReadLevel(i),
			Driven:         pin.Driven,
			Trigger:        p.triggers[i],
			InterruptState: p.latch.State(i),
			Line:           line,
		}
	}
	return out
}

// refresh evaluates every pin, settles the previous levels and re-drives
// the lines. Called with mu held.
func (p *Port) refresh() {
	for i := range p.bank.pins {
		pin := &p.bank.pins[i]
		mode := p.triggers[i]
		occurred := false
		if pin.Direction.acceptsInput() && !pin.InputDisabled {
			occurred = Evaluate(mode, pin.PreviousLevel, pin.Level)
		}
		p.latch.RecordChange(i, mode, occurred, pin.PreviousLevel != pin.Level)
	}
	p.bank.settle()

	now := p.agg.Recompute()
	drive(p.combined, p.last.Combined, now.Combined, p.cfg.CombinedOutput)
	for _, pin := range p.agg.DedicatedPins() {
		drive(p.dedicated[pin], p.last.Dedicated[pin], now.Dedicated[pin], p.cfg.DedicatedOutput)
	}
	p.last = now
}

func drive(line *Line, before, now bool, policy OutputPolicy) {
	if policy == Pulse {
		if now && !before {
			line.Pulse()
		}
		return
	}
	line.Set(now)
}

// onDrive is the pin bank connection. Called with mu held.
func (p *Port) onDrive(pin int, level bool) {
	p.emit(Event{Kind: EventOutput, Pin: pin, Level: level})
	p.connect(pin, level)
}

func (p *Port) emit(ev Event) {
	ev.Port = p.name
	p.watchMu.Lock()
	watchers := p.watchers
	p.watchMu.Unlock()
	for _, w := range watchers {
		w.fn(ev)
	}
}

// checkPin logs an out-of-range index and returns an error on strict ports
func (p *Port) checkPin(op string, pin int) error {
	if pin >= 0 && pin < p.cfg.Pins {
		return nil
	}
	p.log.Warn("pin index out of range", "op", op, "pin", pin, "pins", p.cfg.Pins)
	if p.cfg.StrictPins {
		return fmt.Errorf("%s: %s pin %d: %w", p.name, op, pin, ErrInvalidPinIndex)
	}
	return nil
}
