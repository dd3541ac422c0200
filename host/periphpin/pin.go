// Package periphpin presents simulated port pins as periph.io GPIO pins so
// drivers written against periph.io/x/conn can run on a simulated board.
package periphpin

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"

	"gpiosim/board"
	"gpiosim/core"
)

// ErrUnsupported is returned for functions a simulated pin cannot perform
var ErrUnsupported = errors.New("periphpin: unsupported")

// Pin is one simulated pin
type Pin struct {
	port   *core.Port
	index  int
	number int

	mu    sync.Mutex
	pull  gpio.Pull
	edge  gpio.Edge
	edges chan struct{}
	halt  chan struct{}

	detach func()
}

var (
	_ gpio.PinIO  = (*Pin)(nil)
	_ pin.PinFunc = (*Pin)(nil)
)

// New wraps pin index of port. number is the global pin number reported
// to periph. Call Detach when the pin is no longer used.
func New(port *core.Port, index, number int) *Pin {
	p := &Pin{
		port:   port,
		index:  index,
		number: number,
		pull:   gpio.Float,
		edges:  make(chan struct{}, 1),
		halt:   make(chan struct{}, 1),
	}
	p.detach = port.Watch(p.observe)
	return p
}

// Detach stops the pin following its port. WaitForEdge no longer sees edges.
func (p *Pin) Detach() {
	p.detach()
}

// Pins wraps every pin of a board, numbered in port name order
func Pins(b *board.Board) []*Pin {
	var out []*Pin
	for _, port := range b.Ports() {
		for i := 0; i < port.Len(); i++ {
			out = append(out, New(port, i, len(out)))
		}
	}
	return out
}

// Register adds pins to the periph registry. The returned function
// removes them again and detaches every pin.
func Register(pins []*Pin) (func(), error) {
	var done []string
	unregister := func() {
		for _, name := range done {
			gpioreg.Unregister(name)
		}
	}
	for _, p := range pins {
		if err := gpioreg.Register(p); err != nil {
			unregister()
			return nil, err
		}
		done = append(done, p.Name())
	}
	return func() {
		unregister()
		for _, p := range pins {
			p.Detach()
		}
	}, nil
}

// observe runs with the port locked
func (p *Pin) observe(ev core.Event) {
	if ev.Kind != core.EventInput || ev.Pin != p.index {
		return
	}
	p.mu.Lock()
	mode := triggerFor(p.edge)
	p.mu.Unlock()
	if mode.IsEdge() && core.Evaluate(mode, !ev.Level, ev.Level) {
		select {
		case p.edges <- struct{}{}:
		default:
		}
	}
}

func triggerFor(e gpio.Edge) core.TriggerMode {
	switch e {
	case gpio.RisingEdge:
		return core.RisingEdge
	case gpio.FallingEdge:
		return core.FallingEdge
	case gpio.BothEdges:
		return core.BothEdges
	default:
		return core.Disabled
	}
}

func (p *Pin) String() string { return p.Name() }
func (p *Pin) Name() string   { return p.port.Name() + ":" + strconv.Itoa(p.index) }
func (p *Pin) Number() int    { return p.number }

// Function returns the current function as a string
func (p *Pin) Function() string {
	return string(p.Func())
}

// Halt wakes a pending WaitForEdge
func (p *Pin) Halt() error {
	select {
	case p.halt <- struct{}{}:
	default:
	}
	return nil
}

// In makes the pin an input. A pull resistor sets the level the pin rests
// at; edge detection only feeds WaitForEdge.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge < gpio.NoEdge || edge > gpio.BothEdges {
		return fmt.Errorf("%s: edge %s: %w", p, edge, ErrUnsupported)
	}
	if err := p.port.SetDirection(p.index, core.Input); err != nil {
		return err
	}

	p.mu.Lock()
	if pull != gpio.PullNoChange {
		p.pull = pull
	}
	p.edge = edge
	p.mu.Unlock()

	select {
	case <-p.edges:
	default:
	}
	switch pull {
	case gpio.PullUp:
		return p.port.OnExternalPinChange(p.index, true)
	case gpio.PullDown:
		return p.port.OnExternalPinChange(p.index, false)
	}
	return nil
}

// Read returns the level software observes
func (p *Pin) Read() gpio.Level {
	level, _ := p.port.Read(p.index)
	return gpio.Level(level)
}

// WaitForEdge blocks until the configured edge is seen, the timeout expires
// or Halt is called. A negative timeout waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-p.edges:
		return true
	case <-p.halt:
		return false
	case <-expired:
		return false
	}
}

func (p *Pin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

func (p *Pin) DefaultPull() gpio.Pull { return gpio.Float }

// Out makes the pin an output driving l
func (p *Pin) Out(l gpio.Level) error {
	if err := p.port.SetDirection(p.index, core.Output); err != nil {
		return err
	}
	return p.port.SetOutput(p.index, bool(l))
}

func (p *Pin) PWM(gpio.Duty, physic.Frequency) error {
	return fmt.Errorf("%s: pwm: %w", p, ErrUnsupported)
}

// Func reports the direction and level of the pin
func (p *Pin) Func() pin.Func {
	info := p.port.Snapshot()[p.index]
	switch {
	case info.Direction == core.Input && info.Level:
		return gpio.IN_HIGH
	case info.Direction == core.Input:
		return gpio.IN_LOW
	case info.Driven:
		return gpio.OUT_HIGH
	default:
		return gpio.OUT_LOW
	}
}

func (p *Pin) SupportedFuncs() []pin.Func {
	return []pin.Func{gpio.IN, gpio.OUT}
}

// SetFunc accepts the input and output functions
func (p *Pin) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN, gpio.IN_LOW, gpio.IN_HIGH, gpio.FLOAT:
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.OUT, gpio.OUT_LOW:
		return p.Out(gpio.Low)
	case gpio.OUT_HIGH:
		return p.Out(gpio.High)
	}
	return fmt.Errorf("%s: function %q: %w", p, f, ErrUnsupported)
}
