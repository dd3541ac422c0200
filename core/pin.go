// Pin bank
// Owns per-pin electrical state for one port
package core

import (
	"log/slog"
	"strconv"
)

// Direction of a pin
type Direction uint8

const (
	Input Direction = iota
	Output
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case Bidirectional:
		return "bidirectional"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// acceptsInput reports whether externally driven levels reach the pin
func (d Direction) acceptsInput() bool {
	return d == Input || d == Bidirectional
}

// drivesOutput reports whether register writes reach the external connection
func (d Direction) drivesOutput() bool {
	return d == Output || d == Bidirectional
}

// ReadbackPolicy selects what reading an output pin returns
type ReadbackPolicy uint8

const (
	// ReadbackLoopback returns the value the port drives
	ReadbackLoopback ReadbackPolicy = iota
	// ReadbackZero returns false for every output pin
	ReadbackZero
	// ReadbackElectrical returns the level on the wire: the driven value while
	// the pin drives, otherwise the last externally observed level
	ReadbackElectrical
)

// Pin is the state of one physical line
type Pin struct {
	Level         bool // observed input-side level
	PreviousLevel bool // level before the most recent update
	Driven        bool // value driven onto the external connection
	Direction     Direction
	DriveEnabled  bool
	InputDisabled bool
}

// PinBank holds the pins of one port. It is not safe for concurrent use; the
// owning Port serializes access.
type PinBank struct {
	pins     []Pin
	readback ReadbackPolicy
	// drive is true for ports where the direction alone enables the output
	// driver; otherwise DriveEnabled must also be set.
	directionDrives bool
	connect         func(pin int, level bool)
	log             *slog.Logger
}

// NewPinBank creates a bank of n input pins, all low
func NewPinBank(n int, readback ReadbackPolicy, directionDrives bool, log *slog.Logger) *PinBank {
	if log == nil {
		log = slog.Default()
	}
	return &PinBank{
		pins:            make([]Pin, n),
		readback:        readback,
		directionDrives: directionDrives,
		connect:         func(int, bool) {},
		log:             log,
	}
}

// Len returns the number of pins
func (b *PinBank) Len() int {
	return len(b.pins)
}

// Pin returns a copy of pin i
func (b *PinBank) Pin(i int) Pin {
	return b.pins[i]
}

// SetConnection installs the callback that carries driven levels off-chip
func (b *PinBank) SetConnection(fn func(pin int, level bool)) {
	if fn == nil {
		fn = func(int, bool) {}
	}
	b.connect = fn
}

// SetExternalLevel records an externally driven level. It returns false and
// leaves the pin untouched when the pin does not accept input.
func (b *PinBank) SetExternalLevel(i int, level bool) bool {
	p := &b.pins[i]
	if !p.Direction.acceptsInput() {
		b.log.Warn("external level on non-input pin ignored", "pin", i, "direction", p.Direction, "level", level)
		return false
	}
	if p.InputDisabled {
		b.log.Debug("external level on input-disabled pin ignored", "pin", i, "level", level)
		return false
	}
	p.PreviousLevel = p.Level
	p.Level = level
	return true
}

// SetOutputLevel drives level onto the external connection. It returns false
// when the pin is not an enabled output.
func (b *PinBank) SetOutputLevel(i int, level bool) bool {
	p := &b.pins[i]
	if !b.canDrive(p) {
		b.log.Debug("output write on pin that is not driving ignored", "pin", i, "direction", p.Direction, "level", level)
		return false
	}
	if p.Driven == level {
		return true
	}
	p.Driven = level
	b.connect(i, level)
	return true
}

// ReadLevel returns the level software observes on pin i
func (b *PinBank) ReadLevel(i int) bool {
	p := &b.pins[i]
	if p.Direction == Output {
		switch b.readback {
		case ReadbackZero:
			return false
		case ReadbackElectrical:
			if b.canDrive(p) {
				return p.Driven
			}
			return p.Level
		default:
			return p.Driven
		}
	}
	if p.InputDisabled {
		return false
	}
	return p.Level
}

// SetDirection changes the direction of pin i. A pin switching to input
// starts edge detection from its last known level.
func (b *PinBank) SetDirection(i int, dir Direction) {
	p := &b.pins[i]
	if p.Direction == dir {
		return
	}
	wasDriving := b.canDrive(p)
	p.Direction = dir
	if dir.acceptsInput() {
		p.PreviousLevel = p.Level
	}
	if !wasDriving && b.canDrive(p) && p.Driven {
		b.connect(i, true)
	}
}

// SetDriveEnabled gates the output driver on ports that separate it from
// the direction
func (b *PinBank) SetDriveEnabled(i int, on bool) {
	p := &b.pins[i]
	if p.DriveEnabled == on {
		return
	}
	wasDriving := b.canDrive(p)
	p.DriveEnabled = on
	if !wasDriving && b.canDrive(p) && p.Driven {
		b.connect(i, true)
	}
}

// SetInputDisabled disconnects the input buffer of pin i
func (b *PinBank) SetInputDisabled(i int, off bool) {
	p := &b.pins[i]
	p.InputDisabled = off
	p.PreviousLevel = p.Level
}

// settle marks the current level as seen by trigger evaluation
func (b *PinBank) settle() {
	for i := range b.pins {
		b.pins[i].PreviousLevel = b.pins[i].Level
	}
}

// Driving reports whether pin i currently drives its external connection
func (b *PinBank) Driving(i int) bool {
	return b.canDrive(&b.pins[i])
}

func (b *PinBank) canDrive(p *Pin) bool {
	if !p.Direction.drivesOutput() {
		return false
	}
	return b.directionDrives || p.DriveEnabled
}

// reset returns every pin to an undriven low input. When keepLevels is set
// the observed levels survive.
func (b *PinBank) reset(keepLevels bool) {
	for i := range b.pins {
		p := &b.pins[i]
		level := p.Level
		if p.Driven && b.canDrive(p) {
			b.connect(i, false)
		}
		*p = Pin{}
		if keepLevels {
			p.Level = level
			p.PreviousLevel = level
		}
	}
}
