// Microchip MCP23017 I2C port expander
// Two 8-pin ports behind a byte-wide register file with an auto-incrementing
// address pointer. Interrupts compare against the previous pin value or
// against DEFVAL, and INTCAP holds the port value at the time an interrupt
// fired.
package mcp23017

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gpiosim/core"
	"gpiosim/peripherals"
	"gpiosim/peripherals/regmap"
)

// Family is the registry name of this model
const Family = "mcp23017"

const (
	PinsPerPort    = 8
	DefaultAddress = 0x20
	registerCount  = 0x16
)

// Register addresses for port A in BANK=0 layout. Port B is address+1.
const (
	regIODIR   = 0x00
	regIPOL    = 0x02
	regGPINTEN = 0x04
	regDEFVAL  = 0x06
	regINTCON  = 0x08
	regIOCON   = 0x0a
	regGPPU    = 0x0c
	regINTF    = 0x0e
	regINTCAP  = 0x10
	regGPIO    = 0x12
	regOLAT    = 0x14
)

// IOCON bits
const (
	ioconINTPOL = 1
	ioconODR    = 2
	ioconHAEN   = 3
	ioconDISSLW = 4
	ioconSEQOP  = 5
	ioconMIRROR = 6
	ioconBANK   = 7
)

// ErrNoDevice is returned for transactions addressed to another device
var ErrNoDevice = errors.New("no device at address")

func init() {
	peripherals.Register(Family, func(cfg peripherals.Config) (peripherals.Device, error) {
		return New(cfg)
	})
}

// capture tracks the pin levels of one port so INTCAP can be latched from
// inside the port's own event delivery
type capture struct {
	mu     sync.Mutex
	shadow uint8
	value  uint8
}

func (c *capture) watch(ev core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case core.EventInput, core.EventOutput:
		c.shadow = uint8(regmap.SetBit(uint32(c.shadow), ev.Pin, ev.Level))
	case core.EventLine:
		if ev.Level {
			c.value = c.shadow
		}
	}
}

func (c *capture) get() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *capture) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shadow, c.value = 0, 0
}

// Expander is one MCP23017. Lock order is mu, then a port, then outMu or a
// capture.
type Expander struct {
	name   string
	addr   uint16
	policy core.OutputPolicy
	log    *slog.Logger
	regs   *regmap.Map
	ports  [2]*core.Port
	caps   [2]*capture

	mu      sync.Mutex
	pointer uint8
	ipol    [2]uint8
	defval  [2]uint8
	intcon  [2]uint8
	gppu    [2]uint8

	outMu   sync.Mutex
	iocon   uint8
	out     [2]*core.Line
	outLast [2]bool
}

// New builds the expander. Address defaults to 0x20 and must lie in
// 0x20-0x27.
func New(cfg peripherals.Config) (*Expander, error) {
	addr := cfg.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	if addr&^0x7 != DefaultAddress {
		return nil, fmt.Errorf("%s address %#x outside 0x20-0x27", Family, addr)
	}
	if cfg.Pins != 0 && cfg.Pins != 2*PinsPerPort {
		return nil, fmt.Errorf("%s has %d pins, not %d", Family, 2*PinsPerPort, cfg.Pins)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	d := &Expander{
		name:   cfg.Name,
		addr:   addr,
		policy: cfg.OutputPolicy(),
		log:    log.With("device", cfg.Name),
		regs:   regmap.New(cfg.Name, registerCount, cfg.Logger),
	}
	for i, suffix := range []string{"a", "b"} {
		port, err := core.NewPort(core.Config{
			Name:     cfg.Name + "." + suffix,
			Pins:     PinsPerPort,
			Sticky:   true,
			Latch:    core.LatchWhenEnabled,
			Mask:     core.MaskLatches,
			Readback: core.ReadbackLoopback,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		c := &capture{}
		port.Watch(c.watch)
		port.Combined().Connect(func(bool) { d.driveOutputs() })
		d.ports[i] = port
		d.caps[i] = c
		d.out[i] = core.NewLine(cfg.Name + ".int" + suffix)
	}
	d.defineRegisters()
	d.Reset()
	return d, nil
}

func (d *Expander) Name() string                  { return d.name }
func (d *Expander) Family() string                { return Family }
func (d *Expander) Address() uint16               { return d.addr }
func (d *Expander) Ports() []*core.Port           { return d.ports[:] }
func (d *Expander) Lines() []*core.Line           { return d.out[:] }
func (d *Expander) Regions() []peripherals.Region { return nil }

// Port returns port A (0) or B (1)
func (d *Expander) Port(i int) *core.Port {
	return d.ports[i]
}

// Reset returns the power-on state: every pin an input, interrupts off,
// IOCON zero
func (d *Expander) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pointer = 0
	for i, port := range d.ports {
		port.Reset(core.HardReset)
		d.caps[i].reset()
		d.ipol[i], d.defval[i], d.intcon[i], d.gppu[i] = 0, 0, 0, 0
		port.Update(func(tx *core.Tx) {
			for pin := 0; pin < PinsPerPort; pin++ {
				tx.SetDirection(pin, core.Input)
			}
			d.applyTriggers(tx, i)
		})
	}
	d.outMu.Lock()
	d.iocon = 0
	d.outMu.Unlock()
	d.driveOutputs()
}

// Tx implements drivers.I2C. The first written byte sets the register
// pointer; further written bytes and every read byte advance it.
func (d *Expander) Tx(addr uint16, w, r []byte) error {
	if addr != d.addr {
		return fmt.Errorf("%s: %#x: %w", d.name, addr, ErrNoDevice)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(w) > 0 {
		d.pointer = w[0]
		for _, b := range w[1:] {
			d.regs.Write(uint32(d.pointer), uint32(b))
			d.advance()
		}
	}
	for i := range r {
		r[i] = uint8(d.regs.Read(uint32(d.pointer)))
		d.advance()
	}
	return nil
}

// advance moves the pointer after a byte. Byte mode toggles between the A
// and B halves of a register pair.
func (d *Expander) advance() {
	d.outMu.Lock()
	seqop := regmap.Bit(uint32(d.iocon), ioconSEQOP)
	d.outMu.Unlock()

	if seqop {
		d.pointer ^= 1
		return
	}
	d.pointer++
	if d.pointer >= registerCount {
		d.pointer = 0
	}
}

// Active reports whether interrupt output i (0 for INTA) is asserted
func (d *Expander) Active(i int) bool {
	return d.out[i].IsSet()
}

// ElectricalLevel returns the pin level of interrupt output i as set by
// IOCON.ODR and IOCON.INTPOL. An open-drain output reads high when released.
func (d *Expander) ElectricalLevel(i int) bool {
	active := d.out[i].IsSet()
	d.outMu.Lock()
	iocon := uint32(d.iocon)
	d.outMu.Unlock()

	if regmap.Bit(iocon, ioconODR) || !regmap.Bit(iocon, ioconINTPOL) {
		return !active
	}
	return active
}

// driveOutputs recomputes INTA and INTB from the two ports. With MIRROR
// set both outputs carry the OR of the ports.
func (d *Expander) driveOutputs() {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	a, b := d.ports[0].Combined().IsSet(), d.ports[1].Combined().IsSet()
	if regmap.Bit(uint32(d.iocon), ioconMIRROR) {
		a, b = a || b, a || b
	}
	for i, now := range [2]bool{a, b} {
		if d.policy == core.Pulse {
			if now && !d.outLast[i] {
				d.out[i].Pulse()
			}
		} else {
			d.out[i].Set(now)
		}
		d.outLast[i] = now
	}
}

// applyTriggers decodes INTCON and DEFVAL of port n. Called with mu held.
func (d *Expander) applyTriggers(tx *core.Tx, n int) {
	for pin := 0; pin < PinsPerPort; pin++ {
		mode := core.BothEdges
		if regmap.Bit(uint32(d.intcon[n]), pin) {
			mode = core.ActiveHigh
			if regmap.Bit(uint32(d.defval[n]), pin) {
				mode = core.ActiveLow
			}
		}
		tx.SetTrigger(pin, mode)
	}
}

// portValue is the GPIO view of port n: inputs with IPOL applied and
// outputs from OLAT
func (d *Expander) portValue(tx *core.Tx, n int, raw uint8) uint8 {
	inputs := uint8(tx.DirectionMask(core.Input))
	return raw ^ (d.ipol[n] & inputs)
}

func (d *Expander) defineRegisters() {
	m := d.regs

	for n := 0; n < 2; n++ {
		p := d.ports[n]
		reader := func(fn func(tx *core.Tx) uint8) func() uint32 {
			return peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(fn(tx)) })
		}
		writer := func(fn func(tx *core.Tx, v uint8)) func(uint32) {
			return peripherals.Writer(p, func(tx *core.Tx, v uint32) { fn(tx, uint8(v)) })
		}
		stored := func(field *uint8, apply bool) (func() uint32, func(uint32)) {
			return reader(func(*core.Tx) uint8 { return *field }),
				writer(func(tx *core.Tx, v uint8) {
					*field = v
					if apply {
						d.applyTriggers(tx, n)
					}
				})
		}
		suffix := string(rune('A' + n))
		off := uint32(n)

		m.Define(regIODIR+off, regmap.Register{
			Name: "IODIR" + suffix,
			Read: reader(func(tx *core.Tx) uint8 { return uint8(tx.DirectionMask(core.Input)) }),
			Write: writer(func(tx *core.Tx, v uint8) {
				for pin := 0; pin < PinsPerPort; pin++ {
					dir := core.Output
					if regmap.Bit(uint32(v), pin) {
						dir = core.Input
					}
					tx.SetDirection(pin, dir)
				}
			}),
		})

		read, write := stored(&d.ipol[n], false)
		m.Define(regIPOL+off, regmap.Register{Name: "IPOL" + suffix, Read: read, Write: write})
		read, write = stored(&d.defval[n], true)
		m.Define(regDEFVAL+off, regmap.Register{Name: "DEFVAL" + suffix, Read: read, Write: write})
		read, write = stored(&d.intcon[n], true)
		m.Define(regINTCON+off, regmap.Register{Name: "INTCON" + suffix, Read: read, Write: write})
		read, write = stored(&d.gppu[n], false)
		m.Define(regGPPU+off, regmap.Register{Name: "GPPU" + suffix, Read: read, Write: write})

		m.Define(regGPINTEN+off, regmap.Register{
			Name: "GPINTEN" + suffix,
			Read: reader(func(tx *core.Tx) uint8 { return uint8(tx.EnabledMask()) }),
			Write: writer(func(tx *core.Tx, v uint8) {
				for pin := 0; pin < PinsPerPort; pin++ {
					tx.SetInterruptEnabled(pin, regmap.Bit(uint32(v), pin))
				}
			}),
		})
		m.Define(regINTF+off, regmap.Register{
			Name: "INTF" + suffix,
			Read: reader(func(tx *core.Tx) uint8 { return uint8(tx.VisibleStatus()) }),
		})

		// Reading INTCAP or GPIO clears the port's interrupt.
		m.Define(regINTCAP+off, regmap.Register{
			Name: "INTCAP" + suffix,
			Read: reader(func(tx *core.Tx) uint8 {
				v := d.portValue(tx, n, d.caps[n].get())
				tx.ClearInterrupts(tx.RawStatus())
				return v
			}),
		})
		m.Define(regGPIO+off, regmap.Register{
			Name: "GPIO" + suffix,
			Read: reader(func(tx *core.Tx) uint8 {
				v := d.portValue(tx, n, uint8(tx.Levels()))
				tx.ClearInterrupts(tx.RawStatus())
				return v
			}),
			Write: writer(func(tx *core.Tx, v uint8) {
				for pin := 0; pin < PinsPerPort; pin++ {
					tx.SetOutputLatch(pin, regmap.Bit(uint32(v), pin))
				}
			}),
		})
		m.Define(regOLAT+off, regmap.Register{
			Name: "OLAT" + suffix,
			Read: reader(func(tx *core.Tx) uint8 { return uint8(tx.DrivenMask()) }),
			Write: writer(func(tx *core.Tx, v uint8) {
				for pin := 0; pin < PinsPerPort; pin++ {
					tx.SetOutputLatch(pin, regmap.Bit(uint32(v), pin))
				}
			}),
		})

		// IOCON is shared by both addresses.
		m.Define(regIOCON+off, regmap.Register{
			Name: "IOCON",
			Read: func() uint32 {
				d.outMu.Lock()
				defer d.outMu.Unlock()
				return uint32(d.iocon)
			},
			Write: d.writeIOCON,
		})
	}
}

func (d *Expander) writeIOCON(v uint32) {
	v &= 0xfe
	if regmap.Bit(v, ioconBANK) {
		d.log.Warn("IOCON.BANK=1 register layout not supported, keeping BANK=0")
		v = regmap.SetBit(v, ioconBANK, false)
	}
	d.outMu.Lock()
	d.iocon = uint8(v)
	d.outMu.Unlock()
	d.driveOutputs()
}
