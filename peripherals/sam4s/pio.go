// Atmel SAM4S PIO controller
// 32 pins with a separate PIO enable, synchronous output write gating,
// additional interrupt modes and a read-to-clear interrupt status register
package sam4s

import (
	"fmt"

	"gpiosim/core"
	"gpiosim/peripherals"
	"gpiosim/peripherals/regmap"
)

// Family is the registry name of this model
const Family = "sam4s-pio"

const (
	NumPins = 32
	Size    = 0x168
)

const (
	regPER    = 0x00
	regPDR    = 0x04
	regPSR    = 0x08
	regOER    = 0x10
	regODR    = 0x14
	regOSR    = 0x18
	regSODR   = 0x30
	regCODR   = 0x34
	regODSR   = 0x38
	regPDSR   = 0x3c
	regIER    = 0x40
	regIDR    = 0x44
	regIMR    = 0x48
	regISR    = 0x4c
	regOWER   = 0xa0
	regOWDR   = 0xa4
	regOWSR   = 0xa8
	regAIMER  = 0xb0
	regAIMDR  = 0xb4
	regAIMMR  = 0xb8
	regESR    = 0xc0
	regLSR    = 0xc4
	regELSR   = 0xc8
	regFELLSR = 0xd0
	regREHLSR = 0xd4
	regFRLHSR = 0xd8
)

func init() {
	peripherals.Register(Family, func(cfg peripherals.Config) (peripherals.Device, error) {
		return New(cfg)
	})
}

// PIO is one SAM4S PIO controller. The mode words below are only touched
// inside port transactions.
type PIO struct {
	name string
	port *core.Port
	regs *regmap.Map

	writeEnable uint32 // OWSR
	additional  uint32 // AIMMR
	levelSelect uint32 // ELSR
	highRising  uint32 // FRLHSR
}

// New builds the controller with every pin owned by the PIO and configured
// as an input
func New(cfg peripherals.Config) (*PIO, error) {
	if cfg.Pins != 0 && cfg.Pins != NumPins {
		return nil, fmt.Errorf("%s has %d pins, not %d", Family, NumPins, cfg.Pins)
	}
	port, err := core.NewPort(core.Config{
		Name:                cfg.Name,
		Pins:                NumPins,
		Sticky:              true,
		Latch:               core.LatchWhenEnabled,
		Mask:                core.MaskLatches,
		Readback:            core.ReadbackElectrical,
		SeparateDriveEnable: true,
		CombinedOutput:      cfg.OutputPolicy(),
		Logger:              cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	p := &PIO{name: cfg.Name, port: port}
	p.regs = regmap.New(cfg.Name, Size, cfg.Logger)
	p.defineRegisters()
	p.Reset()
	return p, nil
}

func (p *PIO) Name() string                  { return p.name }
func (p *PIO) Family() string                { return Family }
func (p *PIO) Port() *core.Port              { return p.port }
func (p *PIO) Ports() []*core.Port           { return []*core.Port{p.port} }
func (p *PIO) Lines() []*core.Line           { return p.port.Lines() }
func (p *PIO) Regions() []peripherals.Region { return []peripherals.Region{{Name: "regs", Regs: p.regs}} }

// Reset hands every pin back to the PIO as an input with both-edge
// detection and interrupts disabled
func (p *PIO) Reset() {
	p.port.Reset(core.HardReset)
	p.port.Update(func(tx *core.Tx) {
		p.writeEnable, p.additional, p.levelSelect, p.highRising = 0, 0, 0, 0
		for i := 0; i < NumPins; i++ {
			tx.SetDriveEnabled(i, true)
		}
		p.applyTriggers(tx)
	})
}

// triggerFor maps the additional interrupt mode bits of one pin
func triggerFor(additional, level, high bool) core.TriggerMode {
	switch {
	case !additional:
		return core.BothEdges
	case level && high:
		return core.ActiveHigh
	case level:
		return core.ActiveLow
	case high:
		return core.RisingEdge
	default:
		return core.FallingEdge
	}
}

func (p *PIO) applyTriggers(tx *core.Tx) {
	for i := 0; i < NumPins; i++ {
		tx.SetTrigger(i, triggerFor(
			regmap.Bit(p.additional, i),
			regmap.Bit(p.levelSelect, i),
			regmap.Bit(p.highRising, i),
		))
	}
}

func (p *PIO) defineRegisters() {
	cp := p.port
	m := p.regs

	// setClear defines an enable/disable/status triple over one pin property
	setClear := func(names [3]string, offsets [3]uint32, read func(tx *core.Tx) uint32, set func(tx *core.Tx, pin int, on bool)) {
		m.Define(offsets[0], regmap.Register{
			Name: names[0],
			Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
				peripherals.EachPin(tx, v, func(i int) { set(tx, i, true) })
			}),
		})
		m.Define(offsets[1], regmap.Register{
			Name: names[1],
			Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
				peripherals.EachPin(tx, v, func(i int) { set(tx, i, false) })
			}),
		})
		m.Define(offsets[2], regmap.Register{
			Name: names[2],
			Read: peripherals.Reader(cp, read),
		})
	}

	setClear([3]string{"PER", "PDR", "PSR"}, [3]uint32{regPER, regPDR, regPSR},
		func(tx *core.Tx) uint32 {
			return peripherals.PinBits(tx, func(i int) bool { return tx.Pin(i).DriveEnabled })
		},
		func(tx *core.Tx, i int, on bool) { tx.SetDriveEnabled(i, on) })

	setClear([3]string{"OER", "ODR", "OSR"}, [3]uint32{regOER, regODR, regOSR},
		func(tx *core.Tx) uint32 { return uint32(tx.DirectionMask(core.Bidirectional)) },
		func(tx *core.Tx, i int, on bool) {
			dir := core.Input
			if on {
				dir = core.Bidirectional
			}
			tx.SetDirection(i, dir)
		})

	setClear([3]string{"IER", "IDR", "IMR"}, [3]uint32{regIER, regIDR, regIMR},
		func(tx *core.Tx) uint32 { return uint32(tx.EnabledMask()) },
		func(tx *core.Tx, i int, on bool) { tx.SetInterruptEnabled(i, on) })

	setClear([3]string{"OWER", "OWDR", "OWSR"}, [3]uint32{regOWER, regOWDR, regOWSR},
		func(*core.Tx) uint32 { return p.writeEnable },
		func(_ *core.Tx, i int, on bool) { p.writeEnable = regmap.SetBit(p.writeEnable, i, on) })

	modeWord := func(field *uint32) func(tx *core.Tx, i int, on bool) {
		return func(tx *core.Tx, i int, on bool) {
			*field = regmap.SetBit(*field, i, on)
			p.applyTriggers(tx)
		}
	}
	setClear([3]string{"AIMER", "AIMDR", "AIMMR"}, [3]uint32{regAIMER, regAIMDR, regAIMMR},
		func(*core.Tx) uint32 { return p.additional }, modeWord(&p.additional))
	setClear([3]string{"LSR", "ESR", "ELSR"}, [3]uint32{regLSR, regESR, regELSR},
		func(*core.Tx) uint32 { return p.levelSelect }, modeWord(&p.levelSelect))
	setClear([3]string{"REHLSR", "FELLSR", "FRLHSR"}, [3]uint32{regREHLSR, regFELLSR, regFRLHSR},
		func(*core.Tx) uint32 { return p.highRising }, modeWord(&p.highRising))

	m.Define(regSODR, regmap.Register{
		Name: "SODR",
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetOutputLatch(i, true) })
		}),
	})
	m.Define(regCODR, regmap.Register{
		Name: "CODR",
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetOutputLatch(i, false) })
		}),
	})
	m.Define(regODSR, regmap.Register{
		Name: "ODSR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.DrivenMask()) }),
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, p.writeEnable, func(i int) { tx.SetOutputLatch(i, regmap.Bit(v, i)) })
		}),
	})
	m.Define(regPDSR, regmap.Register{
		Name: "PDSR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.Levels()) }),
	})

	// ISR clears on read.
	m.Define(regISR, regmap.Register{
		Name: "ISR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 {
			v := tx.RawStatus()
			tx.ClearInterrupts(v)
			return uint32(v)
		}),
	})
}
