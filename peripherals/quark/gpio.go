// Intel Quark GPIO controller
// 32-pin port A with live level interrupts, a mask register separating raw
// and masked status, and a both-edge override bit per pin
package quark

import (
	"fmt"

	"gpiosim/core"
	"gpiosim/peripherals"
	"gpiosim/peripherals/regmap"
)

// Family is the registry name of this model
const Family = "quark-gpio"

const (
	NumPins = 32
	Size    = 0x78
)

const (
	regPortAData       = 0x00
	regPortADirection  = 0x04
	regPortADataSource = 0x08
	regIntEnable       = 0x30
	regIntMask         = 0x34
	regIntType         = 0x38
	regIntPolarity     = 0x3c
	regIntStatus       = 0x40
	regRawIntStatus    = 0x44
	regDebounceEnable  = 0x48
	regClearInterrupt  = 0x4c
	regExtPortA        = 0x50
	regSyncLevel       = 0x60
	regIntBothEdge     = 0x68
)

func init() {
	peripherals.Register(Family, func(cfg peripherals.Config) (peripherals.Device, error) {
		return New(cfg)
	})
}

// Controller is one Quark GPIO block. The type, polarity and both-edge
// words are kept as written and decoded into per-pin triggers.
type Controller struct {
	name string
	port *core.Port
	regs *regmap.Map

	intType     uint32
	intPolarity uint32
	intBothEdge uint32
	debounce    uint32
	syncLevel   uint32
}

// New builds the controller
func New(cfg peripherals.Config) (*Controller, error) {
	if cfg.Pins != 0 && cfg.Pins != NumPins {
		return nil, fmt.Errorf("%s has %d pins, not %d", Family, NumPins, cfg.Pins)
	}
	port, err := core.NewPort(core.Config{
		Name:           cfg.Name,
		Pins:           NumPins,
		Sticky:         false,
		Latch:          core.LatchWhenEnabled,
		Mask:           core.MaskLatches,
		Readback:       core.ReadbackLoopback,
		CombinedOutput: cfg.OutputPolicy(),
		StrictPins:     cfg.Bool("strict_pins", true),
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	c := &Controller{name: cfg.Name, port: port}
	c.regs = regmap.New(cfg.Name, Size, cfg.Logger)
	c.defineRegisters()
	c.Reset()
	return c, nil
}

func (c *Controller) Name() string                  { return c.name }
func (c *Controller) Family() string                { return Family }
func (c *Controller) Port() *core.Port              { return c.port }
func (c *Controller) Ports() []*core.Port           { return []*core.Port{c.port} }
func (c *Controller) Lines() []*core.Line           { return c.port.Lines() }
func (c *Controller) Regions() []peripherals.Region { return []peripherals.Region{{Name: "regs", Regs: c.regs}} }

// Reset returns every pin to an input with an active-low trigger and
// interrupts disabled
func (c *Controller) Reset() {
	c.port.Reset(core.HardReset)
	c.port.Update(func(tx *core.Tx) {
		c.intType, c.intPolarity, c.intBothEdge = 0, 0, 0
		c.debounce, c.syncLevel = 0, 0
		c.applyTriggers(tx)
	})
}

// SetInterruptType configures one pin directly and mirrors the result into
// the type, polarity and both-edge words
func (c *Controller) SetInterruptType(pin int, mode core.TriggerMode) error {
	return c.port.Update(func(tx *core.Tx) {
		if pin < 0 || pin >= NumPins {
			tx.SetTrigger(pin, mode)
			return
		}
		if mode == core.Disabled || !mode.Valid() {
			tx.Log().Warn("trigger not supported by hardware", "pin", pin, "mode", mode)
			return
		}
		edge, high, both := core.EncodeTrigger(mode)
		c.intBothEdge = regmap.SetBit(c.intBothEdge, pin, both)
		if !both {
			c.intType = regmap.SetBit(c.intType, pin, edge)
			c.intPolarity = regmap.SetBit(c.intPolarity, pin, high)
		}
		tx.SetTrigger(pin, mode)
	})
}

func (c *Controller) applyTriggers(tx *core.Tx) {
	for i := 0; i < NumPins; i++ {
		tx.SetTrigger(i, core.DecodeTrigger(
			regmap.Bit(c.intType, i),
			regmap.Bit(c.intPolarity, i),
			regmap.Bit(c.intBothEdge, i),
		))
	}
}

func (c *Controller) defineRegisters() {
	p := c.port
	m := c.regs

	levels := func(tx *core.Tx) uint32 { return uint32(tx.Levels()) }

	m.Define(regPortAData, regmap.Register{
		Name: "SWPORTA_DR",
		Read: peripherals.Reader(p, levels),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			for i := 0; i < NumPins; i++ {
				if tx.Pin(i).Direction == core.Output {
					tx.SetOutput(i, regmap.Bit(v, i))
				}
			}
		}),
	})
	m.Define(regPortADirection, regmap.Register{
		Name: "SWPORTA_DDR",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(tx.DirectionMask(core.Output)) }),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			for i := 0; i < NumPins; i++ {
				dir := core.Input
				if regmap.Bit(v, i) {
					dir = core.Output
				}
				tx.SetDirection(i, dir)
			}
		}),
	})
	m.Define(regPortADataSource, regmap.Register{
		Name: "SWPORTA_CTL",
		Read: func() uint32 { return 0 },
	})

	m.Define(regIntEnable, regmap.Register{
		Name: "INTEN",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(tx.EnabledMask()) }),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			for i := 0; i < NumPins; i++ {
				tx.SetInterruptEnabled(i, regmap.Bit(v, i))
			}
		}),
	})
	m.Define(regIntMask, regmap.Register{
		Name: "INTMASK",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(tx.MaskedMask()) }),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			for i := 0; i < NumPins; i++ {
				tx.SetInterruptMasked(i, regmap.Bit(v, i))
			}
		}),
	})

	triggerWord := func(name string, field *uint32) regmap.Register {
		return regmap.Register{
			Name: name,
			Read: peripherals.Reader(p, func(*core.Tx) uint32 { return *field }),
			Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
				*field = v
				c.applyTriggers(tx)
			}),
		}
	}
	m.Define(regIntType, triggerWord("INTTYPE_LEVEL", &c.intType))
	m.Define(regIntPolarity, triggerWord("INT_POLARITY", &c.intPolarity))
	m.Define(regIntBothEdge, triggerWord("INT_BOTHEDGE", &c.intBothEdge))

	// Masked status ignores the enable bits; pins only latch while enabled.
	m.Define(regIntStatus, regmap.Register{
		Name: "INTSTATUS",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 {
			return uint32(tx.RawStatus() &^ tx.MaskedMask())
		}),
	})
	m.Define(regRawIntStatus, regmap.Register{
		Name: "RAW_INTSTATUS",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(tx.RawStatus()) }),
	})
	m.Define(regClearInterrupt, regmap.Register{
		Name:  "PORTA_EOI",
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { tx.ClearInterrupts(uint64(v)) }),
	})
	m.Define(regExtPortA, regmap.Register{
		Name: "EXT_PORTA",
		Read: peripherals.Reader(p, levels),
	})

	m.Define(regDebounceEnable, regmap.Register{
		Name:  "DEBOUNCE",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return c.debounce }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { c.debounce = v }),
	})
	m.Define(regSyncLevel, regmap.Register{
		Name:  "LS_SYNC",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return c.syncLevel }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { c.syncLevel = v & 1 }),
	})
}
