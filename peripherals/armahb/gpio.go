// ARM AHB GPIO
// CMSDK-style 16-pin GPIO with set/clear register pairs, a combined IRQ and
// optional dedicated IRQs for the low eight pins (UT32 variant)
package armahb

import (
	"fmt"

	"gpiosim/core"
	"gpiosim/peripherals"
	"gpiosim/peripherals/regmap"
)

// Family is the registry name of this model
const Family = "arm-ahb-gpio"

const (
	NumPins      = 16
	NumDedicated = 8
	Size         = 0x1000
)

// Register offsets
const (
	regData          = 0x000
	regDataOut       = 0x004
	regOutEnSet      = 0x010
	regOutEnClr      = 0x014
	regAltFuncSet    = 0x018
	regAltFuncClr    = 0x01c
	regIntEnSet      = 0x020
	regIntEnClr      = 0x024
	regIntTypeSet    = 0x028
	regIntTypeClr    = 0x02c
	regIntPolSet     = 0x030
	regIntPolClr     = 0x034
	regIntStatus     = 0x038
	regSoftReset     = 0x03c
	regPullEnable    = 0x040
	regPullUpDown    = 0x044
	regMaskLowByte0  = 0x400
	regMaskHighByte0 = 0x800
)

func init() {
	peripherals.Register(Family, func(cfg peripherals.Config) (peripherals.Device, error) {
		return New(cfg)
	})
}

// GPIO is one ARM AHB GPIO block. Fields below port are only touched inside
// port transactions.
type GPIO struct {
	name string
	port *core.Port
	regs *regmap.Map

	altFuncReset uint32
	altFunc      uint32
	softReset    bool
	pullEnable   uint32
	pullUpDown   uint32
}

// New builds the block. Attributes: dedicated_irqs (bool), altfunc_reset
// (word), output (hold|pulse).
func New(cfg peripherals.Config) (*GPIO, error) {
	if cfg.Pins != 0 && cfg.Pins != NumPins {
		return nil, fmt.Errorf("%s has %d pins, not %d", Family, NumPins, cfg.Pins)
	}
	var dedicated []int
	if cfg.Bool("dedicated_irqs", false) {
		for i := 0; i < NumDedicated; i++ {
			dedicated = append(dedicated, i)
		}
	}
	port, err := core.NewPort(core.Config{
		Name:            cfg.Name,
		Pins:            NumPins,
		Sticky:          true,
		Latch:           core.LatchOnChange,
		Mask:            core.MaskLatches,
		Readback:        core.ReadbackZero,
		Dedicated:       dedicated,
		CombinedOutput:  cfg.OutputPolicy(),
		DedicatedOutput: cfg.OutputPolicy(),
		Logger:          cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	g := &GPIO{
		name:         cfg.Name,
		port:         port,
		altFuncReset: uint32(cfg.Uint("altfunc_reset", 0)) & regmap.Mask(NumPins),
	}
	g.regs = regmap.New(cfg.Name, Size, cfg.Logger)
	g.defineRegisters()
	g.Reset()
	return g, nil
}

func (g *GPIO) Name() string                  { return g.name }
func (g *GPIO) Family() string                { return Family }
func (g *GPIO) Port() *core.Port              { return g.port }
func (g *GPIO) Ports() []*core.Port           { return []*core.Port{g.port} }
func (g *GPIO) Lines() []*core.Line           { return g.port.Lines() }
func (g *GPIO) Regions() []peripherals.Region { return []peripherals.Region{{Name: "regs", Regs: g.regs}} }

// Reset performs a soft reset when SOFTRESET is set, otherwise a hard reset.
// A soft reset keeps pin levels and the interrupt configuration.
func (g *GPIO) Reset() {
	var soft bool
	g.port.Update(func(tx *core.Tx) { soft = g.softReset })

	if soft {
		g.port.Reset(core.SoftReset)
	} else {
		g.port.Reset(core.HardReset)
	}

	g.port.Update(func(tx *core.Tx) {
		g.softReset = false
		if soft {
			return
		}
		g.altFunc = g.altFuncReset
		g.pullEnable = 0
		g.pullUpDown = 0
		// Type and polarity reset to level, active low.
		for i := 0; i < NumPins; i++ {
			tx.SetTrigger(i, core.ActiveLow)
		}
	})
}

func (g *GPIO) data(tx *core.Tx) uint32 {
	return peripherals.PinBits(tx, tx.Level)
}

func (g *GPIO) outputs(tx *core.Tx) uint32 {
	return uint32(tx.DirectionMask(core.Output))
}

func (g *GPIO) writeData(tx *core.Tx, value, mask uint32) {
	peripherals.EachPin(tx, mask&g.outputs(tx), func(i int) {
		tx.SetOutput(i, regmap.Bit(value, i))
	})
	if dropped := mask &^ g.outputs(tx) & regmap.Mask(NumPins); dropped != 0 {
		tx.Log().Debug("data write to pins not configured as output ignored", "pins", fmt.Sprintf("%#x", dropped))
	}
}

// setTriggerBits rewrites the edge or polarity half of each selected pin's
// trigger
func setTriggerBits(tx *core.Tx, value uint32, edgeBit bool, on bool) {
	peripherals.EachPin(tx, value, func(i int) {
		edge, high, _ := core.EncodeTrigger(tx.Trigger(i))
		if edgeBit {
			edge = on
		} else {
			high = on
		}
		tx.SetTrigger(i, core.DecodeTrigger(edge, high, false))
	})
}

func (g *GPIO) defineRegisters() {
	p := g.port
	m := g.regs

	m.Define(regData, regmap.Register{
		Name:  "DATA",
		Read:  peripherals.Reader(p, g.data),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { g.writeData(tx, v, regmap.Mask(NumPins)) }),
	})
	m.Define(regDataOut, regmap.Register{
		Name: "DATAOUT",
		Read: peripherals.Reader(p, func(tx *core.Tx) uint32 {
			return uint32(tx.DrivenMask()) & g.outputs(tx)
		}),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { g.writeData(tx, v, regmap.Mask(NumPins)) }),
	})

	m.Define(regOutEnSet, regmap.Register{
		Name: "OUTENSET",
		Read: peripherals.Reader(p, g.outputs),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetDirection(i, core.Output) })
		}),
	})
	m.Define(regOutEnClr, regmap.Register{
		Name: "OUTENCLR",
		Read: peripherals.Reader(p, g.outputs),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetDirection(i, core.Input) })
		}),
	})

	m.Define(regAltFuncSet, regmap.Register{
		Name:  "ALTFUNCSET",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return g.altFunc }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { g.altFunc |= v & regmap.Mask(NumPins) }),
	})
	m.Define(regAltFuncClr, regmap.Register{
		Name:  "ALTFUNCCLR",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return g.altFunc }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { g.altFunc &^= v }),
	})

	enabled := func(tx *core.Tx) uint32 { return uint32(tx.EnabledMask()) }
	m.Define(regIntEnSet, regmap.Register{
		Name: "INTENSET",
		Read: peripherals.Reader(p, enabled),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetInterruptEnabled(i, true) })
		}),
	})
	m.Define(regIntEnClr, regmap.Register{
		Name: "INTENCLR",
		Read: peripherals.Reader(p, enabled),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetInterruptEnabled(i, false) })
		}),
	})

	edges := func(tx *core.Tx) uint32 {
		return peripherals.PinBits(tx, func(i int) bool { return tx.Trigger(i).IsEdge() })
	}
	m.Define(regIntTypeSet, regmap.Register{
		Name:  "INTTYPESET",
		Read:  peripherals.Reader(p, edges),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { setTriggerBits(tx, v, true, true) }),
	})
	m.Define(regIntTypeClr, regmap.Register{
		Name:  "INTTYPECLR",
		Read:  peripherals.Reader(p, edges),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { setTriggerBits(tx, v, true, false) }),
	})

	highs := func(tx *core.Tx) uint32 {
		return peripherals.PinBits(tx, func(i int) bool {
			_, high, _ := core.EncodeTrigger(tx.Trigger(i))
			return high
		})
	}
	m.Define(regIntPolSet, regmap.Register{
		Name:  "INTPOLSET",
		Read:  peripherals.Reader(p, highs),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { setTriggerBits(tx, v, false, true) }),
	})
	m.Define(regIntPolClr, regmap.Register{
		Name:  "INTPOLCLR",
		Read:  peripherals.Reader(p, highs),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { setTriggerBits(tx, v, false, false) }),
	})

	m.Define(regIntStatus, regmap.Register{
		Name:  "INTSTATUS",
		Read:  peripherals.Reader(p, func(tx *core.Tx) uint32 { return uint32(tx.RawStatus()) }),
		Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) { tx.ClearInterrupts(uint64(v & regmap.Mask(NumPins))) }),
	})

	m.Define(regSoftReset, regmap.Register{
		Name: "SOFTRESET",
		Read: peripherals.Reader(p, func(*core.Tx) uint32 {
			if g.softReset {
				return 1
			}
			return 0
		}),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { g.softReset = regmap.Bit(v, 0) }),
	})
	m.Define(regPullEnable, regmap.Register{
		Name:  "PULL_ENABLE",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return g.pullEnable }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { g.pullEnable = v & regmap.Mask(NumPins) }),
	})
	m.Define(regPullUpDown, regmap.Register{
		Name:  "PULL_UP_DOWN",
		Read:  peripherals.Reader(p, func(*core.Tx) uint32 { return g.pullUpDown }),
		Write: peripherals.Writer(p, func(_ *core.Tx, v uint32) { g.pullUpDown = v & regmap.Mask(NumPins) }),
	})

	// Masked byte access: address bits [9:2] select which data bits of the
	// byte take part in the access.
	masked := func(base uint32, shift int) {
		m.DefineArray(base, 4, 256, func(i int) regmap.Register {
			mask := uint32(i) << uint(shift)
			return regmap.Register{
				Name: fmt.Sprintf("MASKBYTE_%#x", base+uint32(i)*4),
				Read: peripherals.Reader(p, func(tx *core.Tx) uint32 {
					return g.data(tx) & mask
				}),
				Write: peripherals.Writer(p, func(tx *core.Tx, v uint32) {
					g.writeData(tx, v, mask)
				}),
			}
		})
	}
	masked(regMaskLowByte0, 0)
	masked(regMaskHighByte0, 8)
}
