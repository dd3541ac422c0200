// NXP Kinetis PORT + GPIO
// Pin control registers carry the IRQC interrupt configuration and a
// write-one-to-clear ISF flag; the GPIO window has set/clear/toggle output
// registers and per-pin input disable
package nxp

import (
	"fmt"
	"sync"

	"gpiosim/core"
	"gpiosim/peripherals"
	"gpiosim/peripherals/regmap"
)

// Family is the registry name of this model
const Family = "nxp-gpio"

const (
	DefaultPins = 32
	PortSize    = 0x1000
	GPIOSize    = 0x40
)

// PORT window
const (
	regPCR0  = 0x00
	regGPCLR = 0x80
	regGPCHR = 0x84
	regGICLR = 0x88
	regGICHR = 0x8c
	regISFR  = 0xa0
	regDFER  = 0xc0
	regDFCR  = 0xc4
	regDFWR  = 0xc8
)

// GPIO window
const (
	regPDOR = 0x00
	regPSOR = 0x04
	regPCOR = 0x08
	regPTOR = 0x0c
	regPDIR = 0x10
	regPDDR = 0x14
	regPIDR = 0x18
)

// PCR fields
const (
	pcrIRQCShift = 16
	pcrIRQCWidth = 4
	pcrISF       = 24
	pcrLowMask   = 0x0000_8777 // PE PS PFE DSE MUX LK
)

// IRQC encodings. 1-3 request DMA, which this model does not provide.
const (
	irqcDisabled   = 0
	irqcDMARising  = 1
	irqcDMAFalling = 2
	irqcDMAEither  = 3
	irqcWhenLow    = 8
	irqcRising     = 9
	irqcFalling    = 10
	irqcEither     = 11
	irqcWhenHigh   = 12
)

var irqcTable = regmap.NewTwoWay[uint32, core.TriggerMode]().
	Add(irqcDisabled, core.Disabled).
	Add(irqcWhenLow, core.ActiveLow).
	Add(irqcRising, core.RisingEdge).
	Add(irqcFalling, core.FallingEdge).
	Add(irqcEither, core.BothEdges).
	Add(irqcWhenHigh, core.ActiveHigh)

func init() {
	peripherals.Register(Family, func(cfg peripherals.Config) (peripherals.Device, error) {
		return New(cfg)
	})
}

// Port is one PORT/GPIO pair
type Port struct {
	name string
	pins int
	port *core.Port
	ctl  *regmap.Map
	gpio *regmap.Map

	mu  sync.Mutex // guards pcr low halves and the digital filter words
	pcr []uint32
	dfe uint32
	dfc uint32
	dfw uint32
}

// New builds the port. Pins defaults to 32.
func New(cfg peripherals.Config) (*Port, error) {
	pins := cfg.Pins
	if pins == 0 {
		pins = DefaultPins
	}
	if pins > 32 {
		return nil, fmt.Errorf("%s supports at most 32 pins, got %d", Family, pins)
	}
	port, err := core.NewPort(core.Config{
		Name:           cfg.Name,
		Pins:           pins,
		Sticky:         true,
		Latch:          core.LatchWhenEnabled,
		Mask:           core.MaskLatches,
		Readback:       core.ReadbackZero,
		CombinedOutput: cfg.OutputPolicy(),
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	p := &Port{
		name: cfg.Name,
		pins: pins,
		port: port,
		pcr:  make([]uint32, pins),
	}
	p.ctl = regmap.New(cfg.Name+".port", PortSize, cfg.Logger)
	p.gpio = regmap.New(cfg.Name+".gpio", GPIOSize, cfg.Logger)
	p.definePortRegisters()
	p.defineGPIORegisters()
	return p, nil
}

func (p *Port) Name() string        { return p.name }
func (p *Port) Family() string      { return Family }
func (p *Port) Port() *core.Port    { return p.port }
func (p *Port) Ports() []*core.Port { return []*core.Port{p.port} }
func (p *Port) Lines() []*core.Line { return p.port.Lines() }

// Regions returns the PORT window followed by the GPIO window
func (p *Port) Regions() []peripherals.Region {
	return []peripherals.Region{
		{Name: "port", Regs: p.ctl},
		{Name: "gpio", Regs: p.gpio},
	}
}

// Reset clears every register
func (p *Port) Reset() {
	p.port.Reset(core.HardReset)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.pcr {
		p.pcr[i] = 0
	}
	p.dfe, p.dfc, p.dfw = 0, 0, 0
}

// readPCR assembles PCR n from the stored low half and the live interrupt
// state
func (p *Port) readPCR(tx *core.Tx, n int) uint32 {
	p.mu.Lock()
	v := p.pcr[n]
	p.mu.Unlock()

	irqc, _ := irqcTable.Encode(tx.Trigger(n))
	v = regmap.SetField(v, pcrIRQCShift, pcrIRQCWidth, irqc)
	return regmap.SetBit(v, pcrISF, tx.State(n).Pending)
}

func (p *Port) writePCR(tx *core.Tx, n int, v uint32) {
	p.mu.Lock()
	p.pcr[n] = v & pcrLowMask
	p.mu.Unlock()

	irqc := regmap.Field(v, pcrIRQCShift, pcrIRQCWidth)
	switch mode, ok := irqcTable.Decode(irqc); {
	case ok:
		tx.SetTrigger(n, mode)
		tx.SetInterruptEnabled(n, mode != core.Disabled)
	case irqc >= irqcDMARising && irqc <= irqcDMAEither:
		tx.Log().Warn("DMA request IRQC not supported, configuration kept", "pin", n, "irqc", irqc)
	default:
		tx.Log().Warn("reserved IRQC value, configuration kept", "pin", n, "irqc", irqc)
	}
	if regmap.Bit(v, pcrISF) {
		tx.ClearInterrupt(n)
	}
}

// globalWrite fans value into the low or high half of every PCR selected in
// enable. high selects PCR 16-31.
func (p *Port) globalWrite(tx *core.Tx, v uint32, upperHalf, highPins bool) {
	enable := v & 0xffff
	value := v >> 16
	first := 0
	if highPins {
		first = 16
	}
	for i := 0; i < 16 && first+i < p.pins; i++ {
		if !regmap.Bit(enable, i) {
			continue
		}
		n := first + i
		cur := p.readPCR(tx, n) &^ (1 << pcrISF)
		if upperHalf {
			cur = cur&0xffff | value<<16
		} else {
			cur = cur&0xffff0000 | value
		}
		p.writePCR(tx, n, cur)
	}
}

func (p *Port) definePortRegisters() {
	cp := p.port
	m := p.ctl

	m.DefineArray(regPCR0, 4, p.pins, func(n int) regmap.Register {
		return regmap.Register{
			Name:  fmt.Sprintf("PCR%d", n),
			Read:  peripherals.Reader(cp, func(tx *core.Tx) uint32 { return p.readPCR(tx, n) }),
			Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) { p.writePCR(tx, n, v) }),
		}
	})

	global := func(name string, upperHalf, highPins bool) regmap.Register {
		return regmap.Register{
			Name:  name,
			Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) { p.globalWrite(tx, v, upperHalf, highPins) }),
		}
	}
	m.Define(regGPCLR, global("GPCLR", false, false))
	m.Define(regGPCHR, global("GPCHR", false, true))
	m.Define(regGICLR, global("GICLR", true, false))
	m.Define(regGICHR, global("GICHR", true, true))

	m.Define(regISFR, regmap.Register{
		Name:  "ISFR",
		Read:  peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.RawStatus()) }),
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) { tx.ClearInterrupts(uint64(v)) }),
	})

	word := func(name string, field *uint32, mask uint32) regmap.Register {
		return regmap.Register{
			Name: name,
			Read: func() uint32 {
				p.mu.Lock()
				defer p.mu.Unlock()
				return *field
			},
			Write: func(v uint32) {
				p.mu.Lock()
				defer p.mu.Unlock()
				*field = v & mask
			},
		}
	}
	m.Define(regDFER, word("DFER", &p.dfe, regmap.Mask(p.pins)))
	m.Define(regDFCR, word("DFCR", &p.dfc, 0x1))
	m.Define(regDFWR, word("DFWR", &p.dfw, 0x1f))
}

func (p *Port) defineGPIORegisters() {
	cp := p.port
	m := p.gpio

	m.Define(regPDOR, regmap.Register{
		Name: "PDOR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.DrivenMask()) }),
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			for i := 0; i < p.pins; i++ {
				tx.SetOutputLatch(i, regmap.Bit(v, i))
			}
		}),
	})
	m.Define(regPSOR, regmap.Register{
		Name: "PSOR",
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetOutputLatch(i, true) })
		}),
	})
	m.Define(regPCOR, regmap.Register{
		Name: "PCOR",
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetOutputLatch(i, false) })
		}),
	})
	m.Define(regPTOR, regmap.Register{
		Name: "PTOR",
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			peripherals.EachPin(tx, v, func(i int) { tx.SetOutputLatch(i, !tx.Pin(i).Driven) })
		}),
	})
	m.Define(regPDIR, regmap.Register{
		Name: "PDIR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.Levels()) }),
	})
	m.Define(regPDDR, regmap.Register{
		Name: "PDDR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 { return uint32(tx.DirectionMask(core.Output)) }),
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			for i := 0; i < p.pins; i++ {
				dir := core.Input
				if regmap.Bit(v, i) {
					dir = core.Output
				}
				tx.SetDirection(i, dir)
			}
		}),
	})
	m.Define(regPIDR, regmap.Register{
		Name: "PIDR",
		Read: peripherals.Reader(cp, func(tx *core.Tx) uint32 {
			return peripherals.PinBits(tx, func(i int) bool { return tx.Pin(i).InputDisabled })
		}),
		Write: peripherals.Writer(cp, func(tx *core.Tx, v uint32) {
			for i := 0; i < p.pins; i++ {
				tx.SetInputDisabled(i, regmap.Bit(v, i))
			}
		}),
	})
}
