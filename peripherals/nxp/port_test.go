package nxp

import (
	"io"
	"log/slog"
	"testing"

	"gpiosim/core"
	"gpiosim/peripherals"
)

func newTestPort(t *testing.T) *Port {
	t.Helper()
	p, err := New(peripherals.Config{Name: "porta", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func pcr(n int) uint32 { return regPCR0 + uint32(n)*4 }

func TestIRQCDecoding(t *testing.T) {
	tests := []struct {
		irqc    uint32
		mode    core.TriggerMode
		enabled bool
	}{
		{irqcDisabled, core.Disabled, false},
		{irqcWhenLow, core.ActiveLow, true},
		{irqcRising, core.RisingEdge, true},
		{irqcFalling, core.FallingEdge, true},
		{irqcEither, core.BothEdges, true},
		{irqcWhenHigh, core.ActiveHigh, true},
	}
	for _, tc := range tests {
		p := newTestPort(t)
		p.ctl.Write(pcr(3), tc.irqc<<pcrIRQCShift)
		info := p.port.Snapshot()[3]
		if info.Trigger != tc.mode {
			t.Errorf("IRQC %d: expected %s, got %s", tc.irqc, tc.mode, info.Trigger)
		}
		if info.Enabled != tc.enabled {
			t.Errorf("IRQC %d: expected enabled %v, got %v", tc.irqc, tc.enabled, info.Enabled)
		}
		if got := p.ctl.Read(pcr(3)) >> pcrIRQCShift & 0xf; got != tc.irqc {
			t.Errorf("IRQC %d: read back %d", tc.irqc, got)
		}
	}
}

func TestUnsupportedIRQCKeepsConfiguration(t *testing.T) {
	p := newTestPort(t)
	p.ctl.Write(pcr(0), irqcRising<<pcrIRQCShift)

	for _, irqc := range []uint32{irqcDMARising, irqcDMAEither, 5, 15} {
		p.ctl.Write(pcr(0), irqc<<pcrIRQCShift)
		if got := p.port.Snapshot()[0].Trigger; got != core.RisingEdge {
			t.Errorf("IRQC %d: expected rising edge kept, got %s", irqc, got)
		}
	}
}

func TestEdgeFlagWriteOneToClear(t *testing.T) {
	p := newTestPort(t)
	p.ctl.Write(pcr(4), irqcFalling<<pcrIRQCShift|0x100)

	p.port.OnExternalPinChange(4, true)
	if p.port.Combined().IsSet() {
		t.Error("Expected no interrupt on rising edge")
	}
	p.port.OnExternalPinChange(4, false)
	if got := p.ctl.Read(regISFR); got != 1<<4 {
		t.Errorf("Expected ISFR 0x10, got %#x", got)
	}
	if got := p.ctl.Read(pcr(4)); got&(1<<pcrISF) == 0 || got&0xffff != 0x100 {
		t.Errorf("Expected ISF set and MUX kept, got %#x", got)
	}

	// Writing zero to ISF leaves it pending.
	p.ctl.Write(pcr(4), irqcFalling<<pcrIRQCShift|0x100)
	if !p.port.Combined().IsSet() {
		t.Error("Expected interrupt still pending")
	}
	p.ctl.Write(pcr(4), irqcFalling<<pcrIRQCShift|1<<pcrISF)
	if p.port.Combined().IsSet() || p.ctl.Read(regISFR) != 0 {
		t.Error("Expected ISF write to clear the interrupt")
	}

	p.port.OnExternalPinChange(4, true)
	p.port.OnExternalPinChange(4, false)
	p.ctl.Write(regISFR, 1<<4)
	if p.port.Combined().IsSet() {
		t.Error("Expected ISFR write to clear the interrupt")
	}
}

func TestLevelInterruptReasserts(t *testing.T) {
	p := newTestPort(t)
	p.port.OnExternalPinChange(1, true)
	p.ctl.Write(pcr(1), irqcWhenHigh<<pcrIRQCShift)
	if !p.port.Combined().IsSet() {
		t.Fatal("Expected level-high interrupt")
	}
	p.ctl.Write(regISFR, 1<<1)
	if !p.port.Combined().IsSet() {
		t.Error("Expected level interrupt to reassert while high")
	}
	p.port.OnExternalPinChange(1, false)
	p.ctl.Write(regISFR, 1<<1)
	if p.port.Combined().IsSet() {
		t.Error("Expected interrupt cleared once low")
	}
}

func TestGlobalControl(t *testing.T) {
	p := newTestPort(t)

	// Upper half to pins 0 and 2: rising edge.
	p.ctl.Write(regGICLR, irqcRising<<16|0b101)
	// Lower half to pin 17: MUX 1.
	p.ctl.Write(regGPCHR, 0x100<<16|1<<1)

	info := p.port.Snapshot()
	if info[0].Trigger != core.RisingEdge || info[2].Trigger != core.RisingEdge {
		t.Error("Expected pins 0 and 2 rising")
	}
	if info[1].Trigger != core.Disabled {
		t.Errorf("Expected pin 1 untouched, got %s", info[1].Trigger)
	}
	if got := p.ctl.Read(pcr(17)); got != 0x100 {
		t.Errorf("Expected PCR17 0x100, got %#x", got)
	}
	if got := p.ctl.Read(pcr(0)); got != irqcRising<<pcrIRQCShift {
		t.Errorf("Expected PCR0 %#x, got %#x", irqcRising<<pcrIRQCShift, got)
	}
}

func TestSetClearToggle(t *testing.T) {
	p := newTestPort(t)
	m := p.gpio

	var driven = map[int]bool{}
	p.port.Connect(func(pin int, level bool) { driven[pin] = level })

	// Latched while input, driven once the pin turns output.
	m.Write(regPSOR, 1<<2)
	if len(driven) != 0 {
		t.Errorf("Expected no connection while input, got %v", driven)
	}
	m.Write(regPDDR, 0b1110)
	if !driven[2] {
		t.Error("Expected latched level on pin 2 after PDDR")
	}

	m.Write(regPSOR, 0b0010)
	m.Write(regPTOR, 0b1100)
	if got := m.Read(regPDOR); got != 0b1010 {
		t.Errorf("Expected PDOR 0xa, got %#x", got)
	}
	if !driven[1] || driven[2] || !driven[3] {
		t.Errorf("Unexpected connections %v", driven)
	}
	m.Write(regPCOR, 0b1000)
	if driven[3] {
		t.Error("Expected pin 3 cleared")
	}

	// Output pins read as zero through PDIR.
	if got := m.Read(regPDIR); got != 0 {
		t.Errorf("Expected PDIR 0, got %#x", got)
	}
}

func TestInputDisable(t *testing.T) {
	p := newTestPort(t)
	p.ctl.Write(pcr(6), irqcRising<<pcrIRQCShift)

	p.gpio.Write(regPIDR, 1<<6)
	p.port.OnExternalPinChange(6, true)
	if p.gpio.Read(regPDIR) != 0 || p.port.Combined().IsSet() {
		t.Error("Expected disabled input to be ignored")
	}
	if got := p.gpio.Read(regPIDR); got != 1<<6 {
		t.Errorf("Expected PIDR 0x40, got %#x", got)
	}

	p.gpio.Write(regPIDR, 0)
	p.port.OnExternalPinChange(6, true)
	if p.gpio.Read(regPDIR) != 1<<6 || !p.port.Combined().IsSet() {
		t.Error("Expected input and edge once enabled")
	}
}

func TestDigitalFilterAndReset(t *testing.T) {
	p := newTestPort(t)
	p.ctl.Write(regDFER, 0xffffffff)
	p.ctl.Write(regDFWR, 0xff)
	if p.ctl.Read(regDFER) != 0xffffffff || p.ctl.Read(regDFWR) != 0x1f {
		t.Errorf("Unexpected filter words %#x %#x", p.ctl.Read(regDFER), p.ctl.Read(regDFWR))
	}
	p.ctl.Write(pcr(0), irqcEither<<pcrIRQCShift|0x3)

	p.Reset()
	if p.ctl.Read(regDFER) != 0 || p.ctl.Read(pcr(0)) != 0 {
		t.Error("Expected reset to clear PORT registers")
	}
}

func TestRegions(t *testing.T) {
	dev, err := peripherals.New(Family, peripherals.Config{Name: "portb", Pins: 18})
	if err != nil {
		t.Fatalf("peripherals.New failed: %v", err)
	}
	regions := dev.Regions()
	if len(regions) != 2 || regions[0].Name != "port" || regions[1].Name != "gpio" {
		t.Fatalf("Unexpected regions %v", regions)
	}
	if dev.Ports()[0].Len() != 18 {
		t.Errorf("Expected 18 pins, got %d", dev.Ports()[0].Len())
	}
	if _, err := New(peripherals.Config{Name: "x", Pins: 33}); err == nil {
		t.Error("Expected error for 33 pins")
	}
}
