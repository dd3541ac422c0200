package core

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPort(t *testing.T, cfg Config) *Port {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "gpio"
	}
	if cfg.Pins == 0 {
		cfg.Pins = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	p, err := NewPort(cfg)
	if err != nil {
		t.Fatalf("NewPort failed: %v", err)
	}
	return p
}

func TestNewPortRejectsWidth(t *testing.T) {
	for _, n := range []int{0, -1, 65} {
		_, err := NewPort(Config{Name: "bad", Pins: n, Logger: quietLogger()})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Pins=%d: expected ErrInvalidConfig, got %v", n, err)
		}
	}
}

func TestRisingEdgeStickySequence(t *testing.T) {
	p := newTestPort(t, Config{Pins: 16})
	p.SetTrigger(3, RisingEdge)
	p.SetInterruptEnabled(3, true)

	steps := []struct {
		level    bool
		pending  bool
		combined bool
	}{
		{true, true, true},  // false -> true sets
		{true, true, true},  // true -> true holds
		{false, true, true}, // true -> false leaves it
		{true, true, true},  // second rising edge, still set
	}

	for i, step := range steps {
		if err := p.OnExternalPinChange(3, step.level); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		state := p.Snapshot()[3]
		if state.Pending != step.pending {
			t.Errorf("step %d: expected pending %v, got %v", i, step.pending, state.Pending)
		}
		if got := p.Combined().IsSet(); got != step.combined {
			t.Errorf("step %d: expected combined %v, got %v", i, step.combined, got)
		}
	}

	p.ClearInterrupt(3)
	if p.Combined().IsSet() {
		t.Error("Expected combined line to drop after clear")
	}
	if p.RawStatus() != 0 {
		t.Errorf("Expected no pending bits, got %#x", p.RawStatus())
	}

	// Unchanged level after the clear is not a new edge.
	p.OnExternalPinChange(3, true)
	if p.Combined().IsSet() {
		t.Error("Expected no interrupt without a transition")
	}
}

func TestActiveLowLiveTracksLevel(t *testing.T) {
	p := newTestPort(t, Config{Pins: 16, Sticky: false})
	p.SetTrigger(5, ActiveLow)
	p.SetInterruptEnabled(5, true)

	bit := uint64(1 << 5)
	if p.VisibleStatus()&bit == 0 {
		t.Error("Expected pin 5 visible while low")
	}

	p.OnExternalPinChange(5, true)
	if p.VisibleStatus()&bit != 0 {
		t.Error("Expected pin 5 not visible while high")
	}
	if p.Combined().IsSet() {
		t.Error("Expected combined line deasserted while high")
	}

	p.OnExternalPinChange(5, false)
	if p.VisibleStatus()&bit == 0 {
		t.Error("Expected pin 5 visible again when low")
	}
	if !p.Combined().IsSet() {
		t.Error("Expected combined line asserted when low")
	}
}

func TestDedicatedLineExcludedFromCombined(t *testing.T) {
	p := newTestPort(t, Config{Pins: 16, Dedicated: []int{0, 1, 2, 3, 4, 5, 6, 7}})
	p.SetTrigger(2, ActiveHigh)
	p.SetInterruptEnabled(2, true)
	p.OnExternalPinChange(2, true)

	if !p.Dedicated(2).IsSet() {
		t.Error("Expected dedicated line 2 asserted")
	}
	if p.Combined().IsSet() {
		t.Error("Expected combined line to stay low")
	}
	for _, pin := range []int{0, 1, 3, 7} {
		if p.Dedicated(pin).IsSet() {
			t.Errorf("Expected dedicated line %d low", pin)
		}
	}
	if p.Dedicated(8) != nil {
		t.Error("Expected no dedicated line for pin 8")
	}

	p.SetTrigger(9, ActiveHigh)
	p.SetInterruptEnabled(9, true)
	p.OnExternalPinChange(9, true)
	if !p.Combined().IsSet() {
		t.Error("Expected combined line asserted by pin 9")
	}
	if len(p.Lines()) != 9 {
		t.Errorf("Expected 9 lines, got %d", len(p.Lines()))
	}
}

func TestWriteToInputPinIsDropped(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newTestPort(t, Config{Pins: 16, Logger: log})

	var calls int
	p.Connect(func(pin int, level bool) { calls++ })

	if err := p.SetOutput(4, true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no connection changes, got %d", calls)
	}
	if p.Snapshot()[4].Driven {
		t.Error("Expected pin 4 not driven")
	}
	if !strings.Contains(buf.String(), "not driving") {
		t.Errorf("Expected a diagnostic, got log %q", buf.String())
	}
}

func TestOutputDrivesConnection(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8})

	var got []bool
	p.Connect(func(pin int, level bool) {
		if pin == 1 {
			got = append(got, level)
		}
	})

	p.SetDirection(1, Output)
	p.SetOutput(1, true)
	p.SetOutput(1, true)
	p.Update(func(tx *Tx) { tx.ToggleOutput(1) })

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("Expected [true false], got %v", got)
	}
}

func TestSeparateDriveEnable(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8, SeparateDriveEnable: true})

	var last bool
	var calls int
	p.Connect(func(pin int, level bool) { last = level; calls++ })

	p.Update(func(tx *Tx) {
		tx.SetDirection(0, Output)
		tx.SetOutputLatch(0, true)
	})
	if calls != 0 {
		t.Errorf("Expected no drive before enable, got %d calls", calls)
	}

	p.Update(func(tx *Tx) { tx.SetDriveEnabled(0, true) })
	if calls != 1 || !last {
		t.Errorf("Expected latched high to appear on enable, calls=%d last=%v", calls, last)
	}
}

func TestOutputPinIgnoresExternalLevel(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8})
	p.SetDirection(2, Output)
	p.SetTrigger(2, ActiveHigh)
	p.SetInterruptEnabled(2, true)

	p.OnExternalPinChange(2, true)
	if p.Snapshot()[2].Level {
		t.Error("Expected output pin level to be unchanged")
	}
	if p.Combined().IsSet() {
		t.Error("Expected no interrupt from an output pin")
	}
}

func TestDirectionChangeDoesNotFire(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8})
	p.SetTrigger(1, BothEdges)
	p.SetInterruptEnabled(1, true)
	p.OnExternalPinChange(1, true)
	p.ClearInterrupt(1)

	p.SetDirection(1, Output)
	p.SetDirection(1, Input)
	if p.RawStatus() != 0 {
		t.Errorf("Expected no pending after direction changes, got %#x", p.RawStatus())
	}

	p.OnExternalPinChange(1, false)
	if p.RawStatus() != 1<<1 {
		t.Errorf("Expected edge from last known level, got %#x", p.RawStatus())
	}
}

func TestDisabledPinNeverContributes(t *testing.T) {
	p := newTestPort(t, Config{Pins: 16, Dedicated: []int{0}})
	for _, pin := range []int{0, 6} {
		p.SetTrigger(pin, ActiveHigh)
		p.OnExternalPinChange(pin, true)
	}

	if p.RawStatus() != 1|1<<6 {
		t.Errorf("Expected raw pending on pins 0 and 6, got %#x", p.RawStatus())
	}
	if p.VisibleStatus() != 0 {
		t.Errorf("Expected nothing visible, got %#x", p.VisibleStatus())
	}
	if p.Combined().IsSet() || p.Dedicated(0).IsSet() {
		t.Error("Expected all lines low while disabled")
	}
}

func TestClearReassertsHeldLevel(t *testing.T) {
	for _, sticky := range []bool{false, true} {
		p := newTestPort(t, Config{Pins: 8, Sticky: sticky})
		p.SetTrigger(4, ActiveHigh)
		p.SetInterruptEnabled(4, true)
		p.OnExternalPinChange(4, true)

		p.ClearInterrupt(4)
		if p.VisibleStatus()&(1<<4) == 0 {
			t.Errorf("sticky=%v: expected held level to reassert after clear", sticky)
		}
		if !p.Combined().IsSet() {
			t.Errorf("sticky=%v: expected line asserted after clear", sticky)
		}

		p.OnExternalPinChange(4, false)
		if got := p.Combined().IsSet(); got != sticky {
			t.Errorf("sticky=%v: expected line %v after level drops, got %v", sticky, sticky, got)
		}
		p.ClearInterrupt(4)
		if p.Combined().IsSet() {
			t.Errorf("sticky=%v: expected line low after clear with level gone", sticky)
		}
	}
}

func TestMaskPolicies(t *testing.T) {
	testCases := []struct {
		name       string
		policy     MaskPolicy
		rawPending bool
	}{
		{"latches", MaskLatches, true},
		{"suppresses", MaskSuppresses, false},
	}

	for _, tc := range testCases {
		p := newTestPort(t, Config{Pins: 8, Mask: tc.policy})
		p.SetTrigger(0, RisingEdge)
		p.SetInterruptEnabled(0, true)
		p.SetInterruptMasked(0, true)
		p.OnExternalPinChange(0, true)

		if got := p.RawStatus()&1 != 0; got != tc.rawPending {
			t.Errorf("%s: expected raw pending %v, got %v", tc.name, tc.rawPending, got)
		}
		if p.Combined().IsSet() {
			t.Errorf("%s: expected masked pin to keep the line low", tc.name)
		}

		p.SetInterruptMasked(0, false)
		if got := p.Combined().IsSet(); got != tc.rawPending {
			t.Errorf("%s: expected line %v after unmask, got %v", tc.name, tc.rawPending, got)
		}
	}
}

func TestLatchGate(t *testing.T) {
	testCases := []struct {
		gate     LatchGate
		expected bool
	}{
		{LatchAlways, true},
		{LatchWhenEnabled, false},
		{LatchOnChange, true},
	}

	for _, tc := range testCases {
		p := newTestPort(t, Config{Pins: 8, Latch: tc.gate})
		p.SetTrigger(3, FallingEdge)
		p.OnExternalPinChange(3, true)
		p.OnExternalPinChange(3, false)
		p.SetInterruptEnabled(3, true)

		if got := p.Combined().IsSet(); got != tc.expected {
			t.Errorf("gate %d: expected line %v after enabling, got %v", tc.gate, tc.expected, got)
		}
	}
}

func TestInvalidTriggerKeepsPrevious(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPort(t, Config{Pins: 8, Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	p.SetTrigger(1, FallingEdge)
	p.SetTrigger(1, TriggerMode(17))

	if got := p.Snapshot()[1].Trigger; got != FallingEdge {
		t.Errorf("Expected falling-edge retained, got %s", got)
	}
	if !strings.Contains(buf.String(), "invalid trigger mode") {
		t.Errorf("Expected warning, got log %q", buf.String())
	}
}

func TestPinIndexPolicy(t *testing.T) {
	lenient := newTestPort(t, Config{Pins: 8})
	if err := lenient.OnExternalPinChange(8, true); err != nil {
		t.Errorf("Expected lenient port to ignore, got %v", err)
	}
	if level, err := lenient.Read(-1); err != nil || level {
		t.Errorf("Expected (false, nil), got (%v, %v)", level, err)
	}

	strict := newTestPort(t, Config{Pins: 8, StrictPins: true})
	if err := strict.OnExternalPinChange(8, true); !errors.Is(err, ErrInvalidPinIndex) {
		t.Errorf("Expected ErrInvalidPinIndex, got %v", err)
	}
	err := strict.Update(func(tx *Tx) {
		tx.SetTrigger(2, ActiveHigh)
		tx.SetInterruptEnabled(99, true)
		tx.SetInterruptEnabled(2, true)
	})
	if !errors.Is(err, ErrInvalidPinIndex) {
		t.Errorf("Expected ErrInvalidPinIndex, got %v", err)
	}
	if !strict.Snapshot()[2].Enabled {
		t.Error("Expected valid accesses in the same transaction to apply")
	}
}

func TestReadbackPolicies(t *testing.T) {
	testCases := []struct {
		policy   ReadbackPolicy
		expected bool
	}{
		{ReadbackLoopback, true},
		{ReadbackZero, false},
		{ReadbackElectrical, true},
	}

	for _, tc := range testCases {
		p := newTestPort(t, Config{Pins: 8, Readback: tc.policy})
		p.SetDirection(6, Output)
		p.SetOutput(6, true)
		got, err := p.Read(6)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got != tc.expected {
			t.Errorf("policy %d: expected %v, got %v", tc.policy, tc.expected, got)
		}
	}
}

func TestElectricalReadbackFollowsDrive(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8, Readback: ReadbackElectrical})
	p.OnExternalPinChange(2, true)
	p.SetDirection(2, Output)

	for _, level := range []bool{false, true, false} {
		p.SetOutput(2, level)
		got, err := p.Read(2)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got != level {
			t.Errorf("Expected readback %v after driving %v, got %v", level, level, got)
		}
	}
}

func TestInputDisabledIgnoresChanges(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8})
	p.SetTrigger(0, RisingEdge)
	p.SetInterruptEnabled(0, true)
	p.Update(func(tx *Tx) { tx.SetInputDisabled(0, true) })

	p.OnExternalPinChange(0, true)
	if p.Combined().IsSet() {
		t.Error("Expected input-disabled pin not to interrupt")
	}
	if level, _ := p.Read(0); level {
		t.Error("Expected input-disabled pin to read low")
	}
}

func TestReset(t *testing.T) {
	setup := func() *Port {
		p := newTestPort(t, Config{Pins: 8})
		p.SetTrigger(2, ActiveHigh)
		p.SetInterruptEnabled(2, true)
		p.SetDirection(5, Output)
		p.SetOutput(5, true)
		p.OnExternalPinChange(2, true)
		return p
	}

	hard := setup()
	hard.Reset(HardReset)
	info := hard.Snapshot()
	if info[2].Level || info[2].Enabled || info[2].Trigger != Disabled {
		t.Errorf("Expected pin 2 at power-on defaults, got %+v", info[2])
	}
	if info[5].Direction != Input || info[5].Driven {
		t.Errorf("Expected pin 5 undriven input, got %+v", info[5])
	}
	if hard.Combined().IsSet() {
		t.Error("Expected line low after hard reset")
	}

	soft := setup()
	var released bool
	soft.Connect(func(pin int, level bool) {
		if pin == 5 && !level {
			released = true
		}
	})
	soft.Reset(SoftReset)
	info = soft.Snapshot()
	if !info[2].Level || !info[2].Enabled || info[2].Trigger != ActiveHigh {
		t.Errorf("Expected pin 2 level and config kept, got %+v", info[2])
	}
	if !released {
		t.Error("Expected pin 5 drive released on soft reset")
	}
	if !soft.Combined().IsSet() {
		t.Error("Expected held level to reassert after soft reset")
	}
}

func TestPulseOutputPolicy(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8, CombinedOutput: Pulse})

	var seen []bool
	p.Combined().Connect(func(level bool) { seen = append(seen, level) })

	p.SetTrigger(1, RisingEdge)
	p.SetInterruptEnabled(1, true)
	p.OnExternalPinChange(1, true)
	p.OnExternalPinChange(1, false)
	p.OnExternalPinChange(1, true)

	if p.Combined().Pulses() != 1 {
		t.Errorf("Expected 1 pulse while pending stays set, got %d", p.Combined().Pulses())
	}
	if p.Combined().IsSet() {
		t.Error("Expected pulsed line to rest low")
	}

	p.ClearInterrupt(1)
	p.OnExternalPinChange(1, false)
	p.OnExternalPinChange(1, true)
	if p.Combined().Pulses() != 2 {
		t.Errorf("Expected 2 pulses, got %d", p.Combined().Pulses())
	}
	if len(seen) != 4 {
		t.Errorf("Expected 4 line transitions, got %v", seen)
	}
}

func TestUpdateRecomputesOnce(t *testing.T) {
	p := newTestPort(t, Config{Pins: 8})

	var transitions int
	p.Combined().Connect(func(bool) { transitions++ })

	p.Update(func(tx *Tx) {
		tx.SetTrigger(0, ActiveHigh)
		tx.SetInterruptEnabled(0, true)
		tx.SetTrigger(1, ActiveLow)
		tx.SetInterruptEnabled(1, true)
		tx.SetInterruptEnabled(1, false)
	})
	if transitions != 0 {
		t.Errorf("Expected no line change, got %d", transitions)
	}

	p.OnExternalPinChange(0, true)
	if transitions != 1 {
		t.Errorf("Expected 1 line change, got %d", transitions)
	}
}

func TestWatchEvents(t *testing.T) {
	p := newTestPort(t, Config{Name: "pa", Pins: 8})

	var events []Event
	p.Watch(func(ev Event) { events = append(events, ev) })

	p.SetTrigger(0, ActiveHigh)
	p.SetInterruptEnabled(0, true)
	p.OnExternalPinChange(0, true)
	p.SetDirection(7, Output)
	p.SetOutput(7, true)

	expected := []Event{
		{Port: "pa", Kind: EventInput, Pin: 0, Level: true},
		{Port: "pa", Kind: EventLine, Pin: -1, Line: "pa.irq", Level: true},
		{Port: "pa", Kind: EventOutput, Pin: 7, Level: true},
	}
	if len(events) != len(expected) {
		t.Fatalf("Expected %d events, got %v", len(expected), events)
	}
	for i := range expected {
		if events[i] != expected[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, expected[i], events[i])
		}
	}
}

func TestUnwatch(t *testing.T) {
	p := newTestPort(t, Config{Name: "pa", Pins: 8})

	var kept, dropped int
	p.Watch(func(Event) { kept++ })
	stop := p.Watch(func(Event) { dropped++ })

	p.OnExternalPinChange(1, true)
	stop()
	stop()
	p.OnExternalPinChange(1, false)

	if kept != 2 {
		t.Errorf("Expected 2 events on the kept watcher, got %d", kept)
	}
	if dropped != 1 {
		t.Errorf("Expected 1 event before unwatch, got %d", dropped)
	}
}

func TestDedicatedLineEventOrder(t *testing.T) {
	for n := 0; n < 5; n++ {
		p := newTestPort(t, Config{Name: "pa", Pins: 8, Dedicated: []int{0, 1, 2, 3, 4, 5, 6, 7}})

		var pins []int
		p.Watch(func(ev Event) {
			if ev.Kind == EventLine {
				pins = append(pins, ev.Pin)
			}
		})
		p.Update(func(tx *Tx) {
			for pin := 7; pin >= 0; pin-- {
				tx.SetTrigger(pin, ActiveLow)
				tx.SetInterruptEnabled(pin, true)
			}
		})

		if len(pins) != 8 {
			t.Fatalf("Expected 8 line events, got %v", pins)
		}
		for i, pin := range pins {
			if pin != i {
				t.Errorf("Expected line events in pin order, got %v", pins)
				break
			}
		}
	}
}

func TestConcurrentPortAccess(t *testing.T) {
	p := newTestPort(t, Config{Pins: 32})
	for i := 0; i < 32; i++ {
		p.SetTrigger(i, BothEdges)
		p.SetInterruptEnabled(i, true)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				pin := (g*4 + n) % 32
				p.OnExternalPinChange(pin, n%2 == 0)
				p.ClearInterrupt(pin)
				_ = p.VisibleStatus()
			}
		}(g)
	}
	wg.Wait()

	p.Update(func(tx *Tx) { tx.ClearInterrupts(^uint64(0)) })
	if p.Combined().IsSet() {
		t.Error("Expected line low after clearing everything")
	}
}
