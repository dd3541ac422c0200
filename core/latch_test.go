package core

import "testing"

func TestLatchStickyEdge(t *testing.T) {
	l := NewLatch(4, false, LatchAlways, MaskLatches)
	l.Record(1, RisingEdge, true)
	for i := 0; i < 3; i++ {
		l.Record(1, RisingEdge, false)
	}
	if !l.State(1).Pending {
		t.Error("Expected edge condition to stay latched")
	}
	l.Clear(1)
	if l.State(1).Pending {
		t.Error("Expected pending cleared")
	}
}

func TestLatchLevelModes(t *testing.T) {
	testCases := []struct {
		sticky   bool
		sequence []bool
		expected []bool
	}{
		{false, []bool{true, false, true}, []bool{true, false, true}},
		{true, []bool{true, false, true}, []bool{true, true, true}},
	}

	for _, tc := range testCases {
		l := NewLatch(1, tc.sticky, LatchAlways, MaskLatches)
		for i, occurred := range tc.sequence {
			l.Record(0, ActiveHigh, occurred)
			if got := l.State(0).Pending; got != tc.expected[i] {
				t.Errorf("sticky=%v step %d: expected %v, got %v", tc.sticky, i, tc.expected[i], got)
			}
		}
	}
}

func TestLatchRepeatedAssertIsIdempotent(t *testing.T) {
	l := NewLatch(2, true, LatchAlways, MaskLatches)
	l.Record(0, ActiveHigh, true)
	before := l.PendingMask()
	l.Record(0, ActiveHigh, true)
	if l.PendingMask() != before {
		t.Errorf("Expected %#x, got %#x", before, l.PendingMask())
	}
}

func TestLatchVisible(t *testing.T) {
	l := NewLatch(3, true, LatchAlways, MaskLatches)
	for i := 0; i < 3; i++ {
		l.Record(i, RisingEdge, true)
	}
	l.SetEnabled(0, true)
	l.SetEnabled(1, true)
	l.SetMasked(1, true)

	if !l.Visible(0) {
		t.Error("Expected pin 0 visible")
	}
	if l.Visible(1) {
		t.Error("Expected masked pin 1 hidden")
	}
	if l.Visible(2) {
		t.Error("Expected disabled pin 2 hidden")
	}
	if l.PendingMask() != 0b111 || l.EnabledMask() != 0b011 || l.MaskedMask() != 0b010 {
		t.Errorf("Unexpected masks: pending %#b enabled %#b masked %#b", l.PendingMask(), l.EnabledMask(), l.MaskedMask())
	}

	l.ClearMask(0b101)
	if l.PendingMask() != 0b010 {
		t.Errorf("Expected 0b10 after ClearMask, got %#b", l.PendingMask())
	}
}

func TestAggregatorRouting(t *testing.T) {
	l := NewLatch(16, true, LatchAlways, MaskLatches)
	a := NewAggregator(l, []int{3, 1, 1, -2, 40})

	pins := a.DedicatedPins()
	if len(pins) != 2 || pins[0] != 1 || pins[1] != 3 {
		t.Fatalf("Expected dedicated [1 3], got %v", pins)
	}

	l.SetEnabled(3, true)
	l.Record(3, RisingEdge, true)
	out := a.Recompute()
	if out.Combined {
		t.Error("Expected dedicated pin excluded from combined")
	}
	if !out.Dedicated[3] || out.Dedicated[1] {
		t.Errorf("Unexpected dedicated levels %v", out.Dedicated)
	}

	l.SetEnabled(10, true)
	l.Record(10, ActiveHigh, true)
	if !a.Recompute().Combined {
		t.Error("Expected pin 10 to assert combined")
	}
	if a.VisibleMask() != 1<<3|1<<10 {
		t.Errorf("Expected visible %#x, got %#x", 1<<3|1<<10, a.VisibleMask())
	}
}

func TestLineForwardsChanges(t *testing.T) {
	line := NewLine("irq")
	var seen []bool
	line.Connect(func(level bool) { seen = append(seen, level) })

	line.Assert()
	line.Assert()
	line.Deassert()
	line.Pulse()
	line.Assert()
	line.Pulse()

	expected := []bool{true, false, true, false, true}
	if len(seen) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, seen)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("change %d: expected %v, got %v", i, expected[i], seen[i])
		}
	}
	if line.Pulses() != 2 {
		t.Errorf("Expected 2 pulses, got %d", line.Pulses())
	}
	if !line.IsSet() {
		t.Error("Expected line still asserted")
	}
}

func TestLatchOnChangeGate(t *testing.T) {
	l := NewLatch(1, true, LatchOnChange, MaskLatches)
	l.Record(0, ActiveLow, true)
	if l.State(0).Pending {
		t.Error("Expected steady level on a disabled pin not to latch")
	}
	l.RecordChange(0, ActiveLow, true, true)
	if !l.State(0).Pending {
		t.Error("Expected level change on a disabled pin to latch")
	}
	l.Record(0, ActiveLow, false)
	if !l.State(0).Pending {
		t.Error("Expected latched condition to stay pending")
	}
}
