package regmap

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestMapReadWrite(t *testing.T) {
	var buf bytes.Buffer
	m := New("test", 0x100, slog.New(slog.NewTextHandler(&buf, nil)))

	var stored uint32
	m.Define(0x00, Register{
		Name:  "DATA",
		Read:  func() uint32 { return stored },
		Write: func(v uint32) { stored = v },
	})
	m.Define(0x04, Register{Name: "STATUS", Read: func() uint32 { return 0xA5 }})
	m.Define(0x08, Register{Name: "CLEAR", Write: func(v uint32) { stored &^= v }})

	m.Write(0x00, 0xF0)
	if got := m.Read(0x00); got != 0xF0 {
		t.Errorf("Expected 0xF0, got %#x", got)
	}
	m.Write(0x08, 0x30)
	if got := m.Read(0x00); got != 0xC0 {
		t.Errorf("Expected 0xC0 after clear, got %#x", got)
	}
	if got := m.Read(0x04); got != 0xA5 {
		t.Errorf("Expected 0xA5, got %#x", got)
	}

	m.Write(0x04, 1)
	if got := m.Read(0x08); got != 0 {
		t.Errorf("Expected write-only register to read 0, got %#x", got)
	}
	if got := m.Read(0x40); got != 0 {
		t.Errorf("Expected undefined register to read 0, got %#x", got)
	}
	m.Write(0x40, 0xFFFF)

	log := buf.String()
	for _, msg := range []string{"read-only", "write-only", "undefined register"} {
		if !strings.Contains(log, msg) {
			t.Errorf("Expected log to mention %q, got %q", msg, log)
		}
	}
}

func TestMapDefineArray(t *testing.T) {
	m := New("pcr", 0x80, nil)
	m.DefineArray(0x00, 4, 4, func(i int) Register {
		return Register{Read: func() uint32 { return uint32(i * 10) }}
	})

	offsets := m.Offsets()
	expected := []uint32{0, 4, 8, 12}
	if len(offsets) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, offsets)
	}
	for i, off := range expected {
		if offsets[i] != off {
			t.Errorf("Expected offset %#x, got %#x", off, offsets[i])
		}
		if got := m.Read(off); got != uint32(i*10) {
			t.Errorf("Register %d: expected %d, got %d", i, i*10, got)
		}
	}
	if r, ok := m.Lookup(8); !ok || r.Name != "reg_0x8" {
		t.Errorf("Expected generated name reg_0x8, got %q", r.Name)
	}
}

func TestBitHelpers(t *testing.T) {
	v := uint32(0)
	v = SetBit(v, 3, true)
	v = SetBit(v, 5, true)
	v = SetBit(v, 3, false)
	if v != 1<<5 {
		t.Errorf("Expected 0x20, got %#x", v)
	}
	if !Bit(v, 5) || Bit(v, 3) {
		t.Errorf("Unexpected bits in %#x", v)
	}

	word := uint32(0x000B0000)
	if got := Field(word, 16, 4); got != 0xB {
		t.Errorf("Expected 0xB, got %#x", got)
	}
	if got := SetField(word, 16, 4, 0x9); got != 0x00090000 {
		t.Errorf("Expected 0x90000, got %#x", got)
	}
	if got := SetField(0, 16, 4, 0xFF); got != 0x000F0000 {
		t.Errorf("Expected field truncated to 0xF0000, got %#x", got)
	}

	var seen []int
	EachSet(0b1010_0001, 8, func(i int) { seen = append(seen, i) })
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 5 || seen[2] != 7 {
		t.Errorf("Expected [0 5 7], got %v", seen)
	}

	if Mask(32) != 0xFFFFFFFF || Mask(4) != 0xF {
		t.Errorf("Unexpected masks %#x %#x", Mask(32), Mask(4))
	}
	if got := FromBools([]bool{true, false, true}); got != 0b101 {
		t.Errorf("Expected 0b101, got %#b", got)
	}
}

func TestTwoWay(t *testing.T) {
	table := NewTwoWay[uint32, string]().
		Add(0, "off").
		Add(8, "low").
		Add(12, "high")

	if got, ok := table.Decode(8); !ok || got != "low" {
		t.Errorf("Expected low, got %q (%v)", got, ok)
	}
	if got, ok := table.Encode("high"); !ok || got != 12 {
		t.Errorf("Expected 12, got %d (%v)", got, ok)
	}
	if _, ok := table.Decode(3); ok {
		t.Error("Expected reserved encoding to be missing")
	}
	if table.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", table.Len())
	}
}
