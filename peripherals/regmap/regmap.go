// Register map
// Decodes 32-bit bus accesses at register offsets into read/write callbacks
package regmap

import (
	"fmt"
	"log/slog"

	"golang.org/x/exp/slices"
)

// Register describes one word-sized register. A nil Read makes the register
// write-only (reads return zero); a nil Write makes it read-only.
type Register struct {
	Name  string
	Read  func() uint32
	Write func(value uint32)
}

// Map is a set of registers keyed by byte offset. Registers are defined up
// front; the map itself holds no lock and callbacks serialize through the
// port they act on.
type Map struct {
	name string
	size uint32
	regs map[uint32]Register
	log  *slog.Logger
}

// New creates an empty map covering size bytes
func New(name string, size uint32, log *slog.Logger) *Map {
	if log == nil {
		log = slog.Default()
	}
	return &Map{
		name: name,
		size: size,
		regs: make(map[uint32]Register),
		log:  log.With("regs", name),
	}
}

// Name returns the map name
func (m *Map) Name() string {
	return m.name
}

// Size returns the number of bytes the map decodes
func (m *Map) Size() uint32 {
	return m.size
}

// Define adds a register at offset, replacing any previous definition
func (m *Map) Define(offset uint32, r Register) {
	if r.Name == "" {
		r.Name = fmt.Sprintf("reg_%#x", offset)
	}
	m.regs[offset] = r
}

// DefineArray defines count registers spaced stride bytes apart, starting at
// base. build receives the element index.
func (m *Map) DefineArray(base, stride uint32, count int, build func(i int) Register) {
	for i := 0; i < count; i++ {
		m.Define(base+uint32(i)*stride, build(i))
	}
}

// Lookup returns the register at offset
func (m *Map) Lookup(offset uint32) (Register, bool) {
	r, ok := m.regs[offset]
	return r, ok
}

// Offsets returns every defined offset in ascending order
func (m *Map) Offsets() []uint32 {
	out := make([]uint32, 0, len(m.regs))
	for off := range m.regs {
		out = append(out, off)
	}
	slices.Sort(out)
	return out
}

// Read performs a bus read. Undefined and write-only registers read as zero.
func (m *Map) Read(offset uint32) uint32 {
	r, ok := m.regs[offset]
	if !ok {
		m.log.Warn("read from undefined register", "offset", fmt.Sprintf("%#x", offset))
		return 0
	}
	if r.Read == nil {
		m.log.Warn("read from write-only register", "reg", r.Name, "offset", fmt.Sprintf("%#x", offset))
		return 0
	}
	return r.Read()
}

// Write performs a bus write. Writes to undefined and read-only registers
// are dropped.
func (m *Map) Write(offset uint32, value uint32) {
	r, ok := m.regs[offset]
	if !ok {
		m.log.Warn("write to undefined register dropped", "offset", fmt.Sprintf("%#x", offset), "value", fmt.Sprintf("%#x", value))
		return
	}
	if r.Write == nil {
		m.log.Warn("write to read-only register dropped", "reg", r.Name, "offset", fmt.Sprintf("%#x", offset), "value", fmt.Sprintf("%#x", value))
		return
	}
	m.log.Debug("write", "reg", r.Name, "value", fmt.Sprintf("%#x", value))
	r.Write(value)
}
