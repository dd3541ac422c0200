package board

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
	"tinygo.org/x/drivers"

	"gpiosim/peripherals/regmap"
)

var (
	ErrUnmapped = errors.New("address not mapped")
	ErrOverlap  = errors.New("region overlaps an existing mapping")
	ErrNack     = errors.New("no device acknowledged address")
)

// Mapping is one register region placed on the system bus
type Mapping struct {
	Base   uint32
	Device string
	Region string
	Regs   *regmap.Map
}

// End returns the first address past the mapping
func (m Mapping) End() uint64 {
	return uint64(m.Base) + uint64(m.Regs.Size())
}

// Bus routes 32-bit memory-mapped accesses to register maps
type Bus struct {
	mu       sync.RWMutex
	mappings []Mapping // sorted by Base
}

// NewBus returns an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Map places regs at base
func (b *Bus) Map(m Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, _ := slices.BinarySearchFunc(b.mappings, m.Base, func(e Mapping, base uint32) int {
		switch {
		case e.Base < base:
			return -1
		case e.Base > base:
			return 1
		}
		return 0
	})
	if i > 0 && b.mappings[i-1].End() > uint64(m.Base) {
		return fmt.Errorf("%s.%s at %#x: %w", m.Device, m.Region, m.Base, ErrOverlap)
	}
	if i < len(b.mappings) && m.End() > uint64(b.mappings[i].Base) {
		return fmt.Errorf("%s.%s at %#x: %w", m.Device, m.Region, m.Base, ErrOverlap)
	}
	b.mappings = slices.Insert(b.mappings, i, m)
	return nil
}

// Mappings returns the placed regions in address order
func (b *Bus) Mappings() []Mapping {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.mappings)
}

func (b *Bus) find(addr uint32) (Mapping, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i, found := slices.BinarySearchFunc(b.mappings, addr, func(e Mapping, a uint32) int {
		switch {
		case e.Base > a:
			return 1
		case e.End() <= uint64(a):
			return -1
		}
		return 0
	})
	if !found {
		return Mapping{}, false
	}
	return b.mappings[i], true
}

// Read performs a word read at addr
func (b *Bus) Read(addr uint32) (uint32, error) {
	m, ok := b.find(addr)
	if !ok {
		return 0, fmt.Errorf("read %#x: %w", addr, ErrUnmapped)
	}
	return m.Regs.Read(addr - m.Base), nil
}

// Write performs a word write at addr
func (b *Bus) Write(addr, value uint32) error {
	m, ok := b.find(addr)
	if !ok {
		return fmt.Errorf("write %#x: %w", addr, ErrUnmapped)
	}
	m.Regs.Write(addr-m.Base, value)
	return nil
}

// I2CBus routes I2C transactions by 7-bit address. It satisfies
// drivers.I2C so host-side drivers can talk to emulated devices.
type I2CBus struct {
	mu      sync.RWMutex
	targets map[uint16]drivers.I2C
}

var _ drivers.I2C = (*I2CBus)(nil)

// NewI2CBus returns an empty bus
func NewI2CBus() *I2CBus {
	return &I2CBus{targets: map[uint16]drivers.I2C{}}
}

// Attach places dev at addr
func (b *I2CBus) Attach(addr uint16, dev drivers.I2C) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targets[addr]; ok {
		return fmt.Errorf("i2c address %#x already in use", addr)
	}
	b.targets[addr] = dev
	return nil
}

// Addresses returns the occupied addresses in ascending order
func (b *I2CBus) Addresses() []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint16, 0, len(b.targets))
	for a := range b.targets {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Tx performs one transaction
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.RLock()
	dev, ok := b.targets[addr]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("i2c %#x: %w", addr, ErrNack)
	}
	return dev.Tx(addr, w, r)
}
