package board

import (
	"log/slog"
	"sync"

	"golang.org/x/exp/slices"

	"gpiosim/core"
)

// IRQController is the interrupt sink that device lines land on. It keeps
// the level of every input and reports changes to an optional listener.
type IRQController struct {
	mu       sync.Mutex
	levels   map[int]bool
	names    map[int]string
	counts   map[int]uint64
	listener func(irq int, level bool)
	log      *slog.Logger
}

// NewIRQController returns a controller with every input low
func NewIRQController(log *slog.Logger) *IRQController {
	if log == nil {
		log = slog.Default()
	}
	return &IRQController{
		levels: map[int]bool{},
		names:  map[int]string{},
		counts: map[int]uint64{},
		log:    log.With("component", "irq"),
	}
}

// OnChange installs a listener for input level changes
func (c *IRQController) OnChange(fn func(irq int, level bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// Attach connects line to input irq
func (c *IRQController) Attach(irq int, line *core.Line) {
	c.mu.Lock()
	c.names[irq] = line.Name()
	c.mu.Unlock()
	line.Connect(func(level bool) { c.Set(irq, level) })
}

// Set drives input irq
func (c *IRQController) Set(irq int, level bool) {
	c.mu.Lock()
	if level {
		c.counts[irq]++
	}
	changed := c.levels[irq] != level
	c.levels[irq] = level
	fn := c.listener
	c.mu.Unlock()

	if !changed {
		return
	}
	c.log.Debug("irq", "irq", irq, "level", level)
	if fn != nil {
		fn(irq, level)
	}
}

// Level reports the current level of input irq
func (c *IRQController) Level(irq int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[irq]
}

// Raised returns how many times irq has been asserted, pulses included
func (c *IRQController) Raised(irq int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[irq]
}

// Name returns the line attached to irq
func (c *IRQController) Name(irq int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[irq]
}

// Inputs returns every attached input in ascending order
func (c *IRQController) Inputs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.names))
	for irq := range c.names {
		out = append(out, irq)
	}
	slices.Sort(out)
	return out
}

// Asserted returns the inputs currently high in ascending order
func (c *IRQController) Asserted() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for irq, level := range c.levels {
		if level {
			out = append(out, irq)
		}
	}
	slices.Sort(out)
	return out
}
