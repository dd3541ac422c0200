// Peripheral models
// Device interface shared by every GPIO model and the family registry that
// boards instantiate them through
package peripherals

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/exp/slices"

	"gpiosim/core"
	"gpiosim/peripherals/regmap"
)

// ErrUnknownFamily is returned by New for unregistered families
var ErrUnknownFamily = errors.New("unknown peripheral family")

// Region is one memory-mapped register window of a device
type Region struct {
	Name string
	Regs *regmap.Map
}

// Device is an emulated GPIO block
type Device interface {
	Name() string
	Family() string
	// Regions returns the register windows in the order the board maps them
	Regions() []Region
	// Ports returns the pin ports external signals are delivered to
	Ports() []*core.Port
	// Lines returns the interrupt outputs
	Lines() []*core.Line
	Reset()
}

// Config carries instance parameters to a family factory
type Config struct {
	Name       string
	Pins       int // 0 selects the family default
	Address    uint16
	Attributes map[string]string
	Logger     *slog.Logger
}

// Bool returns attribute key parsed as a bool, or def
func (c Config) Bool(key string, def bool) bool {
	v, ok := c.Attributes[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.log().Warn("bad bool attribute", "key", key, "value", v)
		return def
	}
	return b
}

// Uint returns attribute key parsed as an unsigned integer (any base), or def
func (c Config) Uint(key string, def uint64) uint64 {
	v, ok := c.Attributes[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		c.log().Warn("bad integer attribute", "key", key, "value", v)
		return def
	}
	return n
}

// String returns attribute key, or def
func (c Config) String(key, def string) string {
	if v, ok := c.Attributes[key]; ok {
		return v
	}
	return def
}

// OutputPolicy returns the line policy named by the "output" attribute
func (c Config) OutputPolicy() core.OutputPolicy {
	switch v := c.String("output", "hold"); v {
	case "hold":
		return core.Hold
	case "pulse":
		return core.Pulse
	default:
		c.log().Warn("unknown output policy, using hold", "value", v)
		return core.Hold
	}
}

func (c Config) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Factory builds a device from its configuration
type Factory func(cfg Config) (Device, error)

// Registry maps family names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a family to the global registry. Model packages call it
// from init.
func Register(family string, f Factory) {
	globalRegistry.Register(family, f)
}

// New builds a device of family from the global registry
func New(family string, cfg Config) (Device, error) {
	return globalRegistry.New(family, cfg)
}

// Families lists the globally registered families in order
func Families() []string {
	return globalRegistry.Families()
}

// Register adds or replaces a family
func (r *Registry) Register(family string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[family] = f
}

// New builds a device of family
func (r *Registry) New(family string, cfg Config) (Device, error) {
	r.mu.RLock()
	f, ok := r.factories[family]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", family, ErrUnknownFamily)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dev, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s %q: %w", family, cfg.Name, err)
	}
	return dev, nil
}

// Families lists the registered families in order
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
