// Package board assembles GPIO devices into an emulated board: register
// regions on a memory bus, I2C devices on an I2C bus, interrupt lines on an
// interrupt controller and pin-to-pin links between ports.
package board

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"tinygo.org/x/drivers"

	"gpiosim/core"
	"gpiosim/peripherals"
	_ "gpiosim/peripherals/armahb"
	_ "gpiosim/peripherals/mcp23017"
	_ "gpiosim/peripherals/nxp"
	_ "gpiosim/peripherals/quark"
	_ "gpiosim/peripherals/sam4s"
)

// PinRef names one pin of one port
type PinRef struct {
	Port string
	Pin  int
}

func (r PinRef) String() string {
	return r.Port + ":" + strconv.Itoa(r.Pin)
}

// ParsePinRef parses "port:pin"
func ParsePinRef(s string) (PinRef, error) {
	port, pin, ok := strings.Cut(s, ":")
	if !ok || port == "" {
		return PinRef{}, fmt.Errorf("pin %q: want port:pin: %w", s, ErrInvalidBoard)
	}
	n, err := strconv.Atoi(pin)
	if err != nil || n < 0 {
		return PinRef{}, fmt.Errorf("pin %q: bad index: %w", s, ErrInvalidBoard)
	}
	return PinRef{Port: port, Pin: n}, nil
}

// Link is a resolved pin-to-pin connection
type Link struct {
	From PinRef
	To   PinRef
}

// Board is a built description
type Board struct {
	Name string
	Bus  *Bus
	I2C  *I2CBus
	IRQ  *IRQController

	devices []peripherals.Device
	ports   map[string]*core.Port
	links   []Link
	order   []string // ports in link propagation order
	log     *slog.Logger
}

// Build instantiates every device of desc and wires buses, interrupt lines
// and links
func Build(desc Description, log *slog.Logger) (*Board, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		Name:  desc.Name,
		Bus:   NewBus(),
		I2C:   NewI2CBus(),
		IRQ:   NewIRQController(log),
		ports: map[string]*core.Port{},
		log:   log.With("board", desc.Name),
	}

	for _, spec := range desc.Devices {
		if err := b.addDevice(spec); err != nil {
			return nil, err
		}
	}
	if err := b.wireLinks(desc.Links); err != nil {
		return nil, err
	}
	b.Settle()
	return b, nil
}

func (b *Board) addDevice(spec DeviceSpec) error {
	dev, err := peripherals.New(spec.Family, peripherals.Config{
		Name:       spec.Name,
		Pins:       spec.Pins,
		Address:    spec.Address,
		Attributes: spec.Attributes,
		Logger:     b.log,
	})
	if err != nil {
		return fmt.Errorf("board %s: %w", b.Name, err)
	}

	for i, region := range dev.Regions() {
		base, ok := spec.Regions[region.Name]
		if !ok && i == 0 && spec.Base != 0 {
			base, ok = spec.Base, true
		}
		if !ok {
			b.log.Warn("region left unmapped", "device", spec.Name, "region", region.Name)
			continue
		}
		if err := b.Bus.Map(Mapping{Base: base, Device: spec.Name, Region: region.Name, Regs: region.Regs}); err != nil {
			return fmt.Errorf("board %s: %w", b.Name, err)
		}
	}
	if target, ok := dev.(drivers.I2C); ok {
		if err := b.I2C.Attach(addressOf(dev, spec.Address), target); err != nil {
			return fmt.Errorf("board %s: %s: %w", b.Name, spec.Name, err)
		}
	}

	for _, p := range dev.Ports() {
		if _, dup := b.ports[p.Name()]; dup {
			return fmt.Errorf("board %s: duplicate port %q: %w", b.Name, p.Name(), ErrInvalidBoard)
		}
		b.ports[p.Name()] = p
	}
	for i, line := range dev.Lines() {
		b.IRQ.Attach(spec.IRQ+i, line)
	}
	b.devices = append(b.devices, dev)
	return nil
}

// addressOf returns the address the device settled on, which may be its
// default when the board left it unset
func addressOf(dev peripherals.Device, configured uint16) uint16 {
	if a, ok := dev.(interface{ Address() uint16 }); ok {
		return a.Address()
	}
	return configured
}

// wireLinks resolves links, rejects cycles between ports and installs one
// connection per driving port
func (b *Board) wireLinks(specs []LinkSpec) error {
	g := simple.NewDirectedGraph()
	ids := map[string]int64{}
	names := b.portNames()
	for i, name := range names {
		ids[name] = int64(i)
		g.AddNode(simple.Node(i))
	}

	driven := map[PinRef]PinRef{}
	fanout := map[string][]Link{}
	for _, s := range specs {
		from, err := b.resolve(s.From)
		if err != nil {
			return err
		}
		to, err := b.resolve(s.To)
		if err != nil {
			return err
		}
		if prev, ok := driven[to]; ok {
			return fmt.Errorf("board %s: %s driven by both %s and %s: %w", b.Name, to, prev, from, ErrInvalidBoard)
		}
		if from.Port == to.Port {
			return fmt.Errorf("board %s: link %s -> %s loops back into its port: %w", b.Name, from, to, ErrInvalidBoard)
		}
		driven[to] = from
		link := Link{From: from, To: to}
		b.links = append(b.links, link)
		fanout[from.Port] = append(fanout[from.Port], link)
		g.SetEdge(g.NewEdge(g.Node(ids[from.Port]), g.Node(ids[to.Port])))
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		return fmt.Errorf("board %s: port links form a cycle: %w", b.Name, ErrInvalidBoard)
	}
	for _, n := range sorted {
		b.order = append(b.order, names[n.ID()])
	}

	for name, links := range fanout {
		b.ports[name].Connect(func(pin int, level bool) {
			for _, l := range links {
				if l.From.Pin == pin {
					b.propagate(l, level)
				}
			}
		})
	}
	return nil
}

func (b *Board) resolve(ref string) (PinRef, error) {
	r, err := ParsePinRef(ref)
	if err != nil {
		return PinRef{}, err
	}
	p, ok := b.ports[r.Port]
	if !ok {
		return PinRef{}, fmt.Errorf("board %s: unknown port %q: %w", b.Name, r.Port, ErrInvalidBoard)
	}
	if r.Pin >= p.Len() {
		return PinRef{}, fmt.Errorf("board %s: %s beyond %d pins: %w", b.Name, r, p.Len(), ErrInvalidBoard)
	}
	return r, nil
}

// portNames returns the port names in ascending order
func (b *Board) portNames() []string {
	names := make([]string, 0, len(b.ports))
	for name := range b.ports {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Settle pushes every driven output level across its links, upstream
// ports first
func (b *Board) Settle() {
	for _, name := range b.order {
		info := b.ports[name].Snapshot()
		for _, l := range b.links {
			if l.From.Port != name {
				continue
			}
			src := info[l.From.Pin]
			if src.Direction == core.Input {
				continue
			}
			b.propagate(l, src.Driven)
		}
	}
}

// propagate delivers level across one link
func (b *Board) propagate(l Link, level bool) {
	if err := b.ports[l.To.Port].OnExternalPinChange(l.To.Pin, level); err != nil {
		b.log.Warn("link propagation failed", "from", l.From.String(), "to", l.To.String(), "level", level, "error", err)
	}
}

// Devices returns the devices in description order
func (b *Board) Devices() []peripherals.Device {
	return slices.Clone(b.devices)
}

// Device returns the device called name
func (b *Board) Device(name string) (peripherals.Device, bool) {
	i := slices.IndexFunc(b.devices, func(d peripherals.Device) bool { return d.Name() == name })
	if i < 0 {
		return nil, false
	}
	return b.devices[i], true
}

// Port returns the port called name
func (b *Board) Port(name string) (*core.Port, bool) {
	p, ok := b.ports[name]
	return p, ok
}

// Ports returns every port sorted by name
func (b *Board) Ports() []*core.Port {
	out := make([]*core.Port, 0, len(b.ports))
	for _, name := range b.portNames() {
		out = append(out, b.ports[name])
	}
	return out
}

// Links returns the resolved links in description order
func (b *Board) Links() []Link {
	return slices.Clone(b.links)
}

// SetPin drives an external level onto a pin given as "port:pin"
func (b *Board) SetPin(ref string, level bool) error {
	r, err := b.resolve(ref)
	if err != nil {
		return err
	}
	return b.ports[r.Port].OnExternalPinChange(r.Pin, level)
}

// Reset resets every device, then re-settles the links
func (b *Board) Reset() {
	for _, d := range b.devices {
		d.Reset()
	}
	b.Settle()
}
