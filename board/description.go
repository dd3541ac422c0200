package board

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

//go:embed boards.yaml
var rawBoards []byte

var defaults Descriptions

var (
	ErrBoardNotFound = errors.New("board not found")
	ErrInvalidBoard  = errors.New("invalid board description")
)

// Descriptions is a list of boards as read from a board file
type Descriptions []Description

// Description is one emulated board: a set of GPIO devices, the links
// between their pins and where their interrupt lines land
type Description struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Devices     []DeviceSpec `yaml:"devices"`
	Links       []LinkSpec   `yaml:"links"`
}

// DeviceSpec places one device. Memory-mapped devices give Base for their
// first region or Regions by name; I2C devices give Address. Interrupt
// lines are numbered from IRQ in the order the device reports them.
type DeviceSpec struct {
	Name       string            `yaml:"name"`
	Family     string            `yaml:"family"`
	Pins       int               `yaml:"pins"`
	Base       uint32            `yaml:"base"`
	Regions    map[string]uint32 `yaml:"regions"`
	Address    uint16            `yaml:"address"`
	IRQ        int               `yaml:"irq"`
	Attributes map[string]string `yaml:"attributes"`
}

// LinkSpec wires an output pin to an input pin. Pins are written
// "port:pin" using the port names the devices report.
type LinkSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Defaults returns the boards shipped with the simulator
func Defaults() Descriptions {
	return defaults
}

// Names lists the board names in file order
func (d Descriptions) Names() []string {
	out := make([]string, len(d))
	for i, b := range d {
		out[i] = b.Name
	}
	return out
}

// Find returns the board called name
func (d Descriptions) Find(name string) (Description, error) {
	i := slices.IndexFunc(d, func(b Description) bool {
		return strings.EqualFold(b.Name, name)
	})
	if i < 0 {
		return Description{}, fmt.Errorf("%q: %w", name, ErrBoardNotFound)
	}
	return d[i], nil
}

// Parse decodes a board file and fills in defaults
func Parse(data []byte) (Descriptions, error) {
	var f struct {
		Boards Descriptions `yaml:"boards"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse boards: %w", err)
	}
	for i := range f.Boards {
		applyDefaults(&f.Boards[i])
		if err := f.Boards[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Boards, nil
}

// LoadFile reads a board file from disk
func LoadFile(path string) (Descriptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// applyDefaults names unnamed boards and devices
func applyDefaults(b *Description) {
	if b.Name == "" {
		b.Name = "board"
	}
	seen := map[string]int{}
	for i := range b.Devices {
		d := &b.Devices[i]
		if d.Name == "" {
			d.Name = fmt.Sprintf("%s%d", d.Family, seen[d.Family])
		}
		seen[d.Family]++
		if d.Attributes == nil {
			d.Attributes = map[string]string{}
		}
	}
}

// Validate checks names and link syntax. Family names are checked when the
// board is built.
func (b Description) Validate() error {
	var names []string
	for _, d := range b.Devices {
		if d.Family == "" {
			return fmt.Errorf("board %s: device %q has no family: %w", b.Name, d.Name, ErrInvalidBoard)
		}
		if slices.Contains(names, d.Name) {
			return fmt.Errorf("board %s: duplicate device %q: %w", b.Name, d.Name, ErrInvalidBoard)
		}
		names = append(names, d.Name)
	}
	for _, l := range b.Links {
		for _, ref := range []string{l.From, l.To} {
			if _, err := ParsePinRef(ref); err != nil {
				return fmt.Errorf("board %s: %w", b.Name, err)
			}
		}
	}
	return nil
}

func init() {
	d, err := Parse(rawBoards)
	if err != nil {
		panic(err)
	}
	defaults = d
}
