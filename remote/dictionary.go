package remote

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gpiosim/protocol"
)

// Version identifies the dictionary layout
const Version = "gpiosim-1"

// Dictionary describes every message a board understands or sends
type Dictionary struct {
	Version   string            `json:"version"`
	Config    map[string]string `json:"config"`
	Commands  map[string]uint32 `json:"commands"`
	Responses map[string]uint32 `json:"responses"`

	byName map[string]*Command
	byID   map[uint32]*Command
}

// NewDictionary snapshots the registry together with board constants
func NewDictionary(r *Registry, config map[string]string) *Dictionary {
	commands, responses := r.Split()
	d := &Dictionary{
		Version:   Version,
		Config:    config,
		Commands:  commands,
		Responses: responses,
	}
	d.index()
	return d
}

// Compress returns the zlib compressed JSON form sent to hosts
func (d *Dictionary) Compress() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseDictionary decodes the output of Compress
func ParseDictionary(data []byte) (*Dictionary, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	d := &Dictionary{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	if err := d.index(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) index() error {
	d.byName = make(map[string]*Command)
	d.byID = make(map[uint32]*Command)
	add := func(sig string, id uint32, response bool) error {
		name, format, _ := strings.Cut(sig, " ")
		params, err := ParseFormat(format)
		if err != nil {
			return fmt.Errorf("dictionary entry %q: %w", sig, err)
		}
		c := &Command{ID: id, Name: name, Format: format, Params: params, Response: response}
		d.byName[name] = c
		d.byID[id] = c
		return nil
	}
	for sig, id := range d.Commands {
		if err := add(sig, id, false); err != nil {
			return err
		}
	}
	for sig, id := range d.Responses {
		if err := add(sig, id, true); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the entry called name
func (d *Dictionary) Lookup(name string) (*Command, bool) {
	c, ok := d.byName[name]
	return c, ok
}

// Message decodes a payload received for id
func (d *Dictionary) Message(id uint32, args *protocol.Reader) (Message, error) {
	c, ok := d.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("id %d: %w", id, ErrUnknownCommand)
	}
	values, err := Decode(c.Params, args)
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", c.Name, err)
	}
	return Message{Name: c.Name, Params: c.Params, Values: values}, nil
}

// Names returns the command names in id order
func (d *Dictionary) Names() []string {
	names := make([]string, 0, len(d.Commands))
	for id := uint32(0); id < uint32(len(d.byID)); id++ {
		if c, ok := d.byID[id]; ok && !c.Response {
			names = append(names, c.Name)
		}
	}
	return names
}
