// Package remote exposes a simulated board over a protocol link. The board
// side registers named commands and serves a compressed dictionary of them;
// the host side downloads that dictionary and sends commands by name.
package remote

import (
	"errors"
	"fmt"
	"sync"

	"gpiosim/protocol"
)

// ErrUnknownCommand is returned when dispatching an unregistered id
var ErrUnknownCommand = errors.New("unknown command")

// Handler runs a command, reading its arguments from args
type Handler func(args *protocol.Reader) error

// Command is a registered command or response
type Command struct {
	ID       uint32
	Name     string
	Format   string
	Params   []Param
	Handler  Handler
	Response bool
}

// Signature returns the name and format as one string
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// Registry assigns ids to commands and responses in registration order
type Registry struct {
	mu       sync.RWMutex
	commands map[uint32]*Command
	byName   map[string]uint32
	nextID   uint32
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[uint32]*Command),
		byName:   make(map[string]uint32),
	}
}

// Register adds a command. Registering a name twice returns the first id.
func (r *Registry) Register(name, format string, h Handler) (uint32, error) {
	params, err := ParseFormat(format)
	if err != nil {
		return 0, fmt.Errorf("command %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id, nil
	}
	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{ID: id, Name: name, Format: format, Params: params, Handler: h, Response: h == nil}
	r.byName[name] = id
	return id, nil
}

// MustRegister is Register for formats known to be valid
func (r *Registry) MustRegister(name, format string, h Handler) uint32 {
	id, err := r.Register(name, format, h)
	if err != nil {
		panic(err)
	}
	return id
}

// RegisterResponse adds a message the board sends to the host
func (r *Registry) RegisterResponse(name, format string) (uint32, error) {
	return r.Register(name, format, nil)
}

// Command returns the command with the given id
func (r *Registry) Command(id uint32) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[id]
	return c, ok
}

// Lookup returns the command called name
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered entries
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler registered for id
func (r *Registry) Dispatch(id uint32, args *protocol.Reader) error {
	c, ok := r.Command(id)
	if !ok || c.Response {
		return fmt.Errorf("id %d: %w", id, ErrUnknownCommand)
	}
	return c.Handler(args)
}

// Split returns the command and response signatures keyed to their ids
func (r *Registry) Split() (commands, responses map[string]uint32) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	commands = make(map[string]uint32)
	responses = make(map[string]uint32)
	for id, c := range r.commands {
		if !c.Response {
			commands[c.Signature()] = id
		} else {
			responses[c.Signature()] = id
		}
	}
	return commands, responses
}
