package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/shlex"

	"gpiosim/protocol"
)

// ErrCommand wraps a command_error reported by the board
var ErrCommand = errors.New("board rejected command")

// Host drives a remote board by command name
type Host struct {
	client *protocol.Client
	dict   *Dictionary
	log    *slog.Logger
	events func(Message)
}

// Dial starts a client on rw and downloads the board dictionary
func Dial(ctx context.Context, rw io.ReadWriteCloser, log *slog.Logger) (*Host, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Host{client: protocol.NewClient(rw, log), log: log}
	if err := h.identify(ctx); err != nil {
		h.client.Close()
		return nil, err
	}
	return h, nil
}

// Close shuts the link
func (h *Host) Close() error {
	return h.client.Close()
}

// Dictionary returns the downloaded dictionary
func (h *Host) Dictionary() *Dictionary {
	return h.dict
}

// OnEvent receives messages that arrive while waiting for another one
func (h *Host) OnEvent(fn func(Message)) {
	h.events = fn
}

func (h *Host) identify(ctx context.Context) error {
	var data []byte
	for {
		args := protocol.AppendUint(nil, uint32(len(data)))
		args = protocol.AppendUint(args, ChunkSize)
		if err := h.client.Send(ctx, IdentifyID, args); err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		resp, err := h.waitID(ctx, IdentifyResponseID)
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		r := resp.Args()
		offset, err := r.Uint()
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		chunk, err := r.Bytes()
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		if int(offset) != len(data) {
			return fmt.Errorf("identify: chunk at %d, expected %d", offset, len(data))
		}
		data = append(data, chunk...)
		if len(chunk) < ChunkSize {
			break
		}
	}
	d, err := ParseDictionary(data)
	if err != nil {
		return err
	}
	h.dict = d
	h.log.Debug("Identified board", "board", d.Config["BOARD"], "commands", len(d.Commands))
	return nil
}

func (h *Host) waitID(ctx context.Context, id uint32) (protocol.Response, error) {
	for {
		resp, err := h.client.Response(ctx)
		if err != nil {
			return resp, err
		}
		if resp.Cmd == id {
			return resp, nil
		}
	}
}

// Send encodes and sends a named command
func (h *Host) Send(ctx context.Context, name string, args map[string]string) error {
	c, ok := h.dict.Lookup(name)
	if !ok || c.Response {
		return fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	payload, err := EncodeText(c.Params, args)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h.client.Send(ctx, c.ID, payload)
}

// SendLine sends a command written as "name key=value ..."
func (h *Host) SendLine(ctx context.Context, line string) error {
	name, args, err := ParseLine(line)
	if err != nil {
		return err
	}
	return h.Send(ctx, name, args)
}

// ParseLine splits a command line into its name and arguments. Values may
// be quoted.
func ParseLine(line string) (string, map[string]string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return "", nil, fmt.Errorf("%q: %w", line, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command: %w", ErrBadFormat)
	}
	args := make(map[string]string, len(words)-1)
	for _, w := range words[1:] {
		k, v, ok := strings.Cut(w, "=")
		if !ok {
			return "", nil, fmt.Errorf("%q is not key=value: %w", w, ErrBadFormat)
		}
		args[k] = v
	}
	return words[0], args, nil
}

// Next returns the next message from the board
func (h *Host) Next(ctx context.Context) (Message, error) {
	resp, err := h.client.Response(ctx)
	if err != nil {
		return Message{}, err
	}
	return h.dict.Message(resp.Cmd, resp.Args())
}

// Wait returns the next message called name. Other messages go to the
// event callback; a command_error ends the wait.
func (h *Host) Wait(ctx context.Context, name string) (Message, error) {
	for {
		m, err := h.Next(ctx)
		if err != nil {
			return Message{}, err
		}
		switch m.Name {
		case name:
			return m, nil
		case "command_error":
			text, _ := m.Text("message")
			return m, fmt.Errorf("%w: %s", ErrCommand, text)
		}
		if h.events != nil {
			h.events(m)
		}
	}
}

// Query sends a command and waits for the named reply
func (h *Host) Query(ctx context.Context, line, reply string) (Message, error) {
	if err := h.SendLine(ctx, line); err != nil {
		return Message{}, err
	}
	return h.Wait(ctx, reply)
}
