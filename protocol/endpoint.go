package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler runs one command. It must consume exactly the command's
// arguments from args; further commands in the same payload follow them.
type Handler func(cmd uint32, args *Reader) error

// Endpoint is the board side of a link. It acknowledges every frame it
// receives and dispatches in-sequence payloads to its handler.
type Endpoint struct {
	rw      io.ReadWriter
	handler Handler
	log     *slog.Logger
	scan    *Scanner

	next    atomic.Uint32
	wmu     sync.Mutex
	onReset func()
}

// NewEndpoint serves handler over rw
func NewEndpoint(rw io.ReadWriter, handler Handler, log *slog.Logger) *Endpoint {
	if log == nil {
		log = slog.Default()
	}
	e := &Endpoint{
		rw:      rw,
		handler: handler,
		log:     log,
		scan:    NewScanner(4 * FrameMax),
	}
	e.next.Store(SeqBase)
	return e
}

// OnReset registers fn to run when the host restarts its sequence
func (e *Endpoint) OnReset(fn func()) {
	e.onReset = fn
}

// Expected returns the sequence of the next frame the endpoint accepts
func (e *Endpoint) Expected() uint8 {
	return uint8(e.next.Load())
}

// Serve reads from the link until ctx ends or the reader fails. If the
// link is an io.Closer it is closed when ctx ends.
func (e *Endpoint) Serve(ctx context.Context) error {
	if c, ok := e.rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}
	buf := make([]byte, 256)
	for {
		n, err := e.rw.Read(buf)
		if n > 0 {
			e.Receive(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("link read: %w", err)
		}
	}
}

// Receive processes bytes read from the link
func (e *Endpoint) Receive(data []byte) {
	for len(data) > 0 {
		n := e.scan.Feed(data)
		data = data[n:]
		for {
			f, ok := e.scan.Next()
			if !ok {
				break
			}
			e.accept(f)
		}
		if n == 0 {
			// Scanner is full of bytes that never form a frame.
			e.scan = NewScanner(4 * FrameMax)
		}
	}
}

func (e *Endpoint) accept(f Frame) {
	expected := e.Expected()
	if f.Seq == SeqBase && expected != SeqBase {
		e.log.Info("Host restarted link", "expected", expected)
		expected = SeqBase
		e.next.Store(SeqBase)
		if e.onReset != nil {
			e.onReset()
		}
	}
	if f.Seq == expected {
		e.next.Store(uint32(NextSeq(f.Seq)))
		if !f.IsAck() {
			e.dispatch(f.Payload)
		}
	} else {
		e.log.Debug("Out of sequence frame", "seq", f.Seq, "expected", expected)
	}
	if err := e.ack(); err != nil {
		e.log.Warn("Failed to acknowledge frame", "error", err)
	}
}

func (e *Endpoint) dispatch(payload []byte) {
	r := NewReader(payload)
	for r.Len() > 0 {
		cmd, err := r.Uint()
		if err != nil {
			e.log.Warn("Malformed command id", "error", err)
			return
		}
		if err := e.handler(cmd, r); err != nil {
			e.log.Warn("Command failed", "cmd", cmd, "error", err)
			return
		}
	}
}

func (e *Endpoint) ack() error {
	frame, _ := Encode(e.Expected(), nil)
	return e.write(frame)
}

// Send writes one unsolicited frame holding cmd and its encoded arguments
func (e *Endpoint) Send(cmd uint32, args []byte) error {
	payload := AppendUint(make([]byte, 0, PayloadMax), cmd)
	payload = append(payload, args...)
	frame, err := Encode(e.Expected(), payload)
	if err != nil {
		return err
	}
	return e.write(frame)
}

func (e *Endpoint) write(frame []byte) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	_, err := e.rw.Write(frame)
	return err
}
