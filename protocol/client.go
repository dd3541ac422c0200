package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a Send whose context has no deadline
const DefaultTimeout = 2 * time.Second

// Retries is how often a negatively acknowledged frame is resent
const Retries = 2

// Response is a frame sent by the board that is not an acknowledgement
type Response struct {
	Cmd     uint32
	Payload []byte
}

// Args returns a reader over the response arguments
func (r Response) Args() *Reader {
	return NewReader(r.Payload)
}

// Client is the host side of a link
type Client struct {
	rw  io.ReadWriteCloser
	log *slog.Logger

	// mu serializes commands; only one awaits an acknowledgement at a time.
	mu  sync.Mutex
	seq uint8

	wmu       sync.Mutex
	acks      chan uint8
	responses chan Response

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewClient starts reading from rw
func NewClient(rw io.ReadWriteCloser, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		rw:        rw,
		log:       log,
		seq:       SeqBase,
		acks:      make(chan uint8, 4),
		responses: make(chan Response, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send transmits cmd with its encoded arguments and waits for the board
// to acknowledge it
func (c *Client) Send(ctx context.Context, cmd uint32, args []byte) error {
	payload := AppendUint(make([]byte, 0, PayloadMax), cmd)
	payload = append(payload, args...)
	if FrameMin+len(payload) > FrameMax {
		return fmt.Errorf("command %d: %w", cmd, ErrFrameTooLong)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainAcks()

	for attempt := 0; ; attempt++ {
		frame, _ := Encode(c.seq, payload)
		if err := c.write(frame); err != nil {
			return fmt.Errorf("command %d: %w", cmd, err)
		}
		got, err := c.waitAck(ctx)
		if err != nil {
			return fmt.Errorf("command %d: %w", cmd, err)
		}
		if got == NextSeq(c.seq) {
			c.seq = got
			return nil
		}
		if attempt == Retries {
			return fmt.Errorf("command %d: board expects sequence 0x%02x", cmd, got)
		}
		c.log.Debug("Resending after nak", "seq", c.seq, "expected", got)
		c.seq = got
	}
}

// Response waits for the next frame the board sent on its own
func (c *Client) Response(ctx context.Context) (Response, error) {
	select {
	case r := <-c.responses:
		return r, nil
	case <-ctx.Done():
		return Response{}, ErrTimeout
	case <-c.done:
		return Response{}, c.closedErr()
	}
}

// Close stops the reader and closes the link
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		err = c.rw.Close()
		<-c.done
	})
	return err
}

func (c *Client) waitAck(ctx context.Context) (uint8, error) {
	select {
	case seq := <-c.acks:
		return seq, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrTimeout
		}
		return 0, ctx.Err()
	case <-c.done:
		return 0, c.closedErr()
	}
}

func (c *Client) drainAcks() {
	for {
		select {
		case <-c.acks:
		default:
			return
		}
	}
}

func (c *Client) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Client) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.rw.Write(frame)
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	scan := NewScanner(4 * FrameMax)
	buf := make([]byte, 256)
	for {
		n, err := c.rw.Read(buf)
		for data := buf[:n]; len(data) > 0; {
			k := scan.Feed(data)
			data = data[k:]
			for {
				f, ok := scan.Next()
				if !ok {
					break
				}
				c.dispatch(f)
			}
			if k == 0 {
				scan = NewScanner(4 * FrameMax)
			}
		}
		if err != nil {
			select {
			case <-c.stop:
			default:
				if !errors.Is(err, io.EOF) {
					c.err = err
				}
			}
			return
		}
	}
}

func (c *Client) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case c.acks <- f.Seq:
		default:
			c.log.Debug("Dropped stray ack", "seq", f.Seq)
		}
		return
	}
	r := NewReader(f.Payload)
	cmd, err := r.Uint()
	if err != nil {
		c.log.Warn("Malformed response", "error", err)
		return
	}
	resp := Response{Cmd: cmd, Payload: f.Payload[len(f.Payload)-r.Len():]}
	select {
	case c.responses <- resp:
	default:
		// Oldest response is dropped when nobody reads them.
		select {
		case <-c.responses:
		default:
		}
		c.responses <- resp
	}
}
