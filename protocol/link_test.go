package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func startEndpoint(t *testing.T, handler Handler) (*Endpoint, *Client) {
	t.Helper()
	board, host := net.Pipe()
	ep := NewEndpoint(board, handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ep.Serve(ctx) }()
	c := NewClient(host, nil)
	t.Cleanup(func() {
		cancel()
		<-served
		c.Close()
	})
	return ep, c
}

func TestLinkCommandAndResponse(t *testing.T) {
	var ep *Endpoint
	ep, c := startEndpoint(t, func(cmd uint32, args *Reader) error {
		v, err := args.Uint()
		if err != nil {
			return err
		}
		return ep.Send(cmd+100, AppendUint(nil, v*2))
	})

	// More commands than sequence numbers so the counter wraps.
	for i := uint32(0); i < 20; i++ {
		if err := c.Send(context.Background(), 1, AppendUint(nil, i)); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := c.Response(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Response %d failed: %v", i, err)
		}
		if resp.Cmd != 101 {
			t.Errorf("Expected response 101, got %d", resp.Cmd)
		}
		if v, _ := resp.Args().Uint(); v != 2*i {
			t.Errorf("Expected %d, got %d", 2*i, v)
		}
	}
}

func TestLinkResendsAfterBoardRestart(t *testing.T) {
	var calls atomic.Int32
	ep, c := startEndpoint(t, func(cmd uint32, args *Reader) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := c.Send(context.Background(), 2, nil); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	ep.next.Store(SeqBase)

	if err := c.Send(context.Background(), 2, nil); err != nil {
		t.Fatalf("Expected resend to succeed, got %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("Expected 4 dispatched commands, got %d", calls.Load())
	}
	if ep.Expected() != 0x11 {
		t.Errorf("Expected board to expect 0x11, got %#x", ep.Expected())
	}
}

func TestLinkTimeout(t *testing.T) {
	board, host := net.Pipe()
	go io.Copy(io.Discard, board)
	c := NewClient(host, nil)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, 1, nil); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestLinkClosed(t *testing.T) {
	board, host := net.Pipe()
	c := NewClient(host, nil)
	board.Close()

	if err := c.Send(context.Background(), 1, nil); err == nil {
		t.Errorf("Expected error on closed link, got nil")
	}
	c.Close()
}

func TestEndpointSequencing(t *testing.T) {
	var out bytes.Buffer
	var got []uint32
	ep := NewEndpoint(&out, func(cmd uint32, args *Reader) error {
		got = append(got, cmd)
		return nil
	}, nil)
	resets := 0
	ep.OnReset(func() { resets++ })

	lastAck := func() uint8 {
		s := NewScanner(8 * FrameMax)
		s.Feed(out.Bytes())
		out.Reset()
		var seq uint8
		for {
			f, ok := s.Next()
			if !ok {
				return seq
			}
			seq = f.Seq
		}
	}
	send := func(seq uint8, cmds ...uint32) {
		var payload []byte
		for _, c := range cmds {
			payload = AppendUint(payload, c)
		}
		frame, _ := Encode(seq, payload)
		ep.Receive(frame)
	}

	send(0x12, 9)
	if ack := lastAck(); ack != 0x10 || len(got) != 0 {
		t.Errorf("Expected nak 0x10 with nothing dispatched, got %#x %v", ack, got)
	}

	send(0x10, 1, 2)
	if ack := lastAck(); ack != 0x11 {
		t.Errorf("Expected ack 0x11, got %#x", ack)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected [1 2], got %v", got)
	}

	send(0x11, 3)
	send(0x10, 4)
	if ack := lastAck(); ack != 0x11 {
		t.Errorf("Expected ack 0x11 after restart, got %#x", ack)
	}
	if resets != 1 {
		t.Errorf("Expected 1 reset, got %d", resets)
	}
	if len(got) != 4 {
		t.Errorf("Expected 4 commands, got %v", got)
	}
}
