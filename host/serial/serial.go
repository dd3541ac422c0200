// Package serial opens the byte links a simulated board is served over:
// real or virtual serial devices and TCP sockets.
package serial

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultBaud is used when no baud rate is configured
const DefaultBaud = 250000

// ErrNoTarget is returned by Open for an empty target
var ErrNoTarget = errors.New("no link target")

// Port is an open link
type Port interface {
	io.ReadWriteCloser
	// Flush discards unread input
	Flush() error
}

// Config selects a link. Device is a serial device path, or tcp://host:port
// for a socket.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultConfig returns a blocking configuration for device
func DefaultConfig(device string) Config {
	return Config{Device: device, Baud: DefaultBaud}
}

// Open opens the configured link
func Open(cfg Config) (Port, error) {
	switch {
	case cfg.Device == "":
		return nil, ErrNoTarget
	case strings.HasPrefix(cfg.Device, "tcp://"):
		addr := strings.TrimPrefix(cfg.Device, "tcp://")
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return &socketPort{Conn: conn}, nil
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	return openDevice(cfg)
}

// Listen accepts links on a TCP address, handing each to serve in turn.
// It returns when the listener fails.
func Listen(l net.Listener, serve func(Port) error) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		if err := serve(&socketPort{Conn: conn}); err != nil {
			conn.Close()
			return err
		}
		conn.Close()
	}
}

type socketPort struct {
	net.Conn
}

func (p *socketPort) Flush() error {
	return nil
}
