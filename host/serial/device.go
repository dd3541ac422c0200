package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

type devicePort struct {
	port    *serial.Port
	timeout bool
}

func openDevice(cfg Config) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &devicePort{port: port, timeout: cfg.ReadTimeout > 0}, nil
}

// Read reports an expired read timeout as zero bytes rather than EOF
func (p *devicePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if p.timeout && n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *devicePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *devicePort) Close() error {
	return p.port.Close()
}

func (p *devicePort) Flush() error {
	return p.port.Flush()
}
