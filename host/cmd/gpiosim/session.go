package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/shlex"

	"gpiosim/board"
	"gpiosim/trace"
)

var errQuit = errors.New("quit")

// session runs console commands against a local board
type session struct {
	board *board.Board
	rec   *trace.Recorder
	out   io.Writer
}

func newSession(b *board.Board, out io.Writer) *session {
	rec := trace.NewRecorder(0)
	rec.Attach(b.Ports()...)
	return &session{board: b, rec: rec, out: out}
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

func parseLevel(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "high", "h", "on":
		return true, nil
	case "0", "low", "l", "off":
		return false, nil
	}
	return false, fmt.Errorf("bad level %q", s)
}

// exec runs one command line
func (s *session) exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(words) == 0 || strings.HasPrefix(words[0], "#") {
		return nil
	}
	cmd, args := words[0], words[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s needs %d arguments, see help", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		s.help()

	case "set":
		if err := need(2); err != nil {
			return err
		}
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		return s.board.SetPin(args[0], level)

	case "read":
		if err := need(1); err != nil {
			return err
		}
		addr, err := parseUint(args[0], 32)
		if err != nil {
			return err
		}
		v, err := s.board.Bus.Read(uint32(addr))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%#08x: %#08x\n", addr, v)

	case "write":
		if err := need(2); err != nil {
			return err
		}
		addr, err := parseUint(args[0], 32)
		if err != nil {
			return err
		}
		v, err := parseUint(args[1], 32)
		if err != nil {
			return err
		}
		return s.board.Bus.Write(uint32(addr), uint32(v))

	case "i2c":
		return s.i2c(args)

	case "pins":
		if err := need(1); err != nil {
			return err
		}
		return s.pins(args[0])

	case "lines":
		s.lines()

	case "reset":
		s.board.Reset()

	case "trace":
		return s.trace(args)

	default:
		return fmt.Errorf("unknown command %q, see help", cmd)
	}
	return nil
}

func (s *session) help() {
	fmt.Fprint(s.out, `Commands:
  set PORT:PIN LEVEL        drive an external level onto a pin
  read ADDR                 read a mapped register
  write ADDR VALUE          write a mapped register
  i2c ADDR HEX [COUNT]      write HEX to an I2C device, then read COUNT bytes
  pins PORT                 show every pin of a port
  lines                     show the interrupt controller inputs
  reset                     reset every device
  trace png|vcd FILE        save the recorded waveform
  trace clear               forget the recorded waveform
  quit                      leave
`)
}

func (s *session) i2c(args []string) error {
	if len(args) < 2 {
		return errors.New("i2c needs an address and data")
	}
	addr, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	w, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
	if err != nil {
		return fmt.Errorf("bad data %q", args[1])
	}
	var r []byte
	if len(args) > 2 {
		n, err := parseUint(args[2], 8)
		if err != nil {
			return err
		}
		r = make([]byte, n)
	}
	if err := s.board.I2C.Tx(uint16(addr), w, r); err != nil {
		return err
	}
	if len(r) > 0 {
		fmt.Fprintf(s.out, "%#02x: % x\n", addr, r)
	}
	return nil
}

func (s *session) pins(name string) error {
	p, ok := s.board.Port(name)
	if !ok {
		return fmt.Errorf("no port %q", name)
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIN\tDIR\tLEVEL\tDRIVEN\tTRIGGER\tEN\tMASK\tPEND\tLINE")
	for _, info := range p.Snapshot() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%d\t%d\t%d\t%s\n",
			info.Index, info.Direction, bit(info.Level), bit(info.Driven), info.Trigger,
			bit(info.Enabled), bit(info.Masked), bit(info.Pending), info.Line)
	}
	return tw.Flush()
}

func (s *session) lines() {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IRQ\tLEVEL\tRAISED\tLINE")
	irq := s.board.IRQ
	for _, n := range irq.Inputs() {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", n, bit(irq.Level(n)), irq.Raised(n), irq.Name(n))
	}
	tw.Flush()
}

func (s *session) trace(args []string) error {
	if len(args) == 1 && args[0] == "clear" {
		s.rec.Clear()
		return nil
	}
	if len(args) != 2 {
		return errors.New("trace needs png|vcd and a file name")
	}
	return writeTrace(s.rec.Samples(), args[0], args[1], s.board.Name)
}

func writeTrace(samples []trace.Sample, format, path, scope string) error {
	if format != "png" && format != "vcd" {
		return fmt.Errorf("unknown trace format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if format == "png" {
		err = trace.WritePNG(f, samples, trace.DefaultStyle)
	} else {
		err = trace.WriteVCD(f, samples, scope)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
