package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"gpiosim/board"
	"gpiosim/core"
	"gpiosim/protocol"
)

// Fixed ids so a host can identify before it knows anything else
const (
	IdentifyResponseID = 0
	IdentifyID         = 1
)

// ChunkSize is the dictionary slice returned per identify request
const ChunkSize = 40

// Server serves one board over a link
type Server struct {
	board *board.Board
	reg   *Registry
	ep    *protocol.Endpoint
	log   *slog.Logger
	dict  []byte

	identifyResp uint32
	busValue     uint32
	i2cValue     uint32
	pinState     uint32
	lineState    uint32
	commandError uint32
}

// NewServer registers the board commands and prepares the dictionary
func NewServer(b *board.Board, rw io.ReadWriter, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{board: b, reg: NewRegistry(), log: log.With("component", "remote")}
	s.register()

	config := map[string]string{
		"BOARD": b.Name,
		"PORTS": strings.Join(portNames(b), ","),
	}
	dict, err := NewDictionary(s.reg, config).Compress()
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	s.dict = dict

	s.ep = protocol.NewEndpoint(rw, s.dispatch, log)
	s.ep.OnReset(func() { s.log.Info("Host reconnected") })
	b.IRQ.OnChange(s.sendLine)
	return s, nil
}

func portNames(b *board.Board) []string {
	var names []string
	for _, p := range b.Ports() {
		names = append(names, p.Name())
	}
	return names
}

// Registry returns the command registry
func (s *Server) Registry() *Registry {
	return s.reg
}

// Serve handles the link until ctx ends
func (s *Server) Serve(ctx context.Context) error {
	return s.ep.Serve(ctx)
}

func (s *Server) register() {
	r := s.reg
	s.identifyResp = r.MustRegister("identify_response", "offset=%u data=%.*s", nil)
	r.MustRegister("identify", "offset=%u count=%c", s.identify)
	s.commandError = r.MustRegister("command_error", "cmd=%u message=%s", nil)
	s.busValue = r.MustRegister("bus_value", "addr=%u value=%u", nil)
	s.i2cValue = r.MustRegister("i2c_value", "addr=%hu data=%*s", nil)
	s.pinState = r.MustRegister("pin_state", "port=%s pin=%u level=%c driven=%c direction=%c pending=%c", nil)
	s.lineState = r.MustRegister("line_state", "irq=%u level=%c raised=%u", nil)

	r.MustRegister("reset", "", s.reset)
	r.MustRegister("set_pin", "port=%s pin=%u level=%c", s.setPin)
	r.MustRegister("query_pin", "port=%s pin=%u", s.queryPin)
	r.MustRegister("bus_read", "addr=%u", s.busRead)
	r.MustRegister("bus_write", "addr=%u value=%u", s.busWrite)
	r.MustRegister("i2c_write", "addr=%hu data=%*s", s.i2cWrite)
	r.MustRegister("i2c_read", "addr=%hu reg=%*s count=%c", s.i2cRead)
	r.MustRegister("query_lines", "", s.queryLines)
}

func (s *Server) dispatch(cmd uint32, args *protocol.Reader) error {
	err := s.reg.Dispatch(cmd, args)
	if err != nil {
		msg := protocol.AppendUint(nil, cmd)
		msg = protocol.AppendString(msg, truncate(err.Error(), protocol.PayloadMax-8))
		if sendErr := s.ep.Send(s.commandError, msg); sendErr != nil {
			s.log.Warn("Failed to report command error", "error", sendErr)
		}
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (s *Server) identify(args *protocol.Reader) error {
	offset, err := args.Uint()
	if err != nil {
		return err
	}
	count, err := args.Uint()
	if err != nil {
		return err
	}
	count = min(count, ChunkSize)
	var chunk []byte
	if int(offset) < len(s.dict) {
		chunk = s.dict[offset:min(int(offset+count), len(s.dict))]
	}
	msg := protocol.AppendUint(nil, offset)
	return s.ep.Send(s.identifyResp, protocol.AppendBytes(msg, chunk))
}

func (s *Server) reset(*protocol.Reader) error {
	s.board.Reset()
	return nil
}

func (s *Server) pinRef(args *protocol.Reader) (string, error) {
	port, err := args.String()
	if err != nil {
		return "", err
	}
	pin, err := args.Uint()
	if err != nil {
		return "", err
	}
	return port + ":" + strconv.Itoa(int(pin)), nil
}

func (s *Server) setPin(args *protocol.Reader) error {
	ref, err := s.pinRef(args)
	if err != nil {
		return err
	}
	level, err := args.Bool()
	if err != nil {
		return err
	}
	return s.board.SetPin(ref, level)
}

func (s *Server) queryPin(args *protocol.Reader) error {
	ref, err := s.pinRef(args)
	if err != nil {
		return err
	}
	r, err := board.ParsePinRef(ref)
	if err != nil {
		return err
	}
	p, ok := s.board.Port(r.Port)
	if !ok || r.Pin >= p.Len() {
		return fmt.Errorf("no pin %s: %w", ref, board.ErrInvalidBoard)
	}
	info := p.Snapshot()[r.Pin]

	msg := protocol.AppendString(nil, r.Port)
	msg = protocol.AppendUint(msg, uint32(r.Pin))
	msg = protocol.AppendBool(msg, info.Level)
	msg = protocol.AppendBool(msg, info.Driven)
	msg = protocol.AppendUint(msg, uint32(info.Direction))
	msg = protocol.AppendBool(msg, info.Pending)
	return s.ep.Send(s.pinState, msg)
}

func (s *Server) busRead(args *protocol.Reader) error {
	addr, err := args.Uint()
	if err != nil {
		return err
	}
	v, err := s.board.Bus.Read(addr)
	if err != nil {
		return err
	}
	msg := protocol.AppendUint(nil, addr)
	return s.ep.Send(s.busValue, protocol.AppendUint(msg, v))
}

func (s *Server) busWrite(args *protocol.Reader) error {
	addr, err := args.Uint()
	if err != nil {
		return err
	}
	v, err := args.Uint()
	if err != nil {
		return err
	}
	return s.board.Bus.Write(addr, v)
}

func (s *Server) i2cWrite(args *protocol.Reader) error {
	addr, err := args.Uint()
	if err != nil {
		return err
	}
	data, err := args.Bytes()
	if err != nil {
		return err
	}
	return s.board.I2C.Tx(uint16(addr), data, nil)
}

func (s *Server) i2cRead(args *protocol.Reader) error {
	addr, err := args.Uint()
	if err != nil {
		return err
	}
	reg, err := args.Bytes()
	if err != nil {
		return err
	}
	count, err := args.Uint()
	if err != nil {
		return err
	}
	buf := make([]byte, min(count, ChunkSize))
	if err := s.board.I2C.Tx(uint16(addr), reg, buf); err != nil {
		return err
	}
	msg := protocol.AppendUint(nil, addr)
	return s.ep.Send(s.i2cValue, protocol.AppendBytes(msg, buf))
}

func (s *Server) queryLines(*protocol.Reader) error {
	for _, irq := range s.board.IRQ.Inputs() {
		if err := s.sendLineState(irq, s.board.IRQ.Level(irq)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) sendLine(irq int, level bool) {
	if err := s.sendLineState(irq, level); err != nil {
		s.log.Warn("Failed to report line", "irq", irq, "error", err)
	}
}

func (s *Server) sendLineState(irq int, level bool) error {
	msg := protocol.AppendUint(nil, uint32(irq))
	msg = protocol.AppendBool(msg, level)
	msg = protocol.AppendUint(msg, uint32(s.board.IRQ.Raised(irq)))
	return s.ep.Send(s.lineState, msg)
}

// DirectionName maps the pin_state direction code back to its name
func DirectionName(code uint32) string {
	return core.Direction(code).String()
}
