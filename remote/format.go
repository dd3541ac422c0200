package remote

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gpiosim/protocol"
)

// ErrBadFormat is returned for format strings and arguments that do not
// match
var ErrBadFormat = errors.New("bad message format")

// Kind is the wire type of one parameter
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindByte
	KindUint16
	KindString
	KindBytes
)

var kindVerbs = map[string]Kind{
	"%u":   KindUint,
	"%i":   KindInt,
	"%c":   KindByte,
	"%hu":  KindUint16,
	"%s":   KindString,
	"%*s":  KindBytes,
	"%.*s": KindBytes,
}

// Param is one named parameter of a message
type Param struct {
	Name string
	Kind Kind
}

// ParseFormat splits a format such as "addr=%u value=%u" into its
// parameters
func ParseFormat(format string) ([]Param, error) {
	var params []Param
	for _, field := range strings.Fields(format) {
		name, verb, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%q: %w", field, ErrBadFormat)
		}
		kind, ok := kindVerbs[verb]
		if !ok {
			return nil, fmt.Errorf("%q: unknown verb %q: %w", name, verb, ErrBadFormat)
		}
		params = append(params, Param{Name: name, Kind: kind})
	}
	return params, nil
}

// EncodeText encodes textual name=value arguments in parameter order.
// Numbers accept Go literal syntax and byte strings are hex.
func EncodeText(params []Param, args map[string]string) ([]byte, error) {
	var out []byte
	for _, p := range params {
		v, ok := args[p.Name]
		if !ok {
			return nil, fmt.Errorf("missing %s: %w", p.Name, ErrBadFormat)
		}
		var err error
		out, err = appendText(out, p, v)
		if err != nil {
			return nil, err
		}
	}
	for name := range args {
		if !hasParam(params, name) {
			return nil, fmt.Errorf("unexpected %s: %w", name, ErrBadFormat)
		}
	}
	return out, nil
}

func hasParam(params []Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func appendText(out []byte, p Param, v string) ([]byte, error) {
	bad := func(err error) error {
		return fmt.Errorf("%s=%s: %v: %w", p.Name, v, err, ErrBadFormat)
	}
	switch p.Kind {
	case KindInt:
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return nil, bad(err)
		}
		return protocol.AppendInt(out, int32(n)), nil
	case KindString:
		return protocol.AppendString(out, v), nil
	case KindBytes:
		b, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, bad(err)
		}
		return protocol.AppendBytes(out, b), nil
	}
	bits := 32
	switch p.Kind {
	case KindByte:
		bits = 8
	case KindUint16:
		bits = 16
	}
	n, err := strconv.ParseUint(v, 0, bits)
	if err != nil {
		return nil, bad(err)
	}
	return protocol.AppendUint(out, uint32(n)), nil
}

// Decode reads one value per parameter. Numbers decode to uint32 or
// int32, strings to string and byte strings to []byte.
func Decode(params []Param, r *protocol.Reader) ([]any, error) {
	out := make([]any, 0, len(params))
	for _, p := range params {
		var (
			v   any
			err error
		)
		switch p.Kind {
		case KindInt:
			v, err = r.Int()
		case KindString:
			v, err = r.String()
		case KindBytes:
			var b []byte
			b, err = r.Bytes()
			v = append([]byte(nil), b...)
		default:
			v, err = r.Uint()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Message is a decoded message
type Message struct {
	Name   string
	Params []Param
	Values []any
}

// Uint returns the named numeric value
func (m Message) Uint(name string) (uint32, bool) {
	for i, p := range m.Params {
		if p.Name == name {
			v, ok := m.Values[i].(uint32)
			return v, ok
		}
	}
	return 0, false
}

// Text returns the named string or byte string value
func (m Message) Text(name string) (string, bool) {
	for i, p := range m.Params {
		if p.Name != name {
			continue
		}
		switch v := m.Values[i].(type) {
		case string:
			return v, true
		case []byte:
			return string(v), true
		}
	}
	return "", false
}

func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	for i, p := range m.Params {
		fmt.Fprintf(&sb, " %s=", p.Name)
		switch v := m.Values[i].(type) {
		case []byte:
			sb.WriteString(hex.EncodeToString(v))
		case string:
			sb.WriteString(strconv.Quote(v))
		case uint32:
			if p.Kind == KindUint && v > 0xffff {
				fmt.Fprintf(&sb, "%#x", v)
			} else {
				fmt.Fprint(&sb, v)
			}
		default:
			fmt.Fprint(&sb, v)
		}
	}
	return sb.String()
}
