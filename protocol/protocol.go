// Package protocol is the line codec of the TCP interface. A packet is one
// line: a type followed by fields, separated by unescaped '|'. Inside a field
// '|', ',', '\\', newline and carriage return are backslash-escaped.
package protocol

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPacket = errors.New("invalid packet format")
)

type Packet struct {
	Type string
	Args []string // unescaped fields after the type
}

// Arg returns the i-th field or "" when absent.
func (p *Packet) Arg(i int) string {
	if i < 0 || i >= len(p.Args) {
		return ""
	}
	return p.Args[i]
}

func ParsePacket(line string) (*Packet, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := splitUnescaped(line, '|')
	typ := unescape(parts[0])
	if typ == "" {
		return nil, ErrInvalidPacket
	}

	pkt := &Packet{Type: typ}
	for _, part := range parts[1:] {
		pkt.Args = append(pkt.Args, unescape(part))
	}
	return pkt, nil
}

// Format builds a packet line, escaping every field.
func Format(pktType string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, Escape(pktType))
	for _, field := range fields {
		parts = append(parts, Escape(field))
	}
	return strings.Join(parts, "|") + "\n"
}

// FormatRaw builds a packet line whose body is already encoded, as produced
// by Record and List.
func FormatRaw(pktType, raw string) string {
	if raw == "" {
		return Escape(pktType) + "\n"
	}
	return Escape(pktType) + "|" + raw + "\n"
}

// Record joins escaped fields with '|' for use inside a list body.
func Record(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, field := range fields {
		escaped[i] = Escape(field)
	}
	return strings.Join(escaped, "|")
}

// List joins records with ','.
func List(records []string) string {
	return strings.Join(records, ",")
}

// SplitList splits a list body into records and each record into unescaped
// fields.
func SplitList(raw string) [][]string {
	if raw == "" {
		return nil
	}
	var records [][]string
	for _, rec := range splitUnescaped(raw, ',') {
		var fields []string
		for _, f := range splitUnescaped(rec, '|') {
			fields = append(fields, unescape(f))
		}
		records = append(records, fields)
	}
	return records
}

// splitUnescaped splits s on delimiter, skipping escaped occurrences. Escapes
// are kept in the parts.
func splitUnescaped(s string, delimiter rune) []string {
	var parts []string
	var current strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			current.WriteRune(r)
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			current.WriteRune(r)
			continue
		}

		if r == delimiter {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}

		current.WriteRune(r)
	}

	parts = append(parts, current.String())
	return parts
}

func unescape(s string) string {
	var result strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			switch r {
			case '|', ',', '\\':
				result.WriteRune(r)
			case 'n':
				result.WriteRune('\n')
			case 'r':
				result.WriteRune('\r')
			default:
				// unknown escape, keep verbatim
				result.WriteRune('\\')
				result.WriteRune(r)
			}
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			continue
		}

		result.WriteRune(r)
	}

	// trailing lone backslash
	if escape {
		result.WriteRune('\\')
	}

	return result.String()
}

func Escape(s string) string {
	var result strings.Builder

	for _, r := range s {
		switch r {
		case '|':
			result.WriteString("\\|")
		case ',':
			result.WriteString("\\,")
		case '\\':
			result.WriteString("\\\\")
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
