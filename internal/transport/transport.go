// Package transport implements the two interchangeable byte channels to the
// device: a wired USB CDC serial link and a wireless BLE UART link. Both
// carry the same newline-terminated UTF-8 line protocol.
package transport

import (
	"errors"
	"strings"
)

// Kind identifies which physical channel a candidate or connection uses.
type Kind int

const (
	KindSerial Kind = iota
	KindWireless
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindWireless:
		return "wireless"
	default:
		return "unknown"
	}
}

// Candidate is one discovered endpoint from a probing pass. Candidates are
// recomputed on every pass and never persisted.
type Candidate struct {
	Kind Kind

	// ID is the port path (serial) or peripheral address (wireless).
	ID string

	// Name is the human-readable description or advertised name.
	Name string

	// Confidence ranks how strongly the candidate matched the configured
	// device signatures. Higher is better.
	Confidence int
}

// Conn is a live bidirectional line channel. Exactly one Conn exists at a
// time; it is owned by the connection manager and replaced, never reused,
// after a drop.
type Conn interface {
	Kind() Kind

	// WriteLine sends one protocol line; the newline is appended here.
	WriteLine(line string) error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// ErrNoCandidates reports a probing pass that found nothing to try. It is a
// normal fallback signal, not a fault.
var ErrNoCandidates = errors.New("transport: no matching candidates")

// ErrConnClosed reports a write against a connection that has been torn down.
var ErrConnClosed = errors.New("transport: connection closed")

// lineAssembler buffers raw transport bytes and cuts them into protocol
// lines. At most one partial line of lookahead is held; completed lines come
// out in arrival order.
type lineAssembler struct {
	buf strings.Builder
}

// Feed appends p and returns every complete line it closed off, stripped of
// line endings. Blank lines are dropped, matching the device's chatter.
func (a *lineAssembler) Feed(p []byte) []string {
	var lines []string

	for _, b := range p {
		if b != '\n' {
			a.buf.WriteByte(b)
			continue
		}

		line := strings.TrimSpace(a.buf.String())
		a.buf.Reset()
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
