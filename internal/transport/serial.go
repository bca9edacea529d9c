package transport

import (
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// ProbeSerial enumerates serial-like ports and returns the ones matching the
// configured device signatures, ordered by descending confidence with
// enumeration order preserved among equals. Enumeration is the only side
// effect; no port is opened.
func ProbeSerial(opts *options.SerialOptions) ([]Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var candidates []Candidate
	for _, p := range ports {
		conf := matchPort(p.Product, p.VID, opts.Keywords, opts.VendorIDs)
		log.Debug("serial port seen", "port", p.Name, "description", p.Product, "vid", p.VID, "confidence", conf)
		if conf == 0 {
			continue
		}

		candidates = append(candidates, Candidate{
			Kind:       KindSerial,
			ID:         p.Name,
			Name:       p.Product,
			Confidence: conf,
		})
	}

	// Stable: equal-confidence candidates keep enumeration order, which is
	// also the order they will be tried in.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Confidence > candidates[j-1].Confidence; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates, nil
}

// matchPort scores a port against the configured signatures: 1 for a
// description keyword or a known vendor ID, 2 for both.
func matchPort(description, vid string, keywords, vendorIDs []string) int {
	conf := 0

	desc := strings.ToLower(description)
	for _, k := range keywords {
		if k != "" && strings.Contains(desc, strings.ToLower(k)) {
			conf++
			break
		}
	}

	for _, v := range vendorIDs {
		if v != "" && strings.EqualFold(vid, v) {
			conf++
			break
		}
	}

	return conf
}

// serialConn is the wired implementation of Conn. Writes and teardown share
// one lock because closing and writing concurrently on the same handle is
// unsafe.
type serialConn struct {
	port serial.Port

	mu     sync.Mutex
	closed bool
}

// DialSerial opens the candidate port and starts its dedicated blocking read
// goroutine. Inbound lines go to onLine in arrival order; a read failure on a
// live connection is reported once through onDrop.
func DialSerial(c Candidate, opts *options.SerialOptions, onLine func(string), onDrop func(error)) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(c.ID, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.ID, err)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", c.ID, err)
		}
	}

	conn := &serialConn{port: port}
	go conn.readPump(onLine, onDrop)

	return conn, nil
}

// readPump performs blocking reads for the life of the connection. A timed
// out read returns zero bytes and loops; that is the poll tick that lets the
// pump notice a voluntary Close.
func (s *serialConn) readPump(onLine func(string), onDrop func(error)) {
	var asm lineAssembler
	buf := make([]byte, 256)

	for {
		n, err := s.port.Read(buf)
		if err != nil {
			if !s.isClosed() {
				log.Debug("serial read failed", "err", err)
				onDrop(err)
			}
			return
		}
		if n == 0 {
			if s.isClosed() {
				return
			}
			continue
		}

		for _, line := range asm.Feed(buf[:n]) {
			onLine(line)
		}
	}
}

func (s *serialConn) Kind() Kind { return KindSerial }

func (s *serialConn) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrConnClosed
	}

	_, err := s.port.Write([]byte(strings.TrimSpace(line) + "\n"))
	return err
}

func (s *serialConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.port.Close()
}

func (s *serialConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
