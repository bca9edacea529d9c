// Package device owns the connection state machine, the request correlator,
// and the command vocabulary of the line protocol.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/ahk4918/microlink/internal/bridge"
	fsmutil "github.com/ahk4918/microlink/internal/pkg/util/fsm"
	"github.com/ahk4918/microlink/internal/transport"
	"github.com/ahk4918/microlink/pkg/log"
)

// Mode restricts which transports a connection attempt may use.
type Mode int

const (
	ModeBoth Mode = iota
	ModeSerial
	ModeWireless
)

// ParseMode maps the CLI spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return ModeBoth, nil
	case "serial", "usb":
		return ModeSerial, nil
	case "wireless", "ble":
		return ModeWireless, nil
	default:
		return ModeBoth, fmt.Errorf("unknown transport mode %q (want both, serial or wireless)", s)
	}
}

func (m Mode) allowsSerial() bool   { return m == ModeBoth || m == ModeSerial }
func (m Mode) allowsWireless() bool { return m == ModeBoth || m == ModeWireless }

// Link states. Exactly one holds at any instant; transitions only happen
// through the manager's state machine.
const (
	StateDisconnected      = "disconnected"
	StateProbingSerial     = "probing_serial"
	StateProbingWireless   = "probing_wireless"
	StateConnectedSerial   = "connected_serial"
	StateConnectedWireless = "connected_wireless"
)

const (
	eventProbeSerial       = "probe_serial"
	eventProbeWireless     = "probe_wireless"
	eventSerialConnected   = "serial_connected"
	eventWirelessConnected = "wireless_connected"
	eventProbeFailed       = "probe_failed"
	eventDropped           = "dropped"
)

// SerialLink abstracts the wired probe and dial pair so the manager can be
// exercised against fakes.
type SerialLink interface {
	Probe() ([]transport.Candidate, error)
	Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error)
}

// WirelessLink abstracts the BLE scan and dial pair.
type WirelessLink interface {
	Scan() ([]transport.Candidate, error)
	Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error)
}

// Selector resolves a multi-candidate wireless scan to one index. It runs on
// the calling goroutine, never on the bridge worker, so it may block on
// operator input.
type Selector func(candidates []transport.Candidate) (int, error)

// Manager owns the single live connection and the state machine around it.
// All other components reach the device through a manager handle.
type Manager struct {
	mode     Mode
	serial   SerialLink
	wireless WirelessLink
	selector Selector
	observer func(line string)

	machine    *fsm.FSM
	correlator Correlator

	mu     sync.Mutex
	conn   transport.Conn
	closed bool
	ctx    context.Context
}

// NewManager builds a disconnected manager. observer receives every inbound
// line that is not claimed by a correlated query.
func NewManager(mode Mode, serial SerialLink, wireless WirelessLink, selector Selector, observer func(string)) *Manager {
	m := &Manager{
		mode:     mode,
		serial:   serial,
		wireless: wireless,
		selector: selector,
		observer: observer,
		ctx:      context.Background(),
	}

	events := fsm.Events{
		{Name: eventProbeSerial, Src: []string{StateDisconnected}, Dst: StateProbingSerial},
		{Name: eventProbeWireless, Src: []string{StateDisconnected, StateProbingSerial}, Dst: StateProbingWireless},
		{Name: eventSerialConnected, Src: []string{StateProbingSerial}, Dst: StateConnectedSerial},
		{Name: eventWirelessConnected, Src: []string{StateProbingWireless}, Dst: StateConnectedWireless},
		{Name: eventProbeFailed, Src: []string{StateProbingSerial, StateProbingWireless}, Dst: StateDisconnected},
		{Name: eventDropped, Src: []string{StateConnectedSerial, StateConnectedWireless}, Dst: StateDisconnected},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(func(ctx context.Context, e *fsm.Event) error {
			log.Debug("link state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			return nil
		}),
	}

	m.machine = fsm.NewFSM(StateDisconnected, events, callbacks)
	return m
}

// State returns the current link state string.
func (m *Manager) State() string {
	return m.machine.Current()
}

// Connected reports whether a live connection exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Connect walks the transports the mode allows: wired candidates first in
// enumeration order with open failures swallowed, then one bounded wireless
// attempt. Failure leaves the manager disconnected; it is not fatal and can
// be retried.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutDown
	}
	m.ctx = ctx
	m.mu.Unlock()

	if m.mode.allowsSerial() {
		if err := m.machine.Event(ctx, eventProbeSerial); err != nil {
			return fmt.Errorf("enter serial probing: %w", err)
		}

		if m.trySerial(ctx) {
			return nil
		}
	}

	if m.mode.allowsWireless() {
		if err := m.machine.Event(ctx, eventProbeWireless); err != nil {
			return fmt.Errorf("enter wireless probing: %w", err)
		}

		if err := m.tryWireless(ctx); err != nil {
			_ = m.machine.Event(ctx, eventProbeFailed)
			return err
		}
		return nil
	}

	_ = m.machine.Event(ctx, eventProbeFailed)
	return ErrTransportUnavailable
}

// trySerial attempts every wired candidate in order. Individual open
// failures are expected (busy port, permissions) and swallowed.
func (m *Manager) trySerial(ctx context.Context) bool {
	candidates, err := m.serial.Probe()
	if err != nil {
		if !errors.Is(err, transport.ErrNoCandidates) {
			log.Warn("serial probe failed", "err", err)
		}
		return false
	}

	for _, c := range candidates {
		conn, err := m.serial.Dial(c, m.handleLine, m.handleDrop)
		if err != nil {
			log.Debug("serial candidate did not open", "port", c.ID, "err", err)
			continue
		}

		m.adopt(conn)
		if err := m.machine.Event(ctx, eventSerialConnected); err != nil {
			log.Error(err, "serial connected transition rejected")
		}
		log.Info("connected via USB serial", "port", c.ID, "description", c.Name)
		return true
	}

	return false
}

// tryWireless performs one scan / select / dial sequence. Zero candidates is
// a quiet failure by design; more than one defers to the selector.
func (m *Manager) tryWireless(ctx context.Context) error {
	candidates, err := m.wireless.Scan()
	if err != nil {
		if errors.Is(err, transport.ErrNoCandidates) {
			log.Info("no wireless devices found")
			return ErrTransportUnavailable
		}
		if errors.Is(err, bridge.ErrTimeout) {
			return ErrConnectTimeout
		}
		return fmt.Errorf("wireless scan: %w", err)
	}

	idx := 0
	if len(candidates) > 1 {
		idx, err = m.selector(candidates)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(candidates) {
			return fmt.Errorf("selected index %d out of range", idx)
		}
	}

	target := candidates[idx]
	log.Info("connecting to wireless device", "name", target.Name, "address", target.ID)

	conn, err := m.wireless.Dial(target, m.handleLine, m.handleDrop)
	if err != nil {
		if errors.Is(err, bridge.ErrTimeout) {
			return ErrConnectTimeout
		}
		return fmt.Errorf("wireless dial: %w", err)
	}

	m.adopt(conn)
	if err := m.machine.Event(ctx, eventWirelessConnected); err != nil {
		log.Error(err, "wireless connected transition rejected")
	}
	log.Info("connected via Bluetooth", "name", target.Name)
	return nil
}

// adopt installs the new live connection. The previous one, if any, was
// already torn down; connections are replaced, never mutated.
func (m *Manager) adopt(conn transport.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// handleLine routes one inbound line: a pending correlated query claims it,
// everything else goes to the observer. Arrival order is preserved.
func (m *Manager) handleLine(line string) {
	if m.correlator.Offer(line) {
		return
	}
	if m.observer != nil {
		m.observer(line)
	}
}

// handleDrop reacts to a transport failure: tear the connection down,
// transition to disconnected, and immediately re-enter probing. Reconnection
// is unconditional; this tool prefers availability over quiet failure.
func (m *Manager) handleDrop(cause error) {
	m.mu.Lock()
	if m.closed || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	ctx := m.ctx
	m.mu.Unlock()

	_ = conn.Close()
	_ = m.machine.Event(ctx, eventDropped)
	log.Warn("connection lost, reconnecting", "cause", cause)

	go func() {
		if err := m.Connect(ctx); err != nil {
			log.Error(err, "automatic reconnect failed")
		}
	}()
}

// WriteLine sends one raw protocol line over the live connection.
func (m *Manager) WriteLine(line string) error {
	m.mu.Lock()
	conn := m.conn
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrShutDown
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteLine(line)
}

// Query sends a correlated command and waits for its single reply line.
func (m *Manager) Query(cmd string, timeout time.Duration) (string, error) {
	return m.correlator.Query(m.WriteLine, cmd, timeout)
}

// Shutdown permanently stops the manager and closes any live connection.
// Unlike a drop, no reconnect follows.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
