package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/ahk4918/microlink/internal/bridge"
	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// uartCharacteristic is the slice of a GATT characteristic the UART link
// needs. Both protocol roles expose the same surface, which is what makes
// the role-swap fallback possible.
type uartCharacteristic interface {
	EnableNotifications(callback func(buf []byte)) error
	WriteWithoutResponse(p []byte) (n int, err error)
}

// EnableNotifications takes a pointer receiver, so the interface is only
// satisfied by *DeviceCharacteristic.
var _ uartCharacteristic = (*bluetooth.DeviceCharacteristic)(nil)

// subscribeUART subscribes the notify role and returns the characteristic to
// use for writes. The nominal assignment is tried first; if the device stack
// rejects it, the roles are swapped. Both failing fails the dial with no
// subscription left behind.
func subscribeUART(notify, write uartCharacteristic, cb func(buf []byte)) (uartCharacteristic, bool, error) {
	if err := notify.EnableNotifications(cb); err == nil {
		return write, false, nil
	}

	if err := write.EnableNotifications(cb); err != nil {
		return nil, false, fmt.Errorf("subscribe failed on both characteristics: %w", err)
	}

	return notify, true, nil
}

// WirelessDialer drives the BLE stack. All stack calls run on the bridge
// worker; the dialer's exported methods are called from synchronous code and
// block on bridge futures.
type WirelessDialer struct {
	opts   *options.WirelessOptions
	bridge *bridge.Bridge

	adapter    *bluetooth.Adapter
	enableOnce sync.Once
	enableErr  error

	mu   sync.Mutex
	seen map[string]bluetooth.ScanResult
}

// NewWirelessDialer wires the dialer to the process-wide bridge. The BLE
// adapter is enabled lazily on first use.
func NewWirelessDialer(b *bridge.Bridge, opts *options.WirelessOptions) *WirelessDialer {
	return &WirelessDialer{
		opts:    opts,
		bridge:  b,
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.ScanResult),
	}
}

func (d *WirelessDialer) enable() error {
	d.enableOnce.Do(func() {
		d.enableErr = d.adapter.Enable()
	})
	return d.enableErr
}

// Scan performs one bounded discovery pass and returns the device-family
// candidates in first-seen order. An empty result is reported as
// ErrNoCandidates so the caller can fall through without treating it as a
// fault.
func (d *WirelessDialer) Scan() ([]Candidate, error) {
	keyword := strings.ToLower(d.opts.NameKeyword)

	result, err := d.bridge.Run("scan", d.opts.ScanTimeout+5*time.Second, func() (any, error) {
		if err := d.enable(); err != nil {
			return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
		}

		d.mu.Lock()
		d.seen = make(map[string]bluetooth.ScanResult)
		d.mu.Unlock()

		var candidates []Candidate

		timer := time.AfterFunc(d.opts.ScanTimeout, func() {
			_ = d.adapter.StopScan()
		})
		defer timer.Stop()

		err := d.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			name := res.LocalName()
			if !strings.Contains(strings.ToLower(name), keyword) {
				return
			}

			addr := res.Address.String()
			d.mu.Lock()
			_, dup := d.seen[addr]
			if !dup {
				d.seen[addr] = res
			}
			d.mu.Unlock()
			if dup {
				return
			}

			log.Debug("wireless candidate found", "name", name, "address", addr)
			candidates = append(candidates, Candidate{
				Kind:       KindWireless,
				ID:         addr,
				Name:       name,
				Confidence: 1,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("ble scan: %w", err)
		}

		return candidates, nil
	})
	if err != nil {
		return nil, err
	}

	candidates := result.([]Candidate)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates, nil
}

// Dial connects to a previously scanned candidate, discovers the UART
// service, and subscribes with the role-swap fallback. onDrop fires once if
// the peripheral disconnects underneath us.
func (d *WirelessDialer) Dial(c Candidate, onLine func(string), onDrop func(error)) (Conn, error) {
	d.mu.Lock()
	res, ok := d.seen[c.ID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("candidate %s not present in the last scan", c.ID)
	}

	conn := &wirelessConn{bridge: d.bridge}

	result, err := d.bridge.Run("connect", dialBudget(d.opts), func() (any, error) {
		// Registered before connecting so a disconnect during discovery or
		// subscription is still observed. The handler is adapter-global;
		// every dial replaces the previous one.
		d.adapter.SetConnectHandler(dropHandler(conn, c.ID, onDrop))

		device, err := d.adapter.Connect(res.Address, bluetooth.ConnectionParams{})
		if err != nil {
			return nil, fmt.Errorf("ble connect %s: %w", c.ID, err)
		}

		writeChar, swapped, err := d.discoverUART(device, onLine)
		if err != nil {
			conn.markClosed()
			_ = device.Disconnect()
			return nil, err
		}
		if swapped {
			log.Warn("notify characteristic rejected, using swapped UART roles", "address", c.ID)
		}

		conn.device = device
		conn.write = writeChar
		return conn, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*wirelessConn), nil
}

// minDialBudget is the floor for the connect + discovery phase, reached when
// ScanTimeout is configured close to (or above) ConnectTimeout.
const minDialBudget = 5 * time.Second

// dialBudget bounds connect + discovery + subscription so that a full-length
// scan followed by one dial stays inside ConnectTimeout. The selection prompt
// sits between the two and is operator time, outside any bound.
func dialBudget(opts *options.WirelessOptions) time.Duration {
	b := opts.ConnectTimeout - opts.ScanTimeout
	if b < minDialBudget {
		b = minDialBudget
	}
	return b
}

// dropHandler reports an unsolicited peripheral disconnect while the
// connection is live. Deliberate teardown marks the conn closed first, so the
// handler stays quiet for our own Disconnect calls, and events for other
// peripherals are ignored.
func dropHandler(conn *wirelessConn, addr string, onDrop func(error)) func(bluetooth.Device, bool) {
	return func(dev bluetooth.Device, connected bool) {
		if connected || conn.isClosed() {
			return
		}
		if dev.Address.String() != addr {
			return
		}
		onDrop(fmt.Errorf("wireless peer %s disconnected", addr))
	}
}

// discoverUART resolves the service and both characteristics and performs the
// subscription. Runs on the bridge worker.
func (d *WirelessDialer) discoverUART(device bluetooth.Device, onLine func(string)) (uartCharacteristic, bool, error) {
	svcUUID, err := bluetooth.ParseUUID(d.opts.ServiceUUID)
	if err != nil {
		return nil, false, fmt.Errorf("parse service uuid: %w", err)
	}
	txUUID, err := bluetooth.ParseUUID(d.opts.TxUUID)
	if err != nil {
		return nil, false, fmt.Errorf("parse tx uuid: %w", err)
	}
	rxUUID, err := bluetooth.ParseUUID(d.opts.RxUUID)
	if err != nil {
		return nil, false, fmt.Errorf("parse rx uuid: %w", err)
	}

	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		return nil, false, fmt.Errorf("uart service not found: %w", err)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{txUUID, rxUUID})
	if err != nil {
		return nil, false, fmt.Errorf("discover uart characteristics: %w", err)
	}

	var tx, rx uartCharacteristic
	for i := range chars {
		switch chars[i].UUID() {
		case txUUID:
			tx = &chars[i]
		case rxUUID:
			rx = &chars[i]
		}
	}
	if tx == nil || rx == nil {
		return nil, false, fmt.Errorf("uart characteristics incomplete (tx=%v rx=%v)", tx != nil, rx != nil)
	}

	var asm lineAssembler
	var asmMu sync.Mutex
	cb := func(buf []byte) {
		// Notifications arrive on the stack's goroutine; keep assembly
		// ordered under one lock.
		asmMu.Lock()
		lines := asm.Feed(buf)
		asmMu.Unlock()

		for _, line := range lines {
			onLine(line)
		}
	}

	return subscribeUART(tx, rx, cb)
}

// wirelessConn is the BLE implementation of Conn. Writes are shipped to the
// bridge worker so they never race the stack.
type wirelessConn struct {
	bridge *bridge.Bridge
	device bluetooth.Device
	write  uartCharacteristic

	mu     sync.Mutex
	closed bool
}

const wirelessWriteTimeout = 5 * time.Second

func (w *wirelessConn) Kind() Kind { return KindWireless }

func (w *wirelessConn) WriteLine(line string) error {
	if w.isClosed() {
		return ErrConnClosed
	}

	payload := []byte(strings.TrimSpace(line) + "\n")
	_, err := w.bridge.Run("write", wirelessWriteTimeout, func() (any, error) {
		_, err := w.write.WriteWithoutResponse(payload)
		return nil, err
	})
	return err
}

func (w *wirelessConn) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	_, err := w.bridge.Run("disconnect", wirelessWriteTimeout, func() (any, error) {
		return nil, w.device.Disconnect()
	})
	return err
}

func (w *wirelessConn) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// markClosed silences the drop handler before a deliberate teardown.
func (w *wirelessConn) markClosed() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
