package device

import (
	"github.com/ahk4918/microlink/internal/transport"
	"github.com/ahk4918/microlink/pkg/options"
)

// serialLink binds the manager's SerialLink contract to the real wired
// transport.
type serialLink struct {
	opts *options.SerialOptions
}

// NewSerialLink returns the production wired link.
func NewSerialLink(opts *options.SerialOptions) SerialLink {
	return &serialLink{opts: opts}
}

func (l *serialLink) Probe() ([]transport.Candidate, error) {
	return transport.ProbeSerial(l.opts)
}

func (l *serialLink) Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error) {
	return transport.DialSerial(c, l.opts, onLine, onDrop)
}

// wirelessLink binds the manager's WirelessLink contract to the BLE dialer.
type wirelessLink struct {
	dialer *transport.WirelessDialer
}

// NewWirelessLink returns the production BLE link.
func NewWirelessLink(dialer *transport.WirelessDialer) WirelessLink {
	return &wirelessLink{dialer: dialer}
}

func (l *wirelessLink) Scan() ([]transport.Candidate, error) {
	return l.dialer.Scan()
}

func (l *wirelessLink) Dial(c transport.Candidate, onLine func(string), onDrop func(error)) (transport.Conn, error) {
	return l.dialer.Dial(c, onLine, onDrop)
}
