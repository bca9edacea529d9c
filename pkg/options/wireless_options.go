package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*WirelessOptions)(nil)

// WirelessOptions contains configuration for the BLE UART transport.
//
// The defaults describe the Nordic UART service the device exposes: one
// device-to-host notify characteristic (TX) and one host-to-device write
// characteristic (RX). Some OS stacks surface the two roles flipped, which
// the connection logic compensates for at subscribe time.
type WirelessOptions struct {
	// NameKeyword is the case-insensitive substring an advertised device name
	// must contain to count as a candidate.
	NameKeyword string `json:"name-keyword" mapstructure:"name-keyword"`

	// ScanTimeout bounds the discovery scan.
	ScanTimeout time.Duration `json:"scan-timeout" mapstructure:"scan-timeout"`

	// ConnectTimeout bounds the whole scan + connect + subscribe sequence.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// ServiceUUID is the transparent-UART service.
	ServiceUUID string `json:"service-uuid" mapstructure:"service-uuid"`

	// TxUUID is the nominal device-to-host notify characteristic.
	TxUUID string `json:"tx-uuid" mapstructure:"tx-uuid"`

	// RxUUID is the nominal host-to-device write characteristic.
	RxUUID string `json:"rx-uuid" mapstructure:"rx-uuid"`
}

// NewWirelessOptions creates a WirelessOptions object with the standard
// Nordic UART UUIDs.
func NewWirelessOptions() *WirelessOptions {
	return &WirelessOptions{
		NameKeyword:    "micro",
		ScanTimeout:    10 * time.Second,
		ConnectTimeout: 35 * time.Second,
		ServiceUUID:    "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		TxUUID:         "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
		RxUUID:         "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *WirelessOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.NameKeyword == "" {
		errors = append(errors, fmt.Errorf("wireless.name-keyword must not be empty"))
	}
	if o.ScanTimeout <= 0 {
		errors = append(errors, fmt.Errorf("wireless.scan-timeout must be positive"))
	}
	if o.ConnectTimeout < o.ScanTimeout {
		errors = append(errors, fmt.Errorf("wireless.connect-timeout must cover the scan timeout"))
	}

	return errors
}

// AddFlags binds wireless transport flags to the specified FlagSet.
func (o *WirelessOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.NameKeyword, "wireless.name-keyword", o.NameKeyword, "Substring an advertised name must contain to match.")
	fs.DurationVar(&o.ScanTimeout, "wireless.scan-timeout", o.ScanTimeout, "Duration of the discovery scan.")
	fs.DurationVar(&o.ConnectTimeout, "wireless.connect-timeout", o.ConnectTimeout, "Overall bound for scan, connect and subscribe.")
	fs.StringVar(&o.ServiceUUID, "wireless.service-uuid", o.ServiceUUID, "UART service UUID.")
	fs.StringVar(&o.TxUUID, "wireless.tx-uuid", o.TxUUID, "Device-to-host notify characteristic UUID.")
	fs.StringVar(&o.RxUUID, "wireless.rx-uuid", o.RxUUID, "Host-to-device write characteristic UUID.")
}
