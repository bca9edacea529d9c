package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SerialOptions)(nil)

// SerialOptions contains configuration for the wired (USB CDC) transport.
type SerialOptions struct {
	// Keywords are case-insensitive substrings matched against a port's
	// textual description during probing.
	Keywords []string `json:"keywords" mapstructure:"keywords"`

	// VendorIDs is the set of known USB vendor identifiers (hex, e.g. "0d28")
	// that mark a port as a device candidate regardless of its description.
	VendorIDs []string `json:"vendor-ids" mapstructure:"vendor-ids"`

	// BaudRate for the opened port. USB CDC devices generally ignore it, but
	// the host stack still wants a value.
	BaudRate int `json:"baud-rate" mapstructure:"baud-rate"`

	// ReadTimeout bounds a single blocking read on the open port.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
}

// NewSerialOptions creates a SerialOptions object with default parameters
// matching the micro:bit / DAPLink family.
func NewSerialOptions() *SerialOptions {
	return &SerialOptions{
		Keywords: []string{
			"micro:bit",
			"bbc",
			"daplink",
			"cmsis",
			"mbed",
			"usb serial device",
			"usb composite",
		},
		VendorIDs:   []string{"0d28"},
		BaudRate:    115200,
		ReadTimeout: time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SerialOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.BaudRate <= 0 {
		errors = append(errors, fmt.Errorf("serial.baud-rate must be positive, got %d", o.BaudRate))
	}
	if len(o.Keywords) == 0 && len(o.VendorIDs) == 0 {
		errors = append(errors, fmt.Errorf("serial probing needs at least one keyword or vendor id"))
	}

	return errors
}

// AddFlags binds serial transport flags to the specified FlagSet.
func (o *SerialOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&o.Keywords, "serial.keywords", o.Keywords, "Case-insensitive substrings matched against port descriptions.")
	fs.StringSliceVar(&o.VendorIDs, "serial.vendor-ids", o.VendorIDs, "Known USB vendor IDs (hex) accepted as device candidates.")
	fs.IntVar(&o.BaudRate, "serial.baud-rate", o.BaudRate, "Baud rate for the opened serial port.")
	fs.DurationVar(&o.ReadTimeout, "serial.read-timeout", o.ReadTimeout, "Timeout for a single blocking serial read.")
}
