// Package options aggregates every configurable surface of the
// microlink command.
package options

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ahk4918/microlink/internal/controller"
	"github.com/ahk4918/microlink/internal/device"
	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// Options holds all configuration for the microlink command.
type Options struct {
	// Mode restricts which transports are probed: both, serial or wireless.
	Mode string `json:"mode" mapstructure:"mode"`

	Serial   *options.SerialOptions   `json:"serial" mapstructure:"serial"`
	Wireless *options.WirelessOptions `json:"wireless" mapstructure:"wireless"`
	Update   *options.UpdateOptions   `json:"update" mapstructure:"update"`
	Log      *log.Options             `json:"log" mapstructure:"log"`
}

// NewOptions creates an Options object with default parameters.
func NewOptions() *Options {
	return &Options{
		Mode:     "both",
		Serial:   options.NewSerialOptions(),
		Wireless: options.NewWirelessOptions(),
		Update:   options.NewUpdateOptions(),
		Log:      log.NewOptions(),
	}
}

// AddFlags binds every option group to the command's flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "mode", o.Mode, "Transports to probe: both, serial or wireless.")
	o.Serial.AddFlags(fs)
	o.Wireless.AddFlags(fs)
	o.Update.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate checks all option groups and aggregates their failures.
func (o *Options) Validate() error {
	var errs []error

	if _, err := device.ParseMode(o.Mode); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Serial.Validate()...)
	errs = append(errs, o.Wireless.Validate()...)
	errs = append(errs, o.Update.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	return errors.Join(errs...)
}

// Config assembles the controller configuration from validated options.
func (o *Options) Config() (*controller.Config, error) {
	mode, err := device.ParseMode(o.Mode)
	if err != nil {
		return nil, fmt.Errorf("resolving transport mode: %w", err)
	}
	return &controller.Config{
		Mode:     mode,
		Serial:   o.Serial,
		Wireless: o.Wireless,
		Update:   o.Update,
	}, nil
}
