package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UpdateOptions)(nil)

// UpdateOptions contains configuration for the firmware update pipeline.
type UpdateOptions struct {
	// Enabled controls whether the update check runs at startup.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// VersionURL serves the latest published version identifier (first
	// meaningful line of a small text resource).
	VersionURL string `json:"version-url" mapstructure:"version-url"`

	// FirmwareURL serves the flashable hex image.
	FirmwareURL string `json:"firmware-url" mapstructure:"firmware-url"`

	// FetchTimeout bounds the remote version lookup.
	FetchTimeout time.Duration `json:"fetch-timeout" mapstructure:"fetch-timeout"`

	// DownloadTimeout bounds a single firmware download attempt.
	DownloadTimeout time.Duration `json:"download-timeout" mapstructure:"download-timeout"`

	// DownloadRetries is the number of download attempts before giving up.
	DownloadRetries uint `json:"download-retries" mapstructure:"download-retries"`

	// RetryDelay is the fixed delay between download attempts.
	RetryDelay time.Duration `json:"retry-delay" mapstructure:"retry-delay"`

	// VolumePath explicitly names the device's mass-storage mount point and
	// skips label-based discovery when set.
	VolumePath string `json:"volume-path" mapstructure:"volume-path"`

	// VolumeLabels are case-insensitive substrings matched against mounted
	// volume names during discovery.
	VolumeLabels []string `json:"volume-labels" mapstructure:"volume-labels"`

	// MarkerFile is the name of the version marker the device leaves on its
	// mass-storage volume.
	MarkerFile string `json:"marker-file" mapstructure:"marker-file"`

	// FirmwareFile is the final firmware filename the bootloader watches for.
	FirmwareFile string `json:"firmware-file" mapstructure:"firmware-file"`

	// MinImageSize is the sanity floor for a downloaded image, in bytes.
	MinImageSize int `json:"min-image-size" mapstructure:"min-image-size"`
}

// NewUpdateOptions creates an UpdateOptions object with default parameters
// pointing at the published interpreter firmware.
func NewUpdateOptions() *UpdateOptions {
	return &UpdateOptions{
		Enabled:         true,
		VersionURL:      "https://raw.githubusercontent.com/ahk4918/Microbit-devices-commands/refs/heads/main/DETAILS.TXT",
		FirmwareURL:     "https://raw.githubusercontent.com/ahk4918/Microbit-devices-commands/refs/heads/main/interpreter.hex",
		FetchTimeout:    5 * time.Second,
		DownloadTimeout: 10 * time.Second,
		DownloadRetries: 3,
		RetryDelay:      2 * time.Second,
		VolumeLabels:    []string{"microbit", "mbed", "daplink"},
		MarkerFile:      "version.txt",
		FirmwareFile:    "interpreter.hex",
		MinImageSize:    1024,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *UpdateOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if !o.Enabled {
		return errors
	}

	if o.VersionURL == "" {
		errors = append(errors, fmt.Errorf("update.version-url must not be empty"))
	}
	if o.FirmwareURL == "" {
		errors = append(errors, fmt.Errorf("update.firmware-url must not be empty"))
	}
	if o.FirmwareFile == "" {
		errors = append(errors, fmt.Errorf("update.firmware-file must not be empty"))
	}
	if o.MinImageSize < 0 {
		errors = append(errors, fmt.Errorf("update.min-image-size must not be negative"))
	}

	return errors
}

// AddFlags binds update pipeline flags to the specified FlagSet.
func (o *UpdateOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "update.enabled", o.Enabled, "Run the firmware update check at startup.")
	fs.StringVar(&o.VersionURL, "update.version-url", o.VersionURL, "URL of the published version descriptor.")
	fs.StringVar(&o.FirmwareURL, "update.firmware-url", o.FirmwareURL, "URL of the flashable firmware image.")
	fs.DurationVar(&o.FetchTimeout, "update.fetch-timeout", o.FetchTimeout, "Timeout for the remote version lookup.")
	fs.DurationVar(&o.DownloadTimeout, "update.download-timeout", o.DownloadTimeout, "Timeout for a single download attempt.")
	fs.UintVar(&o.DownloadRetries, "update.download-retries", o.DownloadRetries, "Number of firmware download attempts.")
	fs.DurationVar(&o.RetryDelay, "update.retry-delay", o.RetryDelay, "Fixed delay between download attempts.")
	fs.StringVar(&o.VolumePath, "update.volume-path", o.VolumePath, "Explicit device volume mount point (skips discovery).")
	fs.StringSliceVar(&o.VolumeLabels, "update.volume-labels", o.VolumeLabels, "Volume name substrings used during discovery.")
	fs.StringVar(&o.MarkerFile, "update.marker-file", o.MarkerFile, "Version marker filename on the device volume.")
	fs.StringVar(&o.FirmwareFile, "update.firmware-file", o.FirmwareFile, "Final firmware filename the bootloader watches for.")
	fs.IntVar(&o.MinImageSize, "update.min-image-size", o.MinImageSize, "Sanity floor for a downloaded image, in bytes.")
}
