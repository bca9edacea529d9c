// Package update decides whether the device firmware is current,
// downloads a newer image when it is not, and installs it on the
// device's mass-storage volume.
package update

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ahk4918/microlink/internal/storage"
	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// maxVersionBytes caps how much of the version descriptor is read. The
// real resource is a handful of bytes.
const maxVersionBytes = 64 << 10

// InstalledFallback reports the running firmware version when the
// volume marker is absent, typically by asking the device itself.
type InstalledFallback func() (string, error)

// Resolver determines the remote and installed firmware versions.
// Versions are opaque strings compared for exact equality only.
type Resolver struct {
	opts     *options.UpdateOptions
	client   *http.Client
	fallback InstalledFallback
	logger   log.Logger
}

// NewResolver creates a Resolver. fallback may be nil when no device
// query path is available.
func NewResolver(opts *options.UpdateOptions, fallback InstalledFallback, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Resolver{
		opts:     opts,
		client:   &http.Client{},
		fallback: fallback,
		logger:   logger,
	}
}

// Remote fetches the published version descriptor and returns its first
// non-empty line, trimmed. Any failure leaves the remote version
// unknown and the caller must not flash.
func (r *Resolver) Remote(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.VersionURL, nil)
	if err != nil {
		return "", fmt.Errorf("building version request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching version descriptor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching version descriptor: unexpected status %s", resp.Status)
	}

	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxVersionBytes))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading version descriptor: %w", err)
	}

	return "", errors.New("version descriptor is empty")
}

// Installed reports the firmware version currently on the device. It
// prefers the marker file on the device volume and falls back to asking
// the device. An empty string means the installed version is unknown.
func (r *Resolver) Installed() string {
	if volume, err := storage.Locate(r.opts); err == nil {
		if v, err := storage.ReadMarker(volume, r.opts.MarkerFile); err == nil && v != "" {
			return v
		}
		r.logger.Debug("version marker not readable, falling back to device query", "volume", volume, "marker", r.opts.MarkerFile)
	}

	if r.fallback != nil {
		if v, err := r.fallback(); err == nil {
			return strings.TrimSpace(v)
		}
	}

	return ""
}
