package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ahk4918/microlink/internal/firmware/hex"
	"github.com/ahk4918/microlink/internal/storage"
	"github.com/ahk4918/microlink/pkg/log"
	"github.com/ahk4918/microlink/pkg/options"
)

// Outcome classifies a single run of the update pipeline.
type Outcome int

const (
	// OutcomeUpToDate means the installed firmware matches the remote one.
	OutcomeUpToDate Outcome = iota
	// OutcomeUpdated means new firmware was installed and the process
	// should restart.
	OutcomeUpdated
	// OutcomeFailed means an update was attempted and did not complete.
	OutcomeFailed
	// OutcomeSkipped means updates are disabled by configuration.
	OutcomeSkipped
	// OutcomeCheckFailed means the remote version could not be determined,
	// so no flash was attempted.
	OutcomeCheckFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCheckFailed:
		return "check-failed"
	default:
		return "unknown"
	}
}

// Updater runs the firmware update pipeline once per process start.
type Updater struct {
	opts     *options.UpdateOptions
	resolver *Resolver
	client   *http.Client
	logger   log.Logger
}

// New creates an Updater around the given resolver.
func New(opts *options.UpdateOptions, resolver *Resolver, logger log.Logger) *Updater {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Updater{
		opts:     opts,
		resolver: resolver,
		client:   &http.Client{},
		logger:   logger,
	}
}

// Run compares versions and installs new firmware when needed. Every
// failure path leaves the currently installed firmware in place; the
// only way firmware changes is a downloaded image that passed
// validation landing under its final name via an atomic rename.
func (u *Updater) Run(ctx context.Context) (Outcome, error) {
	if !u.opts.Enabled {
		return OutcomeSkipped, nil
	}

	remote, err := u.resolver.Remote(ctx)
	if err != nil {
		u.logger.Warn("remote version unknown, skipping update", "err", err)
		return OutcomeCheckFailed, err
	}

	installed := u.resolver.Installed()
	if installed == remote {
		u.logger.Info("firmware is current", "version", installed)
		return OutcomeUpToDate, nil
	}
	u.logger.Info("firmware differs", "installed", installed, "remote", remote)

	volume, err := storage.Locate(u.opts)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("locating device volume: %w", err)
	}

	image, err := u.download(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("downloading firmware: %w", err)
	}

	if err := u.install(volume, image); err != nil {
		return OutcomeFailed, err
	}

	u.logger.Info("firmware installed", "version", remote, "volume", volume)
	return OutcomeUpdated, nil
}

// download fetches the firmware image with bounded constant-interval
// retries.
func (u *Updater) download(ctx context.Context) ([]byte, error) {
	var image []byte

	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, u.opts.DownloadTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(actx, http.MethodGet, u.opts.FirmwareURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := u.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		image = body
		return nil
	}

	retries := uint64(0)
	if u.opts.DownloadRetries > 1 {
		retries = uint64(u.opts.DownloadRetries - 1)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(u.opts.RetryDelay), retries), ctx)

	notify := func(err error, next time.Duration) {
		u.logger.Warn("firmware download attempt failed", "err", err, "retry-in", next)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return nil, err
	}
	return image, nil
}

// install writes the image to a staging name on the volume, fsyncs it,
// and renames it into place so the device never observes a partial
// file. The renamed file is then re-checked: size first, then full
// structural validation. A file that fails validation stays on the
// volume for inspection but the install is reported as failed.
func (u *Updater) install(volume string, image []byte) error {
	final := filepath.Join(volume, u.opts.FirmwareFile)
	staging := filepath.Join(volume, "."+u.opts.FirmwareFile+".tmp")

	if err := writeStaging(staging, image); err != nil {
		return fmt.Errorf("staging firmware: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("installing firmware: %w", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return fmt.Errorf("re-reading installed firmware: %w", err)
	}
	if info.Size() != int64(len(image)) {
		return fmt.Errorf("installed firmware is %d bytes, expected %d", info.Size(), len(image))
	}

	data, err := os.ReadFile(final)
	if err != nil {
		return fmt.Errorf("re-reading installed firmware: %w", err)
	}
	if err := hex.Validate(data, hex.WithMinSize(u.opts.MinImageSize)); err != nil {
		return fmt.Errorf("validating installed firmware: %w", err)
	}

	return nil
}

func writeStaging(path string, image []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// Restart replaces the running process with a fresh copy of itself so
// the controller reconnects against the just-flashed firmware.
func Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("restarting: %w", err)
	}
	os.Exit(0)
	return nil
}
