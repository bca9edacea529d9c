// Package storage locates the device's mass-storage volume and reads
// its marker files. Flashing the device is a file copy onto this
// volume, so everything else in the update path depends on finding it.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahk4918/microlink/pkg/options"
)

// ErrNoVolume indicates no mounted volume matched any configured label.
var ErrNoVolume = errors.New("device volume not found")

// mountRoots are the directories scanned for a device volume, in order.
// $USER is expanded where present.
var mountRoots = []string{
	"/media/$USER",
	"/run/media/$USER",
	"/Volumes",
	"/media",
}

// Locate returns the path of the device's mounted volume. An explicit
// VolumePath wins unconditionally; otherwise the platform mount roots
// are scanned for a directory whose name contains one of the
// configured labels, case-insensitively.
func Locate(opts *options.UpdateOptions) (string, error) {
	if opts.VolumePath != "" {
		info, err := os.Stat(opts.VolumePath)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", errors.New("configured volume path is not a directory")
		}
		return opts.VolumePath, nil
	}

	user := os.Getenv("USER")
	for _, root := range mountRoots {
		if strings.Contains(root, "$USER") {
			if user == "" {
				continue
			}
			root = strings.ReplaceAll(root, "$USER", user)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if matchLabel(e.Name(), opts.VolumeLabels) {
				return filepath.Join(root, e.Name()), nil
			}
		}
	}

	return "", ErrNoVolume
}

func matchLabel(name string, labels []string) bool {
	name = strings.ToLower(name)
	for _, l := range labels {
		if l == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(l)) {
			return true
		}
	}
	return false
}

// ReadMarker reads a marker file from the volume and returns its
// trimmed contents.
func ReadMarker(volume, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(volume, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
