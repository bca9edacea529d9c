// Package hex validates Intel hex firmware images before they are
// allowed anywhere near a device volume. It checks structure only; it
// does not verify per-record checksums or decode payload data.
package hex

import (
	"fmt"
	"os"
	"strings"
)

// Constants for the Intel hex record layout.
const (
	// RecordMarker is the character every record starts with.
	RecordMarker = ':'

	// RecordOverhead is the number of characters in a record that are
	// not payload data: marker(1) + count(2) + address(4) + type(2) +
	// checksum(2).
	RecordOverhead = 11

	// countOffset, addressOffset and typeOffset are the fixed positions
	// of the header fields within a record.
	countOffset   = 1
	addressOffset = 3
	typeOffset    = 7

	// EOFRecord terminates a well-formed image.
	EOFRecord = ":00000001FF"

	// ELAPrefix starts an extended linear address record. Images built
	// for the target always carry at least one.
	ELAPrefix = ":02000004"

	// DefaultMinSize is the sanity floor applied before any per-line
	// checks. Real images are tens of kilobytes; anything under this is
	// a truncated download, not a firmware file.
	DefaultMinSize = 1024
)

// Config holds the validator configuration.
type Config struct {
	// MinSize is the minimum plausible image size in bytes.
	MinSize int

	// DumpDir is where rejected images are persisted for inspection.
	// Defaults to the system temp directory.
	DumpDir string
}

func defaultConfig() Config {
	return Config{
		MinSize: DefaultMinSize,
		DumpDir: os.TempDir(),
	}
}

// Option is a functional option for configuring validation.
type Option func(*Config)

// WithMinSize overrides the minimum plausible image size.
func WithMinSize(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.MinSize = size
		}
	}
}

// WithDumpDir sets the directory rejected images are dumped to.
func WithDumpDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.DumpDir = dir
		}
	}
}

// Validate checks that data is a structurally sound Intel hex image.
// It returns nil for a valid image and a *RejectError describing the
// first defect otherwise. On rejection the full set of lines is written
// to a dump file so the failure is reproducible. The input is never
// modified.
func Validate(data []byte, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	lines := splitLines(data)

	if len(data) < cfg.MinSize {
		return reject(cfg, lines, &RejectError{
			Reason: fmt.Sprintf("image is %d bytes, below the minimum plausible size of %d", len(data), cfg.MinSize),
		})
	}

	var sawEOF, sawELA bool
	for i, line := range lines {
		num := i + 1

		if line[0] != RecordMarker {
			return reject(cfg, lines, &RejectError{
				Reason:  "record does not start with ':'",
				Line:    num,
				Content: line,
			})
		}

		if len(line) < RecordOverhead {
			return reject(cfg, lines, &RejectError{
				Reason:   "record too short to hold the count, address and type fields",
				Line:     num,
				Content:  line,
				Expected: RecordOverhead,
				Actual:   len(line),
			})
		}

		count, ok := parseHexField(line, countOffset, 2)
		if !ok {
			return reject(cfg, lines, &RejectError{
				Reason:  "byte count field is not valid hex",
				Line:    num,
				Content: line,
			})
		}
		if _, ok := parseHexField(line, addressOffset, 4); !ok {
			return reject(cfg, lines, &RejectError{
				Reason:  "address field is not valid hex",
				Line:    num,
				Content: line,
			})
		}
		if _, ok := parseHexField(line, typeOffset, 2); !ok {
			return reject(cfg, lines, &RejectError{
				Reason:  "record type field is not valid hex",
				Line:    num,
				Content: line,
			})
		}

		expected := RecordOverhead + 2*count
		if len(line) != expected {
			return reject(cfg, lines, &RejectError{
				Reason:   fmt.Sprintf("record length does not match declared byte count %d", count),
				Line:     num,
				Content:  line,
				Expected: expected,
				Actual:   len(line),
			})
		}

		if strings.EqualFold(line, EOFRecord) {
			sawEOF = true
		}
		if strings.HasPrefix(line, ELAPrefix) {
			sawELA = true
		}
	}

	if !sawEOF {
		return reject(cfg, lines, &RejectError{
			Reason: "missing EOF record",
		})
	}
	if !sawELA {
		return reject(cfg, lines, &RejectError{
			Reason: "missing extended linear address record",
		})
	}

	return nil
}

// splitLines breaks the image into physical lines, dropping line
// endings and blank lines.
func splitLines(data []byte) []string {
	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// parseHexField reads width characters at offset and interprets them as
// a hexadecimal number.
func parseHexField(line string, offset, width int) (int, bool) {
	if len(line) < offset+width {
		return 0, false
	}
	var v int
	for _, c := range line[offset : offset+width] {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

// reject persists the lines under inspection to a dump file and
// annotates the error with the dump location. Dump failures are
// swallowed so the rejection itself always reaches the caller.
func reject(cfg Config, lines []string, rerr *RejectError) error {
	f, err := os.CreateTemp(cfg.DumpDir, "firmware-reject-*.hex")
	if err != nil {
		return rerr
	}
	defer func() { _ = f.Close() }()

	for _, l := range lines {
		if _, err := fmt.Fprintln(f, l); err != nil {
			return rerr
		}
	}
	rerr.DumpPath = f.Name()

	return rerr
}
