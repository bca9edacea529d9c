package device

import (
	"fmt"
	"strings"
)

// Command builders for the device's line protocol. These are pure string
// formatting with argument validation; sending is the manager's job.

var (
	validSensors = map[string]bool{"temp": true, "light": true, "accel": true, "compass": true}
	validPins    = map[string]bool{"p0": true, "p1": true, "p2": true}
)

// GetSensor reads one of: temp, light, accel, compass.
func GetSensor(sensor string) (string, error) {
	s := strings.ToLower(sensor)
	if !validSensors[s] {
		return "", fmt.Errorf("unknown sensor %q (want temp, light, accel or compass)", sensor)
	}
	return "get_sensor " + s, nil
}

// GetPin reads the analog value of p0, p1 or p2.
func GetPin(pin string) (string, error) {
	p := strings.ToLower(pin)
	if !validPins[p] {
		return "", fmt.Errorf("unknown pin %q (want p0, p1 or p2)", pin)
	}
	return "get_pin " + p, nil
}

// PinWrite drives a pin digitally ("d") or with analog PWM ("a").
func PinWrite(mode, pin string, value int) (string, error) {
	m := strings.ToLower(mode)
	if m != "d" && m != "a" {
		return "", fmt.Errorf("unknown pin mode %q (want d or a)", mode)
	}
	p := strings.ToLower(pin)
	if !validPins[p] {
		return "", fmt.Errorf("unknown pin %q (want p0, p1 or p2)", pin)
	}
	return fmt.Sprintf("pin %s %s %d", m, p, value), nil
}

// Tone plays a frequency for the given duration.
func Tone(freq, durationMs int) string {
	return fmt.Sprintf("tone %d %d", freq, durationMs)
}

// Print scrolls text on the LED matrix.
func Print(text string) string {
	return "print " + strings.TrimSpace(text)
}

// Plot lights the pixel at (x, y).
func Plot(x, y int) string { return fmt.Sprintf("plot %d %d", x, y) }

// Unplot clears the pixel at (x, y).
func Unplot(x, y int) string { return fmt.Sprintf("unplot %d %d", x, y) }

// Toggle flips the pixel at (x, y).
func Toggle(x, y int) string { return fmt.Sprintf("toggle %d %d", x, y) }

// Clear blanks the LED matrix.
func Clear() string { return "clear" }

// Reset returns pins and display to a known state; the device acknowledges.
func Reset() string { return "reset" }

// Ping expects "pong" back.
func Ping() string { return "ping" }

// Version asks for the installed interpreter version token. Expects a single
// reply line and should be sent through the correlated query path.
func Version() string { return "version" }
