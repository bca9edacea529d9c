package hex

import "fmt"

// RejectError reports why a firmware image failed validation. Line is
// 1-based; a zero Line means the defect concerns the file as a whole
// rather than a single record.
type RejectError struct {
	Reason   string
	Line     int
	Content  string
	Expected int
	Actual   int
	DumpPath string
}

func (e *RejectError) Error() string {
	if e.Line > 0 {
		if e.Expected > 0 || e.Actual > 0 {
			return fmt.Sprintf("invalid firmware image: %s at line %d (expected %d characters, got %d): %q",
				e.Reason, e.Line, e.Expected, e.Actual, e.Content)
		}
		return fmt.Sprintf("invalid firmware image: %s at line %d: %q", e.Reason, e.Line, e.Content)
	}
	return fmt.Sprintf("invalid firmware image: %s", e.Reason)
}
