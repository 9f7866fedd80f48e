package segment

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every codec error wraps exactly one of them so callers
// can branch with errors.Is.
var (
	// ErrStructural means a required segment is missing or a header is malformed.
	ErrStructural = errors.New("structural error")

	// ErrField means a required field inside a recognized segment is empty or
	// cannot be read as the expected type.
	ErrField = errors.New("field error")
)

// Error describes a codec failure and points at the offending segment and
// field position. Position is 0 when the error concerns the whole segment.
type Error struct {
	Kind     error
	Segment  string
	Position int
	Msg      string
}

func (e *Error) Error() string {
	switch {
	case e.Segment == "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	case e.Position > 0:
		return fmt.Sprintf("%v: %s%02d: %s", e.Kind, e.Segment, e.Position, e.Msg)
	default:
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Segment, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// Structural returns an ErrStructural error about the named segment.
func Structural(seg string, format string, args ...interface{}) error {
	return &Error{Kind: ErrStructural, Segment: seg, Msg: fmt.Sprintf(format, args...)}
}

// FieldError returns an ErrField error about field pos of the named segment.
func FieldError(seg string, pos int, format string, args ...interface{}) error {
	return &Error{Kind: ErrField, Segment: seg, Position: pos, Msg: fmt.Sprintf(format, args...)}
}
