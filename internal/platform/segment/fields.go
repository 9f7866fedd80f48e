package segment

import "strings"

// Fields is a positional view over one tokenized segment. Position 0 is the
// tag; data fields start at 1, matching the XXnn numbering used by both X12
// (CLP01) and HL7 (PID-3).
type Fields struct {
	values []string
}

// Split tokenizes seg with the field delimiter and returns its positional view.
func Split(seg, delim string) Fields {
	return Fields{values: TokenizeFields(seg, delim)}
}

// NewFields builds a view from already separated values, tag first.
func NewFields(values []string) Fields {
	return Fields{values: values}
}

// Tag returns the leading segment identifier.
func (f Fields) Tag() string {
	if len(f.values) == 0 {
		return ""
	}
	return strings.TrimSpace(f.values[0])
}

// Len is the number of data fields after the tag.
func (f Fields) Len() int {
	if len(f.values) == 0 {
		return 0
	}
	return len(f.values) - 1
}

// Get returns field pos and whether the segment carries that position at all.
// A present but empty field returns ("", true).
func (f Fields) Get(pos int) (string, bool) {
	if pos < 1 || pos >= len(f.values) {
		return "", false
	}
	return f.values[pos], true
}

// Value returns field pos, or "" when absent.
func (f Fields) Value(pos int) string {
	v, _ := f.Get(pos)
	return v
}

// Require returns field pos trimmed of padding, or an ErrField error when the
// field is absent or blank.
func (f Fields) Require(pos int, name string) (string, error) {
	v, ok := f.Get(pos)
	if !ok {
		return "", FieldError(f.Tag(), pos, "%s is missing", name)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", FieldError(f.Tag(), pos, "%s is empty", name)
	}
	return v, nil
}

// Component returns sub-field idx (1-based) of field pos split on sep.
func (f Fields) Component(pos, idx int, sep string) (string, bool) {
	v, ok := f.Get(pos)
	if !ok || idx < 1 {
		return "", false
	}
	parts := strings.Split(v, sep)
	if idx > len(parts) {
		return "", false
	}
	return parts[idx-1], true
}

// MinFields fails with ErrStructural when fewer than n data fields exist.
func (f Fields) MinFields(n int) error {
	if f.Len() < n {
		return Structural(f.Tag(), "expected at least %d fields, got %d", n, f.Len())
	}
	return nil
}

// Values returns the raw values, tag first.
func (f Fields) Values() []string {
	return f.values
}

// Join re-serializes the view with delim.
func (f Fields) Join(delim string) string {
	return JoinFields(f.values, delim)
}
