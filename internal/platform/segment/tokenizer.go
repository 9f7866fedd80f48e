// Package segment holds the delimiter-based tokenizer shared by the X12 and
// HL7 v2 codecs, a positional field view with explicit absence, and the
// amount/date/name formatting both wire formats agree on.
package segment

import "strings"

// Delimiters is the separator set of a segment-oriented wire format.
type Delimiters struct {
	Segment    string
	Field      string
	Component  string
	Repetition string
}

// X12 is the common clearinghouse convention. A full-width ISA segment can
// declare different characters; see x12.DetectDelimiters.
var X12 = Delimiters{
	Segment:    "~",
	Field:      "*",
	Component:  ":",
	Repetition: "^",
}

// HL7 is the HL7 v2 default encoding. The segment terminator is a carriage
// return; "\n" and "\r\n" are accepted on input.
var HL7 = Delimiters{
	Segment:    "\r",
	Field:      "|",
	Component:  "^",
	Repetition: "~",
}

// TokenizeSegments splits text into segment strings. Line-break padding around
// a segment is removed, empty segments at the end are dropped and an
// unterminated final segment is kept. Empty segments between two terminators
// are preserved so positions stay stable; dispatchers skip them.
func TokenizeSegments(text, terminator string) []string {
	if terminator == "\r" || terminator == "\n" {
		text = strings.ReplaceAll(text, "\r\n", "\r")
		text = strings.ReplaceAll(text, "\n", "\r")
		terminator = "\r"
	}

	parts := strings.Split(text, terminator)
	for i, p := range parts {
		parts[i] = strings.Trim(p, "\r\n")
	}

	end := len(parts)
	for end > 0 && strings.TrimSpace(parts[end-1]) == "" {
		end--
	}
	return parts[:end]
}

// TokenizeFields splits a segment on delim. Empty fields keep their index.
func TokenizeFields(seg, delim string) []string {
	return strings.Split(seg, delim)
}

// JoinFields is the inverse of TokenizeFields.
func JoinFields(fields []string, delim string) string {
	return strings.Join(fields, delim)
}

// JoinSegments joins segments and terminates every one of them, which is the
// X12 convention. Use strings.Join directly for formats that only separate.
func JoinSegments(segments []string, terminator string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s)
		b.WriteString(terminator)
	}
	return b.String()
}
