package hl7v2

import (
	"strings"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Encoding is the delimiter set declared by MSH-1 and MSH-2.
type Encoding struct {
	Field        string
	Component    string
	Repetition   string
	EscapeChar   string
	Subcomponent string
	Characters   string // MSH-2 verbatim
}

// DefaultEncoding is |^~\& with \r between segments.
var DefaultEncoding = Encoding{
	Field:        segment.HL7.Field,
	Component:    segment.HL7.Component,
	Repetition:   segment.HL7.Repetition,
	EscapeChar:   `\`,
	Subcomponent: "&",
	Characters:   `^~\&`,
}

// lineBreak is the formatted-text escape used for embedded newlines.
const lineBreak = `.br`

// Escape replaces delimiter characters in s with HL7 escape sequences:
//
//	\F\ = field separator
//	\S\ = component separator
//	\R\ = repetition separator
//	\E\ = escape character
//	\T\ = subcomponent separator
//
// Embedded line breaks become \.br\ so they cannot end the segment.
func (e Encoding) Escape(s string) string {
	if e.EscapeChar == "" || s == "" {
		return s
	}
	return e.escaper().Replace(s)
}

// Unescape reverses Escape. Sequences it does not know (\H\, \Xdd\) are kept.
func (e Encoding) Unescape(s string) string {
	if e.EscapeChar == "" || !strings.Contains(s, e.EscapeChar) {
		return s
	}
	return e.unescaper().Replace(s)
}

func (e Encoding) seq(code string) string {
	return e.EscapeChar + code + e.EscapeChar
}

func (e Encoding) escaper() *strings.Replacer {
	pairs := []string{
		e.EscapeChar, e.seq("E"),
		e.Field, e.seq("F"),
		e.Component, e.seq("S"),
		e.Repetition, e.seq("R"),
		"\r\n", e.seq(lineBreak),
		"\r", e.seq(lineBreak),
		"\n", e.seq(lineBreak),
	}
	if e.Subcomponent != "" {
		pairs = append(pairs, e.Subcomponent, e.seq("T"))
	}
	return strings.NewReplacer(pairs...)
}

func (e Encoding) unescaper() *strings.Replacer {
	pairs := []string{
		e.seq("E"), e.EscapeChar,
		e.seq("F"), e.Field,
		e.seq("S"), e.Component,
		e.seq("R"), e.Repetition,
		e.seq(lineBreak), "\n",
	}
	if e.Subcomponent != "" {
		pairs = append(pairs, e.seq("T"), e.Subcomponent)
	}
	return strings.NewReplacer(pairs...)
}

// escapeHL7 escapes s with the default encoding characters.
func escapeHL7(s string) string {
	return DefaultEncoding.Escape(s)
}
