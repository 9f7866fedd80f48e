package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Wire layouts shared by X12 and HL7.
const (
	DateLayout      = "20060102"
	TimestampLayout = "20060102150405"
	ClockLayout     = "1504"
)

// FormatAmount renders a monetary amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseAmount reads a literal decimal monetary string such as "150.00".
// Implied-decimal integer cents are not supported.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("amount %q is not a plain decimal", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not numeric", s)
	}
	return d, nil
}

// HasCentPrecision reports whether d needs no more than two fractional digits.
func HasCentPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// FormatDate renders t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTimestamp renders t as YYYYMMDDHHmmss.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseDate reads a YYYYMMDD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date %q is not YYYYMMDD", s)
	}
	return time.Parse(DateLayout, s)
}

// ParseTimestamp reads an HL7 style timestamp with second, minute or day
// precision. Fractional seconds and zone offsets beyond 14 digits are ignored.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse(TimestampLayout, s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse(DateLayout, s[:8])
	default:
		return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
	}
}

// SplitName splits a display name into family and given parts. "Doe, John"
// and "John Doe" both yield ("Doe", "John"). A single word is the family name.
func SplitName(full string) (family, given string) {
	full = strings.TrimSpace(full)
	if i := strings.Index(full, ","); i >= 0 {
		return strings.TrimSpace(full[:i]), strings.TrimSpace(full[i+1:])
	}
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return words[0], ""
	default:
		return words[len(words)-1], strings.Join(words[:len(words)-1], " ")
	}
}

// GenderCode maps a gender word or code to the single-letter administrative
// sex code used by both X12 DMG03 and HL7 PID-8.
func GenderCode(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "m", "male":
		return "M"
	case "f", "female":
		return "F"
	case "o", "other":
		return "O"
	default:
		return "U"
	}
}
