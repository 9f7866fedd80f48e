package segment

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSegments(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		terminator string
		want       []string
	}{
		{"terminated", "ST*835*0001~CLP*A~", "~", []string{"ST*835*0001", "CLP*A"}},
		{"unterminated tail", "ST*835*0001~CLP*A", "~", []string{"ST*835*0001", "CLP*A"}},
		{"consecutive terminators kept inside", "ST*1~~SE*2~~~", "~", []string{"ST*1", "", "SE*2"}},
		{"line breaks after terminator", "ST*1~\nSE*2~\r\n", "~", []string{"ST*1", "SE*2"}},
		{"hl7 lf", "MSH|^~\\&\nPID|1\n", "\r", []string{"MSH|^~\\&", "PID|1"}},
		{"hl7 crlf", "MSH|^~\\&\r\nPID|1", "\r", []string{"MSH|^~\\&", "PID|1"}},
		{"empty", "", "~", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeSegments(tt.text, tt.terminator))
		})
	}
}

func TestTokenizeFields_PreservesEmptyPositions(t *testing.T) {
	got := TokenizeFields("PID|1||patient-123||Doe^John", "|")
	require.Len(t, got, 6)
	assert.Equal(t, "", got[2])
	assert.Equal(t, "patient-123", got[3])
	assert.Equal(t, "", got[4])
}

func TestTokenizer_ReserializationIsStable(t *testing.T) {
	text := "ISA*00*x~GS*HC*A*B~ST*837*0001~NM1*85*2*CLINIC*****XX*1234567893~SE*3*0001~"

	var segs []string
	for _, s := range TokenizeSegments(text, X12.Segment) {
		segs = append(segs, JoinFields(TokenizeFields(s, X12.Field), X12.Field))
	}

	assert.Equal(t, text, JoinSegments(segs, X12.Segment))
}

func TestFields_Accessors(t *testing.T) {
	f := Split("CLP*CLM-1**150.00", "*")

	assert.Equal(t, "CLP", f.Tag())
	assert.Equal(t, 3, f.Len())

	v, ok := f.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "CLM-1", v)

	v, ok = f.Get(2)
	assert.True(t, ok, "empty middle field is still present")
	assert.Equal(t, "", v)

	_, ok = f.Get(4)
	assert.False(t, ok)
	_, ok = f.Get(0)
	assert.False(t, ok)

	_, err := f.Require(2, "status")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrField))
	assert.Contains(t, err.Error(), "CLP02")

	_, err = f.Require(5, "patient responsibility")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrField))

	assert.NoError(t, f.MinFields(3))
	err = f.MinFields(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestFields_Component(t *testing.T) {
	f := Split("SV1*HC:99213*150.00", "*")

	c, ok := f.Component(1, 2, ":")
	assert.True(t, ok)
	assert.Equal(t, "99213", c)

	_, ok = f.Component(1, 3, ":")
	assert.False(t, ok)
	_, ok = f.Component(9, 1, ":")
	assert.False(t, ok)
}

func TestAmounts(t *testing.T) {
	d, err := ParseAmount("150.00")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, "150.00", FormatAmount(d))

	assert.Equal(t, "0.10", FormatAmount(decimal.RequireFromString("0.1")))
	assert.Equal(t, "-12.50", FormatAmount(decimal.RequireFromString("-12.5")))

	for _, bad := range []string{"", "  ", "abc", "1e3", "12,00"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, "input %q", bad)
	}

	assert.True(t, HasCentPrecision(decimal.RequireFromString("10.25")))
	assert.False(t, HasCentPrecision(decimal.RequireFromString("10.255")))
}

func TestDates(t *testing.T) {
	ts := time.Date(2024, 1, 2, 13, 4, 5, 0, time.UTC)
	assert.Equal(t, "20240102", FormatDate(ts))
	assert.Equal(t, "20240102130405", FormatTimestamp(ts))

	d, err := ParseDate("19900101")
	require.NoError(t, err)
	assert.Equal(t, 1990, d.Year())

	_, err = ParseDate("1990-01-01")
	assert.Error(t, err)

	for _, in := range []string{"20240102130405", "20240102130405.123-0500", "202401021304", "20240102"} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, 2, got.Day(), in)
	}
	_, err = ParseTimestamp("2024")
	assert.Error(t, err)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, family, given string
	}{
		{"John Doe", "Doe", "John"},
		{"Mary Ann Smith", "Smith", "Mary Ann"},
		{"Doe, John", "Doe", "John"},
		{"Cher", "Cher", ""},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		family, given := SplitName(tt.in)
		assert.Equal(t, tt.family, family, tt.in)
		assert.Equal(t, tt.given, given, tt.in)
	}
}

func TestGenderCode(t *testing.T) {
	assert.Equal(t, "M", GenderCode("male"))
	assert.Equal(t, "M", GenderCode("M"))
	assert.Equal(t, "F", GenderCode("Female"))
	assert.Equal(t, "O", GenderCode("other"))
	assert.Equal(t, "U", GenderCode(""))
}

func TestError_Format(t *testing.T) {
	err := FieldError("CAS", 3, "amount %q is not numeric", "x")
	assert.Equal(t, `field error: CAS03: amount "x" is not numeric`, err.Error())

	err = Structural("MSH", "segment not found")
	assert.Equal(t, "structural error: MSH: segment not found", err.Error())
	assert.True(t, strings.HasPrefix(Structural("", "empty").Error(), "structural error"))
}
