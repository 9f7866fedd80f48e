package x12

import (
	"strings"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Kind identifies a recognized X12 segment.
type Kind int

const (
	KindUnknown Kind = iota
	KindISA
	KindGS
	KindST
	KindBHT
	KindNM1
	KindN3
	KindN4
	KindREF
	KindHL
	KindSBR
	KindDMG
	KindCLM
	KindDTP
	KindHI
	KindLX
	KindSV1
	KindBPR
	KindTRN
	KindCLP
	KindCAS
	KindSE
	KindGE
	KindIEA
)

var kindNames = map[Kind]string{
	KindISA: "ISA", KindGS: "GS", KindST: "ST", KindBHT: "BHT", KindNM1: "NM1",
	KindN3: "N3", KindN4: "N4", KindREF: "REF", KindHL: "HL", KindSBR: "SBR",
	KindDMG: "DMG", KindCLM: "CLM", KindDTP: "DTP", KindHI: "HI", KindLX: "LX",
	KindSV1: "SV1", KindBPR: "BPR", KindTRN: "TRN", KindCLP: "CLP", KindCAS: "CAS",
	KindSE: "SE", KindGE: "GE", KindIEA: "IEA",
}

var kindByTag = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// KindOf maps a segment tag to its Kind. Unrecognized tags are KindUnknown.
func KindOf(tag string) Kind {
	return kindByTag[tag]
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Segment is a tokenized X12 segment tagged with its kind.
type Segment struct {
	Kind Kind
	segment.Fields
}

// decodeSegments tokenizes text and tags every non-empty segment.
func decodeSegments(text string, d segment.Delimiters) []Segment {
	raw := segment.TokenizeSegments(text, d.Segment)
	segs := make([]Segment, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		f := segment.Split(s, d.Field)
		segs = append(segs, Segment{Kind: KindOf(f.Tag()), Fields: f})
	}
	return segs
}

// isaLength is the fixed width of an ISA segment including its terminator.
const isaLength = 106

// DetectDelimiters reads the separators declared by a full-width ISA segment:
// element separator at offset 3, repetition at 82, component at 104 and the
// segment terminator at 105. Short or absent ISA segments fall back to the
// segment.X12 convention.
func DetectDelimiters(text string) segment.Delimiters {
	d := segment.X12
	t := strings.TrimLeft(text, " \t\r\n")
	if len(t) < isaLength || !strings.HasPrefix(t, "ISA") {
		return d
	}

	field, rep, comp, term := t[3], t[82], t[104], t[105]
	for _, c := range []byte{field, comp, term} {
		if isAlnum(c) || c == ' ' {
			return d
		}
	}
	if field == comp || field == term || comp == term {
		return d
	}

	d.Field = string(field)
	d.Component = string(comp)
	d.Segment = string(term)
	// 4010 envelopes carry "U" in ISA11 instead of a repetition separator.
	if !isAlnum(rep) && rep != ' ' {
		d.Repetition = string(rep)
	}
	return d
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
