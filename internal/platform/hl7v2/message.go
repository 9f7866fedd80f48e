package hl7v2

import (
	"strings"
	"time"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Message represents a parsed HL7v2 message.
type Message struct {
	Type         string    // MSH-9 message type (e.g. "ORU^R01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.5")
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Encoding     Encoding  // MSH-1 and MSH-2
	Segments     []Segment
}

// SegmentKind identifies the segments the codec interprets.
type SegmentKind int

const (
	KindUnknown SegmentKind = iota
	KindMSH
	KindPID
	KindORC
	KindOBR
	KindOBX
	KindMSA
)

var segmentKinds = map[string]SegmentKind{
	"MSH": KindMSH,
	"PID": KindPID,
	"ORC": KindORC,
	"OBR": KindOBR,
	"OBX": KindOBX,
	"MSA": KindMSA,
}

// Segment represents a single HL7v2 segment.
type Segment struct {
	Name   string // e.g. "MSH", "PID", "OBR", "OBX"
	Kind   SegmentKind
	Fields []Field
}

// Field represents a field which can have components and repetitions.
type Field struct {
	Value      string
	Components []string   // components of the first repetition
	Repeats    [][]string // every repetition, each split into components
}

// Parse parses raw HL7v2 message bytes into a structured Message.
// It supports \r, \n, and \r\n line endings for segment separation and reads
// the delimiters from MSH-1 and MSH-2 instead of assuming |^~\&.
func Parse(raw []byte) (*Message, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, segment.Structural("", "message is empty")
	}

	var lines []string
	for _, line := range segment.TokenizeSegments(string(raw), segment.HL7.Segment) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimLeft(line, " \t"))
		}
	}
	if len(lines) == 0 {
		return nil, segment.Structural("", "no segments found")
	}

	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, segment.Structural("MSH", "first segment must be MSH, got %q", lines[0][:min(3, len(lines[0]))])
	}
	enc, err := readEncoding(lines[0])
	if err != nil {
		return nil, err
	}

	msg := &Message{Encoding: enc}
	for _, line := range lines {
		msg.Segments = append(msg.Segments, enc.parseSegment(line))
	}
	msg.extractMSHFields()
	return msg, nil
}

// readEncoding validates MSH-1 and MSH-2.
func readEncoding(msh string) (Encoding, error) {
	if len(msh) < 5 {
		return Encoding{}, segment.Structural("MSH", "header is too short to declare delimiters")
	}
	fieldSep := msh[3]
	if isAlnum(fieldSep) || fieldSep == ' ' || fieldSep == '\t' {
		return Encoding{}, segment.Structural("MSH", "invalid field separator %q", fieldSep)
	}

	chars, _, _ := strings.Cut(msh[4:], string(fieldSep))
	if len(chars) < 2 || len(chars) > 5 {
		return Encoding{}, segment.Structural("MSH", "encoding characters %q must be 2 to 5 characters", chars)
	}
	seen := map[byte]bool{fieldSep: true}
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		if seen[c] || isAlnum(c) || c == ' ' {
			return Encoding{}, segment.Structural("MSH", "invalid encoding characters %q", chars)
		}
		seen[c] = true
	}

	enc := Encoding{
		Field:      string(fieldSep),
		Component:  chars[0:1],
		Repetition: chars[1:2],
		Characters: chars,
	}
	if len(chars) > 2 {
		enc.EscapeChar = chars[2:3]
	}
	if len(chars) > 3 {
		enc.Subcomponent = chars[3:4]
	}
	return enc, nil
}

// parseSegment parses a single segment line into a Segment struct.
func (e Encoding) parseSegment(line string) Segment {
	parts := segment.TokenizeFields(line, e.Field)
	seg := Segment{Name: strings.TrimSpace(parts[0])}
	seg.Kind = segmentKinds[seg.Name]

	// MSH is special: the field separator is MSH-1 itself and MSH-2 holds
	// the encoding characters verbatim, so Fields[0] is MSH-1.
	if seg.Kind == KindMSH {
		seg.Fields = append(seg.Fields, Field{Value: e.Field, Components: []string{e.Field}, Repeats: [][]string{{e.Field}}})
		if len(parts) > 1 {
			seg.Fields = append(seg.Fields, Field{Value: parts[1], Components: []string{parts[1]}, Repeats: [][]string{{parts[1]}}})
		}
		for _, p := range parts[min(2, len(parts)):] {
			seg.Fields = append(seg.Fields, e.parseField(p))
		}
		return seg
	}

	for _, p := range parts[1:] {
		seg.Fields = append(seg.Fields, e.parseField(p))
	}
	return seg
}

// parseField parses a single field, handling components and repetitions.
func (e Encoding) parseField(raw string) Field {
	f := Field{Value: raw}
	for _, rep := range strings.Split(raw, e.Repetition) {
		f.Repeats = append(f.Repeats, strings.Split(rep, e.Component))
	}
	f.Components = f.Repeats[0]
	return f
}

// extractMSHFields extracts commonly used MSH fields into the Message struct.
func (m *Message) extractMSHFields() {
	msh := m.GetSegment("MSH")
	if msh == nil {
		return
	}

	m.SendingApp = msh.GetField(3)
	m.SendingFac = msh.GetField(4)
	m.ReceivingApp = msh.GetField(5)
	m.ReceivingFac = msh.GetField(6)

	if ts := msh.GetField(7); ts != "" {
		if t, err := segment.ParseTimestamp(ts); err == nil {
			m.Timestamp = t
		}
	}

	m.Type = msh.GetField(9)
	m.ControlID = msh.GetField(10)
	m.Version = msh.GetField(12)
}

// MessageCode returns MSH-9.1, e.g. "ORU".
func (m *Message) MessageCode() string {
	code, _, _ := strings.Cut(m.Type, m.Encoding.Component)
	return code
}

// TriggerEvent returns MSH-9.2, e.g. "R01".
func (m *Message) TriggerEvent() string {
	_, rest, _ := strings.Cut(m.Type, m.Encoding.Component)
	trigger, _, _ := strings.Cut(rest, m.Encoding.Component)
	return trigger
}

// GetSegment returns the first segment with the given name, or nil if not found.
func (m *Message) GetSegment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// GetSegments returns all segments with the given name.
func (m *Message) GetSegments(name string) []Segment {
	var result []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			result = append(result, seg)
		}
	}
	return result
}

// Lookup returns field index (1-based, MSH-1 being the field separator) and
// whether the segment carries that position.
func (s *Segment) Lookup(index int) (*Field, bool) {
	idx := index - 1
	if idx < 0 || idx >= len(s.Fields) {
		return nil, false
	}
	return &s.Fields[idx], true
}

// GetField returns the raw value of a field by 1-based index, or "" when
// absent.
func (s *Segment) GetField(index int) string {
	f, ok := s.Lookup(index)
	if !ok {
		return ""
	}
	return f.Value
}

// GetComponent returns a component value by 1-based field and component indices.
func (s *Segment) GetComponent(fieldIdx, compIdx int) string {
	f, ok := s.Lookup(fieldIdx)
	if !ok {
		return ""
	}
	ci := compIdx - 1
	if ci < 0 || ci >= len(f.Components) {
		return ""
	}
	return f.Components[ci]
}

// PatientID returns PID-3.1 (the first component of the patient identifier field).
func (m *Message) PatientID() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return m.Encoding.Unescape(pid.GetComponent(3, 1))
}

// PatientName returns the family and given name from PID-5 (family^given).
func (m *Message) PatientName() (family, given string) {
	pid := m.GetSegment("PID")
	if pid == nil {
		return "", ""
	}
	return m.Encoding.Unescape(pid.GetComponent(5, 1)), m.Encoding.Unescape(pid.GetComponent(5, 2))
}

// DateOfBirth returns PID-7 (date of birth).
func (m *Message) DateOfBirth() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetField(7)
}

// Gender returns PID-8 (administrative sex).
func (m *Message) Gender() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetField(8)
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
