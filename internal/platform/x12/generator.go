package x12

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Implementation guide identifiers.
const (
	Version837P = "005010X222A1"
	Version835  = "005010X221A1"
	isaVersion  = "00501"
	maxHICodes  = 12
)

// writer accumulates segments and remembers the first encoding error.
type writer struct {
	d        segment.Delimiters
	segments []string
	err      error
}

func newWriter(d segment.Delimiters) *writer {
	return &writer{d: d}
}

// segBuilder assembles one segment element by element.
type segBuilder struct {
	w     *writer
	tag   string
	elems []string
}

func (w *writer) seg(tag string) *segBuilder {
	return &segBuilder{w: w, tag: tag}
}

// el appends simple data elements. A value carrying any delimiter is rejected.
func (s *segBuilder) el(values ...string) *segBuilder {
	for _, v := range values {
		s.check(v)
		s.elems = append(s.elems, v)
	}
	return s
}

// comp appends one composite element built from parts.
func (s *segBuilder) comp(parts ...string) *segBuilder {
	for _, p := range parts {
		s.check(p)
	}
	for len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	s.elems = append(s.elems, strings.Join(parts, s.w.d.Component))
	return s
}

// amt appends a monetary element. Amounts finer than a cent are rejected
// rather than rounded.
func (s *segBuilder) amt(values ...decimal.Decimal) *segBuilder {
	for _, d := range values {
		if s.w.err == nil && !segment.HasCentPrecision(d) {
			s.w.err = segment.FieldError(s.tag, len(s.elems)+1, "amount %s has more than two decimals", d)
		}
		s.elems = append(s.elems, segment.FormatAmount(d))
	}
	return s
}

func (s *segBuilder) check(v string) {
	if s.w.err != nil {
		return
	}
	d := s.w.d
	if strings.ContainsAny(v, d.Segment+d.Field+d.Component+d.Repetition) {
		s.w.err = segment.FieldError(s.tag, len(s.elems)+1, "value %q contains a delimiter", v)
	}
}

// end trims trailing empty elements and appends the segment.
func (s *segBuilder) end() {
	elems := s.elems
	for len(elems) > 0 && elems[len(elems)-1] == "" {
		elems = elems[:len(elems)-1]
	}
	s.w.segments = append(s.w.segments, segment.JoinFields(append([]string{s.tag}, elems...), s.w.d.Field))
}

// render terminates every segment.
func (w *writer) render() string {
	return segment.JoinSegments(w.segments, w.d.Segment)
}

// writeHeader emits ISA, GS and ST.
func (w *writer) writeHeader(env Envelope, functionalID, setID, version string) {
	if len(env.SenderID) > 15 || len(env.ReceiverID) > 15 {
		w.err = segment.FieldError("ISA", 6, "sender and receiver ids are limited to 15 characters")
		return
	}
	// ISA is fixed width; DetectDelimiters reads it by offset.
	if len(env.SenderQualifier) != 2 {
		w.err = segment.FieldError("ISA", 5, "sender qualifier %q must be 2 characters", env.SenderQualifier)
		return
	}
	if len(env.ReceiverQualifier) != 2 {
		w.err = segment.FieldError("ISA", 7, "receiver qualifier %q must be 2 characters", env.ReceiverQualifier)
		return
	}
	if env.Usage != "P" && env.Usage != "T" {
		w.err = segment.FieldError("ISA", 15, "usage indicator %q must be P or T", env.Usage)
		return
	}
	for _, v := range []string{env.SenderQualifier, env.SenderID, env.ReceiverQualifier, env.ReceiverID} {
		if strings.ContainsAny(v, w.d.Segment+w.d.Field+w.d.Component+w.d.Repetition) {
			w.err = segment.FieldError("ISA", 6, "value %q contains a delimiter", v)
			return
		}
	}

	isa := []string{
		"ISA",
		"00", pad("", 10),
		"00", pad("", 10),
		pad(env.SenderQualifier, 2), pad(env.SenderID, 15),
		pad(env.ReceiverQualifier, 2), pad(env.ReceiverID, 15),
		env.Timestamp.Format("060102"),
		env.Timestamp.Format(segment.ClockLayout),
		w.d.Repetition,
		isaVersion,
		fmt.Sprintf("%09d", env.InterchangeControl),
		"0",
		env.Usage,
		w.d.Component,
	}
	w.segments = append(w.segments, segment.JoinFields(isa, w.d.Field))

	w.seg("GS").el(
		functionalID, env.SenderID, env.ReceiverID,
		segment.FormatDate(env.Timestamp), env.Timestamp.Format(segment.ClockLayout),
		strconv.FormatInt(env.GroupControl, 10), "X", version,
	).end()
	w.seg("ST").el(setID, transactionControl(env), version).end()
}

// writeTrailer emits SE, GE and IEA. stIndex is the position of ST in
// w.segments so the SE count covers ST through SE inclusive.
func (w *writer) writeTrailer(env Envelope, stIndex int) {
	count := len(w.segments) - stIndex + 1
	w.seg("SE").el(strconv.Itoa(count), transactionControl(env)).end()
	w.seg("GE").el("1", strconv.FormatInt(env.GroupControl, 10)).end()
	w.seg("IEA").el("1", fmt.Sprintf("%09d", env.InterchangeControl)).end()
}

func transactionControl(env Envelope) string {
	return fmt.Sprintf("%04d", env.TransactionControl)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Generate837 builds a professional claim (837P) interchange for claim.
// Amounts carry two fractional digits and dates are YYYYMMDD; ISA09 keeps
// the envelope's six-digit YYMMDD form.
func Generate837(claim *Claim, env Envelope) (string, error) {
	if err := checkClaim(claim); err != nil {
		return "", err
	}
	env = env.withDefaults()

	w := newWriter(segment.X12)
	w.writeHeader(env, "HC", "837", Version837P)
	if w.err != nil {
		return "", w.err
	}
	stIndex := len(w.segments) - 1

	date := segment.FormatDate(env.Timestamp)
	clock := env.Timestamp.Format(segment.ClockLayout)
	bp := claim.BillingProvider

	w.seg("BHT").el("0019", "00", claim.ClaimNumber, date, clock, "CH").end()

	// 1000A submitter, 1000B receiver
	w.seg("NM1").el("41", "2", bp.Name, "", "", "", "", "46", env.SenderID).end()
	w.seg("NM1").el("40", "2", claim.InsuranceProvider, "", "", "", "", "46", env.ReceiverID).end()

	// 2000A / 2010AA billing provider
	w.seg("HL").el("1", "", "20", "1").end()
	w.seg("NM1").el("85", "2", bp.Name, "", "", "", "", "XX", bp.NPI).end()
	w.seg("N3").el(bp.Address).end()
	w.seg("N4").el(bp.City, bp.State, bp.Zip).end()

	// 2000B / 2010BA subscriber, 2010BB payer
	family, given := segment.SplitName(claim.Patient.Name)
	w.seg("HL").el("2", "1", "22", "0").end()
	w.seg("SBR").el("P", "18", "", "", "", "", "", "", "CI").end()
	w.seg("NM1").el("IL", "1", family, given, "", "", "", "MI", claim.SubscriberID).end()
	w.seg("DMG").el("D8", segment.FormatDate(claim.Patient.DateOfBirth), dmgGender(claim.Patient.Gender)).end()
	w.seg("NM1").el("PR", "2", claim.InsuranceProvider, "", "", "", "", "PI", claim.PayerID).end()

	// 2300 claim
	w.seg("CLM").
		el(claim.ClaimNumber, segment.FormatAmount(claim.TotalCharge()), "", "").
		comp("11", "B", "1").
		el("Y", "A", "Y", "Y").
		end()
	from, to := claim.ServicePeriod()
	w.seg("DTP").el("434", "RD8", segment.FormatDate(from)+"-"+segment.FormatDate(to)).end()
	w.seg("REF").el("EA", claim.Patient.ID).end()

	codes, pointers := diagnosisPointers(claim.Charges)
	if len(codes) > maxHICodes {
		return "", segment.FieldError("HI", maxHICodes+1, "claim carries %d distinct diagnoses, limit is %d", len(codes), maxHICodes)
	}
	hi := w.seg("HI")
	for i, code := range codes {
		qualifier := "ABF"
		if i == 0 {
			qualifier = "ABK"
		}
		hi.comp(qualifier, code)
	}
	hi.end()

	// 2400 service lines
	for i, ch := range claim.Charges {
		w.seg("LX").el(strconv.Itoa(i + 1)).end()
		w.seg("SV1").
			comp("HC", ch.CPTCode).
			el(segment.FormatAmount(ch.Amount), "UN", "1", "", "").
			comp(strconv.Itoa(pointers[i])).
			end()
		w.seg("DTP").el("472", "D8", segment.FormatDate(ch.ServiceDate)).end()
	}

	w.writeTrailer(env, stIndex)
	if w.err != nil {
		return "", w.err
	}
	return w.render(), nil
}

// checkClaim enforces the invariants the generator relies on.
func checkClaim(claim *Claim) error {
	if claim == nil {
		return segment.Structural("CLM", "claim is required")
	}
	if strings.TrimSpace(claim.ClaimNumber) == "" {
		return segment.FieldError("CLM", 1, "claim number is required")
	}
	if len(claim.Charges) == 0 {
		return segment.FieldError("CLM", 2, "claim %s has no charges", claim.ClaimNumber)
	}
	if claim.BillingProvider.NPI == "" {
		return segment.FieldError("NM1", 9, "billing provider NPI is required")
	}
	for i, ch := range claim.Charges {
		if ch.CPTCode == "" {
			return segment.FieldError("SV1", 1, "charge %d has no CPT code", i+1)
		}
		if normalizeICD(ch.ICD10Code) == "" {
			return segment.FieldError("HI", 1, "charge %d has no ICD-10 code", i+1)
		}
		if ch.Amount.IsNegative() {
			return segment.FieldError("SV1", 2, "charge %d amount %s is negative", i+1, ch.Amount)
		}
		if !segment.HasCentPrecision(ch.Amount) {
			return segment.FieldError("SV1", 2, "charge %d amount %s has more than two decimals", i+1, ch.Amount)
		}
	}
	return nil
}

// diagnosisPointers lists distinct ICD-10 codes in first-seen order and the
// 1-based HI position each charge points at.
func diagnosisPointers(charges []Charge) (codes []string, pointers []int) {
	index := make(map[string]int)
	pointers = make([]int, len(charges))
	for i, ch := range charges {
		code := normalizeICD(ch.ICD10Code)
		pos, ok := index[code]
		if !ok {
			codes = append(codes, code)
			pos = len(codes)
			index[code] = pos
		}
		pointers[i] = pos
	}
	return codes, pointers
}

// normalizeICD drops the decimal point; X12 transmits ICD-10 codes without it.
func normalizeICD(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), ".", ""))
}

// dmgGender narrows the shared gender code to the DMG03 code set (F, M, U).
func dmgGender(gender string) string {
	switch code := segment.GenderCode(gender); code {
	case "M", "F":
		return code
	default:
		return "U"
	}
}
