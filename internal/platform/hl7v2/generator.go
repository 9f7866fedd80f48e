package hl7v2

import (
	"strconv"
	"strings"

	"github.com/ehr/interchange/internal/platform/segment"
)

// GenerateORM generates an ORM^O01 (new order) HL7v2 message for order.
// Segments are MSH, PID, ORC and OBR joined by \r. Free-text values are
// escaped; the order timestamp falls back to the header timestamp.
func GenerateORM(order *LabOrder, hdr Header) (string, error) {
	if err := checkOrder(order); err != nil {
		return "", err
	}
	hdr = hdr.withDefaults()

	orderedAt := order.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = hdr.Timestamp
	}
	ts := segment.FormatTimestamp(orderedAt)

	segments := []string{
		buildMSH(hdr, "ORM", "O01"),
		buildPID(order.Patient),
		buildORC(order, ts),
		buildOBR(order, ts),
	}
	return strings.Join(segments, segment.HL7.Segment), nil
}

// GenerateORU generates an ORU^R01 message reporting results against order.
// Each result becomes one OBX; result fields left empty fall back to the
// order (test code) or defaults (value type NM, status F).
func GenerateORU(order *LabOrder, results []Result, hdr Header) (string, error) {
	if err := checkOrder(order); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", segment.Structural("OBX", "at least one result is required")
	}
	hdr = hdr.withDefaults()

	orderedAt := order.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = hdr.Timestamp
	}

	segments := []string{
		buildMSH(hdr, "ORU", "R01"),
		buildPID(order.Patient),
		buildOBR(order, segment.FormatTimestamp(orderedAt)),
	}
	for i, r := range results {
		segments = append(segments, buildOBX(i+1, r))
	}
	return strings.Join(segments, segment.HL7.Segment), nil
}

func checkOrder(order *LabOrder) error {
	if order == nil {
		return segment.Structural("ORC", "lab order is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return segment.FieldError("ORC", 2, "order number is required")
	}
	if strings.TrimSpace(order.Patient.ID) == "" {
		return segment.FieldError("PID", 3, "patient id is required")
	}
	if strings.TrimSpace(order.TestCode) == "" {
		return segment.FieldError("OBR", 4, "test code is required")
	}
	return nil
}

// fields joins values with the default field separator, dropping trailing
// empty positions.
func fields(values ...string) string {
	for len(values) > 1 && values[len(values)-1] == "" {
		values = values[:len(values)-1]
	}
	return strings.Join(values, DefaultEncoding.Field)
}

// components joins escaped parts with the component separator, dropping
// trailing empty parts.
func components(parts ...string) string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = escapeHL7(p)
	}
	return strings.Join(parts, DefaultEncoding.Component)
}

// buildMSH constructs an MSH segment header for the given message type and trigger event.
func buildMSH(hdr Header, msgType, trigger string) string {
	return fields(
		"MSH", DefaultEncoding.Characters,
		escapeHL7(hdr.SendingApp), escapeHL7(hdr.SendingFacility),
		escapeHL7(hdr.ReceivingApp), escapeHL7(hdr.ReceivingFacility),
		segment.FormatTimestamp(hdr.Timestamp), "",
		msgType+DefaultEncoding.Component+trigger,
		escapeHL7(hdr.ControlID), hdr.ProcessingID, hdr.Version,
	)
}

// buildPID constructs a PID (patient identification) segment:
// PID|1||id||family^given||dob|sex
func buildPID(p Patient) string {
	family, given := segment.SplitName(p.Name)
	dob := ""
	if !p.DateOfBirth.IsZero() {
		dob = segment.FormatDate(p.DateOfBirth)
	}
	return fields(
		"PID", "1", "", escapeHL7(p.ID), "",
		components(family, given), "",
		dob, segment.GenderCode(p.Gender),
	)
}

// buildORC constructs an ORC (common order) segment. ORC-9 carries the
// transaction time and ORC-12 the ordering provider.
func buildORC(order *LabOrder, ts string) string {
	return fields(
		"ORC", "NW", escapeHL7(order.OrderNumber),
		"", "", "", "", "", "",
		ts, "", "",
		escapeHL7(order.OrderingProvider),
	)
}

// buildOBR constructs an OBR (observation request) segment: placer order
// number in OBR-2, code^name in OBR-4, observation time in OBR-7 and the
// ordering provider in OBR-16.
func buildOBR(order *LabOrder, ts string) string {
	return fields(
		"OBR", "1", escapeHL7(order.OrderNumber), "",
		components(order.TestCode, order.TestName),
		"", "", ts,
		"", "", "", "", "", "", "", "",
		escapeHL7(order.OrderingProvider),
	)
}

// buildOBX constructs an OBX (observation result) segment in the standard
// layout with OBX-11 result status.
func buildOBX(setID int, r Result) string {
	valueType := r.ValueType
	if valueType == "" {
		valueType = "NM"
	}
	status := r.Status
	if status == "" {
		status = "F"
	}
	return fields(
		"OBX", strconv.Itoa(setID), valueType,
		components(r.ObservationCode, r.ObservationName), "",
		escapeHL7(r.Value), escapeHL7(r.Units), escapeHL7(r.ReferenceRange), escapeHL7(r.AbnormalFlag),
		"", "", status,
	)
}
