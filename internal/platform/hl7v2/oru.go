package hl7v2

import (
	"strings"

	"github.com/ehr/interchange/internal/platform/segment"
)

// compactOBXFields is the field count of the compact OBX layout, which omits
// the sub-id slot and carries value, units, range and flag at OBX-4..7. Any
// other length is read in the standard layout, so a standard OBX with its
// trailing empty fields trimmed keeps its value at OBX-5.
const compactOBXFields = 7

// ParseORU extracts the first observation of an ORU^R01 message.
func ParseORU(raw []byte) (*Result, error) {
	results, err := ParseORUResults(raw)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, segment.Structural("OBX", "no observation segment found")
	}
	return &results[0], nil
}

// ParseORUResults extracts one Result per OBX, each bound to the nearest
// preceding OBR. A message without OBX segments yields an empty slice.
func ParseORUResults(raw []byte) ([]Result, error) {
	msg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if code := msg.MessageCode(); code != "ORU" {
		return nil, segment.Structural("MSH", "message type %q is not ORU", msg.Type)
	}

	pid := msg.GetSegment("PID")
	if pid == nil {
		return nil, segment.Structural("PID", "patient identification segment not found")
	}
	patientID := strings.TrimSpace(msg.PatientID())
	if patientID == "" {
		return nil, segment.FieldError("PID", 3, "patient identifier is empty")
	}

	enc := msg.Encoding
	results := []Result{}
	var obr *Segment
	for i := range msg.Segments {
		seg := &msg.Segments[i]
		switch seg.Kind {
		case KindOBR:
			obr = seg
		case KindOBX:
			if obr == nil {
				return nil, segment.Structural("OBX", "observation appears before any OBR segment")
			}
			r, err := decodeOBX(enc, obr, seg)
			if err != nil {
				return nil, err
			}
			r.PatientID = patientID
			results = append(results, r)
		}
	}
	return results, nil
}

func decodeOBX(enc Encoding, obr, obx *Segment) (Result, error) {
	// OBR-2 placer order number, OBR-3 filler when the placer is absent.
	orderNumber := strings.TrimSpace(enc.Unescape(obr.GetComponent(2, 1)))
	if orderNumber == "" {
		orderNumber = strings.TrimSpace(enc.Unescape(obr.GetComponent(3, 1)))
	}
	if orderNumber == "" {
		return Result{}, segment.FieldError("OBR", 2, "order number is empty")
	}

	valuePos := 5
	if len(obx.Fields) == compactOBXFields && obx.GetField(4) != "" {
		valuePos = 4
	}
	text := func(pos int) string {
		return enc.Unescape(obx.GetField(pos))
	}

	return Result{
		OrderNumber:     orderNumber,
		TestCode:        enc.Unescape(obr.GetComponent(4, 1)),
		ObservationCode: enc.Unescape(obx.GetComponent(3, 1)),
		ObservationName: enc.Unescape(obx.GetComponent(3, 2)),
		ValueType:       obx.GetField(2),
		Value:           text(valuePos),
		Units:           text(valuePos + 1),
		ReferenceRange:  text(valuePos + 2),
		AbnormalFlag:    text(valuePos + 3),
		Status:          obx.GetField(11),
	}, nil
}
