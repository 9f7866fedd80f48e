package hl7v2

import (
	"strings"
	"time"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Acknowledgment codes for MSA-1.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// GenerateACK builds an acknowledgment for an incoming message.
// ackCode should be AckAccept, AckError, or AckReject; text, when non-empty,
// is written to MSA-3.
//
// The ACK swaps the sending and receiving application/facility from the
// original message, keeps its encoding characters and references the
// original control ID in MSA-2.
func GenerateACK(incoming *Message, ackCode, text string) *Message {
	enc := incoming.Encoding
	if enc.Field == "" {
		enc = DefaultEncoding
	}

	now := time.Now().UTC()
	timestamp := segment.FormatTimestamp(now)
	controlID := NewControlID()
	msgType := "ACK"
	if trigger := incoming.TriggerEvent(); trigger != "" {
		msgType += enc.Component + trigger
	}
	version := incoming.Version
	if version == "" {
		version = DefaultVersion
	}

	ack := &Message{
		Type:         msgType,
		ControlID:    controlID,
		Version:      version,
		Timestamp:    now,
		SendingApp:   incoming.ReceivingApp,
		SendingFac:   incoming.ReceivingFac,
		ReceivingApp: incoming.SendingApp,
		ReceivingFac: incoming.SendingFac,
		Encoding:     enc,
	}

	plain := func(v string) Field {
		return Field{Value: v, Components: []string{v}, Repeats: [][]string{{v}}}
	}

	msh := Segment{
		Name: "MSH",
		Kind: KindMSH,
		Fields: []Field{
			plain(enc.Field),           // MSH-1
			plain(enc.Characters),      // MSH-2
			plain(ack.SendingApp),      // MSH-3
			plain(ack.SendingFac),      // MSH-4
			plain(ack.ReceivingApp),    // MSH-5
			plain(ack.ReceivingFac),    // MSH-6
			plain(timestamp),           // MSH-7
			plain(""),                  // MSH-8 (security)
			enc.parseField(msgType),    // MSH-9
			plain(controlID),           // MSH-10
			plain(DefaultProcessingID), // MSH-11
			plain(version),             // MSH-12
		},
	}

	msaFields := []Field{plain(ackCode), plain(incoming.ControlID)}
	if text != "" {
		msaFields = append(msaFields, plain(enc.Escape(text)))
	}
	msa := Segment{Name: "MSA", Kind: KindMSA, Fields: msaFields}

	ack.Segments = []Segment{msh, msa}
	return ack
}

// SerializeMessage converts a Message struct back into raw HL7v2 bytes
// with \r segment separators.
func SerializeMessage(msg *Message) []byte {
	enc := msg.Encoding
	if enc.Field == "" {
		enc = DefaultEncoding
	}
	segments := make([]string, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		segments = append(segments, serializeSegment(seg, enc.Field))
	}
	return []byte(strings.Join(segments, segment.HL7.Segment))
}

// serializeSegment converts a Segment back into its HL7v2 string form.
func serializeSegment(seg Segment, fieldSep string) string {
	values := make([]string, 0, len(seg.Fields)+1)
	values = append(values, seg.Name)
	for i, f := range seg.Fields {
		// MSH-1 is the separator itself and is written by the join.
		if seg.Name == "MSH" && i == 0 {
			continue
		}
		values = append(values, f.Value)
	}
	return segment.JoinFields(values, fieldSep)
}
