package hl7v2

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults written into generated MSH segments.
const (
	DefaultVersion      = "2.5"
	DefaultProcessingID = "P"
)

// Patient identifies the subject of an order or result.
type Patient struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      string    `json:"gender"`
}

// LabOrder is the input of ORM generation.
type LabOrder struct {
	OrderNumber      string    `json:"order_number" validate:"required,max=22"`
	Patient          Patient   `json:"patient"`
	TestCode         string    `json:"test_code" validate:"required"`
	TestName         string    `json:"test_name"`
	OrderingProvider string    `json:"ordering_provider"`
	OrderedAt        time.Time `json:"ordered_at"`
}

// Result is one observation extracted from an ORU message. Value is kept as
// the raw (unescaped) text; no numeric coercion is applied.
type Result struct {
	PatientID       string `json:"patient_id"`
	OrderNumber     string `json:"order_number"`
	TestCode        string `json:"test_code"`
	ObservationCode string `json:"observation_code,omitempty"`
	ObservationName string `json:"observation_name,omitempty"`
	ValueType       string `json:"value_type,omitempty"`
	Value           string `json:"value"`
	Units           string `json:"units,omitempty"`
	ReferenceRange  string `json:"reference_range,omitempty"`
	AbnormalFlag    string `json:"abnormal_flag,omitempty"`
	Status          string `json:"status,omitempty"`
}

// Header carries the MSH routing fields of a generated message.
type Header struct {
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string
	Timestamp         time.Time
	ControlID         string
	ProcessingID      string
	Version           string
}

func (h Header) withDefaults() Header {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}
	if h.ControlID == "" {
		h.ControlID = NewControlID()
	}
	if h.ProcessingID == "" {
		h.ProcessingID = DefaultProcessingID
	}
	if h.Version == "" {
		h.Version = DefaultVersion
	}
	return h
}

// NewControlID returns a random MSH-10 value that fits the 20 character
// limit of HL7 2.5.
func NewControlID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
