package diagnostics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ehr/interchange/internal/platform/hl7v2"
	"github.com/ehr/interchange/internal/platform/segment"
	"github.com/ehr/interchange/internal/platform/sequence"
)

// -- Test fixtures --

func sampleOrder() *hl7v2.LabOrder {
	return &hl7v2.LabOrder{
		OrderNumber: "LAB-001-000001",
		Patient: hl7v2.Patient{
			ID:          "patient-123",
			Name:        "John Doe",
			DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Gender:      "male",
		},
		TestCode:         "CBC",
		TestName:         "Complete Blood Count",
		OrderingProvider: "Dr. Smith",
		OrderedAt:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

const sampleORU = "MSH|^~\\&|LAB|SYSTEM|HEALTHCARE|FACILITY|20240101120000||ORU^R01|12345|P|2.5\r" +
	"PID|1||patient-123||Doe^John||19900101|M\r" +
	"OBR|1|LAB-001-000001||CBC^Complete Blood Count|||20240101120000\r" +
	"OBX|1|NM|WBC^White Blood Count||5.5|10*3/uL|4.0-11.0|N|||F\r" +
	"OBX|2|NM|HGB^Hemoglobin||13.2|g/dL|12.0-16.0|N|||F"

type failingSequencer struct{ err error }

func (f failingSequencer) Next(context.Context, string) (int64, error) { return 0, f.err }

func newTestService(seq sequence.Sequencer) *Service {
	hdr := hl7v2.Header{
		SendingApp:        "HEALTHCARE",
		SendingFacility:   "FACILITY",
		ReceivingApp:      "LAB",
		ReceivingFacility: "SYSTEM",
	}
	svc := NewService(seq, hdr, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC) }
	return svc
}

// -- PlaceOrder --

func TestPlaceOrder(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	msg, err := svc.PlaceOrder(context.Background(), sampleOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ControlID != "ORM000000001" {
		t.Errorf("expected control id ORM000000001, got %s", msg.ControlID)
	}
	if msg.OrderNumber != "LAB-001-000001" {
		t.Errorf("unexpected order number %s", msg.OrderNumber)
	}

	segs := strings.Split(msg.Text, "\r")
	if len(segs) != 4 {
		t.Fatalf("expected 4 segments, got %d: %q", len(segs), msg.Text)
	}
	wantMSH := "MSH|^~\\&|HEALTHCARE|FACILITY|LAB|SYSTEM|20240101123000||ORM^O01|ORM000000001|P|2.5"
	if segs[0] != wantMSH {
		t.Errorf("unexpected MSH\n got: %s\nwant: %s", segs[0], wantMSH)
	}
	if !strings.HasPrefix(segs[2], "ORC|NW|LAB-001-000001|") {
		t.Errorf("unexpected ORC: %s", segs[2])
	}
}

func TestPlaceOrder_ControlIDsAdvance(t *testing.T) {
	seq := sequence.NewMemory()
	svc := newTestService(seq)
	ctx := context.Background()

	if _, err := svc.PlaceOrder(ctx, sampleOrder()); err != nil {
		t.Fatalf("first order: %v", err)
	}
	second, err := svc.PlaceOrder(ctx, sampleOrder())
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if second.ControlID != "ORM000000002" {
		t.Errorf("expected ORM000000002, got %s", second.ControlID)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *hl7v2.LabOrder)
		field  string
	}{
		{"missing order number", func(o *hl7v2.LabOrder) { o.OrderNumber = "" }, "OrderNumber"},
		{"order number too long", func(o *hl7v2.LabOrder) { o.OrderNumber = strings.Repeat("9", 23) }, "OrderNumber"},
		{"missing patient id", func(o *hl7v2.LabOrder) { o.Patient.ID = "" }, "ID"},
		{"missing test code", func(o *hl7v2.LabOrder) { o.TestCode = "" }, "TestCode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := sequence.NewMemory()
			svc := newTestService(seq)
			order := sampleOrder()
			tt.mutate(order)

			_, err := svc.PlaceOrder(context.Background(), order)
			var ve validator.ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if ve[0].Field() != tt.field {
				t.Errorf("expected failure on %s, got %s", tt.field, ve[0].Field())
			}
			if n, _ := seq.Next(context.Background(), sequence.HL7Message); n != 1 {
				t.Errorf("expected control id counter untouched, next is %d", n)
			}
		})
	}
}

func TestPlaceOrder_CodecErrorKeepsCounter(t *testing.T) {
	seq := sequence.NewMemory()
	svc := newTestService(seq)
	order := sampleOrder()
	order.Patient.ID = "  "

	if _, err := svc.PlaceOrder(context.Background(), order); !errors.Is(err, segment.ErrField) {
		t.Fatalf("expected field error, got %v", err)
	}
	if n, _ := seq.Next(context.Background(), sequence.HL7Message); n != 1 {
		t.Errorf("expected control id counter untouched, next is %d", n)
	}
}

func TestPlaceOrder_Errors(t *testing.T) {
	if _, err := newTestService(sequence.NewMemory()).PlaceOrder(context.Background(), nil); !errors.Is(err, segment.ErrStructural) {
		t.Errorf("expected structural error for nil order, got %v", err)
	}

	boom := errors.New("counter store down")
	if _, err := newTestService(failingSequencer{err: boom}).PlaceOrder(context.Background(), sampleOrder()); !errors.Is(err, boom) {
		t.Errorf("expected sequencer error, got %v", err)
	}
}

// -- ReadResults --

func TestReadResults(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	results, err := svc.ReadResults(context.Background(), []byte(sampleORU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PatientID != "patient-123" || results[0].OrderNumber != "LAB-001-000001" || results[0].TestCode != "CBC" {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].ObservationCode != "HGB" || results[1].Value != "13.2" {
		t.Errorf("unexpected second result %+v", results[1])
	}
}

func TestReadResults_Errors(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	tests := []struct {
		name string
		raw  string
		kind error
	}{
		{"empty", "", segment.ErrStructural},
		{"not ORU", "MSH|^~\\&|A|B|C|D|20240101120000||ORM^O01|1|P|2.5\rPID|1||p1", segment.ErrStructural},
		{"missing patient id", "MSH|^~\\&|A|B|C|D|20240101120000||ORU^R01|1|P|2.5\rPID|1||", segment.ErrField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ReadResults(context.Background(), []byte(tt.raw)); !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

// -- GenerateResults --

func TestGenerateResults_RoundTrip(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	report := &ResultReport{
		Order: sampleOrder(),
		Results: []hl7v2.Result{
			{ObservationCode: "WBC", ObservationName: "White Blood Count", Value: "5.5", Units: "10*3/uL", ReferenceRange: "4.0-11.0", AbnormalFlag: "N"},
			{ObservationCode: "NOTE", ValueType: "ST", Value: "see A|B"},
		},
	}

	msg, err := svc.GenerateResults(context.Background(), report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ControlID != "ORU000000001" {
		t.Errorf("expected ORU000000001, got %s", msg.ControlID)
	}

	results, err := svc.ReadResults(context.Background(), []byte(msg.Text))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Value != "see A|B" {
		t.Errorf("expected escaped value to round trip, got %q", results[1].Value)
	}
	if results[0].Status != "F" {
		t.Errorf("expected default status F, got %q", results[0].Status)
	}
}

func TestGenerateResults_Rejects(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	if _, err := svc.GenerateResults(context.Background(), nil); !errors.Is(err, segment.ErrStructural) {
		t.Errorf("expected structural error, got %v", err)
	}

	var ve validator.ValidationErrors
	_, err := svc.GenerateResults(context.Background(), &ResultReport{Order: sampleOrder()})
	if !errors.As(err, &ve) {
		t.Errorf("expected validation error for empty results, got %v", err)
	}
}
