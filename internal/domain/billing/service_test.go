package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/segment"
	"github.com/ehr/interchange/internal/platform/sequence"
	"github.com/ehr/interchange/internal/platform/x12"
)

// -- Test fixtures --

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleClaim() *x12.Claim {
	return &x12.Claim{
		ClaimNumber: "CLM-001-000001",
		Patient: x12.Patient{
			ID:          "patient-123",
			Name:        "John Doe",
			DateOfBirth: day(1990, 1, 1),
			Gender:      "male",
		},
		SubscriberID:      "SUB123456",
		InsuranceProvider: "Acme Health",
		PayerID:           "60054",
		Charges: []x12.Charge{
			{CPTCode: "99213", ICD10Code: "J06.9", Amount: decimal.RequireFromString("150.00"), ServiceDate: day(2024, 1, 10)},
			{CPTCode: "87880", ICD10Code: "J02.9", Amount: decimal.RequireFromString("75.50"), ServiceDate: day(2024, 1, 12)},
		},
		BillingProvider: x12.BillingProvider{
			NPI:     "1234567893",
			Name:    "Main Street Clinic",
			Address: "123 Main St",
			City:    "Springfield",
			State:   "IL",
			Zip:     "62701",
		},
	}
}

type failingSequencer struct{ err error }

func (f failingSequencer) Next(context.Context, string) (int64, error) { return 0, f.err }

// fixedSequencer returns the same value for every counter.
type fixedSequencer struct{ value int64 }

func (f fixedSequencer) Next(context.Context, string) (int64, error) { return f.value, nil }

func newTestService(seq sequence.Sequencer) *Service {
	svc := NewService(seq, x12.Envelope{SenderID: "CLINIC01", ReceiverID: "CLEARHOUSE", Usage: "T"}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC) }
	return svc
}

// -- SubmitClaim --

func TestSubmitClaim(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	sub, err := svc.SubmitClaim(context.Background(), sampleClaim())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ClaimNumber != "CLM-001-000001" {
		t.Errorf("expected claim number CLM-001-000001, got %s", sub.ClaimNumber)
	}
	if !sub.TotalCharge.Equal(decimal.RequireFromString("225.50")) {
		t.Errorf("expected total 225.50, got %s", sub.TotalCharge)
	}
	if sub.ChargeCount != 2 {
		t.Errorf("expected 2 charges, got %d", sub.ChargeCount)
	}
	if sub.Control != (ControlNumbers{Interchange: 1, Group: 1, Transaction: 1}) {
		t.Errorf("unexpected control numbers %+v", sub.Control)
	}
	for _, want := range []string{"*000000001*0*T*:~", "GS*HC*CLINIC01*CLEARHOUSE*20240115*0930*1*X*005010X222A1~", "ST*837*0001*005010X222A1~", "IEA*1*000000001~"} {
		if !strings.Contains(sub.Text, want) {
			t.Errorf("expected 837 to contain %q:\n%s", want, sub.Text)
		}
	}
}

func TestSubmitClaim_ControlNumbersAdvance(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	ctx := context.Background()

	first, err := svc.SubmitClaim(ctx, sampleClaim())
	if err != nil {
		t.Fatalf("first submission: %v", err)
	}
	second, err := svc.SubmitClaim(ctx, sampleClaim())
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}
	if second.Control.Interchange != first.Control.Interchange+1 {
		t.Errorf("expected interchange to advance, got %d then %d", first.Control.Interchange, second.Control.Interchange)
	}
	if !strings.Contains(second.Text, "ST*837*0002*") {
		t.Errorf("expected ST02 0002 in second submission")
	}
}

func TestSubmitClaim_WrapsTransactionControl(t *testing.T) {
	svc := newTestService(fixedSequencer{value: 10000})

	sub, err := svc.SubmitClaim(context.Background(), sampleClaim())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Control.Transaction != 1 {
		t.Errorf("expected ST02 to wrap to 1, got %d", sub.Control.Transaction)
	}
	if sub.Control.Interchange != 10000 {
		t.Errorf("expected ISA13 10000, got %d", sub.Control.Interchange)
	}
}

func TestSubmitClaim_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *x12.Claim)
		field  string
	}{
		{"missing claim number", func(c *x12.Claim) { c.ClaimNumber = "" }, "ClaimNumber"},
		{"short NPI", func(c *x12.Claim) { c.BillingProvider.NPI = "123" }, "NPI"},
		{"no charges", func(c *x12.Claim) { c.Charges = nil }, "Charges"},
		{"charge without CPT", func(c *x12.Claim) { c.Charges[0].CPTCode = "" }, "CPTCode"},
		{"missing birth date", func(c *x12.Claim) { c.Patient.DateOfBirth = time.Time{} }, "DateOfBirth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := sequence.NewMemory()
			svc := newTestService(seq)
			claim := sampleClaim()
			tt.mutate(claim)

			_, err := svc.SubmitClaim(context.Background(), claim)
			var ve validator.ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			found := false
			for _, fe := range ve {
				if fe.Field() == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected failure on %s, got %v", tt.field, ve)
			}

			// Rejected claims must not consume control numbers.
			if n, _ := seq.Next(context.Background(), sequence.Interchange); n != 1 {
				t.Errorf("expected interchange counter untouched, next is %d", n)
			}
		})
	}
}

func TestSubmitClaim_CodecError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *x12.Claim)
	}{
		{"sub-cent amount", func(c *x12.Claim) { c.Charges[0].Amount = decimal.RequireFromString("10.001") }},
		{"negative amount", func(c *x12.Claim) { c.Charges[1].Amount = decimal.RequireFromString("-5.00") }},
		{"delimiter in value", func(c *x12.Claim) { c.SubscriberID = "SUB*123" }},
		{"too many diagnoses", func(c *x12.Claim) {
			for i := 0; i < 12; i++ {
				ch := c.Charges[0]
				ch.ICD10Code = fmt.Sprintf("Z%02d", i)
				c.Charges = append(c.Charges, ch)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := sequence.NewMemory()
			svc := newTestService(seq)
			claim := sampleClaim()
			tt.mutate(claim)

			_, err := svc.SubmitClaim(context.Background(), claim)
			if !errors.Is(err, segment.ErrField) {
				t.Fatalf("expected field error, got %v", err)
			}
			if n, _ := seq.Next(context.Background(), sequence.Interchange); n != 1 {
				t.Errorf("expected interchange counter untouched, next is %d", n)
			}
		})
	}
}

func TestSubmitClaim_NilClaim(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	if _, err := svc.SubmitClaim(context.Background(), nil); !errors.Is(err, segment.ErrStructural) {
		t.Errorf("expected structural error, got %v", err)
	}
}

func TestSubmitClaim_SequencerFailure(t *testing.T) {
	boom := errors.New("redis unavailable")
	svc := newTestService(failingSequencer{err: boom})

	_, err := svc.SubmitClaim(context.Background(), sampleClaim())
	if !errors.Is(err, boom) {
		t.Errorf("expected sequencer error, got %v", err)
	}
}

// -- ReadRemittance --

const remittance835 = "ISA*00*          *00*          *ZZ*PAYER          *ZZ*CLINIC01       *240120*1200*^*00501*000000077*0*P*:~" +
	"GS*HP*PAYER*CLINIC01*20240120*1200*77*X*005010X221A1~" +
	"ST*835*0001~" +
	"BPR*I*200.00*C*NON~" +
	"TRN*1*EFT-991~" +
	"CLP*CLM-001-000001*1*150.00*120.00*30.00~" +
	"CLP*CLM-002*1*100.00*80.00*10.00~CAS*CO*45*5.00~" +
	"SE*6*0001~GE*1*77~IEA*1*000000077~"

func TestReadRemittance(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	report, err := svc.ReadRemittance(context.Background(), remittance835)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(report.Claims))
	}
	if !report.TotalPayment.Valid || !report.TotalPayment.Decimal.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("expected total payment 200.00, got %+v", report.TotalPayment)
	}
	if report.TraceNumber != "EFT-991" {
		t.Errorf("expected trace EFT-991, got %s", report.TraceNumber)
	}
	if len(report.Unreconciled) != 1 {
		t.Fatalf("expected 1 unreconciled claim, got %d", len(report.Unreconciled))
	}
	if report.Unreconciled[0].ClaimNumber != "CLM-002" || !report.Unreconciled[0].Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("unexpected discrepancy %+v", report.Unreconciled[0])
	}
}

func TestReadRemittance_Errors(t *testing.T) {
	svc := newTestService(sequence.NewMemory())

	if _, err := svc.ReadRemittance(context.Background(), ""); !errors.Is(err, segment.ErrStructural) {
		t.Errorf("expected structural error for empty input, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.ReadRemittance(ctx, remittance835); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// -- GenerateRemittance / SimulateRemittance --

func TestGenerateRemittance_RoundTrip(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	advice := &x12.RemittanceAdvice{
		TraceNumber: "EFT-1",
		Claims: []x12.Remittance{{
			ClaimNumber:           "CLM-9",
			StatusCode:            "1",
			Billed:                decimal.RequireFromString("100.00"),
			TotalPaid:             decimal.RequireFromString("70.00"),
			PatientResponsibility: decimal.RequireFromString("20.00"),
			Adjustments: []x12.Adjustment{
				{GroupCode: "CO", ReasonCode: "45", Amount: decimal.RequireFromString("10.00")},
			},
		}},
	}

	doc, err := svc.GenerateRemittance(context.Background(), advice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(doc.Text, "BPR*I*70.00*C*NON~") {
		t.Errorf("expected BPR with summed payment:\n%s", doc.Text)
	}

	report, err := svc.ReadRemittance(context.Background(), doc.Text)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(report.Unreconciled) != 0 {
		t.Errorf("expected generated remittance to reconcile, got %+v", report.Unreconciled)
	}
}

func TestGenerateRemittance_Empty(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	if _, err := svc.GenerateRemittance(context.Background(), &x12.RemittanceAdvice{}); !errors.Is(err, segment.ErrStructural) {
		t.Errorf("expected structural error, got %v", err)
	}
}

func TestGenerateRemittance_SubCentAmountKeepsCounter(t *testing.T) {
	seq := sequence.NewMemory()
	svc := newTestService(seq)
	advice := &x12.RemittanceAdvice{
		Claims: []x12.Remittance{{
			ClaimNumber: "CLM-9",
			StatusCode:  "1",
			Billed:      decimal.RequireFromString("100.005"),
			TotalPaid:   decimal.RequireFromString("80.00"),
		}},
	}

	if _, err := svc.GenerateRemittance(context.Background(), advice); !errors.Is(err, segment.ErrField) {
		t.Fatalf("expected field error, got %v", err)
	}
	if n, _ := seq.Next(context.Background(), sequence.Interchange); n != 1 {
		t.Errorf("expected interchange counter untouched, next is %d", n)
	}
}

func TestSimulateRemittance(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	req := &SimulationRequest{
		Claim:                 sampleClaim(),
		Paid:                  decimal.RequireFromString("180.00"),
		PatientResponsibility: decimal.RequireFromString("20.00"),
		TraceNumber:           "SIM-1",
	}

	doc, err := svc.SimulateRemittance(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"BPR*I*180.00*C*NON~",
		"TRN*1*SIM-1~",
		"CLP*CLM-001-000001*1*225.50*180.00*20.00~",
		"CAS*CO*45*25.50~",
	} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("expected %q in simulated 835:\n%s", want, doc.Text)
		}
	}
}

func TestSimulateRemittance_Rejects(t *testing.T) {
	svc := newTestService(sequence.NewMemory())
	tests := []struct {
		name string
		req  *SimulationRequest
	}{
		{"nil request", nil},
		{"negative paid", &SimulationRequest{Claim: sampleClaim(), Paid: decimal.RequireFromString("-1")}},
		{"overpaid", &SimulationRequest{Claim: sampleClaim(), Paid: decimal.RequireFromString("500.00")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SimulateRemittance(context.Background(), tt.req)
			if !errors.Is(err, segment.ErrStructural) && !errors.Is(err, segment.ErrField) {
				t.Errorf("expected codec error, got %v", err)
			}
		})
	}
}
