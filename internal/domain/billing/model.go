package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/x12"
)

// ControlNumbers are the envelope identifiers allocated for one interchange.
type ControlNumbers struct {
	Interchange int64 `json:"interchange"`
	Group       int64 `json:"group"`
	Transaction int64 `json:"transaction"`
}

// Document is a generated X12 interchange and the numbers that identify it.
type Document struct {
	Control   ControlNumbers `json:"control_numbers"`
	CreatedAt time.Time      `json:"created_at"`
	Text      string         `json:"text"`
}

// Submission is the outcome of turning a claim into an 837.
type Submission struct {
	Document
	ClaimNumber string          `json:"claim_number"`
	TotalCharge decimal.Decimal `json:"total_charge"`
	ChargeCount int             `json:"charge_count"`
}

// Discrepancy flags a remitted claim whose amounts do not balance.
type Discrepancy struct {
	ClaimNumber string          `json:"claim_number"`
	Amount      decimal.Decimal `json:"amount"`
}

// RemittanceReport is a parsed 835 with its reconciliation check.
type RemittanceReport struct {
	TotalPayment decimal.NullDecimal `json:"total_payment"`
	TraceNumber  string              `json:"trace_number,omitempty"`
	Claims       []x12.Remittance    `json:"claims"`
	Unreconciled []Discrepancy       `json:"unreconciled,omitempty"`
}

// NewRemittanceReport wraps advice and lists every claim whose billed amount
// differs from paid plus patient responsibility plus adjustments.
func NewRemittanceReport(advice *x12.RemittanceAdvice) *RemittanceReport {
	r := &RemittanceReport{
		TotalPayment: advice.TotalPayment,
		TraceNumber:  advice.TraceNumber,
		Claims:       advice.Claims,
	}
	for i := range advice.Claims {
		if d := advice.Claims[i].Unreconciled(); !d.IsZero() {
			r.Unreconciled = append(r.Unreconciled, Discrepancy{
				ClaimNumber: advice.Claims[i].ClaimNumber,
				Amount:      d,
			})
		}
	}
	return r
}

// SimulationRequest asks for a payer response to claim.
type SimulationRequest struct {
	Claim                 *x12.Claim      `json:"claim" validate:"required"`
	Paid                  decimal.Decimal `json:"paid"`
	PatientResponsibility decimal.Decimal `json:"patient_responsibility"`
	TraceNumber           string          `json:"trace_number"`
}
