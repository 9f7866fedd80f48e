package x12

import (
	"time"

	"github.com/shopspring/decimal"
)

// Patient identifies the person who received the services. The codec treats
// the patient as the subscriber (relationship "self").
type Patient struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	Gender      string    `json:"gender"`
}

// Charge is one billed service line.
type Charge struct {
	CPTCode     string          `json:"cpt_code" validate:"required"`
	ICD10Code   string          `json:"icd10_code" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ServiceDate time.Time       `json:"service_date" validate:"required"`
}

// BillingProvider is the rendering/billing entity identified by its NPI.
type BillingProvider struct {
	NPI     string `json:"npi" validate:"required,len=10,numeric"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required,len=2"`
	Zip     string `json:"zip" validate:"required"`
}

// Claim is the input of 837 generation.
type Claim struct {
	ClaimNumber       string          `json:"claim_number" validate:"required,max=38"`
	Patient           Patient         `json:"patient"`
	SubscriberID      string          `json:"subscriber_id" validate:"required"`
	InsuranceProvider string          `json:"insurance_provider" validate:"required"`
	PayerID           string          `json:"payer_id" validate:"required"`
	ServiceFrom       time.Time       `json:"service_from"`
	ServiceTo         time.Time       `json:"service_to"`
	Charges           []Charge        `json:"charges" validate:"required,min=1,dive"`
	BillingProvider   BillingProvider `json:"billing_provider"`
}

// TotalCharge sums the charge amounts.
func (c *Claim) TotalCharge() decimal.Decimal {
	total := decimal.Zero
	for _, ch := range c.Charges {
		total = total.Add(ch.Amount)
	}
	return total
}

// ServicePeriod returns the declared service range, falling back to the
// earliest and latest charge dates when either end is unset.
func (c *Claim) ServicePeriod() (from, to time.Time) {
	from, to = c.ServiceFrom, c.ServiceTo
	for _, ch := range c.Charges {
		if c.ServiceFrom.IsZero() && (from.IsZero() || ch.ServiceDate.Before(from)) {
			from = ch.ServiceDate
		}
		if c.ServiceTo.IsZero() && (to.IsZero() || ch.ServiceDate.After(to)) {
			to = ch.ServiceDate
		}
	}
	return from, to
}

// Adjustment is one group/reason/amount triple from a CAS segment.
type Adjustment struct {
	GroupCode  string          `json:"group_code"`
	ReasonCode string          `json:"reason_code"`
	Amount     decimal.Decimal `json:"amount"`
	Quantity   string          `json:"quantity,omitempty"`
}

// Remittance is the payment outcome of one claim (CLP plus its CAS segments).
type Remittance struct {
	ClaimNumber           string          `json:"claim_number"`
	StatusCode            string          `json:"status_code"`
	Billed                decimal.Decimal `json:"billed"`
	TotalPaid             decimal.Decimal `json:"total_paid"`
	PatientResponsibility decimal.Decimal `json:"patient_responsibility"`
	Adjustments           []Adjustment    `json:"adjustments"`
}

// AdjustmentTotal sums every adjustment amount.
func (r *Remittance) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Adjustments {
		total = total.Add(a.Amount)
	}
	return total
}

// Unreconciled is billed minus (paid + patient responsibility + adjustments).
// A zero value means the claim reconciles. The parser never enforces this.
func (r *Remittance) Unreconciled() decimal.Decimal {
	return r.Billed.Sub(r.TotalPaid.Add(r.PatientResponsibility).Add(r.AdjustmentTotal()))
}

// RemittanceAdvice is a whole 835 transaction.
type RemittanceAdvice struct {
	TotalPayment decimal.NullDecimal `json:"total_payment"`
	TraceNumber  string              `json:"trace_number,omitempty"`
	Claims       []Remittance        `json:"claims"`
}

// Envelope carries the interchange, group and transaction identifiers that
// wrap a transaction set.
type Envelope struct {
	SenderQualifier    string
	SenderID           string
	ReceiverQualifier  string
	ReceiverID         string
	Usage              string // "P" production, "T" test
	InterchangeControl int64
	GroupControl       int64
	TransactionControl int64
	Timestamp          time.Time
}

func (e Envelope) withDefaults() Envelope {
	if e.SenderQualifier == "" {
		e.SenderQualifier = "ZZ"
	}
	if e.ReceiverQualifier == "" {
		e.ReceiverQualifier = "ZZ"
	}
	if e.Usage == "" {
		e.Usage = "P"
	}
	if e.InterchangeControl == 0 {
		e.InterchangeControl = 1
	}
	if e.GroupControl == 0 {
		e.GroupControl = 1
	}
	if e.TransactionControl == 0 {
		e.TransactionControl = 1
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}
