package x12

import (
	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Generate835 writes a remittance advice carrying one CLP per claim. It is
// used to simulate payer responses; BPR02 is the sum of the paid amounts.
func Generate835(advice *RemittanceAdvice, env Envelope) (string, error) {
	if advice == nil || len(advice.Claims) == 0 {
		return "", segment.Structural("CLP", "remittance advice has no claims")
	}
	env = env.withDefaults()

	w := newWriter(segment.X12)
	w.writeHeader(env, "HP", "835", Version835)
	if w.err != nil {
		return "", w.err
	}
	stIndex := len(w.segments) - 1

	total := advice.TotalPayment.Decimal
	if !advice.TotalPayment.Valid {
		for _, c := range advice.Claims {
			total = total.Add(c.TotalPaid)
		}
	}
	w.seg("BPR").el("I").amt(total).el("C", "NON").end()
	if advice.TraceNumber != "" {
		w.seg("TRN").el("1", advice.TraceNumber).end()
	}

	for _, c := range advice.Claims {
		if c.ClaimNumber == "" {
			return "", segment.FieldError("CLP", 1, "claim number is required")
		}
		w.seg("CLP").
			el(c.ClaimNumber, c.StatusCode).
			amt(c.Billed, c.TotalPaid, c.PatientResponsibility).
			end()
		writeCAS(w, c.Adjustments)
	}

	w.writeTrailer(env, stIndex)
	if w.err != nil {
		return "", w.err
	}
	return w.render(), nil
}

// writeCAS groups consecutive adjustments sharing a group code, six per CAS.
func writeCAS(w *writer, adjustments []Adjustment) {
	for start := 0; start < len(adjustments); {
		group := adjustments[start].GroupCode
		cas := w.seg("CAS").el(group)
		n := 0
		for start < len(adjustments) && adjustments[start].GroupCode == group && n < maxCASTriples {
			a := adjustments[start]
			cas.el(a.ReasonCode).amt(a.Amount).el(a.Quantity)
			start++
			n++
		}
		cas.end()
	}
}

// claimStatusProcessedPrimary is CLP02 code 1.
const claimStatusProcessedPrimary = "1"

// AdjudicateInFull builds the remittance a payer would return when it pays
// claim less patientResponsibility, writing any remainder off as a
// contractual (CO-45) adjustment.
func AdjudicateInFull(claim *Claim, paid, patientResponsibility decimal.Decimal) Remittance {
	billed := claim.TotalCharge()
	r := Remittance{
		ClaimNumber:           claim.ClaimNumber,
		StatusCode:            claimStatusProcessedPrimary,
		Billed:                billed,
		TotalPaid:             paid,
		PatientResponsibility: patientResponsibility,
		Adjustments:           []Adjustment{},
	}
	if rest := billed.Sub(paid).Sub(patientResponsibility); rest.IsPositive() {
		r.Adjustments = append(r.Adjustments, Adjustment{GroupCode: "CO", ReasonCode: "45", Amount: rest})
	}
	return r
}
