package x12

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/segment"
)

// maxCASTriples is the number of reason/amount/quantity groups a CAS carries.
const maxCASTriples = 6

// Parse835 extracts the first claim payment of an 835 remittance advice.
func Parse835(text string) (*Remittance, error) {
	advice, err := Parse835Advice(text)
	if err != nil {
		return nil, err
	}
	return &advice.Claims[0], nil
}

// Parse835Advice extracts every CLP of an 835 together with the CAS
// adjustments that follow it before the next CLP or SE. Amounts are literal
// decimal strings.
func Parse835Advice(text string) (*RemittanceAdvice, error) {
	if strings.TrimSpace(text) == "" {
		return nil, segment.Structural("", "835 input is empty")
	}

	segs := decodeSegments(text, DetectDelimiters(text))
	if err := requireEnvelope(segs, "835"); err != nil {
		return nil, err
	}

	advice := &RemittanceAdvice{}
	var current *Remittance

	for _, s := range segs {
		switch s.Kind {
		case KindBPR:
			if v, ok := s.Get(2); ok && strings.TrimSpace(v) != "" {
				amt, err := amountField(s, 2, "total payment")
				if err != nil {
					return nil, err
				}
				advice.TotalPayment = decimal.NewNullDecimal(amt)
			}
		case KindTRN:
			advice.TraceNumber = strings.TrimSpace(s.Value(2))
		case KindCLP:
			r, err := decodeCLP(s)
			if err != nil {
				return nil, err
			}
			advice.Claims = append(advice.Claims, r)
			current = &advice.Claims[len(advice.Claims)-1]
		case KindCAS:
			if current == nil {
				return nil, segment.Structural("CAS", "adjustment appears before any CLP segment")
			}
			adj, err := decodeCAS(s)
			if err != nil {
				return nil, err
			}
			current.Adjustments = append(current.Adjustments, adj...)
		case KindSE:
			current = nil
		}
	}

	if len(advice.Claims) == 0 {
		return nil, segment.Structural("CLP", "no claim payment segment found")
	}
	return advice, nil
}

// requireEnvelope checks that ISA, GS and ST are present and that ST01 names
// the expected transaction set.
func requireEnvelope(segs []Segment, setID string) error {
	var isa, gs, st *Segment
	for i := range segs {
		switch segs[i].Kind {
		case KindISA:
			if isa == nil {
				isa = &segs[i]
			}
		case KindGS:
			if gs == nil {
				gs = &segs[i]
			}
		case KindST:
			if st == nil {
				st = &segs[i]
			}
		}
	}

	switch {
	case isa == nil:
		return segment.Structural("ISA", "interchange header not found")
	case gs == nil:
		return segment.Structural("GS", "functional group header not found")
	case st == nil:
		return segment.Structural("ST", "transaction set header not found")
	}
	if got := strings.TrimSpace(st.Value(1)); got != setID {
		return segment.Structural("ST", "transaction set %q is not %s", got, setID)
	}
	return nil
}

func decodeCLP(s Segment) (Remittance, error) {
	number, err := s.Require(1, "claim number")
	if err != nil {
		return Remittance{}, err
	}
	billed, err := amountField(s, 3, "billed amount")
	if err != nil {
		return Remittance{}, err
	}
	paid, err := amountField(s, 4, "paid amount")
	if err != nil {
		return Remittance{}, err
	}

	// CLP05 is situational: absent means the patient owes nothing.
	resp := decimal.Zero
	if v, ok := s.Get(5); ok && strings.TrimSpace(v) != "" {
		if resp, err = amountField(s, 5, "patient responsibility"); err != nil {
			return Remittance{}, err
		}
	}

	return Remittance{
		ClaimNumber:           number,
		StatusCode:            strings.TrimSpace(s.Value(2)),
		Billed:                billed,
		TotalPaid:             paid,
		PatientResponsibility: resp,
		Adjustments:           []Adjustment{},
	}, nil
}

func decodeCAS(s Segment) ([]Adjustment, error) {
	group, err := s.Require(1, "adjustment group code")
	if err != nil {
		return nil, err
	}

	var out []Adjustment
	for i := 0; i < maxCASTriples; i++ {
		reasonPos := 2 + i*3
		reason := strings.TrimSpace(s.Value(reasonPos))
		if reason == "" {
			if i == 0 {
				return nil, segment.FieldError("CAS", reasonPos, "adjustment reason code is empty")
			}
			break
		}
		amt, err := amountField(s, reasonPos+1, "adjustment amount")
		if err != nil {
			return nil, err
		}
		out = append(out, Adjustment{
			GroupCode:  group,
			ReasonCode: reason,
			Amount:     amt,
			Quantity:   strings.TrimSpace(s.Value(reasonPos + 2)),
		})
	}
	return out, nil
}

func amountField(s Segment, pos int, name string) (decimal.Decimal, error) {
	v, err := s.Require(pos, name)
	if err != nil {
		return decimal.Zero, err
	}
	amt, err := segment.ParseAmount(v)
	if err != nil {
		return decimal.Zero, segment.FieldError(s.Tag(), pos, "%s: %v", name, err)
	}
	return amt, nil
}
