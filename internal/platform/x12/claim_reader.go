package x12

import (
	"strconv"
	"strings"

	"github.com/ehr/interchange/internal/platform/segment"
)

// Parse837 reads a professional claim back into a Claim. It understands the
// loops Generate837 emits and ignores everything else; ICD-10 codes come back
// without their decimal point and gender as its DMG03 code.
func Parse837(text string) (*Claim, error) {
	if strings.TrimSpace(text) == "" {
		return nil, segment.Structural("", "837 input is empty")
	}

	d := DetectDelimiters(text)
	segs := decodeSegments(text, d)
	if err := requireEnvelope(segs, "837"); err != nil {
		return nil, err
	}

	claim := &Claim{}
	var (
		diagnoses []string
		pointers  []int
		entity    string
		seenCLM   bool
	)

	for _, s := range segs {
		switch s.Kind {
		case KindNM1:
			entity = strings.TrimSpace(s.Value(1))
			switch entity {
			case "85":
				claim.BillingProvider.Name = s.Value(3)
				claim.BillingProvider.NPI = s.Value(9)
			case "IL":
				claim.Patient.Name = strings.TrimSpace(s.Value(4) + " " + s.Value(3))
				claim.SubscriberID = s.Value(9)
			case "PR":
				claim.InsuranceProvider = s.Value(3)
				claim.PayerID = s.Value(9)
			}
		case KindN3:
			if entity == "85" {
				claim.BillingProvider.Address = s.Value(1)
			}
		case KindN4:
			if entity == "85" {
				claim.BillingProvider.City = s.Value(1)
				claim.BillingProvider.State = s.Value(2)
				claim.BillingProvider.Zip = s.Value(3)
			}
		case KindDMG:
			if v := strings.TrimSpace(s.Value(2)); v != "" {
				dob, err := segment.ParseDate(v)
				if err != nil {
					return nil, segment.FieldError("DMG", 2, "date of birth: %v", err)
				}
				claim.Patient.DateOfBirth = dob
			}
			claim.Patient.Gender = s.Value(3)
		case KindCLM:
			number, err := s.Require(1, "claim number")
			if err != nil {
				return nil, err
			}
			claim.ClaimNumber = number
			seenCLM = true
		case KindREF:
			if s.Value(1) == "EA" {
				claim.Patient.ID = s.Value(2)
			}
		case KindHI:
			for pos := 1; pos <= s.Len(); pos++ {
				if code, ok := s.Component(pos, 2, d.Component); ok && code != "" {
					diagnoses = append(diagnoses, code)
				}
			}
		case KindSV1:
			ch, pointer, err := decodeSV1(s, d)
			if err != nil {
				return nil, err
			}
			claim.Charges = append(claim.Charges, ch)
			pointers = append(pointers, pointer)
		case KindDTP:
			if err := applyDTP(claim, s); err != nil {
				return nil, err
			}
		}
	}

	if !seenCLM {
		return nil, segment.Structural("CLM", "claim segment not found")
	}
	if len(claim.Charges) == 0 {
		return nil, segment.Structural("SV1", "claim %s has no service lines", claim.ClaimNumber)
	}
	for i, p := range pointers {
		if p < 1 || p > len(diagnoses) {
			return nil, segment.FieldError("SV1", 7, "line %d points at diagnosis %d of %d", i+1, p, len(diagnoses))
		}
		claim.Charges[i].ICD10Code = diagnoses[p-1]
	}
	return claim, nil
}

func decodeSV1(s Segment, d segment.Delimiters) (Charge, int, error) {
	cpt, ok := s.Component(1, 2, d.Component)
	if !ok || strings.TrimSpace(cpt) == "" {
		return Charge{}, 0, segment.FieldError("SV1", 1, "procedure code is missing")
	}
	amt, err := amountField(s, 2, "line charge")
	if err != nil {
		return Charge{}, 0, err
	}
	first, _ := s.Component(7, 1, d.Component)
	pointer, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return Charge{}, 0, segment.FieldError("SV1", 7, "diagnosis pointer %q is not a number", first)
	}
	return Charge{CPTCode: cpt, Amount: amt}, pointer, nil
}

// applyDTP sets the claim service period (434) or the date of the most
// recent service line (472).
func applyDTP(claim *Claim, s Segment) error {
	switch s.Value(1) {
	case "434":
		from, to, _ := strings.Cut(s.Value(3), "-")
		start, err := segment.ParseDate(from)
		if err != nil {
			return segment.FieldError("DTP", 3, "service period: %v", err)
		}
		end := start
		if to != "" {
			if end, err = segment.ParseDate(to); err != nil {
				return segment.FieldError("DTP", 3, "service period: %v", err)
			}
		}
		claim.ServiceFrom, claim.ServiceTo = start, end
	case "472":
		if len(claim.Charges) == 0 {
			return segment.Structural("DTP", "service date appears before any service line")
		}
		date, err := segment.ParseDate(s.Value(3))
		if err != nil {
			return segment.FieldError("DTP", 3, "service date: %v", err)
		}
		claim.Charges[len(claim.Charges)-1].ServiceDate = date
	}
	return nil
}
