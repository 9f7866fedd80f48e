package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/interchange/internal/platform/segment"
	"github.com/ehr/interchange/internal/platform/sequence"
	"github.com/ehr/interchange/internal/platform/x12"
)

// Service turns claims into 837 interchanges and reads 835 remittances.
type Service struct {
	seq      sequence.Sequencer
	envelope x12.Envelope
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a billing service. envelope supplies sender, receiver
// and usage; control numbers and timestamps are filled per interchange.
func NewService(seq sequence.Sequencer, envelope x12.Envelope, logger zerolog.Logger) *Service {
	return &Service{
		seq:      seq,
		envelope: envelope,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "billing").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SubmitClaim validates claim, allocates its control numbers and generates
// the 837. Claims rejected by validation or by the codec do not consume
// control numbers.
func (s *Service) SubmitClaim(ctx context.Context, claim *x12.Claim) (*Submission, error) {
	if claim == nil {
		return nil, segment.Structural("CLM", "claim is required")
	}
	if err := s.validate.StructCtx(ctx, claim); err != nil {
		return nil, fmt.Errorf("validate claim: %w", err)
	}

	doc, err := s.generate(ctx, func(env x12.Envelope) (string, error) {
		return x12.Generate837(claim, env)
	})
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		Document:    *doc,
		ClaimNumber: claim.ClaimNumber,
		TotalCharge: claim.TotalCharge(),
		ChargeCount: len(claim.Charges),
	}
	s.logger.Info().
		Int64("isa13", doc.Control.Interchange).
		Int64("gs06", doc.Control.Group).
		Int64("st02", doc.Control.Transaction).
		Int("charges", sub.ChargeCount).
		Msg("837 generated")
	return sub, nil
}

// ReadRemittance parses an 835 and reports unreconciled claims.
func (s *Service) ReadRemittance(ctx context.Context, text string) (*RemittanceReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	advice, err := x12.Parse835Advice(text)
	if err != nil {
		return nil, err
	}

	report := NewRemittanceReport(advice)
	evt := s.logger.Info()
	if len(report.Unreconciled) > 0 {
		evt = s.logger.Warn()
	}
	evt.Int("claims", len(report.Claims)).
		Int("unreconciled", len(report.Unreconciled)).
		Str("trace", report.TraceNumber).
		Msg("835 read")
	return report, nil
}

// GenerateRemittance writes an 835 for advice under fresh control numbers.
func (s *Service) GenerateRemittance(ctx context.Context, advice *x12.RemittanceAdvice) (*Document, error) {
	if advice == nil || len(advice.Claims) == 0 {
		return nil, segment.Structural("CLP", "remittance advice has no claims")
	}
	doc, err := s.generate(ctx, func(env x12.Envelope) (string, error) {
		return x12.Generate835(advice, env)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("isa13", doc.Control.Interchange).
		Int("claims", len(advice.Claims)).
		Msg("835 generated")
	return doc, nil
}

// SimulateRemittance plays the payer: it adjudicates the claim for the given
// amounts and returns the resulting 835.
func (s *Service) SimulateRemittance(ctx context.Context, req *SimulationRequest) (*Document, error) {
	if req == nil || req.Claim == nil {
		return nil, segment.Structural("CLM", "claim is required")
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("validate simulation: %w", err)
	}
	if req.Paid.IsNegative() || req.PatientResponsibility.IsNegative() {
		return nil, segment.FieldError("CLP", 4, "paid and patient responsibility must not be negative")
	}
	if req.Paid.Add(req.PatientResponsibility).GreaterThan(req.Claim.TotalCharge()) {
		return nil, segment.FieldError("CLP", 4, "paid plus patient responsibility exceeds billed %s", req.Claim.TotalCharge())
	}

	remit := x12.AdjudicateInFull(req.Claim, req.Paid, req.PatientResponsibility)
	return s.GenerateRemittance(ctx, &x12.RemittanceAdvice{
		TotalPayment: decimal.NewNullDecimal(req.Paid),
		TraceNumber:  req.TraceNumber,
		Claims:       []x12.Remittance{remit},
	})
}

// generate builds the document once under placeholder control numbers so
// that input the codec rejects never consumes a number, then allocates and
// builds it for real.
func (s *Service) generate(ctx context.Context, build func(x12.Envelope) (string, error)) (*Document, error) {
	dry := s.envelope
	dry.Timestamp = s.now()
	if _, err := build(dry); err != nil {
		return nil, err
	}

	control, err := s.allocate(ctx)
	if err != nil {
		return nil, err
	}

	env := s.envelope
	env.InterchangeControl = control.Interchange
	env.GroupControl = control.Group
	env.TransactionControl = control.Transaction
	env.Timestamp = s.now()

	text, err := build(env)
	if err != nil {
		return nil, err
	}
	return &Document{Control: control, CreatedAt: env.Timestamp, Text: text}, nil
}

func (s *Service) allocate(ctx context.Context) (ControlNumbers, error) {
	var cn ControlNumbers
	counters := []struct {
		name string
		max  int64
		dst  *int64
	}{
		{sequence.Interchange, sequence.MaxInterchange, &cn.Interchange},
		{sequence.Group, sequence.MaxGroup, &cn.Group},
		{sequence.Transaction, sequence.MaxTransaction, &cn.Transaction},
	}
	for _, c := range counters {
		n, err := s.seq.Next(ctx, c.name)
		if err != nil {
			return cn, fmt.Errorf("allocate control numbers: %w", err)
		}
		*c.dst = sequence.Wrap(n, c.max)
	}
	return cn, nil
}
