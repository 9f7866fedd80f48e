package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ehr/interchange/internal/platform/hl7v2"
	"github.com/ehr/interchange/internal/platform/segment"
	"github.com/ehr/interchange/internal/platform/sequence"
)

// Control id prefixes by message type.
const (
	prefixORM = "ORM"
	prefixORU = "ORU"
)

// Service turns lab orders into ORM messages and reads ORU results.
type Service struct {
	seq      sequence.Sequencer
	header   hl7v2.Header
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a diagnostics service. header supplies the sending and
// receiving application and facility; timestamp and control id are set per
// message.
func NewService(seq sequence.Sequencer, header hl7v2.Header, logger zerolog.Logger) *Service {
	return &Service{
		seq:      seq,
		header:   header,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "diagnostics").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates order and renders it as an ORM^O01.
func (s *Service) PlaceOrder(ctx context.Context, order *hl7v2.LabOrder) (*OrderMessage, error) {
	if order == nil {
		return nil, segment.Structural("ORC", "lab order is required")
	}
	if err := s.validate.StructCtx(ctx, order); err != nil {
		return nil, fmt.Errorf("validate order: %w", err)
	}

	hdr, text, err := s.render(ctx, prefixORM, func(h hl7v2.Header) (string, error) {
		return hl7v2.GenerateORM(order, h)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("control_id", hdr.ControlID).
		Str("order_number", order.OrderNumber).
		Str("test_code", order.TestCode).
		Msg("ORM generated")
	return &OrderMessage{
		OrderNumber: order.OrderNumber,
		ControlID:   hdr.ControlID,
		CreatedAt:   hdr.Timestamp,
		Text:        text,
	}, nil
}

// ReadResults extracts every observation from an ORU^R01 message.
func (s *Service) ReadResults(ctx context.Context, raw []byte) ([]hl7v2.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := hl7v2.ParseORUResults(raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("results", len(results)).Msg("ORU read")
	return results, nil
}

// GenerateResults renders an ORU^R01 reporting the results of a placed order.
func (s *Service) GenerateResults(ctx context.Context, report *ResultReport) (*OrderMessage, error) {
	if report == nil || report.Order == nil {
		return nil, segment.Structural("OBR", "lab order is required")
	}
	if err := s.validate.StructCtx(ctx, report); err != nil {
		return nil, fmt.Errorf("validate results: %w", err)
	}

	hdr, text, err := s.render(ctx, prefixORU, func(h hl7v2.Header) (string, error) {
		return hl7v2.GenerateORU(report.Order, report.Results, h)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("control_id", hdr.ControlID).
		Str("order_number", report.Order.OrderNumber).
		Int("results", len(report.Results)).
		Msg("ORU generated")
	return &OrderMessage{
		OrderNumber: report.Order.OrderNumber,
		ControlID:   hdr.ControlID,
		CreatedAt:   hdr.Timestamp,
		Text:        text,
	}, nil
}

// render builds the message once under the unnumbered header so input the
// codec rejects never consumes a control id, then builds it under a fresh one.
func (s *Service) render(ctx context.Context, prefix string, build func(hl7v2.Header) (string, error)) (hl7v2.Header, string, error) {
	dry := s.header
	dry.Timestamp = s.now()
	dry.ControlID = prefix
	if _, err := build(dry); err != nil {
		return hl7v2.Header{}, "", err
	}

	hdr, err := s.nextHeader(ctx, prefix)
	if err != nil {
		return hl7v2.Header{}, "", err
	}
	text, err := build(hdr)
	if err != nil {
		return hl7v2.Header{}, "", err
	}
	return hdr, text, nil
}

// nextHeader allocates the MSH-10 control id, prefix plus nine digits.
func (s *Service) nextHeader(ctx context.Context, prefix string) (hl7v2.Header, error) {
	n, err := s.seq.Next(ctx, sequence.HL7Message)
	if err != nil {
		return hl7v2.Header{}, fmt.Errorf("allocate control id: %w", err)
	}
	hdr := s.header
	hdr.Timestamp = s.now()
	hdr.ControlID = fmt.Sprintf("%s%09d", prefix, sequence.Wrap(n, sequence.MaxHL7Message))
	return hdr, nil
}
