package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ehr/interchange/internal/config"
	"github.com/ehr/interchange/internal/domain/billing"
	"github.com/ehr/interchange/internal/domain/diagnostics"
	"github.com/ehr/interchange/internal/platform/hl7v2"
	"github.com/ehr/interchange/internal/platform/sequence"
	"github.com/ehr/interchange/internal/platform/x12"
)

// The offline codec commands run the same services as the API with a
// process-local sequencer, so every document they emit carries control
// number 1 unless --control says otherwise.

func ediCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edi",
		Short: "Generate and read X12 837/835 files",
	}

	gen837 := &cobra.Command{
		Use:   "generate-837 <claim.json>",
		Short: "Generate an 837P interchange from a JSON claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var claim x12.Claim
			if err := readJSON(cmd, args[0], &claim); err != nil {
				return err
			}
			svc, err := billingService(cmd)
			if err != nil {
				return err
			}
			sub, err := svc.SubmitClaim(cmd.Context(), &claim)
			if err != nil {
				return err
			}
			return writeText(cmd, sub.Text)
		},
	}
	cmd.AddCommand(gen837)

	cmd.AddCommand(&cobra.Command{
		Use:   "parse-835 <file>",
		Short: "Read an 835 remittance advice into JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := billingService(cmd)
			if err != nil {
				return err
			}
			report, err := svc.ReadRemittance(cmd.Context(), string(raw))
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "parse-837 <file>",
		Short: "Read an 837P generated by this service back into a JSON claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			claim, err := x12.Parse837(string(raw))
			if err != nil {
				return err
			}
			return writeJSON(cmd, claim)
		},
	})

	simulate := &cobra.Command{
		Use:   "simulate-835 <claim.json>",
		Short: "Play the payer and answer a JSON claim with an 835",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := billing.SimulationRequest{Claim: &x12.Claim{}}
			if err := readJSON(cmd, args[0], req.Claim); err != nil {
				return err
			}
			var err error
			if req.Paid, err = decimalFlag(cmd, "paid"); err != nil {
				return err
			}
			if req.PatientResponsibility, err = decimalFlag(cmd, "patient-responsibility"); err != nil {
				return err
			}
			req.TraceNumber, _ = cmd.Flags().GetString("trace")

			svc, err := billingService(cmd)
			if err != nil {
				return err
			}
			doc, err := svc.SimulateRemittance(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return writeText(cmd, doc.Text)
		},
	}
	simulate.Flags().String("paid", "0", "Amount the payer pays")
	simulate.Flags().String("patient-responsibility", "0", "Amount left to the patient")
	simulate.Flags().String("trace", "", "Payment trace number (TRN02)")
	cmd.AddCommand(simulate)

	cmd.PersistentFlags().Int64("control", 1, "First control number to allocate")
	return cmd
}

func hl7Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hl7",
		Short: "Generate and read HL7 v2 lab messages",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate-orm <order.json>",
		Short: "Generate an ORM^O01 from a JSON lab order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var order hl7v2.LabOrder
			if err := readJSON(cmd, args[0], &order); err != nil {
				return err
			}
			svc, err := diagnosticsService(cmd)
			if err != nil {
				return err
			}
			msg, err := svc.PlaceOrder(cmd.Context(), &order)
			if err != nil {
				return err
			}
			return writeText(cmd, msg.Text)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "parse-oru <file>",
		Short: "Read the results of an ORU^R01 into JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := diagnosticsService(cmd)
			if err != nil {
				return err
			}
			results, err := svc.ReadResults(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return writeJSON(cmd, diagnostics.ResultBatch{Count: len(results), Results: results})
		},
	})

	ack := &cobra.Command{
		Use:   "ack <file>",
		Short: "Answer an HL7 message with an ACK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			msg, err := hl7v2.Parse(raw)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("code")
			switch code {
			case hl7v2.AckAccept, hl7v2.AckError, hl7v2.AckReject:
			default:
				return fmt.Errorf("--code must be AA, AE or AR, got %q", code)
			}
			text, _ := cmd.Flags().GetString("text")
			return writeText(cmd, string(hl7v2.SerializeMessage(hl7v2.GenerateACK(msg, code, text))))
		},
	}
	ack.Flags().String("code", hl7v2.AckAccept, "Acknowledgment code (AA, AE or AR)")
	ack.Flags().String("text", "", "Text message for MSA-3")
	cmd.AddCommand(ack)

	cmd.PersistentFlags().Int64("control", 1, "First control number to allocate")
	return cmd
}

// offlineSequencer starts every counter at --control.
func offlineSequencer(cmd *cobra.Command) (sequence.Sequencer, error) {
	start, _ := cmd.Flags().GetInt64("control")
	if start < 1 {
		return nil, fmt.Errorf("--control must be positive, got %d", start)
	}
	return &startAt{next: sequence.NewMemory(), offset: start - 1}, nil
}

type startAt struct {
	next   sequence.Sequencer
	offset int64
}

func (s *startAt) Next(ctx context.Context, name string) (int64, error) {
	n, err := s.next.Next(ctx, name)
	return n + s.offset, err
}

func billingService(cmd *cobra.Command) (*billing.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	seq, err := offlineSequencer(cmd)
	if err != nil {
		return nil, err
	}
	return billing.NewService(seq, cfg.X12Envelope(), cliLogger(cmd)), nil
}

func diagnosticsService(cmd *cobra.Command) (*diagnostics.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	seq, err := offlineSequencer(cmd)
	if err != nil {
		return nil, err
	}
	return diagnostics.NewService(seq, cfg.HL7Header(), cliLogger(cmd)), nil
}

// cliLogger keeps stdout for the document and reports warnings on stderr.
func cliLogger(cmd *cobra.Command) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(zerolog.WarnLevel)
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func readJSON(cmd *cobra.Command, path string, v interface{}) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s, _ := cmd.Flags().GetString(name)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func writeText(cmd *cobra.Command, text string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeText(cmd, string(out))
}
