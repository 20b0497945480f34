package report

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes each report as a structured log event.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, r Report) error {
	s.Logger.Info().
		Str("id", r.ID).
		Str("remote", r.Remote).
		Int("bytes", r.Bytes).
		Bool("truncated", r.Truncated).
		Str("decoder_status", r.DecoderStatus).
		Int("decode_errors", r.DecodeErrors).
		Int("handler_failures", r.HandlerFailures).
		Str("printer_status", r.PrinterStatus).
		Strs("lines", r.ReceiptContent.Lines).
		Msg("report.receipt")
	return nil
}
