package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danmuck/receiptctl/internal/escpos"
)

// Decoder status values.
const (
	DecoderSuccess = "success"
	DecoderPartial = "partial"
	DecoderError   = "error"
)

// Printer status values.
const (
	PrinterSuccess  = "success"
	PrinterError    = "error"
	PrinterDisabled = "disabled"
	PrinterSkipped  = "skipped"
)

// Content is the decoded receipt body.
type Content struct {
	Lines []string `json:"lines"`
}

// Report describes one captured print job.
type Report struct {
	ID              string    `json:"id"`
	ReceivedAt      time.Time `json:"received_at"`
	Remote          string    `json:"remote"`
	Bytes           int       `json:"bytes"`
	Truncated       bool      `json:"truncated,omitempty"`
	DecoderStatus   string    `json:"decoder_status"`
	DecodeErrors    int       `json:"decode_errors"`
	HandlerFailures int       `json:"handler_failures"`
	PrinterStatus   string    `json:"printer_status"`
	PrinterError    string    `json:"printer_error,omitempty"`
	ReceiptContent  Content   `json:"receipt_content"`
}

// Sink consumes finished reports.
type Sink interface {
	Publish(ctx context.Context, r Report) error
}

// FromResult fills the decoder half of a report. decodeErr is the error
// returned by finalization, if any.
func FromResult(res escpos.Result, decodeErr error) (status string, content Content) {
	switch {
	case decodeErr != nil:
		return DecoderError, Content{Lines: []string{}}
	case res.Errors > 0:
		status = DecoderPartial
	default:
		status = DecoderSuccess
	}
	return status, Content{Lines: SplitLines(res.Text)}
}

// SplitLines trims surrounding whitespace and splits on line boundaries
// (LF, CRLF, CR, VT, FF). Empty text yields no lines.
func SplitLines(text string) []string {
	text = strings.TrimSpace(text)
	lines := make([]string, 0, strings.Count(text, "\n")+1)
	if text == "" {
		return lines
	}
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', '\v', '\f':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	return append(lines, text[start:])
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, r Report) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
