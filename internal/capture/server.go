package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/receiptctl/internal/escpos"
	"github.com/danmuck/receiptctl/internal/observability"
	"github.com/danmuck/receiptctl/internal/report"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddrRequired     = errors.New("capture: listen address required")
	ErrInvalidChunkSize = errors.New("capture: chunk size must be positive")
)

// Config controls the print port.
type Config struct {
	Addr        string
	ChunkSize   int
	IdleTimeout time.Duration
	MaxJobBytes int
}

func DefaultConfig() Config {
	return Config{
		Addr:      "0.0.0.0:9100",
		ChunkSize: 16,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrAddrRequired
	}
	if c.ChunkSize < 1 {
		return ErrInvalidChunkSize
	}
	return nil
}

// Relay forwards a job's raw bytes to the physical printer.
type Relay interface {
	Enabled() bool
	Forward(ctx context.Context, raw []byte) error
}

// Server accepts print jobs and reports on each one.
type Server struct {
	cfg    Config
	tree   *escpos.Tree
	relay  Relay
	sink   report.Sink
	log    zerolog.Logger
	seq    atomic.Uint64
	active atomic.Int64
	now    func() time.Time
}

type Option func(*Server)

// WithTree decodes jobs against t instead of the default command set.
func WithTree(t *escpos.Tree) Option {
	return func(s *Server) {
		s.tree = t
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer builds a capture server. relay and sink may be nil.
func NewServer(cfg Config, relay Relay, sink report.Sink, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		tree:  escpos.DefaultTree(),
		relay: relay,
		sink:  sink,
		log:   log.With().Str("component", "capture").Logger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ActiveJobs returns the number of connections currently being read.
func (s *Server) ActiveJobs() int64 {
	return s.active.Load()
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
	if err != nil {
		return fmt.Errorf("capture: listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener accepts jobs on ln until ctx is cancelled, then waits for
// in-flight jobs to finish. ln is closed on return.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("capture.Server listening")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("capture.Server shutdown")
				return nil
			}
			return fmt.Errorf("capture: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	id := fmt.Sprintf("job-%d-%d", s.now().UnixMilli(), s.seq.Add(1))
	logger := s.log.With().Str("job", id).Str("remote", remote).Logger()

	s.active.Add(1)
	observability.ConnectionOpened()
	defer func() {
		s.active.Add(-1)
		observability.ConnectionClosed()
	}()
	logger.Info().Msg("capture.Server job started")

	// Shutdown ends the read loop through the deadline instead of dropping
	// the job on the floor.
	unblock := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer unblock()

	dec := escpos.NewDecoder(escpos.WithTree(s.tree), escpos.WithLogger(logger))
	captured, err := s.readJob(ctx, conn, dec)
	if err != nil {
		logger.Warn().Err(err).Msg("capture.Server read ended early")
	}
	res, decodeErr := dec.Finish()
	if decodeErr != nil {
		logger.Error().Err(decodeErr).Msg("capture.Server decode failed")
	}

	rep := report.Report{
		ID:              id,
		ReceivedAt:      s.now().UTC(),
		Remote:          remote,
		Bytes:           captured.received,
		Truncated:       captured.truncated,
		DecodeErrors:    res.Errors,
		HandlerFailures: res.HandlerFailures,
	}
	rep.DecoderStatus, rep.ReceiptContent = report.FromResult(res, decodeErr)

	// The printer must still get the job when the listener is shutting down.
	jobCtx := context.WithoutCancel(ctx)
	rep.PrinterStatus, rep.PrinterError = s.forward(jobCtx, captured)

	observability.RecordJob(observability.JobOutcome{
		DecoderStatus:   rep.DecoderStatus,
		PrinterStatus:   rep.PrinterStatus,
		Bytes:           rep.Bytes,
		DecodeErrors:    rep.DecodeErrors,
		HandlerFailures: rep.HandlerFailures,
	})
	if s.sink != nil {
		if err := s.sink.Publish(jobCtx, rep); err != nil {
			logger.Warn().Err(err).Msg("capture.Server publish failed")
		}
	}
	logger.Info().
		Int("bytes", rep.Bytes).
		Int("lines", len(rep.ReceiptContent.Lines)).
		Str("decoder_status", rep.DecoderStatus).
		Str("printer_status", rep.PrinterStatus).
		Msg("capture.Server job finished")
}

type job struct {
	raw       []byte
	received  int
	truncated bool
}

// readJob feeds every chunk to dec and keeps the raw bytes for the relay.
// Bytes past MaxJobBytes are still decoded but not kept.
func (s *Server) readJob(ctx context.Context, conn net.Conn, dec *escpos.Decoder) (job, error) {
	var (
		out job
		raw bytes.Buffer
		buf = make([]byte, s.cfg.ChunkSize)
	)
	for {
		if ctx.Err() != nil {
			out.raw = raw.Bytes()
			return out, nil
		}
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				out.raw = raw.Bytes()
				return out, err
			}
			// Shutdown may have fired between the check above and the new
			// deadline; it must not be pushed out by a full idle timeout.
			if ctx.Err() != nil {
				_ = conn.SetReadDeadline(time.Now())
			}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			dec.Feed(chunk)
			out.received += n
			keep := n
			if s.cfg.MaxJobBytes > 0 && raw.Len()+n > s.cfg.MaxJobBytes {
				keep = s.cfg.MaxJobBytes - raw.Len()
				out.truncated = true
			}
			raw.Write(chunk[:keep])
		}
		if err == nil {
			continue
		}
		out.raw = raw.Bytes()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return out, nil
		}
		return out, err
	}
}

func (s *Server) forward(ctx context.Context, j job) (status string, detail string) {
	switch {
	case s.relay == nil || !s.relay.Enabled():
		return report.PrinterDisabled, ""
	case j.truncated:
		return report.PrinterSkipped, "job exceeded max_job_bytes"
	case j.received == 0:
		return report.PrinterSkipped, "empty job"
	}
	if err := s.relay.Forward(ctx, j.raw); err != nil {
		return report.PrinterError, err.Error()
	}
	return report.PrinterSuccess, ""
}
