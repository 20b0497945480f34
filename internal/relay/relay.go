package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/receiptctl/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrDisabled     = errors.New("relay: forwarding disabled")
	ErrAddrRequired = errors.New("relay: printer address required")
	ErrShortWrite   = errors.New("relay: short write")
)

// Config controls how raw jobs reach the physical printer.
type Config struct {
	Enabled        bool
	Addr           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	MaxAttempts    int
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Addr:           "printer:9100",
		ConnectTimeout: 3 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxAttempts:    1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Forwarder sends the unmodified raw byte stream of a job to the printer.
// Jobs are forwarded one at a time.
type Forwarder struct {
	cfg    Config
	dialer net.Dialer
	log    zerolog.Logger
	mu     sync.Mutex
}

func New(cfg Config) *Forwarder {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Forwarder{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.ConnectTimeout},
		log:    log.With().Str("component", "relay").Logger(),
	}
}

func (f *Forwarder) Enabled() bool {
	return f != nil && f.cfg.Enabled
}

func (f *Forwarder) Addr() string {
	return f.cfg.Addr
}

// Forward delivers raw to the printer, retrying with backoff up to
// MaxAttempts. It returns the last attempt's error.
func (f *Forwarder) Forward(ctx context.Context, raw []byte) error {
	if !f.Enabled() {
		return ErrDisabled
	}
	addr := strings.TrimSpace(f.cfg.Addr)
	if addr == "" {
		return ErrAddrRequired
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if werr := f.wait(ctx, attempt-1); werr != nil {
				return werr
			}
		}
		start := time.Now()
		err = f.send(ctx, addr, raw)
		observability.RecordRelayAttempt(err == nil, time.Since(start))
		if err == nil {
			f.log.Info().Str("addr", addr).Int("bytes", len(raw)).Int("attempt", attempt).Msg("relay.Forward sent")
			return nil
		}
		f.log.Warn().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("relay.Forward failed")
	}
	return err
}

func (f *Forwarder) send(ctx context.Context, addr string, raw []byte) error {
	conn, err := f.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if f.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("relay: deadline %s: %w", addr, err)
		}
	}
	n, err := conn.Write(raw)
	if err != nil {
		return fmt.Errorf("relay: write %s: %w", addr, err)
	}
	if n != len(raw) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(raw))
	}
	return nil
}

func (f *Forwarder) wait(ctx context.Context, retry int) error {
	timer := time.NewTimer(NextBackoffDelay(f.cfg.Backoff, retry, nil))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
