package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/danmuck/receiptctl/internal/capture"
	"github.com/danmuck/receiptctl/internal/config"
	"github.com/danmuck/receiptctl/internal/escpos"
	"github.com/danmuck/receiptctl/internal/httpapi"
	"github.com/danmuck/receiptctl/internal/observability"
	"github.com/danmuck/receiptctl/internal/relay"
	"github.com/danmuck/receiptctl/internal/report"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Service runs the capture listener and the report API from one config.
type Service struct {
	cfg       config.Config
	log       zerolog.Logger
	memory    *report.MemorySink
	redis     *report.RedisSink
	forwarder *relay.Forwarder
	capture   *capture.Server
	api       *httpapi.Server
}

type Option func(*options)

type options struct {
	tree *escpos.Tree
	log  zerolog.Logger
}

// WithTree decodes against t instead of the default command set.
func WithTree(t *escpos.Tree) Option {
	return func(o *options) {
		o.tree = t
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func New(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		tree: escpos.DefaultTree(),
		log:  log.With().Str("component", "service").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	observability.RegisterMetrics()

	s := &Service{
		cfg:       cfg,
		log:       o.log,
		memory:    report.NewMemorySink(report.DefaultMemoryCapacity),
		forwarder: relay.New(cfg.Printer),
	}

	sinks := report.Fanout{
		report.LogSink{Logger: o.log.With().Str("component", "report").Logger()},
		s.memory,
	}
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		s.redis = report.NewRedisSink(addr, cfg.Redis.Password, cfg.Redis.DB,
			report.WithKey(cfg.Redis.Key),
			report.WithChannel(cfg.Redis.Channel),
			report.WithMaxEntries(cfg.Redis.MaxEntries),
		)
		sinks = append(sinks, s.redis)
	}

	srv, err := capture.NewServer(cfg.Listener, s.forwarder, sinks,
		capture.WithTree(o.tree),
		capture.WithLogger(o.log.With().Str("component", "capture").Logger()),
	)
	if err != nil {
		return nil, err
	}
	s.capture = srv

	if strings.TrimSpace(cfg.HTTP.Addr) != "" {
		apiOpts := []httpapi.Option{
			httpapi.WithTree(o.tree),
			httpapi.WithLogger(o.log.With().Str("component", "httpapi").Logger()),
		}
		if s.redis != nil {
			apiOpts = append(apiOpts, httpapi.WithReadinessCheck("redis", s.redis.Ping))
		}
		s.api = httpapi.New(cfg.HTTP.Addr, cfg.HTTP.CorsOrigins, s.memory, apiOpts...)
	}
	return s, nil
}

// Reports returns the in-memory view of recent jobs.
func (s *Service) Reports() *report.MemorySink {
	return s.memory
}

func (s *Service) Capture() *capture.Server {
	return s.capture
}

// API returns the report API, or nil when http.addr is empty.
func (s *Service) API() *httpapi.Server {
	return s.api
}

// Run listens on the configured addresses and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	captureLn, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Listener.Addr))
	if err != nil {
		return fmt.Errorf("service: listen capture %s: %w", s.cfg.Listener.Addr, err)
	}
	var apiLn net.Listener
	if s.api != nil {
		apiLn, err = net.Listen("tcp", strings.TrimSpace(s.cfg.HTTP.Addr))
		if err != nil {
			_ = captureLn.Close()
			return fmt.Errorf("service: listen http %s: %w", s.cfg.HTTP.Addr, err)
		}
	}
	return s.Serve(ctx, captureLn, apiLn)
}

// Serve runs on the given listeners. apiLn is ignored when the API is
// disabled. The first component to fail stops the others.
func (s *Service) Serve(ctx context.Context, captureLn, apiLn net.Listener) error {
	s.log.Info().
		Bool("printer", s.forwarder.Enabled()).
		Str("printer_addr", s.forwarder.Addr()).
		Bool("redis", s.redis != nil).
		Bool("http", s.api != nil).
		Msg("service starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.capture.ServeListener(gctx, captureLn)
	})
	if s.api != nil && apiLn != nil {
		g.Go(func() error {
			return s.api.ServeListener(gctx, apiLn)
		})
	} else if apiLn != nil {
		_ = apiLn.Close()
	}
	err := g.Wait()
	s.log.Info().Err(err).Msg("service stopped")
	return err
}

func (s *Service) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}
