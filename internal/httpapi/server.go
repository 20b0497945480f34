package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/receiptctl/internal/escpos"
	"github.com/danmuck/receiptctl/internal/observability"
	"github.com/danmuck/receiptctl/internal/report"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Version is the receiptctl release reported by the API and the CLI.
	Version = "0.1.0"

	DefaultLimit = 20
	MaxLimit     = 500
)

// Store is the read side of a report sink.
type Store interface {
	Recent(limit int) []report.Report
	Latest() (report.Report, bool)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Option func(*Server)

func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithTree lists t on /commands instead of the default command set.
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

// Server is the read-only report API.
type Server struct {
	addr    string
	router  *gin.Engine
	store   Store
	tree    *escpos.Tree
	checks  map[string]ReadinessCheck
	log     zerolog.Logger
	started time.Time
}

func New(addr string, corsOrigins []string, store Store, opts ...Option) *Server {
	observability.RegisterMetrics()
	s := &Server{
		addr:    addr,
		store:   store,
		tree:    escpos.DefaultTree(),
		checks:  make(map[string]ReadinessCheck),
		log:     log.With().Str("component", "httpapi").Logger(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	quietGin()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.router = r
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		})
	})

	s.router.GET("/ready", s.ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/commands", s.commands)
	s.router.GET("/receipts", s.recent)
	s.router.GET("/receipts/latest", s.latest)
}

func (s *Server) ready(c *gin.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{
		"ready":   status == http.StatusOK,
		"checks":  results,
		"uptime":  time.Since(s.started).String(),
		"version": Version,
	})
}

type commandInfo struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

func (s *Server) commands(c *gin.Context) {
	cmds := s.tree.Commands()
	out := make([]commandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, commandInfo{
			Path:  escpos.FormatPath(cmd.Path),
			Name:  cmd.Handler.Name,
			Arity: cmd.Handler.Arity,
		})
	}
	c.JSON(http.StatusOK, gin.H{"commands": out})
}

func (s *Server) recent(c *gin.Context) {
	limit := DefaultLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = min(n, MaxLimit)
	}
	receipts := s.store.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"count":    len(receipts),
		"receipts": receipts,
	})
}

func (s *Server) latest(c *gin.Context) {
	rep, ok := s.store.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no receipts captured yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Serve runs the API until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("httpapi.Server shutdown")
		}
	})
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("httpapi.Server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpapi: serve: %w", err)
	}
	return nil
}

// quietGin leaves debug mode, and its route dump on stdout, unless GIN_MODE
// or an earlier SetMode picked a mode.
func quietGin() {
	if os.Getenv(gin.EnvGinMode) == "" && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
