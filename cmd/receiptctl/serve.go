package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/danmuck/receiptctl/internal/config"
	"github.com/danmuck/receiptctl/internal/logging"
	"github.com/danmuck/receiptctl/internal/service"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configPath      string
	listenerPort    int
	printerHostname string
	printerPort     int
	noPrinter       bool
	httpAddr        string
	verbose         int
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Capture print jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}

			logCfg := logging.DefaultConfig(logging.ProfileRuntime)
			logCfg.Level = cfg.Log.Level
			logCfg.JSON = cfg.Log.JSON
			logging.ApplyEnv(&logCfg)
			logCfg.Level = logging.Verbosity(logCfg.Level, flags.verbose)
			logging.Apply(logCfg)

			svc, err := service.New(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "path to a receiptctl TOML config")
	f.IntVar(&flags.listenerPort, "listener-port", 0, "port to accept print jobs on")
	f.StringVar(&flags.printerHostname, "printer-hostname", "", "hostname of the physical printer")
	f.IntVar(&flags.printerPort, "printer-port", 0, "port of the physical printer")
	f.BoolVar(&flags.noPrinter, "no-printer", false, "decode jobs without forwarding them")
	f.StringVar(&flags.httpAddr, "http-addr", "", "address of the report API, empty string disables it")
	f.CountVarP(&flags.verbose, "verbose", "v", "raise log verbosity (repeatable)")
	return cmd
}

// resolveConfig layers defaults, the config file and explicit flags.
func resolveConfig(cmd *cobra.Command, flags serveFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	var err error
	if changed("listener-port") {
		if cfg.Listener.Addr, err = withPort(cfg.Listener.Addr, flags.listenerPort); err != nil {
			return config.Config{}, fmt.Errorf("--listener-port: %w", err)
		}
	}
	if changed("printer-hostname") {
		if cfg.Printer.Addr, err = withHost(cfg.Printer.Addr, flags.printerHostname); err != nil {
			return config.Config{}, fmt.Errorf("--printer-hostname: %w", err)
		}
	}
	if changed("printer-port") {
		if cfg.Printer.Addr, err = withPort(cfg.Printer.Addr, flags.printerPort); err != nil {
			return config.Config{}, fmt.Errorf("--printer-port: %w", err)
		}
	}
	if flags.noPrinter {
		cfg.Printer.Enabled = false
	}
	if changed("http-addr") {
		cfg.HTTP.Addr = strings.TrimSpace(flags.httpAddr)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func withPort(addr string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("port %d out of range", port)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func withHost(addr, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("hostname required")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("current address %q has no port: %w", addr, err)
	}
	return net.JoinHostPort(host, port), nil
}

