// Command fastd-core runs the userspace fastd datapath daemon: it binds
// the configured UDP sockets, clones the configured peers, serves the
// control endpoint, and exports Prometheus metrics.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/digineo/fastd-core/internal/config"
	"github.com/digineo/fastd-core/internal/fastd"
	"github.com/digineo/fastd-core/internal/flog"
	"github.com/digineo/fastd-core/internal/metrics"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:           "fastd-core",
		Short:         "fastd-compatible tunneling datapath daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("fastd-core starting",
		slog.String("control_socket", cfg.Control.SocketPath),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	flogLevel := flog.ParseLevel(cfg.Log.Level)
	module := fastd.NewModule(flog.New(flogLevel, "fastd"), collector)
	defer module.Close()

	if err := bindAll(module, cfg.Binds); err != nil {
		logger.Error("failed to bind configured sockets", slog.String("error", err.Error()))
		return err
	}

	if err := cloneAll(module, cfg.Peers); err != nil {
		logger.Error("failed to configure declarative peers", slog.String("error", err.Error()))
		return err
	}

	ctl, err := fastd.ListenControl(cfg.Control.SocketPath, module, flog.New(flogLevel, "ctl"))
	if err != nil {
		logger.Error("failed to start control endpoint", slog.String("error", err.Error()))
		return err
	}
	defer ctl.Close()

	if err := runServers(cfg, ctl, reg, logger); err != nil {
		logger.Error("fastd-core exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("fastd-core stopped")
	return nil
}

// bindAll binds every configured listen address in order, failing fast on
// the first error.
func bindAll(module *fastd.Module, binds []string) error {
	for _, b := range binds {
		ep, err := parseHostPort(b)
		if err != nil {
			return fmt.Errorf("parse bind %q: %w", b, err)
		}
		if _, err := module.Bind(ep); err != nil {
			return fmt.Errorf("bind %q: %w", b, err)
		}
	}
	return nil
}

// cloneAll clones and configures every declarative peer from config.
func cloneAll(module *fastd.Module, peers []config.PeerConfig) error {
	for _, p := range peers {
		remote, err := parseHostPort(p.Remote)
		if err != nil {
			return fmt.Errorf("parse peer remote %q: %w", p.Remote, err)
		}

		var pubkey fastd.PubKey
		if p.PubKeyHex != "" {
			if err := decodeHexKey(&pubkey, p.PubKeyHex); err != nil {
				return fmt.Errorf("parse peer pubkey: %w", err)
			}
		}

		if _, err := module.CloneCreate(&fastd.CloneParams{Remote: remote, PubKey: pubkey}); err != nil {
			return fmt.Errorf("clone_create for %q: %w", p.Remote, err)
		}
	}
	return nil
}

func parseHostPort(hostport string) (fastd.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	return fastd.Endpoint{Addr: addr, Port: uint16(port)}, nil
}

func decodeHexKey(out *fastd.PubKey, hexStr string) error {
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}
	if len(decoded) != fastd.PubKeySize {
		return fmt.Errorf("pubkey must be %d bytes, got %d", fastd.PubKeySize, len(decoded))
	}
	copy(out[:], decoded)
	return nil
}

// runServers runs the metrics HTTP server and the control endpoint's
// Serve loop under an errgroup with signal-aware shutdown, mirroring the
// daemon's general server-supervision idiom.
func runServers(cfg *config.Config, ctl *fastd.ControlServer, reg *prometheus.Registry, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("control endpoint listening", slog.String("path", ctl.Addr()))
		if err := ctl.Serve(); err != nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
		}
		if err := ctl.Close(); err != nil {
			logger.Warn("control endpoint shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
