package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rouilleftpd/rouilleftpd/internal/config"
	"github.com/rouilleftpd/rouilleftpd/internal/ftpserver"
	"github.com/rouilleftpd/rouilleftpd/internal/logging"
	"github.com/rouilleftpd/rouilleftpd/internal/metrics"
	"github.com/rouilleftpd/rouilleftpd/internal/quota"
	"github.com/rouilleftpd/rouilleftpd/internal/telemetry"
	"github.com/rouilleftpd/rouilleftpd/server"
)

const defaultConfigPath = "/etc/rouilleftpd.conf"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the TOML configuration file")
	verbose := flag.Bool("v", false, "log at debug level")
	quiet := flag.Bool("q", false, "log warnings and errors only")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := "info"
	switch {
	case *verbose:
		level = "debug"
	case *quiet:
		level = "warn"
	}
	logger := logging.NewLogger(level)

	// The session base is chroot_dir + min_homedir: the virtual "/" every
	// client sees.
	basePath := filepath.Join(cfg.Server.ChrootDir, cfg.Server.MinHomedir)
	userDir := filepath.Join(cfg.Server.ChrootDir, "ftp-data", "users")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating user directory: %v\n", err)
		os.Exit(1)
	}

	passwds, err := ftpserver.LoadPasswdStore(cfg.Server.PasswdFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading passwd file: %v\n", err)
		os.Exit(1)
	}

	settings := &server.Settings{}
	// 0.0.0.0 means "no fixed advertised address": fall back to the
	// control connection's local address per session.
	if cfg.Server.PasvAddress != "" && cfg.Server.PasvAddress != "0.0.0.0" {
		settings.PublicHost = cfg.Server.PasvAddress
	}
	driver, err := server.NewVFSDriver(basePath, userDir, passwds, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating driver: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Quota/ratio cache with its write-back flusher.
	var quotaMgr *quota.Manager
	if cfg.Quota.EnableQuota || cfg.Quota.EnableRatio {
		quotaMgr, err = quota.NewManager(quota.Config{
			QuotaFile:       cfg.Quota.QuotaStorageFile,
			RatioFile:       cfg.Quota.RatioStorageFile,
			StatsFile:       cfg.Quota.StatsStorageFile,
			DefaultMaxBytes: cfg.Quota.DefaultQuota,
			DefaultRatio:    cfg.Quota.DefaultRatio,
			EnforceQuota:    cfg.Quota.EnableQuota,
			EnforceRatio:    cfg.Quota.EnableRatio,
			FlushInterval:   config.QuotaFlushInterval,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading quota state: %v\n", err)
			os.Exit(1)
		}
		go quotaMgr.Run(ctx)
		logger.Info("quota tracking enabled",
			"quota", cfg.Quota.EnableQuota,
			"ratio", cfg.Quota.EnableRatio,
			"default_quota", cfg.Quota.DefaultQuota,
			"default_ratio", cfg.Quota.DefaultRatio,
		)
	}

	// Telemetry scoreboard plus its in-process diagnostic watcher.
	ring := telemetry.NewRing(cfg.Server.IPCKey)
	watcher := telemetry.NewWatcher(ring, logger, 10*time.Second)
	go watcher.Run(ctx)

	// Metrics collector and scrape endpoint.
	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading TLS certificate: %v\n", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		logger.Info("TLS configured", "cert", cfg.TLS.CertFile)
	}

	banner := "rouilleftpd ready.\nUploads and downloads are subject to quota and ratio policy."

	options := []server.Option{
		server.WithDriver(driver),
		server.WithLogger(logger),
		server.WithWelcomeMessage(banner),
		server.WithTelemetryRing(ring),
		server.WithTransferBuffers(cfg.Server.UploadBufferSize, cfg.Server.DownloadBufferSize),
		server.WithDisableCommands(server.ExtendedCommands...),
	}
	if quotaMgr != nil {
		options = append(options, server.WithQuotaManager(quotaMgr))
	}
	if tlsConfig != nil {
		options = append(options, server.WithTLS(tlsConfig))
	}
	if cfg.Metrics.Enabled {
		options = append(options, server.WithMetricsCollector(metrics.NewFTPAdapter(collector)))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.ListenPort)
	srv, err := server.NewServer(addr, options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating server: %v\n", err)
		os.Exit(1)
	}

	// Implicit FTPS runs as a sibling server on its own port, sharing the
	// driver, quota cache, and telemetry ring.
	var implicitSrv *server.Server
	if cfg.TLS.Enabled && cfg.TLS.ImplicitTLS {
		implicitAddr := fmt.Sprintf(":%d", cfg.TLS.ImplicitTLSPort)
		implicitSrv, err = server.NewServer(implicitAddr, options...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating implicit TLS server: %v\n", err)
			os.Exit(1)
		}
		go func() {
			ln, err := tls.Listen("tcp", implicitAddr, tlsConfig)
			if err != nil {
				logger.Error("implicit TLS listen error", "error", err)
				return
			}
			logger.Info("implicit TLS server listening", "addr", implicitAddr)
			if err := implicitSrv.Serve(ln); err != nil && err != server.ErrServerClosed {
				logger.Error("implicit TLS server error", "error", err)
			}
		}()
	}

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if implicitSrv != nil {
			_ = implicitSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("starting rouilleftpd",
		"addr", addr,
		"chroot", cfg.Server.ChrootDir,
		"homedir", cfg.Server.MinHomedir,
		"ipc_key", cfg.Server.IPCKey,
	)

	if err := srv.ListenAndServe(); err != nil && err != server.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	// Final flush so quota state committed after the last ticker fire is
	// not lost.
	if quotaMgr != nil {
		if err := quotaMgr.Flush(); err != nil {
			logger.Error("final quota flush failed", "error", err)
		}
	}

	logger.Info("rouilleftpd stopped")
}
