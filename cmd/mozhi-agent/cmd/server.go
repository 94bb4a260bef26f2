package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/mozhi/agent/audit"
	"github.com/mozhi/agent/bridge"
	"github.com/mozhi/agent/config"
	"github.com/mozhi/agent/confirm"
	"github.com/mozhi/agent/ingress"
	"github.com/mozhi/agent/inject"
	"github.com/mozhi/agent/pairing"
	"github.com/mozhi/agent/risk"
	"github.com/mozhi/agent/stt"
)

var (
	configPath string
	bindPort   int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the voice bridge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if bindPort != 0 {
			cfg.Server.BindPort = bindPort
		}

		logger := newLogger(cfg.LogLevel)

		if err := os.MkdirAll(filepath.Dir(cfg.AuditDBPath), 0o700); err != nil {
			return fmt.Errorf("creating audit directory: %w", err)
		}
		sink, err := audit.NewBoltSinkFromFile(cfg.AuditDBPath, nil)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer sink.Close()

		pm, err := pairing.NewManager(cfg.TokenTTL())
		if err != nil {
			return fmt.Errorf("creating pairing manager: %w", err)
		}

		injector, err := inject.New(cfg.Injection.TargetApp)
		if err != nil {
			return fmt.Errorf("selecting injector: %w", err)
		}

		apiKey := cfg.STT.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		transcriber := stt.NewOpenAI(apiKey,
			stt.WithModel(cfg.STT.Model),
			stt.WithLanguage(cfg.STT.Language),
			stt.WithBaseURL(cfg.STT.BaseURL),
		)

		keywords := cfg.Risk.Keywords
		if len(keywords) == 0 {
			keywords = risk.DefaultKeywords
		}
		filter := risk.NewFilter(keywords, cfg.Risk.RequireConfirmation)
		confirmer := &confirm.Terminal{
			In:      os.Stdin,
			Out:     os.Stderr,
			Timeout: cfg.ConfirmTimeout(),
		}

		pipeline := bridge.NewPipeline(transcriber, filter, confirmer, injector, sink,
			bridge.WithLogger(logger),
			bridge.WithAutoSend(cfg.Injection.AutoSend),
			bridge.WithMaxWorkers(cfg.STT.MaxWorkers),
		)
		registry := bridge.NewRegistry(pipeline, 0)

		srv := ingress.NewServer(pm, registry, ingress.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Mount("/", srv.Router())

		// Websocket connections are long-lived, so only the handshake gets a
		// read deadline here.
		server := &http.Server{
			Addr:              cfg.BindAddr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			done <- server.ListenAndServe()
		}()

		stopSweep := make(chan struct{})
		if interval := cfg.Server.SweepIntervalSeconds; interval > 0 {
			go runSweeper(pm, logger, time.Duration(interval)*time.Second, stopSweep)
		}
		defer close(stopSweep)

		printBanner()
		logger.Info("server started", "addr", cfg.BindAddr())

		if cfg.ShowPairCode {
			payload := pairing.NewCodePayload(pm, cfg.WSURL())
			if err := payload.RenderQR(os.Stdout); err != nil {
				logger.Warn("pairing code render failed", "error", err)
			}
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFile(configPath)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN", "WARNING":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func runSweeper(pm *pairing.Manager, logger *slog.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := pm.Sweep(); removed > 0 {
				logger.Info("expired sessions swept", "count", removed)
			}
		case <-stop:
			return
		}
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	serverCmd.Flags().IntVarP(&bindPort, "port", "p", 0, "Override the configured listen port")
}
