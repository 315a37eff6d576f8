// Command hark is the main entry point for the Hark voice front end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openhark/hark/internal/app"
	"github.com/openhark/hark/internal/config"
	"github.com/openhark/hark/internal/observe"
	"github.com/openhark/hark/pkg/stt"
	"github.com/openhark/hark/pkg/stt/deepgram"
	"github.com/openhark/hark/pkg/stt/openai"
	"github.com/openhark/hark/pkg/stt/whisper"
	"github.com/openhark/hark/pkg/stt/whisperserver"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hark: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hark starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hark",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engine registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	engines, closeEngines, err := buildEngines(cfg, reg)
	if err != nil {
		slog.Error("failed to build engines", "err", err)
		return 1
	}
	defer closeEngines()

	// ── Metrics endpoint ──────────────────────────────────────────────────────
	var httpSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		httpSrv = newHTTPServer(cfg.Server.ListenAddr)
		go func() {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, engines)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, updated *config.Config) {
		application.ApplyConfig(updated)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires all built-in engine factories into reg. Each
// factory receives the fallback slot name and a config.ProviderEntry and
// constructs the engine from the real adapter packages.
func registerBuiltinEngines(reg *config.Registry) {
	reg.Register("whisper", func(slot string, entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisper.Option
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(slot, entry.Model, opts...), nil
	})

	reg.Register("whisper-server", func(slot string, entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisperserver.Option
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisperserver.WithLanguage(lang))
		}
		return whisperserver.New(slot, entry.BaseURL, opts...), nil
	})

	reg.Register("deepgram", func(slot string, entry config.ProviderEntry) (stt.Engine, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(slot, entry.APIKey, opts...), nil
	})

	reg.Register("openai", func(slot string, entry config.ProviderEntry) (stt.Engine, error) {
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(slot, entry.APIKey, opts...), nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered engine", "name", name)
	}
}

// buildEngines instantiates the engine for each fallback slot using the
// registry. The returned closer releases engines that hold native resources.
func buildEngines(cfg *config.Config, reg *config.Registry) (*app.Engines, func(), error) {
	engines := &app.Engines{}
	var closers []io.Closer

	build := func(slot string, entry config.ProviderEntry, dst *stt.Engine) error {
		eng, err := reg.Create(slot, entry)
		if err != nil {
			return fmt.Errorf("create %s engine %q: %w", slot, entry.Name, err)
		}
		if eng == nil {
			return nil
		}
		*dst = eng
		if c, ok := eng.(io.Closer); ok {
			closers = append(closers, c)
		}
		slog.Info("engine created", "slot", slot, "name", entry.Name, "available", eng.Available())
		return nil
	}

	if err := build("fast", cfg.Engines.Fast, &engines.Fast); err != nil {
		return nil, nil, err
	}
	if err := build("accurate", cfg.Engines.Accurate, &engines.Accurate); err != nil {
		return nil, nil, err
	}
	if err := build("cloud", cfg.Engines.Cloud, &engines.Cloud); err != nil {
		return nil, nil, err
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("engine close error", "err", err)
			}
		}
	}
	return engines, closeAll, nil
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

// newHTTPServer serves the Prometheus metrics and a liveness endpoint.
func newHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Hark startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEngine("Fast", cfg.Engines.Fast.Name, cfg.Engines.Fast.Model)
	printEngine("Accurate", cfg.Engines.Accurate.Name, cfg.Engines.Accurate.Model)
	printEngine("Cloud", cfg.Engines.Cloud.Name, cfg.Engines.Cloud.Model)
	fmt.Printf("║  Wake phrases    : %-19d ║\n", len(cfg.Wake.Phrases))
	if cfg.Engines.Override != "" {
		fmt.Printf("║  Engine override : %-19s ║\n", cfg.Engines.Override)
	}
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "in-memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEngine(slot, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", slot, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
