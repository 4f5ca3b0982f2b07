// Command auricle is the main entry point for the Auricle interview copilot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/auricle-ai/auricle/internal/app"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/resilience"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/audio/pulse"
	"github.com/auricle-ai/auricle/pkg/history/postgres"
	"github.com/auricle-ai/auricle/pkg/provider/embeddings"
	ollamaembed "github.com/auricle-ai/auricle/pkg/provider/embeddings/ollama"
	oaembed "github.com/auricle-ai/auricle/pkg/provider/embeddings/openai"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/llm/anyllm"
	oallm "github.com/auricle-ai/auricle/pkg/provider/llm/openai"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
	"github.com/auricle-ai/auricle/pkg/provider/stt/whisper"
)

// version is stamped at build time via -ldflags "-X main.version=...".
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
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can retune verbosity
	// without rebuilding the handler.
	logLevel := &slog.LevelVar{}
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "auricle",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, closeProviders, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogLevel(logLevel),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("pulse", func(config.AudioConfig) (audio.Source, error) {
		return pulse.New(), nil
	})

	// ── Transcriber ───────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.TranscriberConfig) (stt.Transcriber, error) {
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(entry.ModelPath, opts...)
	})

	reg.RegisterTranscriber("whisper-server", func(entry config.TranscriberConfig) (stt.Transcriber, error) {
		var opts []whisper.ServerOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithServerLanguage(entry.Language))
		}
		return whisper.NewServer(entry.ServerURL, opts...)
	})

	// ── Answerer ──────────────────────────────────────────────────────────────
	// anthropic, openai, and gemini share the same pattern: optional APIKey +
	// optional BaseURL through any-llm.
	for _, providerName := range []string{"anthropic", "openai", "gemini"} {
		reg.RegisterAnswerer(providerName, func(entry config.AnswererConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnswerer("ollama", func(entry config.AnswererConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai-sdk talks to OpenAI through the official SDK instead of any-llm.
	reg.RegisterAnswerer("openai-sdk", func(entry config.AnswererConfig) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.EmbeddingsConfig) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.EmbeddingsConfig) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates everything named in cfg and returns it as an
// [app.Providers] plus a cleanup function for providers that hold resources.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (app.Providers, func(), error) {
	var ps app.Providers
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	src, err := reg.CreateAudio("pulse", cfg.Audio)
	if err != nil {
		return ps, closeAll, fmt.Errorf("create audio source: %w", err)
	}
	ps.Source = src
	slog.Info("provider created", "kind", "audio", "name", "pulse", "device", cfg.Audio.Device)

	tr, err := reg.CreateTranscriber(cfg.Transcriber)
	if err != nil {
		return ps, closeAll, fmt.Errorf("create transcriber %q: %w", cfg.Transcriber.Provider, err)
	}
	ps.Transcriber = tr
	if c, ok := tr.(interface{ Close() error }); ok {
		closers = append(closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("transcriber close error", "err", err)
			}
		})
	}
	slog.Info("provider created", "kind", "transcriber", "name", cfg.Transcriber.Provider)

	// With the in-process engine configured and a server URL also present, the
	// server becomes a failover target behind a circuit breaker.
	if cfg.Transcriber.Provider == "whisper" && cfg.Transcriber.ServerURL != "" {
		serverCfg := cfg.Transcriber
		serverCfg.Provider = "whisper-server"
		srvTr, err := reg.CreateTranscriber(serverCfg)
		if err != nil {
			return ps, closeAll, fmt.Errorf("create fallback transcriber: %w", err)
		}
		fb := resilience.NewTranscriberFallback(ps.Transcriber, "whisper", resilience.FallbackConfig{})
		fb.AddFallback("whisper-server", srvTr)
		ps.Transcriber = fb
		slog.Info("transcriber failover enabled", "fallback", "whisper-server")
	}

	answerer, err := reg.CreateAnswerer(cfg.Answerer)
	if err != nil {
		return ps, closeAll, fmt.Errorf("create answerer %q: %w", cfg.Answerer.Provider, err)
	}
	ps.Answerer = answerer
	slog.Info("provider created", "kind", "answerer", "name", cfg.Answerer.Provider, "model", cfg.Answerer.Model)

	if name := cfg.Answerer.FallbackProvider; name != "" {
		// No APIKey passthrough: a different backend needs its own key, which
		// each provider resolves from its environment variable.
		fbCfg := config.AnswererConfig{
			Provider: name,
			Model:    cfg.Answerer.FallbackModel,
			BaseURL:  cfg.Answerer.FallbackBaseURL,
		}
		fbAnswerer, err := reg.CreateAnswerer(fbCfg)
		if err != nil {
			return ps, closeAll, fmt.Errorf("create fallback answerer %q: %w", name, err)
		}
		fb := resilience.NewLLMFallback(ps.Answerer, cfg.Answerer.Provider, resilience.FallbackConfig{})
		fb.AddFallback(name, fbAnswerer)
		ps.Answerer = fb
		slog.Info("answerer failover enabled", "fallback", name, "model", cfg.Answerer.FallbackModel)
	}

	if name := cfg.History.Embeddings.Provider; name != "" {
		emb, err := reg.CreateEmbeddings(cfg.History.Embeddings)
		if err != nil {
			return ps, closeAll, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = emb
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.History.Embeddings.Model)
	}

	if cfg.History.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.History.PostgresDSN, cfg.History.EmbeddingDimensions)
		if err != nil {
			return ps, closeAll, fmt.Errorf("open history store: %w", err)
		}
		ps.History = store
		closers = append(closers, store.Close)
		slog.Info("history store connected", "embedding_dimensions", cfg.History.EmbeddingDimensions)
	}

	return ps, closeAll, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═════════════════════════════════════════╗")
	fmt.Println("║        Auricle — startup summary        ║")
	fmt.Println("╠═════════════════════════════════════════╣")
	printRow("Audio", valueOr(cfg.Audio.Device, "default source"))
	printRow("Transcriber", cfg.Transcriber.Provider)
	printRow("Answerer", cfg.Answerer.Provider+" / "+cfg.Answerer.Model)
	printRow("Embeddings", valueOr(cfg.History.Embeddings.Provider, "(disabled)"))
	printRow("History", historySummary(cfg))
	printRow("Interview", string(cfg.Session.InterviewType))
	if cfg.Server.ListenAddr != "" {
		printRow("Viewer", cfg.Server.ListenAddr)
	} else {
		printRow("Viewer", "(disabled)")
	}
	fmt.Println("╚═════════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len([]rune(value)) > 23 {
		value = string([]rune(value)[:20]) + "…"
	}
	fmt.Printf("║  %-12s : %-23s ║\n", kind, value)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func historySummary(cfg *config.Config) string {
	if cfg.History.PostgresDSN == "" {
		return "(disabled)"
	}
	return "postgres"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
