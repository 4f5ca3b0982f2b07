// Package app wires all Auricle subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the event
// bus, session orchestrator, answer dispatcher, history recorder, metrics
// recorder, and viewer server; Run executes everything under one errgroup and
// tears it down when the context is cancelled.
//
// For testing, inject doubles via functional options (WithBus,
// WithHistoryStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/health"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/session"
	"github.com/auricle-ai/auricle/internal/viewer"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/embeddings"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// httpShutdownTimeout bounds the graceful HTTP server drain on exit.
const httpShutdownTimeout = 10 * time.Second

// Providers holds one interface value per provider slot, populated by
// cmd/auricle via the config registry. Source, Transcriber, and Answerer are
// required; the rest are optional.
type Providers struct {
	Source      audio.Source
	Transcriber stt.Transcriber
	Answerer    llm.Provider
	Embeddings  embeddings.Provider
	History     history.Store
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	bus     *bus.Bus
	disp    *answer.Dispatcher
	orch    *session.Orchestrator
	server  *viewer.Server
	metrics *observe.Metrics

	store    history.Store
	embedder embeddings.Provider

	metricsSub *bus.Subscription
	historySub *bus.Subscription

	logLevel *slog.LevelVar
	log      *slog.Logger
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBus injects an event bus instead of creating one.
func WithBus(b *bus.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithHistoryStore injects a history store instead of the one in Providers.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a Metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level var backing the process logger so
// config reloads can retune verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithLogger injects a logger instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New wires the application. ctx bounds sessions started through the viewer
// control surface.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if providers.Source == nil || providers.Transcriber == nil || providers.Answerer == nil {
		return nil, fmt.Errorf("app: source, transcriber, and answerer providers are required")
	}

	a := &App{
		cfg:      cfg,
		store:    providers.History,
		embedder: providers.Embeddings,
	}
	for _, o := range opts {
		o(a)
	}
	if a.bus == nil {
		a.bus = bus.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	a.disp = answer.NewDispatcher(providers.Answerer, a.bus,
		answer.WithTuning(cfg.Answerer.Temperature, cfg.Answerer.MaxTokens))

	orch, err := session.New(session.Options{
		Source:           providers.Source,
		Transcriber:      providers.Transcriber,
		Dispatcher:       a.disp,
		Bus:              a.bus,
		Logger:           a.log,
		Audio:            cfg.Audio,
		VAD:              cfg.VAD,
		Question:         cfg.Question,
		Workers:          cfg.Transcriber.Workers,
		QueueSize:        cfg.Transcriber.QueueSize,
		InterviewType:    cfg.Session.InterviewType,
		ContextExchanges: cfg.History.ContextExchanges,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build orchestrator: %w", err)
	}
	a.orch = orch

	// Subscribe before Run so no event published in between is missed.
	a.metricsSub = a.bus.Subscribe(256)
	if a.store != nil {
		a.historySub = a.bus.Subscribe(256)
	}

	if cfg.Server.ListenAddr != "" {
		srv, err := viewer.New(viewer.Options{
			Controller: orch,
			Bus:        a.bus,
			History:    a.store,
			Embedder:   a.embedder,
			Health:     health.New(health.Info{Service: "auricle"}, a.healthCheckers()...),
			Metrics:    a.metrics,
			Logger:     a.log,
			RunCtx:     ctx,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build viewer: %w", err)
		}
		a.server = srv
	}

	return a, nil
}

// Orchestrator exposes the session orchestrator for direct control (tests,
// embedding in other programs).
func (a *App) Orchestrator() *session.Orchestrator {
	return a.orch
}

// Bus exposes the event bus.
func (a *App) Bus() *bus.Bus {
	return a.bus
}

func (a *App) healthCheckers() []health.Checker {
	var checks []health.Checker
	if a.store != nil {
		store := a.store
		checks = append(checks, health.Checker{
			Name: "history",
			Check: func(ctx context.Context) error {
				_, err := store.Recent(ctx, "", 1)
				return err
			},
		})
	}
	return checks
}

// Run starts the recorders and the viewer server, then blocks until ctx is
// cancelled. On cancellation the running session is stopped, the HTTP server
// drained, and the bus closed so every subscriber unwinds.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		observe.NewRecorder(a.metrics).Run(gctx, a.metricsSub)
		return nil
	})

	if a.historySub != nil {
		g.Go(func() error {
			a.recordExchanges(gctx, a.historySub)
			return nil
		})
	}

	var httpSrv *http.Server
	if a.server != nil {
		httpSrv = &http.Server{
			Addr:    a.cfg.Server.ListenAddr,
			Handler: a.server.Handler(),
		}
		g.Go(func() error {
			a.log.Info("viewer listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: viewer server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.orch.Stop()
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(sctx); err != nil {
				a.log.Warn("viewer shutdown", "error", err)
			}
		}
		a.bus.Close()
		return nil
	})

	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig applies the hot-reloadable differences between old and new to
// the running application. Non-reloadable changes (providers, audio device,
// history DSN) are logged and ignored until restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.VADChanged {
		a.orch.ApplyVAD(d.NewVAD)
		a.log.Info("vad tuning updated, applies to the next session")
	}
	if d.QuestionChanged {
		a.orch.ApplyQuestion(d.NewQuestion)
		a.log.Info("question detection tuning updated")
	}
	if d.AnswererTuningChanged {
		a.disp.SetTuning(d.NewAnswerer.Temperature, d.NewAnswerer.MaxTokens)
		a.log.Info("answerer tuning updated",
			"temperature", d.NewAnswerer.Temperature, "max_tokens", d.NewAnswerer.MaxTokens)
	}
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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
