// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/demotape/internal/api"
	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/inbox"
	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/mcpserver"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/persist"
	"github.com/starford/demotape/internal/probe"
	"github.com/starford/demotape/internal/recorder"
	"github.com/starford/demotape/internal/restructure"
	"github.com/starford/demotape/internal/sse"
	"github.com/starford/demotape/internal/storage"
)

// core holds the components shared by the HTTP server and the MCP server.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	db       *index.DB
	store    *notestore.Store
	editor   *editor.Coordinator
	broker   *sse.Broker
	prober   *probe.FFProbe
	pipeline *restructure.Pipeline
	closers  []func()
}

func (c *core) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func setup(ctx context.Context, opts ...Option) (*core, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("ai_enabled", cfg.AI.Enabled()),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c := &core{cfg: cfg, logger: logger}

	provider, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if closer, ok := provider.(io.Closer); ok {
		c.closers = append(c.closers, func() { _ = closer.Close() })
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, func() { _ = db.Close() })

	c.broker = sse.NewBroker(2 * time.Second)
	c.closers = append(c.closers, c.broker.Close)

	c.store = notestore.New(history.New(cfg.Editor.HistoryLimit),
		notestore.WithPersister(persist.NewWriter(provider)),
		notestore.WithLogger(logger),
		notestore.WithListener(c.broker.NoteListener()),
		notestore.WithListener(index.Listener(db, logger)),
	)
	if err := c.store.Load(ctx); err != nil {
		c.close()
		return nil, fmt.Errorf("load notes: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, c.store.ListByRecency(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	c.editor = editor.New(c.store,
		editor.WithDebounce(cfg.Editor.SnapshotDebounce),
		editor.WithLogger(logger),
	)
	c.closers = append(c.closers, c.editor.Close)

	if cfg.Recording.FFProbePath != "" {
		c.prober = probe.New(cfg.Recording.FFProbePath)
	}

	if cfg.AI.Enabled() {
		client := restructure.NewClient(restructure.ClientConfig{
			BaseURL:            cfg.AI.BaseURL,
			APIKey:             cfg.AI.APIKey,
			TranscriptionModel: cfg.AI.TranscriptionModel,
			StructuringModel:   cfg.AI.StructuringModel,
		}, nil)
		c.pipeline = restructure.NewPipeline(client, client, cfg.AI.Timeout, logger)
	}

	return c, nil
}

func openStorage(cfg StorageConfig) (storage.Provider, error) {
	switch cfg.Driver {
	case StorageDriverRedis:
		return storage.NewRedis(cfg.RedisURL, cfg.KeyPrefix)
	default:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		return storage.NewFS(cfg.Path)
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(ctx, opts...)
	if err != nil {
		return err
	}
	defer c.close()

	cfg := c.cfg
	logger := c.logger

	mic := recorder.NewPushMicrophone(cfg.Recording.AllowMicrophone)
	sessionOpts := []recorder.Option{
		recorder.WithMinCaptureBytes(cfg.Recording.MinCaptureBytes),
		recorder.WithProbeTimeout(cfg.AI.Timeout),
		recorder.WithLogger(logger),
		recorder.WithObserver(func(tr recorder.Transition) {
			c.broker.PublishSession(tr)
		}),
	}
	deps := api.Deps{
		Editor: c.editor,
		Index:  c.db,
		Mic:    mic,
		Events: c.broker,
		Logger: logger,
	}
	if c.prober != nil {
		sessionOpts = append(sessionOpts, recorder.WithProber(c.prober))
		deps.Prober = c.prober
	}
	if c.pipeline != nil {
		sessionOpts = append(sessionOpts, recorder.WithProcessor(c.pipeline))
		deps.AI = c.pipeline
	}
	deps.Session = recorder.NewSession(mic, c.editor, sessionOpts...)

	apiRouter := api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the memo inbox.
	if cfg.Inbox.Enabled {
		if c.pipeline == nil {
			logger.Warn("inbox: disabled, no ai api key configured")
		} else {
			inboxOpts := []inbox.Option{
				inbox.WithSettle(cfg.Inbox.Settle),
				inbox.WithPatterns(cfg.Inbox.Patterns...),
				inbox.WithLogger(logger),
				inbox.WithImportFunc(func(n models.Note, file string) {
					logger.Info("inbox: note created", slog.String("id", n.ID), slog.String("file", file))
				}),
			}
			if c.prober != nil {
				inboxOpts = append(inboxOpts, inbox.WithProber(c.prober))
			}
			w, err := inbox.New(cfg.Inbox.Path, c.editor, c.pipeline, inboxOpts...)
			if err != nil {
				return fmt.Errorf("init inbox: %w", err)
			}
			g.Go(func() error {
				return w.Run(gCtx)
			})
		}
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		deps.Session.Cancel()
		if err := c.store.Save(context.WithoutCancel(gCtx)); err != nil {
			logger.Error("notestore: final save failed", slog.String("error", err.Error()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout against the same store and
// index the HTTP server uses. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	c, err := setup(ctx, opts...)
	if err != nil {
		return err
	}
	defer c.close()

	var prober recorder.DurationProber
	if c.prober != nil {
		prober = c.prober
	}
	c.logger.Info("mcp: serving on stdio")
	return mcpserver.New(c.editor, c.db, prober).ServeStdio()
}
