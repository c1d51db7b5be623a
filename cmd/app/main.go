// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chat-assistant/internal/config"
	"chat-assistant/internal/domain/ports/adapter"
	"chat-assistant/internal/domain/ports/repository"
	aiAdapters "chat-assistant/internal/infra/adapters/ai"
	pg "chat-assistant/internal/infra/db/postgres"
	"chat-assistant/internal/infra/db/sqlite"
	"chat-assistant/internal/infra/i18n"
	"chat-assistant/internal/infra/kv"
	"chat-assistant/internal/infra/logging"
	"chat-assistant/internal/infra/metrics"
	red "chat-assistant/internal/infra/redis"
	"chat-assistant/internal/infra/sched"
	"chat-assistant/internal/infra/security"
	"chat-assistant/internal/infra/web"
	"chat-assistant/internal/infra/worker"
	"chat-assistant/internal/usecase"
)

// stamped via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = ""
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI, no config file needed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("chat-assistant stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	// ---- Storage ----
	backing, backend, closeStore, err := openStore(ctx, g, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var store repository.KeyValueStore = kv.NewInstrumented(backing, backend, logger)
	if cfg.Security.EncryptionKey != "" {
		encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		store = kv.NewEncrypted(store, encSvc)
	}
	logger.Info().Str("driver", backend).Bool("encrypted", cfg.Security.EncryptionKey != "").Msg("storage ready")

	// ---- Completion client ----
	completion, err := newCompletionClient(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Sessions ----
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()
	pool := worker.NewPool(cfg.Worker.Workers, logger)
	pool.Start(poolCtx)

	registry := usecase.NewSessionRegistry(func(clientID string) repository.KeyValueStore {
		return kv.NewNamespaced(store, kv.ClientPrefix(clientID))
	}, completion, pool, opts, logger)

	// ---- HTTP ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Server.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	auth := web.NewClientAuth(cfg.Security.SessionSecret, cfg.Security.SecureCookie, cfg.Security.CookieTTL)
	site := web.NewServer(registry, auth, tr, web.Options{
		Language:       cfg.Server.Language,
		RequestTimeout: cfg.Server.ReadTimeout,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           site.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ---- Idle session reaper ----
	reaper := sched.NewSessionReaper(cfg.Chat.ReapInterval, cfg.Chat.SessionIdleTTL, registry, logger)
	g.Go(func() error {
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// ---- Graceful shutdown ----
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(sctx)

		// replies still in flight are dropped by their closed sessions
		registry.CloseAll()
		cancelPool()
		pool.Stop()
		logger.Info().Int64("websockets", site.Hub().Connections()).Msg("sessions closed")
		return err
	})

	return g.Wait()
}

// openStore connects the configured backend. The returned close func is never nil.
func openStore(ctx context.Context, g *errgroup.Group, cfg *config.Config) (repository.KeyValueStore, string, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		return kv.NewMemory(), "memory", func() {}, nil

	case "redis":
		client, err := red.NewClient(ctx, &cfg.Storage.Redis)
		if err != nil {
			return nil, "", nil, fmt.Errorf("redis: %w", err)
		}
		return red.NewKVStore(client, cfg.Storage.Redis.TTL), "redis", func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Storage.Postgres.URL)
		if err != nil {
			return nil, "", nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, "", nil, fmt.Errorf("postgres: %w", err)
		}
		g.Go(func() error {
			pg.ReportPoolStats(ctx, pool, 15*time.Second)
			return nil
		})
		return pg.NewKVStore(pool), "postgres", pool.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, "", nil, fmt.Errorf("sqlite: %w", err)
		}
		return db, "sqlite", func() { _ = db.Close() }, nil

	default:
		return nil, "", nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newCompletionClient(cfg *config.Config, logger *zerolog.Logger) (adapter.CompletionClient, error) {
	hc := &http.Client{}
	var inner adapter.CompletionClient
	switch cfg.AI.Transport {
	case "http":
		inner = aiAdapters.NewOpenAIAdapter(cfg.AI.BaseURL, hc)
	case "sdk":
		inner = aiAdapters.NewOpenAISDKAdapter(cfg.AI.BaseURL, hc)
	case "noop":
		inner = aiAdapters.NewNoopAIAdapter(300 * time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown ai transport %q", cfg.AI.Transport)
	}
	logger.Info().Str("transport", cfg.AI.Transport).Str("base_url", cfg.AI.BaseURL).Msg("AI adapter configured")

	var counter aiAdapters.TokenCounter = aiAdapters.NewTiktokenCounter()
	if cfg.AI.Transport == "noop" {
		// tiktoken fetches its BPE tables on first use; keep noop runs offline
		counter = nil
	}
	instrumented := aiAdapters.NewInstrumented(inner, counter, logger, cfg.Runtime.Dev)
	return aiAdapters.NewLimitedAI(instrumented, cfg.AI.ConcurrentLimit), nil
}

func sessionOptions(cfg *config.Config) (usecase.SessionOptions, error) {
	m, err := adapter.ParseModel(cfg.Chat.Model)
	if err != nil {
		return usecase.SessionOptions{}, fmt.Errorf("chat.model: %w", err)
	}
	strategy, err := usecase.ParseKeyStrategy(cfg.Chat.PersistKey)
	if err != nil {
		return usecase.SessionOptions{}, fmt.Errorf("chat.persist_key: %w", err)
	}
	opts := usecase.DefaultSessionOptions()
	opts.Model = m
	opts.Temperature = cfg.Chat.Temperature
	opts.ClearDraftOnSubmit = *cfg.Chat.ClearDraftOnSubmit
	opts.KeyStrategy = strategy
	opts.RequestTimeout = cfg.AI.RequestTimeout
	return opts, nil
}
