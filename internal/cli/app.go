package cli

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pocccco-max/nexusv2/internal/config"
	"github.com/pocccco-max/nexusv2/internal/logger"
	"github.com/pocccco-max/nexusv2/internal/observability"
	"github.com/pocccco-max/nexusv2/internal/tracing"
	"github.com/pocccco-max/nexusv2/pkg/chat"
	"github.com/pocccco-max/nexusv2/pkg/groq"
	"github.com/pocccco-max/nexusv2/pkg/keypool"
	"github.com/pocccco-max/nexusv2/pkg/kvstore"
	"github.com/pocccco-max/nexusv2/pkg/pipeline"
)

// app wires the store, pool, chat manager, provider client, and pipeline
// for a command invocation.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logHandle *logger.Logger
	store     *kvstore.SQLiteStore
	keys      *keypool.Pool
	chats     *chat.Manager
	client    *groq.Client
	pipe      *pipeline.Pipeline
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	appLogger, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	if err := tracing.InitOpenTelemetry("nexus", version); err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}

	addr := metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, observability.MetricsHandler()); err != nil {
				log.Warn().Err(err).Msg("Metrics endpoint stopped")
			}
		}()
	}

	zl := appLogger.GetZerolog()

	store, err := kvstore.OpenSQLite(cfg.DBPath())
	if err != nil {
		appLogger.Close()
		return nil, err
	}

	keys, err := keypool.New(ctx, store, zl)
	if err != nil {
		store.Close()
		appLogger.Close()
		return nil, err
	}

	chats, err := chat.NewManager(ctx, store, zl)
	if err != nil {
		store.Close()
		appLogger.Close()
		return nil, err
	}

	client := groq.NewClient(groq.Config{
		BaseURL: cfg.API.BaseURL,
		Logger:  zl,
	})

	pipe, err := pipeline.New(pipeline.Config{
		Keys:        keys,
		Chats:       chats,
		Client:      client,
		Logger:      zl,
		Model:       cfg.API.Model,
		VisionModel: cfg.API.VisionModel,
		Temperature: cfg.API.Temperature,
		MaxTokens:   cfg.API.MaxTokens,
	})
	if err != nil {
		store.Close()
		appLogger.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    zl,
		logHandle: appLogger,
		store:     store,
		keys:      keys,
		chats:     chats,
		client:    client,
		pipe:      pipe,
	}, nil
}

func (a *app) Close() {
	tracing.ShutdownOpenTelemetry(context.Background())
	a.store.Close()
	a.logHandle.Close()
}
