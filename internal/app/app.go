// Package app wires configuration into the service's collaborators: the
// logger, record store, fingerprint source, notifier, and engine.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/simmonsip/trawler/internal/config"
	"github.com/simmonsip/trawler/internal/logging"
	"github.com/simmonsip/trawler/internal/match"
	"github.com/simmonsip/trawler/internal/notify"
	notifypubsub "github.com/simmonsip/trawler/internal/notify/pubsub"
	"github.com/simmonsip/trawler/internal/store"
	storefile "github.com/simmonsip/trawler/internal/store/file"
	storegcs "github.com/simmonsip/trawler/internal/store/gcs"
	storememory "github.com/simmonsip/trawler/internal/store/memory"
	storepostgres "github.com/simmonsip/trawler/internal/store/postgres"
	"github.com/simmonsip/trawler/internal/trawl"
)

// App holds the constructed service graph.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Records  store.Records
	Images   trawl.ImageSource
	Engine   *trawl.Engine
	Notifier notify.Publisher
	Registry *prometheus.Registry

	closers []func()
}

// New builds the full service graph from configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.buildRecords(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildImages(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildNotifier(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := trawl.NewMetrics(a.Registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engineCfg := trawl.EngineConfig{
		Competitors:    a.Records,
		Keywords:       a.Records,
		Images:         a.Images,
		Match: match.Options{
			MaxGapWords: cfg.Match.MaxGapWords,
			Synonyms:    cfg.Match.Synonyms,
		},
		UserAgent:      cfg.Trawl.UserAgent,
		DomainQPS:      cfg.Trawl.DomainQPS,
		MaxRetries:     cfg.Trawl.MaxRetries,
		InitialBackoff: cfg.InitialBackoff(),
		Metrics:        metrics,
		Logger:         logger,
	}
	if !cfg.Render.Enabled {
		engineCfg.NewRenderer = func(trawl.RenderConfig, *zap.Logger) (trawl.Renderer, error) {
			return nil, trawl.ErrRendererDisabled
		}
	}
	a.Engine = trawl.NewEngine(engineCfg)
	return a, nil
}

// Close tears down the service graph in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildRecords(ctx context.Context) error {
	switch a.Config.Store.Provider {
	case "file":
		records, err := storefile.New(storefile.Config{DataDir: a.Config.Store.DataDir})
		if err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
		a.Records = records
	case "memory":
		a.Records = storememory.New()
	case "postgres":
		records, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      a.Config.DB.DSN,
			MaxConns: int32(a.Config.DB.MaxOpenConns),
			MinConns: int32(a.Config.DB.MaxIdleConns),
		})
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.Records = records
		a.closers = append(a.closers, records.Close)
	default:
		return fmt.Errorf("unknown store provider %q", a.Config.Store.Provider)
	}
	return nil
}

// buildImages points the engine at the GCS fingerprint index when
// configured, otherwise fingerprints come from the record store.
func (a *App) buildImages(ctx context.Context) error {
	if a.Config.Images.GCSBucket == "" {
		a.Images = a.Records
		return nil
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn("close storage client", zap.Error(err))
		}
	})
	images, err := storegcs.New(client, storegcs.Config{
		Bucket: a.Config.Images.GCSBucket,
		Object: a.Config.Images.Object,
	})
	if err != nil {
		return fmt.Errorf("open fingerprint index: %w", err)
	}
	a.Images = images
	return nil
}

func (a *App) buildNotifier(ctx context.Context) error {
	if !a.Config.PubSub.Enabled {
		a.Notifier = notify.NoOp{}
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	a.Notifier = notifypubsub.New(client.Topic(a.Config.PubSub.TopicName))
	return nil
}
