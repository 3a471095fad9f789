// Package bootstrap provides dependency initialization for the marathon media API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/marathon-media/internal/activity"
	"github.com/maauso/marathon-media/internal/config"
	"github.com/maauso/marathon-media/internal/editor"
	"github.com/maauso/marathon-media/internal/media"
	"github.com/maauso/marathon-media/internal/palette"
	"github.com/maauso/marathon-media/internal/storage"
	"github.com/maauso/marathon-media/internal/trim"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Editor   *editor.Service
	Palettes *palette.Hydrator
	Activity *activity.MemoryLog

	sessionTTL   time.Duration
	reapInterval time.Duration
}

// Start launches background work that runs until ctx is done: the reaper
// that expires idle sessions.
func (d *Dependencies) Start(ctx context.Context) {
	go d.Editor.RunReaper(ctx, d.sessionTTL, d.reapInterval)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize media processor and trim engine
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	trimmer := trim.NewEngine(processor, logger,
		trim.WithMaxClip(cfg.MaxClipSec),
		trim.WithTimeout(cfg.TrimTimeout()),
	)

	activityLog := activity.NewMemoryLog(cfg.ActivityLogSize)

	// Initialize editor service
	svc := editor.NewService(
		editor.NewMemoryRepository(),
		store,
		processor,
		trimmer,
		editor.WithRecorder(activityLog),
		editor.WithLogger(logger),
		editor.WithMaxImagePixels(cfg.MaxImagePixels),
	)

	// Initialize palette extraction
	extractor := palette.NewExtractor(logger,
		palette.WithFetchTimeout(cfg.PaletteFetchTimeout()),
		palette.WithRateLimit(cfg.PaletteFetchRPS, cfg.PaletteConcurrency),
		palette.WithMaxImagePixels(cfg.MaxImagePixels),
	)

	return &Dependencies{
		Editor:   svc,
		Palettes: palette.NewHydrator(extractor, cfg.PaletteConcurrency),
		Activity: activityLog,

		sessionTTL:   cfg.SessionIdleTTL,
		reapInterval: cfg.SessionReapInterval,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	var opts []storage.LocalOption
	if cfg.PublishDir != "" {
		opts = append(opts, storage.WithPublishDir(cfg.PublishDir, cfg.PublicBaseURL))
	}
	localStore, err := storage.NewLocalStorage(cfg.TempDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("publish_dir", cfg.PublishDir),
	)
	return localStore, nil
}
