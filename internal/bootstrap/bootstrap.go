// Package bootstrap provides dependency initialization for the keyframe
// extraction API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/framekit/keyframes-api/internal/config"
	"github.com/framekit/keyframes-api/internal/job"
	"github.com/framekit/keyframes-api/internal/media"
	"github.com/framekit/keyframes-api/internal/storage"
	"github.com/framekit/keyframes-api/internal/video"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	// ExtractService runs the extraction pipeline and serves frame lookups.
	ExtractService *job.Service
	// Staging is where uploads land and where the sweeper cleans up.
	Staging storage.Staging
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	artifacts, staging, svcOpts, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	acquirer := video.NewHTTPAcquirer(staging, video.WithTimeout(cfg.DownloadTimeout))
	extractor := media.NewFFmpegExtractor(cfg.FFmpegPath, media.WithTimeout(cfg.ExtractTimeout))

	svc := job.NewService(acquirer, extractor, artifacts, logger, svcOpts...)

	return &Dependencies{
		ExtractService: svc,
		Staging:        staging,
	}, nil
}

// initStorage creates the storage backend based on configuration. With S3
// configured, frames are mirrored to the bucket on top of the local copies
// that back the /frames routes.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.ArtifactStore, storage.Staging, []job.ServiceOption, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(cfg.StagingDir, cfg.OutputDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 frame mirroring configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, s3Store, []job.ServiceOption{job.WithMirror(s3Store)}, nil
	}

	localStore, err := storage.NewLocalStore(cfg.StagingDir, cfg.OutputDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("staging_dir", cfg.StagingDir),
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, localStore, nil, nil
}
