package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"path/filepath"

	"github.com/joho/godotenv"

	"media-ingest/internal/acquire"
	"media-ingest/internal/attach"
	"media-ingest/internal/config"
	"media-ingest/internal/fsio"
	"media-ingest/internal/httpapi"
	"media-ingest/internal/jobstore"
	"media-ingest/internal/pipeline"
	"media-ingest/internal/segment"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "path to an optional .env file")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)
	logger.Info("starting media-ingest", "version", config.Version, "store", cfg.StoreBackend)

	if err := fsio.Mkdir(cfg.DataDir); err != nil {
		return err
	}
	lock, err := fsio.AcquireDirLock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release data dir lock", "error", err)
		}
	}()

	var store jobstore.Store
	switch cfg.StoreBackend {
	case "redis":
		rs, err := jobstore.NewRedisStore(context.Background(), cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	default:
		fsStore, err := jobstore.NewFSStore(filepath.Join(cfg.DataDir, "jobs"))
		if err != nil {
			return err
		}
		store = fsStore
	}

	uploader, err := attach.New(attach.Options{
		Endpoint:  cfg.AttachEndpoint,
		AuthToken: cfg.AttachToken,
		Retries:   cfg.UploadRetries,
		Backoff:   cfg.UploadBackoff,
	}, logger)
	if err != nil {
		return err
	}

	segmenter := segment.New(segment.Options{
		FFmpegPath:     cfg.FFmpegPath,
		FFprobePath:    cfg.FFprobePath,
		SegmentSeconds: cfg.SegmentSeconds,
		VideoCodec:     cfg.VideoCodec,
		AudioCodec:     cfg.AudioCodec,
	}, logger)

	transcodeQ, err := pipeline.NewTranscodeQueue(pipeline.TranscodeConfig{
		WorkDir:       filepath.Join(cfg.DataDir, "work"),
		MaxBatchBytes: cfg.MaxBatchBytes,
		MaxBatchCount: cfg.MaxBatchCount,
	}, store, segmenter, uploader, logger)
	if err != nil {
		return err
	}
	defer transcodeQ.Close()

	var acquireAPI httpapi.Queue
	if cfg.TorrentEnabled {
		acquirer := acquire.New(acquire.Options{
			PollInterval: cfg.AcquirePoll,
			ListenPort:   cfg.TorrentPort,
		}, logger)
		acquireQ, err := pipeline.NewAcquisitionQueue(pipeline.AcquisitionConfig{
			DownloadDir: filepath.Join(cfg.DataDir, "downloads"),
		}, store, acquirer, transcodeQ.Enqueue, logger)
		if err != nil {
			return err
		}
		defer acquireQ.Close()
		acquireAPI = acquireQ
	} else {
		logger.Info("torrent intake disabled")
	}

	return httpapi.New(cfg.HTTPAddr, transcodeQ, acquireAPI, logger).Run()
}
