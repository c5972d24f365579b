// Command freqmoda is the on-demand audio transformation service's
// entrypoint: it assembles configuration, storage, cache, and pipeline
// components and serves the HTTP surface described in spec section 6.
//
// Grounded on the teacher's services/api/cmd/main.go wiring shape (config ->
// backends -> router -> serve-with-graceful-shutdown), trimmed to this
// service's components.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jonaylor89/freqmoda/internal/admission"
	"github.com/jonaylor89/freqmoda/internal/config"
	"github.com/jonaylor89/freqmoda/internal/dispatcher"
	"github.com/jonaylor89/freqmoda/internal/sourcefetch"
	"github.com/jonaylor89/freqmoda/pkg/cache"
	"github.com/jonaylor89/freqmoda/pkg/objstore"
	"github.com/jonaylor89/freqmoda/pkg/signer"
)

func main() {
	initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func initLogger() {
	level := slog.LevelInfo
	if err := (&level).UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storage, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage backend: %w", err)
	}
	slog.Info("storage ready", "kind", cfg.Storage.Kind)

	resultStore, err := newResultStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("result storage backend: %w", err)
	}

	coldTier, err := newColdTier(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache cold tier: %w", err)
	}
	resultCache, err := cache.New(coldTier, cfg.Cache.MaxEntries, cfg.Cache.MaxMemBytes)
	if err != nil {
		return fmt.Errorf("result cache: %w", err)
	}
	slog.Info("cache ready", "backend", cfg.Cache.Backend, "max_entries", cfg.Cache.MaxEntries)

	fetcher := sourcefetch.New(cfg.Processor.SourceFetchTimeout, storage)
	gate := admission.New(cfg.Processor.Concurrency, cfg.Processor.AdmissionQueueDepth)

	var sgn signer.Signer
	if cfg.Signer.Enabled {
		sgn = signer.New(cfg.Signer.Secret)
		slog.Info("signed url verification enabled")
	}

	svc := dispatcher.New(
		storage,
		resultStore,
		resultCache,
		fetcher,
		dispatcher.NativePipeline,
		gate,
		cfg.Cache.TTL,
		cfg.Processor.PipelineTimeout,
		cfg.CustomTags,
		sgn,
		slog.Default(),
	)

	r := chi.NewRouter()
	r.Group(svc.Routes)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // pipeline invocations can run long; no blanket write timeout
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func newStorage(ctx context.Context, cfg config.Storage) (objstore.Store, error) {
	switch cfg.Kind {
	case "s3":
		return objstore.NewS3(ctx, objstore.S3Config{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Bucket:     cfg.S3.Bucket,
			UseSSL:     cfg.S3.UseSSL,
			PathPrefix: cfg.PathPrefix,
		})
	case "gcs":
		return objstore.NewGCS(ctx, objstore.GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PathPrefix:      cfg.PathPrefix,
		})
	default:
		return objstore.NewLocalFS(cfg.BaseDir, cfg.PathPrefix)
	}
}

// newResultStore returns the backend rendered artifacts are persisted under.
// It uses the same backend kind and path prefix as source storage; results
// are addressed by their sharded fingerprint path, giving the persisted-state
// layout <base>/<prefix>/<xx>/<yy>/<fingerprint>.
func newResultStore(ctx context.Context, cfg config.Storage) (objstore.Store, error) {
	return newStorage(ctx, cfg)
}

func newColdTier(ctx context.Context, cfg config.Cache) (cache.ColdTier, error) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis cache backend unreachable at startup", "err", err)
		}
		return cache.NewRedisColdTier(client), nil
	}
	store, err := objstore.NewLocalFS(cfg.Dir, "")
	if err != nil {
		return nil, err
	}
	return cache.NewFilesystemColdTier(store, cfg.MaxEntries, cfg.MaxDiskBytes), nil
}
