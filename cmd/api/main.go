package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"reelrender/internal/acquire"
	"reelrender/internal/delivery"
	"reelrender/internal/filterchain"
	"reelrender/internal/httpapi"
	"reelrender/internal/httpapi/handlers"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/pkg/shutdown"
	"reelrender/internal/render"
	"reelrender/internal/repositories"
	"reelrender/internal/settings"
	"reelrender/internal/storage"
	"reelrender/internal/util"
)

const version = "0.1.0"

func main() {
	// A .env next to the binary is optional; real env vars win.
	_ = godotenv.Load()

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "reelrender-api",
		AddSource:   util.BoolEnv("LOG_SOURCE", false),
	})

	log.Info("starting reelrender API", "version", version)

	// Load configuration
	httpPort := util.Env("HTTP_PORT", "8080")
	workDir := util.Env("WORK_DIR", "./data/work")
	uploadDir := util.Env("UPLOAD_DIR", "./data/uploads")
	ffmpegPath := util.Env("FFMPEG_PATH", "ffmpeg")
	renderTimeout := util.DurationEnv("RENDER_TIMEOUT", 5*time.Minute)
	maxUploadBytes := int64(util.IntEnv("MAX_UPLOAD_MB", 512)) << 20

	for _, dir := range []string{workDir, uploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.LogFatal("failed to create directory", err, "dir", dir)
		}
	}

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Settings store
	store, err := newSettingsStore(ctx, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to initialize settings store", err)
	}
	settingsMgr := settings.NewManager(store, log)
	if err := settingsMgr.Reload(ctx); err != nil {
		log.LogFatal("failed to load settings", err, "backend", store.Name())
	}

	// Initialize storage provider
	storageCfg := storage.ConfigFromEnv()
	if err := storageCfg.Validate(workDir); err != nil {
		log.LogFatal("invalid storage configuration", err)
	}
	sp, err := storage.NewProvider(ctx, storageCfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Render service
	renderSvc := render.NewService(render.Deps{
		Config: render.Config{
			WorkDir:      workDir,
			UploadDir:    uploadDir,
			FontFile:     util.Env("FONT_FILE", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"),
			FontFallback: util.Env("FONT_FALLBACK_FILE", ""),
			Timeout:      renderTimeout,
			ProbeInput:   util.BoolEnv("PROBE_INPUT", false),
			FFprobePath:  util.Env("FFPROBE_PATH", render.ProbePath(ffmpegPath)),
			Codec:        render.DefaultCodec(),
		},
		Runner:  render.NewFFmpegRunner(ffmpegPath, log),
		Builder: filterchain.NewBuilder(jitterRand(log), filterchain.DefaultJitter),
		Log:     log,
	})

	fetcher := acquire.NewFetcher(acquire.FetcherConfig{
		RetryMax: util.IntEnv("FETCH_RETRY_MAX", 3),
		Timeout:  util.DurationEnv("FETCH_TIMEOUT", 2*time.Minute),
		MaxBytes: maxUploadBytes,
	}, log)

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Render:         renderSvc,
			Fetcher:        fetcher,
			Delivery:       delivery.New(sp, log),
			Settings:       settingsMgr,
			SP:             sp,
			Log:            log,
			AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
			MaxUploadBytes: maxUploadBytes,
			PublicBaseURL:  util.Env("PUBLIC_BASE_URL", ""),
			FFmpegPath:     ffmpegPath,
			Version:        version,
		},
		AllowedOrigins: util.CSVEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	})

	// Create HTTP server; WriteTimeout leaves room for the render itself.
	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: renderTimeout + 2*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", httpPort,
			"settings_backend", store.Name(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait(ctx)
}

// newSettingsStore picks the backend from SETTINGS_BACKEND (file, redis or
// postgres) and registers its connection for shutdown.
func newSettingsStore(ctx context.Context, log *logger.Logger, mgr *shutdown.Manager) (settings.Store, error) {
	switch backend := util.Env("SETTINGS_BACKEND", "file"); backend {
	case "file":
		return settings.NewFileStore(util.Env("SETTINGS_FILE", "./data/settings.json")), nil

	case "redis":
		addr := util.Env("REDIS_ADDR", "")
		if addr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis settings backend")
		}
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		mgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info("Redis connected")
		return settings.NewRedisStore(rdb, util.Env("SETTINGS_REDIS_KEY", settings.DefaultRedisKey)), nil

	case "postgres":
		dbURL := util.Env("DATABASE_URL", "")
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres settings backend")
		}
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		mgr.RegisterSimple("postgres", pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := repositories.NewSettingsRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("settings schema: %w", err)
		}
		log.Info("PostgreSQL connected")
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown settings backend: %s", backend)
	}
}

// jitterRand seeds the jitter source from JITTER_SEED when set, so renders
// can be reproduced.
func jitterRand(log *logger.Logger) *rand.Rand {
	raw := util.Env("JITTER_SEED", "")
	if raw == "" {
		return nil
	}
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Warn("ignoring invalid JITTER_SEED", "value", raw)
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed))
}
