package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"smartattend/internal/api"
	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/capture"
	"smartattend/internal/cloudinary"
	"smartattend/internal/config"
	"smartattend/internal/enroll"
	"smartattend/internal/faceclient"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/logger"
	"smartattend/internal/metrics"
	"smartattend/internal/notify"
	"smartattend/internal/profile"
	"smartattend/internal/queue"
	"smartattend/internal/roster"
	"smartattend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("api failed: %v", err)
	}
}

func run(cfg config.App) error {
	slogger := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *store.Redis
	if cfg.StoreBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	kv, closeKV, err := openKV(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeKV()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	rs := roster.Default()
	if cfg.RosterFile != "" {
		rs, err = roster.LoadFile(cfg.RosterFile)
		if err != nil {
			return err
		}
		log.Printf("roster loaded from %s: %d lectures", cfg.RosterFile, len(rs.Lectures()))
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		q = mem
		// no separate worker in memory mode
		go func() {
			if err := notify.New(slogger, rec).Run(ctx, mem); err != nil {
				slogger.Error("inline notifier stopped", "error", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
		} else {
			log.Println("face service connected")
		}
	}

	still, err := cameraStill(cfg.CameraStill)
	if err != nil {
		return err
	}
	hallCamera := enroll.NewSimulatedCamera(still)
	detector := &capture.FaceServiceDetector{
		Client: face,
		Frames: func(ctx context.Context) ([]byte, error) {
			return enroll.Snapshot(ctx, hallCamera, enroll.Constraints{FacingMode: enroll.FacingEnvironment})
		},
		Fallback: capture.NewSimulator(cfg.CaptureDelay),
	}

	sessions := attendance.NewService(attendance.Options{
		Repo:          attendance.NewKVRepository(kv),
		Roster:        rs,
		Detector:      detector,
		Publisher:     q,
		Metrics:       rec,
		Logger:        slogger,
		DetectTimeout: cfg.DetectTimeout,
	})
	defer sessions.Close()

	profiles := profile.NewStore(kv)
	if lec, err := profiles.Lecturer(ctx); err == nil {
		if _, err := sessions.Bootstrap(ctx, lec.Lectures); err != nil {
			return fmt.Errorf("bootstrap sessions: %w", err)
		}
	} else if !errors.Is(err, profile.ErrNotFound) {
		return err
	}

	enroller := &enroll.Enroller{
		Camera: enroll.NewSimulatedCamera(still),
		Faces:  face,
		Log:    slogger,
	}
	if cfg.CloudinaryConfigured() {
		enroller.Uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	checks := map[string]api.Check{"store": kv.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			if !redisClient.Healthy(ctx) {
				return errors.New("unreachable")
			}
			return nil
		}
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, 5*time.Minute)
	defer limiter.Stop()

	h := api.New(api.Deps{
		Sessions: sessions,
		Profiles: profiles,
		Roster:   rs,
		Capturer: enroller,
		Signer:   auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL),
		Checks:   checks,
		Logger:   slogger,
	})
	r := api.NewRouter(h, metrics.Handler(reg),
		httpmiddleware.CORS(cfg.CORSOrigins),
		httpmiddleware.SecurityHeaders(),
		limiter.Middleware(),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on :%s (store=%s, queue=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// openKV selects the storage backend. The returned func releases it.
func openKV(ctx context.Context, cfg config.App, redisClient *store.Redis) (store.KV, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case "redis":
		return store.NewRedisKV(redisClient.Client, ""), noop, nil
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		kv, err := store.NewSQLKV(ctx, db.Client, store.Postgres)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return kv, func() { _ = db.Close() }, nil
	case "sqlite":
		db, err := store.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		kv, err := store.NewSQLKV(ctx, db.Client, store.SQLite)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return kv, func() { _ = db.Close() }, nil
	default:
		slog.Warn("using in-memory store; records are lost on restart")
		return store.NewMemory(), noop, nil
	}
}

func cameraStill(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read camera still: %w", err)
	}
	return data, nil
}
