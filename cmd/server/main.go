package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authgate/internal/activity"
	"authgate/internal/config"
	apphttp "authgate/internal/http"
	"authgate/internal/parse"
	"authgate/internal/repository/parsedb"
	"authgate/internal/repository/sqlite"
	"authgate/internal/service"
	"authgate/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := parse.NewClient(parse.Config{
		ServerURL: cfg.Parse.ServerURL,
		AppID:     cfg.Parse.AppID,
		RESTKey:   cfg.Parse.RESTKey,
		MasterKey: cfg.Parse.MasterKey,
		Timeout:   cfg.ParseTimeout(),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("setup backend client: %v", err)
	}

	storageSvc, err := buildStorage(ctx, cfg, backend, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	sink, closeSink, err := buildActivitySink(ctx, cfg, backend, logger)
	if err != nil {
		logger.Fatalf("setup activity sink: %v", err)
	}
	defer closeSink()

	recorder := activity.NewRecorder(sink, activity.Config{
		Buffer: cfg.Activity.Buffer,
		Logger: logger,
	})
	recorder.Start(ctx)

	userService := service.NewUserService(backend, storageSvc, service.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Logger:         logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, recorder, apphttp.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		EnableMetrics:  cfg.Metrics.Enabled,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	recorder.Shutdown()

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func buildStorage(ctx context.Context, cfg config.Config, backend *parse.Client, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Backend != config.StorageS3 {
		logger.Info("storing profile pictures as backend files")
		return storage.NewParseService(backend), nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, storage.S3Options{
		Bucket:        cfg.Storage.Bucket,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		URLExpiry:     cfg.URLExpiry(),
	})
}

// buildActivitySink returns the configured sink and a func releasing its resources.
// The none sink yields a nil Sink, which makes the recorder a no-op.
func buildActivitySink(ctx context.Context, cfg config.Config, backend *parse.Client, logger *logrus.Logger) (activity.Sink, func(), error) {
	noop := func() {}

	switch cfg.Activity.Sink {
	case config.SinkNone:
		logger.Info("activity logging disabled")
		return nil, noop, nil

	case config.SinkSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open database: %w", err)
		}
		repo := sqlite.NewActivityRepository(db)
		if err := repo.Init(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("init activity repository: %w", err)
		}
		logger.Infof("recording activity to %s", cfg.Database.Path)
		return repo, closer(db, logger, "database"), nil

	case config.SinkAMQP:
		sink, err := activity.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, noop, err
		}
		logger.Infof("publishing activity to exchange %s", cfg.AMQP.Exchange)
		return sink, closer(sink, logger, "amqp"), nil

	default:
		repo := parsedb.NewActivityRepository(backend)
		if err := repo.Init(ctx); err != nil {
			return nil, noop, fmt.Errorf("init activity repository: %w", err)
		}
		return repo, noop, nil
	}
}

func closer(c io.Closer, logger *logrus.Logger, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warnf("close %s: %v", name, err)
		}
	}
}
