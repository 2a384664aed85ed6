package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "streamplayer/internal/api/http"
	"streamplayer/internal/app"
	"streamplayer/internal/mediaserver"
	"streamplayer/internal/metrics"
	"streamplayer/internal/player"
	mongorepo "streamplayer/internal/repository/mongo"
	"streamplayer/internal/services/progress"
	"streamplayer/internal/services/settings"
	"streamplayer/internal/subsearch"
	"streamplayer/internal/telemetry"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "player-agent")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "player-agent"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("streamServer", cfg.StreamServerURL),
		slog.Duration("reportInterval", cfg.ReportInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	// Mongo is optional. Without it, settings live in memory and watch
	// history is not recorded; the repositories tolerate nil receivers.
	var settingsRepo *mongorepo.PlayerSettingsRepository
	var historyRepo *mongorepo.WatchHistoryRepository
	var mongoDisconnect func()
	if cfg.MongoURI != "" {
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		settingsRepo = mongorepo.NewPlayerSettingsRepository(mongoClient, cfg.MongoDatabase)
		historyRepo = mongorepo.NewWatchHistoryRepository(mongoClient, cfg.MongoDatabase)
		mongoDisconnect = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	}

	msClient := mediaserver.NewClient(mediaserver.Config{
		BaseURL:         cfg.StreamServerURL,
		ProbeRatePerSec: cfg.ProbeRatePerSec,
		ProbeBurst:      cfg.ProbeBurst,
	})

	// Redis is optional and only backs the subtitle search cache.
	subsearchOpts := []subsearch.Option{}
	var redisClose func()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cache := subsearch.NewRedisCacheBackend(redisClient)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, subtitle cache is in-memory only",
				slog.String("error", err.Error()))
			_ = redisClient.Close()
		} else {
			subsearchOpts = append(subsearchOpts, subsearch.WithRedisCache(cache))
			redisClose = func() { _ = redisClient.Close() }
		}
	}
	subtitles := subsearch.NewService(msClient, logger, subsearchOpts...)

	settingsMgr := settings.NewManager(settingsRepo)
	if err := settingsMgr.Load(ctx); err != nil {
		logger.Warn("player settings load failed", slog.String("error", err.Error()))
	}
	recorder := progress.NewRecorder(historyRepo, logger)

	shell := apihttp.NewShellElement(logger)
	session := player.NewSession(msClient, shell, logger)
	shell.SetEvents(session)
	cues := player.NewCueStore(msClient, subtitles, logger)

	report := func(seconds int, duration float64) {
		recorder.Record(session.Filename(), seconds, duration)
	}
	ctrl := player.NewController(
		player.ControllerConfig{
			ReportInterval:    cfg.ReportInterval,
			ControlsHideDelay: cfg.ControlsHideDelay,
		},
		msClient,
		subtitles,
		session,
		cues,
		shell,
		report,
		logger,
	)
	go ctrl.Run(rootCtx)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithSettings(settingsMgr),
		apihttp.WithResume(recorder),
		apihttp.WithShell(shell),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}
	if historyRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithWatchHistory(historyRepo))
	}
	handler := apihttp.NewServer(ctrl, serverOpts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	ctrl.Close()
	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if redisClose != nil {
		redisClose()
	}
	if mongoDisconnect != nil {
		mongoDisconnect()
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
