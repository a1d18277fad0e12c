// Package main runs the recording bot: Discord gateway, session manager,
// in-process transcription worker and the dashboard API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sbi-steve/backend/config"
	"github.com/sbi-steve/backend/internal/api"
	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/discord"
	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/people"
	"github.com/sbi-steve/backend/internal/realtime"
	"github.com/sbi-steve/backend/internal/session"
	"github.com/sbi-steve/backend/internal/telemetry"
	"github.com/sbi-steve/backend/internal/transcription"
	"github.com/sbi-steve/backend/pkg/database"
	"github.com/sbi-steve/backend/pkg/queue"
	"github.com/sbi-steve/backend/pkg/redis"
	"github.com/sbi-steve/backend/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		Component:      "bot",
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		Endpoint:             cfg.AWS.Endpoint,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	meetingRepo := meetings.NewRepository(pool)
	peopleRepo := people.NewRepository(pool)
	meetingStore := meetings.NewStore(meetingRepo, s3Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	dg, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		logger.Fatal("discord", zap.Error(err))
	}
	discordNotifier := discord.NewNotifier(dg)

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	notifier := session.NewFanoutNotifier(discordNotifier, logger, hub)

	var transcriber session.Transcriber
	var processor *transcription.Processor
	if cfg.Transcription.Enabled {
		transcriber = transcription.NewQueueTranscriber(jobQueue, notifier, logger)
		recognizer, err := transcription.NewAssemblyAI(cfg.Transcription.APIKey, cfg.Transcription.SpeechModel)
		if err != nil {
			logger.Fatal("assemblyai", zap.Error(err))
		}
		processor = transcription.NewProcessor(transcription.ProcessorDeps{
			Meetings:   meetingRepo,
			Blobs:      s3Client,
			Mixer:      transcription.FFmpegMixer{Binary: cfg.Transcription.FFmpegPath},
			Recognizer: recognizer,
			Queue:      jobQueue,
			Notifier:   notifier,
			TempDir:    cfg.Transcription.TempDir,
		}, logger)
	}

	manager, err := session.NewManager(session.Config{
		MaxDuration:     cfg.Recording.MaxDuration,
		StatusInterval:  cfg.Recording.StatusInterval,
		ConnectTimeout:  cfg.Recording.ConnectTimeout,
		DrainTimeout:    cfg.Recording.DrainTimeout,
		FinalizeTimeout: cfg.Recording.FinalizeTimeout,
	}, session.Deps{
		Voice:          discord.NewVoice(dg, cfg.Discord.KeepaliveInterval, logger),
		Sink:           discord.NewSink(logger),
		Store:          meetingStore,
		Notifier:       notifier,
		Transcriber:    transcriber,
		MeterProvider:  tel.MeterProvider,
		TracerProvider: tel.TracerProvider,
	}, logger)
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}
	hub.SetSnapshot(func(guildID string) any {
		if s, ok := manager.Session(session.TenantID(guildID)); ok {
			return s.Snapshot()
		}
		return nil
	})

	handler := discord.NewHandler(dg, manager, meetingRepo, peopleRepo, discord.StateVoiceLocator(dg), logger)
	bot := discord.NewBot(dg, discord.BotConfig{
		ApplicationID:   cfg.Discord.ApplicationID,
		CommandGuildIDs: cfg.Discord.CommandGuildIDs,
		SyncCommands:    true,
	}, handler, manager, logger)
	if err := bot.Open(); err != nil {
		logger.Fatal("discord gateway", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	sessionsHandler := api.NewSessionsHandler(manager, logger)
	router := api.NewRouter(api.RouterDeps{
		JWT:            jwtService,
		Meetings:       meetings.NewHandler(meetingRepo, s3Client, logger),
		Sessions:       sessionsHandler,
		Hub:            hub,
		Metrics:        tel.Handler,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Checks: map[string]api.HealthCheck{
			"postgres": pool.Ping,
			"redis":    rdb.Healthy,
		},
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if processor != nil {
			processor.Run(workerCtx)
		}
	}()

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Sessions first so their final notifications still reach Discord.
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown", zap.Error(err))
	}
	sessionsHandler.Wait()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := bot.Close(shutdownCtx); err != nil {
		logger.Error("discord shutdown", zap.Error(err))
	}
	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("transcription worker did not stop in time")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", zap.Error(err))
	}
	logger.Info("bot stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
