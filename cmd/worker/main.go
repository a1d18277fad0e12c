// Package main runs the standalone transcription worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sbi-steve/backend/config"
	"github.com/sbi-steve/backend/internal/discord"
	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/realtime"
	"github.com/sbi-steve/backend/internal/session"
	"github.com/sbi-steve/backend/internal/telemetry"
	"github.com/sbi-steve/backend/internal/transcription"
	"github.com/sbi-steve/backend/pkg/database"
	"github.com/sbi-steve/backend/pkg/queue"
	"github.com/sbi-steve/backend/pkg/redis"
	"github.com/sbi-steve/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if cfg.Transcription.APIKey == "" {
		logger.Fatal("ASSEMBLYAI_API_KEY not set")
	}

	ctx := context.Background()
	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Component:    "worker",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

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

	recognizer, err := transcription.NewAssemblyAI(cfg.Transcription.APIKey, cfg.Transcription.SpeechModel)
	if err != nil {
		logger.Fatal("assemblyai", zap.Error(err))
	}

	// Results go to the text channel over REST and to dashboards over Redis.
	// The gateway is never opened here.
	var notifier session.Notifier
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, nil)
	if dg, err := discord.NewSession(cfg.Discord.Token); err == nil {
		notifier = session.NewFanoutNotifier(discord.NewNotifier(dg), logger, hub)
	} else {
		logger.Warn("discord notifications disabled", zap.Error(err))
		notifier = hub
	}

	processor := transcription.NewProcessor(transcription.ProcessorDeps{
		Meetings:   meetings.NewRepository(pool),
		Blobs:      s3Client,
		Mixer:      transcription.FFmpegMixer{Binary: cfg.Transcription.FFmpegPath},
		Recognizer: recognizer,
		Queue:      queue.NewQueue(rdb.Client, logger),
		Notifier:   notifier,
		TempDir:    cfg.Transcription.TempDir,
	}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
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
