package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yourorg/messenger/internal/auth"
	"github.com/yourorg/messenger/internal/config"
	"github.com/yourorg/messenger/internal/handlers"
	"github.com/yourorg/messenger/internal/hub"
	"github.com/yourorg/messenger/internal/kafka"
	"github.com/yourorg/messenger/internal/logger"
	"github.com/yourorg/messenger/internal/presence"
	"github.com/yourorg/messenger/internal/realtime"
	"github.com/yourorg/messenger/internal/repository"
	"github.com/yourorg/messenger/internal/storage"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logg, err := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mc, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		logg.Fatalw("mongo connect", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	db := mc.Database(cfg.Mongo.Database)
	store := repository.NewStore(
		repository.NewUserRepository(db.Collection(cfg.Mongo.UsersCollection)),
		repository.NewConversationRepository(db.Collection(cfg.Mongo.ConversationsCollection)),
		repository.NewMessageRepository(db.Collection(cfg.Mongo.MessagesCollection)),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logg.Fatalw("redis connect", "err", err)
	}

	tokens, err := auth.NewTokens(cfg.JWT.Secret, cfg.TokenTTL)
	if err != nil {
		logg.Fatalw("jwt init", "err", err)
	}

	cast := realtime.NewBroadcaster(rdb, cfg.Redis.Prefix, logg)
	tracker := presence.NewTracker(rdb, cfg.Redis.Prefix, 2*time.Minute)

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID, logg)
		defer consumer.Close()
		go func() {
			// audit trail of message lifecycle events
			err := consumer.Run(ctx, func(rec kafka.EventRecord) {
				logg.Infow("event archived",
					"event", rec.Event,
					"conversation", rec.ConversationID,
					"actor", rec.ActorID,
					"at", rec.At,
				)
			})
			if err != nil && ctx.Err() == nil {
				logg.Errorw("archiver stopped", "err", err)
			}
		}()
	}

	var media *storage.S3Store
	if cfg.S3.Bucket != "" {
		media, err = storage.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicURL)
		if err != nil {
			logg.Fatalw("s3 init", "err", err)
		}
	}

	h := hub.New()
	bridge := hub.NewBridge(rdb, h, cfg.Redis.Prefix, logg)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			logg.Errorw("bridge stopped", "err", err)
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	})
	handlers.New(store, tokens, cast, producer, media, tracker, h, logg).Register(app)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logg.Infow("server listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logg.Fatalw("server listen", "err", err)
		}
	}()

	<-ctx.Done()
	logg.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("shutdown", "err", err)
	}
	logg.Infow("stopped")
}
