package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"homeai/internal/config"
	"homeai/internal/model"
	"homeai/internal/pkg/logging"
	postgresClient "homeai/internal/platform/postgres"
	rabbitmqClient "homeai/internal/platform/rabbitmq"
	redisClient "homeai/internal/platform/redis"
	"homeai/internal/repository"
	"homeai/internal/vectorstore"
	"homeai/internal/worker"
)

type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Vectors       *vectorstore.Store
	MessageWorker *worker.MessagePersistWorker

	// JWTSecret is the resolved signing key: configured value or the
	// database-persisted generated one.
	JWTSecret string

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logging.Init(cfg.App.Env)

	db, err := postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.Document{},
		&model.SigningSecret{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	if err := userRepo.EnsureAssistant(); err != nil {
		return nil, fmt.Errorf("seed assistant user failed: %w", err)
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = repository.NewSigningSecretRepository(db).GetOrCreate()
		if err != nil {
			return nil, err
		}
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.Open(cfg.Storage.VectorDirectory)
	if err != nil {
		return nil, err
	}

	messageRepo := repository.NewMessageRepository(db)
	messageWorker := worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue)
	if err := messageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start message worker failed: %w", err)
	}

	return &App{
		Config:        cfg,
		DB:            db,
		Redis:         redisCli,
		MQConn:        mqConn,
		Vectors:       vectors,
		MessageWorker: messageWorker,
		JWTSecret:     jwtSecret,
		StartedAt:     time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	logging.Sync()
	return closeErr
}
