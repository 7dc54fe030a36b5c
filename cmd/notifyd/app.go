package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/posnotify/pkg/config"
	"github.com/dmitrymomot/posnotify/pkg/httpserver"
	"github.com/dmitrymomot/posnotify/pkg/logger"
	mongodb "github.com/dmitrymomot/posnotify/pkg/mongo"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/notifications/mongostore"
	"github.com/dmitrymomot/posnotify/pkg/queue"
	redisdb "github.com/dmitrymomot/posnotify/pkg/redis"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"notifyd"`
	LogLevel string `env:"LOG_LEVEL"`
}

// app holds the components shared by every command.
type app struct {
	notify   notifications.Config
	queueCfg queue.Config
	logger   *slog.Logger

	db    *mongo.Database
	redis *goredis.Client
	tasks *queue.RedisStorage

	store      *mongostore.Store
	gate       *notifications.Gate
	aggregator *notifications.Aggregator
	dispatcher *notifications.Dispatcher
	manager    *notifications.Manager
}

func newApp(ctx context.Context) (*app, error) {
	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, appCfg.Name),
		logger.WithLevelName(appCfg.LogLevel),
	)
	logger.SetAsDefault(log)

	a := &app{logger: log}
	if err := config.Load(&a.notify); err != nil {
		return nil, fmt.Errorf("failed to load notifications config: %w", err)
	}
	if err := config.Load(&a.queueCfg); err != nil {
		return nil, fmt.Errorf("failed to load queue config: %w", err)
	}

	var mongoCfg mongodb.Config
	if err := config.Load(&mongoCfg); err != nil {
		return nil, fmt.Errorf("failed to load mongo config: %w", err)
	}
	var redisCfg redisdb.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, fmt.Errorf("failed to load redis config: %w", err)
	}

	db, err := mongodb.ConnectDatabase(ctx, mongoCfg)
	if err != nil {
		return nil, err
	}
	a.db = db

	client, err := redisdb.Connect(ctx, redisCfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.redis = client

	a.tasks, err = queue.NewRedisStorage(client, queue.WithKeyPrefix(a.queueCfg.KeyPrefix))
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.store = mongostore.New(db, mongostore.WithLogger(log))
	if err := a.store.EnsureIndexes(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	directory := mongostore.NewDirectory(db, mongostore.UsersCollection)
	if err := directory.EnsureIndexes(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	enqueuer, err := queue.NewEnqueuer(a.tasks)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.gate = notifications.NewGate(a.store, a.notify.GateOptions()...)
	a.aggregator = notifications.NewAggregator(a.store, notifications.WithAggregatorLogger(log))
	a.manager = notifications.NewManager(a.store, a.store, a.gate, notifications.WithManagerLogger(log))

	opts := append(a.notify.DispatcherOptions(), notifications.WithDispatcherLogger(log))
	a.dispatcher, err = notifications.NewDispatcher(a.store,
		notifications.NewResolver(directory), a.gate, enqueuer, a.aggregator, opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	return a, nil
}

// healthchecks returns the readiness checks of the backing services.
func (a *app) healthchecks() []httpserver.Check {
	return []httpserver.Check{
		mongodb.Healthcheck(a.db.Client()),
		redisdb.Healthcheck(a.redis),
	}
}

func (a *app) close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Client().Disconnect(context.WithoutCancel(ctx)); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to disconnect from mongo", logger.Error(err))
		}
	}
}
