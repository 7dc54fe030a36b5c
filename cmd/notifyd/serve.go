package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/posnotify/pkg/config"
	"github.com/dmitrymomot/posnotify/pkg/httpserver"
	"github.com/dmitrymomot/posnotify/pkg/logger"
	"github.com/dmitrymomot/posnotify/pkg/notifications"
	"github.com/dmitrymomot/posnotify/pkg/queue"
)

const (
	maintenanceQueue = "notify.maintenance"
	promoteTaskName  = "notify.promote_due"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run channel workers, the status reducer and deferred promotion",
	Long: `Starts one worker per configured delivery channel, the status reducer
that folds delivery outcomes into notification records, a periodic task
that promotes due deferred notifications and an HTTP server exposing
liveness and readiness checks.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	providers, err := a.providers(ctx)
	if err != nil {
		return err
	}

	// Workers report outcomes through the reducer while draining, so it is
	// stopped only after every worker has returned.
	if err := a.aggregator.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer func() {
		if err := a.aggregator.Stop(); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to stop aggregator", logger.Error(err))
		}
	}()

	workers, err := a.workers(providers)
	if err != nil {
		return err
	}
	scheduler, err := a.scheduler()
	if err != nil {
		return err
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(a.logger))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(w.Run(gctx))
	}
	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx, a.router())
	})

	return g.Wait()
}

func (a *app) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health/live", httpserver.HealthCheckHandler(a.logger))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.logger, a.healthchecks()...))
	return r
}

// workers returns one worker per provider channel plus the maintenance
// worker running deferred promotion. Channels get their own worker so a slow
// gateway cannot take the slots of another channel.
func (a *app) workers(providers map[notifications.Channel]notifications.Provider) ([]*queue.Worker, error) {
	var out []*queue.Worker
	for _, ch := range notifications.Channels() {
		p, ok := providers[ch]
		if !ok {
			continue
		}
		handler, err := notifications.NewChannelHandler(ch, p, a.aggregator,
			notifications.WithHandlerTimeout(a.notify.Timeout(ch)),
			notifications.WithHandlerLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		w, err := a.newWorker(ch.Queue(), handler)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}

	promote := queue.NewPeriodicTaskHandler(promoteTaskName, func(ctx context.Context) error {
		_, err := a.dispatcher.PromoteDue(ctx, time.Now(), a.notify.PromoteLimit)
		return err
	})
	w, err := a.newWorker(maintenanceQueue, promote)
	if err != nil {
		return nil, err
	}
	return append(out, w), nil
}

func (a *app) newWorker(queueName string, handler queue.Handler) (*queue.Worker, error) {
	w, err := queue.NewWorker(a.tasks,
		queue.WithQueues(queueName),
		queue.WithPullInterval(a.queueCfg.PollInterval),
		queue.WithLockTimeout(a.queueCfg.LockTimeout),
		queue.WithMaxConcurrentTasks(a.queueCfg.MaxConcurrentTasks),
		queue.WithWorkerLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := w.RegisterHandler(handler); err != nil {
		return nil, err
	}
	return w, nil
}

func (a *app) scheduler() (*queue.Scheduler, error) {
	s, err := queue.NewScheduler(a.tasks,
		queue.WithCheckInterval(a.notify.PromoteInterval),
		queue.WithSchedulerLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	err = s.AddTask(promoteTaskName, queue.EveryInterval(a.notify.PromoteInterval),
		queue.WithTaskQueue(maintenanceQueue),
		queue.WithTaskMaxAttempts(1),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
