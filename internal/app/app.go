// Package app wires configuration, storage backends and services into the
// API server and the asynq worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DocChat/internal/api"
	"github.com/dharsanguruparan/DocChat/internal/blob"
	"github.com/dharsanguruparan/DocChat/internal/chat"
	"github.com/dharsanguruparan/DocChat/internal/completion"
	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/extract"
	"github.com/dharsanguruparan/DocChat/internal/jobstore"
	"github.com/dharsanguruparan/DocChat/internal/lifecycle"
	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/processing"
	"github.com/dharsanguruparan/DocChat/internal/queue"
	"github.com/dharsanguruparan/DocChat/internal/signing"
	"github.com/dharsanguruparan/DocChat/internal/worker"
)

const drainTimeout = 30 * time.Second

type App struct {
	Cfg        *config.Config
	Log        *logger.Logger
	Jobs       jobstore.Store
	Blobs      blob.Store
	Extractor  *extract.Extractor
	Completion *completion.Client
	Controller *lifecycle.Controller
	Chat       *chat.Orchestrator
	Signer     *signing.Signer

	db    *pgxpool.Pool
	pool  *processing.Pool
	queue *asynq.Client
}

// New connects the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Cfg: cfg, Log: log}

	log.Info("app.wiring", "store", cfg.StoreBackend, "blob", cfg.BlobBackend, "scheduler", cfg.Scheduler)
	jobs, db, err := openJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Jobs, a.db = jobs, db

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs

	var scheduler lifecycle.Scheduler
	switch cfg.Scheduler {
	case config.SchedulerAsynq:
		a.queue = asynq.NewClient(redisOpt(cfg))
		scheduler = queue.NewScheduler(a.queue, "", cfg.ProcessTimeout)
	default:
		a.pool = processing.New(cfg.ProcessingPool, cfg.QueueSize, cfg.ProcessTimeout, log)
		scheduler = a.pool
	}

	a.Extractor = extract.New(a.Blobs)
	a.Completion = completion.NewClient(completion.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		SummaryModel: cfg.SummaryModel,
		ChatModel:    cfg.ChatModel,
		Timeout:      cfg.OpenAITimeout,
	}, log)
	if cfg.OpenAIAPIKey == "" {
		log.Warn("app.openai_key_missing", "hint", "jobs will fail until OPENAI_API_KEY is set")
	}
	a.Controller = lifecycle.New(a.Jobs, a.Blobs, a.Extractor, a.Completion, scheduler, log)
	a.Chat = chat.New(a.Jobs, a.Extractor, a.Completion, log)
	a.Signer = signing.NewSigner(cfg.SigningSecret)
	return a, nil
}

// Serve runs the HTTP API until ctx is cancelled. With the in-process
// scheduler it also runs the worker pool and drains it on the way out.
func (a *App) Serve(ctx context.Context) error {
	if a.pool != nil {
		// Workers outlive the request context so queued jobs can drain.
		poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		a.pool.Start(poolCtx, a.Controller.Process)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), drainTimeout)
			defer stop()
			if err := a.pool.Shutdown(shutdownCtx); err != nil {
				a.Log.Warn("app.drain_incomplete", "error", err)
			}
		}()
	}
	srv := api.New(a.Cfg, api.Deps{
		Jobs:      a.Controller,
		Reader:    a.Jobs,
		Chat:      a.Chat,
		Documents: a.Blobs,
		Signer:    a.Signer,
	}, a.Log)
	return srv.Run(ctx)
}

// Work consumes summarize tasks from asynq until ctx is cancelled.
func (a *App) Work(ctx context.Context) error {
	if a.Cfg.Scheduler != config.SchedulerAsynq {
		return errors.New("worker requires DOCCHAT_SCHEDULER=asynq")
	}
	srv := asynq.NewServer(redisOpt(a.Cfg), asynq.Config{
		Concurrency: a.Cfg.ProcessingPool,
		Logger:      a.Log.SugaredLogger,
	})
	processor := worker.NewProcessor(a.Controller, a.Log)
	if err := srv.Start(processor.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	a.Log.Info("worker.started", "concurrency", a.Cfg.ProcessingPool, "redis", a.Cfg.RedisAddr)
	<-ctx.Done()
	srv.Shutdown()
	a.Log.Info("worker.stopped")
	return nil
}

// Close releases connections opened by New.
func (a *App) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.Log.Warn("app.queue_close_failed", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	a.Log.Sync()
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
