package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"clipforge/internal/config"
	"clipforge/internal/infra"
	"clipforge/internal/infra/credentials"
	"clipforge/internal/jobstore"
	"clipforge/internal/orchestrator"
	"clipforge/internal/providers"
	"clipforge/internal/queue"
	"clipforge/internal/ratelimit"
	"clipforge/internal/scheduler"
	"clipforge/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("orchestrator: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	redisClient, err := infra.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("orchestrator: redis connection failed")
	}
	defer redisClient.Close()

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("orchestrator: amqp connection failed")
	}
	defer amqpConn.Close()

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("orchestrator: failed to configure storage")
	}

	jobs := jobstore.New(pool, runner)
	credStore := credentials.NewStore(runner)
	sched := scheduler.New(redisClient)
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	orch := orchestrator.New(jobs, credStore, sched, limiter, uploader, orchestrator.Config{
		PollInterval:         cfg.PollInterval,
		VideoPollCeiling:     cfg.VideoPollCeiling,
		CompilePollCeiling:   cfg.CompilePollCeiling,
		RetryBudget:          cfg.RetryBudget,
		BackoffInitial:       cfg.BackoffInitial,
		BackoffMax:           cfg.BackoffMax,
		BackoffJitterPercent: cfg.BackoffJitterPercent,
		FFmpeg: providers.FFmpegOptions{
			WorkDir:   cfg.FFmpegWorkDir,
			OutputDir: cfg.FFmpegOutputDir,
			Binary:    cfg.FFmpegBinary,
		},
	}, logger)

	resumeCrashedJobs(ctx, jobs, orch, logger)

	consumer := queue.NewConsumer(amqpConn, logger)
	go func() {
		if err := consumer.Run(ctx, func(hctx context.Context, msg queue.GenerateMessage) error {
			return orch.Start(hctx, msg.OwnerID, msg.JobID)
		}); err != nil {
			logger.Error().Err(err).Msg("orchestrator: generate queue consumer stopped")
		}
	}()

	go runPollLoop(ctx, sched, orch, logger)

	logger.Info().Msg("orchestrator: started")
	<-ctx.Done()
	logger.Info().Msg("orchestrator: stopped")
}

// resumeCrashedJobs drives every non-terminal job forward once at process
// start, per spec.md §4.5's resume-on-process-start contract — a job that
// was mid-phase when the previous process died would otherwise sit idle
// forever with no armed timer to wake it (the timer itself may have been
// lost along with the process that would have armed it).
func resumeCrashedJobs(ctx context.Context, jobs *jobstore.Store, orch *orchestrator.Orchestrator, logger infra.Logger) {
	resumable, err := jobs.ListResumable(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: failed to list resumable jobs at startup")
		return
	}
	for _, job := range resumable {
		if err := orch.Resume(ctx, job.OwnerID, job.ID); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: startup resume failed")
		}
	}
}

// runPollLoop claims due Scheduler wake-ups and resumes the jobs behind
// them. It is the only place a bare ticker is used — not a job-level sleep,
// but the process-wide cadence at which the Scheduler's claimable set is
// drained.
func runPollLoop(ctx context.Context, sched *scheduler.Scheduler, orch *orchestrator.Orchestrator, logger infra.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := sched.ClaimDue(ctx, time.Now(), 50)
			if err != nil {
				logger.Error().Err(err).Msg("orchestrator: claim due jobs failed")
				continue
			}
			for _, key := range due {
				go func(key string) {
					if err := orch.ResumeArmKey(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error().Err(err).Str("arm_key", key).Msg("orchestrator: resume failed")
					}
				}(key)
			}
		}
	}
}

func newUploader(ctx context.Context, cfg *config.Config) (storage.Uploader, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			KeyPrefix: cfg.S3KeyPrefix,
		})
	}
	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	return storage.NewFileStore(storagePath)
}
