// Package loop implements the single cooperative dispatch loop that
// drives the worker pool: harvest completed jobs, lease new queued
// submissions up to the pool's free capacity, submit each to the pool.
package loop

import (
	"context"
	"fmt"
	"time"

	"fuzoj/internal/judge/model"
	"fuzoj/internal/judge/workerpool"
	"fuzoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Gateway is the slice of the Problem Store Gateway the loop needs.
type Gateway interface {
	LeaseQueued(ctx context.Context, n int) []model.Submission
	UndoRunning(ctx context.Context) error
}

// Runner executes one leased submission to completion.
type Runner interface {
	Run(ctx context.Context, submission model.Submission) error
}

// Loop is the tick-driven dispatcher: spec.md's Service Loop (C6)
// riding on top of the Worker Pool (C5). Grounded on
// original_source/src/main.py's process_judge_requests(), translated
// from an asyncio task + ThreadPoolExecutor into a ticker goroutine
// over workerpool.Pool.
type Loop struct {
	gateway  Gateway
	runner   Runner
	pool     *workerpool.Pool
	interval time.Duration
	log      *logger.Logger

	stop chan struct{}
	done chan struct{}
}

// New builds a Loop. interval is the poll cadence (spec default: 5s).
func New(gateway Gateway, runner Runner, pool *workerpool.Pool, interval time.Duration, log *logger.Logger) *Loop {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Loop{
		gateway:  gateway,
		runner:   runner,
		pool:     pool,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs undoRunning() once for crash recovery, then begins
// ticking in its own goroutine. Returns once the background goroutine
// is launched; it does not block for the loop's lifetime.
func (l *Loop) Start(ctx context.Context) {
	if err := l.gateway.UndoRunning(ctx); err != nil {
		l.log.WithContext(ctx).Error("undo running submissions at startup failed", zap.Error(err))
	}
	go l.run(ctx)
}

// Stop halts the dispatch loop, waits for in-flight jobs to drain,
// harvests and logs them once more, then runs undoRunning() again so
// anything still "running" at shutdown goes back to "queued".
func (l *Loop) Stop(ctx context.Context) {
	close(l.stop)
	<-l.done

	l.pool.Shutdown(true)
	l.logHarvest(l.pool.Harvest())

	if err := l.gateway.UndoRunning(ctx); err != nil {
		l.log.WithContext(ctx).Error("undo running submissions at shutdown failed", zap.Error(err))
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick never lets an error escape: a DB outage must not kill the loop.
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.WithContext(ctx).Error("dispatch tick panicked", zap.Any("recovered", rec))
		}
	}()

	l.logHarvest(l.pool.Harvest())

	n := l.pool.Available()
	if n <= 0 {
		return
	}

	submissions := l.gateway.LeaseQueued(ctx, n)
	if len(submissions) == 0 {
		return
	}
	l.log.WithContext(ctx).Info("leased submissions for judging", zap.Int("count", len(submissions)))

	for _, s := range submissions {
		submission := s
		jobKey := fmt.Sprintf("submission-%d", submission.ID)
		submitted := l.pool.Submit(jobKey, func() error {
			return l.runner.Run(ctx, submission)
		})
		if !submitted {
			l.log.WithContext(ctx).Warn("worker pool rejected a leased submission", zap.String("job_key", jobKey))
		}
	}
}

func (l *Loop) logHarvest(results []workerpool.Result) {
	zl := l.log.WithContext(context.Background())
	for _, r := range results {
		if r.Err != nil {
			zl.Error("judge job finished with an error", zap.String("job_key", r.JobKey), zap.Time("submitted_at", r.SubmittedAt), zap.Error(r.Err))
			continue
		}
		zl.Info("judge job finished", zap.String("job_key", r.JobKey), zap.Time("submitted_at", r.SubmittedAt))
	}
}
