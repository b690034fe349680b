// Package status is the read side of the submission queue: it answers
// "how far along is this submission" for whatever polls progress
// counters, with a Redis-aside cache in front of the submissions /
// submission_summaries tables the Gateway (C2) writes.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fuzoj/internal/common/cache"
	"fuzoj/internal/common/db"
	"fuzoj/internal/judge/model"
	appErr "fuzoj/pkg/errors"
)

const (
	defaultTTL      = 10 * time.Second
	defaultEmptyTTL = 2 * time.Second
	keyPrefix       = "judge:status:"
)

// Progress is the polled view of one submission: its lifecycle state,
// task counters, and, once done, the verdict summary.
type Progress struct {
	SubmissionID  int64                    `json:"submission_id"`
	Progress      model.Progress           `json:"progress"`
	TotalTask     int                      `json:"total_task"`
	CompletedTask int                      `json:"completed_task"`
	Summary       *model.SubmissionSummary `json:"summary,omitempty"`
}

func (p *Progress) isEmpty() bool { return p == nil }

func cacheKey(submissionID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, submissionID)
}

// Reader answers progress lookups with a cache-aside read path in
// front of the relational store. It never writes submissions or
// summaries; Invalidate is the only hook back into the write side,
// called by the Gateway after it changes a submission's progress.
type Reader struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

// New builds a Reader. ttl/emptyTTL default to 10s/2s when <= 0.
func New(dbProvider db.Provider, c cache.Cache, ttl, emptyTTL time.Duration) *Reader {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultEmptyTTL
	}
	return &Reader{dbProvider: dbProvider, cache: c, ttl: ttl, emptyTTL: emptyTTL}
}

// Get returns the current progress for one submission, or
// appErr.JudgeStatusNotFound if it does not exist.
func (r *Reader) Get(ctx context.Context, submissionID int64) (*Progress, error) {
	result, err := cache.GetWithCached(
		ctx, r.cache, cacheKey(submissionID), r.ttl, r.emptyTTL,
		(*Progress).isEmpty,
		func(p *Progress) string {
			data, _ := json.Marshal(p)
			return string(data)
		},
		func(data string) (*Progress, error) {
			var p Progress
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, err
			}
			return &p, nil
		},
		func(ctx context.Context) (*Progress, error) {
			return r.fetch(ctx, submissionID)
		},
	)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, appErr.Newf(appErr.JudgeStatusNotFound, "submission %d not found", submissionID)
	}
	return result, nil
}

// GetBatch resolves many submission IDs at once. Missing IDs are
// simply absent from the returned map; the cache has no native
// multi-key get, so this loops Get one key at a time.
func (r *Reader) GetBatch(ctx context.Context, submissionIDs []int64) (map[int64]*Progress, error) {
	out := make(map[int64]*Progress, len(submissionIDs))
	for _, id := range submissionIDs {
		p, err := r.Get(ctx, id)
		if err != nil {
			if appErr.Is(err, appErr.JudgeStatusNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

// Invalidate drops the cached entry for a submission. The Gateway
// calls this after any write that changes progress/total_task/
// completed_task or inserts the final summary, so the next poll
// re-reads the database instead of serving a stale counter.
func (r *Reader) Invalidate(ctx context.Context, submissionID int64) error {
	return r.cache.Del(ctx, cacheKey(submissionID))
}

func (r *Reader) fetch(ctx context.Context, submissionID int64) (*Progress, error) {
	database, err := db.CurrentDatabase(r.dbProvider)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeTransientDB, "resolve current database failed")
	}

	var p Progress
	p.SubmissionID = submissionID
	var progress string
	row := database.QueryRow(ctx, `
		SELECT progress, total_task, completed_task FROM submissions WHERE id = ?
	`, submissionID)
	if err := row.Scan(&progress, &p.TotalTask, &p.CompletedTask); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.JudgeTransientDB, "select submission progress failed")
	}
	p.Progress = model.Progress(progress)

	if p.Progress != model.ProgressDone {
		return &p, nil
	}

	var summary model.SubmissionSummary
	summary.SubmissionID = submissionID
	var result string
	summaryRow := database.QueryRow(ctx, `
		SELECT batch_id, user_id, result, message, detail, score, time_ms, memory_kb
		FROM submission_summaries WHERE submission_id = ?
	`, submissionID)
	if err := summaryRow.Scan(&summary.BatchID, &summary.UserID, &result, &summary.Message,
		&summary.Detail, &summary.Score, &summary.TimeMS, &summary.MemoryKB); err != nil {
		if db.IsNoRows(err) {
			return &p, nil
		}
		return nil, appErr.Wrapf(err, appErr.JudgeTransientDB, "select submission summary failed")
	}
	summary.Result = model.Verdict(result)
	p.Summary = &summary

	return &p, nil
}
