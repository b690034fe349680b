// Package gateway implements the read/write contract between the judge
// pipeline and the relational store: queue leasing, crash recovery, and
// the persisted-progress / result writes.
package gateway

import (
	"context"
	"strings"
	"time"

	"fuzoj/internal/common/db"
	"fuzoj/internal/judge/model"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// StatusInvalidator drops a cached progress read after the Gateway
// changes a submission's progress/total_task/completed_task, so a
// poller never serves a stale counter past its TTL. Satisfied by
// *status.Reader; optional, nil is a valid no-op Gateway.
type StatusInvalidator interface {
	Invalidate(ctx context.Context, submissionID int64) error
}

// Gateway is the Problem Store Gateway (C2): a read-only view of
// Problem/TestCases/ArrangedFiles/RequiredFiles/Executables, and the
// write side for Submission/JudgeResult/SubmissionSummary.
type Gateway struct {
	database db.Database
	log      *logger.Logger
	status   StatusInvalidator
}

// New creates a Gateway bound to database, logging through log.
func New(database db.Database, log *logger.Logger) *Gateway {
	return &Gateway{database: database, log: log}
}

// WithStatusInvalidator attaches a status cache to invalidate whenever
// this Gateway changes a submission's progress.
func (g *Gateway) WithStatusInvalidator(status StatusInvalidator) *Gateway {
	g.status = status
	return g
}

func (g *Gateway) invalidateStatus(ctx context.Context, submissionID int64) {
	if g.status == nil {
		return
	}
	if err := g.status.Invalidate(ctx, submissionID); err != nil {
		g.log.WithContext(ctx).Warn("invalidate submission status cache failed", zap.Int64("submission_id", submissionID), zap.Error(err))
	}
}

// LeaseQueued selects up to n queued submissions, flips them to
// running (computing total_task along the way) and returns the
// hydrated rows. Errors are logged and swallowed: the scheduler never
// sees a lease failure as fatal, it just gets an empty batch.
func (g *Gateway) LeaseQueued(ctx context.Context, n int) []model.Submission {
	if n <= 0 {
		return nil
	}
	var leased []model.Submission
	err := g.database.Transaction(ctx, func(tx db.Transaction) error {
		rows, err := tx.Query(ctx, `
			SELECT id, ts, batch_id, user_id, lecture_id, assignment_id, eval
			FROM submissions
			WHERE progress = 'queued'
			ORDER BY id ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, n)
		if err != nil {
			return appErr.Wrapf(err, appErr.JudgeLeaseFailed, "select queued submissions failed")
		}
		var batch []model.Submission
		for rows.Next() {
			var s model.Submission
			var batchID *string
			if err := rows.Scan(&s.ID, &s.Ts, &batchID, &s.UserID, &s.LectureID, &s.AssignmentID, &s.Eval); err != nil {
				rows.Close()
				return appErr.Wrapf(err, appErr.JudgeLeaseFailed, "scan queued submission failed")
			}
			s.BatchID = batchID
			s.Progress = model.ProgressQueued
			batch = append(batch, s)
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return appErr.Wrapf(rowsErr, appErr.JudgeLeaseFailed, "iterate queued submissions failed")
		}

		for i := range batch {
			total, err := countTestCases(ctx, tx, batch[i].LectureID, batch[i].AssignmentID, batch[i].Eval)
			if err != nil {
				return err
			}
			batch[i].TotalTask = total
			batch[i].CompletedTask = 0
			batch[i].Progress = model.ProgressRunning

			if _, err := tx.Exec(ctx, `
				UPDATE submissions
				SET progress = 'running', total_task = ?, completed_task = 0
				WHERE id = ?
			`, total, batch[i].ID); err != nil {
				return appErr.Wrapf(err, appErr.JudgeLeaseFailed, "update leased submission failed")
			}
		}
		leased = batch
		return nil
	})
	if err != nil {
		g.log.WithContext(ctx).Error("lease queued submissions failed", zap.Error(err))
		return nil
	}
	return leased
}

func countTestCases(ctx context.Context, tx db.Transaction, lectureID, assignmentID string, eval bool) (int, error) {
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM test_cases
		WHERE lecture_id = ? AND assignment_id = ? AND (eval = ? OR eval = 0)
	`, lectureID, assignmentID, eval)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, appErr.Wrapf(err, appErr.JudgeLeaseFailed, "count testcases failed")
	}
	return total, nil
}

// UndoRunning resets every running submission back to queued and
// deletes its partial JudgeResult/SubmissionSummary rows, in one
// transaction. Called at service start and on clean shutdown so
// in-flight work is reprocessed cleanly.
func (g *Gateway) UndoRunning(ctx context.Context) error {
	err := g.database.Transaction(ctx, func(tx db.Transaction) error {
		rows, err := tx.Query(ctx, `SELECT id FROM submissions WHERE progress = 'running'`)
		if err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "select running submissions failed")
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return appErr.Wrapf(err, appErr.JudgeTransientDB, "scan running submission failed")
			}
			ids = append(ids, id)
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return appErr.Wrapf(rowsErr, appErr.JudgeTransientDB, "iterate running submissions failed")
		}
		if len(ids) == 0 {
			return nil
		}

		placeholders, args := inClause(ids)
		if _, err := tx.Exec(ctx, `UPDATE submissions SET progress = 'queued' WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "reset running submissions failed")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM judge_results WHERE submission_id IN (`+placeholders+`)`, args...); err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "delete partial judge results failed")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM submission_summaries WHERE submission_id IN (`+placeholders+`)`, args...); err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "delete partial summaries failed")
		}
		return nil
	})
	if err != nil {
		g.log.WithContext(ctx).Error("undo running submissions failed", zap.Error(err))
		return err
	}
	return nil
}

func inClause(ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// FetchProblem returns the fully populated problem aggregate for
// (lectureID, assignmentID): executables, arranged/required files, and
// testcases, in one round of reads. The pipeline does not touch the
// database again for reads after this call, only for writes.
func (g *Gateway) FetchProblem(ctx context.Context, lectureID, assignmentID string) (model.Problem, error) {
	problem := model.Problem{LectureID: lectureID, AssignmentID: assignmentID}

	row := g.database.QueryRow(ctx, `
		SELECT time_ms, memory_mb FROM problems WHERE lecture_id = ? AND assignment_id = ?
	`, lectureID, assignmentID)
	if err := row.Scan(&problem.TimeMS, &problem.MemoryMB); err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, nil
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.JudgeProblemMissing, "fetch problem failed")
	}

	var err error
	if problem.Executables, err = g.fetchExecutables(ctx, lectureID, assignmentID); err != nil {
		return model.Problem{}, err
	}
	if problem.Arranged, err = g.fetchArrangedFiles(ctx, lectureID, assignmentID); err != nil {
		return model.Problem{}, err
	}
	if problem.Required, err = g.fetchRequiredFiles(ctx, lectureID, assignmentID); err != nil {
		return model.Problem{}, err
	}
	if problem.TestCases, err = g.fetchTestCases(ctx, lectureID, assignmentID); err != nil {
		return model.Problem{}, err
	}
	return problem, nil
}

func (g *Gateway) fetchExecutables(ctx context.Context, lectureID, assignmentID string) ([]model.Executable, error) {
	rows, err := g.database.Query(ctx, `
		SELECT name FROM executables WHERE lecture_id = ? AND assignment_id = ?
	`, lectureID, assignmentID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "fetch executables failed")
	}
	defer rows.Close()
	var out []model.Executable
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "scan executable failed")
		}
		out = append(out, model.Executable{LectureID: lectureID, AssignmentID: assignmentID, Name: name})
	}
	return out, rows.Err()
}

func (g *Gateway) fetchArrangedFiles(ctx context.Context, lectureID, assignmentID string) ([]model.ArrangedFile, error) {
	rows, err := g.database.Query(ctx, `
		SELECT path FROM arranged_files WHERE lecture_id = ? AND assignment_id = ?
	`, lectureID, assignmentID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "fetch arranged files failed")
	}
	defer rows.Close()
	var out []model.ArrangedFile
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "scan arranged file failed")
		}
		out = append(out, model.ArrangedFile{LectureID: lectureID, AssignmentID: assignmentID, Path: path})
	}
	return out, rows.Err()
}

func (g *Gateway) fetchRequiredFiles(ctx context.Context, lectureID, assignmentID string) ([]model.RequiredFile, error) {
	rows, err := g.database.Query(ctx, `
		SELECT name FROM required_files WHERE lecture_id = ? AND assignment_id = ?
	`, lectureID, assignmentID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "fetch required files failed")
	}
	defer rows.Close()
	var out []model.RequiredFile
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "scan required file failed")
		}
		out = append(out, model.RequiredFile{LectureID: lectureID, AssignmentID: assignmentID, Name: name})
	}
	return out, rows.Err()
}

func (g *Gateway) fetchTestCases(ctx context.Context, lectureID, assignmentID string) ([]model.TestCase, error) {
	rows, err := g.database.Query(ctx, `
		SELECT id, eval, type, score, title, description, message_on_fail,
		       command, args, stdin_path, stdout_path, stderr_path, exit_code
		FROM test_cases
		WHERE lecture_id = ? AND assignment_id = ?
		ORDER BY id ASC
	`, lectureID, assignmentID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "fetch testcases failed")
	}
	defer rows.Close()
	var out []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		var tcType string
		if err := rows.Scan(&tc.ID, &tc.Eval, &tcType, &tc.Score, &tc.Title, &tc.Description,
			&tc.MessageOnFail, &tc.Command, &tc.Args, &tc.StdinPath, &tc.StdoutPath, &tc.StderrPath, &tc.ExitCode); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeProblemMissing, "scan testcase failed")
		}
		tc.LectureID = lectureID
		tc.AssignmentID = assignmentID
		tc.Type = model.TestCaseType(tcType)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// FetchUploadedFiles returns the student-uploaded files for a submission.
func (g *Gateway) FetchUploadedFiles(ctx context.Context, submissionID int64) ([]model.UploadedFile, error) {
	rows, err := g.database.Query(ctx, `
		SELECT id, path FROM uploaded_files WHERE submission_id = ?
	`, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeTransientDB, "fetch uploaded files failed")
	}
	defer rows.Close()
	var out []model.UploadedFile
	for rows.Next() {
		var f model.UploadedFile
		if err := rows.Scan(&f.ID, &f.Path); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeTransientDB, "scan uploaded file failed")
		}
		f.SubmissionID = submissionID
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateSubmission persists the mutable progress/total_task/completed_task
// triple for one submission.
func (g *Gateway) UpdateSubmission(ctx context.Context, s model.Submission) error {
	_, err := g.database.Exec(ctx, `
		UPDATE submissions
		SET progress = ?, total_task = ?, completed_task = ?
		WHERE id = ?
	`, string(s.Progress), s.TotalTask, s.CompletedTask, s.ID)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeTransientDB, "update submission failed")
	}
	g.invalidateStatus(ctx, s.ID)
	return nil
}

// WriteJudgeResult appends one JudgeResult row.
func (g *Gateway) WriteJudgeResult(ctx context.Context, r model.JudgeResult) error {
	if r.Ts.IsZero() {
		r.Ts = time.Now()
	}
	_, err := g.database.Exec(ctx, `
		INSERT INTO judge_results
			(ts, submission_id, testcase_id, result, command, time_ms, memory_kb, exit_code, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Ts, r.SubmissionID, r.TestCaseID, string(r.Result), r.Command, r.TimeMS, r.MemoryKB, r.ExitCode, r.Stdout, r.Stderr)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeTransientDB, "write judge result failed")
	}
	return nil
}

// WriteSubmissionSummary writes the summary and all accumulated
// JudgeResult rows atomically, and flips progress to done.
func (g *Gateway) WriteSubmissionSummary(ctx context.Context, submission model.Submission, summary model.SubmissionSummary, results []model.JudgeResult) error {
	err := g.database.Transaction(ctx, func(tx db.Transaction) error {
		for _, r := range results {
			ts := r.Ts
			if ts.IsZero() {
				ts = time.Now()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO judge_results
					(ts, submission_id, testcase_id, result, command, time_ms, memory_kb, exit_code, stdout, stderr)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, ts, r.SubmissionID, r.TestCaseID, string(r.Result), r.Command, r.TimeMS, r.MemoryKB, r.ExitCode, r.Stdout, r.Stderr); err != nil {
				return appErr.Wrapf(err, appErr.JudgeTransientDB, "write judge result in summary tx failed")
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO submission_summaries
				(submission_id, batch_id, user_id, result, message, detail, score, time_ms, memory_kb)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, summary.SubmissionID, summary.BatchID, summary.UserID, string(summary.Result),
			summary.Message, summary.Detail, summary.Score, summary.TimeMS, summary.MemoryKB); err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "write submission summary failed")
		}
		if _, err := tx.Exec(ctx, `
			UPDATE submissions SET progress = 'done', total_task = ?, completed_task = ? WHERE id = ?
		`, submission.TotalTask, submission.CompletedTask, submission.ID); err != nil {
			return appErr.Wrapf(err, appErr.JudgeTransientDB, "finalize submission failed")
		}
		return nil
	})
	if err == nil {
		g.invalidateStatus(ctx, submission.ID)
	}
	return err
}
