// Package pipeline implements the per-submission judge state machine:
// PreCheck -> Prepare -> Compile -> ArtifactCheck -> Judge -> Finalize.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fuzoj/internal/judge/check"
	"fuzoj/internal/judge/model"
	"fuzoj/internal/judge/sandbox"
	"fuzoj/internal/judge/sandbox/spec"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	imageCheckerLangGCC = "checker-lang-gcc"
	imageBinaryRunner   = "binary-runner"

	stdoutFile = "stdout.txt"
	stderrFile = "stderr.txt"

	compileWallTimeMs = 2000
	compileMemoryMB   = 512

	clipLength = 256

	msgMissingRequiredFile = "ファイルが存在しません"
	msgCompileFailed       = "ビルドに失敗しました"
	msgMissingArtifact     = "実行ファイルが出力されていません"
)

// Gateway is the slice of the Problem Store Gateway the pipeline needs.
type Gateway interface {
	FetchProblem(ctx context.Context, lectureID, assignmentID string) (model.Problem, error)
	FetchUploadedFiles(ctx context.Context, submissionID int64) ([]model.UploadedFile, error)
	UpdateSubmission(ctx context.Context, s model.Submission) error
	WriteSubmissionSummary(ctx context.Context, submission model.Submission, summary model.SubmissionSummary, results []model.JudgeResult) error
}

// SandboxService is the slice of the sandbox surface the pipeline needs.
type SandboxService interface {
	CreateVolume() (*sandbox.Volume, error)
	CreateContainer(image string, volume *sandbox.Volume) (*sandbox.Container, error)
	Kill(ctx context.Context, submissionID string) error
}

// Pipeline runs one submission through the judge state machine.
type Pipeline struct {
	gateway      Gateway
	sandboxSvc   SandboxService
	resourceRoot string
	log          *logger.Logger
}

// New builds a Pipeline. resourceRoot is RESOURCE_PATH: the root that
// arranged_files/stdin_path/stdout_path/stderr_path are resolved against.
func New(gateway Gateway, sandboxSvc SandboxService, resourceRoot string, log *logger.Logger) *Pipeline {
	return &Pipeline{gateway: gateway, sandboxSvc: sandboxSvc, resourceRoot: resourceRoot, log: log}
}

// run accumulates everything Finalize needs to persist in one shot.
type run struct {
	submission model.Submission
	results    []model.JudgeResult
	message    string
	aggregate  model.Verdict
	detail     []string
	score      int
}

// Run executes the full state machine for one submission and persists
// its outcome. Errors returned are infrastructure failures (DB, etc.);
// judge-domain failures (CE, WA, FN, ...) are captured in the written
// SubmissionSummary, not returned as an error.
func (p *Pipeline) Run(ctx context.Context, submission model.Submission) error {
	r := &run{submission: submission, aggregate: model.VerdictAC}

	problem, err := p.gateway.FetchProblem(ctx, submission.LectureID, submission.AssignmentID)
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to load problem", nil)
	}
	if problem.LectureID == "" {
		return p.finalize(ctx, r, model.VerdictIE, "problem not found", nil)
	}

	uploaded, err := p.gateway.FetchUploadedFiles(ctx, submission.ID)
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to load uploaded files", nil)
	}

	if missing := missingRequired(problem.Required, uploaded); len(missing) > 0 {
		return p.finalize(ctx, r, model.VerdictFN, msgMissingRequiredFile, missing)
	}

	volume, err := p.sandboxSvc.CreateVolume()
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to prepare sandbox volume", nil)
	}
	defer func() {
		if err := volume.Remove(); err != nil {
			p.log.WithContext(ctx).Warn("remove volume failed", zap.Error(err))
		}
	}()

	if err := p.stageFiles(volume, uploaded, problem.Arranged); err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to stage files", nil)
	}

	buildContainer, err := p.sandboxSvc.CreateContainer(imageCheckerLangGCC, volume)
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to start build container", nil)
	}

	compileOK, err := p.compile(ctx, r, buildContainer, problem.Built())
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "compile step failed", nil)
	}
	if !compileOK {
		return p.finalizeWith(ctx, r)
	}

	missingExec, err := p.artifactCheck(ctx, buildContainer, volume, problem.Executables)
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "artifact check failed", nil)
	}
	if len(missingExec) > 0 {
		return p.finalize(ctx, r, model.VerdictCE, msgMissingArtifact, missingExec)
	}

	runContainer, err := p.sandboxSvc.CreateContainer(imageBinaryRunner, volume)
	if err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "failed to start run container", nil)
	}

	if err := p.judge(ctx, r, runContainer, problem); err != nil {
		return p.finalize(ctx, r, model.VerdictIE, "judge step failed", nil)
	}

	return p.finalizeWith(ctx, r)
}

func (p *Pipeline) stageFiles(volume *sandbox.Volume, uploaded []model.UploadedFile, arranged []model.ArrangedFile) error {
	var paths []string
	for _, f := range uploaded {
		paths = append(paths, f.Path)
	}
	for _, f := range arranged {
		paths = append(paths, filepath.Join(p.resourceRoot, f.Path))
	}
	return volume.CopyFiles(paths)
}

func (p *Pipeline) compile(ctx context.Context, r *run, container *sandbox.Container, built []model.TestCase) (bool, error) {
	for _, tc := range built {
		argv, err := buildArgv(tc.Command, tc.Args)
		if err != nil {
			return false, err
		}

		res, execErr := container.Exec(ctx, submissionKey(r.submission.ID), sandbox.Task{
			ID:         fmt.Sprintf("compile-%d", tc.ID),
			Cmd:        argv,
			StdoutPath: stdoutFile,
			StderrPath: stderrFile,
			Limits: spec.ResourceLimit{
				WallTimeMs: compileWallTimeMs,
				MemoryMB:   compileMemoryMB,
			},
		})

		verdict := model.VerdictAC
		switch {
		case execErr != nil:
			verdict = model.VerdictIE
		case res.ExitCode != 0:
			verdict = model.VerdictCE
		}

		r.results = append(r.results, model.JudgeResult{
			SubmissionID: r.submission.ID,
			TestCaseID:   tc.ID,
			Result:       verdict,
			Command:      joinCommand(tc.Command, tc.Args),
			TimeMS:       res.TimeMS,
			MemoryKB:     res.MemoryKB,
			ExitCode:     res.ExitCode,
			Stdout:       res.Stdout,
			Stderr:       res.Stderr,
		})
		r.aggregate = model.MaxBySeverity(r.aggregate, verdict)
		if verdict == model.VerdictAC {
			r.score += tc.Score
		}

		r.submission.CompletedTask++
		if err := p.gateway.UpdateSubmission(ctx, r.submission); err != nil {
			p.log.WithContext(ctx).Warn("persist compile progress failed", zap.Error(err))
		}

		if verdict != model.VerdictAC {
			r.message = msgCompileFailed
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) artifactCheck(ctx context.Context, container *sandbox.Container, volume *sandbox.Volume, executables []model.Executable) ([]string, error) {
	res, err := container.Exec(ctx, "artifact-check", sandbox.Task{
		ID:         "artifact-check",
		Cmd:        []string{"ls", "-p"},
		StdoutPath: "artifact-check-stdout.txt",
		StderrPath: "artifact-check-stderr.txt",
	})
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		present[name] = true
	}

	var missing []string
	for _, e := range executables {
		if !present[e.Name] {
			missing = append(missing, e.Name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func (p *Pipeline) judge(ctx context.Context, r *run, container *sandbox.Container, problem model.Problem) error {
	for _, tc := range problem.Judge() {
		argv, err := buildArgv(tc.Command, tc.Args)
		if err != nil {
			return err
		}

		task := sandbox.Task{
			ID:         fmt.Sprintf("judge-%d", tc.ID),
			Cmd:        argv,
			StdoutPath: stdoutFile,
			StderrPath: stderrFile,
			Limits: spec.ResourceLimit{
				WallTimeMs: problem.TimeMS,
				MemoryMB:   problem.MemoryMB,
			},
		}
		if tc.StdinPath != "" {
			task.StdinPath = filepath.Join(p.resourceRoot, tc.StdinPath)
		}

		res, execErr := container.Exec(ctx, submissionKey(r.submission.ID), task)
		if execErr != nil {
			r.results = append(r.results, model.JudgeResult{
				SubmissionID: r.submission.ID,
				TestCaseID:   tc.ID,
				Result:       model.VerdictIE,
				Command:      joinCommand(tc.Command, tc.Args),
			})
			r.aggregate = model.MaxBySeverity(r.aggregate, model.VerdictIE)
			return execErr
		}

		verdict := classifyJudge(res, tc, problem, p.resourceRoot)

		r.results = append(r.results, model.JudgeResult{
			SubmissionID: r.submission.ID,
			TestCaseID:   tc.ID,
			Result:       verdict,
			Command:      joinCommand(tc.Command, tc.Args),
			TimeMS:       res.TimeMS,
			MemoryKB:     res.MemoryKB,
			ExitCode:     res.ExitCode,
			Stdout:       clip(res.Stdout, clipLength),
			Stderr:       clip(res.Stderr, clipLength),
		})
		r.aggregate = model.MaxBySeverity(r.aggregate, verdict)
		if verdict == model.VerdictAC {
			r.score += tc.Score
		} else {
			r.detail = append(r.detail, fmt.Sprintf("%s: %s (-%d)", tc.MessageOnFail, verdict, tc.Score))
		}

		r.submission.CompletedTask++
		if err := p.gateway.UpdateSubmission(ctx, r.submission); err != nil {
			p.log.WithContext(ctx).Warn("persist judge progress failed", zap.Error(err))
		}
	}
	return nil
}

// finalize forces a terminal verdict and message onto the run, then
// persists it. It's used both for failures that pre-date any
// JudgeResult row (PreCheck/Prepare) and for failures after compile
// rows exist (ArtifactCheck, or a compile/judge step that aborted
// partway through) — in the latter
// case r.results already holds rows from earlier testcases, and those
// rows (and their time/memory contribution via finalizeWith) are left
// untouched; only the aggregate verdict and message are overridden.
func (p *Pipeline) finalize(ctx context.Context, r *run, verdict model.Verdict, message string, missing []string) error {
	r.aggregate = verdict
	r.message = message
	if len(missing) > 0 {
		r.detail = []string{strings.Join(missing, " ")}
	}
	return p.finalizeWith(ctx, r)
}

func (p *Pipeline) finalizeWith(ctx context.Context, r *run) error {
	summary := model.SubmissionSummary{
		SubmissionID: r.submission.ID,
		BatchID:      r.submission.BatchID,
		UserID:       r.submission.UserID,
		Result:       r.aggregate,
		Message:      r.message,
		Detail:       strings.Join(r.detail, "\n"),
		Score:        r.score,
		TimeMS:       maxTimeMS(r.results),
		MemoryKB:     maxMemoryKB(r.results),
	}
	r.submission.Progress = model.ProgressDone
	r.submission.CompletedTask = len(r.results)
	if err := p.gateway.WriteSubmissionSummary(ctx, r.submission, summary, r.results); err != nil {
		return appErr.Wrapf(err, appErr.JudgeTransientDB, "write submission summary failed")
	}
	return nil
}

func missingRequired(required []model.RequiredFile, uploaded []model.UploadedFile) []string {
	have := make(map[string]bool, len(uploaded))
	for _, f := range uploaded {
		have[f.Basename()] = true
	}
	var missing []string
	for _, req := range required {
		if !have[req.Name] {
			missing = append(missing, req.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

func classifyJudge(res sandbox.TaskResult, tc model.TestCase, problem model.Problem, resourceRoot string) model.Verdict {
	switch {
	case res.TLE || (problem.TimeMS > 0 && res.TimeMS > problem.TimeMS):
		return model.VerdictTLE
	case res.MLE || (problem.MemoryMB > 0 && res.MemoryKB*1024+1024*1024 > problem.MemoryMB*1024*1024):
		return model.VerdictMLE
	}

	expectTerminateNormally := tc.ExitCode == 0
	if expectTerminateNormally && res.ExitCode != 0 {
		return model.VerdictRE
	}

	if tc.StdoutPath != "" && !matchesExpected(res.Stdout, resourceRoot, tc.StdoutPath) {
		return model.VerdictWA
	}
	if tc.StderrPath != "" && !matchesExpected(res.Stderr, resourceRoot, tc.StderrPath) {
		return model.VerdictWA
	}
	if !expectTerminateNormally && res.ExitCode == 0 {
		return model.VerdictWA
	}
	return model.VerdictAC
}

func matchesExpected(actual, resourceRoot, relPath string) bool {
	expected, err := os.ReadFile(filepath.Join(resourceRoot, relPath))
	if err != nil {
		return false
	}
	return check.Match(string(expected), actual)
}

func submissionKey(id int64) string {
	return fmt.Sprintf("submission-%d", id)
}

func joinCommand(command, args string) string {
	if args == "" {
		return command
	}
	return command + " " + args
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func maxTimeMS(results []model.JudgeResult) int64 {
	var max int64
	for _, r := range results {
		if r.TimeMS > max {
			max = r.TimeMS
		}
	}
	return max
}

func maxMemoryKB(results []model.JudgeResult) int64 {
	var max int64
	for _, r := range results {
		if r.MemoryKB > max {
			max = r.MemoryKB
		}
	}
	return max
}
