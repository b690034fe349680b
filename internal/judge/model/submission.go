package model

import "time"

// Progress is the lifecycle state of a Submission row.
type Progress string

const (
	ProgressPending Progress = "pending"
	ProgressQueued  Progress = "queued"
	ProgressRunning Progress = "running"
	ProgressDone    Progress = "done"
)

// Submission is one judging job, one row in the queue.
type Submission struct {
	ID            int64
	Ts            time.Time
	BatchID       *string
	UserID        string
	LectureID     string
	AssignmentID  string
	Eval          bool
	Progress      Progress
	TotalTask     int
	CompletedTask int
}

// UploadedFile is one student-submitted file, immutable after intake.
type UploadedFile struct {
	ID           int64
	SubmissionID int64
	Path         string
}

// Basename returns the file's basename as staged into the sandbox
// volume, matching how PreCheck compares against RequiredFiles.
func (f UploadedFile) Basename() string {
	return basename(f.Path)
}

// Executable is a build artifact name that must exist after compile.
type Executable struct {
	LectureID    string
	AssignmentID string
	Name         string
}

// ArrangedFile is an instructor-supplied file staged into the sandbox.
type ArrangedFile struct {
	LectureID    string
	AssignmentID string
	Path         string
}

// RequiredFile is a filename that must appear in the upload set.
type RequiredFile struct {
	LectureID    string
	AssignmentID string
	Name         string
}

// TestCaseType distinguishes compile steps from execution steps.
type TestCaseType string

const (
	TestCaseBuilt TestCaseType = "Built"
	TestCaseJudge TestCaseType = "Judge"
)

// TestCase is one unit of work within a problem's execution plan.
type TestCase struct {
	ID             int64
	LectureID      string
	AssignmentID   string
	Eval           bool
	Type           TestCaseType
	Score          int
	Title          string
	Description    string
	MessageOnFail  string
	Command        string
	Args           string
	StdinPath      string
	StdoutPath     string
	StderrPath     string
	ExitCode       int
}

// Problem is identified by (LectureID, AssignmentID) and aggregates
// everything PreCheck through Judge needs; fetched eagerly so the
// pipeline makes no further reads during execution.
type Problem struct {
	LectureID    string
	AssignmentID string
	TimeMS       int64
	MemoryMB     int64
	Executables  []Executable
	Arranged     []ArrangedFile
	Required     []RequiredFile
	TestCases    []TestCase
}

// Built returns the problem's Built testcases in definition order.
func (p Problem) Built() []TestCase {
	return p.byType(TestCaseBuilt)
}

// Judge returns the problem's Judge testcases in definition order.
func (p Problem) Judge() []TestCase {
	return p.byType(TestCaseJudge)
}

func (p Problem) byType(t TestCaseType) []TestCase {
	out := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if tc.Type == t {
			out = append(out, tc)
		}
	}
	return out
}

// Verdict is the outcome of one testcase execution or an aggregated
// submission result. It is a tagged variant, not an ordinal: callers
// must go through Severity/MaxBySeverity rather than comparing values
// with < or >.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"
	VerdictOLE Verdict = "OLE"
	VerdictIE  Verdict = "IE"
	VerdictFN  Verdict = "FN"
)

var severityOrder = map[Verdict]int{
	VerdictAC:  0,
	VerdictWA:  1,
	VerdictTLE: 2,
	VerdictMLE: 3,
	VerdictRE:  4,
	VerdictCE:  5,
	VerdictOLE: 6,
	VerdictIE:  7,
	VerdictFN:  8,
}

// Severity returns the total-order rank of v. Unknown verdicts rank
// above FN so a programming mistake fails loud instead of silently
// winning an aggregation.
func Severity(v Verdict) int {
	if s, ok := severityOrder[v]; ok {
		return s
	}
	return len(severityOrder)
}

// MaxBySeverity returns the most severe verdict among seed and results;
// it returns seed when results is empty. This is the only sanctioned way to
// aggregate a set of testcase verdicts into a submission verdict.
func MaxBySeverity(seed Verdict, results ...Verdict) Verdict {
	max := seed
	for _, v := range results {
		if Severity(v) > Severity(max) {
			max = v
		}
	}
	return max
}

// JudgeResult is the outcome of one testcase execution, appended once
// per (SubmissionID, TestCaseID).
type JudgeResult struct {
	ID           int64
	Ts           time.Time
	SubmissionID int64
	TestCaseID   int64
	Result       Verdict
	Command      string
	TimeMS       int64
	MemoryKB     int64
	ExitCode     int
	Stdout       string
	Stderr       string
}

// SubmissionSummary is the one-per-completed-submission aggregate.
type SubmissionSummary struct {
	SubmissionID int64
	BatchID      *string
	UserID       string
	Result       Verdict
	Message      string
	Detail       string
	Score        int
	TimeMS       int64
	MemoryKB     int64
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
