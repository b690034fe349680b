package model_test

import (
	"testing"

	"fuzoj/internal/judge/model"
)

func TestSeverityTotalOrder(t *testing.T) {
	order := []model.Verdict{
		model.VerdictAC, model.VerdictWA, model.VerdictTLE, model.VerdictMLE,
		model.VerdictRE, model.VerdictCE, model.VerdictOLE, model.VerdictIE, model.VerdictFN,
	}
	for i := 1; i < len(order); i++ {
		if model.Severity(order[i-1]) >= model.Severity(order[i]) {
			t.Fatalf("expected %s < %s in severity, got %d >= %d",
				order[i-1], order[i], model.Severity(order[i-1]), model.Severity(order[i]))
		}
	}
}

func TestMaxBySeverity(t *testing.T) {
	tests := []struct {
		name string
		seed model.Verdict
		rest []model.Verdict
		want model.Verdict
	}{
		{"empty seeds AC", model.VerdictAC, nil, model.VerdictAC},
		{"single worse", model.VerdictAC, []model.Verdict{model.VerdictWA}, model.VerdictWA},
		{"mixed picks worst", model.VerdictAC, []model.Verdict{model.VerdictTLE, model.VerdictWA}, model.VerdictTLE},
		{"ce beats tle and wa", model.VerdictAC, []model.Verdict{model.VerdictTLE, model.VerdictWA, model.VerdictCE}, model.VerdictCE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := model.MaxBySeverity(tt.seed, tt.rest...); got != tt.want {
				t.Errorf("MaxBySeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProblemBuiltAndJudgeSplit(t *testing.T) {
	p := model.Problem{
		TestCases: []model.TestCase{
			{ID: 1, Type: model.TestCaseBuilt, Title: "compile"},
			{ID: 2, Type: model.TestCaseJudge, Title: "case1"},
			{ID: 3, Type: model.TestCaseJudge, Title: "case2"},
		},
	}
	if got := len(p.Built()); got != 1 {
		t.Fatalf("Built() len = %d, want 1", got)
	}
	if got := len(p.Judge()); got != 2 {
		t.Fatalf("Judge() len = %d, want 2", got)
	}
}

func TestUploadedFileBasename(t *testing.T) {
	f := model.UploadedFile{Path: "/uploads/123/main.c"}
	if got := f.Basename(); got != "main.c" {
		t.Errorf("Basename() = %q, want %q", got, "main.c")
	}
}
