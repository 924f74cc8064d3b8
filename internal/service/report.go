package service

import (
	"log/slog"
	"time"
)

// Step names recorded in a SyncReport.
const (
	StepWebhook      = "webhook"
	StepWalk         = "walk"
	StepForward      = "forward"
	StepShadow       = "shadow"
	StepIndexDelete  = "index_delete"
	StepWebhookClean = "webhook_remove"
)

// StepResult is the outcome of one best-effort side effect.
type StepResult struct {
	Step     string `json:"step"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
	Count    int    `json:"count,omitempty"`
	Duration int64  `json:"durationMs"`
}

// SyncReport collects StepResults for one workflow run. Steps never abort
// the run; failures are logged and recorded.
type SyncReport struct {
	Workflow string       `json:"workflow"`
	RepoID   string       `json:"repoId"`
	Steps    []StepResult `json:"steps"`
}

func newReport(workflow, repoID string) *SyncReport {
	return &SyncReport{Workflow: workflow, RepoID: repoID}
}

// record appends the outcome of a step started at start.
func (r *SyncReport) record(step string, start time.Time, count int, err error) {
	res := StepResult{
		Step:     step,
		OK:       err == nil,
		Count:    count,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
		slog.Error("sync step failed", "workflow", r.Workflow, "repo_id", r.RepoID, "step", step, "error", err)
	}
	r.Steps = append(r.Steps, res)
}

func (r *SyncReport) skip(step, reason string) {
	slog.Warn("sync step skipped", "workflow", r.Workflow, "repo_id", r.RepoID, "step", step, "reason", reason)
	r.Steps = append(r.Steps, StepResult{Step: step, Skipped: true, Error: reason})
}

// Step returns the recorded result for step, if any.
func (r *SyncReport) Step(step string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Failed reports whether any recorded step failed.
func (r *SyncReport) Failed() bool {
	for _, s := range r.Steps {
		if !s.OK && !s.Skipped {
			return true
		}
	}
	return false
}
