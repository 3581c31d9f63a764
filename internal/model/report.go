package model

import (
	"fmt"
	"time"
)

// UnitFailure is one unit a batch could not complete.
type UnitFailure struct {
	Unit   string `json:"unit" yaml:"unit"`
	Reason string `json:"reason" yaml:"reason"`
}

// BatchReport is the structured summary every batch operation returns.
type BatchReport struct {
	Operation string            `json:"operation" yaml:"operation"`
	DryRun    bool              `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Attempted int               `json:"attempted" yaml:"attempted"`
	Succeeded int               `json:"succeeded" yaml:"succeeded"`
	Failed    int               `json:"failed" yaml:"failed"`
	Skipped   int               `json:"skipped" yaml:"skipped"`
	Failures  []UnitFailure     `json:"failures,omitempty" yaml:"failures,omitempty"`
	Counters  map[string]int    `json:"counters,omitempty" yaml:"counters,omitempty"`
	Details   map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	StartedAt time.Time         `json:"started_at" yaml:"started_at"`
	Duration  time.Duration     `json:"duration" yaml:"duration"`
}

func NewBatchReport(operation string) *BatchReport {
	return &BatchReport{
		Operation: operation,
		Counters:  make(map[string]int),
		StartedAt: time.Now(),
	}
}

func (r *BatchReport) Success() {
	r.Attempted++
	r.Succeeded++
}

func (r *BatchReport) Fail(unit string, err error) {
	r.Attempted++
	r.Failed++
	r.Failures = append(r.Failures, UnitFailure{Unit: unit, Reason: err.Error()})
}

func (r *BatchReport) Skip() {
	r.Skipped++
}

func (r *BatchReport) Count(name string, n int) {
	r.Counters[name] += n
}

// Detail records a free-form note, e.g. the run id of a migration.
func (r *BatchReport) Detail(key, value string) {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
}

func (r *BatchReport) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

// Err returns a *PartialBatchFailure when any unit failed.
func (r *BatchReport) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return &PartialBatchFailure{Report: r}
}

// PartialBatchFailure wraps a report whose batch finished with failed units.
type PartialBatchFailure struct {
	Report *BatchReport
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("%s: %d of %d units failed", e.Report.Operation, e.Report.Failed, e.Report.Attempted)
}
