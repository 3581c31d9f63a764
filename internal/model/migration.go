package model

import "time"

// UnitState is the progress of one migration unit.
type UnitState string

const (
	// UnitPlanned means old and new paths are computed and nothing moved yet.
	UnitPlanned UnitState = "planned"

	// UnitCopied means the destination object exists and was verified.
	UnitCopied UnitState = "copied"

	// UnitIndexUpdated means every index row points at the new location.
	// The old object may still exist; that only costs storage.
	UnitIndexUpdated UnitState = "index_updated"

	// UnitOldDeleted is the terminal success state.
	UnitOldDeleted UnitState = "old_deleted"

	// UnitFailed means a step before the index update failed and the old
	// path is still authoritative.
	UnitFailed UnitState = "failed"
)

// IsTerminal returns true for states a run never leaves.
func (s UnitState) IsTerminal() bool {
	return s == UnitOldDeleted || s == UnitFailed
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s UnitState) CanTransitionTo(target UnitState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case UnitPlanned:
		return target == UnitCopied || target == UnitFailed
	case UnitCopied:
		return target == UnitIndexUpdated || target == UnitFailed
	case UnitIndexUpdated:
		// A failed delete leaves the unit here; it never rolls back.
		return target == UnitOldDeleted
	default:
		return false
	}
}

// Resumable reports whether a checkpoint in this state can be continued
// by a new run. Anything before the index update restarts from planned,
// and an old_deleted unit whose old path holds an object again is a new
// move of new bytes.
func (s UnitState) Resumable() bool {
	return s == UnitIndexUpdated
}

// MigrationUnit is one file moved by the path migrator.
type MigrationUnit struct {
	OldPath   string    `db:"old_path" json:"old_path" yaml:"old_path"`
	NewPath   string    `db:"new_path" json:"new_path" yaml:"new_path"`
	State     UnitState `db:"state" json:"state" yaml:"state"`
	RunID     string    `db:"run_id" json:"run_id" yaml:"run_id"`
	Error     string    `db:"error" json:"error,omitempty" yaml:"error,omitempty"`
	RowsMoved int       `db:"rows_moved" json:"rows_moved" yaml:"rows_moved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" yaml:"updated_at"`
}
