package tracelog

import (
	"context"
	"fmt"

	"github.com/roach88/tagbatch/internal/ir"
)

// RecordRun inserts a run. A duplicate run ID is an error: run IDs are
// UUIDv7 and never reused.
func (s *Store) RecordRun(ctx context.Context, run ir.RunRecord) error {
	status := run.Status
	if status == "" {
		status = ir.RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, spec_hash, engine_version, workers, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Name,
		run.SpecHash,
		run.EngineVersion,
		run.Workers,
		status,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordSweep inserts a sweep and its outputs in one transaction.
//
// Uses ON CONFLICT DO NOTHING on (run_id, idx): recording the same sweep
// twice is a no-op.
func (s *Store) RecordSweep(ctx context.Context, sweep ir.SweepRecord) error {
	runsJSON, err := marshalRuns(sweep.Runs)
	if err != nil {
		return fmt.Errorf("record sweep: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record sweep: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sweeps
		(run_id, idx, seq, epoch, runs, lookups, passes, outputs_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		sweep.RunID,
		sweep.Index,
		sweep.Seq,
		sweep.Epoch,
		runsJSON,
		sweep.Lookups,
		sweep.Passes,
		sweep.OutputsHash,
	)
	if err != nil {
		return fmt.Errorf("record sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record sweep: rows affected: %w", err)
	}
	if n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outputs
		(run_id, sweep_idx, pos, id, label, slot, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record sweep: prepare outputs: %w", err)
	}
	defer stmt.Close()

	for pos, out := range sweep.Outputs {
		if _, err := stmt.ExecContext(ctx,
			sweep.RunID, sweep.Index, pos, out.ID, out.Label, out.Slot, out.Value,
		); err != nil {
			return fmt.Errorf("record sweep: output %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record sweep: commit: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ? WHERE id = ?
	`, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", runID, ErrRunNotFound)
	}
	return nil
}
