package tracelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tagbatch/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, name, spec_hash, engine_version, workers, status, error`

func scanRun(row interface{ Scan(...any) error }) (ir.RunRecord, error) {
	var r ir.RunRecord
	err := row.Scan(&r.ID, &r.Name, &r.SpecHash, &r.EngineVersion, &r.Workers, &r.Status, &r.Error)
	return r, err
}

// ReadRun returns one run.
func (s *Store) ReadRun(ctx context.Context, runID string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, fmt.Errorf("read run %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run in the order they were recorded. Returns an
// empty slice (not nil) for an empty log.
func (s *Store) ListRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently recorded run.
func (s *Store) LatestRun(ctx context.Context) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// ReadSweeps returns the sweeps of a run ordered by index, each with its
// outputs in visit order.
func (s *Store) ReadSweeps(ctx context.Context, runID string) ([]ir.SweepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, seq, epoch, runs, lookups, passes, outputs_hash
		FROM sweeps
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}

	sweeps := []ir.SweepRecord{}
	for rows.Next() {
		sw := ir.SweepRecord{RunID: runID}
		var runsJSON string
		if err := rows.Scan(&sw.Index, &sw.Seq, &sw.Epoch, &runsJSON, &sw.Lookups, &sw.Passes, &sw.OutputsHash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sweep: %w", err)
		}
		if sw.Runs, err = unmarshalRuns(runsJSON); err != nil {
			rows.Close()
			return nil, err
		}
		sweeps = append(sweeps, sw)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate sweeps: %w", err)
	}
	// Outputs are read on the same connection, so the cursor must be closed.
	rows.Close()

	for i := range sweeps {
		outs, err := s.readOutputs(ctx, runID, sweeps[i].Index)
		if err != nil {
			return nil, err
		}
		sweeps[i].Outputs = outs
	}
	return sweeps, nil
}

func (s *Store) readOutputs(ctx context.Context, runID string, sweepIdx int) ([]ir.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, slot, value
		FROM outputs
		WHERE run_id = ? AND sweep_idx = ?
		ORDER BY pos ASC
	`, runID, sweepIdx)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	outs := []ir.OutputRecord{}
	for rows.Next() {
		var o ir.OutputRecord
		if err := rows.Scan(&o.ID, &o.Label, &o.Slot, &o.Value); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	return outs, nil
}

// RecordHistory returns every value recorded for one record ID in a run,
// oldest sweep first.
func (s *Store) RecordHistory(ctx context.Context, runID, id string) ([]ir.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, slot, value
		FROM outputs
		WHERE run_id = ? AND id = ?
		ORDER BY sweep_idx ASC, pos ASC
	`, runID, id)
	if err != nil {
		return nil, fmt.Errorf("query record history: %w", err)
	}
	defer rows.Close()

	outs := []ir.OutputRecord{}
	for rows.Next() {
		var o ir.OutputRecord
		if err := rows.Scan(&o.ID, &o.Label, &o.Slot, &o.Value); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record history: %w", err)
	}
	return outs, nil
}
