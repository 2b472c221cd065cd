package tracelog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tagbatch/internal/ir"
)

// Mismatch is one determinism failure found in a recorded run.
type Mismatch struct {
	Sweep  int    // index of the offending sweep
	Prior  int    // index of the sweep it was compared with, or -1
	Reason string // human-readable description
}

// RunCheck is the determinism analysis of one run.
type RunCheck struct {
	RunID      string
	Sweeps     int
	Compared   int // sweep pairs with equal epoch that were compared
	Mismatches []Mismatch
}

// OK reports whether the run passed every check.
func (c RunCheck) OK() bool { return len(c.Mismatches) == 0 }

// CheckRun verifies a recorded run:
//   - each stored outputs hash matches a hash recomputed from its outputs
//   - consecutive sweeps with the same epoch (no mutation in between)
//     produced the same outputs hash
func (s *Store) CheckRun(ctx context.Context, runID string) (RunCheck, error) {
	check := RunCheck{RunID: runID}

	sweeps, err := s.ReadSweeps(ctx, runID)
	if err != nil {
		return check, fmt.Errorf("check run: %w", err)
	}
	check.Sweeps = len(sweeps)

	for i, sw := range sweeps {
		hash, err := ir.OutputsHash(sw.OutputsValue())
		if err != nil {
			return check, fmt.Errorf("check run: sweep %d: %w", sw.Index, err)
		}
		if hash != sw.OutputsHash {
			check.Mismatches = append(check.Mismatches, Mismatch{
				Sweep:  sw.Index,
				Prior:  -1,
				Reason: fmt.Sprintf("stored outputs hash %s does not match outputs (%s)", short(sw.OutputsHash), short(hash)),
			})
		}
		if i == 0 {
			continue
		}
		prev := sweeps[i-1]
		if prev.Epoch != sw.Epoch {
			continue
		}
		check.Compared++
		if prev.OutputsHash != sw.OutputsHash {
			check.Mismatches = append(check.Mismatches, Mismatch{
				Sweep:  sw.Index,
				Prior:  prev.Index,
				Reason: fmt.Sprintf("epoch %d unchanged but outputs differ (%s != %s)", sw.Epoch, short(sw.OutputsHash), short(prev.OutputsHash)),
			})
		}
	}
	return check, nil
}

// CheckAll runs CheckRun on every recorded run, in recording order.
func (s *Store) CheckAll(ctx context.Context) ([]RunCheck, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	checks := make([]RunCheck, 0, len(runs))
	for _, r := range runs {
		c, err := s.CheckRun(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// CompareRuns compares two runs sweep by sweep. Runs of the same scenario
// with different worker counts must agree. Returns one Mismatch per
// differing sweep; a differing sweep count is reported at the first
// missing index.
func (s *Store) CompareRuns(ctx context.Context, a, b string) ([]Mismatch, error) {
	left, err := s.ReadSweeps(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	right, err := s.ReadSweeps(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}

	var out []Mismatch
	n := min(len(left), len(right))
	for i := range n {
		if left[i].OutputsHash != right[i].OutputsHash {
			out = append(out, Mismatch{
				Sweep:  left[i].Index,
				Prior:  right[i].Index,
				Reason: fmt.Sprintf("outputs differ (%s != %s)", short(left[i].OutputsHash), short(right[i].OutputsHash)),
			})
		}
	}
	if len(left) != len(right) {
		out = append(out, Mismatch{
			Sweep:  n,
			Prior:  -1,
			Reason: fmt.Sprintf("sweep count differs (%d != %d)", len(left), len(right)),
		})
	}
	return out, nil
}

// FindIncompleteRuns returns runs still marked running, which means the
// process exited before FinishRun.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE status = ?
		ORDER BY rowid ASC
	`, ir.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
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

// LastSeq returns the highest sweep seq recorded for a run, 0 if none.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM sweeps WHERE run_id = ?`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
