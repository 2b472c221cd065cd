package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tagbatch/internal/ir"
)

// ErrGoldenMismatch is returned by CompareGolden when the trace differs.
var ErrGoldenMismatch = errors.New("trace does not match golden file")

// Snapshot renders the canonical JSON trace of a scenario result. Run IDs
// are left out, so a snapshot depends only on the steps and the variant
// set.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = e.ToValue()
	}
	return ir.MarshalCanonical(ir.Object{
		"scenario":  ir.String(name),
		"spec_hash": ir.String(result.SpecHash),
		"trace":     trace,
	})
}

// GoldenPath returns <dir>/<name>.golden.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// RunWithGolden runs scenario and compares its trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, "testdata/golden", scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against <dir>/<name>.golden.
func AssertGolden(t *testing.T, dir, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// CompareGolden compares a result against its golden file outside of a
// test. Returns os.ErrNotExist (wrapped) if there is no golden file.
func CompareGolden(dir, name string, result *Result) error {
	want, err := os.ReadFile(GoldenPath(dir, name))
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	got, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return ErrGoldenMismatch
	}
	return nil
}

// UpdateGolden writes the result's snapshot as the golden file.
func UpdateGolden(dir, name string, result *Result) error {
	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
