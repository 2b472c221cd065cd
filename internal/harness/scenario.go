package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one harness run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Variants lists CUE files holding the variant set. Relative paths are
	// resolved against the scenario file's directory.
	Variants []string `yaml:"variants"`

	// Workers > 1 dispatches sweeps in parallel.
	Workers int `yaml:"workers,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine step. Exactly one of the step fields is set.
type Step struct {
	Insert *InsertStep `yaml:"insert,omitempty"`
	Fill   *FillStep   `yaml:"fill,omitempty"`
	Remove *RemoveStep `yaml:"remove,omitempty"`
	Write  *WriteStep  `yaml:"write,omitempty"`
	Sweep  *SweepStep  `yaml:"sweep,omitempty"`

	// Error is the code the step must fail with, in either form:
	// InvalidHandle or INVALID_HANDLE.
	Error string `yaml:"error,omitempty"`
}

// InsertStep binds ID to a new record.
type InsertStep struct {
	ID      string             `yaml:"id"`
	Variant string             `yaml:"variant"`
	Fields  map[string]float64 `yaml:"fields,omitempty"`
}

// FillStep inserts Count records named IDPrefix0, IDPrefix1, ... cycling
// through Cycle.
type FillStep struct {
	Count    int            `yaml:"count"`
	IDPrefix string         `yaml:"id_prefix"`
	Cycle    []FillTemplate `yaml:"cycle"`
}

// FillTemplate is one entry of a fill cycle.
type FillTemplate struct {
	Variant string             `yaml:"variant"`
	Fields  map[string]float64 `yaml:"fields,omitempty"`
}

// RemoveStep removes the record behind ID.
type RemoveStep struct {
	ID string `yaml:"id"`
}

// WriteStep overwrites the fields of the record behind ID.
type WriteStep struct {
	ID     string             `yaml:"id"`
	Fields map[string]float64 `yaml:"fields,omitempty"`
}

// SweepStep runs a sweep and optionally checks output values by ID.
type SweepStep struct {
	Expect map[string]float64 `yaml:"expect,omitempty"`

	// Tolerance is the allowed absolute difference. Zero means
	// DefaultTolerance.
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// DefaultTolerance applies when a sweep step sets none.
const DefaultTolerance = 1e-6

// Step kinds, as they appear in traces.
const (
	KindInsert = "insert"
	KindFill   = "fill"
	KindRemove = "remove"
	KindWrite  = "write"
	KindSweep  = "sweep"
)

// Kind names the step, or returns "" if not exactly one step field is set.
func (s Step) Kind() string {
	kind, n := "", 0
	if s.Insert != nil {
		kind, n = KindInsert, n+1
	}
	if s.Fill != nil {
		kind, n = KindFill, n+1
	}
	if s.Remove != nil {
		kind, n = KindRemove, n+1
	}
	if s.Write != nil {
		kind, n = KindWrite, n+1
	}
	if s.Sweep != nil {
		kind, n = KindSweep, n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Assertion checks final engine state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is used by live_count, run_count and lookups.
	Count int `yaml:"count,omitempty"`

	// ID is used by handle_valid and handle_invalid.
	ID string `yaml:"id,omitempty"`

	// IDs is the expected visit order of the last sweep (sweep_order).
	IDs []string `yaml:"ids,omitempty"`
}

// Assertion types.
const (
	AssertLiveCount     = "live_count"
	AssertRunCount      = "run_count"
	AssertLookups       = "lookups"
	AssertHandleValid   = "handle_valid"
	AssertHandleInvalid = "handle_invalid"
	AssertSweepOrder    = "sweep_order"
)

// LoadScenario reads a scenario file, resolving variant paths against its
// directory. Unknown YAML fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving relative
// variant paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Variants {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Variants[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Variants) == 0 {
		return fmt.Errorf("variants list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	for _, p := range s.Variants {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("variant file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s Step) error {
	switch s.Kind() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of insert, fill, remove, write, sweep is required", i)
	case KindInsert:
		if s.Insert.ID == "" {
			return fmt.Errorf("steps[%d].insert: id is required", i)
		}
		if s.Insert.Variant == "" {
			return fmt.Errorf("steps[%d].insert: variant is required", i)
		}
	case KindFill:
		if s.Fill.Count <= 0 {
			return fmt.Errorf("steps[%d].fill: count must be positive", i)
		}
		if s.Fill.IDPrefix == "" {
			return fmt.Errorf("steps[%d].fill: id_prefix is required", i)
		}
		if len(s.Fill.Cycle) == 0 {
			return fmt.Errorf("steps[%d].fill: cycle must be non-empty", i)
		}
	case KindRemove:
		if s.Remove.ID == "" {
			return fmt.Errorf("steps[%d].remove: id is required", i)
		}
	case KindWrite:
		if s.Write.ID == "" {
			return fmt.Errorf("steps[%d].write: id is required", i)
		}
	case KindSweep:
		if s.Sweep.Tolerance < 0 {
			return fmt.Errorf("steps[%d].sweep: tolerance must be non-negative", i)
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	case AssertLiveCount, AssertRunCount, AssertLookups:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", i, a.Type)
		}
	case AssertHandleValid, AssertHandleInvalid:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", i, a.Type)
		}
	case AssertSweepOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids list is required for sweep_order", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
