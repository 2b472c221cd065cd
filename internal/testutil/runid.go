package testutil

// FixedRunID returns the same run ID for every run. Scenario golden files
// are recorded with it.
//
// Unlike engine.FixedGenerator it never runs out. Safe for concurrent use.
type FixedRunID struct {
	id string
}

// DefaultRunID is used when NewFixedRunID gets an empty string.
const DefaultRunID = "test-run-00000000-0000-0000-0000-000000000001"

// NewFixedRunID creates a generator that always returns id.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed ID.
func (g *FixedRunID) Generate() string {
	return g.id
}
