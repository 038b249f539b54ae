package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kinstore/internal/fixture"
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// Scenario defines a store conformance scenario.
// A scenario seeds a fresh store from fixtures, runs a flow of
// transactions, undo, redo and rebuild steps, and asserts on the final
// records, indices and reference map.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the storage engine. Empty means SQLite.
	Backend string `yaml:"backend,omitempty"`

	// UndoLimit bounds the undo stack. Zero keeps the store default.
	UndoLimit int `yaml:"undo_limit,omitempty"`

	// Fixtures lists fixture files applied before the flow, each as one
	// transaction. Paths are relative to the scenario file.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one flow step. Exactly one of Transaction, Undo, Redo and
// Rebuild is set.
type Step struct {
	// Transaction is the description of a transaction that applies Add,
	// Update and Remove in that order.
	Transaction string `yaml:"transaction,omitempty"`

	// Batch opens the transaction in batch mode.
	Batch bool `yaml:"batch,omitempty"`

	// Add commits new records. Missing handles and ids are generated.
	Add []fixture.Record `yaml:"add,omitempty"`

	// Update replaces stored records wholesale.
	Update []fixture.Record `yaml:"update,omitempty"`

	// Remove deletes records.
	Remove []RecordRef `yaml:"remove,omitempty"`

	// Abort ends the transaction with Abort instead of Commit.
	Abort bool `yaml:"abort,omitempty"`

	Undo    bool `yaml:"undo,omitempty"`
	Redo    bool `yaml:"redo,omitempty"`
	Rebuild bool `yaml:"rebuild,omitempty"`

	// Expect validates the outcome of the step. If nil, the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// op names what the step does.
func (s *Step) op() string {
	switch {
	case s.Undo:
		return OpUndo
	case s.Redo:
		return OpRedo
	case s.Rebuild:
		return OpRebuild
	case s.Abort:
		return OpAbort
	default:
		return OpCommit
	}
}

// Step operations as they appear in the trace.
const (
	OpCommit  = "commit"
	OpAbort   = "abort"
	OpUndo    = "undo"
	OpRedo    = "redo"
	OpRebuild = "rebuild"
)

// RecordRef names a stored record.
type RecordRef struct {
	Kind   record.Kind   `yaml:"kind"`
	Handle record.Handle `yaml:"handle"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error class: not_found, decode,
	// referential_inconsistency, transaction_abort, nothing_to_undo,
	// nothing_to_redo or transaction_open. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Changes is the exact change list the step must return, in order.
	Changes []ChangeSpec `yaml:"changes,omitempty"`
}

// ChangeSpec is one expected change.
type ChangeSpec struct {
	Kind   record.Kind   `yaml:"kind"`
	Handle record.Handle `yaml:"handle"`
	Action store.Action  `yaml:"action"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "backlinks": Target's backlinks, optionally filtered by Kinds, equal Refs
	// - "references": the references owned by Handle equal Refs
	// - "record_exists" / "record_absent": Kind and Handle
	// - "by_id": the record of Kind with natural key ID has Handle
	// - "surnames": the cached surname list equals Names
	// - "surname_handles": the persons filed under Surname equal Handles
	// - "count": Kind has Count records
	// - "undo_depth": the undo stack holds Count frames
	// - "consistent": a full check finds no problem
	Type string `yaml:"type"`

	Kind    record.Kind     `yaml:"kind,omitempty"`
	Kinds   []record.Kind   `yaml:"kinds,omitempty"`
	Handle  record.Handle   `yaml:"handle,omitempty"`
	Target  record.Handle   `yaml:"target,omitempty"`
	ID      string          `yaml:"id,omitempty"`
	Surname string          `yaml:"surname,omitempty"`
	Refs    []record.Ref    `yaml:"refs,omitempty"`
	Names   []string        `yaml:"names,omitempty"`
	Handles []record.Handle `yaml:"handles,omitempty"`

	// Count is a pointer so that an explicit zero can be told from a
	// missing value.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBacklinks      = "backlinks"
	AssertReferences     = "references"
	AssertRecordExists   = "record_exists"
	AssertRecordAbsent   = "record_absent"
	AssertByID           = "by_id"
	AssertSurnames       = "surnames"
	AssertSurnameHandles = "surname_handles"
	AssertCount          = "count"
	AssertUndoDepth      = "undo_depth"
	AssertConsistent     = "consistent"
)

// errorClasses lists the error classes accepted by ExpectClause.Error, most
// specific first.
var errorClasses = []struct {
	name  string
	match func(error) bool
}{
	{"decode", store.IsDecodeError},
	{"referential_inconsistency", store.IsReferentialInconsistency},
	{"not_found", store.IsNotFound},
	{"transaction_abort", store.IsTransactionAbort},
	{"nothing_to_undo", isErr(store.ErrNothingToUndo)},
	{"nothing_to_redo", isErr(store.ErrNothingToRedo)},
	{"transaction_open", isErr(store.ErrTransactionOpen)},
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// errorClass names the first class err belongs to, or "error".
func errorClass(err error) string {
	for _, c := range errorClasses {
		if c.match(err) {
			return c.name
		}
	}
	return "error"
}

func knownErrorClass(name string) bool {
	for _, c := range errorClasses {
		if c.name == name {
			return true
		}
	}
	return false
}

// LoadScenario reads and parses a scenario YAML file. Fixture paths are
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Fixtures {
		if !filepath.IsAbs(p) {
			scenario.Fixtures[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "", store.BackendSQLite, store.BackendBadger:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.UndoLimit < 0 {
		return fmt.Errorf("undo_limit must be non-negative")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, p := range s.Fixtures {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", p)
		}
	}

	for i := range s.Flow {
		if err := validateStep(i, &s.Flow[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	for _, on := range []bool{st.Transaction != "", st.Undo, st.Redo, st.Rebuild} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of transaction, undo, redo and rebuild is required", index)
	}
	if st.Transaction == "" {
		if st.Batch || st.Abort || len(st.Add)+len(st.Update)+len(st.Remove) > 0 {
			return fmt.Errorf("flow[%d]: batch, abort, add, update and remove need a transaction", index)
		}
	} else if len(st.Add)+len(st.Update)+len(st.Remove) == 0 {
		return fmt.Errorf("flow[%d]: transaction %q has no add, update or remove", index, st.Transaction)
	}
	for j, r := range st.Add {
		if !r.Kind.Valid() {
			return fmt.Errorf("flow[%d].add[%d]: kind is required", index, j)
		}
	}
	for j, r := range st.Update {
		if !r.Kind.Valid() {
			return fmt.Errorf("flow[%d].update[%d]: kind is required", index, j)
		}
		if h, _ := r.Fields["handle"].(string); h == "" {
			return fmt.Errorf("flow[%d].update[%d]: handle is required", index, j)
		}
	}
	for j, r := range st.Remove {
		if !r.Kind.Valid() || r.Handle == "" {
			return fmt.Errorf("flow[%d].remove[%d]: kind and handle are required", index, j)
		}
	}
	if st.Expect != nil && st.Expect.Error != "" {
		if !knownErrorClass(st.Expect.Error) {
			return fmt.Errorf("flow[%d].expect: unknown error class %q", index, st.Expect.Error)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBacklinks:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for backlinks", index)
		}
	case AssertReferences:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for references", index)
		}
	case AssertRecordExists, AssertRecordAbsent:
		if !a.Kind.Valid() || a.Handle == "" {
			return fmt.Errorf("assertions[%d]: kind and handle are required for %s", index, a.Type)
		}
	case AssertByID:
		if !a.Kind.Valid() || a.ID == "" || a.Handle == "" {
			return fmt.Errorf("assertions[%d]: kind, id and handle are required for by_id", index)
		}
	case AssertSurnames:
	case AssertSurnameHandles:
		if a.Surname == "" {
			return fmt.Errorf("assertions[%d]: surname is required for surname_handles", index)
		}
	case AssertCount:
		if !a.Kind.Valid() {
			return fmt.Errorf("assertions[%d]: kind is required for count", index)
		}
		fallthrough
	case AssertUndoDepth:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
