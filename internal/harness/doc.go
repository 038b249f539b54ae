// Package harness runs store conformance scenarios.
//
// A scenario seeds a fresh store from fixture files, executes a flow of
// transactions, undo, redo and rebuild steps, and validates the final
// records, indices and reference map. Every run uses sequential handles
// and a deterministic clock, so its trace can be compared against a golden
// file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: delete_and_undo
//	description: "Deleting a person and undoing restores its backlinks"
//	backend: badger
//	fixtures:
//	  - ../fixtures/lovelace.yaml
//	flow:
//	  - transaction: "delete person"
//	    remove:
//	      - {kind: person, handle: ada}
//	    expect:
//	      changes:
//	        - {kind: person, handle: ada, action: delete}
//	  - undo: true
//	  - transaction: "remove twice"
//	    remove:
//	      - {kind: note, handle: missing}
//	    expect:
//	      error: not_found
//	assertions:
//	  - type: backlinks
//	    target: f1
//	    refs:
//	      - {kind: person, handle: ada}
//	  - type: consistent
//
// Records under add and update use the fixture record form: a kind plus
// the record's fields by their JSON names.
//
// # Assertion Types
//
//   - backlinks: records pointing at target, optionally filtered by kinds
//   - references: records pointed at by handle
//   - record_exists, record_absent: presence of kind/handle
//   - by_id: the id index maps kind/id to handle
//   - surnames: the sorted surname list
//   - surname_handles: persons filed under a surname
//   - count: number of records of a kind
//   - undo_depth: number of undo frames
//   - consistent: a full check reports no problem
//
// # Golden Files
//
// RunWithGolden writes the step trace and final reference map as indented
// JSON and compares it with testdata/golden/<name>.golden. Regenerate with
// "go test ./internal/harness -update".
package harness
