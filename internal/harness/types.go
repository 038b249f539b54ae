package harness

import (
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// TraceEvent records the outcome of one flow step.
type TraceEvent struct {
	Step        int            `json:"step"`
	Op          string         `json:"op"`
	Description string         `json:"description,omitempty"`
	Changes     []store.Change `json:"changes"`
	Error       string         `json:"error,omitempty"` // error class
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// References is the final reference map: each owner handle with the
	// records it points at.
	References map[record.Handle][]record.Ref `json:"references"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		References: map[record.Handle][]record.Ref{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the outcome of a step.
func (r *Result) AddTrace(step int, op, desc string, changes []store.Change, err error) {
	if changes == nil {
		changes = []store.Change{}
	}
	ev := TraceEvent{Step: step, Op: op, Description: desc, Changes: changes}
	if err != nil {
		ev.Error = errorClass(err)
	}
	r.Trace = append(r.Trace, ev)
}
