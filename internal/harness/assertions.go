package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

func formatRefs(refs []record.Ref) string {
	if len(refs) == 0 {
		return "[]"
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("%s %s", r.Kind, r.Handle)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// assertBacklinks compares the backlinks of the target with the expected
// refs. The reference map yields them in owner handle order.
func assertBacklinks(ctx context.Context, st *store.Store, a Assertion) error {
	got, err := st.Backlinks(ctx, a.Target, a.Kinds...)
	if err != nil {
		return err
	}
	if !slices.Equal(got, a.Refs) {
		return &AssertionError{
			Type:     AssertBacklinks,
			Expected: fmt.Sprintf("backlinks of %s = %s", a.Target, formatRefs(a.Refs)),
			Actual:   formatRefs(got),
		}
	}
	return nil
}

func assertReferences(ctx context.Context, st *store.Store, a Assertion) error {
	got, err := st.References(ctx, a.Handle)
	if err != nil {
		return err
	}
	if !slices.Equal(got, a.Refs) {
		return &AssertionError{
			Type:     AssertReferences,
			Expected: fmt.Sprintf("references of %s = %s", a.Handle, formatRefs(a.Refs)),
			Actual:   formatRefs(got),
		}
	}
	return nil
}

func assertRecord(ctx context.Context, st *store.Store, a Assertion) error {
	_, err := st.Get(ctx, a.Kind, a.Handle)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	exists := err == nil
	if want := a.Type == AssertRecordExists; exists != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s exists = %t", a.Kind, a.Handle, want),
			Actual:   fmt.Sprintf("exists = %t", exists),
		}
	}
	return nil
}

func assertByID(ctx context.Context, st *store.Store, a Assertion) error {
	r, err := st.GetByID(ctx, a.Kind, a.ID)
	actual := ""
	switch {
	case err == nil:
		actual = string(r.Head().Handle)
	case store.IsNotFound(err):
		actual = "not found"
	default:
		return err
	}
	if actual != string(a.Handle) {
		return &AssertionError{
			Type:     AssertByID,
			Expected: fmt.Sprintf("%s %s = %s", a.Kind, a.ID, a.Handle),
			Actual:   actual,
		}
	}
	return nil
}

func assertSurnames(st *store.Store, a Assertion) error {
	got := st.Surnames()
	if !slices.Equal(got, a.Names) {
		return &AssertionError{
			Type:     AssertSurnames,
			Expected: fmt.Sprintf("%q", a.Names),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func assertSurnameHandles(ctx context.Context, st *store.Store, a Assertion) error {
	got, err := st.SurnameHandles(ctx, a.Surname)
	if err != nil {
		return err
	}
	if !slices.Equal(got, a.Handles) {
		return &AssertionError{
			Type:     AssertSurnameHandles,
			Expected: fmt.Sprintf("%s = %q", a.Surname, a.Handles),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func assertCount(ctx context.Context, st *store.Store, a Assertion) error {
	var (
		n    int
		what string
	)
	if a.Type == AssertUndoDepth {
		n, what = len(st.UndoHistory()), "undo frames"
	} else {
		var err error
		if n, err = st.Count(ctx, a.Kind); err != nil {
			return err
		}
		what = a.Kind.String() + " records"
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", n, what),
		}
	}
	return nil
}

func assertConsistent(ctx context.Context, st *store.Store) error {
	report, err := st.Check(ctx)
	if err != nil {
		return err
	}
	if !report.OK() {
		problems := make([]string, len(report.Problems))
		for i, p := range report.Problems {
			problems[i] = p.String()
		}
		return &AssertionError{
			Type:     AssertConsistent,
			Expected: "no problems",
			Actual:   strings.Join(problems, "; "),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st *store.Store, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertBacklinks:
			err = assertBacklinks(ctx, st, assertion)
		case AssertReferences:
			err = assertReferences(ctx, st, assertion)
		case AssertRecordExists, AssertRecordAbsent:
			err = assertRecord(ctx, st, assertion)
		case AssertByID:
			err = assertByID(ctx, st, assertion)
		case AssertSurnames:
			err = assertSurnames(st, assertion)
		case AssertSurnameHandles:
			err = assertSurnameHandles(ctx, st, assertion)
		case AssertCount, AssertUndoDepth:
			err = assertCount(ctx, st, assertion)
		case AssertConsistent:
			err = assertConsistent(ctx, st)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
