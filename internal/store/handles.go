package store

import (
	"github.com/google/uuid"

	"github.com/roach88/kinstore/internal/record"
)

// HandleGenerator creates handles for new records.
type HandleGenerator interface {
	Generate() record.Handle
}

// UUIDv7Generator generates time-sortable UUIDv7 handles.
//
// UUIDv7 embeds a timestamp in the most significant bits, so records added
// later sort after earlier ones in primary-table key order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() record.Handle {
	return record.Handle(uuid.Must(uuid.NewV7()).String())
}
