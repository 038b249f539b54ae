package store

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Store format versions:
// 2 - surname index keyed on the raw surname
// 3 - surname index keyed on the NFC-normalised surname
const (
	MinSupportedVersion = 2
	CurrentVersion      = 3
)

// Table names.
const (
	tableMetadata     = "metadata"
	tableNameGroup    = "name_group"
	tableSurnames     = "surnames"
	tableRefMain      = "reference_map"
	tableRefByOwner   = "reference_by_owner"
	tableRefByTarget  = "reference_by_target"
	idIndexSuffix     = "_id"
	defaultUndoLimit  = 1000
	cursorPageRecords = 512
)

// primaryTable returns the table holding records of kind k.
func primaryTable(k record.Kind) string {
	return k.String()
}

// KeyFunc derives a secondary key from a primary record. ok is false when
// the record has no key for the index.
type KeyFunc func(h record.Handle, data []byte) (key string, ok bool, err error)

// Index is a declared secondary index over one primary table.
type Index struct {
	Name string
	Kind record.Kind
	Key  KeyFunc

	// Detachable indices are dropped for the duration of a batch.
	Detachable bool
}

// idKey indexes a record by its human id.
func idKey(kind record.Kind) KeyFunc {
	return func(h record.Handle, data []byte) (string, bool, error) {
		r, err := codec.Decode(kind, data)
		if err != nil {
			return "", false, err
		}
		id := r.Head().ID
		return id, id != "", nil
	}
}

// surnameKey indexes a person by the NFC form of their primary surname.
func surnameKey(h record.Handle, data []byte) (string, bool, error) {
	r, err := codec.Decode(record.KindPerson, data)
	if err != nil {
		return "", false, err
	}
	s := normaliseSurname(r.(*record.Person).Surname())
	return s, s != "", nil
}

// normaliseSurname returns the surname index key for a raw surname.
func normaliseSurname(s string) string {
	return norm.NFC.String(s)
}

// indexes is the full secondary index declaration, in rebuild order.
var indexes = buildIndexes()

func buildIndexes() []Index {
	out := make([]Index, 0, len(record.Kinds())+1)
	for _, k := range record.Kinds() {
		out = append(out, Index{Name: idIndexName(k), Kind: k, Key: idKey(k)})
	}
	out = append(out, Index{Name: tableSurnames, Kind: record.KindPerson, Key: surnameKey, Detachable: true})
	return out
}

func idIndexName(k record.Kind) string {
	return k.String() + idIndexSuffix
}

// indexesFor returns the indices declared over kind.
func indexesFor(k record.Kind) []Index {
	var out []Index
	for _, ix := range indexes {
		if ix.Kind == k {
			out = append(out, ix)
		}
	}
	return out
}

func lookupIndex(name string) (Index, error) {
	for _, ix := range indexes {
		if ix.Name == name {
			return ix, nil
		}
	}
	return Index{}, fmt.Errorf("unknown index %q", name)
}

// primaryTables lists the tables that hold source-of-truth data.
func primaryTables() []kv.TableSpec {
	var out []kv.TableSpec
	for _, k := range record.Kinds() {
		out = append(out, kv.TableSpec{Name: primaryTable(k)})
	}
	out = append(out,
		kv.TableSpec{Name: tableMetadata},
		kv.TableSpec{Name: tableNameGroup},
	)
	return out
}

// secondaryTables lists every derived table. All of them can be dropped and
// rebuilt from the primary tables.
func secondaryTables() []kv.TableSpec {
	var out []kv.TableSpec
	for _, ix := range indexes {
		out = append(out, kv.TableSpec{Name: ix.Name, Dup: true})
	}
	out = append(out,
		kv.TableSpec{Name: tableRefMain},
		kv.TableSpec{Name: tableRefByOwner, Dup: true},
		kv.TableSpec{Name: tableRefByTarget, Dup: true},
	)
	return out
}

// detachedInBatch lists the tables a batch transaction drops.
func detachedInBatch() []kv.TableSpec {
	var out []kv.TableSpec
	for _, ix := range indexes {
		if ix.Detachable {
			out = append(out, kv.TableSpec{Name: ix.Name, Dup: true})
		}
	}
	return append(out, kv.TableSpec{Name: tableRefByTarget, Dup: true})
}
