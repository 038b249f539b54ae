package record

import (
	"fmt"
	"strings"
)

// Kind identifies one of the eight primary record types.
//
// The numeric values are persisted in reference rows and in the codec
// header, so they must never be renumbered.
type Kind uint8

const (
	KindPerson Kind = iota + 1
	KindFamily
	KindEvent
	KindPlace
	KindSource
	KindMedia
	KindRepository
	KindNote
)

// kinds is the table order used by Kinds, rebuilds and dumps.
var kinds = []Kind{
	KindPerson,
	KindFamily,
	KindEvent,
	KindPlace,
	KindSource,
	KindMedia,
	KindRepository,
	KindNote,
}

// Kinds returns every record kind in table order.
// The returned slice is a copy and may be modified by the caller.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindPerson && k <= KindNote
}

// String returns the lower-case table name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPerson:
		return "person"
	case KindFamily:
		return "family"
	case KindEvent:
		return "event"
	case KindPlace:
		return "place"
	case KindSource:
		return "source"
	case KindMedia:
		return "media"
	case KindRepository:
		return "repository"
	case KindNote:
		return "note"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Title returns the capitalised display name ("Person", "Family", ...).
func (k Kind) Title() string {
	s := k.String()
	if !k.Valid() {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// MarshalText encodes a kind as its table name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown record kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a table name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a kind from its table name. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, k := range kinds {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

// New returns an empty record of the given kind.
func New(k Kind) (Record, error) {
	switch k {
	case KindPerson:
		return &Person{}, nil
	case KindFamily:
		return &Family{}, nil
	case KindEvent:
		return &Event{}, nil
	case KindPlace:
		return &Place{}, nil
	case KindSource:
		return &Source{}, nil
	case KindMedia:
		return &Media{}, nil
	case KindRepository:
		return &Repository{}, nil
	case KindNote:
		return &Note{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %d", uint8(k))
	}
}
