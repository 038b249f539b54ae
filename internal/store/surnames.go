package store

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/kinstore/internal/kv"
)

// surnameList is the in-memory cache of distinct surnames, kept in
// collation order for display. It mirrors the keys of the surname index.
type surnameList struct {
	col   *collate.Collator
	names []string
}

func newSurnameList(locale string) *surnameList {
	tag := language.Und
	if locale != "" {
		if t, err := language.Parse(locale); err == nil {
			tag = t
		}
	}
	return &surnameList{col: collate.New(tag)}
}

func (l *surnameList) search(name string) (int, bool) {
	i := sort.Search(len(l.names), func(i int) bool {
		return l.col.CompareString(l.names[i], name) >= 0
	})
	for j := i; j < len(l.names) && l.col.CompareString(l.names[j], name) == 0; j++ {
		if l.names[j] == name {
			return j, true
		}
	}
	return i, false
}

func (l *surnameList) add(name string) {
	i, ok := l.search(name)
	if ok {
		return
	}
	l.names = append(l.names, "")
	copy(l.names[i+1:], l.names[i:])
	l.names[i] = name
}

func (l *surnameList) remove(name string) {
	if i, ok := l.search(name); ok {
		l.names = append(l.names[:i], l.names[i+1:]...)
	}
}

// apply adds the surnames still present in the index and drops the rest.
func (l *surnameList) apply(present map[string]bool) {
	for name, ok := range present {
		if ok {
			l.add(name)
		} else {
			l.remove(name)
		}
	}
}

func (l *surnameList) set(names []string) {
	l.names = append([]string(nil), names...)
	l.col.SortStrings(l.names)
}

// scanSurnames returns the distinct keys of the surname index.
func scanSurnames(tx kv.Txn) ([]string, error) {
	c := tx.Cursor(tableSurnames, kv.CursorOptions{PageSize: cursorPageRecords})
	defer c.Close()
	var names []string
	for c.Next() {
		key := string(c.Key())
		if n := len(names); n > 0 && names[n-1] == key {
			continue
		}
		names = append(names, key)
	}
	return names, c.Err()
}

// Surnames returns the distinct primary surnames in collation order.
func (s *Store) Surnames() []string {
	return append([]string(nil), s.surnames.names...)
}
