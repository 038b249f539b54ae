package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// defaultIDPatterns are the printf patterns of new human ids.
var defaultIDPatterns = map[record.Kind]string{
	record.KindPerson:     "I%04d",
	record.KindFamily:     "F%04d",
	record.KindEvent:      "E%04d",
	record.KindPlace:      "P%04d",
	record.KindSource:     "S%04d",
	record.KindMedia:      "O%04d",
	record.KindRepository: "R%04d",
	record.KindNote:       "N%04d",
}

var idVerb = regexp.MustCompile(`%[0-9]*d`)

// validIDPattern returns pattern when it holds an integer verb, otherwise
// the pattern with "%04d" appended. Literal percent signs are escaped first.
func validIDPattern(pattern string) string {
	if idVerb.MatchString(pattern) {
		return pattern
	}
	return strings.ReplaceAll(pattern, "%", "%%") + "%04d"
}

// loadIDPatterns resolves the id pattern of every kind: built-in default,
// then the stored pattern, then the WithIDPrefixes option. Option values are
// persisted when the store is writable.
func (s *Store) loadIDPatterns(tx kv.Txn) error {
	s.idPatterns = make(map[record.Kind]string, len(defaultIDPatterns))
	for _, k := range record.Kinds() {
		pattern := defaultIDPatterns[k]
		var stored string
		found, err := getMeta(tx, metaIDPrefixPrefix+k.String(), &stored)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if found && stored != "" {
			pattern = stored
		}
		s.idPatterns[k] = pattern
	}
	for name, pattern := range s.opts.idPrefixes {
		k, err := record.ParseKind(name)
		if err != nil {
			return fmt.Errorf("open: id prefix: %w", err)
		}
		pattern = validIDPattern(pattern)
		if pattern == s.idPatterns[k] {
			continue
		}
		s.idPatterns[k] = pattern
		if tx.Writable() {
			if err := putMeta(tx, metaIDPrefixPrefix+k.String(), pattern); err != nil {
				return err
			}
		}
	}
	return nil
}

// IDPrefix returns the printf pattern of new ids of kind.
func (s *Store) IDPrefix(kind record.Kind) string {
	return s.idPatterns[kind]
}

// SetIDPrefix changes and stores the id pattern of kind.
func (s *Store) SetIDPrefix(ctx context.Context, kind record.Kind, pattern string) error {
	if !kind.Valid() {
		return fmt.Errorf("id prefix: invalid kind %d", kind)
	}
	pattern = validIDPattern(pattern)
	if err := s.writeMeta(ctx, metaIDPrefixPrefix+kind.String(), pattern); err != nil {
		return err
	}
	s.idPatterns[kind] = pattern
	return nil
}

// FindNextID returns the next id of kind that no record uses. The counter
// starts at the table size when the store opens and only moves forward.
func (s *Store) FindNextID(ctx context.Context, kind record.Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("next id: invalid kind %d", kind)
	}
	var id string
	err := s.view(ctx, func(tx kv.Txn) error {
		for {
			id = fmt.Sprintf(s.idPatterns[kind], s.idCounters[kind])
			s.idCounters[kind]++
			used, err := hasKey(tx, idIndexName(kind), []byte(id))
			if err != nil {
				return err
			}
			if !used {
				return nil
			}
		}
	})
	return id, err
}
