package store

import (
	"maps"
	"strings"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

const metaGenderStats = "gender_stats"

// GenderCount tallies the persons recorded under one given name by gender.
type GenderCount struct {
	Male    int `json:"male" msgpack:"male"`
	Female  int `json:"female" msgpack:"female"`
	Unknown int `json:"unknown" msgpack:"unknown"`
}

// genderStats maps the first word of a given name to its tally. Zero
// tallies are never kept, so a rebuilt map equals a maintained one.
type genderStats map[string]GenderCount

// genderKey is the first word of first with any '?' removed.
func genderKey(first string) string {
	word, _, _ := strings.Cut(first, " ")
	return strings.ReplaceAll(word, "?", "")
}

func (g genderStats) add(p *record.Person, n int) {
	key := genderKey(p.PrimaryName.First)
	if key == "" {
		return
	}
	c := g[key]
	switch p.Gender {
	case record.GenderMale:
		c.Male += n
	case record.GenderFemale:
		c.Female += n
	case record.GenderUnknown:
		c.Unknown += n
	default:
		return
	}
	if c == (GenderCount{}) {
		delete(g, key)
		return
	}
	g[key] = c
}

// count moves the tally of person h from its old bytes to its new ones.
// Other kinds are ignored.
func (g genderStats) count(kind record.Kind, h record.Handle, old, data []byte) error {
	if kind != record.KindPerson {
		return nil
	}
	for _, side := range []struct {
		data []byte
		n    int
	}{{old, -1}, {data, 1}} {
		if side.data == nil {
			continue
		}
		r, err := decodeRecord("gender stats", kind, h, side.data)
		if err != nil {
			return err
		}
		g.add(r.(*record.Person), side.n)
	}
	return nil
}

// merge returns g with delta applied, leaving both untouched.
func (g genderStats) merge(delta genderStats) genderStats {
	out := maps.Clone(g)
	if out == nil {
		out = genderStats{}
	}
	for key, d := range delta {
		c := out[key]
		c.Male += d.Male
		c.Female += d.Female
		c.Unknown += d.Unknown
		if c == (GenderCount{}) {
			delete(out, key)
			continue
		}
		out[key] = c
	}
	return out
}

func loadGenderStats(tx kv.Txn) (genderStats, error) {
	g := genderStats{}
	if _, err := getMeta(tx, metaGenderStats, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// saveGenderStats persists g when delta changed anything.
func saveGenderStats(tx kv.Txn, g, delta genderStats) error {
	if len(delta) == 0 {
		return nil
	}
	return putMeta(tx, metaGenderStats, g)
}

// GenderStats returns the tally of persons whose first given name matches
// the first word of name.
func (s *Store) GenderStats(name string) GenderCount {
	return s.genderStats[genderKey(name)]
}

// GuessGender proposes a gender for a person with the given name from the
// recorded tallies. It answers GenderUnknown without a clear majority.
func (s *Store) GuessGender(name string) record.Gender {
	c, ok := s.genderStats[genderKey(name)]
	if !ok {
		return record.GenderUnknown
	}
	if c.Unknown == 0 {
		switch {
		case c.Male > 0 && c.Female == 0:
			return record.GenderMale
		case c.Female > 0 && c.Male == 0:
			return record.GenderFemale
		}
	}
	switch {
	case c.Male > 2*c.Female:
		return record.GenderMale
	case c.Female > 2*c.Male:
		return record.GenderFemale
	}
	return record.GenderUnknown
}

// checkGenderStats compares the stored tally with the one counted from the
// person table.
func (c *checker) checkGenderStats() {
	stored, err := loadGenderStats(c.tx)
	if err != nil {
		c.problem(tableMetadata, record.KindPerson, "", "%v", err)
		return
	}
	stored = stored.merge(c.pending)
	for key, want := range c.gender {
		if got := stored[key]; got != want {
			c.problem(tableMetadata, record.KindPerson, "", "gender stats for %q: stored %+v, counted %+v", key, got, want)
		}
	}
	for key, got := range stored {
		if _, ok := c.gender[key]; !ok {
			c.problem(tableMetadata, record.KindPerson, "", "gender stats for %q: stored %+v, no such person", key, got)
		}
	}
}
