package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/record"
)

func TestMetadata_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)

	researcher := Researcher{Name: "A. Researcher", City: "Oxford", Email: "a@example.org"}
	formats := []NameFormat{{Number: 1, Name: "Surname first", Format: "%l, %f", Active: true}}
	require.NoError(t, s.SetResearcher(ctx, researcher))
	require.NoError(t, s.SetNameFormats(ctx, formats))
	require.NoError(t, s.SetDefaultPerson(ctx, "h0001"))
	require.NoError(t, s.SetBookmarks(ctx, record.KindPerson, []record.Handle{"h0001", "h0002"}))
	require.NoError(t, s.SetBookmarks(ctx, record.KindPlace, []record.Handle{"p1"}))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir)
	r, err := s2.Researcher(ctx)
	require.NoError(t, err)
	assert.Equal(t, researcher, r)

	f, err := s2.NameFormats(ctx)
	require.NoError(t, err)
	assert.Equal(t, formats, f)

	h, err := s2.DefaultPerson(ctx)
	require.NoError(t, err)
	assert.Equal(t, record.Handle("h0001"), h)

	b, err := s2.Bookmarks(ctx, record.KindPerson)
	require.NoError(t, err)
	assert.Equal(t, []record.Handle{"h0001", "h0002"}, b)
	b, err = s2.Bookmarks(ctx, record.KindFamily)
	require.NoError(t, err)
	assert.Empty(t, b)

	assert.Error(t, s2.SetBookmarks(ctx, record.Kind(0), nil))
}

func TestMetadata_Defaults(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	r, err := s.Researcher(ctx)
	require.NoError(t, err)
	assert.Zero(t, r)
	h, err := s.DefaultPerson(ctx)
	require.NoError(t, err)
	assert.Empty(t, h)
	f, err := s.NameFormats(ctx)
	require.NoError(t, err)
	assert.Empty(t, f)
}

func TestMediaPath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		p, err := s.MediaPath(ctx)
		require.NoError(t, err)
		assert.Empty(t, p)

		require.NoError(t, s.SetMediaPath(ctx, "/srv/photos"))
		p, err = s.MediaPath(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/srv/photos", p)

		txn := begin(t, s, "relocate")
		require.NoError(t, s.SetMediaPath(ctx, "/mnt/archive"))
		require.NoError(t, txn.Abort())
		p, err = s.MediaPath(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/srv/photos", p, "joins the open transaction")
	})
}

func TestMediaPath_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	require.NoError(t, s.SetMediaPath(ctx, "media"))
	require.NoError(t, s.Close())

	s = openTestStore(t, dir, WithReadOnly())
	p, err := s.MediaPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "media", p)
	assert.ErrorIs(t, s.SetMediaPath(ctx, "other"), ErrReadOnly)
}

func TestNameGroups(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	g, err := s.NameGroupMapping(ctx, "Smyth")
	require.NoError(t, err)
	assert.Equal(t, "Smyth", g, "an unmapped surname is its own group")

	require.NoError(t, s.SetNameGroupMapping(ctx, "Smyth", "Smith"))
	require.NoError(t, s.SetNameGroupMapping(ctx, "Smithe", "Smith"))
	g, err = s.NameGroupMapping(ctx, "Smyth")
	require.NoError(t, err)
	assert.Equal(t, "Smith", g)

	keys, err := s.NameGroupKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Smithe", "Smyth"}, keys)

	require.NoError(t, s.SetNameGroupMapping(ctx, "Smyth", ""))
	keys, err = s.NameGroupKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Smithe"}, keys)

	assert.Error(t, s.SetNameGroupMapping(ctx, "", "Smith"))
}

func TestIDPrefixes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openTestStore(t, dir, WithIDPrefixes(map[string]string{"person": "P-%03d", "note": "NOTE"}))
	assert.Equal(t, "P-%03d", s.IDPrefix(record.KindPerson))
	assert.Equal(t, "NOTE%04d", s.IDPrefix(record.KindNote))
	assert.Equal(t, "F%04d", s.IDPrefix(record.KindFamily))

	ph := add(t, s, newPerson("Ada", "Lovelace"))
	p, err := s.GetPerson(ctx, ph)
	require.NoError(t, err)
	assert.Equal(t, "P-000", p.ID)

	require.NoError(t, s.SetIDPrefix(ctx, record.KindFamily, "FAM%d"))
	fh := add(t, s, &record.Family{})
	f, err := s.GetFamily(ctx, fh)
	require.NoError(t, err)
	assert.Equal(t, "FAM0", f.ID)
	require.NoError(t, s.Close())

	// Stored patterns survive a reopen without options.
	s2 := openTestStore(t, dir)
	assert.Equal(t, "P-%03d", s2.IDPrefix(record.KindPerson))
	assert.Equal(t, "FAM%d", s2.IDPrefix(record.KindFamily))

	assert.Error(t, s2.SetIDPrefix(ctx, record.Kind(99), "X"))
}

func TestValidIDPattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"I%04d", "I%04d"},
		{"X%d", "X%d"},
		{"I", "I%04d"},
		{"", "%04d"},
		{"50%", "50%%%04d"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, validIDPattern(tt.in))
		})
	}
}

func TestFindNextID_SkipsUsedIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	taken := newPerson("Taken", "Already")
	taken.ID = "I0000"
	add(t, s, taken)
	taken2 := newPerson("Taken", "Too")
	taken2.ID = "I0002"
	add(t, s, taken2)

	// The counter started at zero when the store opened empty.
	id, err := s.FindNextID(ctx, record.KindPerson)
	require.NoError(t, err)
	assert.Equal(t, "I0001", id)
	id, err = s.FindNextID(ctx, record.KindPerson)
	require.NoError(t, err)
	assert.Equal(t, "I0003", id)

	id, err = s.FindNextID(ctx, record.KindRepository)
	require.NoError(t, err)
	assert.Equal(t, "R0000", id)
}

func TestSurnames_CollationOrder(t *testing.T) {
	s := createTestStore(t)
	for _, name := range []string{"Zeller", "Åberg", "abbott", "Aaron", "Öhman"} {
		add(t, s, newPerson("X", name))
	}
	assert.Equal(t, []string{"Aaron", "abbott", "Åberg", "Öhman", "Zeller"}, s.Surnames())

	sv := createTestStore(t, WithSurnameLocale("sv"))
	for _, name := range []string{"Zeller", "Åberg", "Aaron", "Öhman"} {
		add(t, sv, newPerson("X", name))
	}
	assert.Equal(t, []string{"Aaron", "Zeller", "Åberg", "Öhman"}, sv.Surnames())
}
