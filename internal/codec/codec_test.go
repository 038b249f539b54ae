package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/record"
)

func sampleRecords() []record.Record {
	src := []record.SourceRef{{Source: "s1", Page: "p. 12", Confidence: 3, Notes: []record.Handle{"n1"}}}
	return []record.Record{
		&record.Person{
			Header: record.Header{Handle: "p1", ID: "I0001", Change: 1700000000, Private: true},
			Gender: record.GenderFemale,
			PrimaryName: record.Name{
				First: "Ada", Surname: "Lovelace", Type: "Birth Name", SourceRefs: src,
			},
			AlternateNames: []record.Name{{First: "Augusta Ada", Surname: "Byron"}},
			BirthRefIndex:  0,
			DeathRefIndex:  -1,
			EventRefs:      []record.EventRef{{Event: "e1", Role: "Primary"}},
			Families:       []record.Handle{"f1"},
			ParentFamilies: []record.Handle{},
			MediaRefs:      []record.MediaRef{{Media: "m1", Region: [4]int{0, 0, 50, 50}}},
			Addresses:      []record.Address{{City: "London", Country: "UK"}},
			Attributes:     []record.Attribute{{Type: "Nickname", Value: "Enchantress"}},
			URLs:           []record.URL{{Path: "https://example.org/ada", Type: "Web Home"}},
			Notes:          []record.Handle{"n1", "n2"},
			Associations:   []record.PersonRef{{Person: "p2", Relation: "Tutor"}},
		},
		&record.Family{
			Header:   record.Header{Handle: "f1", ID: "F0001"},
			Father:   "p2",
			Mother:   "p1",
			Children: []record.ChildRef{{Person: "p3", FatherRel: "Birth", MotherRel: "Birth"}},
			Type:     "Married",
		},
		&record.Event{
			Header:      record.Header{Handle: "e1", ID: "E0001"},
			Type:        "Birth",
			Date:        "1815-12-10",
			Description: "Birth of Ada",
			Place:       "pl1",
			SourceRefs:  src,
		},
		&record.Place{
			Header:   record.Header{Handle: "pl1", ID: "P0001"},
			Title:    "London",
			Location: record.Location{City: "London", Country: "England"},
		},
		&record.Source{
			Header:   record.Header{Handle: "s1", ID: "S0001"},
			Title:    "Parish register",
			RepoRefs: []record.RepoRef{{Repository: "r1", CallNumber: "PR/12", MediaType: "Book"}},
			DataMap:  map[string]string{"volume": "3"},
		},
		&record.Media{
			Header:   record.Header{Handle: "m1", ID: "O0001"},
			Path:     "portraits/ada.jpg",
			MimeType: "image/jpeg",
		},
		&record.Repository{
			Header: record.Header{Handle: "r1", ID: "R0001"},
			Type:   "Archive",
			Name:   "County Record Office",
		},
		&record.Note{
			Header: record.Header{Handle: "n1", ID: "N0001"},
			Text:   "Transcribed from the original.",
			Type:   "Transcript",
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, r := range sampleRecords() {
		t.Run(r.Kind().String(), func(t *testing.T) {
			data, err := Encode(r)
			require.NoError(t, err)

			got, err := Decode(r.Kind(), data)
			require.NoError(t, err)
			assert.Equal(t, r, got)

			again, err := Encode(got)
			require.NoError(t, err)
			assert.Equal(t, data, again, "encoding is deterministic")
		})
	}
}

func TestRoundTrip_EmptyRecords(t *testing.T) {
	for _, k := range record.Kinds() {
		r, err := record.New(k)
		require.NoError(t, err)

		data, err := Encode(r)
		require.NoError(t, err)
		got, err := Decode(k, data)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestDecode_Errors(t *testing.T) {
	good, err := Encode(&record.Note{Header: record.Header{Handle: "n1"}, Text: "x"})
	require.NoError(t, err)

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 99

	tests := []struct {
		name   string
		kind   record.Kind
		data   []byte
		reason string
	}{
		{"empty", record.KindNote, nil, "short input"},
		{"bad magic", record.KindNote, append([]byte("XXXX"), good[4:]...), "bad magic"},
		{"future version", record.KindNote, badVersion, "unsupported codec version 99"},
		{"kind mismatch", record.KindPerson, good, "header holds note"},
		{"trailing bytes", record.KindNote, append(append([]byte(nil), good...), 0xc0), "1 trailing bytes"},
		{"truncated body", record.KindNote, good[:len(good)-2], "malformed body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.kind, tt.data)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestPeekKind(t *testing.T) {
	data, err := Encode(&record.Place{Title: "Paris"})
	require.NoError(t, err)

	k, err := PeekKind(data)
	require.NoError(t, err)
	assert.Equal(t, record.KindPlace, k)

	_, err = PeekKind([]byte("nope"))
	assert.True(t, IsDecodeError(err))

	bad := append([]byte(nil), data...)
	bad[5] = 0xee
	_, err = PeekKind(bad)
	assert.True(t, IsDecodeError(err))
	assert.Contains(t, err.Error(), "unknown kind in header")
}

func TestMarshalValue(t *testing.T) {
	in := map[string][]string{"bookmarks": {"p1", "p2"}}
	data, err := MarshalValue(in)
	require.NoError(t, err)

	var out map[string][]string
	require.NoError(t, UnmarshalValue(data, &out))
	assert.Equal(t, in, out)

	assert.True(t, IsDecodeError(UnmarshalValue([]byte{0xc1}, &out)))
}
