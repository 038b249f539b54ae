package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceFetch(pairs []Pair, calls *int) FetchFunc {
	return func(after *Pair, limit int) ([]Pair, error) {
		*calls++
		start := 0
		if after != nil {
			for i, p := range pairs {
				if string(p.Key) == string(after.Key) {
					start = i + 1
				}
			}
		}
		end := start + limit
		if end > len(pairs) {
			end = len(pairs)
		}
		return pairs[start:end], nil
	}
}

func TestPagedCursor(t *testing.T) {
	pairs := []Pair{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	calls := 0
	closed := 0
	c := NewPagedCursor(sliceFetch(pairs, &calls), 2, func() error { closed++; return nil })

	var keys []string
	for c.Next() {
		keys = append(keys, string(c.Key()))
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, 2, calls, "short second page ends the scan")
	assert.False(t, c.Next())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, closed, "onClose runs once")
}

func TestPagedCursor_Error(t *testing.T) {
	boom := errors.New("boom")
	c := NewPagedCursor(func(*Pair, int) ([]Pair, error) { return nil, boom }, 0, nil)
	assert.False(t, c.Next())
	assert.ErrorIs(t, c.Err(), boom)
	assert.Nil(t, c.Key())

	e := ErrCursor(boom)
	assert.False(t, e.Next())
	assert.ErrorIs(t, e.Err(), boom)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("ac"), PrefixEnd([]byte("ab")))
	assert.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
