package kv

// FetchFunc returns up to limit pairs that sort strictly after the given
// pair, or from the start when after is nil.
type FetchFunc func(after *Pair, limit int) ([]Pair, error)

// PagedCursor adapts a FetchFunc into a Cursor. Backends use it so that no
// iterator or statement stays open between pages.
type PagedCursor struct {
	fetch    FetchFunc
	pageSize int
	onClose  func() error

	page   []Pair
	pos    int
	last   *Pair
	done   bool
	closed bool
	err    error
}

// NewPagedCursor returns a cursor over fetch. onClose, if set, runs once
// when the cursor is closed.
func NewPagedCursor(fetch FetchFunc, pageSize int, onClose func() error) *PagedCursor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PagedCursor{fetch: fetch, pageSize: pageSize, onClose: onClose, pos: -1}
}

// ErrCursor returns a cursor that yields nothing and reports err.
func ErrCursor(err error) Cursor {
	return &PagedCursor{err: err, done: true, pos: -1}
}

func (c *PagedCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	c.pos++
	if c.pos < len(c.page) {
		return true
	}
	if c.done {
		return false
	}

	page, err := c.fetch(c.last, c.pageSize)
	if err != nil {
		c.err = err
		return false
	}
	if len(page) < c.pageSize {
		c.done = true
	}
	c.page = page
	c.pos = 0
	if len(page) == 0 {
		return false
	}
	last := page[len(page)-1]
	c.last = &last
	return true
}

func (c *PagedCursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.page) {
		return nil
	}
	return c.page[c.pos].Key
}

func (c *PagedCursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.page) {
		return nil
	}
	return c.page[c.pos].Value
}

func (c *PagedCursor) Err() error { return c.err }

func (c *PagedCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.page = nil
	if c.onClose != nil {
		return c.onClose()
	}
	return nil
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists (prefix is all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
