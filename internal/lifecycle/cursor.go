package lifecycle

// Cursor is the presenter's position in a session's ordered blocks. It is
// independent of each block's own status.
type Cursor struct {
	Index int
	Len   int
}

func NewCursor(index, length int) Cursor {
	c := Cursor{Index: index, Len: length}
	c.Index = c.clamp(index)
	return c
}

func (c Cursor) clamp(i int) int {
	if c.Len <= 0 || i < 0 {
		return 0
	}
	if i > c.Len-1 {
		return c.Len - 1
	}
	return i
}

// Previous moves back one block; it is a no-op at the first block.
func (c Cursor) Previous() (Cursor, bool) {
	if c.Index <= 0 {
		return c, false
	}
	c.Index--
	return c, true
}

// Next moves forward one block; it is a no-op at the last block.
func (c Cursor) Next() (Cursor, bool) {
	if c.Len == 0 || c.Index >= c.Len-1 {
		return c, false
	}
	c.Index++
	return c, true
}

// MoveTo jumps to i when it is in range.
func (c Cursor) MoveTo(i int) (Cursor, bool) {
	if i < 0 || i >= c.Len || i == c.Index {
		return c, false
	}
	c.Index = i
	return c, true
}

// Skip marks statuses[c.Index] skipped and advances when possible. The
// returned slice is a copy.
func (c Cursor) Skip(statuses []BlockStatus) (Cursor, []BlockStatus, error) {
	out := append([]BlockStatus(nil), statuses...)
	if c.Len == 0 || c.Index >= len(out) {
		return c, out, nil
	}
	res, err := Apply(out[c.Index], ActionSkip)
	if err != nil {
		return c, out, err
	}
	out[c.Index] = res.To
	next, _ := c.Next()
	return next, out, nil
}
