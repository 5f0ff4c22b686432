package widget

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// A Cursor marks where the next page resumes: the sort key value and id of
// the last comment returned. Key is the creation time in Unix microseconds
// for SortByCreatedAt and the reaction total for SortByReactions.
type Cursor struct {
	Sort SortKey `json:"s"`
	Key  int64   `json:"k"`
	ID   string  `json:"i"`
}

// CursorAfter returns the cursor positioned after c in the given order.
func CursorAfter(sort SortKey, c *Comment) Cursor {
	cur := Cursor{Sort: sort, ID: c.ID}
	switch sort {
	case SortByReactions:
		cur.Key = int64(c.ReactionTotal())
	default:
		cur.Key = c.CreatedAt.UnixMicro()
	}
	return cur
}

// Encode returns the opaque string form handed to clients.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses an opaque cursor and checks it belongs to sort.
func DecodeCursor(s string, sort SortKey) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.Sort != sort || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
