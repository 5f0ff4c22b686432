package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgeee/commentsystem/widget"
)

// A page is an assembled first page as stored in a Redis hash. Comments hold
// the JSON encoded comment trees.
type page struct {
	Comments   string `redis:"comments"`
	NextCursor string `redis:"next_cursor"`
	Total      int    `redis:"total"`
	CachedAt   int64  `redis:"cached_at"`
}

func newPage(p widget.Page, now time.Time) (*page, error) {
	b, err := json.Marshal(p.Comments)
	if err != nil {
		return nil, fmt.Errorf("encode comments: %w", err)
	}
	return &page{
		Comments:   string(b),
		NextCursor: p.NextCursor,
		Total:      p.Total,
		CachedAt:   now.UnixMilli(),
	}, nil
}

func (p page) WidgetPage() (widget.Page, error) {
	out := widget.Page{
		Comments:   []*widget.Comment{},
		NextCursor: p.NextCursor,
		Total:      p.Total,
	}
	if p.Comments == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(p.Comments), &out.Comments); err != nil {
		return widget.Page{}, fmt.Errorf("decode comments: %w", err)
	}
	return out, nil
}
