package widget

import (
	"context"
	"fmt"
	"log/slog"
)

// Assembler fetches pages of comments and rebuilds their reply trees.
type Assembler struct {
	Store  Store
	Cache  PageCache
	Logger *slog.Logger
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// List fetches one page in server-side order. Without a cursor it fetches the
// first page, which is served from the cache when possible. Every call is a
// fresh fetch; callers replace their state with the result unless they use
// LoadMore.
func (a *Assembler) List(ctx context.Context, q Query) (Page, error) {
	q = q.Normalize()

	var after *Cursor
	if q.Cursor != "" {
		c, err := DecodeCursor(q.Cursor, q.SortBy)
		if err != nil {
			return Page{}, err
		}
		after = c
	}

	// The generation is read before the store so that a page fetched before
	// a concurrent write is never cached after that write's invalidation.
	var (
		gen       int64
		cacheable bool
	)
	if after == nil && a.Cache != nil {
		p, ok, err := a.Cache.GetPage(ctx, q)
		if err != nil {
			a.logger().Error("Could not read page cache", "error", err.Error())
		} else if ok {
			a.logger().Debug("Got comments from cache", "count", len(p.Comments))
			return p, nil
		}
		if gen, err = a.Cache.Generation(ctx); err != nil {
			a.logger().Error("Could not read cache generation", "error", err.Error())
		} else {
			cacheable = true
		}
	}

	rows, err := a.Store.ListComments(ctx, q.SortBy, q.Limit+1, after)
	if err != nil {
		return Page{}, fmt.Errorf("list comments: %w", err)
	}
	total, err := a.Store.CountComments(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("count comments: %w", err)
	}

	hasMore := len(rows) > q.Limit
	if hasMore {
		rows = rows[:q.Limit]
	}
	for _, c := range rows {
		c.CreatedAt = NormalizeTime(c.CreatedAt)
		if c.Reactions != nil && len(c.Reactions) == 0 {
			c.Reactions = nil
		}
		c.Replies = BuildReplyTree(c.Replies)
	}

	p := Page{Comments: rows, Total: total}
	if p.Comments == nil {
		p.Comments = []*Comment{}
	}
	if hasMore {
		p.NextCursor = CursorAfter(q.SortBy, rows[len(rows)-1]).Encode()
	}

	if cacheable {
		if err := a.Cache.SetPage(ctx, q, gen, p); err != nil {
			a.logger().Error("Could not cache page", "error", err.Error())
		}
	}
	return p, nil
}

// LoadMore fetches the page following prev and appends it. A page without a
// continuation cursor is returned unchanged.
func (a *Assembler) LoadMore(ctx context.Context, prev Page, q Query) (Page, error) {
	if prev.NextCursor == "" {
		return prev, nil
	}
	q.Cursor = prev.NextCursor
	next, err := a.List(ctx, q)
	if err != nil {
		return prev, err
	}
	merged := make([]*Comment, 0, len(prev.Comments)+len(next.Comments))
	merged = append(merged, prev.Comments...)
	merged = append(merged, next.Comments...)
	return Page{
		Comments:   merged,
		NextCursor: next.NextCursor,
		Total:      next.Total,
	}, nil
}

// BuildReplyTree nests flat replies under their parent replies, keeping
// append order among siblings and setting Depth (direct replies to the
// comment have depth 1). Replies whose parent is unknown are kept at depth 1.
func BuildReplyTree(flat []*Reply) []*Reply {
	byID := make(map[string]*Reply, len(flat))
	for _, r := range flat {
		r.CreatedAt = NormalizeTime(r.CreatedAt)
		r.Replies = nil
		if r.Reactions != nil && len(r.Reactions) == 0 {
			r.Reactions = nil
		}
		byID[r.ID] = r
	}

	children := make(map[string][]*Reply)
	roots := make([]*Reply, 0, len(flat))
	for _, r := range flat {
		if _, ok := byID[r.ParentReplyID]; r.ParentReplyID == "" || !ok || r.ParentReplyID == r.ID {
			roots = append(roots, r)
			continue
		}
		children[r.ParentReplyID] = append(children[r.ParentReplyID], r)
	}

	visited := make(map[string]bool, len(flat))
	var walk func(r *Reply, depth int)
	walk = func(r *Reply, depth int) {
		visited[r.ID] = true
		r.Depth = depth
		for _, child := range children[r.ID] {
			if visited[child.ID] {
				continue
			}
			r.Replies = append(r.Replies, child)
			walk(child, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 1)
	}
	// Replies caught in a parent cycle are unreachable from any root.
	for _, r := range flat {
		if !visited[r.ID] {
			roots = append(roots, r)
			walk(r, 1)
		}
	}
	return roots
}
