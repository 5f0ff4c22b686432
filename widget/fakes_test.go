package widget

import (
	"context"
	"io"
	"sync"
	"testing"
)

type teststore struct {
	T             *testing.T
	insertComment func(t *testing.T, c Comment) (Comment, error)
	getComment    func(t *testing.T, id string) (Comment, error)
	listComments  func(t *testing.T, sort SortKey, limit int, after *Cursor) ([]*Comment, error)
	countComments func(t *testing.T) (int, error)
	appendReply   func(t *testing.T, r Reply) (bool, error)
}

func (s *teststore) InsertComment(_ context.Context, c Comment) (Comment, error) {
	if s.insertComment == nil {
		s.T.Fatal("unexpected InsertComment")
	}
	return s.insertComment(s.T, c)
}

func (s *teststore) GetComment(_ context.Context, id string) (Comment, error) {
	return s.getComment(s.T, id)
}

func (s *teststore) ListComments(_ context.Context, sort SortKey, limit int, after *Cursor) ([]*Comment, error) {
	return s.listComments(s.T, sort, limit, after)
}

func (s *teststore) CountComments(_ context.Context) (int, error) {
	if s.countComments == nil {
		return 0, nil
	}
	return s.countComments(s.T)
}

func (s *teststore) AppendReply(_ context.Context, r Reply) (bool, error) {
	if s.appendReply == nil {
		s.T.Fatal("unexpected AppendReply")
	}
	return s.appendReply(s.T, r)
}

type incstore struct {
	*teststore
	increment func(t *testing.T, target Target, emoji string) (int, error)
}

func (s *incstore) IncrementReaction(_ context.Context, target Target, emoji string) (int, error) {
	return s.increment(s.T, target, emoji)
}

type swapstore struct {
	*teststore
	load func(t *testing.T, target Target) (map[string]int, int64, error)
	swap func(t *testing.T, target Target, version int64, next map[string]int) error
}

func (s *swapstore) LoadReactions(_ context.Context, target Target) (map[string]int, int64, error) {
	return s.load(s.T, target)
}

func (s *swapstore) SwapReactions(_ context.Context, target Target, version int64, next map[string]int) error {
	return s.swap(s.T, target, version, next)
}

type testblobs struct {
	T   *testing.T
	put func(t *testing.T, key string, body io.Reader, contentType string) (string, error)
	n   int
}

func (b *testblobs) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	b.n++
	return b.put(b.T, key, body, contentType)
}

type testcache struct {
	T          *testing.T
	getPage    func(t *testing.T, q Query) (Page, bool, error)
	generation func(t *testing.T) (int64, error)
	setPage    func(t *testing.T, q Query, gen int64, p Page) error
	invalidate func(t *testing.T) error
}

func (c *testcache) GetPage(_ context.Context, q Query) (Page, bool, error) {
	if c.getPage == nil {
		return Page{}, false, nil
	}
	return c.getPage(c.T, q)
}

func (c *testcache) Generation(_ context.Context) (int64, error) {
	if c.generation == nil {
		return 0, nil
	}
	return c.generation(c.T)
}

func (c *testcache) SetPage(_ context.Context, q Query, gen int64, p Page) error {
	if c.setPage == nil {
		return nil
	}
	return c.setPage(c.T, q, gen, p)
}

func (c *testcache) Invalidate(_ context.Context) error {
	if c.invalidate == nil {
		return nil
	}
	return c.invalidate(c.T)
}

type testdirectory struct {
	users []User
	err   error
}

func (d *testdirectory) SearchUsers(_ context.Context, _ string, limit int) ([]User, error) {
	if d.err != nil {
		return nil, d.err
	}
	if len(d.users) > limit {
		return d.users[:limit], nil
	}
	return d.users, nil
}

type testnotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *testnotifier) NotifyChanged(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

type testpublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *testpublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}
