package widget

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// A ChangeKind names the mutation behind a Change.
type ChangeKind string

const (
	CommentCreated ChangeKind = "comment.created"
	ReplyAdded     ChangeKind = "reply.added"
	ReactionAdded  ChangeKind = "reaction.added"
)

// TopicPrefix prefixes every change topic.
const TopicPrefix = "comments."

// A Change describes one successful mutation.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	CommentID string     `json:"comment_id"`
	ReplyID   string     `json:"reply_id,omitempty"`
	Emoji     string     `json:"emoji,omitempty"`
	Count     int        `json:"count,omitempty"`
	At        time.Time  `json:"at"`
}

// Topic returns the subject the change is published on.
func (c Change) Topic() string {
	return TopicPrefix + string(c.Kind)
}

// Coordinator refreshes the comment view after every mutation. It owns the
// current sort order and the comment count of the last fetch.
type Coordinator struct {
	assembler *Assembler
	cache     PageCache
	publisher Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	sortBy SortKey
	count  int
	subs   map[chan Change]struct{}
}

// NewCoordinator returns a Coordinator. cache and publisher may be nil.
func NewCoordinator(a *Assembler, cache PageCache, publisher Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		assembler: a,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		sortBy:    SortByCreatedAt,
		subs:      make(map[chan Change]struct{}),
	}
}

// NotifyChanged publishes the change to other instances and refreshes the
// local view.
func (c *Coordinator) NotifyChanged(ctx context.Context, ch Change) {
	if ch.At.IsZero() {
		ch.At = NormalizeTime(time.Now())
	}
	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, ch.Topic(), ch); err != nil {
			c.logger.Error("Could not publish change", "topic", ch.Topic(), "error", err.Error())
		}
	}
	c.Refresh(ctx, ch)
}

// Refresh drops cached pages, re-fetches the first page for the current sort
// order and signals subscribers. Fetch failures are logged.
func (c *Coordinator) Refresh(ctx context.Context, ch Change) {
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			c.logger.Error("Could not invalidate page cache", "error", err.Error())
		}
	}
	page, err := c.assembler.List(ctx, Query{SortBy: c.SortBy()})
	if err != nil {
		c.logger.Error("Could not refresh comments", "error", err.Error())
	} else {
		c.mu.Lock()
		c.count = page.Total
		c.mu.Unlock()
	}
	c.broadcast(ch)
}

// Watch refreshes on change events published by other instances until ctx is
// done or msgs is closed. Events are not republished.
func (c *Coordinator) Watch(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			var ch Change
			if err := json.Unmarshal(data, &ch); err != nil {
				c.logger.Warn("Ignoring malformed change event", "error", err.Error())
				continue
			}
			c.Refresh(ctx, ch)
		}
	}
}

// Subscribe returns a channel receiving every change handled by this
// instance. Slow subscribers miss changes rather than block. Call cancel to
// unsubscribe.
func (c *Coordinator) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Coordinator) broadcast(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}

// SetSortBy changes the sort order used for refreshes.
func (c *Coordinator) SetSortBy(s SortKey) {
	c.mu.Lock()
	c.sortBy = s
	c.mu.Unlock()
}

// SortBy returns the current sort order.
func (c *Coordinator) SortBy() SortKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortBy
}

// CommentsCount returns the comment total seen by the last fetch.
func (c *Coordinator) CommentsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Load fetches a page through the coordinator, recording the comment count.
func (c *Coordinator) Load(ctx context.Context, q Query) (Page, error) {
	if q.SortBy == "" {
		q.SortBy = c.SortBy()
	}
	p, err := c.assembler.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	c.mu.Lock()
	c.count = p.Total
	c.mu.Unlock()
	return p, nil
}
