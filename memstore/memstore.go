// Package memstore keeps comments, users and attachments in process memory.
// It backs the server in development mode and the scenario tests. Reactions
// are updated by compare-and-swap, like a document store without an atomic
// increment.
package memstore

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/edgeee/commentsystem/widget"
	"github.com/google/uuid"
)

type reply struct {
	widget.Reply
	version int64
}

type document struct {
	comment widget.Comment
	version int64
	replies []*reply
}

type blob struct {
	data        []byte
	contentType string
}

// Store is an in-memory widget.Store, widget.ReactionSwapper,
// widget.Directory and widget.BlobStore.
type Store struct {
	// BaseURL prefixes the URLs returned for attachments.
	BaseURL string

	mu    sync.RWMutex
	docs  map[string]*document
	users map[string]widget.User
	blobs map[string]blob
}

// New returns an empty store.
func New(baseURL string) *Store {
	return &Store{
		BaseURL: strings.TrimRight(baseURL, "/"),
		docs:    make(map[string]*document),
		users:   make(map[string]widget.User),
		blobs:   make(map[string]blob),
	}
}

// InsertComment stores the comment under a new id.
func (s *Store) InsertComment(_ context.Context, c widget.Comment) (widget.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.New().String()
	c.Reactions = maps.Clone(c.Reactions)
	c.Replies = nil
	s.docs[c.ID] = &document{comment: c}
	return s.snapshot(s.docs[c.ID]), nil
}

// GetComment returns the comment with its replies as a flat list.
func (s *Store) GetComment(_ context.Context, id string) (widget.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return widget.Comment{}, fmt.Errorf("comment %s: %w", id, widget.ErrNotFound)
	}
	return s.snapshot(d), nil
}

// ListComments returns comments in the requested order, starting after the
// cursor.
func (s *Store) ListComments(_ context.Context, sort widget.SortKey, limit int, after *widget.Cursor) ([]*widget.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]widget.Comment, 0, len(s.docs))
	for _, d := range s.docs {
		all = append(all, s.snapshot(d))
	}
	key := func(c *widget.Comment) int64 {
		return widget.CursorAfter(sort, c).Key
	}
	slices.SortFunc(all, func(a, b widget.Comment) int {
		if c := cmp.Compare(key(&b), key(&a)); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	out := make([]*widget.Comment, 0, limit)
	for i := range all {
		c := &all[i]
		if after != nil {
			k := key(c)
			if k > after.Key || (k == after.Key && c.ID >= after.ID) {
				continue
			}
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountComments returns the number of stored comments.
func (s *Store) CountComments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// AppendReply adds the reply unless an equal one is already present.
func (s *Store) AppendReply(_ context.Context, r widget.Reply) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[r.CommentID]
	if !ok {
		return false, fmt.Errorf("comment %s: %w", r.CommentID, widget.ErrNotFound)
	}
	if r.ParentReplyID != "" && d.reply(r.ParentReplyID) == nil {
		return false, fmt.Errorf("reply %s: %w", r.ParentReplyID, widget.ErrNotFound)
	}
	for _, existing := range d.replies {
		if existing.SameValue(&r) {
			return false, nil
		}
	}
	r.Reactions = maps.Clone(r.Reactions)
	r.Replies = nil
	d.replies = append(d.replies, &reply{Reply: r})
	return true, nil
}

// LoadReactions returns a copy of the target's reactions and their version.
func (s *Store) LoadReactions(_ context.Context, t widget.Target) (map[string]int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reactions, version, err := s.reactions(t)
	if err != nil {
		return nil, 0, err
	}
	return maps.Clone(*reactions), *version, nil
}

// SwapReactions replaces the target's reactions if their version is still
// version.
func (s *Store) SwapReactions(_ context.Context, t widget.Target, version int64, next map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reactions, current, err := s.reactions(t)
	if err != nil {
		return err
	}
	if *current != version {
		return widget.ErrVersionConflict
	}
	*reactions = maps.Clone(next)
	*current++
	return nil
}

func (s *Store) reactions(t widget.Target) (*map[string]int, *int64, error) {
	d, ok := s.docs[t.CommentID]
	if !ok {
		return nil, nil, fmt.Errorf("comment %s: %w", t.CommentID, widget.ErrNotFound)
	}
	if t.ReplyID == "" {
		return &d.comment.Reactions, &d.version, nil
	}
	r := d.reply(t.ReplyID)
	if r == nil {
		return nil, nil, fmt.Errorf("reply %s: %w", t.ReplyID, widget.ErrNotFound)
	}
	return &r.Reactions, &r.version, nil
}

func (d *document) reply(id string) *reply {
	for _, r := range d.replies {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Store) snapshot(d *document) widget.Comment {
	c := d.comment
	c.Reactions = maps.Clone(d.comment.Reactions)
	c.Replies = make([]*widget.Reply, len(d.replies))
	for i, r := range d.replies {
		cp := r.Reply
		cp.Reactions = maps.Clone(r.Reactions)
		c.Replies[i] = &cp
	}
	return c
}

// UpsertUser records a user in the directory.
func (s *Store) UpsertUser(_ context.Context, u widget.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// SearchUsers returns users whose display name starts with prefix, ignoring
// case, ordered by name.
func (s *Store) SearchUsers(_ context.Context, prefix string, limit int) ([]widget.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	var out []widget.User
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.DisplayName), prefix) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b widget.User) int {
		return cmp.Or(strings.Compare(a.DisplayName, b.DisplayName), strings.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores the attachment, overwriting any previous one under key.
func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	s.mu.Lock()
	s.blobs[key] = blob{data: data, contentType: contentType}
	s.mu.Unlock()
	return s.BaseURL + "/" + key, nil
}

// Blob returns a stored attachment.
func (s *Store) Blob(key string) (io.Reader, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", false
	}
	return bytes.NewReader(b.data), b.contentType, true
}
