package memstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/edgeee/commentsystem/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *Store, text string, at time.Time) widget.Comment {
	t.Helper()
	c, err := s.InsertComment(context.Background(), widget.Comment{
		Text:      text,
		Author:    widget.Author{Name: "Avery"},
		CreatedAt: at,
	})
	require.NoError(t, err)
	return c
}

func TestInsertAndGetComment(t *testing.T) {
	s := New("http://localhost")
	c := insert(t, s, "hello", base)

	assert.NotEmpty(t, c.ID)

	got, err := s.GetComment(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Empty(t, got.Replies)
	assert.Nil(t, got.Reactions)
}

func TestGetComment_NotFound(t *testing.T) {
	s := New("")

	_, err := s.GetComment(context.Background(), "missing")

	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestListComments_ByCreatedAtWithCursor(t *testing.T) {
	s := New("")
	first := insert(t, s, "first", base)
	second := insert(t, s, "second", base.Add(time.Minute))
	third := insert(t, s, "third", base.Add(2*time.Minute))
	ctx := context.Background()

	page, err := s.ListComments(ctx, widget.SortByCreatedAt, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, third.ID, page[0].ID)
	assert.Equal(t, second.ID, page[1].ID)

	cur := widget.CursorAfter(widget.SortByCreatedAt, page[1])
	rest, err := s.ListComments(ctx, widget.SortByCreatedAt, 2, &cur)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, first.ID, rest[0].ID)
}

func TestListComments_ByReactions(t *testing.T) {
	s := New("")
	quiet := insert(t, s, "quiet", base.Add(time.Minute))
	popular := insert(t, s, "popular", base)
	ctx := context.Background()

	target := widget.Target{CommentID: popular.ID}
	_, version, err := s.LoadReactions(ctx, target)
	require.NoError(t, err)
	require.NoError(t, s.SwapReactions(ctx, target, version, map[string]int{"🎉": 3}))

	page, err := s.ListComments(ctx, widget.SortByReactions, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, popular.ID, page[0].ID)
	assert.Equal(t, quiet.ID, page[1].ID)
}

func TestAppendReply_UnionSemantics(t *testing.T) {
	s := New("")
	c := insert(t, s, "hello", base)
	ctx := context.Background()

	r := widget.Reply{ID: "rp_1", CommentID: c.ID, Text: "hi", Author: widget.Author{Name: "Blake"}, CreatedAt: base}
	ok, err := s.AppendReply(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := r
	dup.ID = "rp_2"
	ok, err = s.AppendReply(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok, "value-equal reply should not be appended twice")

	later := r
	later.ID = "rp_3"
	later.CreatedAt = base.Add(time.Second)
	ok, err = s.AppendReply(ctx, later)
	require.NoError(t, err)
	assert.True(t, ok, "same text at another time is a new reply")

	got, err := s.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Replies, 2)
}

func TestAppendReply_UnknownParent(t *testing.T) {
	s := New("")
	c := insert(t, s, "hello", base)

	_, err := s.AppendReply(context.Background(), widget.Reply{ID: "rp_1", CommentID: c.ID, ParentReplyID: "nope", Text: "hi"})
	assert.ErrorIs(t, err, widget.ErrNotFound)

	_, err = s.AppendReply(context.Background(), widget.Reply{ID: "rp_1", CommentID: "nope", Text: "hi"})
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestSwapReactions_VersionConflict(t *testing.T) {
	s := New("")
	c := insert(t, s, "hello", base)
	ctx := context.Background()
	target := widget.Target{CommentID: c.ID}

	_, version, err := s.LoadReactions(ctx, target)
	require.NoError(t, err)
	require.NoError(t, s.SwapReactions(ctx, target, version, map[string]int{"👍": 1}))

	err = s.SwapReactions(ctx, target, version, map[string]int{"👍": 1})
	assert.ErrorIs(t, err, widget.ErrVersionConflict)

	reactions, _, err := s.LoadReactions(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": 1}, reactions)
}

func TestReplyReactions(t *testing.T) {
	s := New("")
	c := insert(t, s, "hello", base)
	ctx := context.Background()
	_, err := s.AppendReply(ctx, widget.Reply{ID: "rp_1", CommentID: c.ID, Text: "hi", CreatedAt: base})
	require.NoError(t, err)

	target := widget.Target{CommentID: c.ID, ReplyID: "rp_1"}
	_, version, err := s.LoadReactions(ctx, target)
	require.NoError(t, err)
	require.NoError(t, s.SwapReactions(ctx, target, version, map[string]int{"❤️": 2}))

	got, err := s.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Reactions)
	assert.Equal(t, map[string]int{"❤️": 2}, got.Replies[0].Reactions)

	_, _, err = s.LoadReactions(ctx, widget.Target{CommentID: c.ID, ReplyID: "missing"})
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	s := New("")
	ctx := context.Background()
	for _, u := range []widget.User{
		{ID: "1", DisplayName: "Alice"},
		{ID: "2", DisplayName: "alex"},
		{ID: "3", DisplayName: "Bob"},
	} {
		require.NoError(t, s.UpsertUser(ctx, u))
	}

	users, err := s.SearchUsers(ctx, "al", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].DisplayName)
	assert.Equal(t, "alex", users[1].DisplayName)

	users, err = s.SearchUsers(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestPut_LastWriteWins(t *testing.T) {
	s := New("http://files.local/")
	ctx := context.Background()

	url, err := s.Put(ctx, "attachments/cat.png", strings.NewReader("one"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://files.local/attachments/cat.png", url)

	_, err = s.Put(ctx, "attachments/cat.png", strings.NewReader("two"), 3, "image/png")
	require.NoError(t, err)

	r, contentType, ok := s.Blob("attachments/cat.png")
	require.True(t, ok)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "image/png", contentType)
}
