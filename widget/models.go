package widget

import (
	"io"
	"strings"
	"time"
)

// An Author is the snapshot of a user's identity taken at post time. It is not
// re-synced when the user later changes their profile.
type Author struct {
	Name  string `json:"user_name"`
	Photo string `json:"user_photo"`
}

// A User is an entry in the user directory used for mentions and sign-in.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

// Author returns the snapshot stored on comments the user posts.
func (u User) Author() Author {
	return Author{Name: u.DisplayName, Photo: u.PhotoURL}
}

// Format holds the formatting toggles of a comment or reply.
type Format struct {
	Bold      bool `json:"bold"`
	Italic    bool `json:"italic"`
	Underline bool `json:"underline"`
}

// FontWeight returns the CSS font weight the format stands for.
func (f Format) FontWeight() string {
	if f.Bold {
		return "bold"
	}
	return "normal"
}

// ParseFontWeight reports whether a stored font weight means bold.
func ParseFontWeight(w string) bool {
	return strings.EqualFold(strings.TrimSpace(w), "bold")
}

// A Comment is a top-level authored entity.
type Comment struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Author    Author         `json:"author"`
	FileURL   string         `json:"file_url"`
	Format    Format         `json:"format"`
	CreatedAt time.Time      `json:"created_at"`
	Reactions map[string]int `json:"reactions,omitempty"`
	Replies   []*Reply       `json:"replies"`
}

// ReactionTotal sums every emoji count on the comment.
func (c *Comment) ReactionTotal() int {
	return sumReactions(c.Reactions)
}

// A Reply is attached under a comment. ParentReplyID is empty for replies
// made directly to the comment.
type Reply struct {
	ID            string         `json:"id"`
	CommentID     string         `json:"comment_id"`
	ParentReplyID string         `json:"parent_reply_id,omitempty"`
	Text          string         `json:"text"`
	Author        Author         `json:"author"`
	FileURL       string         `json:"file_url"`
	Format        Format         `json:"format"`
	CreatedAt     time.Time      `json:"created_at"`
	Reactions     map[string]int `json:"reactions,omitempty"`
	Depth         int            `json:"depth"`
	Replies       []*Reply       `json:"replies,omitempty"`
}

// SameValue reports whether two replies are equal by value. Stores with
// array-union semantics treat such replies as one.
func (r *Reply) SameValue(o *Reply) bool {
	return r.CommentID == o.CommentID &&
		r.ParentReplyID == o.ParentReplyID &&
		r.Text == o.Text &&
		r.Author == o.Author &&
		r.FileURL == o.FileURL &&
		r.Format == o.Format &&
		r.CreatedAt.Equal(o.CreatedAt)
}

// A Target identifies what a reaction applies to: a comment, or one of its
// replies when ReplyID is set.
type Target struct {
	CommentID string
	ReplyID   string
}

func (t Target) String() string {
	if t.ReplyID == "" {
		return t.CommentID
	}
	return t.CommentID + "/" + t.ReplyID
}

// SortKey selects the server-side ordering of comments.
type SortKey string

const (
	SortByCreatedAt SortKey = "createdAt"
	SortByReactions SortKey = "reactions"
)

// ParseSortKey returns the sort key for s, defaulting to SortByCreatedAt.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case "", SortByCreatedAt:
		return SortByCreatedAt, true
	case SortByReactions:
		return SortByReactions, true
	}
	return SortByCreatedAt, false
}

const (
	// DefaultPageSize is the number of comments fetched per page.
	DefaultPageSize = 8
	// MaxPageSize caps client-requested page sizes.
	MaxPageSize = 50
)

// A Query describes one page fetch. An empty Cursor starts from the top.
type Query struct {
	SortBy SortKey
	Limit  int
	Cursor string
}

// Normalize fills in defaults and clamps the page size.
func (q Query) Normalize() Query {
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// A Page is the result of listing comments.
type Page struct {
	Comments   []*Comment `json:"comments"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Total      int        `json:"total"`
}

// An Attachment is a file staged by the composer. It is uploaded before the
// comment document is written.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// A Draft is a finished composer payload.
type Draft struct {
	Text          string
	Format        Format
	Author        Author
	FileURL       string
	ParentReplyID string
}

func sumReactions(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
