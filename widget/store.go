package widget

import (
	"context"
	"io"
)

// A Store persists comment documents and their replies.
//
// ListComments returns up to limit comments ordered by sort, starting after
// the cursor position when after is non-nil. Each comment carries its replies
// as a flat list in append order; the Assembler rebuilds the tree.
//
// AppendReply has array-union semantics: a reply equal by value to one already
// stored is not added again, and appended is false.
type Store interface {
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id string) (Comment, error)
	ListComments(ctx context.Context, sort SortKey, limit int, after *Cursor) ([]*Comment, error)
	CountComments(ctx context.Context) (int, error)
	AppendReply(ctx context.Context, r Reply) (appended bool, err error)
}

// A ReactionIncrementer is a Store that can increment a reaction count
// atomically.
type ReactionIncrementer interface {
	IncrementReaction(ctx context.Context, t Target, emoji string) (int, error)
}

// A ReactionSwapper is a Store without an atomic increment. Reactions are
// updated by compare-and-swap on a version number; SwapReactions returns
// ErrVersionConflict when the version moved.
type ReactionSwapper interface {
	LoadReactions(ctx context.Context, t Target) (reactions map[string]int, version int64, err error)
	SwapReactions(ctx context.Context, t Target, version int64, reactions map[string]int) error
}

// A BlobStore stores attachment bytes and issues public URLs for them.
// Writing an existing key overwrites it.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (url string, err error)
}

// A Directory looks up users for mentions.
type Directory interface {
	SearchUsers(ctx context.Context, prefix string, limit int) ([]User, error)
}

// A PageCache holds assembled first pages. A miss is reported with ok false.
//
// Generation changes on every Invalidate. Callers read it before fetching a
// page from the store and pass it to SetPage, which drops the page when the
// cache was invalidated in between.
type PageCache interface {
	GetPage(ctx context.Context, q Query) (p Page, ok bool, err error)
	Generation(ctx context.Context) (int64, error)
	SetPage(ctx context.Context, q Query, gen int64, p Page) error
	Invalidate(ctx context.Context) error
}

// A Publisher emits change events to other instances.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// A Notifier is told about every successful mutation.
type Notifier interface {
	NotifyChanged(ctx context.Context, c Change)
}
