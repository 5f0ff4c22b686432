package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/edgeee/commentsystem/idgen"
)

// AttachmentPrefix is the blob store directory attachments are written to.
const AttachmentPrefix = "attachments/"

// maxEmojiRunes bounds a reaction key. Emoji sequences with modifiers and
// joiners stay well below it.
const maxEmojiRunes = 16

// DefaultReactionAttempts bounds the compare-and-swap loop used on stores
// without an atomic increment.
const DefaultReactionAttempts = 5

// Repository maps widget actions to store operations.
type Repository struct {
	Store  Store
	Blobs  BlobStore
	Logger *slog.Logger

	// Now returns the timestamp stamped on new documents. Defaults to
	// time.Now.
	Now func() time.Time
	// NewReplyID defaults to idgen.Reply.
	NewReplyID func() (string, error)
	// ReactionAttempts defaults to DefaultReactionAttempts.
	ReactionAttempts int
}

func (r *Repository) now() time.Time {
	if r.Now != nil {
		return NormalizeTime(r.Now())
	}
	return NormalizeTime(time.Now())
}

func (r *Repository) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// CreateComment stores a new top-level comment and returns its id.
func (r *Repository) CreateComment(ctx context.Context, d Draft) (string, error) {
	if isEmpty(d) {
		return "", ErrEmptySubmission
	}
	saved, err := r.Store.InsertComment(ctx, Comment{
		Text:      d.Text,
		Author:    d.Author,
		FileURL:   d.FileURL,
		Format:    d.Format,
		CreatedAt: r.now(),
		Replies:   []*Reply{},
	})
	if err != nil {
		return "", &WriteError{Op: "create comment", Err: err}
	}
	r.logger().Info("Comment created", "id", saved.ID, "user", d.Author.Name)
	return saved.ID, nil
}

// AttachmentKey returns the blob key for a file name. Only the base name is
// kept, so two uploads of the same name overwrite each other.
func AttachmentKey(filename string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	return AttachmentPrefix + base, nil
}

// UploadAttachment stores the attachment and returns its public URL. It must
// complete before the comment embedding the URL is written.
func (r *Repository) UploadAttachment(ctx context.Context, a Attachment) (string, error) {
	key, err := AttachmentKey(a.Filename)
	if err != nil {
		return "", &UploadError{Filename: a.Filename, Err: err}
	}
	if r.Blobs == nil {
		return "", &UploadError{Filename: a.Filename, Err: errors.New("no blob store configured")}
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := r.Blobs.Put(ctx, key, a.Body, a.Size, contentType)
	if err != nil {
		return "", &UploadError{Filename: a.Filename, Err: err}
	}
	r.logger().Info("Attachment uploaded", "key", key, "size", a.Size)
	return url, nil
}

// AppendReply appends a reply to the comment's reply list. The reply is
// stamped with the current time so that two replies with the same text and
// author stay distinct. When the store already holds an equal reply, that
// stored reply is returned. Failures are not retried.
func (r *Repository) AppendReply(ctx context.Context, commentID string, d Draft) (*Reply, error) {
	if isEmpty(d) {
		return nil, ErrEmptySubmission
	}
	newID := r.NewReplyID
	if newID == nil {
		newID = idgen.Reply
	}
	id, err := newID()
	if err != nil {
		return nil, &WriteError{Op: "append reply", Err: err}
	}
	reply := &Reply{
		ID:            id,
		CommentID:     commentID,
		ParentReplyID: d.ParentReplyID,
		Text:          d.Text,
		Author:        d.Author,
		FileURL:       d.FileURL,
		Format:        d.Format,
		CreatedAt:     r.now(),
	}
	appended, err := r.Store.AppendReply(ctx, *reply)
	if err != nil {
		return nil, &WriteError{Op: "append reply", Err: err}
	}
	if !appended {
		r.logger().Warn("Reply already present", "comment", commentID, "user", d.Author.Name)
		return r.storedReply(ctx, reply)
	}
	return reply, nil
}

// storedReply returns the stored reply equal by value to reply.
func (r *Repository) storedReply(ctx context.Context, reply *Reply) (*Reply, error) {
	c, err := r.Store.GetComment(ctx, reply.CommentID)
	if err != nil {
		return nil, &WriteError{Op: "append reply", Err: err}
	}
	for _, existing := range c.Replies {
		if existing.SameValue(reply) {
			return existing, nil
		}
	}
	return nil, &WriteError{Op: "append reply", Err: fmt.Errorf("reply dropped as a duplicate but not found on comment %s", reply.CommentID)}
}

// AddReaction increments the emoji count on the target and returns the new
// count. Stores with an atomic increment are used directly; otherwise the
// reactions are updated by compare-and-swap, giving up with
// ErrReactionConflict after ReactionAttempts lost races.
func (r *Repository) AddReaction(ctx context.Context, t Target, emoji string) (int, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return 0, ErrInvalidEmoji
	}

	switch s := r.Store.(type) {
	case ReactionIncrementer:
		n, err := s.IncrementReaction(ctx, t, emoji)
		if err != nil {
			return 0, &WriteError{Op: "add reaction", Err: err}
		}
		return n, nil
	case ReactionSwapper:
		return r.swapReaction(ctx, s, t, emoji)
	default:
		return 0, &WriteError{Op: "add reaction", Err: errors.New("store cannot update reactions")}
	}
}

func (r *Repository) swapReaction(ctx context.Context, s ReactionSwapper, t Target, emoji string) (int, error) {
	attempts := r.ReactionAttempts
	if attempts <= 0 {
		attempts = DefaultReactionAttempts
	}
	for i := 0; i < attempts; i++ {
		current, version, err := s.LoadReactions(ctx, t)
		if err != nil {
			return 0, &WriteError{Op: "load reactions", Err: err}
		}
		next := make(map[string]int, len(current)+1)
		maps.Copy(next, current)
		next[emoji]++

		err = s.SwapReactions(ctx, t, version, next)
		if errors.Is(err, ErrVersionConflict) {
			r.logger().Debug("Reaction swap lost a race", "target", t.String(), "attempt", i+1)
			continue
		}
		if err != nil {
			return 0, &WriteError{Op: "add reaction", Err: err}
		}
		return next[emoji], nil
	}
	return 0, ErrReactionConflict
}

func isEmpty(d Draft) bool {
	return strings.TrimSpace(d.Text) == "" && d.FileURL == ""
}
