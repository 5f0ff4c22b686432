package widget

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// ComposerState is the state of the authoring surface.
type ComposerState int

const (
	Idle ComposerState = iota
	MentionMenuOpen
	Submitting
)

func (s ComposerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case MentionMenuOpen:
		return "mention_menu_open"
	case Submitting:
		return "submitting"
	}
	return "unknown"
}

// MentionLimit is the number of directory entries offered in the mention
// menu.
const MentionLimit = 10

// ErrSubmitInProgress is returned when Submit is called while a previous
// submit has not finished.
var ErrSubmitInProgress = errors.New("submit already in progress")

// ErrNoMentionMenu is returned by SelectMention when the menu is closed or the
// index is out of range.
var ErrNoMentionMenu = errors.New("no such mention entry")

// A Submission is the outcome of a successful submit.
type Submission struct {
	CommentID string
	Reply     *Reply
	FileURL   string
}

type stagedAttachment struct {
	Attachment
	// url is set once the upload succeeded so a retried submit does not
	// upload again.
	url string
}

// Composer manages one authoring surface: text, formatting toggles, a staged
// attachment, the mention menu, and the reply target. It serves both new
// comments and replies.
type Composer struct {
	repo      *Repository
	directory Directory
	notifier  Notifier
	logger    *slog.Logger

	mu            sync.Mutex
	state         ComposerState
	text          string
	format        Format
	attachment    *stagedAttachment
	commentID     string
	parentReplyID string
	mentions      []User
}

// NewComposer returns an idle composer. directory and notifier may be nil.
func NewComposer(repo *Repository, directory Directory, notifier Notifier, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
	}
}

// State returns the current state.
func (c *Composer) State() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Text returns the text buffer.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Format returns the formatting toggles.
func (c *Composer) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// HasAttachment reports whether a file is staged.
func (c *Composer) HasAttachment() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment != nil
}

// Mentions returns the entries of the open mention menu.
func (c *Composer) Mentions() []User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]User(nil), c.mentions...)
}

// edit runs fn on the composer fields unless a submit is in flight.
func (c *Composer) edit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return
	}
	fn()
}

// SetText replaces the text buffer.
func (c *Composer) SetText(s string) {
	c.edit(func() { c.text = s })
}

// SetFormat replaces all formatting toggles at once.
func (c *Composer) SetFormat(f Format) {
	c.edit(func() { c.format = f })
}

func (c *Composer) ToggleBold() {
	c.edit(func() { c.format.Bold = !c.format.Bold })
}

func (c *Composer) ToggleItalic() {
	c.edit(func() { c.format.Italic = !c.format.Italic })
}

func (c *Composer) ToggleUnderline() {
	c.edit(func() { c.format.Underline = !c.format.Underline })
}

// StageAttachment stages a file for the next submit. Nothing is uploaded yet.
func (c *Composer) StageAttachment(a Attachment) {
	c.edit(func() { c.attachment = &stagedAttachment{Attachment: a} })
}

// ClearAttachment drops the staged file.
func (c *Composer) ClearAttachment() {
	c.edit(func() { c.attachment = nil })
}

// ReplyTo makes the next submit a reply to the comment, nested under
// parentReplyID when it is set. An empty commentID goes back to composing a
// top-level comment.
func (c *Composer) ReplyTo(commentID, parentReplyID string) {
	c.edit(func() {
		c.commentID = commentID
		c.parentReplyID = parentReplyID
		if commentID == "" {
			c.parentReplyID = ""
		}
	})
}

// TriggerMention fetches directory entries matching prefix and opens the
// mention menu.
func (c *Composer) TriggerMention(ctx context.Context, prefix string) ([]User, error) {
	if c.State() == Submitting {
		return nil, ErrSubmitInProgress
	}
	if c.directory == nil {
		return nil, errors.New("no user directory configured")
	}
	users, err := c.directory.SearchUsers(ctx, prefix, MentionLimit)
	if err != nil {
		c.logger.Error("Could not fetch users for mention", "error", err.Error())
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return nil, ErrSubmitInProgress
	}
	c.mentions = users
	c.state = MentionMenuOpen
	return append([]User(nil), users...), nil
}

// SelectMention inserts "@displayName" for the i-th menu entry and closes the
// menu. A trailing "@partial" token being typed is replaced.
func (c *Composer) SelectMention(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != MentionMenuOpen || i < 0 || i >= len(c.mentions) {
		return ErrNoMentionMenu
	}
	c.text = trimMentionToken(c.text) + "@" + c.mentions[i].DisplayName
	c.mentions = nil
	c.state = Idle
	return nil
}

// CloseMentions closes the mention menu without inserting anything.
func (c *Composer) CloseMentions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == MentionMenuOpen {
		c.state = Idle
	}
	c.mentions = nil
}

func trimMentionToken(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	if strings.IndexFunc(s[at:], unicode.IsSpace) >= 0 {
		return s
	}
	return s[:at]
}

// Submit uploads the staged attachment, then writes the comment or reply. On
// success every field is cleared and the notifier is told. On failure the
// fields are kept, the error is logged and returned. An empty submission
// writes nothing and leaves the composer unchanged.
func (c *Composer) Submit(ctx context.Context, author Author) (Submission, error) {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return Submission{}, ErrSubmitInProgress
	}
	if strings.TrimSpace(c.text) == "" && c.attachment == nil {
		c.mu.Unlock()
		return Submission{}, ErrEmptySubmission
	}
	if author.Name == "" {
		c.mu.Unlock()
		return Submission{}, ErrNotSignedIn
	}
	c.state = Submitting
	c.mentions = nil
	draft := Draft{
		Text:          c.text,
		Format:        c.format,
		Author:        author,
		ParentReplyID: c.parentReplyID,
	}
	commentID := c.commentID
	staged := c.attachment
	c.mu.Unlock()

	sub, err := c.submit(ctx, draft, commentID, staged)
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		c.logger.Error("Could not submit comment", "comment", commentID, "error", err.Error())
		return Submission{}, err
	}

	c.mu.Lock()
	c.text = ""
	c.format = Format{}
	c.attachment = nil
	c.commentID = ""
	c.parentReplyID = ""
	c.state = Idle
	c.mu.Unlock()

	if c.notifier != nil {
		ch := Change{Kind: CommentCreated, CommentID: sub.CommentID}
		if sub.Reply != nil {
			ch = Change{Kind: ReplyAdded, CommentID: sub.CommentID, ReplyID: sub.Reply.ID, At: sub.Reply.CreatedAt}
		}
		c.notifier.NotifyChanged(ctx, ch)
	}
	return sub, nil
}

func (c *Composer) submit(ctx context.Context, d Draft, commentID string, staged *stagedAttachment) (Submission, error) {
	if staged != nil {
		if staged.url == "" {
			url, err := c.repo.UploadAttachment(ctx, staged.Attachment)
			if err != nil {
				return Submission{}, err
			}
			c.mu.Lock()
			staged.url = url
			c.mu.Unlock()
		}
		d.FileURL = staged.url
	}

	if commentID == "" {
		id, err := c.repo.CreateComment(ctx, d)
		if err != nil {
			return Submission{}, err
		}
		return Submission{CommentID: id, FileURL: d.FileURL}, nil
	}

	reply, err := c.repo.AppendReply(ctx, commentID, d)
	if err != nil {
		return Submission{}, err
	}
	return Submission{CommentID: commentID, Reply: reply, FileURL: d.FileURL}, nil
}
