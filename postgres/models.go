package postgres

import (
	"time"

	"github.com/edgeee/commentsystem/widget"
)

// A comment represents a top-level comment in the database.
type comment struct {
	ID            string     `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	CommentText   string     `bun:"comment_text,notnull"`
	UserName      string     `bun:",notnull"`
	UserPhoto     string     `bun:",notnull"`
	FileURL       string     `bun:"file_url,notnull"`
	FontWeight    string     `bun:",notnull"`
	Italic        bool       `bun:",notnull"`
	Underline     bool       `bun:",notnull"`
	ReactionTotal int        `bun:",notnull"`
	CreatedAt     time.Time  `bun:",nullzero,notnull,default:now()"`
	Replies       []reply    `bun:"rel:has-many,join:id=comment_id"`
	Reactions     []reaction `bun:"rel:has-many,join:id=comment_id"`
}

// Replies of all depths are stored flat; Seq keeps append order.
type reply struct {
	ID            string    `bun:",pk"`
	Seq           int64     `bun:",autoincrement"`
	CommentID     string    `bun:",notnull,type:uuid"`
	ParentReplyID string    `bun:",notnull"`
	ReplyText     string    `bun:"reply_text,notnull"`
	UserName      string    `bun:",notnull"`
	UserPhoto     string    `bun:",notnull"`
	FileURL       string    `bun:"file_url,notnull"`
	FontWeight    string    `bun:",notnull"`
	Italic        bool      `bun:",notnull"`
	Underline     bool      `bun:",notnull"`
	CreatedAt     time.Time `bun:",notnull"`
}

// A reaction is one emoji counter. ReplyID is empty for reactions on the
// comment itself.
type reaction struct {
	CommentID string `bun:",pk,type:uuid"`
	ReplyID   string `bun:",pk"`
	Emoji     string `bun:",pk"`
	Count     int    `bun:",notnull"`
}

type user struct {
	ID          string    `bun:",pk"`
	DisplayName string    `bun:",notnull"`
	PhotoURL    string    `bun:"photo_url,notnull"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:now()"`
}

func newComment(c widget.Comment) *comment {
	return &comment{
		CommentText:   c.Text,
		UserName:      c.Author.Name,
		UserPhoto:     c.Author.Photo,
		FileURL:       c.FileURL,
		FontWeight:    c.Format.FontWeight(),
		Italic:        c.Format.Italic,
		Underline:     c.Format.Underline,
		ReactionTotal: c.ReactionTotal(),
		CreatedAt:     c.CreatedAt,
	}
}

func newReply(r widget.Reply) *reply {
	return &reply{
		ID:            r.ID,
		CommentID:     r.CommentID,
		ParentReplyID: r.ParentReplyID,
		ReplyText:     r.Text,
		UserName:      r.Author.Name,
		UserPhoto:     r.Author.Photo,
		FileURL:       r.FileURL,
		FontWeight:    r.Format.FontWeight(),
		Italic:        r.Format.Italic,
		Underline:     r.Format.Underline,
		CreatedAt:     r.CreatedAt,
	}
}

func (c comment) WidgetComment() widget.Comment {
	byReply := make(map[string]map[string]int)
	for _, r := range c.Reactions {
		m := byReply[r.ReplyID]
		if m == nil {
			m = make(map[string]int)
			byReply[r.ReplyID] = m
		}
		m[r.Emoji] = r.Count
	}

	replies := make([]*widget.Reply, len(c.Replies))
	for i, r := range c.Replies {
		wr := r.WidgetReply()
		wr.Reactions = byReply[r.ID]
		replies[i] = &wr
	}

	return widget.Comment{
		ID:      c.ID,
		Text:    c.CommentText,
		Author:  widget.Author{Name: c.UserName, Photo: c.UserPhoto},
		FileURL: c.FileURL,
		Format: widget.Format{
			Bold:      widget.ParseFontWeight(c.FontWeight),
			Italic:    c.Italic,
			Underline: c.Underline,
		},
		CreatedAt: c.CreatedAt,
		Reactions: byReply[""],
		Replies:   replies,
	}
}

func (r reply) WidgetReply() widget.Reply {
	return widget.Reply{
		ID:            r.ID,
		CommentID:     r.CommentID,
		ParentReplyID: r.ParentReplyID,
		Text:          r.ReplyText,
		Author:        widget.Author{Name: r.UserName, Photo: r.UserPhoto},
		FileURL:       r.FileURL,
		Format: widget.Format{
			Bold:      widget.ParseFontWeight(r.FontWeight),
			Italic:    r.Italic,
			Underline: r.Underline,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (u user) WidgetUser() widget.User {
	return widget.User{ID: u.ID, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}
