package api

import (
	"time"

	"github.com/edgeee/commentsystem/widget"
	"github.com/microcosm-cc/bluemonday"
)

// A commentView is a comment as rendered by the widget. Bodies are sanitized
// HTML; the raw text is never sent.
type commentView struct {
	ID         string         `json:"id"`
	HTML       string         `json:"html"`
	UserName   string         `json:"user_name"`
	UserPhoto  string         `json:"user_photo"`
	FileURL    string         `json:"file_url,omitempty"`
	FontWeight string         `json:"font_weight"`
	Italic     bool           `json:"italic"`
	Underline  bool           `json:"underline"`
	CreatedAt  time.Time      `json:"created_at"`
	TimeAgo    string         `json:"time_ago"`
	Reactions  map[string]int `json:"reactions"`
	Replies    []replyView    `json:"replies"`
}

type replyView struct {
	ID            string         `json:"id"`
	ParentReplyID string         `json:"parent_reply_id,omitempty"`
	HTML          string         `json:"html"`
	UserName      string         `json:"user_name"`
	UserPhoto     string         `json:"user_photo"`
	FileURL       string         `json:"file_url,omitempty"`
	FontWeight    string         `json:"font_weight"`
	Italic        bool           `json:"italic"`
	Underline     bool           `json:"underline"`
	CreatedAt     time.Time      `json:"created_at"`
	TimeAgo       string         `json:"time_ago"`
	Reactions     map[string]int `json:"reactions"`
	Depth         int            `json:"depth"`
	Replies       []replyView    `json:"replies"`
}

// renderer turns widget documents into views.
type renderer struct {
	policy *bluemonday.Policy
	now    time.Time
}

func (rn renderer) comments(cs []*widget.Comment) []commentView {
	out := make([]commentView, len(cs))
	for i, c := range cs {
		out[i] = rn.comment(c)
	}
	return out
}

func (rn renderer) comment(c *widget.Comment) commentView {
	return commentView{
		ID:         c.ID,
		HTML:       rn.policy.Sanitize(c.Text),
		UserName:   c.Author.Name,
		UserPhoto:  c.Author.Photo,
		FileURL:    c.FileURL,
		FontWeight: c.Format.FontWeight(),
		Italic:     c.Format.Italic,
		Underline:  c.Format.Underline,
		CreatedAt:  c.CreatedAt,
		TimeAgo:    widget.TimeAgo(c.CreatedAt, rn.now),
		Reactions:  reactions(c.Reactions),
		Replies:    rn.replies(c.Replies),
	}
}

func (rn renderer) replies(rs []*widget.Reply) []replyView {
	out := make([]replyView, len(rs))
	for i, r := range rs {
		out[i] = rn.reply(r)
	}
	return out
}

func (rn renderer) reply(r *widget.Reply) replyView {
	return replyView{
		ID:            r.ID,
		ParentReplyID: r.ParentReplyID,
		HTML:          rn.policy.Sanitize(r.Text),
		UserName:      r.Author.Name,
		UserPhoto:     r.Author.Photo,
		FileURL:       r.FileURL,
		FontWeight:    r.Format.FontWeight(),
		Italic:        r.Format.Italic,
		Underline:     r.Format.Underline,
		CreatedAt:     r.CreatedAt,
		TimeAgo:       widget.TimeAgo(r.CreatedAt, rn.now),
		Reactions:     reactions(r.Reactions),
		Depth:         r.Depth,
		Replies:       rn.replies(r.Replies),
	}
}

func reactions(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
