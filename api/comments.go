package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/edgeee/commentsystem/widget"
)

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Sort   string `json:"sort" validate:"omitempty,oneof=createdAt reactions"`
			Limit  int    `json:"limit" validate:"min=0,max=50"`
			Cursor string `json:"cursor" validate:"max=512"`
		}
		response struct {
			Comments   []commentView  `json:"comments"`
			NextCursor string         `json:"next_cursor,omitempty"`
			Total      int            `json:"total"`
			SortBy     widget.SortKey `json:"sort_by"`
		}
	)

	params := r.URL.Query()
	req := request{Sort: params.Get("sort"), Cursor: params.Get("cursor")}
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		req.Limit = n
	}
	if valid := a.validateBody(w, &req); !valid {
		return
	}

	q := widget.Query{Limit: req.Limit, Cursor: req.Cursor}
	if req.Sort != "" {
		q.SortBy, _ = widget.ParseSortKey(req.Sort)
		// The most recently requested order is the one kept warm.
		a.Coordinator.SetSortBy(q.SortBy)
	} else {
		q.SortBy = a.Coordinator.SortBy()
	}

	var (
		page widget.Page
		err  error
	)
	if q.Cursor == "" {
		page, err = a.Coordinator.Load(r.Context(), q)
	} else {
		page, err = a.Assembler.List(r.Context(), q)
	}
	if err != nil {
		a.respondWidgetError(w, err, "Could not list comments")
		return
	}
	a.Logger.Info("Listed comments", "count", len(page.Comments), "sort", q.SortBy, "more", page.NextCursor != "")

	rn := renderer{policy: a.Sanitizer, now: a.now()}
	a.respond(w, http.StatusOK, response{
		Comments:   rn.comments(page.Comments),
		NextCursor: page.NextCursor,
		Total:      page.Total,
		SortBy:     q.SortBy,
	})
}

func (a *API) countComments(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Count  int            `json:"count"`
		SortBy widget.SortKey `json:"sort_by"`
	}
	a.respond(w, http.StatusOK, response{
		Count:  a.Coordinator.CommentsCount(),
		SortBy: a.Coordinator.SortBy(),
	})
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, "")
}

func (a *API) createReply(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, r.PathValue("commentID"))
}

// submitRequest is the composer payload. It arrives as JSON, or as a
// multipart form when a file is attached.
type submitRequest struct {
	Text          string `json:"text" validate:"max=10000"`
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Underline     bool   `json:"underline"`
	ParentReplyID string `json:"parent_reply_id" validate:"omitempty,max=64"`
}

// submit runs one composer submit for a new comment, or for a reply when
// commentID is set.
func (a *API) submit(w http.ResponseWriter, r *http.Request, commentID string) {
	type response struct {
		CommentID string     `json:"comment_id"`
		Reply     *replyView `json:"reply,omitempty"`
		FileURL   string     `json:"file_url,omitempty"`
	}

	user, ok := a.signedIn(w, r)
	if !ok {
		return
	}

	var (
		body       submitRequest
		attachment *widget.Attachment
	)
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				a.respondError(w, http.StatusRequestEntityTooLarge, err, "Attachment is too large")
				return
			}
			a.respondError(w, http.StatusBadRequest, err, "Could not parse multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		body = submitRequest{
			Text:          r.FormValue("text"),
			Bold:          formBool(r.FormValue("bold")),
			Italic:        formBool(r.FormValue("italic")),
			Underline:     formBool(r.FormValue("underline")),
			ParentReplyID: r.FormValue("parent_reply_id"),
		}
		f, hdr, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			a.respondError(w, http.StatusBadRequest, err, "Could not read attachment")
			return
		default:
			defer f.Close()
			attachment = &widget.Attachment{
				Filename:    hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Size:        hdr.Size,
				Body:        f,
			}
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
			return
		}
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	c := widget.NewComposer(a.Repository, a.Directory, a.notifier(), a.Logger)
	c.SetText(body.Text)
	c.SetFormat(widget.Format{Bold: body.Bold, Italic: body.Italic, Underline: body.Underline})
	if attachment != nil {
		c.StageAttachment(*attachment)
	}
	if commentID != "" {
		c.ReplyTo(commentID, body.ParentReplyID)
	}

	sub, err := c.Submit(r.Context(), user.Author())
	if err != nil {
		a.respondWidgetError(w, err, "Could not save comment")
		return
	}

	res := response{CommentID: sub.CommentID, FileURL: sub.FileURL}
	if sub.Reply != nil {
		v := renderer{policy: a.Sanitizer, now: a.now()}.reply(sub.Reply)
		res.Reply = &v
	}
	a.respond(w, http.StatusCreated, res)
}

func (a *API) notifier() widget.Notifier {
	if a.Coordinator == nil {
		return nil
	}
	return a.Coordinator
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func formBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func (a *API) createReaction(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Emoji string `json:"emoji" validate:"emoji"`
		}
		response struct {
			CommentID string `json:"comment_id"`
			ReplyID   string `json:"reply_id,omitempty"`
			Emoji     string `json:"emoji"`
			Count     int    `json:"count"`
		}
	)

	if _, ok := a.signedIn(w, r); !ok {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	body.Emoji = strings.TrimSpace(body.Emoji)
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	target := widget.Target{CommentID: r.PathValue("commentID"), ReplyID: r.PathValue("replyID")}
	n, err := a.Repository.AddReaction(r.Context(), target, body.Emoji)
	if err != nil {
		a.respondWidgetError(w, err, "Could not add reaction")
		return
	}
	if a.Coordinator != nil {
		a.Coordinator.NotifyChanged(r.Context(), widget.Change{
			Kind:      widget.ReactionAdded,
			CommentID: target.CommentID,
			ReplyID:   target.ReplyID,
			Emoji:     body.Emoji,
			Count:     n,
		})
	}

	a.respond(w, http.StatusCreated, response{
		CommentID: target.CommentID,
		ReplyID:   target.ReplyID,
		Emoji:     body.Emoji,
		Count:     n,
	})
}

func (a *API) listMentions(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Prefix string `json:"q" validate:"max=64"`
		}
		response struct {
			Users []widget.User `json:"users"`
		}
	)

	if _, ok := a.signedIn(w, r); !ok {
		return
	}
	req := request{Prefix: r.URL.Query().Get("q")}
	if valid := a.validateBody(w, &req); !valid {
		return
	}

	c := widget.NewComposer(a.Repository, a.Directory, nil, a.Logger)
	users, err := c.TriggerMention(r.Context(), req.Prefix)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list users")
		return
	}
	if users == nil {
		users = []widget.User{}
	}
	a.respond(w, http.StatusOK, response{Users: users})
}
