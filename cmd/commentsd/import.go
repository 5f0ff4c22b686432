package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/edgeee/commentsystem/config"
	"github.com/edgeee/commentsystem/idgen"
	"github.com/edgeee/commentsystem/postgres"
	"github.com/edgeee/commentsystem/widget"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSON export of legacy comment documents",
	Long: `Import reads a JSON array of comment documents as exported from the
previous document store. createdAt may be a native timestamp object, epoch
milliseconds or an RFC 3339 string. Nested replies are flattened.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store != config.StorePostgres {
			return errors.New("import needs the postgres store")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		pg, err := postgres.Connect(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pg.Close()

		n, err := importComments(cmd.Context(), pg, f, idgen.Reply, time.Now())
		if err != nil {
			return err
		}
		logger.Info("Imported comments", "count", n)
		return nil
	},
}

// A legacyDoc is a comment or reply as stored by the previous document
// store. Replies nest without ids.
type legacyDoc struct {
	Text       string           `json:"text"`
	UserName   string           `json:"userName"`
	UserPhoto  string           `json:"userPhoto"`
	FileURL    string           `json:"fileURL"`
	FontWeight string           `json:"fontWeight"`
	Italic     bool             `json:"italic"`
	Underline  bool             `json:"underline"`
	CreatedAt  widget.Timestamp `json:"createdAt"`
	Reactions  map[string]int   `json:"reactions"`
	Replies    []legacyDoc      `json:"replies"`
}

func (r legacyDoc) format() widget.Format {
	return widget.Format{Bold: widget.ParseFontWeight(r.FontWeight), Italic: r.Italic, Underline: r.Underline}
}

func (r legacyDoc) author() widget.Author {
	return widget.Author{Name: r.UserName, Photo: r.UserPhoto}
}

// createdAt returns the document timestamp, or now when it has none.
func (r legacyDoc) createdAt(now time.Time) time.Time {
	if r.CreatedAt.IsZero() {
		return widget.NormalizeTime(now)
	}
	return widget.NormalizeTime(r.CreatedAt.Time)
}

// importComments writes every legacy document to store and returns the
// number of comments written. Replies get fresh ids and keep their timestamps
// and reactions. Documents without a timestamp are stamped with now.
func importComments(ctx context.Context, store widget.Store, r io.Reader, newReplyID func() (string, error), now time.Time) (int, error) {
	var docs []legacyDoc
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, fmt.Errorf("decode export: %w", err)
	}

	for i, d := range docs {
		c, err := store.InsertComment(ctx, widget.Comment{
			Text:      d.Text,
			Author:    d.author(),
			FileURL:   d.FileURL,
			Format:    d.format(),
			CreatedAt: d.createdAt(now),
			Reactions: d.Reactions,
			Replies:   []*widget.Reply{},
		})
		if err != nil {
			return i, fmt.Errorf("insert comment %d: %w", i, err)
		}
		if err := importReplies(ctx, store, c.ID, "", d.Replies, newReplyID, now); err != nil {
			return i, fmt.Errorf("comment %d: %w", i, err)
		}
	}
	return len(docs), nil
}

func importReplies(ctx context.Context, store widget.Store, commentID, parentID string, replies []legacyDoc, newReplyID func() (string, error), now time.Time) error {
	for _, lr := range replies {
		id, err := newReplyID()
		if err != nil {
			return err
		}
		_, err = store.AppendReply(ctx, widget.Reply{
			ID:            id,
			CommentID:     commentID,
			ParentReplyID: parentID,
			Text:          lr.Text,
			Author:        lr.author(),
			FileURL:       lr.FileURL,
			Format:        lr.format(),
			CreatedAt:     lr.createdAt(now),
			Reactions:     lr.Reactions,
		})
		if err != nil {
			return fmt.Errorf("append reply: %w", err)
		}
		if err := importReplies(ctx, store, commentID, id, lr.Replies, newReplyID, now); err != nil {
			return err
		}
	}
	return nil
}
