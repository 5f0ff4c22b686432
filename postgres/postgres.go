package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgeee/commentsystem/postgres/migrations"
	"github.com/edgeee/commentsystem/widget"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// Postgres provides comment storage in PostgreSQL. Reactions are incremented
// atomically in the database.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(sqlDB), nil
}

// New wraps an open database handle.
func New(sqlDB *sql.DB) *Postgres {
	return &Postgres{
		bun: bun.NewDB(sqlDB, pgdialect.New()),
	}
}

// Close closes the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// Migrate applies every pending schema migration and returns the names of
// the applied ones.
func (pg *Postgres) Migrate(ctx context.Context) ([]string, error) {
	m := migrate.NewMigrator(pg.bun, migrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	defer m.Unlock(ctx)

	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	var names []string
	for _, mg := range group.Migrations {
		names = append(names, mg.Name)
	}
	return names, nil
}

// InsertComment inserts a comment with its reactions. The returned comment
// holds the generated id.
func (pg *Postgres) InsertComment(ctx context.Context, c widget.Comment) (widget.Comment, error) {
	m := newComment(c)
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Returning("id, created_at").Exec(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if len(c.Reactions) == 0 {
			return nil
		}
		rs := make([]reaction, 0, len(c.Reactions))
		for emoji, n := range c.Reactions {
			rs = append(rs, reaction{CommentID: m.ID, Emoji: emoji, Count: n})
		}
		if _, err := tx.NewInsert().Model(&rs).Returning("NULL").Exec(ctx); err != nil {
			return fmt.Errorf("insert reactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return widget.Comment{}, err
	}
	out := c
	out.ID = m.ID
	out.CreatedAt = m.CreatedAt
	return out, nil
}

// GetComment returns one comment with its replies in append order.
func (pg *Postgres) GetComment(ctx context.Context, id string) (widget.Comment, error) {
	var m comment
	err := pg.selectComments(&m).Where("?TableAlias.id = ?", id).Scan(ctx)
	if err != nil {
		return widget.Comment{}, fmt.Errorf("scan comment %s: %w", id, notFound(err))
	}
	return m.WidgetComment(), nil
}

// ListComments returns up to limit comments ordered by sort, starting after
// the cursor. Both orders are keyset paginated on (key, id).
func (pg *Postgres) ListComments(ctx context.Context, sort widget.SortKey, limit int, after *widget.Cursor) ([]*widget.Comment, error) {
	var rows []comment
	q := pg.selectComments(&rows).Limit(limit)

	switch sort {
	case widget.SortByReactions:
		q = q.OrderExpr("?TableAlias.reaction_total DESC, ?TableAlias.id DESC")
		if after != nil {
			q = q.Where("(?TableAlias.reaction_total, ?TableAlias.id) < (?, ?)", after.Key, after.ID)
		}
	default:
		q = q.OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC")
		if after != nil {
			q = q.Where("(?TableAlias.created_at, ?TableAlias.id) < (?, ?)", time.UnixMicro(after.Key).UTC(), after.ID)
		}
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]*widget.Comment, len(rows))
	for i, m := range rows {
		c := m.WidgetComment()
		out[i] = &c
	}
	return out, nil
}

func (pg *Postgres) selectComments(model any) *bun.SelectQuery {
	return pg.bun.NewSelect().
		Model(model).
		Relation("Replies", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("seq ASC")
		}).
		Relation("Reactions")
}

// CountComments returns the number of comments.
func (pg *Postgres) CountComments(ctx context.Context) (int, error) {
	n, err := pg.bun.NewSelect().Model((*comment)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// AppendReply inserts the reply unless a value-equal one exists. Reactions
// carried by the reply, as on imported documents, are inserted with it.
func (pg *Postgres) AppendReply(ctx context.Context, r widget.Reply) (bool, error) {
	var appended bool
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if r.ParentReplyID != "" {
			if err := replyExists(ctx, tx, r.CommentID, r.ParentReplyID); err != nil {
				return err
			}
		}
		res, err := tx.NewInsert().
			Model(newReply(r)).
			On("CONFLICT DO NOTHING").
			Returning("NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert: %w", notFound(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		appended = n > 0
		if !appended || len(r.Reactions) == 0 {
			return nil
		}
		rs := make([]reaction, 0, len(r.Reactions))
		for emoji, count := range r.Reactions {
			rs = append(rs, reaction{CommentID: r.CommentID, ReplyID: r.ID, Emoji: emoji, Count: count})
		}
		if _, err := tx.NewInsert().Model(&rs).Returning("NULL").Exec(ctx); err != nil {
			return fmt.Errorf("insert reactions: %w", err)
		}
		return nil
	})
	return appended, err
}

// IncrementReaction adds one to the emoji count of the target and returns the
// new count. The comment's reaction total is kept in step in the same
// transaction.
func (pg *Postgres) IncrementReaction(ctx context.Context, t widget.Target, emoji string) (int, error) {
	rm := &reaction{CommentID: t.CommentID, ReplyID: t.ReplyID, Emoji: emoji, Count: 1}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if t.ReplyID != "" {
			if err := replyExists(ctx, tx, t.CommentID, t.ReplyID); err != nil {
				return err
			}
		}
		_, err := tx.NewInsert().
			Model(rm).
			On("CONFLICT (comment_id, reply_id, emoji) DO UPDATE").
			Set("count = ?TableAlias.count + 1").
			Returning("count").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert reaction: %w", notFound(err))
		}
		if t.ReplyID != "" {
			return nil
		}
		_, err = tx.NewUpdate().
			Model((*comment)(nil)).
			Set("reaction_total = reaction_total + 1").
			Where("id = ?", t.CommentID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update reaction total: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rm.Count, nil
}

func replyExists(ctx context.Context, tx bun.Tx, commentID, replyID string) error {
	ok, err := tx.NewSelect().
		Model((*reply)(nil)).
		Where("id = ?", replyID).
		Where("comment_id = ?", commentID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("find reply %s: %w", replyID, notFound(err))
	}
	if !ok {
		return fmt.Errorf("reply %s: %w", replyID, widget.ErrNotFound)
	}
	return nil
}

// UpsertUser records a user in the mention directory.
func (pg *Postgres) UpsertUser(ctx context.Context, u widget.User) error {
	m := &user{ID: u.ID, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
	_, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("photo_url = EXCLUDED.photo_url").
		Set("updated_at = now()").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// SearchUsers returns users whose display name starts with prefix, ignoring
// case.
func (pg *Postgres) SearchUsers(ctx context.Context, prefix string, limit int) ([]widget.User, error) {
	var users []user
	err := pg.bun.NewSelect().
		Model(&users).
		Where("lower(display_name) LIKE ?", escapeLike(strings.ToLower(prefix))+"%").
		Order("display_name ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]widget.User, len(users))
	for i, u := range users {
		out[i] = u.WidgetUser()
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Postgres error codes mapped to widget.ErrNotFound.
const (
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// notFound maps a missing row, a dangling foreign key and a malformed uuid to
// widget.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return widget.ErrNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case codeForeignKeyViolation, codeInvalidText:
			return fmt.Errorf("%w: %v", widget.ErrNotFound, err)
		}
	}
	return err
}
