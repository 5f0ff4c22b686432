package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgeee/commentsystem/widget"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached page survives without an invalidation.
const DefaultTTL = time.Minute

// Redis caches assembled first pages of comments in Redis.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. addr is either host:port or a redis:// URL.
func Connect(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli, ttl), nil
}

// New returns a cache on an existing client. A non-positive ttl means
// DefaultTTL.
func New(cli *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{cli: cli, ttl: ttl}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	pagePrefix = "comments:page"
	// pageIndex is a set of every cached page key.
	pageIndex = "comments:pages"
	// genKey is bumped by every Invalidate.
	genKey = "comments:gen"

	maxRetries = 3
)

func pageKey(q widget.Query) string {
	return fmt.Sprintf("%s:%s:%d", pagePrefix, q.SortBy, q.Limit)
}

// GetPage returns the cached first page for the query.
func (r *Redis) GetPage(ctx context.Context, q widget.Query) (widget.Page, bool, error) {
	res := r.cli.HGetAll(ctx, pageKey(q))
	vals, err := res.Result()
	if err != nil {
		return widget.Page{}, false, fmt.Errorf("hgetall: %w", err)
	}
	if len(vals) == 0 {
		return widget.Page{}, false, nil
	}
	var p page
	if err := res.Scan(&p); err != nil {
		return widget.Page{}, false, fmt.Errorf("scan: %w", err)
	}
	out, err := p.WidgetPage()
	if err != nil {
		return widget.Page{}, false, err
	}
	return out, true, nil
}

// Generation returns the invalidation counter. It is 0 until the first
// Invalidate.
func (r *Redis) Generation(ctx context.Context) (int64, error) {
	return generation(ctx, r.cli)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, cmd getter) (int64, error) {
	gen, err := cmd.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// SetPage caches the first page for the query if the cache is still at
// generation gen. A page read before an Invalidate is dropped, as is one
// racing a concurrent Invalidate.
func (r *Redis) SetPage(ctx context.Context, q widget.Query, gen int64, p widget.Page) error {
	m, err := newPage(p, time.Now())
	if err != nil {
		return err
	}
	key := pageKey(q)

	err = r.cli.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, m)
			pipe.Expire(ctx, key, r.ttl)
			pipe.SAdd(ctx, pageIndex, key)
			return nil
		})
		return err
	}, genKey, pageIndex)

	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set page: %w", err)
	}
	return nil
}

// Invalidate drops every cached page and bumps the generation. The index is
// watched, so a page cached concurrently makes the transaction retry.
func (r *Redis) Invalidate(ctx context.Context) error {
	invalidate := func(tx *redis.Tx) error {
		keys, err := tx.SMembers(ctx, pageIndex).Result()
		if err != nil {
			return fmt.Errorf("smembers: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, append(keys, pageIndex)...)
			pipe.Incr(ctx, genKey)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		err = r.cli.Watch(ctx, invalidate, pageIndex)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}
