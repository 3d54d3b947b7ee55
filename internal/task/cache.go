package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	userentity "github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/cache"
)

// CacheKey derives the list cache key for identity and the raw query
// parameters: tasks:{userId}:name=JSON(value)&... with names sorted. A
// repeated parameter is encoded as a JSON array. No identity means the
// response must not be cached.
func CacheKey(identity *userentity.Identity, params url.Values) (string, bool) {
	if identity == nil || identity.ID == "" {
		return "", false
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		vals := params[name]
		var v any = vals
		if len(vals) == 1 {
			v = vals[0]
		}
		// Names reach here only after ParseQuery accepted them, so they are not escaped.
		parts = append(parts, name+"="+jsonString(v))
	}
	return "tasks:" + identity.ID + ":" + strings.Join(parts, "&"), true
}

// jsonString encodes v without HTML escaping so keys match plain JSON text.
func jsonString(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
	return strings.TrimSuffix(buf.String(), "\n")
}

// Cache is a read-through cache for list pages. Backend failures degrade to
// a miss and are only logged.
type Cache struct {
	store  cache.Store
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.SugaredLogger
}

func NewCache(store cache.Store, ttl time.Duration, logger *zap.SugaredLogger) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Fetch returns the cached page for key, or runs load once for all
// concurrent callers of the same key and stores its result.
func (c *Cache) Fetch(ctx context.Context, key string, load func(ctx context.Context) (*Page, error)) (*Page, error) {
	if b, err := c.store.Get(ctx, key); err == nil {
		var p Page
		if err := json.Unmarshal(b, &p); err == nil {
			return &p, nil
		}
		c.logger.Warnw("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warnw("cache get failed", "key", key, "err", err)
	}

	// The shared load outlives any single caller; each caller still gives up
	// when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		p, err := load(sctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(sctx, key, b, c.ttl); err != nil {
			c.logger.Warnw("cache set failed", "key", key, "err", err)
		}
		return p, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	}
}
