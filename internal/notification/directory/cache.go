package directory

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
)

const cacheKeyPrefix = "contact:"

// CachedDirectory is a read-through Redis cache in front of another Directory.
// Cache failures degrade to the underlying lookup. Misses are not cached.
type CachedDirectory struct {
	next   Directory
	client redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedDirectory(next Directory, client redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: log}
}

func cacheKey(kind models.RecipientKind, code string) string {
	return cacheKeyPrefix + string(kind) + ":" + code
}

func (d *CachedDirectory) Lookup(ctx context.Context, kind models.RecipientKind, code string) (*models.Contact, error) {
	key := cacheKey(kind, code)

	cached, err := d.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var c models.Contact
		if jsonErr := json.Unmarshal([]byte(cached), &c); jsonErr == nil {
			return &c, nil
		}
		d.logger.Warn("discarding undecodable cached contact", map[string]interface{}{"key": key})
	case !stderrors.Is(err, redis.Nil):
		d.logger.Warn("contact cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	c, err := d.next.Lookup(ctx, kind, code)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(c); err == nil {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.logger.Warn("contact cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return c, nil
}
