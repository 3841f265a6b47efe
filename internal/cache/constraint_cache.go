// Package cache keeps per-level constraint snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// absent marks an approver that has no constraint row at the level.
const absent = "null"

// Loader reads constraints from the system of record.
type Loader func(ctx context.Context, approverIDs []string, level int) (selection.Constraints, error)

// ConstraintCache fronts a Loader with a Redis hash per level. Redis errors
// are logged and the loader is used directly.
type ConstraintCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewConstraintCache creates a cache. A zero ttl defaults to one minute.
func NewConstraintCache(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *ConstraintCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ConstraintCache{
		client: client,
		ttl:    ttl,
		prefix: "approver-selection:constraints:",
		log:    log,
	}
}

// NewRedisClient builds a go-redis client.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *ConstraintCache) key(level int) string {
	return fmt.Sprintf("%s%d", c.prefix, level)
}

func (c *ConstraintCache) generationKey(level int) string {
	return fmt.Sprintf("%sgen:%d", c.prefix, level)
}

// storeScript writes loaded fields only if the level's generation is still the
// one read before the load. The TTL is set once per hash and never extended.
var storeScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// Snapshot returns the constraints for approverIDs at level, loading and
// caching any IDs not already cached.
func (c *ConstraintCache) Snapshot(ctx context.Context, approverIDs []string, level int, load Loader) (selection.Constraints, error) {
	if len(approverIDs) == 0 {
		return selection.Constraints{}, nil
	}

	key := c.key(level)
	gen, err := c.client.Get(ctx, c.generationKey(level)).Result()
	switch {
	case err == redis.Nil:
		gen = "0"
	case err != nil:
		c.log.Warn().Err(err).Int("hierarchy_level", level).Msg("Constraint cache read failed; using database")
		return load(ctx, approverIDs, level)
	}

	vals, err := c.client.HMGet(ctx, key, approverIDs...).Result()
	if err != nil {
		c.log.Warn().Err(err).Int("hierarchy_level", level).Msg("Constraint cache read failed; using database")
		return load(ctx, approverIDs, level)
	}

	out := make(selection.Constraints, len(approverIDs))
	var missing []string
	for i, v := range vals {
		id := approverIDs[i]
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, id)
			continue
		}
		if raw == absent {
			continue
		}
		var con selection.Constraint
		if err := json.Unmarshal([]byte(raw), &con); err != nil {
			missing = append(missing, id)
			continue
		}
		out[selection.ConstraintKey{ApproverID: id, Level: selection.Level(level)}] = con
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := load(ctx, missing, level)
	if err != nil {
		return nil, err
	}
	fields := make([]any, 0, 2*len(missing))
	for _, id := range missing {
		k := selection.ConstraintKey{ApproverID: id, Level: selection.Level(level)}
		con, ok := loaded[k]
		if !ok {
			fields = append(fields, id, absent)
			continue
		}
		out[k] = con
		b, err := json.Marshal(con)
		if err != nil {
			continue
		}
		fields = append(fields, id, string(b))
	}
	c.store(ctx, level, gen, fields)
	return out, nil
}

// store writes fields unless the level was invalidated after gen was read.
func (c *ConstraintCache) store(ctx context.Context, level int, gen string, fields []any) {
	if len(fields) == 0 {
		return
	}
	args := append([]any{gen, c.ttl.Milliseconds()}, fields...)
	stored, err := storeScript.Run(ctx, c.client, []string{c.key(level), c.generationKey(level)}, args...).Int()
	if err != nil {
		c.log.Warn().Err(err).Int("hierarchy_level", level).Msg("Constraint cache write failed")
		return
	}
	if stored == 0 {
		c.log.Debug().Int("hierarchy_level", level).Msg("Constraint cache invalidated during load; write skipped")
	}
}

// Invalidate drops the cached snapshot for a level and bumps its generation
// so loads already in flight do not repopulate it.
func (c *ConstraintCache) Invalidate(ctx context.Context, level int) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.generationKey(level))
	pipe.Del(ctx, c.key(level))
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("hierarchy_level", level).Msg("Constraint cache invalidation failed")
	}
}
