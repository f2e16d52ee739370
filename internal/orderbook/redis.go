package orderbook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xtrntr/resale/internal/models"
)

// Members are "seq:bidID:price" with seq zero padded, so entries that share a
// score sort by registration sequence under Redis' lexicographic tie-break.
// The companion hash maps bid id to its current member for O(log n) removal.
var insertScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[2], ARGV[1])
if old then
	redis.call('ZREM', KEYS[1], old)
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

var removeScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[2], ARGV[1])
if not old then
	return 0
end
redis.call('ZREM', KEYS[1], old)
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// RedisIndex stores each book as a Redis sorted set shared by every node
type RedisIndex struct {
	client redis.UniversalClient
}

// NewRedisIndex creates an index over client
func NewRedisIndex(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{client: client}
}

func membersKey(optionID int64, side models.Side) string {
	return Key(optionID, side) + ":members"
}

func encodeMember(e Entry) string {
	return fmt.Sprintf("%019d:%d:%d", e.Seq, e.BidID, e.Price)
}

func decodeMember(member string) (Entry, error) {
	parts := strings.Split(member, ":")
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("malformed book member %q", member)
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("malformed book member %q: %w", member, err)
		}
		vals[i] = v
	}
	return Entry{Seq: vals[0], BidID: vals[1], Price: vals[2]}, nil
}

// Insert adds or replaces the entry for e.BidID
func (r *RedisIndex) Insert(ctx context.Context, optionID int64, side models.Side, e Entry) error {
	keys := []string{Key(optionID, side), membersKey(optionID, side)}
	score := float64(Score(side, e.Price))
	if err := insertScript.Run(ctx, r.client, keys, e.BidID, score, encodeMember(e)).Err(); err != nil {
		return fmt.Errorf("failed to insert bid %d into %s: %w", e.BidID, keys[0], err)
	}
	return nil
}

// Remove deletes the entry for bidID if present
func (r *RedisIndex) Remove(ctx context.Context, optionID int64, side models.Side, bidID int64) error {
	keys := []string{Key(optionID, side), membersKey(optionID, side)}
	if err := removeScript.Run(ctx, r.client, keys, bidID).Err(); err != nil {
		return fmt.Errorf("failed to remove bid %d from %s: %w", bidID, keys[0], err)
	}
	return nil
}

// PeekBest returns the leading entry
func (r *RedisIndex) PeekBest(ctx context.Context, optionID int64, side models.Side) (Entry, bool, error) {
	return r.PeekAt(ctx, optionID, side, 0)
}

// PeekAt returns the entry at rank
func (r *RedisIndex) PeekAt(ctx context.Context, optionID int64, side models.Side, rank int) (Entry, bool, error) {
	if rank < 0 {
		return Entry{}, false, nil
	}
	key := Key(optionID, side)
	members, err := r.client.ZRange(ctx, key, int64(rank), int64(rank)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(members) == 0 {
		return Entry{}, false, nil
	}
	e, err := decodeMember(members[0])
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Entries returns the book in priority order
func (r *RedisIndex) Entries(ctx context.Context, optionID int64, side models.Side) ([]Entry, error) {
	key := Key(optionID, side)
	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := make([]Entry, 0, len(members))
	for _, m := range members {
		e, err := decodeMember(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
