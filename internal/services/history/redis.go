package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisHistKeyPrefix = "sq:hist:"

// redisHistory keeps one sorted set per room, scored by unix timestamp, so
// the retention window is a ZREMRANGEBYSCORE away.
type redisHistory struct {
	rdc       *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisHistory(rdc *redis.Client, retention time.Duration) IHistoryService {
	return &redisHistory{rdc: rdc, retention: retention, now: time.Now}
}

func (s *redisHistory) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	err = s.rdc.ZAdd(ctx, redisHistKeyPrefix+ev.RoomKey, redis.Z{
		Score:  float64(ev.Ts.Unix()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}
	return nil
}

func (s *redisHistory) Recent(ctx context.Context, roomKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := s.now().Add(-s.retention).Unix()
	raw, err := s.rdc.ZRevRangeByScore(ctx, redisHistKeyPrefix+roomKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(cutoff, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}

	list := make([]Event, 0, len(raw))
	// newest-first from Redis; walk backwards for oldest-first
	for i := len(raw) - 1; i >= 0; i-- {
		var ev Event
		if err := json.Unmarshal([]byte(raw[i]), &ev); err != nil {
			continue // skip unreadable entries, keep the rest of the backfill
		}
		list = append(list, ev)
	}
	return list, nil
}

func (s *redisHistory) Prune(ctx context.Context, now time.Time) error {
	cutoff := strconv.FormatInt(now.Add(-s.retention).Unix(), 10)

	var cursor uint64
	for {
		keys, next, err := s.rdc.Scan(ctx, cursor, redisHistKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
		}
		for _, key := range keys {
			if err := s.rdc.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageDegraded, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
