package lockout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript mirrors Policy.Apply. All times are unix milliseconds.
var incrementScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
local updated = tonumber(redis.call('HGET', KEYS[1], 'updated_at') or '0')
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

if locked > 0 and now < locked then
	return {count, locked, updated}
end
if locked > 0 then
	count = 0
	locked = 0
end

count = count + 1
if count >= threshold then
	locked = now + duration
end

redis.call('HSET', KEYS[1], 'count', count, 'locked_until', locked, 'updated_at', now)
if locked > 0 and locked - now > ttl then
	ttl = locked - now
end
redis.call('PEXPIRE', KEYS[1], ttl)

return {count, locked, now}
`)

type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	idleTTL time.Duration
}

type RedisOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func NewRedisStore(rdb *redis.Client, idleTTL time.Duration, opts ...RedisOption) *RedisStore {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	s := &RedisStore{
		rdb:     rdb,
		prefix:  "lockout",
		idleTTL: idleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

func (s *RedisStore) Get(ctx context.Context, identifier string, _ time.Time) (State, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		return State{}, fmt.Errorf("redis get lockout: %w", err)
	}

	state := State{Identifier: identifier}
	if len(fields) == 0 {
		return state, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return State{}, fmt.Errorf("parse lockout count: %w", err)
	}
	lockedMs, err := parseMillis(fields["locked_until"])
	if err != nil {
		return State{}, fmt.Errorf("parse lockout locked_until: %w", err)
	}
	updatedMs, err := parseMillis(fields["updated_at"])
	if err != nil {
		return State{}, fmt.Errorf("parse lockout updated_at: %w", err)
	}

	return buildState(identifier, count, lockedMs, updatedMs), nil
}

func (s *RedisStore) Increment(ctx context.Context, identifier string, policy Policy, now time.Time) (State, error) {
	values, err := incrementScript.Run(ctx, s.rdb, []string{s.key(identifier)},
		now.UnixMilli(),
		policy.Threshold,
		policy.Duration.Milliseconds(),
		s.idleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("redis increment lockout: %w", err)
	}
	if len(values) != 3 {
		return State{}, fmt.Errorf("redis increment lockout: unexpected reply length %d", len(values))
	}

	return buildState(identifier, int(values[0]), values[1], values[2]), nil
}

func (s *RedisStore) Clear(ctx context.Context, identifier string) error {
	if err := s.rdb.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("redis clear lockout: %w", err)
	}
	return nil
}

func buildState(identifier string, count int, lockedMs, updatedMs int64) State {
	state := State{
		Identifier:   identifier,
		AttemptCount: count,
	}
	if lockedMs > 0 {
		until := time.UnixMilli(lockedMs).UTC()
		state.LockedUntil = &until
	}
	if updatedMs > 0 {
		state.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	}
	return state
}

func parseMillis(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
