package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// RedisCounter keeps connection counts in Redis so every instance agrees on
// whether a user is online.
//
// Redis keys:
//
//	{prefix}:connections            HASH user_id -> live connections (all instances)
//	{prefix}:instance:{instance_id} HASH user_id -> live connections on one instance
//	{prefix}:instances              SET  instance ids that have counted a connection
//
// The per-instance hash carries a TTL refreshed by a heartbeat. On graceful
// shutdown the instance subtracts its share from the global hash. A crashed
// instance stops refreshing its hash; the next Sweep by any instance notices
// the missing hash and rebuilds the global hash from the live ones.
type RedisCounter struct {
	client            *redis.Client
	prefix            string
	instanceID        string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	onStale           func(ctx context.Context, userIDs []string)
	cancel            context.CancelFunc
	wg                sync.WaitGroup
}

// decrScript decrements both hashes and clamps at zero.
var decrScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then redis.call('HDEL', KEYS[1], ARGV[1]) n = 0 end
local m = redis.call('HINCRBY', KEYS[2], ARGV[1], -1)
if m <= 0 then redis.call('HDEL', KEYS[2], ARGV[1]) end
return n
`)

// releaseScript subtracts an instance's counts from the global hash and
// removes the instance hash and its registration.
var releaseScript = redis.NewScript(`
local entries = redis.call('HGETALL', KEYS[2])
for i = 1, #entries, 2 do
  local n = redis.call('HINCRBY', KEYS[1], entries[i], -tonumber(entries[i+1]))
  if n <= 0 then redis.call('HDEL', KEYS[1], entries[i]) end
end
redis.call('DEL', KEYS[2])
redis.call('SREM', KEYS[3], ARGV[1])
return #entries / 2
`)

// sweepScript drops registered instances whose hash is gone and, if there
// were any, rebuilds the global hash as the sum of the remaining instance
// hashes. It returns the users that no longer have any connection.
//
// Instance hash keys are derived from ARGV[1], so the script needs all keys
// of a prefix on one node.
var sweepScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[2])
local live, dead = {}, {}
for _, id in ipairs(members) do
  if redis.call('EXISTS', ARGV[1] .. ':instance:' .. id) == 1 then
    table.insert(live, id)
  else
    table.insert(dead, id)
  end
end
if #dead == 0 then return {} end

local before = redis.call('HKEYS', KEYS[1])
redis.call('DEL', KEYS[1])
for _, id in ipairs(live) do
  local entries = redis.call('HGETALL', ARGV[1] .. ':instance:' .. id)
  for i = 1, #entries, 2 do
    redis.call('HINCRBY', KEYS[1], entries[i], tonumber(entries[i+1]))
  end
end
for _, id in ipairs(dead) do
  redis.call('SREM', KEYS[2], id)
end

local released = {}
for _, user in ipairs(before) do
  if redis.call('HEXISTS', KEYS[1], user) == 0 then
    table.insert(released, user)
  end
end
return released
`)

func NewRedisCounter(client *redis.Client, prefix, instanceID string, keyTTL, heartbeatInterval time.Duration) *RedisCounter {
	return &RedisCounter{
		client:            client,
		prefix:            prefix,
		instanceID:        instanceID,
		keyTTL:            keyTTL,
		heartbeatInterval: heartbeatInterval,
	}
}

func (r *RedisCounter) globalKey() string {
	return fmt.Sprintf("%s:connections", r.prefix)
}

func (r *RedisCounter) instanceKey() string {
	return fmt.Sprintf("%s:instance:%s", r.prefix, r.instanceID)
}

func (r *RedisCounter) instancesKey() string {
	return fmt.Sprintf("%s:instances", r.prefix)
}

// OnStale sets the callback that receives users released by a sweep. It must
// be set before StartHeartbeat.
func (r *RedisCounter) OnStale(fn func(ctx context.Context, userIDs []string)) {
	r.onStale = fn
}

func (r *RedisCounter) Incr(ctx context.Context, userID string) (int64, error) {
	pipe := r.client.TxPipeline()
	global := pipe.HIncrBy(ctx, r.globalKey(), userID, 1)
	pipe.HIncrBy(ctx, r.instanceKey(), userID, 1)
	pipe.Expire(ctx, r.instanceKey(), r.keyTTL)
	pipe.SAdd(ctx, r.instancesKey(), r.instanceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment presence: %w", err)
	}
	return global.Val(), nil
}

func (r *RedisCounter) Decr(ctx context.Context, userID string) (int64, error) {
	n, err := decrScript.Run(ctx, r.client, []string{r.globalKey(), r.instanceKey()}, userID).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement presence: %w", err)
	}
	return n, nil
}

func (r *RedisCounter) Get(ctx context.Context, userID string) (int64, error) {
	n, err := r.client.HGet(ctx, r.globalKey(), userID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read presence: %w", err)
	}
	return n, nil
}

// StartHeartbeat keeps the instance hash alive until ctx is done or Close.
func (r *RedisCounter) StartHeartbeat(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.heartbeatLoop(ctx)

	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Str(log.FieldInstanceID, r.instanceID).Msg("presence heartbeat started")
}

func (r *RedisCounter) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l := log.L()
			if err := r.client.Expire(ctx, r.instanceKey(), r.keyTTL).Err(); err != nil && ctx.Err() == nil {
				l.Error().Err(err).Str("key", r.instanceKey()).Msg("failed to refresh presence key")
			}

			released, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.Error().Err(err).Msg("presence sweep failed")
				}
				continue
			}
			if len(released) > 0 {
				l.Info().Int("users", len(released)).Msg("presence sweep released stale connections")
				if r.onStale != nil {
					r.onStale(ctx, released)
				}
			}
		}
	}
}

// Sweep removes the counts of instances whose hash has expired and returns
// the users left without connections.
func (r *RedisCounter) Sweep(ctx context.Context) ([]string, error) {
	released, err := sweepScript.Run(ctx, r.client, []string{r.globalKey(), r.instancesKey()}, r.prefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to sweep presence: %w", err)
	}
	return released, nil
}

// Close stops the heartbeat and releases this instance's connections from
// the global counts.
func (r *RedisCounter) Close(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	if err := releaseScript.Run(ctx, r.client, []string{r.globalKey(), r.instanceKey(), r.instancesKey()}, r.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release presence: %w", err)
	}
	return nil
}
