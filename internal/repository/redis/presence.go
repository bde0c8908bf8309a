// Package redis keeps presence and typing state in Redis so every node sees
// the same lossy, TTL-bound view.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/relay/internal/domain"
)

const (
	presenceOnlinePrefix   = "relay:presence:online:"
	presenceConnsPrefix    = "relay:presence:conns:"
	presenceLastSeenPrefix = "relay:presence:last_seen:"
	presenceExpiresPrefix  = "relay:presence:expires:"
)

func onlineKey(id uuid.UUID) string   { return presenceOnlinePrefix + id.String() }
func connsKey(id uuid.UUID) string    { return presenceConnsPrefix + id.String() }
func lastSeenKey(id uuid.UUID) string { return presenceLastSeenPrefix + id.String() }
func expiresKey(id uuid.UUID) string  { return presenceExpiresPrefix + id.String() }

// last_seen is written only when a user goes offline. expires holds the
// deadline of the online flag and stands in for last_seen once the flag
// lapses without a disconnect.
//
// KEYS: online, conns, last_seen, expires. ARGV: ttl ms, now ms.
var connectScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
local was = redis.call('EXISTS', KEYS[1])
redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
redis.call('SET', KEYS[4], tonumber(ARGV[2]) + tonumber(ARGV[1]))
if was == 0 then return 1 end
return 0
`)

var disconnectScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local n = redis.call('DECR', KEYS[2])
if n > 0 then return 0 end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[4])
redis.call('SET', KEYS[3], ARGV[2])
return 1
`)

var refreshScript = redis.NewScript(`
local was = redis.call('EXISTS', KEYS[1])
redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
if redis.call('EXISTS', KEYS[2]) == 0 then
  redis.call('SET', KEYS[2], 1, 'PX', ARGV[1])
else
  redis.call('PEXPIRE', KEYS[2], ARGV[1])
end
redis.call('SET', KEYS[4], tonumber(ARGV[2]) + tonumber(ARGV[1]))
return was
`)

var offlineScript = redis.NewScript(`
local was = redis.call('DEL', KEYS[1])
redis.call('DEL', KEYS[2], KEYS[4])
redis.call('SET', KEYS[3], ARGV[2])
return was
`)

type PresenceStore struct {
	rdb *redis.Client
}

func NewPresenceStore(rdb *redis.Client) *PresenceStore {
	return &PresenceStore{rdb: rdb}
}

func (s *PresenceStore) run(ctx context.Context, script *redis.Script, userID uuid.UUID, ttl time.Duration, at time.Time) (bool, error) {
	keys := []string{onlineKey(userID), connsKey(userID), lastSeenKey(userID), expiresKey(userID)}
	n, err := script.Run(ctx, s.rdb, keys, ttl.Milliseconds(), at.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("presence script: %w", err)
	}
	return n == 1, nil
}

func (s *PresenceStore) Connect(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	return s.run(ctx, connectScript, userID, ttl, time.Now())
}

func (s *PresenceStore) Disconnect(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	return s.run(ctx, disconnectScript, userID, 0, at)
}

func (s *PresenceStore) Refresh(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	return s.run(ctx, refreshScript, userID, ttl, time.Now())
}

func (s *PresenceStore) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	return s.run(ctx, offlineScript, userID, 0, at)
}

func (s *PresenceStore) Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	vals, err := s.rdb.MGet(ctx, onlineKey(userID), lastSeenKey(userID), expiresKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading presence: %w", err)
	}

	p := &domain.Presence{UserID: userID, Online: vals[0] != nil}
	lastSeen, err := parseMillis(vals[1])
	if err != nil {
		return nil, fmt.Errorf("parsing last seen: %w", err)
	}
	if !p.Online {
		// The owning node stopped refreshing; it was last seen at the deadline.
		expired, err := parseMillis(vals[2])
		if err != nil {
			return nil, fmt.Errorf("parsing presence deadline: %w", err)
		}
		if expired != nil && (lastSeen == nil || expired.After(*lastSeen)) {
			lastSeen = expired
		}
	}
	p.LastSeenAt = lastSeen
	return p, nil
}

func parseMillis(v any) (*time.Time, error) {
	raw, ok := v.(string)
	if !ok {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
