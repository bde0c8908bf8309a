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

const typingPrefix = "relay:typing:"

func typingKey(conversationID uuid.UUID) string { return typingPrefix + conversationID.String() }

// TypingStore keeps one sorted set per conversation, scored by expiry time.
type TypingStore struct {
	rdb *redis.Client
}

func NewTypingStore(rdb *redis.Client) *TypingStore {
	return &TypingStore{rdb: rdb}
}

func (s *TypingStore) Set(ctx context.Context, ind *domain.TypingIndicator) error {
	key := typingKey(ind.ConversationID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ind.ExpiresAt.UnixMilli()), Member: ind.UserID.String()})
	// The set outlives its newest member; stale members are trimmed on read.
	ttl := time.Until(ind.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	pipe.PExpire(ctx, key, ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting typing: %w", err)
	}
	return nil
}

func (s *TypingStore) Remove(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	n, err := s.rdb.ZRem(ctx, typingKey(conversationID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("removing typing: %w", err)
	}
	return n > 0, nil
}

func (s *TypingStore) ListActive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error) {
	key := typingKey(conversationID)
	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	active := pipe.ZRangeWithScores(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("listing typing: %w", err)
	}

	out := []domain.TypingIndicator{}
	for _, z := range active.Val() {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		userID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		out = append(out, domain.TypingIndicator{
			ConversationID: conversationID,
			UserID:         userID,
			ExpiresAt:      time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return out, nil
}
