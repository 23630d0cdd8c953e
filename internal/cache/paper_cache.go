// Package cache holds the Redis-backed read caches and the live monitor
// fan-out, plus an in-process monitor used when Redis is not configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// PaperTTL bounds how long a delivered paper stays in Redis. Papers never
// change, so expiry only reclaims memory.
const PaperTTL = 12 * time.Hour

// PaperCache stores session papers as JSON strings.
type PaperCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPaperCache(rdb *redis.Client) *PaperCache {
	return &PaperCache{rdb: rdb, ttl: PaperTTL}
}

func (c *PaperCache) GetPaper(ctx context.Context, sessionID uuid.UUID) ([]model.PaperQuestion, bool, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.SessionPaperKey(sessionID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get paper: %w", err)
	}

	var paper []model.PaperQuestion
	if err := json.Unmarshal(raw, &paper); err != nil {
		return nil, false, fmt.Errorf("decode cached paper: %w", err)
	}
	return paper, true, nil
}

func (c *PaperCache) SetPaper(ctx context.Context, sessionID uuid.UUID, paper []model.PaperQuestion) error {
	raw, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	// SetNX keeps the first write; a paper is never replaced.
	return c.rdb.SetNX(ctx, config.CacheKey.SessionPaperKey(sessionID.String()), raw, c.ttl).Err()
}
