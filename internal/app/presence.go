package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AAYUSKARKI/sanjal-signaling/internal/domain"
)

// Presence mirrors online/offline state for the rest of the app (profile
// pages, chat lists) to query. Publish failures are logged and swallowed:
// the relay itself stays authoritative via the Registry.
type Presence interface {
	Online(ctx context.Context, id domain.Identity)
	Offline(ctx context.Context, id domain.Identity)
}

type redisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPresence connects to addr and returns a redis-backed mirror.
// Keys expire after ttl so a crashed relay never leaves ghosts online.
func NewRedisPresence(ctx context.Context, addr, password string, ttl time.Duration) (Presence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisPresence{rdb: rdb, ttl: ttl}, nil
}

func presenceKey(id domain.Identity) string {
	return "presence:online:" + string(id)
}

func (p *redisPresence) Online(ctx context.Context, id domain.Identity) {
	if err := p.rdb.Set(ctx, presenceKey(id), time.Now().Unix(), p.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("identity", string(id)).Msg("online publish failed")
	}
}

func (p *redisPresence) Offline(ctx context.Context, id domain.Identity) {
	if err := p.rdb.Del(ctx, presenceKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("identity", string(id)).Msg("offline publish failed")
	}
}

// NoopPresence is used when no redis address is configured.
type NoopPresence struct{}

func (NoopPresence) Online(context.Context, domain.Identity)  {}
func (NoopPresence) Offline(context.Context, domain.Identity) {}
