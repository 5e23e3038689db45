package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const liveRoomsKey = "rooms:live"

// Presence mirrors signaling room membership so every instance can report live rooms.
type Presence interface {
	Join(ctx context.Context, room, peer string) error
	Leave(ctx context.Context, room, peer string) error
	Count(ctx context.Context, room string) (int64, error)
	LiveRooms(ctx context.Context) (int64, error)
}

type redisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence stores members in room:<id> sets that expire after ttl without activity.
func NewRedisPresence(client *redis.Client, ttl time.Duration) Presence {
	return &redisPresence{client: client, ttl: ttl}
}

func roomKey(room string) string {
	return "room:" + room
}

func (p *redisPresence) Join(ctx context.Context, room, peer string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, roomKey(room), peer)
	pipe.Expire(ctx, roomKey(room), p.ttl)
	pipe.SAdd(ctx, liveRoomsKey, room)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence join %s: %w", room, err)
	}
	return nil
}

func (p *redisPresence) Leave(ctx context.Context, room, peer string) error {
	if err := p.client.SRem(ctx, roomKey(room), peer).Err(); err != nil {
		return fmt.Errorf("presence leave %s: %w", room, err)
	}
	n, err := p.client.SCard(ctx, roomKey(room)).Result()
	if err != nil {
		return fmt.Errorf("presence count %s: %w", room, err)
	}
	if n == 0 {
		if err := p.client.SRem(ctx, liveRoomsKey, room).Err(); err != nil {
			return fmt.Errorf("presence drop room %s: %w", room, err)
		}
	}
	return nil
}

func (p *redisPresence) Count(ctx context.Context, room string) (int64, error) {
	return p.client.SCard(ctx, roomKey(room)).Result()
}

func (p *redisPresence) LiveRooms(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, liveRoomsKey).Result()
}
