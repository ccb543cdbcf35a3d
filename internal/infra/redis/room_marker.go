package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomMarker mirrors open realtime rooms into Redis so operators can see
// which class/date views are live. Best effort only; fanout never depends
// on these keys.
type RoomMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomMarker(client *redis.Client, ttl time.Duration) *RoomMarker {
	return &RoomMarker{client: client, ttl: ttl}
}

func (m *RoomMarker) MarkActive(key string) {
	_ = m.client.Set(context.Background(), roomKey(key), "1", m.ttl).Err()
}

func (m *RoomMarker) ClearRoom(key string) {
	_ = m.client.Del(context.Background(), roomKey(key)).Err()
}

func roomKey(key string) string {
	return "room:" + key
}
