package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"canvas-backend/internal/logx"
)

const (
	entryTTL      = 60 * time.Second
	updateChannel = "presence_updates"
)

// Mirror publishes presence entries to Redis so a multi-instance
// deployment can read who is in a room on another server. Writes are
// best effort; the in-memory registry stays authoritative.
type Mirror struct {
	client *redis.Client
}

// NewMirror connects to Redis and pings it once.
func NewMirror(addr, password string, db int) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logx.L().Infow("presence mirror connected", "addr", addr)
	return &Mirror{client: client}, nil
}

func roomKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

// Set stores one entry in the room hash and refreshes the hash TTL.
func (m *Mirror) Set(ctx context.Context, roomID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := roomKey(roomID)
	if err := m.client.HSet(ctx, key, e.ConnectionID, data).Err(); err != nil {
		return err
	}
	m.client.Expire(ctx, key, entryTTL)
	return m.client.Publish(ctx, updateChannel, data).Err()
}

// Remove drops one entry from the room hash.
func (m *Mirror) Remove(ctx context.Context, roomID, connID string) error {
	return m.client.HDel(ctx, roomKey(roomID), connID).Err()
}

// Snapshot reads every mirrored entry for a room.
func (m *Mirror) Snapshot(ctx context.Context, roomID string) ([]Entry, error) {
	vals, err := m.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(vals))
	for _, raw := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Subscribe returns the presence update pub/sub channel.
func (m *Mirror) Subscribe(ctx context.Context) *redis.PubSub {
	return m.client.Subscribe(ctx, updateChannel)
}

// Ping checks the mirror connection, used by the health endpoint.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

func (m *Mirror) setAsync(roomID string, e Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Set(ctx, roomID, e); err != nil {
			logx.L().Warnw("presence mirror set failed", "room", roomID, "conn", e.ConnectionID, "err", err)
		}
	}()
}

func (m *Mirror) removeAsync(roomID, connID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Remove(ctx, roomID, connID); err != nil {
			logx.L().Warnw("presence mirror remove failed", "room", roomID, "conn", connID, "err", err)
		}
	}()
}
