package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NexusBot-official/Nexus/internal/logging"
	"github.com/NexusBot-official/Nexus/internal/models"
)

const DefaultRedisChannel = "nexus:incidents"

// Publisher is the part of *redis.Client the Redis sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every notification as JSON on a pub/sub channel so
// external tooling can page on lockdowns.
type RedisSink struct {
	pub     Publisher
	channel string
	timeout time.Duration
}

func NewRedisSink(pub Publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{pub: pub, channel: channel, timeout: 3 * time.Second}
}

// NewRedisClient dials lazily; connection errors surface on first publish.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (r *RedisSink) Notify(ctx context.Context, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logging.Error("[NOTIFIER] Failed to encode %s notification: %v", n.Kind, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.pub.Publish(ctx, r.channel, payload).Err(); err != nil {
		logging.Warn("[NOTIFIER] Failed to publish %s for guild %s: %v", n.Kind, n.GuildID, err)
	}
}
