package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers a payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes over Redis pub/sub; chat and push gateways
// subscribe to the per-user channels.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rdb.Publish(ctx, p.prefix+channel, payload).Err()
}

type Published struct {
	Channel string
	Payload []byte
}

// MemoryPublisher records publishes; useful for tests.
// It is not intended for production use.
type MemoryPublisher struct {
	mu   sync.Mutex
	sent []Published
	Err  error
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.sent = append(p.sent, Published{Channel: channel, Payload: payload})
	return nil
}

func (p *MemoryPublisher) Sent() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.sent))
	copy(out, p.sent)
	return out
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
