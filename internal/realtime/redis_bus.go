package realtime

import (
	"context"
	"sort"
	"sync"

	"speakroom/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus implements Bus with Redis PUBLISH/SUBSCRIBE and presence sets.
type RedisBus struct {
	Redis  *redis.Client
	Logger zerolog.Logger
}

func NewRedisBus(rdb *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{Redis: rdb, Logger: logger}
}

// NewRedisClient parses redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, ev models.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return b.Redis.Publish(ctx, channel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.Redis.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.Event, 64),
		done:   make(chan struct{}),
	}
	go sub.pump(channel, b.Logger)
	return sub, nil
}

func (b *RedisBus) TrackPresence(ctx context.Context, channel, key string) ([]string, error) {
	if err := b.Redis.SAdd(ctx, presenceKey(channel), key).Err(); err != nil {
		return nil, err
	}
	return b.Presence(ctx, channel)
}

func (b *RedisBus) UntrackPresence(ctx context.Context, channel, key string) ([]string, error) {
	if err := b.Redis.SRem(ctx, presenceKey(channel), key).Err(); err != nil {
		return nil, err
	}
	return b.Presence(ctx, channel)
}

func (b *RedisBus) Presence(ctx context.Context, channel string) ([]string, error) {
	members, err := b.Redis.SMembers(ctx, presenceKey(channel)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan models.Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(channel string, logger zerolog.Logger) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		ev, err := Decode([]byte(msg.Payload))
		if err != nil {
			logger.Warn().Err(err).Str("channel", channel).Msg("dropping malformed realtime payload")
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
