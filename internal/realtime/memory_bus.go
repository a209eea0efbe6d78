package realtime

import (
	"context"
	"sort"
	"sync"

	"speakroom/backend/internal/models"

	"github.com/rs/zerolog"
)

const memoryBufferSize = 256

// MemoryBus is an in-process Bus for tests and single-node runs. Events go
// through Encode/Decode like on the Redis bus.
type MemoryBus struct {
	Logger zerolog.Logger

	mu       sync.RWMutex
	subs     map[string]map[*memorySubscription]struct{}
	presence map[string]map[string]struct{}
}

func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		Logger:   logger,
		subs:     make(map[string]map[*memorySubscription]struct{}),
		presence: make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, ev models.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		decoded, err := Decode(data)
		if err != nil {
			return err
		}
		sub.deliver(decoded, channel, b.Logger)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		events:  make(chan models.Event, memoryBufferSize),
	}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

func (b *MemoryBus) TrackPresence(_ context.Context, channel, key string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.presence[channel] == nil {
		b.presence[channel] = make(map[string]struct{})
	}
	b.presence[channel][key] = struct{}{}
	return b.members(channel), nil
}

func (b *MemoryBus) UntrackPresence(_ context.Context, channel, key string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.presence[channel], key)
	return b.members(channel), nil
}

func (b *MemoryBus) Presence(_ context.Context, channel string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.members(channel), nil
}

func (b *MemoryBus) members(channel string) []string {
	out := make([]string, 0, len(b.presence[channel]))
	for k := range b.presence[channel] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	events  chan models.Event

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Events() <-chan models.Event { return s.events }

func (s *memorySubscription) deliver(ev models.Event, channel string, logger zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		logger.Warn().Str("channel", channel).Str("kind", string(ev.Kind())).Msg("subscriber buffer full, dropping event")
	}
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs[s.channel], s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
