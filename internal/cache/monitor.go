package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Subscription delivers raw JSON monitor events until closed.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// RedisMonitor publishes and subscribes on per-subject Pub/Sub channels.
type RedisMonitor struct {
	rdb *redis.Client
}

func NewRedisMonitor(rdb *redis.Client) *RedisMonitor {
	return &RedisMonitor{rdb: rdb}
}

func (m *RedisMonitor) Publish(ctx context.Context, subjectID int, evt model.MonitorEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode monitor event: %w", err)
	}
	return m.rdb.Publish(ctx, config.CacheKey.SubjectMonitorChannel(subjectID), raw).Err()
}

func (m *RedisMonitor) Subscribe(ctx context.Context, subjectID int) (Subscription, error) {
	pubsub := m.rdb.Subscribe(ctx, config.CacheKey.SubjectMonitorChannel(subjectID))
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe monitor: %w", err)
	}

	sub := &redisSubscription{pubsub: pubsub, out: make(chan []byte, 64), done: make(chan struct{})}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

// LocalMonitor is an in-process broker for single-node deployments without
// Redis. Slow subscribers drop events instead of blocking publishers.
type LocalMonitor struct {
	mu   sync.Mutex
	subs map[int]map[*localSubscription]struct{}
}

func NewLocalMonitor() *LocalMonitor {
	return &LocalMonitor{subs: map[int]map[*localSubscription]struct{}{}}
}

func (m *LocalMonitor) Publish(_ context.Context, subjectID int, evt model.MonitorEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode monitor event: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[subjectID] {
		select {
		case sub.out <- raw:
		default:
		}
	}
	return nil
}

func (m *LocalMonitor) Subscribe(_ context.Context, subjectID int) (Subscription, error) {
	sub := &localSubscription{owner: m, subjectID: subjectID, out: make(chan []byte, 64)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[subjectID] == nil {
		m.subs[subjectID] = map[*localSubscription]struct{}{}
	}
	m.subs[subjectID][sub] = struct{}{}
	return sub, nil
}

type localSubscription struct {
	owner     *LocalMonitor
	subjectID int
	out       chan []byte
	once      sync.Once
}

func (s *localSubscription) Events() <-chan []byte { return s.out }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		m := s.owner
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[s.subjectID], s)
		if len(m.subs[s.subjectID]) == 0 {
			delete(m.subs, s.subjectID)
		}
		close(s.out)
	})
	return nil
}
