package hub

import (
	"hash/fnv"
	"log/slog"
	"sync"
)

// Subscriber receives fan-out events for the call keys it subscribed to.
//
// Deliver must not block: implementations enqueue onto a bounded buffer
// and report false when the message was dropped (closed or backlogged
// connection). The hub never retries a dropped delivery; clients are
// expected to reconcile via the read API.
type Subscriber interface {
	Deliver(msg ServerMessage) bool
}

const shardCount = 16

// Hub is a concurrency-safe registry mapping call identifiers (call_sid or
// conversation_id) to live subscribers.
//
// It is sharded so webhook-triggered publishers on different calls do not
// contend on one lock. Per-subscriber delivery order follows publish order
// because Publish enqueues synchronously under the shard read lock and
// each subscriber drains its buffer with a single writer.
type Hub struct {
	shards [shardCount]shard
	log    *slog.Logger
}

type shard struct {
	mu   sync.RWMutex
	subs map[string]map[Subscriber]struct{}
}

func New(log *slog.Logger) *Hub {
	h := &Hub{log: log}
	for i := range h.shards {
		h.shards[i].subs = make(map[string]map[Subscriber]struct{})
	}
	return h
}

func (h *Hub) shardFor(key string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(key))
	return &h.shards[f.Sum32()%shardCount]
}

// Subscribe registers sub under key. Key validity is the caller's problem;
// the hub only manages membership.
func (h *Hub) Subscribe(key string, sub Subscriber) {
	s := h.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.subs[key]
	if !ok {
		set = make(map[Subscriber]struct{})
		s.subs[key] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes sub from key. Safe to race with an in-flight
// Publish: the publish either delivered before removal or the subscriber
// is skipped, never partially delivered.
func (h *Hub) Unsubscribe(key string, sub Subscriber) {
	s := h.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, key)
		}
	}
}

// Publish fans msg out to every subscriber of any of the keys. A
// subscriber registered under several of the keys receives the message
// once. Completion events are terminal: after delivery the keys are
// dropped from the registry.
func (h *Hub) Publish(msg ServerMessage, keys ...string) {
	seen := make(map[Subscriber]struct{})
	for _, key := range keys {
		if key == "" {
			continue
		}
		s := h.shardFor(key)
		s.mu.RLock()
		for sub := range s.subs[key] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			if !sub.Deliver(msg) && h.log != nil {
				h.log.Warn("hub delivery dropped", "type", msg.Type, "key", key)
			}
		}
		s.mu.RUnlock()
	}

	if msg.Type == MessageTypeCallCompleted {
		for _, key := range keys {
			if key == "" {
				continue
			}
			s := h.shardFor(key)
			s.mu.Lock()
			delete(s.subs, key)
			s.mu.Unlock()
		}
	}
}

// Subscribers reports the current subscriber count for a key.
func (h *Hub) Subscribers(key string) int {
	s := h.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[key])
}
