// ABOUTME: In-memory fan-out of chunk notifications for live asset reads
// ABOUTME: Writers publish after each durable append/finalize; readers wake and re-query the store

package assets

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ChunkEvent announces that an asset changed in the store.
// Readers treat it as a wake-up and re-read from their own cursor, so a
// dropped event only delays delivery until the next one.
type ChunkEvent struct {
	Index     int  // index of the appended chunk, -1 for finalize
	Finalized bool // asset was finalized
}

// Broadcaster provides in-memory pub/sub of ChunkEvents keyed by asset reference.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan ChunkEvent // ref -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan ChunkEvent),
		logger:      logger.With("component", "asset_broadcaster"),
	}
}

// Subscribe registers for events on ref. The subscription is removed and its
// channel closed when ctx is cancelled or Unsubscribe is called.
func (b *Broadcaster) Subscribe(ctx context.Context, ref Ref) (<-chan ChunkEvent, string) {
	key := ref.String()
	subID := uuid.New().String()
	ch := make(chan ChunkEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan ChunkEvent)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "asset", key, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(ref, subID)
	}()

	return ch, subID
}

// Publish sends event to every subscriber of ref.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(ref Ref, event ChunkEvent) {
	key := ref.String()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[key] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped chunk event for slow subscriber", "asset", key, "index", event.Index)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ref Ref, subID string) {
	key := ref.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "asset", key, "sub_id", subID)
}

// SubscriberCount reports how many readers are tailing ref.
func (b *Broadcaster) SubscriberCount(ref Ref) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[ref.String()])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
