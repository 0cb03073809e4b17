// Package progress tracks the live CrawlProgress snapshot for every
// repository and broadcasts updates to subscribers (spec.md §4.9,
// component C9).
package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/klask-io/klask-io-sub002/internal/domain"
)

const subscriberBuffer = 16

// Bus holds the last-writer-wins snapshot per repository and fans updates
// out to subscribers over lossy, per-subscriber channels.
type Bus struct {
	mu       sync.RWMutex
	snapshots map[uuid.UUID]domain.CrawlProgress

	subMu       sync.Mutex
	subscribers map[int]chan domain.CrawlProgress
	nextSubID   int
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		snapshots:   make(map[uuid.UUID]domain.CrawlProgress),
		subscribers: make(map[int]chan domain.CrawlProgress),
	}
}

// Publish replaces repositoryID's snapshot and broadcasts it to every
// subscriber. Publish semantics are last-writer-wins: an older snapshot
// arriving after a newer one (which cannot happen from a single crawl
// goroutine, but could across a supervisor restart) simply overwrites.
func (b *Bus) Publish(snapshot domain.CrawlProgress) {
	b.mu.Lock()
	b.snapshots[snapshot.RepositoryID] = snapshot
	b.mu.Unlock()

	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Lossy broadcast: drop the oldest pending snapshot and retry
			// once so a slow consumer still gets the latest state rather
			// than stalling the publisher (spec.md §4.9).
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// Get returns repositoryID's current snapshot, and whether a crawl has
// ever run for it.
func (b *Bus) Get(repositoryID uuid.UUID) (domain.CrawlProgress, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snapshots[repositoryID]
	return snap, ok
}

// Active returns the snapshot of every repository currently in a
// non-terminal phase.
func (b *Bus) Active() []domain.CrawlProgress {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.CrawlProgress
	for _, snap := range b.snapshots {
		if !snap.Phase.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

// Subscribe registers a new lossy broadcast channel. Callers must call the
// returned cancel function when done to release the channel.
func (b *Bus) Subscribe() (<-chan domain.CrawlProgress, func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan domain.CrawlProgress, subscriberBuffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			close(existing)
			delete(b.subscribers, id)
		}
	}
	return ch, cancel
}
