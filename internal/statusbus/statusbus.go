// Package statusbus implements the StatusBus component: a publish/
// subscribe broadcast of AgentStatus snapshots with per-subscriber
// backpressure.
package statusbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

var (
	contextUsageGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentrt_context_usage_percent",
		Help: "Most recently published context window usage percentage.",
	})
	loopIterationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_loop_iterations_total",
		Help: "Total number of AgentStatus snapshots published.",
	})
)

func init() {
	prometheus.MustRegister(contextUsageGauge, loopIterationsCounter)
}

// Subscription is a handle returned by Subscribe. Snapshots arrive on
// Updates; a slow reader only ever sees the latest published snapshot,
// never a queue of stale ones.
type Subscription struct {
	Updates <-chan models.AgentStatus
	bus     *StatusBus
	id      uint64
}

// Close unsubscribes, releasing the subscriber's channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// StatusBus fans out AgentStatus snapshots to subscribers. Grounded on the
// teacher's internal/gateway.BroadcastManager parallel fan-out (one
// goroutine per target, non-blocking send) generalized from one-shot
// message delivery to a standing publish/subscribe bus with per-subscriber
// coalescing.
type StatusBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan models.AgentStatus
	nextID      uint64
	latest      models.AgentStatus
	hasLatest   bool
}

// New creates an empty StatusBus.
func New() *StatusBus {
	return &StatusBus{subscribers: make(map[uint64]chan models.AgentStatus)}
}

// Subscribe registers a new subscriber. The channel has capacity 1:
// Publish never blocks on it, and a late-arriving snapshot replaces any
// unread one already buffered, so the subscriber always eventually
// observes the latest state rather than an ordered backlog.
func (b *StatusBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.AgentStatus, 1)
	if b.hasLatest {
		ch <- b.latest
	}
	b.subscribers[id] = ch
	return &Subscription{Updates: ch, bus: b, id: id}
}

func (b *StatusBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish broadcasts snapshot to every subscriber. A subscriber holding an
// unread snapshot has it replaced rather than queued, so delivery is
// latest-value rather than every-value under backpressure.
func (b *StatusBus) Publish(snapshot models.AgentStatus) {
	contextUsageGauge.Set(snapshot.ContextUsagePercent)
	loopIterationsCounter.Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = snapshot
	b.hasLatest = true

	for _, ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
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

// Latest returns the most recently published snapshot, if any.
func (b *StatusBus) Latest() (models.AgentStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.hasLatest
}
