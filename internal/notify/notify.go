// Package notify distributes job progress snapshots to subscribed
// observers. Every published message is a complete, self-describing
// snapshot, so at-least-once delivery with duplicates or reordering is
// safe to render.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Snapshot is one complete view of a job's state.
type Snapshot struct {
	JobID              string         `json:"job_id"`
	DocumentID         string         `json:"document_id"`
	Status             string         `json:"status"`
	CurrentStep        string         `json:"current_step"`
	ProgressPercentage int            `json:"progress_percentage"`
	ErrorDetails       map[string]any `json:"error_details,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

// OperatorFunc receives critical-error notifications out of band.
type OperatorFunc func(Snapshot, string)

// Broker fans snapshots out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses its oldest buffered snapshot, which
// is safe because each snapshot is complete.
type Broker struct {
	mu        sync.RWMutex
	subs      map[int]chan Snapshot
	nextID    int
	operators []OperatorFunc
	logger    *slog.Logger
}

const subscriberBuffer = 16

// NewBroker creates a broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{subs: make(map[int]chan Snapshot), logger: logger}
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription.
func (b *Broker) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// OnCritical registers an operator callback for critical errors.
func (b *Broker) OnCritical(fn OperatorFunc) {
	b.mu.Lock()
	b.operators = append(b.operators, fn)
	b.mu.Unlock()
}

// Publish delivers a snapshot to every subscriber.
func (b *Broker) Publish(s Snapshot) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			// Drop the oldest buffered snapshot to make room; the new
			// one is the more current view anyway.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// NotifyCritical raises an out-of-band operator notification.
func (b *Broker) NotifyCritical(s Snapshot, message string) {
	b.mu.RLock()
	operators := append([]OperatorFunc(nil), b.operators...)
	b.mu.RUnlock()

	b.logger.Error("critical processing error", "job_id", s.JobID, "message", message)
	for _, fn := range operators {
		fn(s, message)
	}
}
