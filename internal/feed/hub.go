// Package feed distributes event changes to live subscribers. Every subscriber receives only
// the changes its viewer is allowed to see.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	"github.com/noah-isme/eduschedule-api/pkg/jobs"
)

const jobTypeDeliver = "feed.deliver"

// Recorder receives delivery metrics.
type Recorder interface {
	RecordFeedDelivery(delivered bool)
	SetFeedSubscribers(n int)
}

// Forwarder sends locally published changes to other instances.
type Forwarder interface {
	Forward(ctx context.Context, change models.EventChange) error
}

// HubConfig sizes the delivery queue and subscriber buffers.
type HubConfig struct {
	QueueSize        int
	SubscriberBuffer int
}

type subscription struct {
	viewer visibility.Viewer
	ch     chan models.EventChange
}

// Hub fans changes out to subscribers through a worker queue. Slow subscribers lose changes
// instead of blocking publishers.
type Hub struct {
	queue     *jobs.Queue
	buffer    int
	recorder  Recorder
	forwarder Forwarder
	logger    *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
}

// NewHub constructs a hub. recorder may be nil.
func NewHub(cfg HubConfig, recorder Recorder, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 32
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	h := &Hub{
		buffer:   cfg.SubscriberBuffer,
		recorder: recorder,
		logger:   logger,
		subs:     make(map[uint64]*subscription),
	}
	h.queue = jobs.NewQueue("event-feed", h.handle, jobs.QueueConfig{
		// A single worker keeps per-subscriber delivery in publish order.
		Workers:    1,
		BufferSize: cfg.QueueSize,
		MaxRetries: -1,
		Logger:     logger,
	})
	return h
}

// SetForwarder attaches the cross-instance relay. Call before Start.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// Start launches the delivery workers.
func (h *Hub) Start(ctx context.Context) {
	h.queue.Start(ctx)
}

// Stop stops delivery and closes every subscription.
func (h *Hub) Stop() {
	h.queue.Stop()
	h.mu.Lock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.mu.Unlock()
	h.reportSubscribers(0)
}

// Publish delivers change to local subscribers and forwards it to other instances.
func (h *Hub) Publish(ctx context.Context, change models.EventChange) error {
	if h == nil {
		return nil
	}
	err := h.Deliver(change)
	if h.forwarder != nil {
		if ferr := h.forwarder.Forward(ctx, change); ferr != nil {
			err = errors.Join(err, fmt.Errorf("forward change: %w", ferr))
		}
	}
	return err
}

// Deliver queues change for local subscribers only.
func (h *Hub) Deliver(change models.EventChange) error {
	if err := h.queue.TryEnqueue(jobs.Job{ID: change.Event.ID, Type: jobTypeDeliver, Payload: change}); err != nil {
		return fmt.Errorf("queue change %s: %w", change.Event.ID, err)
	}
	return nil
}

// Subscribe registers v and returns its change stream plus a cancel func. The stream is closed
// by cancel or Stop.
func (h *Hub) Subscribe(v visibility.Viewer) (<-chan models.EventChange, func()) {
	sub := &subscription{viewer: v, ch: make(chan models.EventChange, h.buffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	count := len(h.subs)
	h.mu.Unlock()
	h.reportSubscribers(count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
			count := len(h.subs)
			h.mu.Unlock()
			h.reportSubscribers(count)
		})
	}
	return sub.ch, cancel
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) handle(ctx context.Context, job jobs.Job) error {
	change, ok := job.Payload.(models.EventChange)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	// A deleted change carries the row as it was before deletion.
	snapshot := change.Event
	snapshot.IsDeleted = false

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !visibility.IsVisible(sub.viewer, snapshot) {
			continue
		}
		select {
		case sub.ch <- change:
			h.recordDelivery(true)
		default:
			h.recordDelivery(false)
			h.logger.Debug("feed subscriber lagging, change dropped",
				zap.String("viewer_id", sub.viewer.ViewerID()), zap.String("event_id", change.Event.ID))
		}
	}
	return nil
}

func (h *Hub) recordDelivery(delivered bool) {
	if h.recorder != nil {
		h.recorder.RecordFeedDelivery(delivered)
	}
}

func (h *Hub) reportSubscribers(n int) {
	if h.recorder != nil {
		h.recorder.SetFeedSubscribers(n)
	}
}
