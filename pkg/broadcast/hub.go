package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/devflow/pkg/models"
)

// Subscriber is one connected client. Enqueue must not block; returning
// false means the client cannot keep up and is dropped.
type Subscriber interface {
	ID() string
	Enqueue(frame []byte) bool
	Close()
}

// Hub tracks subscribers per project id.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]Subscriber
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[string]Subscriber),
		logger:      logger.With("module", "broadcast_hub"),
	}
}

var _ Broadcaster = (*Hub)(nil)

func (h *Hub) Subscribe(projectID string, subscriber Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[projectID] == nil {
		h.subscribers[projectID] = make(map[string]Subscriber)
	}

	h.subscribers[projectID][subscriber.ID()] = subscriber
}

// Unsubscribe removes a subscriber; it reports whether it was still registered.
func (h *Hub) Unsubscribe(projectID, subscriberID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	project, ok := h.subscribers[projectID]
	if !ok {
		return false
	}

	if _, ok := project[subscriberID]; !ok {
		return false
	}

	delete(project, subscriberID)

	if len(project) == 0 {
		delete(h.subscribers, projectID)
	}

	return true
}

// Count returns the number of subscribers for a project.
func (h *Hub) Count(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[projectID])
}

// Broadcast fans the envelope out to a snapshot of the project's subscribers.
// No lock is held while enqueuing.
func (h *Hub) Broadcast(ctx context.Context, envelope models.Envelope) error {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", envelope.Type, err)
	}

	for _, subscriber := range h.snapshot(envelope.ProjectID) {
		if subscriber.Enqueue(frame) {
			continue
		}

		h.logger.WarnContext(ctx, "Dropping unresponsive subscriber",
			"project_id", envelope.ProjectID,
			"subscriber_id", subscriber.ID(),
		)

		if h.Unsubscribe(envelope.ProjectID, subscriber.ID()) {
			subscriber.Close()
		}
	}

	return nil
}

func (h *Hub) snapshot(projectID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	project := h.subscribers[projectID]
	subscribers := make([]Subscriber, 0, len(project))

	for _, subscriber := range project {
		subscribers = append(subscribers, subscriber)
	}

	return subscribers
}
