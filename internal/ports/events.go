package ports

import (
	"context"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
)

// ChangeEvent is the wire form of an entity mutation published to the broker.
// Out-of-process writers emit the same shape so every producer shares one
// invalidation semantics.
type ChangeEvent struct {
	EventID         string             `json:"event_id"`
	EntityType      string             `json:"entity_type"`
	EntityID        string             `json:"entity_id,omitempty"`
	Operation       domain.Operation   `json:"operation"`
	ActorID         string             `json:"actor_id,omitempty"`
	RelatedEntities []domain.EntityRef `json:"related_entities,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// EventPublisher delivers entity-change events to the broker.
type EventPublisher interface {
	PublishChange(ctx context.Context, event ChangeEvent) error
}

// EventConsumer polls entity-change events. An empty batch means nothing was
// available within the poll window.
type EventConsumer interface {
	Poll(ctx context.Context, max int) ([]ChangeEvent, error)
	Close() error
}
