// Package notify delivers estimate lifecycle events to registered webhook
// endpoints. The API process schedules deliveries onto asynq; the worker
// process executes them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

// TaskWebhookDeliver is the asynq task type for one webhook delivery.
const TaskWebhookDeliver = "webhook:deliver"

// QueueWebhooks is the asynq queue deliveries run on.
const QueueWebhooks = "webhooks"

type deliveryPayload struct {
	DeliveryID string `json:"deliveryId"`
}

// NewDeliveryTask builds the asynq task carrying a delivery ID.
func NewDeliveryTask(deliveryID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(deliveryPayload{DeliveryID: deliveryID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookDeliver, body), nil
}

type dispatcherQuerier interface {
	ListEndpointsForTopic(ctx context.Context, topic string) ([]store.WebhookEndpoint, error)
	InsertDelivery(ctx context.Context, endpointID, eventID uuid.UUID) (store.WebhookDelivery, error)
}

// Enqueuer abstracts the asynq client for tests.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher fans one domain event out into pending deliveries, one per
// subscribed endpoint, and enqueues a task for each. It satisfies
// events.DeliveryScheduler.
type Dispatcher struct {
	Q        dispatcherQuerier
	Tasks    Enqueuer
	MaxRetry int
	Timeout  time.Duration
}

// Schedule records and enqueues deliveries for every active endpoint
// subscribed to the event's topic. A failure on one endpoint does not stop
// the rest.
func (d *Dispatcher) Schedule(ctx context.Context, event store.DomainEvent) error {
	if d == nil || d.Q == nil {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.Q.ListEndpointsForTopic(ctx, event.Topic)
	if err != nil {
		return fmt.Errorf("list endpoints: %w", err)
	}
	var joined error
	for _, ep := range endpoints {
		delivery, err := d.Q.InsertDelivery(ctx, ep.ID, event.ID)
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("insert delivery for %s: %w", ep.ID, err))
			continue
		}
		if d.Tasks == nil {
			continue
		}
		task, err := NewDeliveryTask(delivery.ID)
		if err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		opts := []asynq.Option{asynq.Queue(QueueWebhooks)}
		if d.MaxRetry > 0 {
			opts = append(opts, asynq.MaxRetry(d.MaxRetry))
		}
		if d.Timeout > 0 {
			opts = append(opts, asynq.Timeout(d.Timeout))
		}
		if _, err := d.Tasks.EnqueueContext(ctx, task, opts...); err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery %s: %w", delivery.ID, err))
		}
	}
	return joined
}
