package store

import (
	"context"

	"github.com/google/uuid"
)

const endpointColumns = `id, url, secret, topics, active, created_at, updated_at`
const deliveryColumns = `id, endpoint_id, event_id, status, attempts, last_error, created_at, updated_at`

func scanEndpoint(row scanner) (WebhookEndpoint, error) {
	var e WebhookEndpoint
	err := row.Scan(&e.ID, &e.URL, &e.Secret, &e.Topics, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanDelivery(row scanner) (WebhookDelivery, error) {
	var d WebhookDelivery
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateEndpointParams carries the writable webhook endpoint fields.
type CreateEndpointParams struct {
	URL    string
	Secret string
	Topics []string
	Active bool
}

// CreateEndpoint registers a webhook endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, arg CreateEndpointParams) (WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO webhook_endpoints (url, secret, topics, active)
VALUES ($1, $2, $3, $4)
RETURNING `+endpointColumns,
		arg.URL, arg.Secret, arg.Topics, arg.Active)
	return scanEndpoint(row)
}

// GetEndpoint fetches a webhook endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, id uuid.UUID) (WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

// ListEndpoints returns every registered endpoint.
func (s *Store) ListEndpoints(ctx context.Context) ([]WebhookEndpoint, error) {
	rows, err := s.db.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make([]WebhookEndpoint, 0, 4)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// ListEndpointsForTopic returns the active endpoints subscribed to a topic.
func (s *Store) ListEndpointsForTopic(ctx context.Context, topic string) ([]WebhookEndpoint, error) {
	rows, err := s.db.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE active AND $1 = ANY (topics) ORDER BY created_at, id`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make([]WebhookEndpoint, 0, 4)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// UpdateEndpoint replaces the writable fields of a webhook endpoint.
func (s *Store) UpdateEndpoint(ctx context.Context, id uuid.UUID, arg CreateEndpointParams) (WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `UPDATE webhook_endpoints
SET url = $2, secret = $3, topics = $4, active = $5, updated_at = now()
WHERE id = $1
RETURNING `+endpointColumns,
		id, arg.URL, arg.Secret, arg.Topics, arg.Active)
	return scanEndpoint(row)
}

// DeleteEndpoint removes a webhook endpoint and its delivery history.
func (s *Store) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	return err
}

// InsertDelivery records a pending delivery of an event to an endpoint.
func (s *Store) InsertDelivery(ctx context.Context, endpointID, eventID uuid.UUID) (WebhookDelivery, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO webhook_deliveries (endpoint_id, event_id, status)
VALUES ($1, $2, 'pending')
RETURNING `+deliveryColumns,
		endpointID, eventID)
	return scanDelivery(row)
}

// GetDelivery fetches a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, id uuid.UUID) (WebhookDelivery, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

// MarkDelivery records the outcome of one delivery attempt.
func (s *Store) MarkDelivery(ctx context.Context, id uuid.UUID, status, lastError string) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_deliveries
SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = now()
WHERE id = $1`,
		id, status, lastError)
	return err
}

// ListDeliveries returns the delivery history of one endpoint newest first.
func (s *Store) ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int32) ([]WebhookDelivery, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE endpoint_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		endpointID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]WebhookDelivery, 0, limit)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
