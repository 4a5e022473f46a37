package store

import (
	"context"

	"github.com/google/uuid"
)

const eventColumns = `id, topic, aggregate_id, payload, occurred_at`

func scanEvent(row scanner) (DomainEvent, error) {
	var e DomainEvent
	err := row.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt)
	return e, err
}

// InsertDomainEvent appends an event to the log and returns the stored row.
func (s *Store) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (DomainEvent, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING `+eventColumns,
		topic, aggregateID, payload)
	return scanEvent(row)
}

// GetDomainEvent fetches an event by ID.
func (s *Store) GetDomainEvent(ctx context.Context, id uuid.UUID) (DomainEvent, error) {
	row := s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM domain_events WHERE id = $1`, id)
	return scanEvent(row)
}

// ListDomainEvents returns the events of one aggregate oldest first.
func (s *Store) ListDomainEvents(ctx context.Context, aggregateID uuid.UUID, limit int32) ([]DomainEvent, error) {
	rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM domain_events
WHERE aggregate_id = $1 ORDER BY occurred_at, id LIMIT $2`, aggregateID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]DomainEvent, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
