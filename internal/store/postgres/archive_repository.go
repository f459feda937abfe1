package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"namedq/internal/domain"
	"namedq/internal/metrics"
)

// ArchiveRepository implements store.ArchiveRepository using PostgreSQL.
type ArchiveRepository struct {
	db *DB
}

// NewArchiveRepository creates a new PostgreSQL-backed archive.
func NewArchiveRepository(db *DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Save stores a relayed message. Saving the same route and ID twice is a
// no-op, so a redelivered bus message is archived once per route.
func (r *ArchiveRepository) Save(ctx context.Context, msg *domain.RelayedMessage) error {
	defer observe("write", time.Now())

	query := `
		INSERT INTO relayed_messages (
			id, route, direction, queue_name, priority, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (route, id) DO NOTHING
	`

	payload := msg.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.pool.Exec(ctx, query,
		msg.ID,
		msg.Route,
		string(msg.Direction),
		msg.Queue,
		int64(msg.Priority),
		payload,
		msg.CreatedAt,
	)
	countOp("write", err)
	if err != nil {
		return fmt.Errorf("failed to save relayed message: %w", err)
	}

	return nil
}

// GetByID retrieves a route's relayed message by its ID.
func (r *ArchiveRepository) GetByID(ctx context.Context, route, id string) (*domain.RelayedMessage, error) {
	defer observe("read", time.Now())

	query := `
		SELECT id, route, direction, queue_name, priority, payload, created_at
		FROM relayed_messages
		WHERE route = $1 AND id = $2
	`

	msg, err := scanMessage(r.db.pool.QueryRow(ctx, query, route, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			countOp("read", nil)
			return nil, domain.ErrMessageNotFound
		}
		countOp("read", err)
		return nil, fmt.Errorf("failed to get relayed message: %w", err)
	}
	countOp("read", nil)

	return msg, nil
}

// ListByRoute returns the newest messages of a route, newest first.
func (r *ArchiveRepository) ListByRoute(ctx context.Context, route string, limit int) ([]*domain.RelayedMessage, error) {
	defer observe("read", time.Now())

	query := `
		SELECT id, route, direction, queue_name, priority, payload, created_at
		FROM relayed_messages
		WHERE route = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.pool.Query(ctx, query, route, limit)
	if err != nil {
		countOp("read", err)
		return nil, fmt.Errorf("failed to list relayed messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.RelayedMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			countOp("read", err)
			return nil, fmt.Errorf("failed to scan relayed message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		countOp("read", err)
		return nil, fmt.Errorf("error iterating relayed messages: %w", err)
	}
	countOp("read", nil)

	return messages, nil
}

// scanMessage scans a row into a RelayedMessage.
func scanMessage(row pgx.Row) (*domain.RelayedMessage, error) {
	var (
		msg       domain.RelayedMessage
		direction string
		priority  int64
	)

	err := row.Scan(
		&msg.ID,
		&msg.Route,
		&direction,
		&msg.Queue,
		&priority,
		&msg.Payload,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Direction = domain.Direction(direction)
	msg.Priority = uint(priority)
	return &msg, nil
}

func observe(operation string, start time.Time) {
	metrics.StorageOperationLatency.WithLabelValues("postgres", operation).Observe(time.Since(start).Seconds())
}

func countOp(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues("postgres", operation, status).Inc()
}
