package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
	"fleetledger/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Ledger event types.
const (
	EventMovementPosted = "stock.movement.posted"
	EventMovementVoided = "stock.movement.voided"
)

const outboxMaxRetries = 5

// OutboxMessage is a ledger event waiting to be delivered downstream
// (waybill and fuel card provider integrations).
type OutboxMessage struct {
	ID             id.ID           `db:"id"`
	OrganizationID id.ID           `db:"organization_id"`
	AggregateID    id.ID           `db:"aggregate_id"`
	EventType      string          `db:"event_type"`
	Payload        json.RawMessage `db:"payload"`
	Status         OutboxStatus    `db:"status"`
	RetryCount     int             `db:"retry_count"`
	LastError      *string         `db:"last_error"`
	NextRetryAt    *time.Time      `db:"next_retry_at"`
	CreatedAt      time.Time       `db:"created_at"`
	PublishedAt    *time.Time      `db:"published_at"`
}

// OutboxPublisher writes ledger events in the transaction that changed the ledger.
type OutboxPublisher struct {
	txm *TxManager
}

func NewOutboxPublisher(txm *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txm: txm}
}

// MovementPosted is registered as an after-post hook of the movement service.
func (p *OutboxPublisher) MovementPosted(ctx context.Context, m *stock.Movement) error {
	return p.publish(ctx, m, EventMovementPosted)
}

// MovementVoided is registered as an after-void hook of the movement service.
func (p *OutboxPublisher) MovementVoided(ctx context.Context, m *stock.Movement) error {
	return p.publish(ctx, m, EventMovementVoided)
}

func (p *OutboxPublisher) publish(ctx context.Context, m *stock.Movement, eventType string) error {
	if p.txm.GetTx(ctx) == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = p.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_outbox (id, organization_id, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.New(), m.OrganizationID, m.ID, eventType, payload, OutboxStatusPending, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers one message. A returned error schedules a retry.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlerFunc adapts a function to OutboxHandler.
type OutboxHandlerFunc func(ctx context.Context, msg *OutboxMessage) error

func (f OutboxHandlerFunc) Handle(ctx context.Context, msg *OutboxMessage) error {
	return f(ctx, msg)
}

// OutboxRelay delivers pending messages. Several relays can run side by side;
// each claims its batch with SKIP LOCKED.
type OutboxRelay struct {
	txm       *TxManager
	batchSize int
	handler   OutboxHandler
}

func NewOutboxRelay(txm *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{txm: txm, batchSize: batchSize, handler: handler}
}

// ProcessBatch delivers up to batchSize messages and returns how many succeeded.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
			SELECT id, organization_id, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		var messages []*OutboxMessage
		for rows.Next() {
			var msg OutboxMessage
			err := rows.Scan(
				&msg.ID, &msg.OrganizationID, &msg.AggregateID, &msg.EventType,
				&msg.Payload, &msg.Status, &msg.RetryCount, &msg.LastError,
				&msg.NextRetryAt, &msg.CreatedAt, &msg.PublishedAt,
			)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan outbox message: %w", err)
			}
			messages = append(messages, &msg)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				processed++
			}
		}
		return nil
	})
	return processed, err
}

// processMessage reports whether the handler succeeded. The error is only
// set when the message state could not be stored.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	q := r.txm.GetQuerier(ctx)

	if herr := r.handler.Handle(ctx, msg); herr != nil {
		nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		status := OutboxStatusPending
		if msg.RetryCount+1 >= outboxMaxRetries {
			status = OutboxStatusFailed
		}
		_, err := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1, last_error = $1, next_retry_at = $2, status = $3
			WHERE id = $4`,
			herr.Error(), nextRetry, status, msg.ID)
		if err != nil {
			return false, fmt.Errorf("update failed message: %w", err)
		}
		logger.Warn(ctx, "outbox delivery failed", "message_id", msg.ID, "event", msg.EventType, "error", herr)
		return false, nil
	}

	_, err := q.Exec(ctx, `UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3`,
		OutboxStatusPublished, time.Now().UTC(), msg.ID)
	if err != nil {
		return false, fmt.Errorf("mark message published: %w", err)
	}
	return true, nil
}
