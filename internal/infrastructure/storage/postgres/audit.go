package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
)

var _ stock.AuditRecorder = (*AuditStore)(nil)

// CompressionAlgo specifies the compression algorithm used for payloads.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditRecord is a stored audit row.
type AuditRecord struct {
	ID                id.ID           `db:"id"`
	OrganizationID    id.ID           `db:"organization_id"`
	EntityType        string          `db:"entity_type"`
	EntityID          string          `db:"entity_id"`
	Action            string          `db:"action"`
	UserID            *string         `db:"user_id"`
	Reason            *string         `db:"reason"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditStore writes ledger audit records into sys_audit. Payloads above the
// threshold are zstd-compressed; a storno of a large waybill lists every
// reversed movement.
type AuditStore struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

func NewAuditStore(txm *TxManager) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditStore{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// Record implements stock.AuditRecorder. It joins the caller's transaction.
func (s *AuditStore) Record(ctx context.Context, entry stock.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	rec := AuditRecord{
		ID:              id.New(),
		OrganizationID:  entry.OrganizationID,
		EntityType:      entry.EntityType,
		EntityID:        entry.EntityID,
		Action:          entry.Action,
		UserID:          entry.UserID,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.RecordedAt,
	}
	if entry.Reason != "" {
		rec.Reason = &entry.Reason
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if len(payload) > s.compressThreshold {
		rec.PayloadCompressed = s.encoder.EncodeAll(payload, nil)
		rec.CompressionAlgo = CompressionZstd
	} else {
		rec.Payload = payload
	}

	const q = `
		INSERT INTO sys_audit (
			id, organization_id, entity_type, entity_id, action, user_id, reason,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.txm.GetQuerier(ctx).Exec(ctx, q,
		rec.ID, rec.OrganizationID, rec.EntityType, rec.EntityID, rec.Action, rec.UserID, rec.Reason,
		rec.Payload, rec.PayloadCompressed, rec.CompressionAlgo, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// History returns the audit trail of an entity, newest first, with payloads decompressed.
func (s *AuditStore) History(ctx context.Context, orgID id.ID, entityType, entityID string, limit int) ([]AuditRecord, error) {
	const q = `
		SELECT id, organization_id, entity_type, entity_id, action, user_id, reason,
		       payload, payload_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE organization_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
		LIMIT $4`

	rows, err := s.txm.GetQuerier(ctx).Query(ctx, q, orgID, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		err := rows.Scan(
			&r.ID, &r.OrganizationID, &r.EntityType, &r.EntityID, &r.Action, &r.UserID, &r.Reason,
			&r.Payload, &r.PayloadCompressed, &r.CompressionAlgo, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if r.CompressionAlgo == CompressionZstd && len(r.PayloadCompressed) > 0 {
			if r.Payload, err = s.decode(r.PayloadCompressed); err != nil {
				return nil, err
			}
			r.PayloadCompressed = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *AuditStore) decode(b []byte) (json.RawMessage, error) {
	out, err := s.decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress audit payload: %w", err)
	}
	return out, nil
}
