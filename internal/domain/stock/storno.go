package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/tx"
	"fleetledger/internal/domain"
	"fleetledger/pkg/logger"
)

var tracer = otel.Tracer("fleetledger/stock")

// StornoRequest reverses every balance-contributing movement of a document.
type StornoRequest struct {
	OrganizationID id.ID
	DocumentType   string
	DocumentID     string
	Reason         string
	UserID         *string
}

// StornoResult lists the reversed movements and their compensations.
type StornoResult struct {
	OriginalMovementIDs []id.ID `json:"originalMovementIds"`
	StornoMovementIDs   []id.ID `json:"stornoMovementIds"`
	Count               int     `json:"count"`
	// AlreadyReversed is set when the document had been reversed before
	// and nothing was written.
	AlreadyReversed bool `json:"alreadyReversed"`
}

// StornoService cancels posted documents by appending compensating
// movements and voiding the originals in one transaction.
type StornoService struct {
	repo      Repository
	movements *MovementService
	txm       tx.Manager
	audit     AuditRecorder
	now       func() time.Time
}

// NewStornoService creates a storno service. audit may be nil.
func NewStornoService(repo Repository, movements *MovementService, txm tx.Manager, audit AuditRecorder) *StornoService {
	return &StornoService{
		repo:      repo,
		movements: movements,
		txm:       txm,
		audit:     audit,
		now:       time.Now,
	}
}

// StornoRef is the external reference of the compensation of original.
func StornoRef(documentType, documentID string, original id.ID) string {
	return fmt.Sprintf("STORNO:%s:%s:%s", documentType, documentID, original)
}

// Storno reverses a document. Calling it again for an already reversed
// document is a no-op that returns the existing compensations.
func (s *StornoService) Storno(ctx context.Context, req StornoRequest) (*StornoResult, error) {
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Reason = strings.TrimSpace(req.Reason)

	switch {
	case req.DocumentType == "":
		return nil, apperror.NewFieldValidation("documentType", "document type is required")
	case req.DocumentID == "":
		return nil, apperror.NewFieldValidation("documentId", "document id is required")
	case strings.EqualFold(req.DocumentType, DocumentTypeStorno):
		return nil, apperror.NewFieldValidation("documentType", "a storno cannot be reversed")
	case req.Reason == "":
		return nil, apperror.NewFieldValidation("reason", "reason is required")
	}

	ctx, span := tracer.Start(ctx, "stock.storno",
		trace.WithAttributes(
			attribute.String("document.type", req.DocumentType),
			attribute.String("document.id", req.DocumentID),
		))
	defer span.End()

	var result *StornoResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		all, err := s.repo.ListByDocument(ctx, req.OrganizationID, req.DocumentType, req.DocumentID)
		if err != nil {
			return fmt.Errorf("list document movements: %w", err)
		}

		var originals, previous []Movement
		for _, m := range all {
			switch {
			case m.IsStorno():
				previous = append(previous, m)
			case m.ContributesToBalance():
				originals = append(originals, m)
			}
		}

		if len(originals) == 0 {
			if len(all) == 0 {
				return apperror.NewNotFound("document movements", req.DocumentType+":"+req.DocumentID)
			}
			if len(previous) == 0 {
				// Voided by a storno that committed after this statement's snapshot.
				return apperror.NewConflict("document is being reversed concurrently").
					WithDetail("documentType", req.DocumentType).
					WithDetail("documentId", req.DocumentID)
			}
			result = &StornoResult{AlreadyReversed: true, Count: len(previous)}
			for _, c := range previous {
				result.OriginalMovementIDs = append(result.OriginalMovementIDs, *c.StornoOfMovementID)
				result.StornoMovementIDs = append(result.StornoMovementIDs, c.ID)
			}
			return nil
		}

		result, err = s.reverse(ctx, req, originals)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("storno.count", result.Count))
	if !result.AlreadyReversed {
		logger.Info(ctx, "document reversed",
			"document_type", req.DocumentType,
			"document_id", req.DocumentID,
			"movements", result.Count,
		)
	}
	return result, nil
}

func (s *StornoService) reverse(ctx context.Context, req StornoRequest, originals []Movement) (*StornoResult, error) {
	now := s.now()
	result := &StornoResult{Count: len(originals)}

	for i := range originals {
		orig := &originals[i]

		c := orig.Compensation()
		c.ID = id.New()
		c.ExternalRef = ptr(StornoRef(req.DocumentType, req.DocumentID, orig.ID))
		c.Comment = ptr(req.Reason)
		c.CreatedByUserID = req.UserID
		c.CreatedAt = now

		posted, err := s.movements.append(ctx, &c, true)
		if err != nil {
			return nil, fmt.Errorf("post compensation of %s: %w", orig.ID, err)
		}
		result.OriginalMovementIDs = append(result.OriginalMovementIDs, orig.ID)
		result.StornoMovementIDs = append(result.StornoMovementIDs, posted.ID)
	}

	n, err := s.repo.Void(ctx, req.OrganizationID, result.OriginalMovementIDs, now, req.UserID, req.Reason)
	if err != nil {
		return nil, fmt.Errorf("void originals: %w", err)
	}
	if n != int64(len(originals)) {
		return nil, apperror.NewConflict("document movements were reversed concurrently").
			WithDetail("documentType", req.DocumentType).
			WithDetail("documentId", req.DocumentID)
	}

	for i := range originals {
		orig := &originals[i]
		orig.IsVoid = true
		orig.VoidedAt = &now
		orig.VoidedByUserID = req.UserID
		orig.VoidReason = ptr(req.Reason)
		if err := s.movements.hooks.Run(ctx, domain.AfterVoid, orig); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		err := s.audit.Record(ctx, AuditEntry{
			OrganizationID: req.OrganizationID,
			Action:         "STORNO",
			EntityType:     req.DocumentType,
			EntityID:       req.DocumentID,
			UserID:         req.UserID,
			Reason:         req.Reason,
			Payload:        result,
			RecordedAt:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("record audit: %w", err)
		}
	}
	return result, nil
}

func ptr[T any](v T) *T {
	return &v
}
