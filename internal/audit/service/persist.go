package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fcp-audit/internal/audit/models"
	dErrors "fcp-audit/pkg/domain-errors"
)

// Persist stores view under its derived identity unless a record with that
// identity already exists, in which case the stored content is kept. The
// returned record is what this call attempted to write.
func (s *Service) Persist(ctx context.Context, view models.AuditView) (*models.AuditRecord, error) {
	rec, _, err := s.persist(ctx, view)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) persist(ctx context.Context, view models.AuditView) (models.AuditRecord, bool, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Persist")
	defer span.End()

	rec := models.NewAuditRecord(AuditID(view), view, s.now().UTC())
	span.SetAttributes(attribute.String("audit.id", rec.ID))

	ctx, cancel := context.WithTimeout(ctx, s.maxTime)
	defer cancel()

	start := time.Now()
	inserted, err := s.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return rec, false, models.StoreError("persist audit record", err)
	}
	s.metrics.RecordPersist(start, inserted)
	span.SetAttributes(attribute.Bool("audit.inserted", inserted))
	return rec, inserted, nil
}

// List returns one page of records, most recently received first. A page past
// the end is empty, not an error.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]models.AuditRecord, error) {
	if page < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "page must be greater than or equal to 1")
	}
	if pageSize < 1 || pageSize > s.maxPageSize {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("pageSize must be between 1 and %d", s.maxPageSize))
	}

	req := models.Page{Number: page, Size: pageSize}
	if req.BeyondRange() {
		return []models.AuditRecord{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "audit.List")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	ctx, cancel := context.WithTimeout(ctx, s.maxTime)
	defer cancel()

	start := time.Now()
	records, err := s.store.List(ctx, req)
	s.metrics.ObserveList(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, models.StoreError("list audit records", err)
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return records, nil
}

// MaxPageSize is the largest pageSize List accepts.
func (s *Service) MaxPageSize() int {
	return s.maxPageSize
}
