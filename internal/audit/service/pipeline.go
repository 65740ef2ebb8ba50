package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"fcp-audit/internal/audit/envelope"
	"fcp-audit/internal/audit/metrics"
	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/transform"
)

// Outcome describes what one pipeline run did.
type Outcome struct {
	// ID is the audit record identity; empty when there was no audit view.
	ID        string
	Inserted  bool
	Duplicate bool
	Forwarded bool
}

// Process decodes a queue message body and runs it through the pipeline.
// Malformed envelopes and validation errors are fatal for the message; store
// failures are returned for the caller to retry by redelivery.
func (s *Service) Process(ctx context.Context, body []byte) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Process")
	defer span.End()

	decoded, err := envelope.Decode(body)
	if err != nil {
		s.metrics.IncrementDropped(metrics.ReasonMalformed)
		span.SetStatus(codes.Error, "malformed envelope")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("sns.message_id", decoded.MessageID))

	return s.Handle(ctx, decoded.Event)
}

// Handle runs an already decoded event through validation, transformation,
// persistence and forwarding. Validation strictly precedes any side effect.
func (s *Service) Handle(ctx context.Context, raw models.RawEvent) (Outcome, error) {
	ev, err := s.validator.Validate(raw)
	if err != nil {
		s.metrics.IncrementDropped(metrics.ReasonInvalid)
		return Outcome{}, err
	}

	views := transform.Transform(ev)

	var out Outcome
	g, gctx := errgroup.WithContext(ctx)
	if views.Audit != nil {
		view := *views.Audit
		g.Go(func() error {
			rec, inserted, err := s.persist(gctx, view)
			if err != nil {
				return err
			}
			out.ID = rec.ID
			out.Inserted = inserted
			out.Duplicate = !inserted
			return nil
		})
	}
	if views.Security != nil {
		view := *views.Security
		g.Go(func() error {
			s.forwarder.Forward(ctx, view)
			out.Forwarded = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit record",
			"session_id", ev.SessionID,
			"application", ev.Application,
			"error", err,
		)
		return out, err
	}

	s.metrics.IncrementProcessed()
	s.logProcessed(ctx, out, ev)
	return out, nil
}

func (s *Service) logProcessed(ctx context.Context, out Outcome, ev *models.NormalizedEvent) {
	s.logger.InfoContext(ctx, "event processed",
		"_id", out.ID,
		"application", ev.Application,
		"session_id", ev.SessionID,
		"duplicate", out.Duplicate,
		"forwarded", out.Forwarded,
	)
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.logger.DebugContext(ctx, "processed event payload",
		"_id", out.ID,
		"event", base64.StdEncoding.EncodeToString(body),
	)
}
