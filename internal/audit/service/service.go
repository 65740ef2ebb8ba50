package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"fcp-audit/internal/audit/metrics"
	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/validation"
)

const (
	defaultMaxPageSize = 100
	defaultMaxTime     = 10 * time.Second
)

// Store is the document store contract: an atomic insert-if-absent keyed by
// record ID and a sorted, offset-paginated read.
type Store interface {
	// InsertIfAbsent writes rec unless a record with rec.ID exists. It reports
	// whether this call inserted. A lost race for the same ID is not an error.
	InsertIfAbsent(ctx context.Context, rec models.AuditRecord) (bool, error)
	// List returns records ordered by Received descending.
	List(ctx context.Context, page models.Page) ([]models.AuditRecord, error)
}

// Forwarder hands security views to the security operations sink. It must
// not block on delivery.
type Forwarder interface {
	Forward(ctx context.Context, view models.SecurityView)
}

// Validator checks a raw event and returns its normalized form.
type Validator interface {
	Validate(raw models.RawEvent) (*models.NormalizedEvent, error)
}

// Service runs the decode, validate, transform, persist pipeline and serves
// paginated reads over the stored records.
type Service struct {
	store       Store
	forwarder   Forwarder
	validator   Validator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	maxTime     time.Duration
	maxPageSize int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithForwarder(f Forwarder) Option {
	return func(s *Service) {
		s.forwarder = f
	}
}

func WithValidator(v Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxTime bounds every store call.
func WithMaxTime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxTime = d
		}
	}
}

func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithClock overrides the receive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Without a forwarder, security views are discarded.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	s := &Service{
		store:       store,
		forwarder:   discard{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("fcp-audit/internal/audit/service"),
		now:         time.Now,
		maxTime:     defaultMaxTime,
		maxPageSize: defaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	return s, nil
}

type discard struct{}

func (discard) Forward(context.Context, models.SecurityView) {}
