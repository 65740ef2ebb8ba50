// Package security forwards security views to the security operations topic.
//
// Forwarding is fire-and-forget: Forward only enqueues into a bounded ring
// buffer and returns. A background flusher produces batches to Kafka. When
// the broker keeps failing, a circuit breaker stops produce attempts and
// batches are dropped until a probe after the cooldown succeeds. Delivery is
// best effort and never blocks or fails the persistence pipeline.
package security

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"fcp-audit/internal/audit/metrics"
	"fcp-audit/internal/audit/models"
	"fcp-audit/pkg/platform/circuit"
)

// Drop reasons used on the forward dropped counter.
const (
	DropBufferFull    = "buffer_full"
	DropCircuitOpen   = "circuit_open"
	DropProduceFailed = "produce_failed"
	DropEncode        = "encode_failed"
	DropClosed        = "closed"
)

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher is the Kafka-backed forwarder.
type Publisher struct {
	producer      Producer
	topic         string
	buffer        *RingBuffer
	breaker       *circuit.Breaker
	cooldown      time.Duration
	flushInterval time.Duration
	batchSize     int
	logger        *slog.Logger
	metrics       *metrics.Metrics

	probeAt time.Time // only touched by the flusher goroutine
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type Option func(*Publisher)

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBreaker sets the breaker and how long an open breaker waits between
// produce probes.
func WithBreaker(b *circuit.Breaker, cooldown time.Duration) Option {
	return func(p *Publisher) {
		if b != nil {
			p.breaker = b
		}
		if cooldown > 0 {
			p.cooldown = cooldown
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a publisher and starts its flusher. Call Close to drain.
func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:      producer,
		topic:         topic,
		buffer:        NewRingBuffer(10000),
		breaker:       circuit.New("soc-kafka"),
		cooldown:      30 * time.Second,
		flushInterval: time.Second,
		batchSize:     500,
		logger:        slog.Default(),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Forward enqueues view and returns immediately.
func (p *Publisher) Forward(ctx context.Context, view models.SecurityView) {
	select {
	case <-p.stop:
		p.metrics.IncrementForwardDropped(DropClosed)
		p.logger.WarnContext(ctx, "security view dropped after close", "session_id", view.SessionID)
		return
	default:
	}

	if p.buffer.Enqueue(view) {
		p.metrics.IncrementForwardDropped(DropBufferFull)
	}
	p.metrics.IncrementForwardEnqueued()

	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Close stops the flusher after draining the buffer, bounded by ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.drain(ctx)
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.drain(ctx)
		case <-p.wake:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
	}
}

func (p *Publisher) flush(ctx context.Context, batch []models.SecurityView) {
	if p.breaker.IsOpen() && time.Now().Before(p.probeAt) {
		p.dropped(DropCircuitOpen, len(batch))
		return
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, view := range batch {
		value, err := json.Marshal(view)
		if err != nil {
			p.dropped(DropEncode, 1)
			continue
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(view.SessionID),
			Value: value,
		})
	}
	if len(records) == 0 {
		return
	}

	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		p.metrics.IncrementForwardFailed()
		p.dropped(DropProduceFailed, len(records))
		_, change := p.breaker.RecordFailure()
		if p.breaker.IsOpen() {
			p.probeAt = time.Now().Add(p.cooldown)
		}
		if change.Opened {
			p.logger.Warn("security sink circuit opened", "breaker", p.breaker.Name(), "error", err)
		} else {
			p.logger.Error("failed to produce security views", "count", len(records), "error", err)
		}
		return
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.Info("security sink circuit closed", "breaker", p.breaker.Name())
	}
}

func (p *Publisher) dropped(reason string, n int) {
	for i := 0; i < n; i++ {
		p.metrics.IncrementForwardDropped(reason)
	}
}

// Discard is the forwarder used when security forwarding is disabled.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) Forward(ctx context.Context, view models.SecurityView) {
	if d.Logger != nil {
		d.Logger.DebugContext(ctx, "security forwarding disabled, view discarded", "session_id", view.SessionID)
	}
}
