// Package consumer binds the audit pipeline to an SQS queue.
//
// Each received message is processed as its own task. Messages are deleted
// when processing succeeds or fails permanently (malformed or invalid events
// can never succeed on redelivery). Store failures leave the message on the
// queue so the visibility timeout redelivers it; idempotent persistence
// absorbs the replay.
package consumer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"fcp-audit/internal/audit/metrics"
	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/service"
)

// API is the subset of *sqs.Client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Processor runs one message body through the pipeline.
type Processor interface {
	Process(ctx context.Context, body []byte) (service.Outcome, error)
}

// Consumer long-polls a queue and hands messages to a Processor.
type Consumer struct {
	client       API
	processor    Processor
	queueURL     string
	waitTime     int32
	maxMessages  int32
	visibility   time.Duration
	concurrency  int
	errorBackoff time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Consumer)

func WithWaitTime(seconds int32) Option {
	return func(c *Consumer) {
		if seconds >= 0 && seconds <= 20 {
			c.waitTime = seconds
		}
	}
}

func WithMaxMessages(n int32) Option {
	return func(c *Consumer) {
		if n >= 1 && n <= 10 {
			c.maxMessages = n
		}
	}
}

func WithVisibilityTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		c.visibility = d
	}
}

// WithConcurrency bounds how many messages are processed at once.
func WithConcurrency(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithErrorBackoff sets the pause after a failed receive.
func WithErrorBackoff(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.errorBackoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func New(client API, processor Processor, queueURL string, opts ...Option) *Consumer {
	c := &Consumer{
		client:       client,
		processor:    processor,
		queueURL:     queueURL,
		waitTime:     20,
		maxMessages:  10,
		concurrency:  10,
		errorBackoff: time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled. Messages already received when ctx is
// cancelled are processed to completion before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "queue consumer started", "queue_url", c.queueURL)
	defer c.logger.Info("queue consumer stopped", "queue_url", c.queueURL)

	for ctx.Err() == nil {
		in := &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: c.maxMessages,
			WaitTimeSeconds:     c.waitTime,
		}
		if c.visibility > 0 {
			in.VisibilityTimeout = int32(c.visibility / time.Second)
		}
		out, err := c.client.ReceiveMessage(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.ErrorContext(ctx, "failed to receive messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.errorBackoff):
			}
			continue
		}
		c.processBatch(context.WithoutCancel(ctx), out.Messages)
	}
	return nil
}

func (c *Consumer) processBatch(ctx context.Context, msgs []types.Message) {
	if len(msgs) == 0 {
		return
	}
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			c.handle(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	c.metrics.InFlight(1)
	defer c.metrics.InFlight(-1)

	messageID := aws.ToString(msg.MessageId)
	_, err := c.processor.Process(ctx, []byte(aws.ToString(msg.Body)))
	switch {
	case err == nil:
	case models.IsFatal(err):
		attrs := []any{"message_id", messageID, "error", err}
		if ve, ok := models.AsValidationError(err); ok {
			attrs = append(attrs, "details", strings.Join(ve.Details, "; "))
		}
		c.logger.WarnContext(ctx, "dropping unprocessable message", attrs...)
	default:
		c.logger.ErrorContext(ctx, "message left for redelivery",
			"message_id", messageID,
			"timeout", models.IsOperationTimeout(err),
			"error", err,
		)
		return
	}

	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to delete message", "message_id", messageID, "error", err)
	}
}
