package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fcp-audit/internal/platform/config"
)

const connectTimeout = 10 * time.Second

// Client wraps the driver client with an explicit lifecycle and health
// checking. It replaces a lazily created process-wide handle.
type Client struct {
	*mongo.Client
	database string
	readPref *readpref.ReadPref
}

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, cfg config.Mongo) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	mode, err := readpref.ModeFromString(cfg.ReadPreference)
	if err != nil {
		return nil, fmt.Errorf("parse read preference: %w", err)
	}
	rp, err := readpref.New(mode)
	if err != nil {
		return nil, fmt.Errorf("build read preference: %w", err)
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("fcp-audit").
		// Nested documents decode as maps so audit details round-trip as JSON objects.
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	return &Client{Client: client, database: cfg.Database, readPref: rp}, nil
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	return c.Client.Database(c.database)
}

// ReadPreference is the preference reads should be served with.
func (c *Client) ReadPreference() *readpref.ReadPref {
	return c.readPref
}

// Health checks if the MongoDB connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.Disconnect(ctx)
}
