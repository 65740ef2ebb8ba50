// Package mongo persists audit records in a MongoDB collection with native
// TTL expiry.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/retention"
	"fcp-audit/pkg/platform/sentinel"
)

// CollectionName is the audit records collection.
const CollectionName = "audit"

// ReceivedIndexName supports the sort when no expiry index exists.
const ReceivedIndexName = "events_by_received"

const (
	codeNamespaceNotFound = 26
	codeIndexNotFound     = 27
)

// Store is the MongoDB audit store.
type Store struct {
	db      *mongo.Database
	writes  *mongo.Collection
	reads   *mongo.Collection
	maxTime time.Duration
}

type Option func(*Store)

// WithMaxTime bounds server-side execution of every operation.
func WithMaxTime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxTime = d
		}
	}
}

// WithReadPreference routes reads, typically to secondaries when available.
func WithReadPreference(rp *readpref.ReadPref) Option {
	return func(s *Store) {
		if rp != nil {
			s.reads = s.db.Collection(CollectionName, options.Collection().SetReadPreference(rp))
		}
	}
}

func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		db:      db,
		writes:  db.Collection(CollectionName),
		reads:   db.Collection(CollectionName, options.Collection().SetReadPreference(readpref.SecondaryPreferred())),
		maxTime: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertIfAbsent upserts with $setOnInsert so an existing document is never
// modified. Two racing upserts can both miss the filter; the loser gets a
// duplicate key error, which means the record exists.
func (s *Store) InsertIfAbsent(ctx context.Context, rec models.AuditRecord) (bool, error) {
	doc, err := insertDocument(rec)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxTime)
	defer cancel()

	res, err := s.writes.UpdateOne(ctx,
		bson.M{"_id": rec.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, classify("upsert audit record", err)
	}
	return res.UpsertedCount == 1, nil
}

// List reads one page sorted by received, newest first.
func (s *Store) List(ctx context.Context, page models.Page) ([]models.AuditRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "received", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size)).
		SetMaxTime(s.maxTime)

	cursor, err := s.reads.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, classify("find audit records", err)
	}

	records := []models.AuditRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, classify("decode audit records", err)
	}
	return records, nil
}

// EnsureIndexes creates the descending received index used by List.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.writes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "received", Value: -1}},
		Options: options.Index().SetName(ReceivedIndexName),
	})
	if err != nil {
		return classify("create received index", err)
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": CollectionName})
	if err != nil {
		return false, classify("list collections", err)
	}
	return len(names) > 0, nil
}

func (s *Store) ExpiryIndex(ctx context.Context) (*retention.ExpiryIndex, error) {
	specs, err := s.writes.Indexes().ListSpecifications(ctx)
	if err != nil {
		if isCode(err, codeNamespaceNotFound) {
			return nil, nil
		}
		return nil, classify("list indexes", err)
	}
	return expiryIndexFrom(specs), nil
}

// expiryIndexFrom picks the expiry index out of specs. An index holding the
// expiry name without expireAfterSeconds is reported with a zero window so
// reconciliation replaces it instead of colliding with it on create.
func expiryIndexFrom(specs []*mongo.IndexSpecification) *retention.ExpiryIndex {
	for _, spec := range specs {
		if spec.Name != retention.IndexName {
			continue
		}
		idx := &retention.ExpiryIndex{Name: spec.Name, Field: retention.ExpiryField}
		if spec.ExpireAfterSeconds != nil {
			idx.ExpireAfter = time.Duration(*spec.ExpireAfterSeconds) * time.Second
		}
		return idx
	}
	return nil
}

func (s *Store) CreateExpiryIndex(ctx context.Context, expireAfter time.Duration) error {
	if expireAfter < 0 || expireAfter > retention.MaxTTL {
		return fmt.Errorf("expiry %s outside index range", expireAfter)
	}
	_, err := s.writes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: retention.ExpiryField, Value: 1}},
		Options: options.Index().
			SetName(retention.IndexName).
			SetExpireAfterSeconds(int32(expireAfter / time.Second)),
	})
	if err != nil {
		return classify("create expiry index", err)
	}
	return nil
}

func (s *Store) DropExpiryIndex(ctx context.Context) error {
	_, err := s.writes.Indexes().DropOne(ctx, retention.IndexName)
	if err != nil && !isCode(err, codeIndexNotFound) && !isCode(err, codeNamespaceNotFound) {
		return classify("drop expiry index", err)
	}
	return nil
}

// insertDocument renders rec without _id; the upsert takes _id from the filter.
func insertDocument(rec models.AuditRecord) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	delete(doc, "_id")
	return doc, nil
}

func classify(op string, err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

func isCode(err error, code int32) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == code
}
