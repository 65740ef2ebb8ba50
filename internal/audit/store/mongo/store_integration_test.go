//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/retention"
	auditmongo "fcp-audit/internal/audit/store/mongo"
	"fcp-audit/pkg/testutil/containers"
)

type MongoStoreSuite struct {
	suite.Suite
	container *containers.MongoContainer
	db        *mongo.Database
	store     *auditmongo.Store
}

func TestMongoStoreSuite(t *testing.T) {
	suite.Run(t, new(MongoStoreSuite))
}

func (s *MongoStoreSuite) SetupSuite() {
	s.container = containers.NewMongoContainer(s.T())
}

func (s *MongoStoreSuite) SetupTest() {
	s.db = s.container.Database("audit_" + uuid.NewString()[:8])
	s.store = auditmongo.New(s.db,
		auditmongo.WithMaxTime(5*time.Second),
		auditmongo.WithReadPreference(readpref.Primary()),
	)
}

func record(id string, received time.Time, action string) models.AuditRecord {
	return models.AuditRecord{
		ID:          id,
		Received:    received.UTC().Truncate(time.Millisecond),
		SessionID:   "sess-1",
		Datetime:    "2025-03-01T10:15:30.000Z",
		Environment: "dev",
		Application: "FCP001",
		IP:          "127.0.0.1",
		Audit: models.AuditBlock{
			Action:  models.StringPtr(action),
			Details: map[string]any{"caseId": "123"},
		},
	}
}

func (s *MongoStoreSuite) TestInsertIfAbsentKeepsFirstWrite() {
	ctx := context.Background()
	now := time.Now()

	inserted, err := s.store.InsertIfAbsent(ctx, record("id-1", now, "first"))
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.store.InsertIfAbsent(ctx, record("id-1", now.Add(time.Minute), "second"))
	s.Require().NoError(err)
	s.False(inserted)

	got, err := s.store.List(ctx, models.Page{Number: 1, Size: 10})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("first", *got[0].Audit.Action)
	s.Equal("123", got[0].Audit.Details["caseId"])
	s.True(got[0].Received.Equal(now.UTC().Truncate(time.Millisecond)))
}

func (s *MongoStoreSuite) TestConcurrentUpsertsConverge() {
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.InsertIfAbsent(ctx, record("race", now, fmt.Sprintf("writer-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	got, err := s.store.List(ctx, models.Page{Number: 1, Size: 10})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *MongoStoreSuite) TestListPagination() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		_, err := s.store.InsertIfAbsent(ctx, record(fmt.Sprintf("id-%d", i), base.Add(time.Duration(i)*time.Second), "a"))
		s.Require().NoError(err)
	}

	first, err := s.store.List(ctx, models.Page{Number: 1, Size: 3})
	s.Require().NoError(err)
	s.Equal([]string{"id-6", "id-5", "id-4"}, ids(first))

	last, err := s.store.List(ctx, models.Page{Number: 3, Size: 3})
	s.Require().NoError(err)
	s.Equal([]string{"id-0"}, ids(last))

	beyond, err := s.store.List(ctx, models.Page{Number: 4, Size: 3})
	s.Require().NoError(err)
	s.Empty(beyond)
}

func (s *MongoStoreSuite) TestRetentionReconcile() {
	ctx := context.Background()
	m, err := retention.NewManager(s.store, nil)
	s.Require().NoError(err)

	s.Run("missing collection without ttl is a no-op", func() {
		action, err := m.Reconcile(ctx, 0)
		s.Require().NoError(err)
		s.Equal(retention.ActionNone, action)
	})

	s.Run("thirty days creates exactly one index", func() {
		s.Require().NoError(s.store.EnsureIndexes(ctx))

		action, err := m.Reconcile(ctx, 2592000*time.Second)
		s.Require().NoError(err)
		s.Equal(retention.ActionCreated, action)

		action, err = m.Reconcile(ctx, 2592000*time.Second)
		s.Require().NoError(err)
		s.Equal(retention.ActionNone, action)

		idx, err := s.store.ExpiryIndex(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(idx)
		s.Equal(2592000*time.Second, idx.ExpireAfter)
	})

	s.Run("unset ttl drops the index", func() {
		action, err := m.Reconcile(ctx, 0)
		s.Require().NoError(err)
		s.Equal(retention.ActionDropped, action)

		idx, err := s.store.ExpiryIndex(ctx)
		s.Require().NoError(err)
		s.Nil(idx)
	})
}

func (s *MongoStoreSuite) TestRetentionReplacesIndexWithoutWindow() {
	ctx := context.Background()
	_, err := s.db.Collection(auditmongo.CollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: retention.ExpiryField, Value: 1}},
		Options: options.Index().SetName(retention.IndexName),
	})
	s.Require().NoError(err)

	m, err := retention.NewManager(s.store, nil)
	s.Require().NoError(err)

	action, err := m.Reconcile(ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(retention.ActionReplaced, action)

	idx, err := s.store.ExpiryIndex(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(idx)
	s.Equal(time.Hour, idx.ExpireAfter)
}

func ids(records []models.AuditRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
