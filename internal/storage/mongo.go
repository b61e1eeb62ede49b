package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo is the document store adapter. One collection per candle series plus
// the shared watermark collection.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logrus.Entry
}

// NewMongo connects to MongoDB and verifies connectivity with a ping.
func NewMongo(ctx context.Context, uri, dbname string, logger *logrus.Entry) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Mongo{
		client: client,
		db:     client.Database(dbname),
		logger: logger.WithField("service", "mongo"),
	}, nil
}

// FindAll returns every document of a collection.
func (m *Mongo) FindAll(ctx context.Context, collection string) ([]bson.M, error) {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	if len(docs) > 0 {
		m.logger.Debugf("%s found %d docs", collection, len(docs))
	}
	return docs, nil
}

// UpsertOne replaces-or-inserts a single document matched by filter.
// Returns the modified count; re-upserting identical data modifies nothing.
func (m *Mongo) UpsertOne(ctx context.Context, collection string, filter, doc bson.M) (int64, error) {
	res, err := m.db.Collection(collection).UpdateOne(
		ctx,
		filter,
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return -1, fmt.Errorf("upsert %s: %w", collection, err)
	}

	m.logger.Debugf("%s upsert: %v", collection, filter)
	return res.ModifiedCount, nil
}

// InsertMany inserts documents unordered, so one duplicate key does not abort
// the rest of the batch. Duplicate-key conflicts are counted and logged, not
// escalated; the successful portion of the batch is retained. Only a hard
// failure returns an error.
func (m *Mongo) InsertMany(ctx context.Context, collection string, docs []any) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	_, err := m.db.Collection(collection).InsertMany(
		ctx,
		docs,
		options.InsertMany().SetOrdered(false),
	)
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			inserted := int64(len(docs) - len(bwe.WriteErrors))
			m.logger.Debugf("%s nInserted: %d, writeErrors: %d", collection, inserted, len(bwe.WriteErrors))
			return inserted, nil
		}
		return -1, fmt.Errorf("insert %s: %w", collection, err)
	}

	m.logger.Debugf("%s nInserted: %d", collection, len(docs))
	return int64(len(docs)), nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
