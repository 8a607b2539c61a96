package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cardbored-api/internal/model"
)

const (
	mongoPricesCollection  = "card_prices"
	mongoStagingCollection = "card_prices_staging"
	mongoMetaCollection    = "snapshot_meta"
	mongoInsertBatch       = 1000
)

// MongoSnapshotStore implements SnapshotStore using MongoDB.
// Saves are written to a staging collection and renamed over the live one.
type MongoSnapshotStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// priceDocument is one card price in MongoDB.
type priceDocument struct {
	Key      string  `bson:"_id"`
	Name     string  `bson:"name"`
	Price    *string `bson:"price"`
	ImageURL string  `bson:"image_url,omitempty"`
	SetName  string  `bson:"set_name"`
	ManaCost string  `bson:"mana_cost"`
	TypeLine string  `bson:"type_line"`
}

type metaDocument struct {
	ID              string    `bson:"_id"`
	FetchedAt       time.Time `bson:"fetched_at"`
	SourceUpdatedAt string    `bson:"source_updated_at,omitempty"`
	TotalCards      int       `bson:"total_cards"`
}

// NewMongoSnapshotStore connects to MongoDB.
func NewMongoSnapshotStore(uri, database string) (*MongoSnapshotStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("[MongoDB] Connected to %s", database)
	return &MongoSnapshotStore{client: client, db: client.Database(database)}, nil
}

// Save writes all records to a staging collection, then atomically renames it
// over the live collection.
func (s *MongoSnapshotStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	staging := s.db.Collection(mongoStagingCollection)
	if err := staging.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop staging collection: %w", err)
	}

	batch := make([]interface{}, 0, mongoInsertBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := staging.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false)); err != nil {
			return fmt.Errorf("failed to insert card prices: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for key, rec := range snap.Records {
		doc := priceDocument{
			Key:      key,
			Name:     rec.Name,
			ImageURL: rec.ImageURL,
			SetName:  rec.SetName,
			ManaCost: rec.ManaCost,
			TypeLine: rec.TypeLine,
		}
		if rec.Price.Known() {
			v := rec.Price.Amount().String()
			doc.Price = &v
		}
		batch = append(batch, doc)
		if len(batch) == mongoInsertBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	rename := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + mongoStagingCollection},
		{Key: "to", Value: s.db.Name() + "." + mongoPricesCollection},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, rename).Err(); err != nil {
		return fmt.Errorf("failed to swap card prices: %w", err)
	}

	meta := metaDocument{
		ID:              "current",
		FetchedAt:       snap.FetchedAt,
		SourceUpdatedAt: snap.SourceUpdatedAt,
		TotalCards:      len(snap.Records),
	}
	_, err := s.db.Collection(mongoMetaCollection).ReplaceOne(ctx,
		bson.M{"_id": meta.ID}, meta, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	log.Printf("[MongoDB] Saved %d records", len(snap.Records))
	return nil
}

// Load reads the saved snapshot, or nil when none exists.
func (s *MongoSnapshotStore) Load(ctx context.Context) (*model.Snapshot, error) {
	var meta metaDocument
	err := s.db.Collection(mongoMetaCollection).FindOne(ctx, bson.M{"_id": "current"}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}

	cursor, err := s.db.Collection(mongoPricesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query card prices: %w", err)
	}
	defer cursor.Close(ctx)

	records := make(map[string]model.PriceRecord, meta.TotalCards)
	for cursor.Next(ctx) {
		var doc priceDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode card price: %w", err)
		}
		rec := model.PriceRecord{
			Name:     doc.Name,
			Price:    model.UnknownPrice(),
			ImageURL: doc.ImageURL,
			SetName:  doc.SetName,
			ManaCost: doc.ManaCost,
			TypeLine: doc.TypeLine,
		}
		if doc.Price != nil {
			if rec.Price, err = model.ParsePrice(*doc.Price); err != nil {
				return nil, fmt.Errorf("invalid stored price for %q: %w", doc.Key, err)
			}
		}
		records[doc.Key] = rec
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card prices: %w", err)
	}

	return &model.Snapshot{
		Records:         records,
		FetchedAt:       meta.FetchedAt,
		SourceUpdatedAt: meta.SourceUpdatedAt,
	}, nil
}

// Close disconnects the client.
func (s *MongoSnapshotStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
