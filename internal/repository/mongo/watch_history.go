package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamplayer/internal/domain"
)

type watchPositionDoc struct {
	ID        string  `bson:"_id"`
	Position  float64 `bson:"position"`
	Duration  float64 `bson:"duration"`
	UpdatedAt int64   `bson:"updatedAt"`
}

type WatchHistoryRepository struct {
	collection *mongo.Collection
}

func NewWatchHistoryRepository(client *mongo.Client, dbName string) *WatchHistoryRepository {
	return &WatchHistoryRepository{collection: client.Database(dbName).Collection("watch_history")}
}

func (r *WatchHistoryRepository) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	if r == nil || r.collection == nil {
		return nil
	}
	update := bson.M{
		"$set": bson.M{
			"position":  wp.Position,
			"duration":  wp.Duration,
			"updatedAt": time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": wp.Filename},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchHistoryRepository) Get(ctx context.Context, filename string) (domain.WatchPosition, error) {
	if r == nil || r.collection == nil {
		return domain.WatchPosition{}, domain.ErrNotFound
	}
	var doc watchPositionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": filename}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchPosition{}, domain.ErrNotFound
		}
		return domain.WatchPosition{}, err
	}
	return watchDocToPosition(doc), nil
}

func (r *WatchHistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error) {
	if r == nil || r.collection == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []watchPositionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.WatchPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, watchDocToPosition(doc))
	}
	return positions, nil
}

func watchDocToPosition(doc watchPositionDoc) domain.WatchPosition {
	return domain.WatchPosition{
		Filename:  doc.ID,
		Position:  doc.Position,
		Duration:  doc.Duration,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
