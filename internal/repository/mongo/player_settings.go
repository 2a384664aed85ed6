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

const playerSettingsID = "player"

type playerSettingsDoc struct {
	ID                string  `bson:"_id"`
	Volume            float64 `bson:"volume"`
	Muted             bool    `bson:"muted"`
	PreferredLanguage string  `bson:"preferredLanguage"`
	DefaultResolution string  `bson:"defaultResolution"`
	LastFilename      string  `bson:"lastFilename"`
	UpdatedAt         int64   `bson:"updatedAt"`
}

type PlayerSettingsRepository struct {
	collection *mongo.Collection
}

func NewPlayerSettingsRepository(client *mongo.Client, dbName string) *PlayerSettingsRepository {
	return &PlayerSettingsRepository{collection: client.Database(dbName).Collection("settings")}
}

func (r *PlayerSettingsRepository) Get(ctx context.Context) (domain.PlayerSettings, bool, error) {
	if r == nil || r.collection == nil {
		return domain.PlayerSettings{}, false, nil
	}
	var doc playerSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": playerSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PlayerSettings{}, false, nil
		}
		return domain.PlayerSettings{}, false, err
	}
	return domain.PlayerSettings{
		Volume:            doc.Volume,
		Muted:             doc.Muted,
		PreferredLanguage: doc.PreferredLanguage,
		DefaultResolution: domain.Resolution(doc.DefaultResolution),
		LastFilename:      doc.LastFilename,
	}, true, nil
}

func (r *PlayerSettingsRepository) Set(ctx context.Context, settings domain.PlayerSettings) error {
	if r == nil || r.collection == nil {
		return nil
	}
	update := bson.M{
		"$set": bson.M{
			"volume":            settings.Volume,
			"muted":             settings.Muted,
			"preferredLanguage": settings.PreferredLanguage,
			"defaultResolution": string(settings.DefaultResolution),
			"lastFilename":      settings.LastFilename,
			"updatedAt":         time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": playerSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
