package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
)

// TranscriptRepository implements repositories.TranscriptRepository using
// MongoDB.
type TranscriptRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewTranscriptRepository creates a MongoDB transcript repository.
func NewTranscriptRepository(db *mongo.Database, logger *zap.Logger) repositories.TranscriptRepository {
	collection := db.Collection("transcript_items")

	// Create indexes for better performance
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		createdAtIndex := mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		}

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{createdAtIndex})
		if err != nil {
			logger.Error("Failed to create transcript indexes", zap.Error(err))
		}
	}()

	return &TranscriptRepository{
		collection: collection,
		logger:     logger,
	}
}

// Append stores a new transcript item.
func (r *TranscriptRepository) Append(ctx context.Context, item *entities.TranscriptItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, item)
	if err != nil {
		r.logger.Error("Failed to append transcript item",
			zap.Error(err),
			zap.String("item_id", item.ID))
		return err
	}
	return nil
}

// UpdateTitle replaces the title of an existing item.
func (r *TranscriptRepository) UpdateTitle(ctx context.Context, id string, title string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"title": title}},
	)
	if err != nil {
		r.logger.Error("Failed to update transcript title",
			zap.Error(err),
			zap.String("item_id", id))
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("transcript item %s not found", id)
	}
	return nil
}

// List returns items in creation order, oldest first.
func (r *TranscriptRepository) List(ctx context.Context, limit int) ([]entities.TranscriptItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		r.logger.Error("Failed to list transcript items", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []entities.TranscriptItem{}
	if err := cursor.All(ctx, &items); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return items, nil
		}
		return nil, err
	}
	return items, nil
}

// DeleteOlderThan removes items created before the cutoff.
func (r *TranscriptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		r.logger.Error("Failed to delete old transcript items", zap.Error(err))
		return 0, err
	}
	if result.DeletedCount > 0 {
		r.logger.Info("Deleted old transcript items",
			zap.Int64("count", result.DeletedCount),
			zap.Time("cutoff", cutoff))
	}
	return result.DeletedCount, nil
}
