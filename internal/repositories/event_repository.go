package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoEventRepository implements EventRepository for MongoDB
type MongoEventRepository struct {
	collection *mongo.Collection
}

// NewMongoEventRepository creates a new MongoEventRepository
func NewMongoEventRepository(db *mongo.Database) *MongoEventRepository {
	return &MongoEventRepository{collection: db.Collection("events")}
}

func (r *MongoEventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (r *MongoEventRepository) Read(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read event: %w", err)
	}
	event.Data.Action = normalizeDoc(event.Data.Action)
	event.Data.Target = normalizeDoc(event.Data.Target)
	return &event, nil
}

func (r *MongoEventRepository) Update(ctx context.Context, id string, set models.Doc) error {
	if len(set) == 0 {
		return nil
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(set)})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
