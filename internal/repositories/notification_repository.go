package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationRepository implements NotificationRepository for MongoDB
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoNotificationRepository
func NewMongoNotificationRepository(db *mongo.Database) *MongoNotificationRepository {
	return &MongoNotificationRepository{collection: db.Collection("notifications")}
}

// EnsureIndexes creates the inbox and per-subscription indexes.
func (r *MongoNotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscriber_id", Value: 1}, {Key: "created", Value: -1}}},
		{Keys: bson.D{{Key: "subscription_id", Value: 1}}},
	})
	return err
}

func (r *MongoNotificationRepository) Create(ctx context.Context, note *models.Notification) error {
	if note.ID == "" {
		note.ID = primitive.NewObjectID().Hex()
	}
	if note.Created.IsZero() {
		note.Created = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, note)
	return err
}

func (r *MongoNotificationRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Notification, error) {
	return r.find(ctx, bson.M{"subscription_id": subscriptionID}, options.Find())
}

func (r *MongoNotificationRepository) RemoveBySubscription(ctx context.Context, subscriptionID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"subscription_id": subscriptionID})
	if err != nil {
		return 0, fmt.Errorf("remove notifications: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoNotificationRepository) ListBySubscriber(ctx context.Context, subscriberID string, skip, limit int64) ([]*models.Notification, error) {
	findOptions := options.Find().SetSkip(skip).SetSort(bson.D{{Key: "created", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}
	return r.find(ctx, bson.M{"subscriber_id": subscriberID}, findOptions)
}

func (r *MongoNotificationRepository) MarkAsRead(ctx context.Context, id, subscriberID string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "subscriber_id": subscriberID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoNotificationRepository) MarkAllAsRead(ctx context.Context, subscriberID string) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"subscriber_id": subscriberID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	return err
}

func (r *MongoNotificationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Notification, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notes []*models.Notification
	if err = cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}
