package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSubscriptionRepository implements SubscriptionRepository for MongoDB
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new MongoSubscriptionRepository
func NewMongoSubscriptionRepository(db *mongo.Database) *MongoSubscriptionRepository {
	return &MongoSubscriptionRepository{collection: db.Collection("subscriptions")}
}

// EnsureIndexes creates the unique (subscriber, subscribee) index that turns
// duplicate subscriptions into ErrConflict, plus the lookup index used by
// the resolver.
func (r *MongoSubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subscriber_id", Value: 1}, {Key: "subscribee_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "subscribee_id", Value: 1}, {Key: "meta.style", Value: 1}, {Key: "mute", Value: 1}},
		},
	})
	return err
}

func (r *MongoSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = primitive.NewObjectID().Hex()
	}
	if sub.Created.IsZero() {
		sub.Created = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, storedSubscription(sub))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (r *MongoSubscriptionRepository) Read(ctx context.Context, filter SubscriptionFilter) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.collection.FindOne(ctx, filter.bson()).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read subscription: %w", err)
	}
	return &sub, nil
}

func (r *MongoSubscriptionRepository) UpdateStyle(ctx context.Context, id string, style models.Style) (int64, error) {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"meta.style": style}})
	if err != nil {
		return 0, fmt.Errorf("update subscription style: %w", err)
	}
	return res.MatchedCount, nil
}

func (r *MongoSubscriptionRepository) Remove(ctx context.Context, id string) (int64, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("remove subscription: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoSubscriptionRepository) List(ctx context.Context, filters ...SubscriptionFilter) ([]*models.Subscription, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	query := filters[0].bson()
	if len(filters) > 1 {
		or := make(bson.A, 0, len(filters))
		for _, f := range filters {
			or = append(or, f.bson())
		}
		query = bson.M{"$or": or}
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var subs []*models.Subscription
	if err = cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (f SubscriptionFilter) bson() bson.M {
	q := bson.M{}
	if f.ID != "" {
		q["_id"] = f.ID
	}
	if f.SubscriberID != "" {
		q["subscriber_id"] = f.SubscriberID
	}
	if f.SubscribeeID != "" {
		q["subscribee_id"] = f.SubscribeeID
	}
	if f.Style != "" {
		q["meta.style"] = f.Style
	}
	if f.Muted != nil {
		q["mute"] = *f.Muted
	}
	return q
}
