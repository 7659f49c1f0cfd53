package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoJoiner implements Joiner over MongoDB content collections. Member
// references are resolved through the member repository, since profiles
// live in PostgreSQL.
type MongoJoiner struct {
	db      *mongo.Database
	members MemberRepository
}

// NewMongoJoiner creates a new MongoJoiner
func NewMongoJoiner(db *mongo.Database, members MemberRepository) *MongoJoiner {
	return &MongoJoiner{db: db, members: members}
}

func (j *MongoJoiner) Load(ctx context.Context, collection, id string) (models.Doc, error) {
	if CollectionName(collection) == memberCollection {
		m, err := j.members.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return m.Doc(), nil
	}

	var raw bson.M
	err := j.db.Collection(CollectionName(collection)).FindOne(ctx, idFilter(id)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s %s: %w", collection, id, err)
	}
	return normalizeMap(raw), nil
}

func (j *MongoJoiner) Resolve(ctx context.Context, doc models.Doc, refs map[string]Ref) (map[string]models.Doc, error) {
	out := make(map[string]models.Doc, len(refs))

	// members are batched into one query
	memberFields := make(map[string]string)
	var memberIDs []string
	for field, ref := range refs {
		id := doc.Str(field + "_id")
		if id == "" {
			continue
		}
		if CollectionName(ref.Collection) == memberCollection {
			memberFields[field] = id
			memberIDs = append(memberIDs, id)
			continue
		}
		related, err := j.Load(ctx, ref.Collection, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[field] = ref.Fields.Project(related)
	}

	if len(memberIDs) > 0 {
		found, err := j.members.GetMany(ctx, memberIDs)
		if err != nil {
			return nil, fmt.Errorf("load members: %w", err)
		}
		for field, id := range memberFields {
			if m, ok := found[id]; ok {
				out[field] = refs[field].Fields.Project(m.Doc())
			}
		}
	}
	return out, nil
}

func (j *MongoJoiner) Children(ctx context.Context, parentIDs []string, collection, key string, opts FillOptions) (map[string][]models.Doc, error) {
	out := make(map[string][]models.Doc, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	coll := j.db.Collection(CollectionName(collection))

	findOptions := options.Find()
	if opts.Sort != "" {
		dir := 1
		if opts.Desc {
			dir = -1
		}
		findOptions.SetSort(bson.D{{Key: opts.Sort, Value: dir}})
	}

	// A limit applies per parent, so limited fills query each parent on its own.
	var batches []bson.M
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
		for _, id := range parentIDs {
			batches = append(batches, bson.M{key: bson.M{"$in": idValues([]string{id})}})
		}
	} else {
		batches = append(batches, bson.M{key: bson.M{"$in": idValues(parentIDs)}})
	}

	for _, filter := range batches {
		cursor, err := coll.Find(ctx, filter, findOptions)
		if err != nil {
			return nil, fmt.Errorf("fill %s: %w", collection, err)
		}
		var raw []bson.M
		err = cursor.All(ctx, &raw)
		cursor.Close(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range raw {
			child := normalizeMap(r)
			parent := child.Str(key)
			out[parent] = append(out[parent], child)
		}
	}

	for parent, children := range out {
		if opts.Reverse {
			for a, b := 0, len(children)-1; a < b; a, b = a+1, b-1 {
				children[a], children[b] = children[b], children[a]
			}
		}
		for _, child := range children {
			if err := Inflate(ctx, j, child, opts.Inflate); err != nil {
				return nil, err
			}
		}
		out[parent] = children
	}
	return out, nil
}
