package repositories

import (
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalize converts decoded BSON values into the plain Go shapes the
// hydration code works with: documents become models.Doc, arrays []any,
// object ids hex strings and datetimes time.Time.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case models.Doc:
		return normalizeMap(t)
	case bson.D:
		out := make(models.Doc, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return v
}

func normalizeMap(m map[string]any) models.Doc {
	out := make(models.Doc, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// normalizeDoc normalizes a decoded document. Nil stays nil.
func normalizeDoc(d models.Doc) models.Doc {
	if d == nil {
		return nil
	}
	return normalizeMap(d)
}

// idFilter matches a document by id stored either as a string or as the
// ObjectID the hex string encodes.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

// idValues expands ids with their ObjectID forms for $in queries.
func idValues(ids []string) bson.A {
	out := make(bson.A, 0, len(ids)*2)
	for _, id := range ids {
		out = append(out, id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}
