package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// MongoCatalog reads the storefront's products and collections collections.
// Their _id is usually an ObjectID; string ids are matched too.
type MongoCatalog struct {
	collections map[domain.ItemKind]*mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{
		collections: map[domain.ItemKind]*mongo.Collection{
			domain.KindProduct:    db.Collection("products"),
			domain.KindCollection: db.Collection("collections"),
		},
	}
}

func (m *MongoCatalog) ExistsBatch(ctx context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error) {
	coll, ok := m.collections[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItemRef, kind)
	}
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	candidates := make(bson.A, 0, len(ids)*2)
	for _, id := range ids {
		candidates = append(candidates, id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			candidates = append(candidates, oid)
		}
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": candidates}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			ID any `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s id: %w", coll.Name(), err)
		}
		switch v := doc.ID.(type) {
		case primitive.ObjectID:
			found[v.Hex()] = struct{}{}
		case string:
			found[v] = struct{}{}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return found, nil
}
