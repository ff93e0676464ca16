package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type mongoRepository struct {
	collection   *mongo.Collection
	anonymousTTL time.Duration
	now          func() time.Time
}

// MongoRepository is the Mongo-backed Repository; CreateIndexes must run once
// at startup so anonymous state expires natively.
type MongoRepository interface {
	Repository
	CreateIndexes(ctx context.Context) error
}

func NewMongoRepository(db *mongo.Database, anonymousTTL time.Duration) MongoRepository {
	return &mongoRepository{
		collection:   db.Collection("shopping_states"),
		anonymousTTL: anonymousTTL,
		now:          time.Now,
	}
}

func refFilter(ref domain.ItemRef) bson.M {
	return bson.M{"kind": ref.Kind, "id": ref.ID}
}

func hasLine(field string, ref domain.ItemRef) bson.M {
	return bson.M{field: bson.M{"$elemMatch": refFilter(ref)}}
}

func lacksLine(field string, ref domain.ItemRef) bson.M {
	return bson.M{field: bson.M{"$not": bson.M{"$elemMatch": refFilter(ref)}}}
}

func anyOf(refs []domain.ItemRef) bson.M {
	or := make(bson.A, 0, len(refs))
	for _, r := range refs {
		or = append(or, refFilter(r))
	}
	return bson.M{"$or": or}
}

// stamp marks a line mutation; every such write bumps version so MergeInto's
// compare-and-swap notices it.
func stamp(now time.Time, update bson.M) bson.M {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = now
	update["$set"] = set
	update["$inc"] = mergeM(update["$inc"], bson.M{"version": 1})
	return update
}

func mergeM(existing any, extra bson.M) bson.M {
	out := bson.M{}
	if m, ok := existing.(bson.M); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// insertFields are written only when an update creates the owner document.
func (m *mongoRepository) insertFields(owner domain.Owner, now time.Time) bson.M {
	fields := bson.M{
		"kind":       owner.Kind,
		"owner_id":   owner.ID,
		"created_at": now,
	}
	if owner.Anonymous() {
		fields["expires_at"] = now.Add(m.anonymousTTL)
	}
	return fields
}

func (m *mongoRepository) GetState(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error) {
	var state domain.ShoppingState

	err := m.collection.FindOne(ctx, bson.M{"_id": owner.Key()}).Decode(&state)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get shopping state: %w", err)
	}

	return &state, nil
}

func (m *mongoRepository) AddCartLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	if quantity > domain.MaxLineQuantity {
		return domain.ErrQuantityLimit
	}
	key := owner.Key()
	room := domain.MaxLineQuantity - quantity

	for attempt := 0; attempt < maxAttempts; attempt++ {
		now := m.now()

		// Increment an existing line in place while it stays within the limit.
		filter := bson.M{"_id": key, "cart": bson.M{
			"$elemMatch": mergeM(refFilter(ref), bson.M{"quantity": bson.M{"$lte": room}}),
		}}
		update := stamp(now, bson.M{"$inc": bson.M{"cart.$.quantity": quantity}})
		res, err := m.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to increment cart line: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		// No such line: push it, creating the owner document if needed.
		line := domain.CartLine{ItemRef: ref, Quantity: quantity, AddedAt: now}
		filter = mergeM(lacksLine("cart", ref), bson.M{"_id": key})
		update = stamp(now, bson.M{
			"$push":        bson.M{"cart": line},
			"$setOnInsert": m.insertFields(owner, now),
		})
		_, err = m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			// The document holds the line: either it has no room left or a
			// concurrent add pushed it between the two updates.
			full := bson.M{"_id": key, "cart": bson.M{
				"$elemMatch": mergeM(refFilter(ref), bson.M{"quantity": bson.M{"$gt": room}}),
			}}
			n, err := m.collection.CountDocuments(ctx, full)
			if err != nil {
				return fmt.Errorf("failed to check cart line: %w", err)
			}
			if n > 0 {
				return domain.ErrQuantityLimit
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to add cart line: %w", err)
		}
		return nil
	}

	return ErrConcurrentModification
}

func (m *mongoRepository) SetCartQuantity(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	filter := mergeM(hasLine("cart", ref), bson.M{"_id": owner.Key()})
	update := stamp(m.now(), bson.M{
		"$set": bson.M{"cart.$[elem].quantity": quantity},
	})
	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.kind": ref.Kind, "elem.id": ref.ID},
		},
	})

	res, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update cart quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveCartLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error {
	return m.pullLine(ctx, owner, "cart", ref)
}

func (m *mongoRepository) RemoveWishlistLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error {
	return m.pullLine(ctx, owner, "wishlist", ref)
}

func (m *mongoRepository) pullLine(ctx context.Context, owner domain.Owner, field string, ref domain.ItemRef) error {
	filter := mergeM(hasLine(field, ref), bson.M{"_id": owner.Key()})
	update := stamp(m.now(), bson.M{
		"$pull": bson.M{field: refFilter(ref)},
	})

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove %s line: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *mongoRepository) ClearCart(ctx context.Context, owner domain.Owner) error {
	return m.clear(ctx, owner, "cart")
}

func (m *mongoRepository) ClearWishlist(ctx context.Context, owner domain.Owner) error {
	return m.clear(ctx, owner, "wishlist")
}

// clear succeeds when the owner has no document at all.
func (m *mongoRepository) clear(ctx context.Context, owner domain.Owner, field string) error {
	update := stamp(m.now(), bson.M{"$set": bson.M{field: bson.A{}}})
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": owner.Key()}, update); err != nil {
		return fmt.Errorf("failed to clear %s: %w", field, err)
	}
	return nil
}

func (m *mongoRepository) PruneCart(ctx context.Context, owner domain.Owner, stale []domain.ItemRef) error {
	return m.prune(ctx, owner, "cart", stale)
}

func (m *mongoRepository) PruneWishlist(ctx context.Context, owner domain.Owner, stale []domain.ItemRef) error {
	return m.prune(ctx, owner, "wishlist", stale)
}

// prune pulls exactly the stale refs, so lines added concurrently survive.
func (m *mongoRepository) prune(ctx context.Context, owner domain.Owner, field string, stale []domain.ItemRef) error {
	if len(stale) == 0 {
		return nil
	}
	update := stamp(m.now(), bson.M{"$pull": bson.M{field: anyOf(stale)}})
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": owner.Key()}, update); err != nil {
		return fmt.Errorf("failed to prune %s: %w", field, err)
	}
	return nil
}

func (m *mongoRepository) AddWishlistLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) (bool, error) {
	key := owner.Key()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		now := m.now()
		line := domain.WishlistLine{ItemRef: ref, AddedAt: now}
		filter := mergeM(lacksLine("wishlist", ref), bson.M{"_id": key})
		update := stamp(now, bson.M{
			"$push":        bson.M{"wishlist": line},
			"$setOnInsert": m.insertFields(owner, now),
		})

		_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			return true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("failed to add wishlist line: %w", err)
		}

		// Duplicate _id: the document exists, either already holding ref
		// or created concurrently by another upsert.
		n, err := m.collection.CountDocuments(ctx, mergeM(hasLine("wishlist", ref), bson.M{"_id": key}))
		if err != nil {
			return false, fmt.Errorf("failed to check wishlist line: %w", err)
		}
		if n > 0 {
			return false, nil
		}
	}

	return false, ErrConcurrentModification
}

func (m *mongoRepository) MergeInto(ctx context.Context, target domain.Owner, guest *domain.ShoppingState) (bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		now := m.now()

		state, err := m.GetState(ctx, target)
		if errors.Is(err, ErrOwnerNotFound) {
			doc := domain.NewShoppingState(target, now)
			doc.FoldGuest(guest)
			doc.Version = 1

			_, err = m.collection.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("failed to insert merged state: %w", err)
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if !state.FoldGuest(guest) {
			return false, nil
		}

		filter := bson.M{"_id": target.Key(), "version": state.Version}
		if state.Version == 0 {
			filter["version"] = bson.M{"$in": bson.A{0, nil}}
		}
		update := bson.M{
			"$set": bson.M{
				"cart":            state.Cart,
				"wishlist":        state.Wishlist,
				"merged_sessions": state.MergedSessions,
				"updated_at":      now,
			},
			"$inc": bson.M{"version": 1},
		}

		res, err := m.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return false, fmt.Errorf("failed to apply merge: %w", err)
		}
		if res.MatchedCount == 1 {
			return true, nil
		}
	}

	return false, ErrConcurrentModification
}

func (m *mongoRepository) DeleteStateAtVersion(ctx context.Context, owner domain.Owner, version int64) (bool, error) {
	filter := bson.M{"_id": owner.Key(), "version": version}
	if version == 0 {
		filter["version"] = bson.M{"$in": bson.A{0, nil}}
	}
	res, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to delete shopping state: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (m *mongoRepository) CreateAnonymous(ctx context.Context, owner domain.Owner, expiresAt time.Time) error {
	doc := domain.NewShoppingState(owner, m.now())
	doc.ExpiresAt = &expiresAt

	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create anonymous state: %w", err)
	}
	return nil
}

func (m *mongoRepository) TouchAnonymous(ctx context.Context, owner domain.Owner, expiresAt time.Time) error {
	filter := bson.M{"_id": owner.Key(), "kind": domain.OwnerAnonymous}
	update := bson.M{"$set": bson.M{"expires_at": expiresAt}}

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to extend anonymous state: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrOwnerNotFound
	}
	return nil
}

func (m *mongoRepository) DeleteExpiredAnonymous(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"kind":       domain.OwnerAnonymous,
		"expires_at": bson.M{"$lte": now},
	}
	res, err := m.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired anonymous state: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			// Documents without expires_at (accounts) are never collected.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "updated_at", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
