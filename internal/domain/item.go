package domain

import (
	"fmt"
	"strings"
)

// ItemKind tells which catalog collection an ItemRef points into.
type ItemKind string

const (
	KindProduct    ItemKind = "product"
	KindCollection ItemKind = "collection"
)

// ItemKinds lists every kind the catalog knows about.
var ItemKinds = []ItemKind{KindProduct, KindCollection}

func (k ItemKind) Valid() bool {
	return k == KindProduct || k == KindCollection
}

// ParseItemKind accepts the singular and plural spellings used by storefront clients.
func ParseItemKind(s string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "product", "products":
		return KindProduct, nil
	case "collection", "collections":
		return KindCollection, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidItemRef, s)
	}
}

// ItemRef is a weak reference to a catalog entry. It is comparable and is used
// directly as a map key, so (Kind, ID) is always the identity of a line.
type ItemRef struct {
	Kind ItemKind `bson:"kind" json:"kind"`
	ID   string   `bson:"id" json:"id"`
}

func NewItemRef(kind, id string) (ItemRef, error) {
	k, err := ParseItemKind(kind)
	if err != nil {
		return ItemRef{}, err
	}
	ref := ItemRef{Kind: k, ID: strings.TrimSpace(id)}
	if err := ref.Validate(); err != nil {
		return ItemRef{}, err
	}
	return ref, nil
}

func (r ItemRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItemRef, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidItemRef)
	}
	return nil
}

func (r ItemRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// PartitionByKind groups the ids of refs by kind, dropping duplicates.
func PartitionByKind(refs []ItemRef) map[ItemKind][]string {
	out := make(map[ItemKind][]string)
	seen := make(map[ItemRef]struct{}, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out[r.Kind] = append(out[r.Kind], r.ID)
	}
	return out
}
