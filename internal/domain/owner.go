package domain

import (
	"fmt"
	"strings"
	"time"
)

type OwnerKind string

const (
	OwnerAccount   OwnerKind = "account"
	OwnerAnonymous OwnerKind = "anonymous"
)

// Owner is the unit of ownership for cart and wishlist lines. Stores address
// state through Key() only and never branch on Kind.
type Owner struct {
	Kind OwnerKind
	ID   string
}

func AccountOwner(accountID string) Owner {
	return Owner{Kind: OwnerAccount, ID: accountID}
}

func AnonymousOwner(token string) Owner {
	return Owner{Kind: OwnerAnonymous, ID: token}
}

func (o Owner) Anonymous() bool {
	return o.Kind == OwnerAnonymous
}

func (o Owner) IsZero() bool {
	return o.ID == ""
}

// Key is the document identifier of the owner's shopping state.
func (o Owner) Key() string {
	return string(o.Kind) + ":" + o.ID
}

func (o Owner) String() string {
	if o.Anonymous() && len(o.ID) > 8 {
		// tokens are bearer secrets; logs only get a prefix
		return string(o.Kind) + ":" + o.ID[:8] + "…"
	}
	return o.Key()
}

// ParseOwnerKey reverses Owner.Key.
func ParseOwnerKey(key string) (Owner, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Owner{}, fmt.Errorf("malformed owner key %q", key)
	}
	switch OwnerKind(kind) {
	case OwnerAccount, OwnerAnonymous:
		return Owner{Kind: OwnerKind(kind), ID: id}, nil
	}
	return Owner{}, fmt.Errorf("malformed owner key %q", key)
}

// ShoppingState is the persisted document holding one owner's cart and wishlist.
type ShoppingState struct {
	Key            string          `bson:"_id" json:"key"`
	Kind           OwnerKind       `bson:"kind" json:"kind"`
	OwnerID        string          `bson:"owner_id" json:"owner_id"`
	Cart           []CartLine      `bson:"cart" json:"cart"`
	Wishlist       []WishlistLine  `bson:"wishlist" json:"wishlist"`
	Version        int64           `bson:"version" json:"version"`
	MergedSessions []MergedSession `bson:"merged_sessions,omitempty" json:"merged_sessions,omitempty"`
	ExpiresAt      *time.Time      `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`
}

func NewShoppingState(owner Owner, now time.Time) *ShoppingState {
	return &ShoppingState{
		Key:       owner.Key(),
		Kind:      owner.Kind,
		OwnerID:   owner.ID,
		Cart:      []CartLine{},
		Wishlist:  []WishlistLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *ShoppingState) Owner() Owner {
	return Owner{Kind: s.Kind, ID: s.OwnerID}
}

// Expired reports whether an anonymous state outlived its window. Account
// state never expires.
func (s *ShoppingState) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

func (s *ShoppingState) Empty() bool {
	return len(s.Cart) == 0 && len(s.Wishlist) == 0
}
