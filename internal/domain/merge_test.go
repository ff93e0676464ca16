package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guestState(token string, version int64, cart ...CartLine) *ShoppingState {
	g := NewShoppingState(AnonymousOwner(token), t0)
	g.Version = version
	g.Cart = cart
	return g
}

func hasMerged(s *ShoppingState, token string) bool {
	for _, m := range s.MergedSessions {
		if m.Token == token {
			return true
		}
	}
	return false
}

func TestFoldGuest_SameVersionIsNoop(t *testing.T) {
	acc := NewShoppingState(AccountOwner("42"), t0)
	acc.Cart = []CartLine{{ItemRef: chair, Quantity: 1}}
	guest := guestState("tok", 3, CartLine{ItemRef: chair, Quantity: 2})
	guest.Wishlist = []WishlistLine{{ItemRef: nordic}}

	require.True(t, acc.FoldGuest(guest))
	assert.False(t, acc.FoldGuest(guest))
	assert.False(t, acc.FoldGuest(guestState("tok", 2)), "older versions are already covered")

	require.Len(t, acc.Cart, 1)
	assert.Equal(t, 3, acc.Cart[0].Quantity)
	assert.Equal(t, []ItemRef{nordic}, WishlistRefs(acc.Wishlist))
	require.Len(t, acc.MergedSessions, 1)
	assert.Equal(t, int64(3), acc.MergedSessions[0].Version)
	assert.True(t, hasMerged(acc, "tok"))
}

func TestFoldGuest_NewerVersionAddsOnlyTheDifference(t *testing.T) {
	acc := NewShoppingState(AccountOwner("42"), t0)
	require.True(t, acc.FoldGuest(guestState("tok", 3, CartLine{ItemRef: chair, Quantity: 2})))

	// the guest kept shopping after the first fold
	later := guestState("tok", 5,
		CartLine{ItemRef: chair, Quantity: 3},
		CartLine{ItemRef: table, Quantity: 5})
	require.True(t, acc.FoldGuest(later))

	set := NewCartSet(acc.Cart)
	c, _ := set.Get(chair)
	tb, _ := set.Get(table)
	assert.Equal(t, 3, c.Quantity)
	assert.Equal(t, 5, tb.Quantity)

	// lowering a quantity on the guest cannot be un-merged
	require.True(t, acc.FoldGuest(guestState("tok", 6, CartLine{ItemRef: chair, Quantity: 1})))
	c, _ = NewCartSet(acc.Cart).Get(chair)
	assert.Equal(t, 3, c.Quantity)
	assert.Len(t, acc.MergedSessions, 1)
}

func TestFoldGuest_RecreatedGuestCountsAgain(t *testing.T) {
	acc := NewShoppingState(AccountOwner("42"), t0)
	require.True(t, acc.FoldGuest(guestState("tok", 4, CartLine{ItemRef: chair, Quantity: 1})))

	again := guestState("tok", 1, CartLine{ItemRef: chair, Quantity: 1})
	again.CreatedAt = t0.Add(time.Hour)
	require.True(t, acc.FoldGuest(again))

	c, _ := NewCartSet(acc.Cart).Get(chair)
	assert.Equal(t, 2, c.Quantity)
	require.Len(t, acc.MergedSessions, 1)
	assert.True(t, acc.MergedSessions[0].GuestCreated.Equal(again.CreatedAt))
}

func TestFoldGuest_HistoryBounded(t *testing.T) {
	acc := NewShoppingState(AccountOwner("42"), t0)
	for i := 0; i < MaxMergedSessions+5; i++ {
		acc.FoldGuest(guestState(string(rune('a'+i)), 1))
	}
	assert.Len(t, acc.MergedSessions, MaxMergedSessions)
	assert.False(t, hasMerged(acc, "a"))
	assert.True(t, hasMerged(acc, string(rune('a'+MaxMergedSessions+4))))
}
