package domain

import "time"

// MaxMergedSessions bounds the merge history kept on an account.
const MaxMergedSessions = 20

// MergeFailure describes a merge that did not complete. It is published so
// the merge can be retried; the anonymous owner stays in place meanwhile.
// The token is a bearer secret and never marshals.
type MergeFailure struct {
	AccountID      string    `json:"account_id"`
	AnonymousToken string    `json:"-"`
	Attempt        int       `json:"attempt"`
	Error          string    `json:"error"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// MergedSession records what one anonymous token has contributed to an
// account: the guest document it came from, the guest version last folded in
// and, per item, the highest guest quantity already counted.
type MergedSession struct {
	Token        string     `bson:"token" json:"-"`
	GuestCreated time.Time  `bson:"guest_created" json:"guest_created"`
	Version      int64      `bson:"version" json:"version"`
	Cart         []CartLine `bson:"cart,omitempty" json:"cart,omitempty"`
}

// unmerged returns the guest lines, reduced by what this session already
// contributed. Lines the guest lowered since then contribute nothing.
func (m MergedSession) unmerged(guest []CartLine) []CartLine {
	done := NewCartSet(m.Cart)
	out := make([]CartLine, 0, len(guest))
	for _, l := range guest {
		if l.Quantity -= done.quantity(l.ItemRef); l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

// absorb marks guest at version as contributed.
func (m *MergedSession) absorb(version int64, guest []CartLine) {
	done := NewCartSet(m.Cart)
	for _, l := range guest {
		if prev, ok := done.Get(l.ItemRef); !ok {
			done.put(l.ItemRef, l.Quantity, l.AddedAt)
		} else if l.Quantity > prev.Quantity {
			done.Set(l.ItemRef, l.Quantity)
		}
	}
	m.Version = version
	m.Cart = done.Lines()
}

// FoldGuest merges an anonymous owner's state into s. Only what the guest
// has not contributed before is added, so folding the same guest version
// twice is a no-op and folding a newer version adds the difference. A guest
// document recreated under the same token counts from zero again. It reports
// false when this guest version was already folded in.
func (s *ShoppingState) FoldGuest(guest *ShoppingState) bool {
	token := guest.OwnerID
	rec := MergedSession{Token: token, GuestCreated: guest.CreatedAt}
	i, seen := -1, false
	for j, m := range s.MergedSessions {
		if m.Token == token {
			i = j
			if m.GuestCreated.Equal(guest.CreatedAt) {
				rec, seen = m, true
			}
			break
		}
	}
	if seen && rec.Version >= guest.Version {
		return false
	}

	s.Cart = MergeCart(s.Cart, rec.unmerged(guest.Cart))
	s.Wishlist = MergeWishlist(s.Wishlist, guest.Wishlist)
	rec.absorb(guest.Version, guest.Cart)

	if i >= 0 {
		s.MergedSessions = append(s.MergedSessions[:i:i], s.MergedSessions[i+1:]...)
	}
	s.MergedSessions = append(s.MergedSessions, rec)
	if n := len(s.MergedSessions); n > MaxMergedSessions {
		s.MergedSessions = s.MergedSessions[n-MaxMergedSessions:]
	}
	return true
}
