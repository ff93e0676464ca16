package domain

import (
	"strconv"
	"time"
)

// MaxLineQuantity caps the units of one item a single cart line may hold.
const MaxLineQuantity = 99

// CartLine is one cart entry; Quantity is in [1, MaxLineQuantity] once stored.
type CartLine struct {
	ItemRef  `bson:",inline"`
	Quantity int       `bson:"quantity" json:"quantity"`
	AddedAt  time.Time `bson:"added_at" json:"added_at"`
}

func (l CartLine) String() string {
	return l.ItemRef.String() + " x" + strconv.Itoa(l.Quantity)
}

type WishlistLine struct {
	ItemRef `bson:",inline"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// CartSet indexes cart lines by ItemRef while keeping first-insertion order,
// so aggregation is a single lookup.
type CartSet struct {
	order []ItemRef
	lines map[ItemRef]CartLine
}

func NewCartSet(lines []CartLine) *CartSet {
	s := &CartSet{lines: make(map[ItemRef]CartLine, len(lines))}
	for _, l := range lines {
		s.put(l.ItemRef, l.Quantity, l.AddedAt)
	}
	return s
}

// Add increments an existing line or appends a new one. It returns
// ErrQuantityLimit, leaving the set unchanged, when the line would go past
// MaxLineQuantity.
func (s *CartSet) Add(ref ItemRef, qty int, now time.Time) error {
	if qty <= 0 {
		return nil
	}
	if qty > MaxLineQuantity-s.quantity(ref) {
		return ErrQuantityLimit
	}
	s.put(ref, qty, now)
	return nil
}

// AddCapped is Add saturating at MaxLineQuantity instead of failing.
func (s *CartSet) AddCapped(ref ItemRef, qty int, now time.Time) {
	if room := MaxLineQuantity - s.quantity(ref); qty > room {
		qty = room
	}
	if qty > 0 {
		s.put(ref, qty, now)
	}
}

func (s *CartSet) quantity(ref ItemRef) int {
	return s.lines[ref].Quantity
}

// put adds without the quantity cap; stored lines are loaded as they are.
func (s *CartSet) put(ref ItemRef, qty int, now time.Time) {
	if l, ok := s.lines[ref]; ok {
		l.Quantity += qty
		s.lines[ref] = l
		return
	}
	s.order = append(s.order, ref)
	s.lines[ref] = CartLine{ItemRef: ref, Quantity: qty, AddedAt: now}
}

// Set overwrites the quantity of an existing line. Zero removes it.
func (s *CartSet) Set(ref ItemRef, qty int) bool {
	l, ok := s.lines[ref]
	if !ok {
		return false
	}
	if qty == 0 {
		return s.Remove(ref)
	}
	l.Quantity = qty
	s.lines[ref] = l
	return true
}

func (s *CartSet) Remove(ref ItemRef) bool {
	if _, ok := s.lines[ref]; !ok {
		return false
	}
	delete(s.lines, ref)
	for i, r := range s.order {
		if r == ref {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *CartSet) Get(ref ItemRef) (CartLine, bool) {
	l, ok := s.lines[ref]
	return l, ok
}

func (s *CartSet) Len() int {
	return len(s.order)
}

func (s *CartSet) Lines() []CartLine {
	out := make([]CartLine, 0, len(s.order))
	for _, r := range s.order {
		out = append(out, s.lines[r])
	}
	return out
}

type WishlistSet struct {
	order []ItemRef
	lines map[ItemRef]WishlistLine
}

func NewWishlistSet(lines []WishlistLine) *WishlistSet {
	s := &WishlistSet{lines: make(map[ItemRef]WishlistLine, len(lines))}
	for _, l := range lines {
		s.Add(l.ItemRef, l.AddedAt)
	}
	return s
}

// Add reports false when ref was already present.
func (s *WishlistSet) Add(ref ItemRef, now time.Time) bool {
	if _, ok := s.lines[ref]; ok {
		return false
	}
	s.order = append(s.order, ref)
	s.lines[ref] = WishlistLine{ItemRef: ref, AddedAt: now}
	return true
}

func (s *WishlistSet) Remove(ref ItemRef) bool {
	if _, ok := s.lines[ref]; !ok {
		return false
	}
	delete(s.lines, ref)
	for i, r := range s.order {
		if r == ref {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *WishlistSet) Has(ref ItemRef) bool {
	_, ok := s.lines[ref]
	return ok
}

func (s *WishlistSet) Len() int {
	return len(s.order)
}

func (s *WishlistSet) Lines() []WishlistLine {
	out := make([]WishlistLine, 0, len(s.order))
	for _, r := range s.order {
		out = append(out, s.lines[r])
	}
	return out
}

// MergeCart folds guest lines into target: matching refs add quantities,
// the rest are appended unchanged. Sums saturate at MaxLineQuantity.
func MergeCart(target, guest []CartLine) []CartLine {
	set := NewCartSet(target)
	for _, l := range guest {
		set.AddCapped(l.ItemRef, l.Quantity, l.AddedAt)
	}
	return set.Lines()
}

// MergeWishlist is the set union of target and guest.
func MergeWishlist(target, guest []WishlistLine) []WishlistLine {
	set := NewWishlistSet(target)
	for _, l := range guest {
		set.Add(l.ItemRef, l.AddedAt)
	}
	return set.Lines()
}

// SplitCart separates lines whose ref is in keep from the stale remainder.
func SplitCart(lines []CartLine, keep map[ItemRef]struct{}) (kept []CartLine, stale []ItemRef) {
	kept = make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if _, ok := keep[l.ItemRef]; ok {
			kept = append(kept, l)
			continue
		}
		stale = append(stale, l.ItemRef)
	}
	return kept, stale
}

func SplitWishlist(lines []WishlistLine, keep map[ItemRef]struct{}) (kept []WishlistLine, stale []ItemRef) {
	kept = make([]WishlistLine, 0, len(lines))
	for _, l := range lines {
		if _, ok := keep[l.ItemRef]; ok {
			kept = append(kept, l)
			continue
		}
		stale = append(stale, l.ItemRef)
	}
	return kept, stale
}

func CartRefs(lines []CartLine) []ItemRef {
	refs := make([]ItemRef, len(lines))
	for i, l := range lines {
		refs[i] = l.ItemRef
	}
	return refs
}

func WishlistRefs(lines []WishlistLine) []ItemRef {
	refs := make([]ItemRef, len(lines))
	for i, l := range lines {
		refs[i] = l.ItemRef
	}
	return refs
}

func TotalQuantity(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
