// Package orderbook holds the in-memory depth state reconstructed from
// snapshot and delta messages.
package orderbook

import (
	"math"
	"sort"

	"bookflow/models"
)

// Book is a two-sided price level set for one symbol. Bids are kept in
// descending price order and asks in ascending order, so index 0 is always
// the best level. A Book is not safe for concurrent use.
type Book struct {
	bids []models.Level
	asks []models.Level
}

func New() *Book {
	return &Book{}
}

// Reset discards every level.
func (b *Book) Reset() {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
}

// Apply routes a decoded message to ApplySnapshot or ApplyDelta.
func (b *Book) Apply(msg models.BookMessage) {
	if msg.Type == models.MessageSnapshot {
		b.ApplySnapshot(msg.Bids, msg.Asks)
		return
	}
	for _, l := range msg.Bids {
		b.ApplyDelta(models.Bid, l.Price, l.Size)
	}
	for _, l := range msg.Asks {
		b.ApplyDelta(models.Ask, l.Price, l.Size)
	}
}

// ApplySnapshot replaces both sides. Levels with a non-positive size are
// dropped; when a price repeats the last occurrence wins.
func (b *Book) ApplySnapshot(bids, asks []models.Level) {
	b.Reset()
	for _, l := range bids {
		b.ApplyDelta(models.Bid, l.Price, l.Size)
	}
	for _, l := range asks {
		b.ApplyDelta(models.Ask, l.Price, l.Size)
	}
}

// ApplyDelta sets the level at price to size, removing it when size <= 0.
// Removing an unknown price is a no-op.
func (b *Book) ApplyDelta(side models.Side, price models.Price, size float64) {
	levels := b.side(side)
	i, found := search(*levels, side, price)
	switch {
	case size <= 0:
		if found {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
		}
	case found:
		(*levels)[i].Size = size
	default:
		*levels = append(*levels, models.Level{})
		copy((*levels)[i+1:], (*levels)[i:])
		(*levels)[i] = models.Level{Price: price, Size: size}
	}
}

// SizeAt returns the size resting at price, 0 when there is no level.
func (b *Book) SizeAt(side models.Side, price models.Price) float64 {
	levels := *b.side(side)
	if i, found := search(levels, side, price); found {
		return levels[i].Size
	}
	return 0
}

// Clone returns an independent copy of the book.
func (b *Book) Clone() *Book {
	return &Book{
		bids: append([]models.Level(nil), b.bids...),
		asks: append([]models.Level(nil), b.asks...),
	}
}

// BestBid returns the highest bid, or false when the bid side is empty.
func (b *Book) BestBid() (models.Level, bool) {
	if len(b.bids) == 0 {
		return models.Level{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the lowest ask, or false when the ask side is empty.
func (b *Book) BestAsk() (models.Level, bool) {
	if len(b.asks) == 0 {
		return models.Level{}, false
	}
	return b.asks[0], true
}

// IsCrossed reports whether both sides are present and bestBid >= bestAsk.
func (b *Book) IsCrossed() bool {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return false
	}
	return b.bids[0].Price >= b.asks[0].Price
}

// Sampleable reports whether the book is two-sided and not crossed.
func (b *Book) Sampleable() bool {
	return len(b.bids) > 0 && len(b.asks) > 0 && !b.IsCrossed()
}

// Levels returns the side ordered best first. The slice aliases the book and
// must not be modified or retained across updates.
func (b *Book) Levels(side models.Side) []models.Level {
	return *b.side(side)
}

// Depth returns the number of levels on a side.
func (b *Book) Depth(side models.Side) int {
	return len(*b.side(side))
}

// TotalVolume sums the sizes of every level on a side.
func (b *Book) TotalVolume(side models.Side) float64 {
	var total float64
	for _, l := range *b.side(side) {
		total += l.Size
	}
	return total
}

// IsEmpty reports whether both sides are empty.
func (b *Book) IsEmpty() bool {
	return len(b.bids) == 0 && len(b.asks) == 0
}

// VolumeWithin sums the sizes of levels whose price lies within pct of mid,
// i.e. |price-mid| <= mid*pct.
func (b *Book) VolumeWithin(side models.Side, mid, pct float64) float64 {
	limit := mid * pct
	var total float64
	for _, l := range *b.side(side) {
		if math.Abs(l.Price.Float()-mid) <= limit {
			total += l.Size
		}
	}
	return total
}

// Top copies at most n levels nearest the best price.
func (b *Book) Top(side models.Side, n int) []models.Level {
	levels := *b.side(side)
	if n > len(levels) {
		n = len(levels)
	}
	out := make([]models.Level, n)
	copy(out, levels[:n])
	return out
}

func (b *Book) side(side models.Side) *[]models.Level {
	if side == models.Bid {
		return &b.bids
	}
	return &b.asks
}

// search returns the insertion index of price within a side and whether the
// level already exists.
func search(levels []models.Level, side models.Side, price models.Price) (int, bool) {
	var i int
	if side == models.Bid {
		i = sort.Search(len(levels), func(k int) bool { return levels[k].Price <= price })
	} else {
		i = sort.Search(len(levels), func(k int) bool { return levels[k].Price >= price })
	}
	return i, i < len(levels) && levels[i].Price == price
}
