package processor

import (
	"math"
	"time"

	"bookflow/models"
)

// DepthAggregator keeps the last bookDepth snapshot of each minute and
// derives the depth columns from it.
type DepthAggregator struct {
	symbol string

	open   bool
	minute time.Time
	last   models.DepthSnapshot
	count  int64

	out []models.DepthMinute
}

func NewDepthAggregator(symbol string) *DepthAggregator {
	return &DepthAggregator{symbol: symbol}
}

// Add records snap. A snapshot from a later minute closes the open one.
func (a *DepthAggregator) Add(snap models.DepthSnapshot) {
	m := models.Minute(snap.Timestamp)
	if a.open && m.After(a.minute) {
		a.flush()
	}
	if !a.open {
		a.open = true
		a.minute = m
		a.count = 0
	}
	a.last = snap
	a.count++
}

func (a *DepthAggregator) flush() {
	if !a.open {
		return
	}
	a.open = false
	a.out = append(a.out, a.derive())
}

// Finish closes the open minute and returns the rows in minute order.
func (a *DepthAggregator) Finish() []models.DepthMinute {
	a.flush()
	return a.out
}

func (a *DepthAggregator) derive() models.DepthMinute {
	d := models.DepthMinute{
		Timestamp:     a.minute,
		Symbol:        a.symbol,
		SnapshotCount: a.count,
	}

	for _, l := range a.last.Levels {
		bid := l.Percentage < 0
		// percentages are published as ±0.20, ±1.00 ... ±5.00
		tenths := int(math.Round(math.Abs(l.Percentage) * 10))
		switch {
		case tenths == 2:
			depth, notional := l.Depth, l.Notional
			if bid {
				d.BidDepth02, d.BidNotional02 = &depth, &notional
			} else {
				d.AskDepth02, d.AskNotional02 = &depth, &notional
			}
		case tenths%10 == 0 && tenths >= 10 && tenths <= models.DepthBands*10:
			i := tenths/10 - 1
			if bid {
				d.BidDepth[i], d.BidNotional[i] = l.Depth, l.Notional
			} else {
				d.AskDepth[i], d.AskNotional[i] = l.Depth, l.Notional
			}
		}
	}

	last := models.DepthBands - 1
	d.Imbalance1 = imbalance(d.BidDepth[0], d.AskDepth[0])
	d.Imbalance5 = imbalance(d.BidDepth[last], d.AskDepth[last])
	d.DepthRatio1 = ratio(d.BidDepth[0], d.AskDepth[0])
	d.DepthRatio5 = ratio(d.BidDepth[last], d.AskDepth[last])
	d.Liquidity1 = (d.BidNotional[0] + d.AskNotional[0]) / 2
	d.Liquidity5 = (d.BidNotional[last] + d.AskNotional[last]) / 2

	d.BidWallBand, d.BidWallDepth = bandWall(d.BidDepth)
	d.AskWallBand, d.AskWallDepth = bandWall(d.AskDepth)
	return d
}

// bandWall returns the 1-based band holding the largest incremental depth
// over the cumulative series, nearest band first on ties. An empty side
// yields band 0.
func bandWall(cum [models.DepthBands]float64) (int64, float64) {
	var band int64
	var best, prev float64
	for i, v := range cum {
		inc := v - prev
		prev = v
		if inc > best {
			band, best = int64(i+1), inc
		}
	}
	return band, best
}
