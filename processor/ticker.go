package processor

import (
	"sort"
	"time"

	"bookflow/models"
)

type tickerAcc struct {
	minute time.Time

	spread    series
	mid       series
	imbalance series

	last models.TickerRow

	ticks      int64
	bidChanges int64
	askChanges int64
}

// TickerAggregator buckets bookTicker rows by the minute of their transaction
// time. Change counters compare each valid tick with the previous valid tick
// of the same file; the first one is never a change.
type TickerAggregator struct {
	symbol string

	buckets map[int64]*tickerAcc
	only    map[int64]struct{}

	hasPrev bool
	prevBid models.Price
	prevAsk models.Price

	invalid int64
}

func NewTickerAggregator(symbol string) *TickerAggregator {
	return &TickerAggregator{
		symbol:  symbol,
		buckets: make(map[int64]*tickerAcc),
	}
}

// Filter restricts Finish to the given minutes. Ticks outside the set are
// still used for change detection so counters match a full pass.
func (a *TickerAggregator) Filter(minutes []time.Time) {
	a.only = make(map[int64]struct{}, len(minutes))
	for _, m := range minutes {
		a.only[models.Minute(m).UnixMilli()] = struct{}{}
	}
}

// Add folds one tick into its minute bucket. One-sided or crossed ticks are
// counted but not sampled.
func (a *TickerAggregator) Add(row models.TickerRow) {
	m := models.Minute(row.TransactionTime)
	key := m.UnixMilli()

	valid := row.BestBid > 0 && row.BestAsk > 0 && row.BestBid < row.BestAsk
	if !valid {
		a.invalid++
	}

	changedBid, changedAsk := false, false
	if valid {
		if a.hasPrev {
			changedBid = row.BestBid != a.prevBid
			changedAsk = row.BestAsk != a.prevAsk
		}
		a.hasPrev = true
		a.prevBid, a.prevAsk = row.BestBid, row.BestAsk
	}

	if a.only != nil {
		if _, ok := a.only[key]; !ok {
			return
		}
	}

	acc, ok := a.buckets[key]
	if !ok {
		acc = &tickerAcc{minute: m}
		a.buckets[key] = acc
	}
	acc.ticks++
	if !valid {
		return
	}
	if changedBid {
		acc.bidChanges++
	}
	if changedAsk {
		acc.askChanges++
	}

	bid, ask := row.BestBid.Float(), row.BestAsk.Float()
	acc.last = row
	acc.spread.Add(ask - bid)
	acc.mid.Add((bid + ask) / 2)
	acc.imbalance.Add(imbalance(row.BestBidQty, row.BestAskQty))
}

// Invalid is the number of one-sided or crossed ticks seen.
func (a *TickerAggregator) Invalid() int64 {
	return a.invalid
}

// Finish returns one row per minute with at least one valid tick, in minute order.
func (a *TickerAggregator) Finish() []models.TickerMinute {
	keys := make([]int64, 0, len(a.buckets))
	for k, acc := range a.buckets {
		if acc.spread.Count() > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]models.TickerMinute, 0, len(keys))
	for _, k := range keys {
		acc := a.buckets[k]
		bid, ask := acc.last.BestBid.Float(), acc.last.BestAsk.Float()
		firstMid := acc.mid.First()
		out = append(out, models.TickerMinute{
			Timestamp: acc.minute,
			Symbol:    a.symbol,

			BestBid:    bid,
			BestAsk:    ask,
			BestBidQty: acc.last.BestBidQty,
			BestAskQty: acc.last.BestAskQty,
			MidPrice:   (bid + ask) / 2,
			MicroPrice: microprice(bid, ask, acc.last.BestBidQty, acc.last.BestAskQty),

			Spread:     acc.spread.Last(),
			SpreadMin:  acc.spread.Min(),
			SpreadMax:  acc.spread.Max(),
			SpreadMean: acc.spread.Mean(),
			SpreadStd:  acc.spread.Std(),

			ImbalanceMin:  acc.imbalance.Min(),
			ImbalanceMax:  acc.imbalance.Max(),
			ImbalanceMean: acc.imbalance.Mean(),

			MidRange: acc.mid.Range(),
			MidStd:   acc.mid.Std(),
			Momentum: ratio(acc.mid.Last()-firstMid, firstMid),

			TickCount:  acc.ticks,
			BidChanges: acc.bidChanges,
			AskChanges: acc.askChanges,
		})
	}
	return out
}
