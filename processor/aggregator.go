// Package processor turns decoded archive messages into per-minute records.
package processor

import (
	"errors"
	"fmt"
	"time"

	"bookflow/internal/orderbook"
	"bookflow/models"
)

// DefaultDepthLevels is the number of levels per side kept in the depth snapshot.
const DefaultDepthLevels = 20

// minuteAcc holds the samples of one open minute bucket.
type minuteAcc struct {
	spread    series
	mid       series
	imbalance series
	bidVolume series
	askVolume series

	lastBid float64
	lastAsk float64

	messages   int64
	bidChanges int64
	askChanges int64
}

// MinuteAggregator rebuilds the book of one symbol for one day and summarizes
// it per minute. It is not safe for concurrent use.
type MinuteAggregator struct {
	symbol      string
	depthLevels int
	book        *orderbook.Book
	// lastValid is the book right before the latest message that left it
	// unsampleable.
	lastValid *orderbook.Book

	from, to time.Time
	outside  int64

	open   bool
	minute time.Time
	acc    minuteAcc

	hasPrev bool
	prevBid models.Price
	prevAsk models.Price

	crossed int64
	records []models.MinuteRecord
	err     error
}

// undoLevel is the size a delta overwrote.
type undoLevel struct {
	side  models.Side
	price models.Price
	size  float64
}

func NewMinuteAggregator(symbol string, depthLevels int) *MinuteAggregator {
	if depthLevels <= 0 {
		depthLevels = DefaultDepthLevels
	}
	return &MinuteAggregator{
		symbol:      symbol,
		depthLevels: depthLevels,
		book:        orderbook.New(),
	}
}

// Window limits emitted minutes to [from, to). Messages before from still
// update the book so a snapshot cut early seeds it; messages at or after to
// are ignored. Both kinds are counted by OutOfWindow.
func (a *MinuteAggregator) Window(from, to time.Time) {
	a.from, a.to = from, to
}

// Apply applies msg to the book and samples the result. A message whose
// minute is later than the open bucket finalizes that bucket first; an
// earlier timestamp is folded into the open bucket.
func (a *MinuteAggregator) Apply(msg models.BookMessage) {
	if !a.to.IsZero() {
		if !msg.Timestamp.Before(a.to) {
			a.outside++
			return
		}
		if msg.Timestamp.Before(a.from) {
			a.outside++
			a.book.Apply(msg)
			return
		}
	}

	m := models.Minute(msg.Timestamp)
	if !a.open {
		a.openBucket(m)
	} else if m.After(a.minute) {
		a.finalize()
		a.openBucket(m)
	}

	a.applyTracked(msg)
	a.acc.messages++

	if !a.book.Sampleable() {
		if a.book.IsCrossed() {
			a.crossed++
		}
		return
	}
	a.sample()
}

// applyTracked applies msg and, when it turns a sampleable book
// unsampleable, keeps the prior state in lastValid.
func (a *MinuteAggregator) applyTracked(msg models.BookMessage) {
	if !a.book.Sampleable() {
		a.book.Apply(msg)
		return
	}

	var before *orderbook.Book
	var undo []undoLevel
	if msg.Type == models.MessageSnapshot {
		before = a.book.Clone()
	} else {
		undo = make([]undoLevel, 0, len(msg.Bids)+len(msg.Asks))
		for _, l := range msg.Bids {
			undo = append(undo, undoLevel{models.Bid, l.Price, a.book.SizeAt(models.Bid, l.Price)})
		}
		for _, l := range msg.Asks {
			undo = append(undo, undoLevel{models.Ask, l.Price, a.book.SizeAt(models.Ask, l.Price)})
		}
	}

	a.book.Apply(msg)
	if a.book.Sampleable() {
		return
	}
	if before == nil {
		before = a.book.Clone()
		for i := len(undo) - 1; i >= 0; i-- {
			before.ApplyDelta(undo[i].side, undo[i].price, undo[i].size)
		}
	}
	a.lastValid = before
}

func (a *MinuteAggregator) openBucket(m time.Time) {
	a.open = true
	a.minute = m
	a.acc = minuteAcc{}
}

func (a *MinuteAggregator) sample() {
	bid, _ := a.book.BestBid()
	ask, _ := a.book.BestAsk()

	if a.hasPrev {
		if bid.Price != a.prevBid {
			a.acc.bidChanges++
		}
		if ask.Price != a.prevAsk {
			a.acc.askChanges++
		}
	}
	a.hasPrev = true
	a.prevBid, a.prevAsk = bid.Price, ask.Price

	b, k := bid.Price.Float(), ask.Price.Float()
	bidVol := a.book.TotalVolume(models.Bid)
	askVol := a.book.TotalVolume(models.Ask)

	a.acc.lastBid, a.acc.lastAsk = b, k
	a.acc.spread.Add(k - b)
	a.acc.mid.Add((b + k) / 2)
	a.acc.imbalance.Add(imbalance(bidVol, askVol))
	a.acc.bidVolume.Add(bidVol)
	a.acc.askVolume.Add(askVol)
}

// finalize emits the open bucket unless it holds no valid sample.
func (a *MinuteAggregator) finalize() {
	if !a.open {
		return
	}
	a.open = false
	if a.acc.spread.Count() == 0 {
		return
	}
	a.records = append(a.records, a.buildRecord())
}

// buildRecord summarizes the open bucket. Every depth-derived field is read
// from the book as of the bucket's last valid sample, so a minute that ends
// crossed or one-sided still describes one consistent book state.
func (a *MinuteAggregator) buildRecord() models.MinuteRecord {
	acc := &a.acc
	book := a.book
	if !book.Sampleable() && a.lastValid != nil {
		book = a.lastValid
	}
	bids := book.Levels(models.Bid)
	asks := book.Levels(models.Ask)

	bid, ask := acc.lastBid, acc.lastAsk
	mid := (bid + ask) / 2

	bidVol := book.TotalVolume(models.Bid)
	askVol := book.TotalVolume(models.Ask)
	bid01 := book.VolumeWithin(models.Bid, mid, 0.001)
	ask01 := book.VolumeWithin(models.Ask, mid, 0.001)
	bid05 := book.VolumeWithin(models.Bid, mid, 0.005)
	ask05 := book.VolumeWithin(models.Ask, mid, 0.005)
	bid10 := book.VolumeWithin(models.Bid, mid, 0.01)
	ask10 := book.VolumeWithin(models.Ask, mid, 0.01)

	bidWall := wall(bids, mid)
	askWall := wall(asks, mid)

	spread := acc.spread.Last()
	firstMid := acc.mid.First()

	bidDepth, bidErr := depthJSON(book.Top(models.Bid, a.depthLevels))
	askDepth, askErr := depthJSON(book.Top(models.Ask, a.depthLevels))
	if err := errors.Join(bidErr, askErr); err != nil && a.err == nil {
		a.err = fmt.Errorf("minute %s depth snapshot: %w", a.minute.Format(time.RFC3339), err)
	}

	return models.MinuteRecord{
		Timestamp: a.minute,
		Symbol:    a.symbol,

		BestBid:    bid,
		BestAsk:    ask,
		MidPrice:   mid,
		MicroPrice: microprice(bid, ask, bidVol, askVol),
		VWAPBid:    vwap(bids),
		VWAPAsk:    vwap(asks),

		Spread:     spread,
		SpreadMin:  acc.spread.Min(),
		SpreadMax:  acc.spread.Max(),
		SpreadMean: acc.spread.Mean(),
		SpreadStd:  acc.spread.Std(),
		SpreadBps:  ratio(spread, mid) * 10_000,

		BidVolume:     bidVol,
		AskVolume:     askVol,
		BidVolume01:   bid01,
		AskVolume01:   ask01,
		BidVolume05:   bid05,
		AskVolume05:   ask05,
		BidVolume10:   bid10,
		AskVolume10:   ask10,
		BidVolumeMean: acc.bidVolume.Mean(),
		BidVolumeStd:  acc.bidVolume.Std(),
		AskVolumeMean: acc.askVolume.Mean(),
		AskVolumeStd:  acc.askVolume.Std(),

		Imbalance:      imbalance(bidVol, askVol),
		Imbalance01:    imbalance(bid01, ask01),
		ImbalanceMin:   acc.imbalance.Min(),
		ImbalanceMax:   acc.imbalance.Max(),
		ImbalanceMean:  acc.imbalance.Mean(),
		ImbalanceStd:   acc.imbalance.Std(),
		ImbalanceRange: acc.imbalance.Range(),

		BuyPressure: ratio(bid01, ask01),
		DepthRatio:  ratio(bid10, ask10),

		BidWallPrice:    bidWall.price,
		BidWallSize:     bidWall.size,
		BidWallDistance: bidWall.distance,
		AskWallPrice:    askWall.price,
		AskWallSize:     askWall.size,
		AskWallDistance: askWall.distance,

		SlippageBuy10k:   slippage(asks, models.Notional10k),
		SlippageBuy50k:   slippage(asks, models.Notional50k),
		SlippageBuy100k:  slippage(asks, models.Notional100k),
		SlippageSell10k:  slippage(bids, models.Notional10k),
		SlippageSell50k:  slippage(bids, models.Notional50k),
		SlippageSell100k: slippage(bids, models.Notional100k),

		Liquidity:        (bidVol + askVol) / 2,
		BidConcentration: concentration(bids, bidVol),
		AskConcentration: concentration(asks, askVol),

		MidRange: acc.mid.Range(),
		MidStd:   acc.mid.Std(),
		Momentum: ratio(acc.mid.Last()-firstMid, firstMid),

		BidLevels:    int64(len(bids)),
		AskLevels:    int64(len(asks)),
		MessageCount: acc.messages,
		BidChanges:   acc.bidChanges,
		AskChanges:   acc.askChanges,
		SampleCount:  acc.spread.Count(),

		BidDepth: bidDepth,
		AskDepth: askDepth,
	}
}

// Finish finalizes the open bucket and returns every emitted record in
// minute order. The aggregator must not be reused afterwards.
func (a *MinuteAggregator) Finish() []models.MinuteRecord {
	a.finalize()
	return a.records
}

// OutOfWindow is the number of messages outside the Window range.
func (a *MinuteAggregator) OutOfWindow() int64 {
	return a.outside
}

// Err reports the first record that could not be built completely.
func (a *MinuteAggregator) Err() error {
	return a.err
}

// Crossed is the number of messages that left the book crossed.
func (a *MinuteAggregator) Crossed() int64 {
	return a.crossed
}
