package models

import "time"

// DepthBands is the number of whole-percent depth buckets per side.
const DepthBands = 5

// DepthLevel is one row of a bookDepth archive: cumulative depth and notional
// within Percentage of mid. Negative percentages are bid side.
type DepthLevel struct {
	Percentage float64
	Depth      float64
	Notional   float64
}

// DepthSnapshot groups every level published at one timestamp.
type DepthSnapshot struct {
	Timestamp time.Time
	Levels    []DepthLevel
}

// TickerRow is one row of a bookTicker archive.
type TickerRow struct {
	UpdateID        int64
	BestBid         Price
	BestBidQty      float64
	BestAsk         Price
	BestAskQty      float64
	TransactionTime time.Time
	EventTime       time.Time
}

// DepthMinute is derived from the last depth snapshot seen in a minute.
// Index i of the band arrays holds the ±(i+1)% bucket.
type DepthMinute struct {
	Timestamp time.Time
	Symbol    string

	BidDepth    [DepthBands]float64
	AskDepth    [DepthBands]float64
	BidNotional [DepthBands]float64
	AskNotional [DepthBands]float64

	// ±0.2% bucket, only present in later archives.
	BidDepth02    *float64
	AskDepth02    *float64
	BidNotional02 *float64
	AskNotional02 *float64

	Imbalance1  float64
	Imbalance5  float64
	DepthRatio1 float64
	DepthRatio5 float64
	Liquidity1  float64
	Liquidity5  float64

	BidWallBand  int64
	BidWallDepth float64
	AskWallBand  int64
	AskWallDepth float64

	SnapshotCount int64
}

// TickerMinute aggregates best bid/ask ticks for one minute.
type TickerMinute struct {
	Timestamp time.Time
	Symbol    string

	BestBid    float64
	BestAsk    float64
	BestBidQty float64
	BestAskQty float64
	MidPrice   float64
	MicroPrice float64

	Spread     float64
	SpreadMin  float64
	SpreadMax  float64
	SpreadMean float64
	SpreadStd  float64

	ImbalanceMin  float64
	ImbalanceMax  float64
	ImbalanceMean float64

	MidRange float64
	MidStd   float64
	Momentum float64

	TickCount  int64
	BidChanges int64
	AskChanges int64
}

// ArchiveMinuteRecord is the merged per-minute row of the archive venue.
// A nil side leaves that feed's columns NULL.
type ArchiveMinuteRecord struct {
	Timestamp time.Time
	Symbol    string
	Depth     *DepthMinute
	Ticker    *TickerMinute
}

// DepthColumns lists the depth-derived columns in DepthValues order.
var DepthColumns = []Column{
	{"bid_depth_1", KindFloat},
	{"bid_depth_2", KindFloat},
	{"bid_depth_3", KindFloat},
	{"bid_depth_4", KindFloat},
	{"bid_depth_5", KindFloat},
	{"ask_depth_1", KindFloat},
	{"ask_depth_2", KindFloat},
	{"ask_depth_3", KindFloat},
	{"ask_depth_4", KindFloat},
	{"ask_depth_5", KindFloat},
	{"bid_notional_1", KindFloat},
	{"bid_notional_2", KindFloat},
	{"bid_notional_3", KindFloat},
	{"bid_notional_4", KindFloat},
	{"bid_notional_5", KindFloat},
	{"ask_notional_1", KindFloat},
	{"ask_notional_2", KindFloat},
	{"ask_notional_3", KindFloat},
	{"ask_notional_4", KindFloat},
	{"ask_notional_5", KindFloat},
	{"bid_depth_02", KindFloat},
	{"ask_depth_02", KindFloat},
	{"bid_notional_02", KindFloat},
	{"ask_notional_02", KindFloat},
	{"depth_imbalance_1", KindFloat},
	{"depth_imbalance_5", KindFloat},
	{"depth_ratio_1", KindFloat},
	{"depth_ratio_5", KindFloat},
	{"liquidity_1", KindFloat},
	{"liquidity_5", KindFloat},
	{"bid_wall_band", KindInt},
	{"bid_wall_depth", KindFloat},
	{"ask_wall_band", KindInt},
	{"ask_wall_depth", KindFloat},
	{"snapshot_count", KindInt},
}

// TickerColumns lists the ticker-derived columns in TickerValues order.
var TickerColumns = []Column{
	{"best_bid", KindFloat},
	{"best_ask", KindFloat},
	{"best_bid_qty", KindFloat},
	{"best_ask_qty", KindFloat},
	{"mid_price", KindFloat},
	{"micro_price", KindFloat},
	{"spread", KindFloat},
	{"spread_min", KindFloat},
	{"spread_max", KindFloat},
	{"spread_mean", KindFloat},
	{"spread_std", KindFloat},
	{"tick_imbalance_min", KindFloat},
	{"tick_imbalance_max", KindFloat},
	{"tick_imbalance_mean", KindFloat},
	{"mid_range", KindFloat},
	{"mid_std", KindFloat},
	{"momentum", KindFloat},
	{"tick_count", KindInt},
	{"bid_changes", KindInt},
	{"ask_changes", KindInt},
}

// ArchiveColumns is the full column list of ArchiveMinuteRecord.
var ArchiveColumns = append(append([]Column{
	{"minute_ts", KindTimestamp},
	{"symbol", KindText},
}, DepthColumns...), TickerColumns...)

// DepthValues returns the depth columns; a nil receiver yields NULLs.
func (d *DepthMinute) DepthValues() []any {
	if d == nil {
		return make([]any, len(DepthColumns))
	}
	out := make([]any, 0, len(DepthColumns))
	for _, band := range [][DepthBands]float64{d.BidDepth, d.AskDepth, d.BidNotional, d.AskNotional} {
		for _, v := range band {
			out = append(out, v)
		}
	}
	return append(out,
		nullable(d.BidDepth02),
		nullable(d.AskDepth02),
		nullable(d.BidNotional02),
		nullable(d.AskNotional02),
		d.Imbalance1,
		d.Imbalance5,
		d.DepthRatio1,
		d.DepthRatio5,
		d.Liquidity1,
		d.Liquidity5,
		d.BidWallBand,
		d.BidWallDepth,
		d.AskWallBand,
		d.AskWallDepth,
		d.SnapshotCount,
	)
}

// TickerValues returns the ticker columns; a nil receiver yields NULLs.
func (t *TickerMinute) TickerValues() []any {
	if t == nil {
		return make([]any, len(TickerColumns))
	}
	return []any{
		t.BestBid,
		t.BestAsk,
		t.BestBidQty,
		t.BestAskQty,
		t.MidPrice,
		t.MicroPrice,
		t.Spread,
		t.SpreadMin,
		t.SpreadMax,
		t.SpreadMean,
		t.SpreadStd,
		t.ImbalanceMin,
		t.ImbalanceMax,
		t.ImbalanceMean,
		t.MidRange,
		t.MidStd,
		t.Momentum,
		t.TickCount,
		t.BidChanges,
		t.AskChanges,
	}
}

// Values returns the record's fields in ArchiveColumns order.
func (r *ArchiveMinuteRecord) Values() []any {
	out := make([]any, 0, len(ArchiveColumns))
	out = append(out, r.Timestamp.UnixMilli(), r.Symbol)
	out = append(out, r.Depth.DepthValues()...)
	return append(out, r.Ticker.TickerValues()...)
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
