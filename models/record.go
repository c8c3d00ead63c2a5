package models

import "time"

// ColumnKind is the storage class of a persisted column.
type ColumnKind int

const (
	KindTimestamp ColumnKind = iota // epoch milliseconds
	KindText
	KindFloat
	KindInt
)

// Column names one persisted field.
type Column struct {
	Name string
	Kind ColumnKind
}

// Slippage ladder in quote-currency notional.
const (
	Notional10k  = 10_000
	Notional50k  = 50_000
	Notional100k = 100_000
)

// MinuteRecord is the per-minute summary of a reconstructed native-venue book.
type MinuteRecord struct {
	Timestamp time.Time
	Symbol    string

	BestBid    float64
	BestAsk    float64
	MidPrice   float64
	MicroPrice float64
	VWAPBid    float64
	VWAPAsk    float64

	Spread     float64
	SpreadMin  float64
	SpreadMax  float64
	SpreadMean float64
	SpreadStd  float64
	SpreadBps  float64

	BidVolume     float64
	AskVolume     float64
	BidVolume01   float64
	AskVolume01   float64
	BidVolume05   float64
	AskVolume05   float64
	BidVolume10   float64
	AskVolume10   float64
	BidVolumeMean float64
	BidVolumeStd  float64
	AskVolumeMean float64
	AskVolumeStd  float64

	Imbalance      float64
	Imbalance01    float64
	ImbalanceMin   float64
	ImbalanceMax   float64
	ImbalanceMean  float64
	ImbalanceStd   float64
	ImbalanceRange float64

	BuyPressure float64
	DepthRatio  float64

	BidWallPrice    float64
	BidWallSize     float64
	BidWallDistance float64
	AskWallPrice    float64
	AskWallSize     float64
	AskWallDistance float64

	SlippageBuy10k   float64
	SlippageBuy50k   float64
	SlippageBuy100k  float64
	SlippageSell10k  float64
	SlippageSell50k  float64
	SlippageSell100k float64

	Liquidity        float64
	BidConcentration float64
	AskConcentration float64

	MidRange float64
	MidStd   float64
	Momentum float64

	BidLevels    int64
	AskLevels    int64
	MessageCount int64
	BidChanges   int64
	AskChanges   int64
	SampleCount  int64

	// Top-N levels per side as a JSON array of [price, size] pairs.
	BidDepth string
	AskDepth string
}

// MinuteColumns lists the persisted columns of MinuteRecord in Values order.
var MinuteColumns = []Column{
	{"minute_ts", KindTimestamp},
	{"symbol", KindText},
	{"best_bid", KindFloat},
	{"best_ask", KindFloat},
	{"mid_price", KindFloat},
	{"micro_price", KindFloat},
	{"vwap_bid", KindFloat},
	{"vwap_ask", KindFloat},
	{"spread", KindFloat},
	{"spread_min", KindFloat},
	{"spread_max", KindFloat},
	{"spread_mean", KindFloat},
	{"spread_std", KindFloat},
	{"spread_bps", KindFloat},
	{"bid_volume", KindFloat},
	{"ask_volume", KindFloat},
	{"bid_volume_01", KindFloat},
	{"ask_volume_01", KindFloat},
	{"bid_volume_05", KindFloat},
	{"ask_volume_05", KindFloat},
	{"bid_volume_10", KindFloat},
	{"ask_volume_10", KindFloat},
	{"bid_volume_mean", KindFloat},
	{"bid_volume_std", KindFloat},
	{"ask_volume_mean", KindFloat},
	{"ask_volume_std", KindFloat},
	{"imbalance", KindFloat},
	{"imbalance_01", KindFloat},
	{"imbalance_min", KindFloat},
	{"imbalance_max", KindFloat},
	{"imbalance_mean", KindFloat},
	{"imbalance_std", KindFloat},
	{"imbalance_range", KindFloat},
	{"buy_pressure", KindFloat},
	{"depth_ratio", KindFloat},
	{"bid_wall_price", KindFloat},
	{"bid_wall_size", KindFloat},
	{"bid_wall_distance", KindFloat},
	{"ask_wall_price", KindFloat},
	{"ask_wall_size", KindFloat},
	{"ask_wall_distance", KindFloat},
	{"slippage_buy_10k", KindFloat},
	{"slippage_buy_50k", KindFloat},
	{"slippage_buy_100k", KindFloat},
	{"slippage_sell_10k", KindFloat},
	{"slippage_sell_50k", KindFloat},
	{"slippage_sell_100k", KindFloat},
	{"liquidity", KindFloat},
	{"bid_concentration", KindFloat},
	{"ask_concentration", KindFloat},
	{"mid_range", KindFloat},
	{"mid_std", KindFloat},
	{"momentum", KindFloat},
	{"bid_levels", KindInt},
	{"ask_levels", KindInt},
	{"message_count", KindInt},
	{"bid_changes", KindInt},
	{"ask_changes", KindInt},
	{"sample_count", KindInt},
	{"bid_depth", KindText},
	{"ask_depth", KindText},
}

// Values returns the record's fields in MinuteColumns order.
func (r *MinuteRecord) Values() []any {
	return []any{
		r.Timestamp.UnixMilli(),
		r.Symbol,
		r.BestBid,
		r.BestAsk,
		r.MidPrice,
		r.MicroPrice,
		r.VWAPBid,
		r.VWAPAsk,
		r.Spread,
		r.SpreadMin,
		r.SpreadMax,
		r.SpreadMean,
		r.SpreadStd,
		r.SpreadBps,
		r.BidVolume,
		r.AskVolume,
		r.BidVolume01,
		r.AskVolume01,
		r.BidVolume05,
		r.AskVolume05,
		r.BidVolume10,
		r.AskVolume10,
		r.BidVolumeMean,
		r.BidVolumeStd,
		r.AskVolumeMean,
		r.AskVolumeStd,
		r.Imbalance,
		r.Imbalance01,
		r.ImbalanceMin,
		r.ImbalanceMax,
		r.ImbalanceMean,
		r.ImbalanceStd,
		r.ImbalanceRange,
		r.BuyPressure,
		r.DepthRatio,
		r.BidWallPrice,
		r.BidWallSize,
		r.BidWallDistance,
		r.AskWallPrice,
		r.AskWallSize,
		r.AskWallDistance,
		r.SlippageBuy10k,
		r.SlippageBuy50k,
		r.SlippageBuy100k,
		r.SlippageSell10k,
		r.SlippageSell50k,
		r.SlippageSell100k,
		r.Liquidity,
		r.BidConcentration,
		r.AskConcentration,
		r.MidRange,
		r.MidStd,
		r.Momentum,
		r.BidLevels,
		r.AskLevels,
		r.MessageCount,
		r.BidChanges,
		r.AskChanges,
		r.SampleCount,
		r.BidDepth,
		r.AskDepth,
	}
}
