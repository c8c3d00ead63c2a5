package writer

import "bookflow/models"

// nativeParquetRecord mirrors models.MinuteColumns.
type nativeParquetRecord struct {
	MinuteTs         int64   `parquet:"name=minute_ts, type=INT64"`
	Symbol           string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	BestBid          float64 `parquet:"name=best_bid, type=DOUBLE"`
	BestAsk          float64 `parquet:"name=best_ask, type=DOUBLE"`
	MidPrice         float64 `parquet:"name=mid_price, type=DOUBLE"`
	MicroPrice       float64 `parquet:"name=micro_price, type=DOUBLE"`
	VWAPBid          float64 `parquet:"name=vwap_bid, type=DOUBLE"`
	VWAPAsk          float64 `parquet:"name=vwap_ask, type=DOUBLE"`
	Spread           float64 `parquet:"name=spread, type=DOUBLE"`
	SpreadMin        float64 `parquet:"name=spread_min, type=DOUBLE"`
	SpreadMax        float64 `parquet:"name=spread_max, type=DOUBLE"`
	SpreadMean       float64 `parquet:"name=spread_mean, type=DOUBLE"`
	SpreadStd        float64 `parquet:"name=spread_std, type=DOUBLE"`
	SpreadBps        float64 `parquet:"name=spread_bps, type=DOUBLE"`
	BidVolume        float64 `parquet:"name=bid_volume, type=DOUBLE"`
	AskVolume        float64 `parquet:"name=ask_volume, type=DOUBLE"`
	BidVolume01      float64 `parquet:"name=bid_volume_01, type=DOUBLE"`
	AskVolume01      float64 `parquet:"name=ask_volume_01, type=DOUBLE"`
	BidVolume05      float64 `parquet:"name=bid_volume_05, type=DOUBLE"`
	AskVolume05      float64 `parquet:"name=ask_volume_05, type=DOUBLE"`
	BidVolume10      float64 `parquet:"name=bid_volume_10, type=DOUBLE"`
	AskVolume10      float64 `parquet:"name=ask_volume_10, type=DOUBLE"`
	BidVolumeMean    float64 `parquet:"name=bid_volume_mean, type=DOUBLE"`
	BidVolumeStd     float64 `parquet:"name=bid_volume_std, type=DOUBLE"`
	AskVolumeMean    float64 `parquet:"name=ask_volume_mean, type=DOUBLE"`
	AskVolumeStd     float64 `parquet:"name=ask_volume_std, type=DOUBLE"`
	Imbalance        float64 `parquet:"name=imbalance, type=DOUBLE"`
	Imbalance01      float64 `parquet:"name=imbalance_01, type=DOUBLE"`
	ImbalanceMin     float64 `parquet:"name=imbalance_min, type=DOUBLE"`
	ImbalanceMax     float64 `parquet:"name=imbalance_max, type=DOUBLE"`
	ImbalanceMean    float64 `parquet:"name=imbalance_mean, type=DOUBLE"`
	ImbalanceStd     float64 `parquet:"name=imbalance_std, type=DOUBLE"`
	ImbalanceRange   float64 `parquet:"name=imbalance_range, type=DOUBLE"`
	BuyPressure      float64 `parquet:"name=buy_pressure, type=DOUBLE"`
	DepthRatio       float64 `parquet:"name=depth_ratio, type=DOUBLE"`
	BidWallPrice     float64 `parquet:"name=bid_wall_price, type=DOUBLE"`
	BidWallSize      float64 `parquet:"name=bid_wall_size, type=DOUBLE"`
	BidWallDistance  float64 `parquet:"name=bid_wall_distance, type=DOUBLE"`
	AskWallPrice     float64 `parquet:"name=ask_wall_price, type=DOUBLE"`
	AskWallSize      float64 `parquet:"name=ask_wall_size, type=DOUBLE"`
	AskWallDistance  float64 `parquet:"name=ask_wall_distance, type=DOUBLE"`
	SlippageBuy10k   float64 `parquet:"name=slippage_buy_10k, type=DOUBLE"`
	SlippageBuy50k   float64 `parquet:"name=slippage_buy_50k, type=DOUBLE"`
	SlippageBuy100k  float64 `parquet:"name=slippage_buy_100k, type=DOUBLE"`
	SlippageSell10k  float64 `parquet:"name=slippage_sell_10k, type=DOUBLE"`
	SlippageSell50k  float64 `parquet:"name=slippage_sell_50k, type=DOUBLE"`
	SlippageSell100k float64 `parquet:"name=slippage_sell_100k, type=DOUBLE"`
	Liquidity        float64 `parquet:"name=liquidity, type=DOUBLE"`
	BidConcentration float64 `parquet:"name=bid_concentration, type=DOUBLE"`
	AskConcentration float64 `parquet:"name=ask_concentration, type=DOUBLE"`
	MidRange         float64 `parquet:"name=mid_range, type=DOUBLE"`
	MidStd           float64 `parquet:"name=mid_std, type=DOUBLE"`
	Momentum         float64 `parquet:"name=momentum, type=DOUBLE"`
	BidLevels        int64   `parquet:"name=bid_levels, type=INT64"`
	AskLevels        int64   `parquet:"name=ask_levels, type=INT64"`
	MessageCount     int64   `parquet:"name=message_count, type=INT64"`
	BidChanges       int64   `parquet:"name=bid_changes, type=INT64"`
	AskChanges       int64   `parquet:"name=ask_changes, type=INT64"`
	SampleCount      int64   `parquet:"name=sample_count, type=INT64"`
	BidDepth         string  `parquet:"name=bid_depth, type=BYTE_ARRAY, convertedtype=UTF8"`
	AskDepth         string  `parquet:"name=ask_depth, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toNativeParquet(r *models.MinuteRecord) nativeParquetRecord {
	return nativeParquetRecord{
		MinuteTs:         r.Timestamp.UnixMilli(),
		Symbol:           r.Symbol,
		BestBid:          r.BestBid,
		BestAsk:          r.BestAsk,
		MidPrice:         r.MidPrice,
		MicroPrice:       r.MicroPrice,
		VWAPBid:          r.VWAPBid,
		VWAPAsk:          r.VWAPAsk,
		Spread:           r.Spread,
		SpreadMin:        r.SpreadMin,
		SpreadMax:        r.SpreadMax,
		SpreadMean:       r.SpreadMean,
		SpreadStd:        r.SpreadStd,
		SpreadBps:        r.SpreadBps,
		BidVolume:        r.BidVolume,
		AskVolume:        r.AskVolume,
		BidVolume01:      r.BidVolume01,
		AskVolume01:      r.AskVolume01,
		BidVolume05:      r.BidVolume05,
		AskVolume05:      r.AskVolume05,
		BidVolume10:      r.BidVolume10,
		AskVolume10:      r.AskVolume10,
		BidVolumeMean:    r.BidVolumeMean,
		BidVolumeStd:     r.BidVolumeStd,
		AskVolumeMean:    r.AskVolumeMean,
		AskVolumeStd:     r.AskVolumeStd,
		Imbalance:        r.Imbalance,
		Imbalance01:      r.Imbalance01,
		ImbalanceMin:     r.ImbalanceMin,
		ImbalanceMax:     r.ImbalanceMax,
		ImbalanceMean:    r.ImbalanceMean,
		ImbalanceStd:     r.ImbalanceStd,
		ImbalanceRange:   r.ImbalanceRange,
		BuyPressure:      r.BuyPressure,
		DepthRatio:       r.DepthRatio,
		BidWallPrice:     r.BidWallPrice,
		BidWallSize:      r.BidWallSize,
		BidWallDistance:  r.BidWallDistance,
		AskWallPrice:     r.AskWallPrice,
		AskWallSize:      r.AskWallSize,
		AskWallDistance:  r.AskWallDistance,
		SlippageBuy10k:   r.SlippageBuy10k,
		SlippageBuy50k:   r.SlippageBuy50k,
		SlippageBuy100k:  r.SlippageBuy100k,
		SlippageSell10k:  r.SlippageSell10k,
		SlippageSell50k:  r.SlippageSell50k,
		SlippageSell100k: r.SlippageSell100k,
		Liquidity:        r.Liquidity,
		BidConcentration: r.BidConcentration,
		AskConcentration: r.AskConcentration,
		MidRange:         r.MidRange,
		MidStd:           r.MidStd,
		Momentum:         r.Momentum,
		BidLevels:        r.BidLevels,
		AskLevels:        r.AskLevels,
		MessageCount:     r.MessageCount,
		BidChanges:       r.BidChanges,
		AskChanges:       r.AskChanges,
		SampleCount:      r.SampleCount,
		BidDepth:         r.BidDepth,
		AskDepth:         r.AskDepth,
	}
}

// archiveParquetRecord mirrors models.ArchiveColumns. Feed columns are
// optional so a missing side is written as NULL.
type archiveParquetRecord struct {
	MinuteTs          int64    `parquet:"name=minute_ts, type=INT64"`
	Symbol            string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	BidDepth1         *float64 `parquet:"name=bid_depth_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidDepth2         *float64 `parquet:"name=bid_depth_2, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidDepth3         *float64 `parquet:"name=bid_depth_3, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidDepth4         *float64 `parquet:"name=bid_depth_4, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidDepth5         *float64 `parquet:"name=bid_depth_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth1         *float64 `parquet:"name=ask_depth_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth2         *float64 `parquet:"name=ask_depth_2, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth3         *float64 `parquet:"name=ask_depth_3, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth4         *float64 `parquet:"name=ask_depth_4, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth5         *float64 `parquet:"name=ask_depth_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional1      *float64 `parquet:"name=bid_notional_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional2      *float64 `parquet:"name=bid_notional_2, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional3      *float64 `parquet:"name=bid_notional_3, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional4      *float64 `parquet:"name=bid_notional_4, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional5      *float64 `parquet:"name=bid_notional_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional1      *float64 `parquet:"name=ask_notional_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional2      *float64 `parquet:"name=ask_notional_2, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional3      *float64 `parquet:"name=ask_notional_3, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional4      *float64 `parquet:"name=ask_notional_4, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional5      *float64 `parquet:"name=ask_notional_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidDepth02        *float64 `parquet:"name=bid_depth_02, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskDepth02        *float64 `parquet:"name=ask_depth_02, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidNotional02     *float64 `parquet:"name=bid_notional_02, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskNotional02     *float64 `parquet:"name=ask_notional_02, type=DOUBLE, repetitiontype=OPTIONAL"`
	DepthImbalance1   *float64 `parquet:"name=depth_imbalance_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	DepthImbalance5   *float64 `parquet:"name=depth_imbalance_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	DepthRatio1       *float64 `parquet:"name=depth_ratio_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	DepthRatio5       *float64 `parquet:"name=depth_ratio_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	Liquidity1        *float64 `parquet:"name=liquidity_1, type=DOUBLE, repetitiontype=OPTIONAL"`
	Liquidity5        *float64 `parquet:"name=liquidity_5, type=DOUBLE, repetitiontype=OPTIONAL"`
	BidWallBand       *int64   `parquet:"name=bid_wall_band, type=INT64, repetitiontype=OPTIONAL"`
	BidWallDepth      *float64 `parquet:"name=bid_wall_depth, type=DOUBLE, repetitiontype=OPTIONAL"`
	AskWallBand       *int64   `parquet:"name=ask_wall_band, type=INT64, repetitiontype=OPTIONAL"`
	AskWallDepth      *float64 `parquet:"name=ask_wall_depth, type=DOUBLE, repetitiontype=OPTIONAL"`
	SnapshotCount     *int64   `parquet:"name=snapshot_count, type=INT64, repetitiontype=OPTIONAL"`
	BestBid           *float64 `parquet:"name=best_bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAsk           *float64 `parquet:"name=best_ask, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestBidQty        *float64 `parquet:"name=best_bid_qty, type=DOUBLE, repetitiontype=OPTIONAL"`
	BestAskQty        *float64 `parquet:"name=best_ask_qty, type=DOUBLE, repetitiontype=OPTIONAL"`
	MidPrice          *float64 `parquet:"name=mid_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	MicroPrice        *float64 `parquet:"name=micro_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	Spread            *float64 `parquet:"name=spread, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpreadMin         *float64 `parquet:"name=spread_min, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpreadMax         *float64 `parquet:"name=spread_max, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpreadMean        *float64 `parquet:"name=spread_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpreadStd         *float64 `parquet:"name=spread_std, type=DOUBLE, repetitiontype=OPTIONAL"`
	TickImbalanceMin  *float64 `parquet:"name=tick_imbalance_min, type=DOUBLE, repetitiontype=OPTIONAL"`
	TickImbalanceMax  *float64 `parquet:"name=tick_imbalance_max, type=DOUBLE, repetitiontype=OPTIONAL"`
	TickImbalanceMean *float64 `parquet:"name=tick_imbalance_mean, type=DOUBLE, repetitiontype=OPTIONAL"`
	MidRange          *float64 `parquet:"name=mid_range, type=DOUBLE, repetitiontype=OPTIONAL"`
	MidStd            *float64 `parquet:"name=mid_std, type=DOUBLE, repetitiontype=OPTIONAL"`
	Momentum          *float64 `parquet:"name=momentum, type=DOUBLE, repetitiontype=OPTIONAL"`
	TickCount         *int64   `parquet:"name=tick_count, type=INT64, repetitiontype=OPTIONAL"`
	BidChanges        *int64   `parquet:"name=bid_changes, type=INT64, repetitiontype=OPTIONAL"`
	AskChanges        *int64   `parquet:"name=ask_changes, type=INT64, repetitiontype=OPTIONAL"`
}

// optionalFields returns pointers to the feed columns in ArchiveColumns order.
func (p *archiveParquetRecord) optionalFields() []any {
	return []any{
		&p.BidDepth1,
		&p.BidDepth2,
		&p.BidDepth3,
		&p.BidDepth4,
		&p.BidDepth5,
		&p.AskDepth1,
		&p.AskDepth2,
		&p.AskDepth3,
		&p.AskDepth4,
		&p.AskDepth5,
		&p.BidNotional1,
		&p.BidNotional2,
		&p.BidNotional3,
		&p.BidNotional4,
		&p.BidNotional5,
		&p.AskNotional1,
		&p.AskNotional2,
		&p.AskNotional3,
		&p.AskNotional4,
		&p.AskNotional5,
		&p.BidDepth02,
		&p.AskDepth02,
		&p.BidNotional02,
		&p.AskNotional02,
		&p.DepthImbalance1,
		&p.DepthImbalance5,
		&p.DepthRatio1,
		&p.DepthRatio5,
		&p.Liquidity1,
		&p.Liquidity5,
		&p.BidWallBand,
		&p.BidWallDepth,
		&p.AskWallBand,
		&p.AskWallDepth,
		&p.SnapshotCount,
		&p.BestBid,
		&p.BestAsk,
		&p.BestBidQty,
		&p.BestAskQty,
		&p.MidPrice,
		&p.MicroPrice,
		&p.Spread,
		&p.SpreadMin,
		&p.SpreadMax,
		&p.SpreadMean,
		&p.SpreadStd,
		&p.TickImbalanceMin,
		&p.TickImbalanceMax,
		&p.TickImbalanceMean,
		&p.MidRange,
		&p.MidStd,
		&p.Momentum,
		&p.TickCount,
		&p.BidChanges,
		&p.AskChanges,
	}
}

func toArchiveParquet(r *models.ArchiveMinuteRecord) archiveParquetRecord {
	out := archiveParquetRecord{MinuteTs: r.Timestamp.UnixMilli(), Symbol: r.Symbol}
	values := r.Values()[2:]
	for i, dst := range out.optionalFields() {
		switch d := dst.(type) {
		case **float64:
			if v, ok := values[i].(float64); ok {
				*d = &v
			}
		case **int64:
			if v, ok := values[i].(int64); ok {
				*d = &v
			}
		}
	}
	return out
}
