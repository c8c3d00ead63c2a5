package processor

import (
	"sort"
	"time"

	"bookflow/models"
)

// Merge unions depth and ticker rows on minute. A minute covered by one feed
// only leaves the other side nil. Both inputs must belong to symbol.
func Merge(symbol string, depth []models.DepthMinute, ticker []models.TickerMinute) []models.ArchiveMinuteRecord {
	byMinute := make(map[int64]*models.ArchiveMinuteRecord, len(depth)+len(ticker))
	get := func(ts time.Time) *models.ArchiveMinuteRecord {
		k := ts.UnixMilli()
		rec, ok := byMinute[k]
		if !ok {
			rec = &models.ArchiveMinuteRecord{Timestamp: ts, Symbol: symbol}
			byMinute[k] = rec
		}
		return rec
	}

	for i := range depth {
		d := &depth[i]
		get(d.Timestamp).Depth = d
	}
	for i := range ticker {
		t := &ticker[i]
		get(t.Timestamp).Ticker = t
	}

	out := make([]models.ArchiveMinuteRecord, 0, len(byMinute))
	for _, rec := range byMinute {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
