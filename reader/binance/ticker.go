package binance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bookflow/models"
	"bookflow/reader"
)

// DecodeTicker streams bookTicker rows to fn in file order. A header row is
// optional; rows that do not parse are skipped.
func DecodeTicker(archive *reader.Archive, fn func(models.TickerRow) error) (DecodeStats, error) {
	var stats DecodeStats

	rc, err := archive.Open()
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	r := newCSVReader(rc)
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("%w: %s: %v", reader.ErrCorruptArchive, archive.Key, err)
		}
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		stats.Rows++

		row, ok := parseTickerRow(rec)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Emitted++
		if err := fn(row); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func parseTickerRow(rec []string) (models.TickerRow, bool) {
	if len(rec) < 7 {
		return models.TickerRow{}, false
	}
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	id, err := strconv.ParseInt(field(0), 10, 64)
	if err != nil {
		return models.TickerRow{}, false
	}
	bid, err := models.ParsePrice(field(1))
	if err != nil {
		return models.TickerRow{}, false
	}
	bidQty, err := strconv.ParseFloat(field(2), 64)
	if err != nil {
		return models.TickerRow{}, false
	}
	ask, err := models.ParsePrice(field(3))
	if err != nil {
		return models.TickerRow{}, false
	}
	askQty, err := strconv.ParseFloat(field(4), 64)
	if err != nil {
		return models.TickerRow{}, false
	}
	tx, err := strconv.ParseInt(field(5), 10, 64)
	if err != nil {
		return models.TickerRow{}, false
	}
	ev, err := strconv.ParseInt(field(6), 10, 64)
	if err != nil {
		return models.TickerRow{}, false
	}

	return models.TickerRow{
		UpdateID:        id,
		BestBid:         bid,
		BestBidQty:      bidQty,
		BestAsk:         ask,
		BestAskQty:      askQty,
		TransactionTime: time.UnixMilli(tx).UTC(),
		EventTime:       time.UnixMilli(ev).UTC(),
	}, true
}
