// Package bybit decodes the daily ob500 order book archives of the native
// venue into book messages.
package bybit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"bookflow/models"
	"bookflow/reader"
)

const maxLineSize = 64 << 20

// DecodeStats counts what a decode pass saw.
type DecodeStats struct {
	Lines    int
	Messages int
	Skipped  int
}

// line is one JSONL record of an ob500 archive.
type line struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type bookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Update int64       `json:"u"`
}

// Decode streams every message of archive to fn in file order. Lines that do
// not parse, carry an unknown type or have no timestamp are skipped. Levels
// with unparsable price or size are dropped from their message. A non-nil
// error from fn stops decoding and is returned as-is.
func Decode(archive *reader.Archive, fn func(models.BookMessage) error) (DecodeStats, error) {
	var stats DecodeStats

	rc, err := archive.Open()
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)

	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		stats.Lines++

		msg, ok := parseLine(raw)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Messages++
		if err := fn(msg); err != nil {
			return stats, err
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("%w: %s: %v", reader.ErrCorruptArchive, archive.Key, err)
	}
	return stats, nil
}

func parseLine(raw []byte) (models.BookMessage, bool) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return models.BookMessage{}, false
	}

	var typ models.MessageType
	switch l.Type {
	case "snapshot":
		typ = models.MessageSnapshot
	case "delta":
		typ = models.MessageDelta
	default:
		return models.BookMessage{}, false
	}
	if l.Ts <= 0 || len(l.Data) == 0 {
		return models.BookMessage{}, false
	}

	var d bookData
	if err := json.Unmarshal(l.Data, &d); err != nil {
		return models.BookMessage{}, false
	}

	return models.BookMessage{
		Timestamp: time.UnixMilli(l.Ts).UTC(),
		Type:      typ,
		Bids:      parseLevels(d.Bids),
		Asks:      parseLevels(d.Asks),
	}, true
}

func parseLevels(pairs [][2]string) []models.Level {
	out := make([]models.Level, 0, len(pairs))
	for _, p := range pairs {
		price, err := models.ParsePrice(p[0])
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(p[1], 64)
		if err != nil || size < 0 || math.IsNaN(size) || math.IsInf(size, 0) {
			continue
		}
		out = append(out, models.Level{Price: price, Size: size})
	}
	return out
}
