// Package binance decodes the pre-aggregated bookDepth and bookTicker
// archives of the archive venue.
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

const depthTimeLayout = "2006-01-02 15:04:05"

// DecodeStats counts what a decode pass saw.
type DecodeStats struct {
	Rows    int
	Emitted int
	Skipped int
}

// DecodeDepth streams bookDepth snapshots to fn. Consecutive rows sharing a
// timestamp form one snapshot. A header row is optional.
func DecodeDepth(archive *reader.Archive, fn func(models.DepthSnapshot) error) (DecodeStats, error) {
	var stats DecodeStats

	rc, err := archive.Open()
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	r := newCSVReader(rc)
	var cur models.DepthSnapshot
	flush := func() error {
		if len(cur.Levels) == 0 {
			return nil
		}
		stats.Emitted++
		err := fn(cur)
		cur = models.DepthSnapshot{}
		return err
	}

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

		ts, level, ok := parseDepthRow(rec)
		if !ok {
			stats.Skipped++
			continue
		}
		if !ts.Equal(cur.Timestamp) {
			if err := flush(); err != nil {
				return stats, err
			}
			cur.Timestamp = ts
		}
		cur.Levels = append(cur.Levels, level)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func parseDepthRow(rec []string) (time.Time, models.DepthLevel, bool) {
	if len(rec) < 4 {
		return time.Time{}, models.DepthLevel{}, false
	}
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return time.Time{}, models.DepthLevel{}, false
	}
	pct, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	depth, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	notional, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, models.DepthLevel{}, false
	}
	return ts, models.DepthLevel{Percentage: pct, Depth: depth, Notional: notional}, true
}

// parseTimestamp accepts "2006-01-02 15:04:05" or epoch milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.ParseInLocation(depthTimeLayout, s, time.UTC)
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// isHeader reports whether the first field is a column name rather than data.
func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	f := strings.TrimSpace(rec[0])
	if f == "" {
		return false
	}
	c := f[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
