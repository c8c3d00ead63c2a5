package binance

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"bookflow/models"
	"bookflow/reader"
)

func zipped(t *testing.T, body string) *reader.Archive {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("day.csv")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w.Write([]byte(body))
	zw.Close()
	return reader.NewMemoryArchive("day.zip", buf.Bytes())
}

func TestDecodeDepthGroupsTimestamps(t *testing.T) {
	body := "timestamp,percentage,depth,notional\n" +
		"2024-01-01 00:00:08,-1.00,10,420000\n" +
		"2024-01-01 00:00:08,1.00,12,504000\n" +
		"2024-01-01 00:00:38,-1.00,11,462000\n" +
		"2024-01-01 00:00:38,oops,1,1\n" +
		"1704067268000,1.00,13,546000\n"

	var snaps []models.DepthSnapshot
	stats, err := DecodeDepth(zipped(t, body), func(s models.DepthSnapshot) error {
		snaps = append(snaps, s)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Rows != 5 || stats.Skipped != 1 || stats.Emitted != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(snaps) != 3 || len(snaps[0].Levels) != 2 || len(snaps[1].Levels) != 1 {
		t.Fatalf("snapshots = %+v", snaps)
	}
	want := time.Date(2024, 1, 1, 0, 1, 8, 0, time.UTC)
	if !snaps[2].Timestamp.Equal(want) {
		t.Fatalf("epoch timestamp = %v want %v", snaps[2].Timestamp, want)
	}
	if snaps[0].Levels[1].Percentage != 1 || snaps[0].Levels[1].Notional != 504000 {
		t.Fatalf("level = %+v", snaps[0].Levels[1])
	}
}

func TestDecodeDepthWithoutHeader(t *testing.T) {
	body := "2024-01-01 00:00:08,-1.00,10,420000\n"
	n := 0
	if _, err := DecodeDepth(zipped(t, body), func(models.DepthSnapshot) error { n++; return nil }); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 1 {
		t.Fatalf("snapshots = %d", n)
	}
}

func TestDecodeTicker(t *testing.T) {
	body := "update_id,best_bid_price,best_bid_qty,best_ask_price,best_ask_qty,transaction_time,event_time\n" +
		"1,42000.10,1.5,42000.20,2.5,1704067200100,1704067200105\n" +
		"2,x,1,1,1,1,1\n" +
		"3,42000.00,1,42000.30,1,1704067260000,1704067260001\n"

	var rows []models.TickerRow
	stats, err := DecodeTicker(zipped(t, body), func(r models.TickerRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Rows != 3 || stats.Skipped != 1 || len(rows) != 2 {
		t.Fatalf("stats = %+v rows=%d", stats, len(rows))
	}
	r := rows[0]
	if r.UpdateID != 1 || r.BestBid.String() != "42000.1" || r.BestAskQty != 2.5 {
		t.Fatalf("row = %+v", r)
	}
	if !r.TransactionTime.Equal(time.UnixMilli(1704067200100)) {
		t.Fatalf("transaction time = %v", r.TransactionTime)
	}
}
