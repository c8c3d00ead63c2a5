package models

import (
	"testing"
	"time"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want Price
	}{
		{"100", 100 * PriceScale},
		{"0.5", PriceScale / 2},
		{"27123.45", 2712345 * PriceScale / 100},
		{"0.000000015", 2},
		{"1e2", 100 * PriceScale},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q)=%d want %d", tt.in, got, tt.want)
		}
	}
	if _, err := ParsePrice("abc"); err == nil {
		t.Fatalf("expected error for non-numeric price")
	}
}

func TestPriceFormatting(t *testing.T) {
	p, _ := ParsePrice("101.2500")
	if p.String() != "101.25" {
		t.Fatalf("String()=%s", p.String())
	}
	if p.Float() != 101.25 {
		t.Fatalf("Float()=%v", p.Float())
	}
	if PriceFromFloat(101.25) != p {
		t.Fatalf("PriceFromFloat mismatch")
	}
}

func TestMinuteAndDay(t *testing.T) {
	ts := time.Date(2024, 5, 1, 23, 59, 42, 500, time.UTC)
	if got := Minute(ts); !got.Equal(time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("Minute=%s", got)
	}
	if got := Day(ts); !got.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Day=%s", got)
	}
}

func TestColumnContracts(t *testing.T) {
	var r MinuteRecord
	if n := len(r.Values()); n != len(MinuteColumns) {
		t.Fatalf("minute values=%d columns=%d", n, len(MinuteColumns))
	}

	full := ArchiveMinuteRecord{Depth: &DepthMinute{}, Ticker: &TickerMinute{}}
	if n := len(full.Values()); n != len(ArchiveColumns) {
		t.Fatalf("archive values=%d columns=%d", n, len(ArchiveColumns))
	}

	seen := map[string]bool{}
	for _, c := range ArchiveColumns {
		if seen[c.Name] {
			t.Fatalf("duplicate archive column %s", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestArchiveValuesNullSides(t *testing.T) {
	rec := ArchiveMinuteRecord{
		Timestamp: time.Unix(60, 0),
		Symbol:    "BTCUSDT",
		Depth:     &DepthMinute{SnapshotCount: 2},
	}
	vals := rec.Values()
	if vals[0] != int64(60000) || vals[1] != "BTCUSDT" {
		t.Fatalf("unexpected key values: %v %v", vals[0], vals[1])
	}
	tickerStart := 2 + len(DepthColumns)
	for i := tickerStart; i < len(vals); i++ {
		if vals[i] != nil {
			t.Fatalf("ticker column %s should be NULL, got %v", ArchiveColumns[i].Name, vals[i])
		}
	}
	// the ±0.2% bucket is absent so it must be NULL as well
	if vals[2+20] != nil {
		t.Fatalf("bid_depth_02 should be NULL, got %v", vals[2+20])
	}
	if vals[tickerStart-1] != int64(2) {
		t.Fatalf("snapshot_count=%v", vals[tickerStart-1])
	}
}
