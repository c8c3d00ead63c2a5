package bybit

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"bookflow/models"
	"bookflow/reader"
)

const sample = `{"topic":"orderbook.500.BTCUSDT","type":"snapshot","ts":1704067200000,"data":{"s":"BTCUSDT","b":[["42000.5","1.25"],["41999","2"]],"a":[["42001","0.5"]],"u":1}}
not json
{"topic":"orderbook.500.BTCUSDT","type":"heartbeat","ts":1704067200100,"data":{}}

{"topic":"orderbook.500.BTCUSDT","type":"delta","ts":1704067201000,"data":{"s":"BTCUSDT","b":[["42000.5","0"],["bad","1"]],"a":[["42002","3"]],"u":2}}
`

func zipped(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w.Write([]byte(body))
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	a := reader.NewMemoryArchive("day.zip", zipped(t, "2024-01-01_BTCUSDT_ob500.data", sample))

	var msgs []models.BookMessage
	stats, err := Decode(a, func(m models.BookMessage) error {
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Lines != 4 || stats.Messages != 2 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	snap := msgs[0]
	if snap.Type != models.MessageSnapshot || !snap.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Bids) != 2 || snap.Bids[0].Price.String() != "42000.5" || snap.Bids[0].Size != 1.25 {
		t.Fatalf("snapshot bids = %+v", snap.Bids)
	}

	delta := msgs[1]
	if delta.Type != models.MessageDelta {
		t.Fatalf("delta type = %s", delta.Type)
	}
	if len(delta.Bids) != 1 || delta.Bids[0].Size != 0 {
		t.Fatalf("unparsable level should be dropped, removal kept: %+v", delta.Bids)
	}
}

func TestDecodePlainAndCallbackError(t *testing.T) {
	a := reader.NewMemoryArchive("day.data", []byte(sample))
	stop := errors.New("stop")
	n := 0
	_, err := Decode(a, func(models.BookMessage) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err = %v after %d messages", err, n)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	a := reader.NewMemoryArchive("bad.zip", []byte("PK\x03\x04truncated"))
	if _, err := Decode(a, func(models.BookMessage) error { return nil }); !errors.Is(err, reader.ErrCorruptArchive) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseLevelsDropsNonFiniteSizes(t *testing.T) {
	got := parseLevels([][2]string{{"100", "NaN"}, {"101", "+Inf"}, {"102", "1e400"}, {"103", "2"}})
	if len(got) != 1 || got[0].Price.String() != "103" || got[0].Size != 2 {
		t.Fatalf("levels = %+v", got)
	}
}
