package ingest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"bookflow/config"
	"bookflow/internal/metrics"
	"bookflow/models"
	"bookflow/writer"
)

func date(s string) time.Time {
	t, err := config.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func nativeConfig(start, end string) *config.Config {
	cfg := &config.Config{}
	cfg.Ingest.DepthLevels = 5
	cfg.Source.Bybit.PathTemplate = "bybit/{symbol}/{date}.jsonl"
	cfg.Source.Bybit.StartDate = start
	cfg.Source.Bybit.EndDate = end
	return cfg
}

func nativeKey(symbol, day string) string {
	return fmt.Sprintf("bybit/%s/%s.jsonl", symbol, day)
}

func bookLine(typ string, ts time.Time, bids, asks string) string {
	return fmt.Sprintf(`{"topic":"orderbook.500.X","type":%q,"ts":%d,"data":{"s":"X","b":%s,"a":%s,"u":1}}`+"\n",
		typ, ts.UnixMilli(), bids, asks)
}

// nativeBody builds a day that opens with a snapshot, moves every 15
// minutes and closes at 23:59:30. Only messages before until are kept.
func nativeBody(day time.Time, until time.Duration) string {
	var b strings.Builder
	b.WriteString(bookLine("snapshot", day, `[["100","5"],["99.5","3"]]`, `[["101","5"],["101.5","2"]]`))
	for i, off := 1, 15*time.Minute; off < 24*time.Hour; i, off = i+1, off+15*time.Minute {
		if off >= until {
			return b.String()
		}
		step := float64(i%4) * 0.5
		b.WriteString(bookLine("delta", day.Add(off),
			fmt.Sprintf(`[["%g","%d"]]`, 99-step, i%3+1),
			fmt.Sprintf(`[["%g","%d"]]`, 102+step, i%2+1)))
	}
	if last := 23*time.Hour + 59*time.Minute + 30*time.Second; last < until {
		b.WriteString(bookLine("delta", day.Add(last), `[["100","7"]]`, `[["101","7"]]`))
	}
	return b.String()
}

func newNative(t *testing.T, cfg *config.Config, f *fakeFetcher, store *fakeStore, opts Options) *Orchestrator {
	t.Helper()
	p, err := NewNativePipeline(cfg, f)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return NewOrchestrator(p, store, opts)
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Resolving, "resolving"},
		{FetchingDay, "fetching_day"},
		{Persisting, "persisting"},
		{Stopping, "stopping"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s want %s", int(tt.s), got, tt.want)
		}
	}
	if OutcomeNotPublished.String() != "not_published" || OutcomeFailed.String() != "failed" {
		t.Fatalf("outcome strings")
	}
}

func TestResolve(t *testing.T) {
	start := date("2024-01-01")
	tests := []struct {
		name  string
		last  time.Time
		force bool
		want  time.Time
	}{
		{"no checkpoint", time.Time{}, false, start},
		{"complete day", date("2024-01-05").Add(23*time.Hour + 59*time.Minute), false, date("2024-01-06")},
		{"partial day", date("2024-01-05").Add(12 * time.Hour), false, date("2024-01-05")},
		{"midnight only", date("2024-01-05"), false, date("2024-01-05")},
		{"force full reload", date("2024-01-05").Add(23*time.Hour + 59*time.Minute), true, start},
		{"checkpoint before start", date("2023-12-01").Add(23*time.Hour + 59*time.Minute), false, start},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if !tt.last.IsZero() {
				rec := models.MinuteRecord{Timestamp: tt.last, Symbol: "BTCUSDT"}
				store.WriteNativeDay(context.Background(), "BTCUSDT", models.Day(tt.last), []models.MinuteRecord{rec})
			}
			o := newNative(t, nativeConfig("2024-01-01", ""), newFakeFetcher(), store, Options{ForceFullReload: tt.force})
			got, err := o.Resolve(context.Background(), "BTCUSDT")
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("resolve = %v want %v", got, tt.want)
			}
		})
	}
}

func TestEndDefaultsToYesterday(t *testing.T) {
	now := time.Date(2024, 2, 10, 3, 0, 0, 0, time.UTC)
	o := newNative(t, nativeConfig("2024-01-01", ""), newFakeFetcher(), newFakeStore(), Options{Now: func() time.Time { return now }})
	if got := o.endDay(); !got.Equal(date("2024-02-09")) {
		t.Fatalf("end = %v", got)
	}
}

func TestRunSkipsNotPublishedDays(t *testing.T) {
	f := newFakeFetcher()
	f.put(nativeKey("BTCUSDT", "2024-01-01"), nativeBody(date("2024-01-01"), 24*time.Hour))
	f.put(nativeKey("BTCUSDT", "2024-01-03"), nativeBody(date("2024-01-03"), 24*time.Hour))
	store := newFakeStore()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	o := newNative(t, nativeConfig("2024-01-01", "2024-01-03"), f, store, Options{Workers: 2, Metrics: m})
	sum, err := o.Run(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Days != 2 || sum.Skipped != 1 || sum.Failed != 0 || sum.Stopped {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Records == 0 || sum.Records != len(store.native["BTCUSDT"]) {
		t.Fatalf("records = %d stored %d", sum.Records, len(store.native["BTCUSDT"]))
	}
	want := []string{"BTCUSDT/2024-01-01", "BTCUSDT/2024-01-03"}
	if got := store.days(); !reflect.DeepEqual(got, want) {
		t.Fatalf("commits = %v want %v", got, want)
	}
	if got := testutil.ToFloat64(m.DaysTotal.WithLabelValues("bybit", "not_published")); got != 1 {
		t.Fatalf("not published metric = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsWritten.WithLabelValues("bybit")); int(got) != sum.Records {
		t.Fatalf("records metric = %v", got)
	}

	// a second run finds the checkpoint at 23:59 of the last day and does nothing
	sum, err = o.Run(context.Background(), []string{"BTCUSDT"})
	if err != nil || sum.Days != 0 || sum.Skipped != 0 {
		t.Fatalf("rerun = %+v %v", sum, err)
	}
}

func TestResumeAfterCrashMatchesUninterruptedRun(t *testing.T) {
	days := []string{"2024-01-01", "2024-01-02"}
	full := newFakeFetcher()
	for _, d := range days {
		full.put(nativeKey("BTCUSDT", d), nativeBody(date(d), 24*time.Hour))
	}

	reference := newFakeStore()
	if _, err := newNative(t, nativeConfig(days[0], days[1]), full, reference, Options{}).Run(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("reference run: %v", err)
	}

	// the crashed run only got through the morning of the second day
	partial := newFakeFetcher()
	partial.put(nativeKey("BTCUSDT", days[0]), nativeBody(date(days[0]), 24*time.Hour))
	partial.put(nativeKey("BTCUSDT", days[1]), nativeBody(date(days[1]), 12*time.Hour))
	store := newFakeStore()
	if _, err := newNative(t, nativeConfig(days[0], days[1]), partial, store, Options{}).Run(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("partial run: %v", err)
	}
	last, _, _ := store.LastMinute(context.Background(), writer.TableNative, "BTCUSDT")
	if last.Hour() != 11 {
		t.Fatalf("partial checkpoint = %v", last)
	}

	resumed := newNative(t, nativeConfig(days[0], days[1]), full, store, Options{})
	sum, err := resumed.Run(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if sum.Days != 1 || full.fetched(days[1]) != 2 {
		t.Fatalf("resumed run should redo only %s: %+v", days[1], sum)
	}
	if !reflect.DeepEqual(store.native, reference.native) {
		t.Fatalf("resumed store differs from uninterrupted run")
	}
}

func TestStopHonoredAtDayBoundary(t *testing.T) {
	f := newFakeFetcher()
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		f.put(nativeKey("BTCUSDT", d), nativeBody(date(d), 24*time.Hour))
	}
	store := newFakeStore()
	o := newNative(t, nativeConfig("2024-01-01", "2024-01-03"), f, store, Options{Workers: 1})
	f.onFetch = func(key string) {
		if strings.Contains(key, "2024-01-01") {
			o.Stop()
			o.Stop()
		}
	}

	sum, err := o.Run(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Stopped || sum.Days != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := store.days(); !reflect.DeepEqual(got, []string{"BTCUSDT/2024-01-01"}) {
		t.Fatalf("in-flight day must commit and nothing after it: %v", got)
	}
	last, _, _ := store.LastMinute(context.Background(), writer.TableNative, "BTCUSDT")
	if last.Hour() != 23 || last.Minute() != 59 {
		t.Fatalf("stopped day was not committed whole: %v", last)
	}
}

func TestHardCancelIsGraceful(t *testing.T) {
	f := newFakeFetcher()
	f.put(nativeKey("BTCUSDT", "2024-01-01"), nativeBody(date("2024-01-01"), 24*time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	f.onFetch = func(string) { cancel() }

	store := newFakeStore()
	sum, err := newNative(t, nativeConfig("2024-01-01", "2024-01-02"), f, store, Options{}).Run(ctx, []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("cancel must not be an error: %v", err)
	}
	if !sum.Stopped || sum.Failed != 0 || len(store.days()) != 0 {
		t.Fatalf("summary = %+v commits = %v", sum, store.days())
	}
}

func TestFailureStopsLaterCommits(t *testing.T) {
	f := newFakeFetcher()
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"} {
		f.put(nativeKey("BTCUSDT", d), nativeBody(date(d), 24*time.Hour))
		f.put(nativeKey("ETHUSDT", d), nativeBody(date(d), 24*time.Hour))
	}
	f.errs[nativeKey("BTCUSDT", "2024-01-02")] = errors.New("connection reset")

	store := newFakeStore()
	o := newNative(t, nativeConfig("2024-01-01", "2024-01-04"), f, store, Options{Workers: 3})
	sum, err := o.Run(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err == nil || !strings.Contains(err.Error(), "BTCUSDT") || !strings.Contains(err.Error(), "2024-01-02") {
		t.Fatalf("expected BTCUSDT failure on 2024-01-02, got %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	want := []string{
		"BTCUSDT/2024-01-01",
		"ETHUSDT/2024-01-01", "ETHUSDT/2024-01-02", "ETHUSDT/2024-01-03", "ETHUSDT/2024-01-04",
	}
	if got := store.days(); !reflect.DeepEqual(got, want) {
		t.Fatalf("commits = %v want %v", got, want)
	}
}

func TestPersistFailureIsFatalForSymbol(t *testing.T) {
	f := newFakeFetcher()
	for _, d := range []string{"2024-01-01", "2024-01-02"} {
		f.put(nativeKey("BTCUSDT", d), nativeBody(date(d), 24*time.Hour))
	}
	store := newFakeStore()
	store.failDay["BTCUSDT/2024-01-01"] = true

	sum, err := newNative(t, nativeConfig("2024-01-01", "2024-01-02"), f, store, Options{}).Run(context.Background(), []string{"BTCUSDT"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if sum.Days != 0 || sum.Failed != 1 || len(store.days()) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestWorkersCommitInOrder(t *testing.T) {
	f := newFakeFetcher()
	var want []string
	for d := date("2024-01-01"); !d.After(date("2024-01-08")); d = d.AddDate(0, 0, 1) {
		f.put(nativeKey("BTCUSDT", d.Format("2006-01-02")), nativeBody(d, 24*time.Hour))
		want = append(want, "BTCUSDT/"+d.Format("2006-01-02"))
	}
	store := newFakeStore()
	exp := &fakeExporter{}
	sum, err := newNative(t, nativeConfig("2024-01-01", "2024-01-08"), f, store, Options{Workers: 4, Exporter: exp}).Run(context.Background(), []string{"BTCUSDT"})
	if err != nil || sum.Days != 8 {
		t.Fatalf("run = %+v %v", sum, err)
	}
	if got := store.days(); !reflect.DeepEqual(got, want) {
		t.Fatalf("commits out of order: %v", got)
	}
	if !reflect.DeepEqual(exp.keys, want) {
		t.Fatalf("exports = %v", exp.keys)
	}
}

func TestExportFailureKeepsCommit(t *testing.T) {
	f := newFakeFetcher()
	f.put(nativeKey("BTCUSDT", "2024-01-01"), nativeBody(date("2024-01-01"), 24*time.Hour))
	store := newFakeStore()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	sum, err := newNative(t, nativeConfig("2024-01-01", "2024-01-01"), f, store, Options{Exporter: &fakeExporter{fail: true}, Metrics: m}).Run(context.Background(), []string{"BTCUSDT"})
	if err != nil || sum.Days != 1 {
		t.Fatalf("run = %+v %v", sum, err)
	}
	if got := testutil.ToFloat64(m.ExportFailures.WithLabelValues("bybit")); got != 1 {
		t.Fatalf("export failures = %v", got)
	}
}

func TestNativeDayIgnoresMessagesFromPreviousDay(t *testing.T) {
	d1, d2 := date("2024-01-01"), date("2024-01-02")
	lastMinute := d1.Add(23*time.Hour + 59*time.Minute).UnixMilli()

	alone := newFakeFetcher()
	alone.put(nativeKey("BTCUSDT", "2024-01-01"), nativeBody(d1, 24*time.Hour))
	want := newFakeStore()
	if _, err := newNative(t, nativeConfig("2024-01-01", "2024-01-01"), alone, want, Options{}).Run(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("day 1 run: %v", err)
	}

	f := newFakeFetcher()
	f.put(nativeKey("BTCUSDT", "2024-01-01"), nativeBody(d1, 24*time.Hour))
	f.put(nativeKey("BTCUSDT", "2024-01-02"),
		bookLine("snapshot", d2.Add(-500*time.Millisecond), `[["50","1"]]`, `[["51","1"]]`)+nativeBody(d2, 24*time.Hour))
	store := newFakeStore()
	if _, err := newNative(t, nativeConfig("2024-01-01", "2024-01-02"), f, store, Options{Workers: 2}).Run(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, ok := store.native["BTCUSDT"][lastMinute]
	if !ok {
		t.Fatalf("day 1 23:59 missing")
	}
	if !reflect.DeepEqual(got, want.native["BTCUSDT"][lastMinute]) {
		t.Fatalf("day 1 23:59 rewritten by day 2: best bid %v", got.BestBid)
	}
	if first := store.native["BTCUSDT"][d2.UnixMilli()]; first.BestBid != 100 {
		t.Fatalf("day 2 00:00 = %+v", first)
	}
}
