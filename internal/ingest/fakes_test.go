package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bookflow/models"
	"bookflow/reader"
	"bookflow/writer"
)

// fakeFetcher serves archives from memory. Unknown keys are not published.
type fakeFetcher struct {
	mu      sync.Mutex
	objects map[string][]byte
	errs    map[string]error
	calls   []string
	onFetch func(key string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{objects: make(map[string][]byte), errs: make(map[string]error)}
}

func (f *fakeFetcher) put(key, body string) { f.objects[key] = []byte(body) }

func (f *fakeFetcher) Fetch(ctx context.Context, key string) (*reader.Archive, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	hook := f.onFetch
	data, ok := f.objects[key]
	err := f.errs[key]
	f.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return reader.NewNotPublished(key), nil
	}
	return reader.NewMemoryArchive(key, data), nil
}

func (f *fakeFetcher) fetched(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.calls {
		if strings.Contains(k, substr) {
			n++
		}
	}
	return n
}

// fakeStore keeps rows keyed by (symbol, minute) with upsert semantics.
type fakeStore struct {
	mu      sync.Mutex
	native  map[string]map[int64]models.MinuteRecord
	archive map[string]map[int64]models.ArchiveMinuteRecord
	commits []string
	failDay map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		native:  make(map[string]map[int64]models.MinuteRecord),
		archive: make(map[string]map[int64]models.ArchiveMinuteRecord),
		failDay: make(map[string]bool),
	}
}

func (s *fakeStore) LastMinute(ctx context.Context, table writer.Table, symbol string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []int64
	if table == writer.TableNative {
		for k := range s.native[symbol] {
			keys = append(keys, k)
		}
	} else {
		for k := range s.archive[symbol] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return time.Time{}, false, nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return time.UnixMilli(keys[len(keys)-1]).UTC(), true, nil
}

func (s *fakeStore) commitKey(symbol string, day time.Time) (string, error) {
	key := symbol + "/" + day.Format("2006-01-02")
	if s.failDay[key] {
		return key, errors.New("disk full")
	}
	s.commits = append(s.commits, key)
	return key, nil
}

func (s *fakeStore) WriteNativeDay(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.commitKey(symbol, day); err != nil {
		return err
	}
	if s.native[symbol] == nil {
		s.native[symbol] = make(map[int64]models.MinuteRecord)
	}
	for _, r := range records {
		s.native[symbol][r.Timestamp.UnixMilli()] = r
	}
	return nil
}

func (s *fakeStore) WriteArchiveDay(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.commitKey(symbol, day); err != nil {
		return err
	}
	if s.archive[symbol] == nil {
		s.archive[symbol] = make(map[int64]models.ArchiveMinuteRecord)
	}
	for _, r := range records {
		s.archive[symbol][r.Timestamp.UnixMilli()] = r
	}
	return nil
}

func (s *fakeStore) TickerGaps(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for k, r := range s.archive[symbol] {
		if k >= from.UnixMilli() && k < to.UnixMilli() && r.Depth != nil && r.Ticker == nil {
			out = append(out, time.UnixMilli(k).UTC())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *fakeStore) UpdateTicker(ctx context.Context, symbol string, rows []models.TickerMinute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rows {
		k := rows[i].Timestamp.UnixMilli()
		r, ok := s.archive[symbol][k]
		if !ok {
			continue
		}
		t := rows[i]
		r.Ticker = &t
		s.archive[symbol][k] = r
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) days() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commits...)
}

// fakeExporter records exports and optionally fails them.
type fakeExporter struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (e *fakeExporter) record(symbol string, day time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return "", errors.New("bucket unavailable")
	}
	key := fmt.Sprintf("%s/%s", symbol, day.Format("2006-01-02"))
	e.keys = append(e.keys, key)
	return key, nil
}

func (e *fakeExporter) ExportNative(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) (string, error) {
	return e.record(symbol, day)
}

func (e *fakeExporter) ExportArchive(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) (string, error) {
	return e.record(symbol, day)
}
