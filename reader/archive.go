package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrCorruptArchive reports a container that could not be opened.
var ErrCorruptArchive = errors.New("corrupt archive")

// Status distinguishes a fetched archive from one the venue never published.
type Status int

const (
	Published Status = iota
	NotPublished
)

func (s Status) String() string {
	if s == NotPublished {
		return "not_published"
	}
	return "published"
}

// Archive is one fetched object. Published bodies are spooled so decoders can
// random-access zip containers without holding them in memory twice.
type Archive struct {
	Key    string
	Status Status

	body   io.ReaderAt
	size   int64
	closer func() error
}

// NewMemoryArchive wraps data as a published archive.
func NewMemoryArchive(key string, data []byte) *Archive {
	return &Archive{Key: key, Status: Published, body: bytes.NewReader(data), size: int64(len(data))}
}

// NewNotPublished reports key as absent from the venue.
func NewNotPublished(key string) *Archive {
	return &Archive{Key: key, Status: NotPublished}
}

// Size is the spooled body length in bytes.
func (a *Archive) Size() int64 { return a.size }

// Close releases the spool file, if any.
func (a *Archive) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	err := a.closer()
	a.closer = nil
	return err
}

// Open returns a stream over the single data member of the archive. Zip and
// gzip containers are unwrapped; anything else is returned as-is.
func (a *Archive) Open() (io.ReadCloser, error) {
	if a.Status != Published || a.body == nil {
		return nil, fmt.Errorf("archive %s has no body", a.Key)
	}

	magic := make([]byte, 4)
	n, _ := a.body.ReadAt(magic, 0)
	magic = magic[:n]
	raw := io.NewSectionReader(a.body, 0, a.size)

	switch {
	case bytes.HasPrefix(magic, []byte("PK\x03\x04")):
		zr, err := zip.NewReader(a.body, a.size)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, a.Key, err)
		}
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, a.Key, err)
			}
			return rc, nil
		}
		return nil, fmt.Errorf("%w: %s: empty zip", ErrCorruptArchive, a.Key)
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		gr, err := gzip.NewReader(bufio.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, a.Key, err)
		}
		return gr, nil
	default:
		return io.NopCloser(raw), nil
	}
}

// spool is a temp file that collects one fetch attempt.
type spool struct {
	f *os.File
}

func newSpool(dir string) (*spool, error) {
	f, err := os.CreateTemp(dir, "bookflow-*.part")
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	return &spool{f: f}, nil
}

func (s *spool) reset() error {
	if err := s.f.Truncate(0); err != nil {
		return err
	}
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

func (s *spool) discard() {
	name := s.f.Name()
	s.f.Close()
	os.Remove(name)
}

// archive hands ownership of the spool file to the returned Archive.
func (s *spool) archive(key string, size int64) *Archive {
	name := s.f.Name()
	return &Archive{
		Key:    key,
		Status: Published,
		body:   s.f,
		size:   size,
		closer: func() error {
			err := s.f.Close()
			if rmErr := os.Remove(name); err == nil {
				err = rmErr
			}
			return err
		},
	}
}

// ExpandKey fills {symbol}, {date} (2006-01-02) and {month} (2006-01) in tmpl.
func ExpandKey(tmpl, symbol string, t time.Time) string {
	t = t.UTC()
	r := strings.NewReplacer(
		"{symbol}", symbol,
		"{date}", t.Format("2006-01-02"),
		"{month}", t.Format("2006-01"),
	)
	return r.Replace(tmpl)
}
