// Package fsrc defines the shared byte-source abstraction the rest of the
// decoding pipeline reads through: a seekable, clonable, size-reporting
// byte source, per the external interfaces section of the specification.
//
// Source is deliberately narrow: read(buffer, n), seek(absolute), tell(),
// size() -> optional, clone(), and EOF reporting, exactly per §6. This
// package holds the local-file (Open), io.ReaderAt (NewReaderAt) and
// forward-only stream (NewBuffering) backends; an HTTP range reader
// (package ranger) plugs in through NewReaderAt.
package fsrc

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Source is a byte-addressable, seekable input that can be cloned so
// that independent readers can hold independent seek positions over the
// same underlying data, per the "Cyclic ownership" design note: a worker
// borrows a clone for the duration of one task rather than sharing the
// owner's position.
type Source interface {
	io.Reader
	io.ByteReader

	// Seek moves to an absolute byte offset.
	Seek(offset int64) error

	// Tell returns the current byte offset.
	Tell() int64

	// Size returns the total size in bytes, if known. Non-seekable or
	// still-streaming sources may return ok=false.
	Size() (size int64, ok bool)

	// Clone returns an independent Source over the same underlying data,
	// positioned at offset 0. Concurrent use of the original and its
	// clones is safe; they do not share position state.
	Clone() (Source, error)
}

// fileSource adapts *os.File to Source.
type fileSource struct {
	f  *os.File
	br *bufio.Reader
	at int64
}

// Open wraps an *os.File as a Source.
func Open(name string) (Source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "fsrc: open")
	}
	return &fileSource{f: f, br: bufio.NewReaderSize(f, 64<<10)}, nil
}

func fromFile(f *os.File) Source {
	return &fileSource{f: f, br: bufio.NewReaderSize(f, 64<<10)}
}

func (s *fileSource) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	s.at += int64(n)
	return n, err
}

func (s *fileSource) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err == nil {
		s.at++
	}
	return b, err
}

func (s *fileSource) Seek(offset int64) error {
	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "fsrc: seek")
	}
	s.br.Reset(s.f)
	s.at = offset
	return nil
}

func (s *fileSource) Tell() int64 { return s.at }

func (s *fileSource) Size() (int64, bool) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

func (s *fileSource) Clone() (Source, error) {
	dup, err := os.Open(s.f.Name())
	if err != nil {
		return nil, errors.Wrap(err, "fsrc: clone")
	}
	return fromFile(dup), nil
}

// ReaderAtSource adapts anything implementing io.ReaderAt (e.g.
// ranger.Reader, or an in-memory *bytes.Reader) plus a known size to
// Source. Clone is cheap: io.ReaderAt values are inherently
// position-independent, so clones just share the same ReaderAt and
// track their own offset.
type ReaderAtSource struct {
	ra   io.ReaderAt
	size int64
	at   int64
}

// NewReaderAt builds a Source over ra, whose total size is size.
func NewReaderAt(ra io.ReaderAt, size int64) *ReaderAtSource {
	return &ReaderAtSource{ra: ra, size: size}
}

func (s *ReaderAtSource) Read(p []byte) (int, error) {
	if s.at >= s.size {
		return 0, io.EOF
	}
	max := s.size - s.at
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.ra.ReadAt(p, s.at)
	s.at += int64(n)
	if err == nil && s.at >= s.size {
		err = io.EOF
	}
	return n, err
}

func (s *ReaderAtSource) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (s *ReaderAtSource) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("fsrc: negative seek")
	}
	s.at = offset
	return nil
}

func (s *ReaderAtSource) Tell() int64 { return s.at }

func (s *ReaderAtSource) Size() (int64, bool) { return s.size, true }

func (s *ReaderAtSource) Clone() (Source, error) {
	return &ReaderAtSource{ra: s.ra, size: s.size}, nil
}

// Buffering wraps a forward-only io.Reader (e.g. stdin) so that it can be
// used where a Source is required, per the non-goal carve-out: "the
// single-pass reader is a thin wrapper, not part of the core." It
// buffers everything read so far into memory to support Seek/Clone
// backwards over already-seen data; it cannot seek ahead of what has
// been read.
//
// The underlying reader and growable buffer are shared across every
// clone of a Buffering source (a *bufState behind a mutex), matching
// every other Source's Clone contract: concurrent clones may read
// ahead independently, and whichever clone reaches furthest pulls more
// bytes from r for all of them. Only the read cursor (at) is private
// to each clone.
type Buffering struct {
	s  *bufState
	at int64
}

type bufState struct {
	mu   sync.Mutex
	r    io.Reader
	buf  []byte
	done bool
}

// NewBuffering adapts r, a non-seekable reader, into a Source.
func NewBuffering(r io.Reader) *Buffering {
	return &Buffering{s: &bufState{r: r}}
}

// fillTo grows the shared buffer to at least n bytes, pulling from the
// underlying reader under lock so concurrent clones never race on r.
func (s *bufState) fillTo(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for int64(len(s.buf)) < n && !s.done {
		chunk := make([]byte, 64<<10)
		m, err := s.r.Read(chunk)
		if m > 0 {
			s.buf = append(s.buf, chunk[:m]...)
		}
		if err != nil {
			s.done = true
			if err != io.EOF {
				return errors.Wrap(err, "fsrc: buffering read")
			}
		}
	}
	return nil
}

func (s *bufState) snapshot() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf, s.done
}

func (b *Buffering) Read(p []byte) (int, error) {
	if err := b.s.fillTo(b.at + int64(len(p))); err != nil {
		return 0, err
	}
	buf, _ := b.s.snapshot()
	if b.at >= int64(len(buf)) {
		return 0, io.EOF
	}
	n := copy(p, buf[b.at:])
	b.at += int64(n)
	return n, nil
}

func (b *Buffering) ReadByte() (byte, error) {
	var one [1]byte
	n, err := b.Read(one[:])
	if n == 1 {
		return one[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (b *Buffering) Seek(offset int64) error {
	if err := b.s.fillTo(offset); err != nil {
		return err
	}
	buf, _ := b.s.snapshot()
	if offset > int64(len(buf)) {
		return errors.New("fsrc: cannot seek ahead of a non-seekable source")
	}
	b.at = offset
	return nil
}

func (b *Buffering) Tell() int64 { return b.at }

func (b *Buffering) Size() (int64, bool) {
	buf, done := b.s.snapshot()
	if !done {
		return 0, false
	}
	return int64(len(buf)), true
}

// Clone returns an independent read cursor over the same shared
// buffer/reader state, positioned at offset 0, consistent with every
// other Source's Clone contract.
func (b *Buffering) Clone() (Source, error) {
	return &Buffering{s: b.s}, nil
}
