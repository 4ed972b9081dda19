package event

import (
	"errors"
	"fmt"
	"io"

	backtesterrors "hftsim/internal/backtest/errors"
)

// rowCacheSize bounds how many decoded events the Reader holds ahead of the
// caller, amortizing the per-record read syscall/gzip-inflate cost without
// buffering whole files into memory.
const rowCacheSize = 64

// Reader lazily streams an ordered sequence of Events from one or more
// files, advancing to the next file transparently when one is exhausted.
// Events within a file are assumed sorted by LocalTs; the Reader never
// re-sorts (§4.1).
type Reader struct {
	files   []string
	fileIdx int

	cur      io.ReadCloser
	stream   io.Reader
	remain   uint64 // records left unread in the current file's header count
	rowCache []Event
	cachePos int

	peeked    *Event
	exhausted bool
}

// NewReader constructs a Reader over files, opened in the given order.
func NewReader(files []string) *Reader {
	return &Reader{files: files}
}

// Next returns the next Event in stream order, or (Event{}, false, nil) once
// every file is exhausted. A non-nil error is always fatal (§4.1, §7
// DataError).
func (r *Reader) Next() (Event, bool, error) {
	if r.peeked != nil {
		e := *r.peeked
		r.peeked = nil
		return e, true, nil
	}
	return r.next()
}

// PeekTs returns the ExchTs of the next event without consuming it, or
// (0, false, nil) if the reader is exhausted.
func (r *Reader) PeekTs() (int64, bool, error) {
	if r.peeked != nil {
		return r.peeked.ExchTs, true, nil
	}
	e, ok, err := r.next()
	if err != nil || !ok {
		return 0, false, err
	}
	r.peeked = &e
	return e.ExchTs, true, nil
}

func (r *Reader) next() (Event, bool, error) {
	for {
		if r.cachePos < len(r.rowCache) {
			e := r.rowCache[r.cachePos]
			r.cachePos++
			return e, true, nil
		}
		if r.exhausted {
			return Event{}, false, nil
		}
		if r.cur == nil {
			if err := r.openNext(); err != nil {
				return Event{}, false, err
			}
			if r.exhausted {
				return Event{}, false, nil
			}
		}
		if err := r.fillCache(); err != nil {
			return Event{}, false, err
		}
	}
}

func (r *Reader) openNext() error {
	if r.fileIdx >= len(r.files) {
		r.exhausted = true
		return nil
	}
	path := r.files[r.fileIdx]
	r.fileIdx++
	closer, stream, n, err := openRecordStream(path)
	if err != nil {
		return err
	}
	r.cur = closer
	r.stream = stream
	r.remain = n
	r.rowCache = r.rowCache[:0]
	r.cachePos = 0
	return nil
}

func (r *Reader) fillCache() error {
	want := rowCacheSize
	if uint64(want) > r.remain {
		want = int(r.remain)
	}
	if want == 0 {
		// Current file exhausted; close it and move to the next.
		if err := r.cur.Close(); err != nil {
			return fmt.Errorf("close event file: %w", err)
		}
		r.cur = nil
		r.stream = nil
		return r.openNext()
	}
	cache := make([]Event, 0, want)
	for i := 0; i < want; i++ {
		e, err := readRecord(r.stream)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return backtesterrors.NewDataError(r.files[r.fileIdx-1], "unexpected EOF mid-record")
			}
			return fmt.Errorf("read event record: %w", err)
		}
		cache = append(cache, e)
	}
	r.remain -= uint64(want)
	r.rowCache = cache
	r.cachePos = 0
	return nil
}

// Close releases the currently open file, if any. Safe to call multiple
// times.
func (r *Reader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	r.stream = nil
	return err
}
