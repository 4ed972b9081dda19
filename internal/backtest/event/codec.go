package event

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	backtesterrors "hftsim/internal/backtest/errors"
)

// fieldNames is the fixed, ordered dtype field-name list carried in the
// header and matched against the record layout below. Renaming or
// reordering this breaks bit-exactness with files written by an older
// build, which is why it is a fixed package-level list rather than derived
// by reflection.
var fieldNames = []string{"ev", "exch_ts", "local_ts", "px", "qty", "order_id", "ival", "fval"}

const (
	magic        = "HFTE1\n"
	itemSize     = 8 * 8 // eight 8-byte columns per record
	littleEndian = byte(0)
)

// writeHeader writes the format header (§6): magic, endianness, item size,
// field names, and a placeholder record count n. Returns the byte offset of
// the n field so a two-pass writer can seek back and patch it once the true
// count is known.
func writeHeader(w io.Writer, n uint64) (nOffset int64, err error) {
	if _, err := io.WriteString(w, magic); err != nil {
		return 0, err
	}
	if _, err := w.Write([]byte{littleEndian}); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(itemSize)); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(fieldNames))); err != nil {
		return 0, err
	}
	for _, name := range fieldNames {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(name))); err != nil {
			return 0, err
		}
		if _, err := io.WriteString(w, name); err != nil {
			return 0, err
		}
	}
	nOffset = int64(len(magic) + 1 + 4 + 2)
	for _, name := range fieldNames {
		nOffset += 2 + int64(len(name))
	}
	if err := binary.Write(w, binary.LittleEndian, n); err != nil {
		return 0, err
	}
	return nOffset, nil
}

func readHeader(r io.Reader) (fields []string, n uint64, err error) {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, backtesterrors.NewDataError("event header", "truncated magic: "+err.Error())
	}
	if string(buf) != magic {
		return nil, 0, backtesterrors.NewDataError("event header", fmt.Sprintf("bad magic %q", buf))
	}
	endian := make([]byte, 1)
	if _, err := io.ReadFull(r, endian); err != nil {
		return nil, 0, backtesterrors.NewDataError("event header", "truncated endianness byte")
	}
	if endian[0] != littleEndian {
		return nil, 0, backtesterrors.NewDataError("event header", "unsupported endianness")
	}
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, 0, backtesterrors.NewDataError("event header", "truncated item size")
	}
	if size != itemSize {
		return nil, 0, backtesterrors.NewDataError("event header", fmt.Sprintf("item size %d does not match record layout %d", size, itemSize))
	}
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, backtesterrors.NewDataError("event header", "truncated field count")
	}
	names := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		var l uint16
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, 0, backtesterrors.NewDataError("event header", "truncated field name length")
		}
		nameBuf := make([]byte, l)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, 0, backtesterrors.NewDataError("event header", "truncated field name")
		}
		names = append(names, string(nameBuf))
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, 0, backtesterrors.NewDataError("event header", "truncated record count")
	}
	if strings.Join(names, ",") != strings.Join(fieldNames, ",") {
		return nil, 0, backtesterrors.NewDataError("event header", fmt.Sprintf("unexpected field layout %v", names))
	}
	return names, n, nil
}

func writeRecord(w io.Writer, e Event) error {
	var buf [itemSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Ev))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.ExchTs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.LocalTs))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(e.Px))
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(e.Qty))
	binary.LittleEndian.PutUint64(buf[40:48], e.OrderID)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(e.Ival))
	binary.LittleEndian.PutUint64(buf[56:64], math.Float64bits(e.Fval))
	_, err := w.Write(buf[:])
	return err
}

func readRecord(r io.Reader) (Event, error) {
	var buf [itemSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Event{}, err
	}
	return Event{
		Ev:      Flags(binary.LittleEndian.Uint64(buf[0:8])),
		ExchTs:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		LocalTs: int64(binary.LittleEndian.Uint64(buf[16:24])),
		Px:      math.Float64frombits(binary.LittleEndian.Uint64(buf[24:32])),
		Qty:     math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40])),
		OrderID: binary.LittleEndian.Uint64(buf[40:48]),
		Ival:    int64(binary.LittleEndian.Uint64(buf[48:56])),
		Fval:    math.Float64frombits(binary.LittleEndian.Uint64(buf[56:64])),
	}, nil
}

// Writer streams Event records to disk in the bit-exact format, rewriting
// the record count once the stream is closed (two-pass writer, §6).
//
// Uncompressed files use the underlying *os.File's Seek to patch the count
// in place. Gzip-compressed files cannot be seeked mid-stream, so records
// are buffered until Close and the whole payload (header + records) is
// written as a single gzip member whose Header.Name is "data" — the
// format's "single entry named data" container, expressed with the
// standard library's own gzip header name field rather than inventing a
// tar-like wrapper.
type Writer struct {
	f        *os.File
	buffered []Event
	bw       *bufio.Writer
	nOffset  int64
	count    uint64
	closed   bool
}

// NewWriter opens path for writing. When compressed is true the file is
// written as a single named gzip member.
func NewWriter(path string, compressed bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event file: %w", err)
	}
	w := &Writer{f: f}
	if compressed {
		w.buffered = make([]Event, 0, 1024)
		return w, nil
	}
	w.bw = bufio.NewWriter(f)
	off, err := writeHeader(w.bw, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("write event header: %w", err)
	}
	w.nOffset = off
	return w, nil
}

// Write appends a single record.
func (w *Writer) Write(e Event) error {
	if w.buffered != nil {
		w.buffered = append(w.buffered, e)
		return nil
	}
	if err := writeRecord(w.bw, e); err != nil {
		return fmt.Errorf("write event record: %w", err)
	}
	w.count++
	return nil
}

// Close flushes the payload and patches the final record count.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.f.Close()

	if w.buffered != nil {
		gz, err := gzip.NewWriterLevel(w.f, gzip.BestSpeed)
		if err != nil {
			return fmt.Errorf("open gzip writer: %w", err)
		}
		gz.Name = "data"
		bw := bufio.NewWriter(gz)
		if _, err := writeHeader(bw, uint64(len(w.buffered))); err != nil {
			return fmt.Errorf("write event header: %w", err)
		}
		for _, e := range w.buffered {
			if err := writeRecord(bw, e); err != nil {
				return fmt.Errorf("write event record: %w", err)
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return gz.Close()
	}

	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush event file: %w", err)
	}
	var nbuf [8]byte
	binary.LittleEndian.PutUint64(nbuf[:], w.count)
	if _, err := w.f.WriteAt(nbuf[:], w.nOffset); err != nil {
		return fmt.Errorf("patch event record count: %w", err)
	}
	return nil
}

// openRecordStream opens path (transparently gunzipping if it is a gzip
// member) and returns a reader positioned after the header, plus the
// record count from the header.
func openRecordStream(path string) (io.ReadCloser, io.Reader, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open event file: %w", err)
	}
	br := bufio.NewReader(f)
	peek, err := br.Peek(2)
	if err == nil && peek[0] == 0x1f && peek[1] == 0x8b {
		gz, gerr := gzip.NewReader(br)
		if gerr != nil {
			f.Close()
			return nil, nil, 0, backtesterrors.NewDataError(path, "invalid gzip member: "+gerr.Error())
		}
		_, n, herr := readHeader(gz)
		if herr != nil {
			f.Close()
			return nil, nil, 0, herr
		}
		return f, gz, n, nil
	}
	_, n, herr := readHeader(br)
	if herr != nil {
		f.Close()
		return nil, nil, 0, herr
	}
	return f, br, n, nil
}
