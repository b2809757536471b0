package raftstore

import (
	"encoding/binary"
	"io"
	"os"
)

// lenPrefixWidth is the size, in bytes, of the big-endian length prefix
// every framed record carries.
const lenPrefixWidth = 4

// maxRecordLen bounds a single record's declared length so a torn or
// corrupt length prefix can never be mistaken for a request to allocate an
// unreasonable amount of memory.
const maxRecordLen = 256 << 20

// FileMessageWriter appends length-prefixed records to a file. It only
// writes at the end of the file; callers that need to overwrite a fixed region use the underlying
// *os.File directly (see manager.go's last_applied_log header writes).
type FileMessageWriter struct {
	f *os.File
}

// NewFileMessageWriter wraps f for append-only framed writes.
func NewFileMessageWriter(f *os.File) *FileMessageWriter {
	return &FileMessageWriter{f: f}
}

// Write appends one framed record: a 4-byte big-endian length followed by
// p. It does not flush; callers call Sync explicitly per the manager's
// group-commit policy.
func (w *FileMessageWriter) Write(p []byte) (pos int64, err error) {
	off, err := w.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, newErr(KindIO, "seek to end", err)
	}
	var hdr [lenPrefixWidth]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := w.f.Write(hdr[:]); err != nil {
		return 0, newErr(KindIO, "write record length", err)
	}
	if _, err := w.f.Write(p); err != nil {
		return 0, newErr(KindIO, "write record body", err)
	}
	return off, nil
}

// Sync flushes pending writes to stable storage.
func (w *FileMessageWriter) Sync() error {
	if err := w.f.Sync(); err != nil {
		return newErr(KindIO, "fsync", err)
	}
	return nil
}

// FileMessageReader advances sequentially through a stream of framed
// records starting at a byte offset. A partial header or body at EOF is
// reported as io.EOF (tail-truncation recovery); any internal length
// inconsistency is reported as a *Error with KindCorrupt.
type FileMessageReader struct {
	f   *os.File
	off int64
}

// NewFileMessageReader positions a reader at the given byte offset.
func NewFileMessageReader(f *os.File, offset int64) *FileMessageReader {
	return &FileMessageReader{f: f, off: offset}
}

// Offset reports the reader's current byte position.
func (r *FileMessageReader) Offset() int64 { return r.off }

// ReadNext returns the next record's payload and advances past it. It
// returns io.EOF when no more complete records remain (including a torn
// trailing record left by a crash mid-append), or a *Error(KindCorrupt) if
// the declared length is internally inconsistent (e.g. longer than the
// remaining file).
func (r *FileMessageReader) ReadNext() ([]byte, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return nil, newErr(KindIO, "stat", err)
	}
	size := fi.Size()

	if r.off+lenPrefixWidth > size {
		return nil, io.EOF
	}
	var hdr [lenPrefixWidth]byte
	if _, err := r.f.ReadAt(hdr[:], r.off); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, newErr(KindIO, "read record length", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxRecordLen {
		return nil, newErr(KindCorrupt, "record length exceeds maximum", nil)
	}
	bodyStart := r.off + lenPrefixWidth
	bodyEnd := bodyStart + int64(n)
	if bodyEnd > size {
		// The declared body runs past the end of the file: a torn trailing
		// record left by a crash mid-append, whether none or only part of
		// its body bytes landed. Report it as the end of the stream.
		return nil, io.EOF
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := r.f.ReadAt(buf, bodyStart); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, newErr(KindIO, "read record body", err)
		}
	}
	r.off = bodyEnd
	return buf, nil
}
