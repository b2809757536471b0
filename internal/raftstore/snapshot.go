package raftstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SnapshotStore persists opaque state-machine snapshot bytes, one file per
// snapshot id. Metadata (last_included_index/term) is not stored here; it
// lives in the catalog's SnapshotRange list, and a snapshot is only
// considered committed once that catalog entry has been flushed (spec
// §4.3's invariant).
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore opens (creating if needed) the snapshot directory.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, newErr(KindIO, "create snapshot dir", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (s *SnapshotStore) path(id uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d", id))
}

// SnapshotWriter is a writable handle for an in-progress snapshot install.
// Bytes are staged to a temp file and atomically renamed into place on
// Finalize, so a crash mid-install never leaves a partially-named
// snapshot file where a reader would find it.
type SnapshotWriter struct {
	f         *os.File
	tmpPath   string
	finalPath string
}

// BeginInstall opens a writable handle for snapshot id.
func (s *SnapshotStore) BeginInstall(id uint64) (*SnapshotWriter, error) {
	final := s.path(id)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, newErr(KindIO, "create snapshot temp file", err)
	}
	return &SnapshotWriter{f: f, tmpPath: tmp, finalPath: final}, nil
}

// WriteChunk appends bytes to the in-progress snapshot.
func (w *SnapshotWriter) WriteChunk(p []byte) error {
	if _, err := w.f.Write(p); err != nil {
		return newErr(KindIO, "write snapshot chunk", err)
	}
	return nil
}

// Finalize fsyncs and closes the staged file, then atomically publishes it
// under its final snapshot id name.
func (w *SnapshotWriter) Finalize() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return newErr(KindIO, "fsync snapshot", err)
	}
	if err := w.f.Close(); err != nil {
		return newErr(KindIO, "close snapshot", err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		return newErr(KindIO, "publish snapshot", err)
	}
	return nil
}

// Abort discards a staged-but-unfinished snapshot install.
func (w *SnapshotWriter) Abort() error {
	w.f.Close()
	return os.Remove(w.tmpPath)
}

// Read opens a snapshot's bytes for streaming. Callers must Close it.
func (s *SnapshotStore) Read(id uint64) (io.ReadCloser, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, newErr(KindIO, "open snapshot", err)
	}
	return f, nil
}

// Delete removes a snapshot's file.
func (s *SnapshotStore) Delete(id uint64) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return newErr(KindIO, "delete snapshot", err)
	}
	return nil
}
