package raftadapter

import (
	"context"
	"encoding/binary"
)

// Set implements raft.StableStore's generic key/value API over the
// catalog's stable_kv section. This is deliberately independent of
// LoadHardState/SaveHardState's current_term/voted_for fields: those mirror
// the spec's own hard-state operation, while raft itself persists its
// CurrentTerm/LastVoteTerm/LastVoteCand bookkeeping as ordinary stable keys
// here, the same way it would against any raft.StableStore implementation.
func (s *Store) Set(key []byte, val []byte) error {
	return s.mgr.SaveStableKV(context.Background(), string(key), val)
}

// Get returns the value stored for key, or nil if absent (matching
// raft-boltdb's behavior of returning a nil slice rather than an error).
func (s *Store) Get(key []byte) ([]byte, error) {
	v, ok, err := s.mgr.LoadStableValue(context.Background(), string(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

// SetUint64 stores val as an 8-byte big-endian value under key.
func (s *Store) SetUint64(key []byte, val uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], val)
	return s.Set(key, b[:])
}

// GetUint64 reads back a value stored by SetUint64, returning 0 if absent.
func (s *Store) GetUint64(key []byte) (uint64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}
