// Package raftstore implements the durable Raft log and index catalog: the
// index file, segmented log files, and snapshot files the consensus layer
// reads and writes through.
package raftstore

import (
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies the failure modes a raftstore operation can surface.
type Kind int

const (
	// KindNotInitialized is raised when an operation runs before the
	// owning manager has reached Ready.
	KindNotInitialized Kind = iota
	// KindIndexOutOfRange is raised on a read or truncate of an absent index.
	KindIndexOutOfRange
	// KindIndexGap is raised when an append would break log contiguity.
	KindIndexGap
	// KindInvariantViolation is raised when a save-* call would break a
	// catalog invariant; the mutation is never persisted.
	KindInvariantViolation
	// KindCorrupt is raised when a catalog record fails to decode, or its
	// invariants fail to hold, on load.
	KindCorrupt
	// KindIO wraps an underlying file error.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "NotInitialized"
	case KindIndexOutOfRange:
		return "IndexOutOfRange"
	case KindIndexGap:
		return "IndexGap"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindCorrupt:
		return "Corrupt"
	case KindIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the error type every raftstore operation returns on failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCorrupt) style sentinels match by Kind alone.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Kind == e.Kind && te.Msg == ""
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinels usable with errors.Is for kind-only matching.
var (
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrIndexOutOfRange    = &Error{Kind: KindIndexOutOfRange}
	ErrIndexGap           = &Error{Kind: KindIndexGap}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrCorrupt            = &Error{Kind: KindCorrupt}
	ErrIO                 = &Error{Kind: KindIO}
)

// GRPCStatus maps a raftstore error onto a gRPC status so server handlers
// can return it directly, the same way api/v1's ErrOffsetOutOfRange did in
// the teacher repo.
func (e *Error) GRPCStatus() *status.Status {
	code := codes.Unavailable
	switch e.Kind {
	case KindNotInitialized:
		code = codes.Unavailable
	case KindIndexOutOfRange:
		code = codes.OutOfRange
	case KindIndexGap:
		code = codes.FailedPrecondition
	case KindInvariantViolation:
		code = codes.FailedPrecondition
	case KindCorrupt:
		code = codes.DataLoss
	case KindIO:
		code = codes.Unavailable
	}
	st := status.New(code, e.Error())
	details := &errdetails.LocalizedMessage{Locale: "en-US", Message: e.Error()}
	withDetails, err := st.WithDetails(details)
	if err != nil {
		return st
	}
	return withDetails
}
