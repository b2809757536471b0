package raftstore

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Catalog record and segment payload encoding use the protobuf wire format
// directly via protowire, rather than generated .proto message types: the
// catalog's schema is small and internal-only, and this mirrors the
// original store's use of a lightweight, codegen-free protobuf writer for
// the same purpose.

const (
	fieldCurrentTerm         protowire.Number = 1
	fieldVotedFor            protowire.Number = 2
	fieldMember              protowire.Number = 3
	fieldMemberAfterConsensus protowire.Number = 4
	fieldNodeAddr            protowire.Number = 5
	fieldLogs                protowire.Number = 6
	fieldSnapshots           protowire.Number = 7
	fieldStableKV            protowire.Number = 8

	fieldNodeAddrID   protowire.Number = 1
	fieldNodeAddrAddr protowire.Number = 2

	fieldLogRangeID          protowire.Number = 1
	fieldLogRangeStartIndex  protowire.Number = 2
	fieldLogRangePreTerm     protowire.Number = 3
	fieldLogRangeRecordCount protowire.Number = 4
	fieldLogRangeIsClose     protowire.Number = 5
	fieldLogRangeMarkRemove  protowire.Number = 6

	fieldSnapshotID                 protowire.Number = 1
	fieldSnapshotLastIncludedIndex  protowire.Number = 2
	fieldSnapshotLastIncludedTerm   protowire.Number = 3

	fieldStableKVKey   protowire.Number = 1
	fieldStableKVValue protowire.Number = 2

	fieldEntryIndex       protowire.Number = 1
	fieldEntryTerm        protowire.Number = 2
	fieldEntryPayloadType protowire.Number = 3
	fieldEntryPayload     protowire.Number = 4
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	var n uint64
	if v {
		n = 1
	}
	return appendVarintField(b, num, n)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	return appendBytesField(b, num, []byte(v))
}

// stableKV is the auxiliary key/value section backing raft.StableStore's
// arbitrary-key API (SPEC_FULL.md §5.5).
type stableKV struct {
	Key   string
	Value []byte
}

func encodeLogRange(lr LogRange) []byte {
	var b []byte
	b = appendVarintField(b, fieldLogRangeID, lr.ID)
	b = appendVarintField(b, fieldLogRangeStartIndex, lr.StartIndex)
	b = appendVarintField(b, fieldLogRangePreTerm, lr.PreTerm)
	b = appendVarintField(b, fieldLogRangeRecordCount, lr.RecordCount)
	b = appendBoolField(b, fieldLogRangeIsClose, lr.IsClose)
	b = appendBoolField(b, fieldLogRangeMarkRemove, lr.MarkRemove)
	return b
}

func decodeLogRange(b []byte) (LogRange, error) {
	var lr LogRange
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return lr, newErr(KindCorrupt, "bad log range tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldLogRangeID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range id", nil)
			}
			lr.ID = v
			b = b[n:]
		case fieldLogRangeStartIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range start_index", nil)
			}
			lr.StartIndex = v
			b = b[n:]
		case fieldLogRangePreTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range pre_term", nil)
			}
			lr.PreTerm = v
			b = b[n:]
		case fieldLogRangeRecordCount:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range record_count", nil)
			}
			lr.RecordCount = v
			b = b[n:]
		case fieldLogRangeIsClose:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range is_close", nil)
			}
			lr.IsClose = v != 0
			b = b[n:]
		case fieldLogRangeMarkRemove:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range mark_remove", nil)
			}
			lr.MarkRemove = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return lr, newErr(KindCorrupt, "bad log range field", nil)
			}
			b = b[n:]
		}
	}
	return lr, nil
}

func encodeSnapshotRange(sr SnapshotRange) []byte {
	var b []byte
	b = appendVarintField(b, fieldSnapshotID, sr.ID)
	b = appendVarintField(b, fieldSnapshotLastIncludedIndex, sr.LastIncludedIndex)
	b = appendVarintField(b, fieldSnapshotLastIncludedTerm, sr.LastIncludedTerm)
	return b
}

func decodeSnapshotRange(b []byte) (SnapshotRange, error) {
	var sr SnapshotRange
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return sr, newErr(KindCorrupt, "bad snapshot range tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldSnapshotID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return sr, newErr(KindCorrupt, "bad snapshot id", nil)
			}
			sr.ID = v
			b = b[n:]
		case fieldSnapshotLastIncludedIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return sr, newErr(KindCorrupt, "bad snapshot last_included_index", nil)
			}
			sr.LastIncludedIndex = v
			b = b[n:]
		case fieldSnapshotLastIncludedTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return sr, newErr(KindCorrupt, "bad snapshot last_included_term", nil)
			}
			sr.LastIncludedTerm = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return sr, newErr(KindCorrupt, "bad snapshot field", nil)
			}
			b = b[n:]
		}
	}
	return sr, nil
}

// encodeCatalog serializes a RaftIndexDto to the catalog record format.
func encodeCatalog(idx RaftIndexDto) []byte {
	var b []byte
	b = appendVarintField(b, fieldCurrentTerm, idx.CurrentTerm)
	b = appendVarintField(b, fieldVotedFor, idx.VotedFor)
	for _, m := range idx.Member {
		b = appendVarintField(b, fieldMember, m)
	}
	for _, m := range idx.MemberAfterConsensus {
		b = appendVarintField(b, fieldMemberAfterConsensus, m)
	}
	// Deterministic ordering keeps Encode(Decode(x)) byte-stable for tests.
	for _, id := range sortedUint64Keys(idx.NodeAddrs) {
		var sub []byte
		sub = appendVarintField(sub, fieldNodeAddrID, id)
		sub = appendStringField(sub, fieldNodeAddrAddr, idx.NodeAddrs[id])
		b = appendBytesField(b, fieldNodeAddr, sub)
	}
	for _, lr := range idx.Logs {
		b = appendBytesField(b, fieldLogs, encodeLogRange(lr))
	}
	for _, sr := range idx.Snapshots {
		b = appendBytesField(b, fieldSnapshots, encodeSnapshotRange(sr))
	}
	for _, kv := range idx.StableKV {
		var sub []byte
		sub = appendStringField(sub, fieldStableKVKey, kv.Key)
		sub = appendBytesField(sub, fieldStableKVValue, kv.Value)
		b = appendBytesField(b, fieldStableKV, sub)
	}
	return b
}

// decodeCatalog parses a catalog record back into a RaftIndexDto.
func decodeCatalog(b []byte) (RaftIndexDto, error) {
	var idx RaftIndexDto
	idx.NodeAddrs = make(map[uint64]string)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return idx, newErr(KindCorrupt, "bad catalog tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldCurrentTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad current_term", nil)
			}
			idx.CurrentTerm = v
			b = b[n:]
		case fieldVotedFor:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad voted_for", nil)
			}
			idx.VotedFor = v
			b = b[n:]
		case fieldMember:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad member", nil)
			}
			idx.Member = append(idx.Member, v)
			b = b[n:]
		case fieldMemberAfterConsensus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad member_after_consensus", nil)
			}
			idx.MemberAfterConsensus = append(idx.MemberAfterConsensus, v)
			b = b[n:]
		case fieldNodeAddr:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad node_addr entry", nil)
			}
			id, addr, err := decodeNodeAddr(v)
			if err != nil {
				return idx, err
			}
			idx.NodeAddrs[id] = addr
			b = b[n:]
		case fieldLogs:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad logs entry", nil)
			}
			lr, err := decodeLogRange(v)
			if err != nil {
				return idx, err
			}
			idx.Logs = append(idx.Logs, lr)
			b = b[n:]
		case fieldSnapshots:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad snapshots entry", nil)
			}
			sr, err := decodeSnapshotRange(v)
			if err != nil {
				return idx, err
			}
			idx.Snapshots = append(idx.Snapshots, sr)
			b = b[n:]
		case fieldStableKV:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad stable_kv entry", nil)
			}
			kv, err := decodeStableKV(v)
			if err != nil {
				return idx, err
			}
			idx.StableKV = append(idx.StableKV, kv)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return idx, newErr(KindCorrupt, "bad catalog field", nil)
			}
			b = b[n:]
		}
	}
	return idx, nil
}

func decodeNodeAddr(b []byte) (uint64, string, error) {
	var id uint64
	var addr string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, "", newErr(KindCorrupt, "bad node_addr tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldNodeAddrID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, "", newErr(KindCorrupt, "bad node_addr id", nil)
			}
			id = v
			b = b[n:]
		case fieldNodeAddrAddr:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, "", newErr(KindCorrupt, "bad node_addr addr", nil)
			}
			addr = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, "", newErr(KindCorrupt, "bad node_addr field", nil)
			}
			b = b[n:]
		}
	}
	return id, addr, nil
}

func decodeStableKV(b []byte) (stableKV, error) {
	var kv stableKV
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return kv, newErr(KindCorrupt, "bad stable_kv tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldStableKVKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return kv, newErr(KindCorrupt, "bad stable_kv key", nil)
			}
			kv.Key = string(v)
			b = b[n:]
		case fieldStableKVValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return kv, newErr(KindCorrupt, "bad stable_kv value", nil)
			}
			kv.Value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return kv, newErr(KindCorrupt, "bad stable_kv field", nil)
			}
			b = b[n:]
		}
	}
	return kv, nil
}

func encodeLogEntry(e LogEntry) []byte {
	var b []byte
	b = appendVarintField(b, fieldEntryIndex, e.Index)
	b = appendVarintField(b, fieldEntryTerm, e.Term)
	b = appendVarintField(b, fieldEntryPayloadType, uint64(e.PayloadType))
	b = appendBytesField(b, fieldEntryPayload, e.PayloadBytes)
	return b
}

func decodeLogEntry(b []byte) (LogEntry, error) {
	var e LogEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, newErr(KindCorrupt, "bad entry tag", nil)
		}
		b = b[n:]
		switch num {
		case fieldEntryIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, newErr(KindCorrupt, "bad entry index", nil)
			}
			e.Index = v
			b = b[n:]
		case fieldEntryTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, newErr(KindCorrupt, "bad entry term", nil)
			}
			e.Term = v
			b = b[n:]
		case fieldEntryPayloadType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, newErr(KindCorrupt, "bad entry payload_type", nil)
			}
			e.PayloadType = PayloadType(v)
			b = b[n:]
		case fieldEntryPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, newErr(KindCorrupt, "bad entry payload", nil)
			}
			e.PayloadBytes = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, newErr(KindCorrupt, "bad entry field", nil)
			}
			b = b[n:]
		}
	}
	return e, nil
}

func sortedUint64Keys(m map[uint64]string) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine: node_addrs maps stay small (cluster-sized).
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
