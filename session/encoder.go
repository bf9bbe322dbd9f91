package session

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	recordFormatV1 = 1

	// version + uid length byte + three int64 timestamps + uint32 rotation
	recordFixedSize = 1 + 1 + 8*3 + 4
)

var errCorruptRecord = errors.New("session record corrupt")

// Encode serializes r in the v1 binary layout:
//
//	[1]version [1]len(uid) uid [8]issued_ms [8]last_ms [8]abs_exp_ms [4]rotation
//
// All integers are big-endian. The touch script depends on this layout.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil session record")
	}
	if r.UserID == "" {
		return nil, errors.New("session user id required")
	}
	if len(r.UserID) > 255 {
		return nil, errors.New("session user id too long")
	}

	buf := make([]byte, 0, recordFixedSize+len(r.UserID))
	buf = append(buf, recordFormatV1, byte(len(r.UserID)))
	buf = append(buf, r.UserID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.IssuedAt.UnixMilli()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.LastActivityAt.UnixMilli()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.AbsoluteExpiresAt.UnixMilli()))
	buf = binary.BigEndian.AppendUint32(buf, r.Rotation)

	return buf, nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Record, error) {
	if len(data) < recordFixedSize || data[0] != recordFormatV1 {
		return nil, errCorruptRecord
	}

	uidLen := int(data[1])
	if uidLen == 0 || len(data) != recordFixedSize+uidLen {
		return nil, errCorruptRecord
	}

	idx := 2
	r := &Record{UserID: string(data[idx : idx+uidLen])}
	idx += uidLen

	r.IssuedAt = readMillis(data[idx:])
	idx += 8
	r.LastActivityAt = readMillis(data[idx:])
	idx += 8
	r.AbsoluteExpiresAt = readMillis(data[idx:])
	idx += 8
	r.Rotation = binary.BigEndian.Uint32(data[idx:])

	return r, nil
}

func readMillis(b []byte) time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(b)))
}

func encodeMillis(t time.Time) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(t.UnixMilli()))
}
