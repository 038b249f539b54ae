// Package codec converts records to and from their persisted byte form.
//
// Every encoded record starts with a fixed header:
//
//	magic   "\xffKIN"   4 bytes
//	version 1 byte      codec format version
//	kind    1 byte      record.Kind of the payload
//
// followed by the msgpack encoding of the record struct. The header lets the
// store reject foreign or future data instead of misreading it.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/kinstore/internal/record"
)

const (
	magic      = "\xffKIN"
	headerSize = len(magic) + 2

	// Version is the codec format written by Encode.
	Version = byte(1)
)

// DecodeError reports bytes that cannot be turned back into a record.
// It signals corruption or data written by an incompatible build; callers
// must not retry.
type DecodeError struct {
	Kind   record.Kind
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Encode serialises r with the current codec version.
func Encode(r record.Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("encode: nil record")
	}
	kind := r.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("encode: invalid kind %d", uint8(kind))
	}

	var buf bytes.Buffer
	buf.Grow(256)
	buf.WriteString(magic)
	buf.WriteByte(Version)
	buf.WriteByte(byte(kind))

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. The kind must match the kind
// recorded in the header.
func Decode(kind record.Kind, data []byte) (record.Record, error) {
	payload, err := splitHeader(kind, data)
	if err != nil {
		return nil, err
	}

	r, err := record.New(kind)
	if err != nil {
		return nil, &DecodeError{Kind: kind, Reason: "unknown kind", Err: err}
	}

	rd := bytes.NewReader(payload)
	dec := msgpack.NewDecoder(rd)
	if err := dec.Decode(r); err != nil {
		return nil, &DecodeError{Kind: kind, Reason: "malformed body", Err: err}
	}
	if rd.Len() != 0 {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("%d trailing bytes", rd.Len())}
	}
	return r, nil
}

// PeekKind returns the kind stored in the header without decoding the body,
// so a record stored under the wrong kind can be told apart from a
// corrupt one.
func PeekKind(data []byte) (record.Kind, error) {
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return 0, &DecodeError{Reason: "missing header"}
	}
	k := record.Kind(data[len(magic)+1])
	if !k.Valid() {
		return 0, &DecodeError{Kind: k, Reason: "unknown kind in header"}
	}
	return k, nil
}

func splitHeader(kind record.Kind, data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("short input (%d bytes)", len(data))}
	}
	if string(data[:len(magic)]) != magic {
		return nil, &DecodeError{Kind: kind, Reason: "bad magic"}
	}
	if v := data[len(magic)]; v != Version {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("unsupported codec version %d", v)}
	}
	if got := record.Kind(data[len(magic)+1]); got != kind {
		return nil, &DecodeError{Kind: kind, Reason: fmt.Sprintf("header holds %s", got)}
	}
	return data[headerSize:], nil
}

// MarshalValue encodes an arbitrary metadata value.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a metadata value written by MarshalValue.
func UnmarshalValue(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: "malformed metadata value", Err: err}
	}
	return nil
}
