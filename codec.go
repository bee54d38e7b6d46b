package triava

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// WriteMode selects whether a cache stores values by reference (Identity)
// or by their serialized byte form (Serialize). Serialize gives
// store-by-value semantics: a caller mutating the object it just Put can
// no longer observe that mutation through a subsequent Get, because the
// cache only ever held an encoded copy.
type WriteMode int

const (
	// WriteModeIdentity stores the value as-is. This is the default.
	WriteModeIdentity WriteMode = iota
	// WriteModeSerialize stores the value's encoded bytes, via the
	// configured Codec.
	WriteModeSerialize
)

// Codec encodes and decodes values for WriteModeSerialize. The core cache
// only depends on this interface; it does not implement a general
// serialization framework.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// GobCodec is a reference Codec built on encoding/gob. Register any
// concrete types V embeds via interfaces with gob.Register before using
// this codec for them.
type GobCodec[V any] struct{}

func (GobCodec[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: gob encode: %v", ErrSerializationError, err)
	}
	return buf.Bytes(), nil
}

func (GobCodec[V]) Decode(raw []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return v, fmt.Errorf("%w: gob decode: %v", ErrSerializationError, err)
	}
	return v, nil
}

// noopCodec is used internally when WriteModeIdentity is active, so
// holder methods never need a nil check for the codec argument.
type noopCodec[V any] struct{}

func (noopCodec[V]) Encode(V) ([]byte, error) { return nil, nil }
func (noopCodec[V]) Decode([]byte) (V, error) { var v V; return v, nil }
