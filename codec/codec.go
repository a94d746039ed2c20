// Package codec provides payload serialization for task submission.
// Arbitrary Go values are encoded once at submit time so the Task entity
// carries opaque bytes; typed worker handlers decode with the same codec.
package codec

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the payload serialization contract.
type Codec interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into the given value.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Codec name constants.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Unknown or empty names default to JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return &Msgpack{}
	default:
		return &JSON{}
	}
}

// JSON encodes payloads with encoding/json.
type JSON struct{}

func (c *JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (c *JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (c *JSON) Name() string { return NameJSON }

// Msgpack encodes payloads as MessagePack.
type Msgpack struct{}

func (c *Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (c *Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (c *Msgpack) Name() string { return NameMsgpack }
