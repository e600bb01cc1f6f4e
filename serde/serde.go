// Package serde defines the serializer/deserializer capability the engines
// depend on. The engines hold one Serializer/Deserializer per role (key,
// value) plus a name-keyed map for headers; the full schema-registry-style
// lookup machinery is an external collaborator (spec out of scope) — this
// package only supplies the interfaces, built-in byte/string/JSON
// implementations, and a name-keyed HeaderRegistry in the same factory-map
// idiom the teacher uses for its sink and source driver registries.
package serde

import "encoding/json"

// Serializer produces bytes from a typed value.
type Serializer[T any] interface {
	Serialize(v T) ([]byte, error)
}

// Deserializer produces a typed value from bytes.
type Deserializer[T any] interface {
	Deserialize(b []byte) (T, error)
}

// SerializerFunc adapts a plain function to a Serializer.
type SerializerFunc[T any] func(T) ([]byte, error)

func (f SerializerFunc[T]) Serialize(v T) ([]byte, error) { return f(v) }

// DeserializerFunc adapts a plain function to a Deserializer.
type DeserializerFunc[T any] func([]byte) (T, error)

func (f DeserializerFunc[T]) Deserialize(b []byte) (T, error) { return f(b) }

// HeaderDeserializer deserializes a single named header's bytes into an
// opaque value the receiver downcasts.
type HeaderDeserializer interface {
	DeserializeHeader(name string, b []byte) (any, error)
}

// HeaderDeserializerFunc adapts a plain function to a HeaderDeserializer.
type HeaderDeserializerFunc func(name string, b []byte) (any, error)

func (f HeaderDeserializerFunc) DeserializeHeader(name string, b []byte) (any, error) {
	return f(name, b)
}

// Bytes is the identity Serializer/Deserializer for []byte.
var Bytes = bytesSerde{}

type bytesSerde struct{}

func (bytesSerde) Serialize(v []byte) ([]byte, error)   { return v, nil }
func (bytesSerde) Deserialize(b []byte) ([]byte, error) { return b, nil }

// String serializes/deserializes a plain UTF-8 string.
var String = stringSerde{}

type stringSerde struct{}

func (stringSerde) Serialize(v string) ([]byte, error)   { return []byte(v), nil }
func (stringSerde) Deserialize(b []byte) (string, error) { return string(b), nil }

// JSON builds a Serializer/Deserializer pair for T backed by encoding/json.
func JSON[T any]() jsonSerde[T] { return jsonSerde[T]{} }

type jsonSerde[T any] struct{}

func (jsonSerde[T]) Serialize(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonSerde[T]) Deserialize(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
