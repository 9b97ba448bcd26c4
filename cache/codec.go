package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Envelope is the wire format stored against every cache key, carrying
// enough information to decode the payload back into its Go type without
// the backend itself knowing anything about step value types.
type Envelope struct {
	Type     string `json:"type"`
	Payload  string `json:"payload"`
	Encoding string `json:"encoding"` // "json" or "protobuf"
}

// Codec encodes/decodes one Go type into/out of an Envelope.
type Codec interface {
	TypeName() string
	Matches(v any) bool
	Encode(v any) (Envelope, error)
	Decode(env Envelope) (any, error)
}

// jsonCodec encodes values of type T as JSON.
type jsonCodec struct {
	typeName string
	rt       reflect.Type
}

// NewJSONCodec registers T under typeName, encoding/decoding via
// encoding/json. Use for step value types with no protobuf definition.
func NewJSONCodec[T any](typeName string) Codec {
	var zero T
	return &jsonCodec{typeName: typeName, rt: reflect.TypeOf(zero)}
}

func (c *jsonCodec) TypeName() string { return c.typeName }

func (c *jsonCodec) Matches(v any) bool {
	return v != nil && reflect.TypeOf(v) == c.rt
}

func (c *jsonCodec) Encode(v any) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: c.typeName, Payload: string(b), Encoding: "json"}, nil
}

func (c *jsonCodec) Decode(env Envelope) (any, error) {
	ptr := reflect.New(c.rt)
	if err := json.Unmarshal([]byte(env.Payload), ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// protoCodec encodes proto.Message values as base64-wrapped protobuf bytes.
type protoCodec struct {
	typeName string
	newFunc  func() proto.Message
}

// NewProtoCodec registers a proto.Message type under typeName. newFunc must
// return a fresh zero-value message the decoder can unmarshal into.
func NewProtoCodec(typeName string, newFunc func() proto.Message) Codec {
	return &protoCodec{typeName: typeName, newFunc: newFunc}
}

func (c *protoCodec) TypeName() string { return c.typeName }

func (c *protoCodec) Matches(v any) bool {
	msg, ok := v.(proto.Message)
	if !ok {
		return false
	}
	return reflect.TypeOf(msg) == reflect.TypeOf(c.newFunc())
}

func (c *protoCodec) Encode(v any) (Envelope, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return Envelope{}, fmt.Errorf("cache: value does not implement proto.Message")
	}
	raw, err := proto.Marshal(msg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:     c.typeName,
		Payload:  base64.StdEncoding.EncodeToString(raw),
		Encoding: "protobuf",
	}, nil
}

func (c *protoCodec) Decode(env Envelope) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, err
	}
	msg := c.newFunc()
	if err := proto.Unmarshal(raw, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Registry maps step value types to the Codec that knows how to put them in
// an Envelope and take them back out.
type Registry struct {
	byType map[string]Codec
	codecs []Codec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Codec)}
}

// Register adds c to the registry. Later registrations with the same
// TypeName replace earlier ones.
func (r *Registry) Register(c Codec) {
	r.byType[c.TypeName()] = c
	r.codecs = append(r.codecs, c)
}

// Encode finds the codec whose Matches(v) is true and encodes v with it.
func (r *Registry) Encode(v any) (Envelope, error) {
	for _, c := range r.codecs {
		if c.Matches(v) {
			return c.Encode(v)
		}
	}
	return Envelope{}, fmt.Errorf("cache: no codec registered for type %T", v)
}

// Decode looks up the codec named by env.Type and decodes the payload.
// ok is false when no codec is registered for that type name, which the
// caller should treat as a cache miss rather than an error - the stored
// value belongs to a type this process build no longer knows about.
func (r *Registry) Decode(env Envelope) (any, bool) {
	c, found := r.byType[env.Type]
	if !found {
		return nil, false
	}
	v, err := c.Decode(env)
	if err != nil {
		return nil, false
	}
	return v, true
}
