package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Count int
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := NewJSONCodec[widget]("widget")
	w := widget{Name: "bolt", Count: 3}

	assert.True(t, codec.Matches(w))
	assert.False(t, codec.Matches("not a widget"))

	env, err := codec.Encode(w)
	require.NoError(t, err)
	assert.Equal(t, "widget", env.Type)
	assert.Equal(t, "json", env.Encoding)

	decoded, err := codec.Decode(env)
	require.NoError(t, err)
	assert.Equal(t, w, decoded)
}

func TestRegistry_EncodeDecode(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONCodec[widget]("widget"))
	r.Register(NewJSONCodec[string]("string"))

	env, err := r.Encode(widget{Name: "nut", Count: 7})
	require.NoError(t, err)

	v, ok := r.Decode(env)
	require.True(t, ok)
	assert.Equal(t, widget{Name: "nut", Count: 7}, v)
}

func TestRegistry_EncodeUnregisteredType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Encode(42)
	assert.Error(t, err)
}

func TestRegistry_DecodeUnknownType(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONCodec[widget]("widget"))

	_, ok := r.Decode(Envelope{Type: "unknown", Payload: "{}"})
	assert.False(t, ok)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register(NewJSONCodec[widget]("widget"))
	r.Register(NewJSONCodec[widget]("widget"))

	env, err := r.Encode(widget{Name: "x", Count: 1})
	require.NoError(t, err)
	_, ok := r.Decode(env)
	assert.True(t, ok)
}
