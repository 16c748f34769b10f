package channel

import (
	"encoding/json"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Codec encodes payloads and envelopes.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type msgpackCodec struct {
	h *codec.MsgpackHandle
}

func newMsgpack() *msgpackCodec {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return &msgpackCodec{h: h}
}

func (*msgpackCodec) Name() string { return "msgpack" }

func (m *msgpackCodec) Encode(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, m.h).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *msgpackCodec) Decode(data []byte, v any) error {
	return codec.NewDecoderBytes(data, m.h).Decode(v)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = newMsgpack()
)

// CodecByName resolves an encoding name. The empty name means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}
