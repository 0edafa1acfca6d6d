package payload

import (
	"bytes"
	"reflect"

	"github.com/ugorji/go/codec"
)

// msgpackHandle 为共享的 msgpack handle。
// 解码到 interface{} 的 map 时统一使用 map[string]interface{}，与 JSON/CBOR 的行为对齐。
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{WriteExt: true}
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	h.Canonical = true
	return h
}()

// MsgpackCodec 使用 ugorji/go/codec 的 msgpack 实现。
type MsgpackCodec struct{}

var _ Codec = MsgpackCodec{}

func (MsgpackCodec) Name() string { return FormatMsgpack }

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, msgpackHandle).Decode(v)
}
