package payload

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var reflectMapStringAny = reflect.TypeOf(map[string]any(nil))

// CBORCodec 使用 fxamacker/cbor 实现，编码采用 Core Deterministic 模式，
// 同一对象多次编码得到相同字节。
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = CBORCodec{}

func newCBORCodec() CBORCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflectMapStringAny,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return CBORCodec{enc: enc, dec: dec}
}

func (CBORCodec) Name() string { return FormatCBOR }

func (c CBORCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBORCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
