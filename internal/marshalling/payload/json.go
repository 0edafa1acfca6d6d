package payload

import (
	"github.com/lk2023060901/danmu-marshalling/internal/json"
)

// JSONCodec 使用 internal/json（基于 bytedance/sonic）实现。
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Name() string { return FormatJSON }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
