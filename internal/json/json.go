// Package json 基于 bytedance/sonic 提供与 encoding/json 兼容的编解码入口。
//
// 项目内所有 JSON 编解码统一走这里，便于集中切换 sonic 的配置。
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// api 使用与标准库行为一致的配置：map 键排序、转义 HTML、拒绝非法 UTF-8，
// 保证相同对象多次编码得到相同字节。
var api = sonic.ConfigStd

// Marshal 将 v 编码为 JSON。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent 将 v 编码为带缩进的 JSON。
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// MarshalString 将 v 编码为 JSON 字符串。
func MarshalString(v any) (string, error) {
	return api.MarshalToString(v)
}

// Unmarshal 将 JSON 数据解码到 v。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// NewDecoder 返回一个从 r 读取的流式解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}

// NewEncoder 返回一个写入 w 的流式编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// Valid 判断 data 是否为合法的 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}
