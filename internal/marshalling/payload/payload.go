// Package payload 负责对象记录中“对象体”的编解码。
//
// 对象的类型名、实例句柄由会话层写出，这里只处理对象本身的字段，
// 具体格式由 Configuration.PayloadFormat 选择。
package payload

import (
	"strings"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

const (
	FormatMsgpack = "msgpack"
	FormatJSON    = "json"
	FormatCBOR    = "cbor"
)

// Codec 抽象了“对象 <-> 字节”的编解码能力，实现必须并发安全。
type Codec interface {
	// Name 返回格式名，与配置中的 PayloadFormat 一致。
	Name() string

	// Marshal 将对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到 v，v 必须是非 nil 指针。
	Unmarshal(data []byte, v any) error
}

var codecs = map[string]Codec{
	FormatMsgpack: MsgpackCodec{},
	FormatJSON:    JSONCodec{},
	FormatCBOR:    newCBORCodec(),
}

// Get 按格式名返回 Codec，空字符串返回默认的 msgpack。
func Get(format string) (Codec, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	if name == "" {
		name = FormatMsgpack
	}
	c, ok := codecs[name]
	if !ok {
		return nil, merr.WrapErrParameterInvalidMsg("unknown payload format %q", format)
	}
	return c, nil
}

// Formats 返回所有支持的格式名。
func Formats() []string {
	return []string{FormatMsgpack, FormatJSON, FormatCBOR}
}
