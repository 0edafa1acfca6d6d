// Package compressor 提供帧负载的压缩实现，压缩算法由帧头中的 flag 标识。
package compressor

import (
	"strings"
	"sync"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// Kind 标识一种压缩算法，数值直接写入帧头 flags 的低位。
type Kind uint8

const (
	KindNone   Kind = 0
	KindZstd   Kind = 0x01
	KindSnappy Kind = 0x02

	// KindMask 覆盖帧头 flags 中表示压缩算法的位。
	KindMask = 0x0F
)

// String 返回配置文件中使用的算法名称。
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindZstd:
		return "zstd"
	case KindSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// ParseKind 将配置中的压缩算法名解析为 Kind，空字符串等价于 none。
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return KindNone, nil
	case "zstd":
		return KindZstd, nil
	case "snappy":
		return KindSnappy, nil
	default:
		return KindNone, merr.WrapErrParameterInvalidMsg("unknown compression %q", name)
	}
}

// Compressor 抽象了“单次压缩/解压”能力，一次调用处理一个完整的帧负载。
// 实现必须可被多个会话并发使用。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]，返回压缩结果。
	Compress(dst, src []byte) ([]byte, error)

	// Decompress 将 Compress 的输出 src 解压后追加到 dst[:0]。
	Decompress(dst, src []byte) ([]byte, error)
}

// NopCompressor 不做任何压缩，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}

var (
	zstdOnce sync.Once
	zstdInst *ZstdCompressor
	zstdErr  error
)

// Get 返回 kind 对应的共享 Compressor 实例，zstd 的 encoder/decoder 在首次使用时创建。
func Get(kind Kind) (Compressor, error) {
	switch kind {
	case KindNone:
		return NopCompressor{}, nil
	case KindSnappy:
		return SnappyCompressor{}, nil
	case KindZstd:
		zstdOnce.Do(func() {
			zstdInst, zstdErr = NewZstdCompressor()
		})
		if zstdErr != nil {
			return nil, zstdErr
		}
		return zstdInst, nil
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown compression kind 0x%02x", uint8(kind))
	}
}
