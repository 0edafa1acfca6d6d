package compressor

import (
	"github.com/golang/snappy"
)

// SnappyCompressor 使用 snappy 块格式压缩帧负载，无状态。
type SnappyCompressor struct{}

var _ Compressor = SnappyCompressor{}

func (SnappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:cap(dst)], src), nil
}

func (SnappyCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst[:cap(dst)], src)
}
