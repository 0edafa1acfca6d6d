package marshalling

import (
	"github.com/blang/semver/v4"
)

// 协议版本差异：
//   - v1：帧不带校验和；
//   - v2：每帧追加 xxhash64 校验和；
//   - v3：在 v2 基础上，流头携带写端会话 ID。
const (
	MinVersion     = 1
	MaxVersion     = 3
	DefaultVersion = MaxVersion

	versionChecksum = 2
	versionStreamID = 3
)

var supportedRange = semver.MustParseRange(">=1.0.0 <4.0.0")

// ProtocolVersion 将整数协议版本转换为 semver 形式，便于做范围判断。
func ProtocolVersion(v int) semver.Version {
	if v < 0 {
		v = 0
	}
	return semver.Version{Major: uint64(v)}
}

// IsSupportedVersion 判断 v 是否在当前引擎支持的协议版本范围内。
func IsSupportedVersion(v int) bool {
	return supportedRange(ProtocolVersion(v))
}

// canRead 判断配置为 reader 版本的读端能否读取 stream 版本写出的流：
// 读端向下兼容所有不高于自身的版本。
func canRead(reader, stream int) bool {
	return IsSupportedVersion(stream) && ProtocolVersion(stream).LTE(ProtocolVersion(reader))
}
