package marshalling

import (
	"fmt"
	"strings"

	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/hashstructure"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/compressor"
	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/payload"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

const (
	// DefaultBufferSize 为单帧负载的目标大小，攒够后即写出一帧。
	DefaultBufferSize = 512
	// DefaultInstanceCount 为实例句柄表的初始容量。
	DefaultInstanceCount = 256

	minBufferSize = 64
	maxFrameSize  = 16 * 1024 * 1024 // 16MB
)

// Configuration 是一次会话使用的全部选项。
//
// 基础配置在测试套件中只构造一次，每次往返的读写两侧各 Clone 一份再按需修改，
// 因此对副本的任何修改都不会影响基础配置或另一侧的副本。
type Configuration struct {
	// Version 为写出时使用的协议版本，或读取时能接受的最高协议版本。
	Version int `mapstructure:"version"`
	// TypeRegistry 为类型名解析策略，nil 时只支持内置类型。
	TypeRegistry *TypeRegistry `mapstructure:"-"`
	// ObjectResolver 在写出前、读入后替换对象，nil 时不做替换。
	ObjectResolver ObjectResolver `mapstructure:"-"`
	// ExternalizerFactory 为类型选择 Externalizer，nil 时全部走默认对象体编码。
	ExternalizerFactory ExternalizerFactory `mapstructure:"-"`
	// BufferSize 为单帧负载的目标大小。
	BufferSize int `mapstructure:"bufferSize"`
	// InstanceCount 为实例句柄表的初始容量。
	InstanceCount int `mapstructure:"instanceCount"`
	// PayloadFormat 为对象体格式：msgpack、json 或 cbor。
	PayloadFormat string `mapstructure:"payloadFormat"`
	// Compression 为帧压缩算法：none、zstd 或 snappy。
	Compression string `mapstructure:"compression"`
	// Properties 是附加在配置上的自由键值，随 Clone 深拷贝。
	Properties map[string]any `mapstructure:"properties"`
}

// Option 修改 Configuration。
type Option func(*Configuration)

func WithVersion(v int) Option {
	return func(c *Configuration) { c.Version = v }
}

func WithTypeRegistry(r *TypeRegistry) Option {
	return func(c *Configuration) { c.TypeRegistry = r }
}

func WithObjectResolver(r ObjectResolver) Option {
	return func(c *Configuration) { c.ObjectResolver = r }
}

func WithExternalizerFactory(f ExternalizerFactory) Option {
	return func(c *Configuration) { c.ExternalizerFactory = f }
}

func WithBufferSize(n int) Option {
	return func(c *Configuration) { c.BufferSize = n }
}

func WithInstanceCount(n int) Option {
	return func(c *Configuration) { c.InstanceCount = n }
}

func WithPayloadFormat(format string) Option {
	return func(c *Configuration) { c.PayloadFormat = format }
}

func WithCompression(name string) Option {
	return func(c *Configuration) { c.Compression = name }
}

func WithProperty(key string, value any) Option {
	return func(c *Configuration) {
		if c.Properties == nil {
			c.Properties = make(map[string]any)
		}
		c.Properties[key] = value
	}
}

// DefaultConfiguration 返回使用默认值的配置，再依次应用 opts。
func DefaultConfiguration(opts ...Option) *Configuration {
	c := &Configuration{
		Version:       DefaultVersion,
		TypeRegistry:  NewTypeRegistry(),
		BufferSize:    DefaultBufferSize,
		InstanceCount: DefaultInstanceCount,
		PayloadFormat: payload.FormatMsgpack,
		Compression:   compressor.KindNone.String(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone 返回一个完全独立的副本：类型注册表、可克隆的 ObjectResolver 与 Properties 都会被深拷贝。
// ExternalizerFactory 是无状态函数，直接共享。
func (c *Configuration) Clone() (*Configuration, error) {
	if c == nil {
		return nil, merr.WrapErrConfigClone(merr.WrapErrParameterInvalidMsg("configuration is nil"))
	}
	clone := *c
	if c.TypeRegistry != nil {
		clone.TypeRegistry = c.TypeRegistry.Clone()
	}
	if rc, ok := c.ObjectResolver.(ResolverCloner); ok {
		clone.ObjectResolver = rc.CloneResolver()
	}
	if c.Properties != nil {
		props, err := copystructure.Copy(c.Properties)
		if err != nil {
			return nil, merr.WrapErrConfigClone(err, "properties")
		}
		clone.Properties = props.(map[string]any)
	}
	return &clone, nil
}

// Validate 检查配置是否可以用来创建会话。
func (c *Configuration) Validate() error {
	if !IsSupportedVersion(c.Version) {
		return merr.WrapErrConfigInvalidRange("version", c.Version, MinVersion, MaxVersion)
	}
	if c.BufferSize < minBufferSize || c.BufferSize > maxFrameSize {
		return merr.WrapErrConfigInvalidRange("bufferSize", c.BufferSize, minBufferSize, maxFrameSize)
	}
	if c.InstanceCount < 0 {
		return merr.WrapErrConfigInvalid("instanceCount", c.InstanceCount, "must not be negative")
	}
	if _, err := payload.Get(c.PayloadFormat); err != nil {
		return merr.WrapErrConfigInvalid("payloadFormat", c.PayloadFormat)
	}
	if _, err := compressor.ParseKind(c.Compression); err != nil {
		return merr.WrapErrConfigInvalid("compression", c.Compression)
	}
	return nil
}

// String 用于诊断输出，包含协议版本。
func (c *Configuration) String() string {
	if c == nil {
		return "Configuration<nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration{version=%d, bufferSize=%d, instanceCount=%d, payload=%s, compression=%s",
		c.Version, c.BufferSize, c.InstanceCount, c.payloadFormat(), c.compressionName())
	fmt.Fprintf(&sb, ", types=%v", c.TypeRegistry.Names())
	if c.ObjectResolver != nil {
		fmt.Fprintf(&sb, ", resolver=%v", c.ObjectResolver)
	}
	if c.ExternalizerFactory != nil {
		sb.WriteString(", externalizers=on")
	}
	if len(c.Properties) > 0 {
		fmt.Fprintf(&sb, ", properties=%v", c.Properties)
	}
	sb.WriteString("}")
	return sb.String()
}

// fingerprint 是 Configuration 中可哈希部分的投影。
type fingerprint struct {
	Version       int
	BufferSize    int
	InstanceCount int
	PayloadFormat string
	Compression   string
	Types         []string
	Resolver      string
	Externalizers bool
	Properties    map[string]any
}

// Fingerprint 返回配置可观察内容的哈希，内容相同的两份配置哈希相同。
func (c *Configuration) Fingerprint() (uint64, error) {
	fp := fingerprint{
		Version:       c.Version,
		BufferSize:    c.BufferSize,
		InstanceCount: c.InstanceCount,
		PayloadFormat: c.payloadFormat(),
		Compression:   c.compressionName(),
		Types:         c.TypeRegistry.Names(),
		Externalizers: c.ExternalizerFactory != nil,
		Properties:    c.Properties,
	}
	if c.ObjectResolver != nil {
		fp.Resolver = fmt.Sprint(c.ObjectResolver)
	}
	return hashstructure.Hash(fp, nil)
}

func (c *Configuration) payloadFormat() string {
	if c.PayloadFormat == "" {
		return payload.FormatMsgpack
	}
	return strings.ToLower(strings.TrimSpace(c.PayloadFormat))
}

func (c *Configuration) compressionName() string {
	kind, err := compressor.ParseKind(c.Compression)
	if err != nil {
		return c.Compression
	}
	return kind.String()
}
