// Package viper 封装 spf13/viper，提供往返测试配置文件的加载能力。
package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// EnvPrefix 为覆盖配置项的环境变量前缀，例如 ROUNDTRIP_MARSHALLING_VERSION=2。
const EnvPrefix = "ROUNDTRIP"

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config，环境变量覆盖默认开启。
func New() *Config {
	c := &Config{v: spfviper.New()}
	c.v.SetEnvPrefix(EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
	return c
}

// SetDefault 设置 key 的默认值，文件与环境变量中均未出现时生效。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中，文件类型通过扩展名推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	}

	return c.v.ReadInConfig()
}

// IsSet 判断 key 是否在文件、环境变量或默认值中出现过。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString 返回 key 对应的字符串值。
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst，dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
func (c *Config) UnmarshalKey(key string, dst any) error {
	return c.v.UnmarshalKey(key, dst)
}
