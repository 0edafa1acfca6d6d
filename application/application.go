// Package application 负责往返测试进程的装配：加载配置文件、初始化日志与指标，
// 并据此构造基础 marshalling.Configuration 与 roundtrip.Driver。
package application

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/internal/roundtrip"
	zlog "github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-marshalling/pkg/util/viper"
)

const (
	// DefaultConfigPath 为未指定配置文件时使用的路径。
	DefaultConfigPath = "./roundtrip.yaml"
	// ConfigPathEnv 为指定配置文件路径的环境变量。
	ConfigPathEnv = "ROUNDTRIP_CONFIG_FILE_PATH"
)

// Settings 为配置文件中 roundtrip 一节。
type Settings struct {
	// Provider 为会话 Provider：fresh 或 pooled。
	Provider string `mapstructure:"provider"`
	// SinkSize 为每次往返字节缓冲区的初始容量。
	SinkSize int `mapstructure:"sinkSize"`
	// Parallelism 为 RunConcurrently 的并发度，小于等于 0 时使用 GOMAXPROCS。
	Parallelism int `mapstructure:"parallelism"`
}

// Application 是往返测试进程的运行时容器。
type Application struct {
	args       []string
	registerer prometheus.Registerer
	registry   *marshalling.TypeRegistry

	cfg           *zviper.Config
	settings      Settings
	base          *marshalling.Configuration
	loggers       map[string]*zlog.MLogger
	marshallers   marshalling.MarshallerProvider
	unmarshallers marshalling.UnmarshallerProvider
}

// Option 调整 Application。
type Option func(*Application)

// WithArgs 指定命令行参数（不含程序名），默认使用 os.Args[1:]。
func WithArgs(args []string) Option {
	return func(a *Application) { a.args = args }
}

// WithRegisterer 指定注册指标的 Prometheus Registerer，不指定时不注册指标。
func WithRegisterer(r prometheus.Registerer) Option {
	return func(a *Application) { a.registerer = r }
}

// WithTypeRegistry 指定基础配置使用的类型注册表，类型无法写进配置文件，只能在代码中注册。
func WithTypeRegistry(r *marshalling.TypeRegistry) Option {
	return func(a *Application) { a.registry = r }
}

// New 创建一个 Application。
func New(opts ...Option) *Application {
	a := &Application{args: os.Args[1:]}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 加载配置并完成装配。配置文件路径的优先级从低到高：
//  1. 默认值 ./roundtrip.yaml
//  2. 环境变量 ROUNDTRIP_CONFIG_FILE_PATH
//  3. 命令行 --config <path> 或 --config=<path>
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	if a.registerer != nil {
		metrics.Register(a.registerer)
	}
	if err := a.loadSettings(); err != nil {
		return err
	}
	if err := a.buildConfiguration(); err != nil {
		return err
	}
	zlog.Ctx(zlog.WithModule(context.Background(), "application")).Info("round trip application ready",
		zap.String("provider", a.settings.Provider),
		zlog.FieldStringer("configuration", a.base))
	return nil
}

// Config 返回已加载的配置文件。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Settings 返回 roundtrip 一节的配置。
func (a *Application) Settings() Settings {
	return a.settings
}

// Configuration 返回基础 marshalling 配置，Run 之前为 nil。
func (a *Application) Configuration() *marshalling.Configuration {
	return a.base
}

// Logger 返回配置文件 logging 一节中定义的具名 Logger，未定义时返回全局 Logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// Providers 返回按配置创建的会话 Provider，Run 之前为 nil。
func (a *Application) Providers() (marshalling.MarshallerProvider, marshalling.UnmarshallerProvider) {
	return a.marshallers, a.unmarshallers
}

// Driver 使用配置中的 Provider 与基础配置构造 roundtrip.Driver。
func (a *Application) Driver() (*roundtrip.Driver, error) {
	if a.base == nil {
		return nil, merr.WrapErrConfigNotLoaded(a.configPath())
	}
	return roundtrip.NewDriver(a.marshallers, a.unmarshallers, a.base,
		roundtrip.WithSinkSize(a.settings.SinkSize),
		roundtrip.WithLogger(a.Logger("roundtrip")),
	), nil
}

// RunConcurrently 使用配置中的并发度执行多个往返。
func (a *Application) RunConcurrently(tests ...roundtrip.ReadWriteTest) error {
	d, err := a.Driver()
	if err != nil {
		return err
	}
	return d.RunConcurrently(a.settings.Parallelism, tests...)
}

func (a *Application) configPath() string {
	path := DefaultConfigPath
	if envPath := strings.TrimSpace(os.Getenv(ConfigPathEnv)); envPath != "" {
		path = envPath
	}
	return path
}

// loadConfig 解析配置文件路径并通过 viper 加载。
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := a.configPath()

	for i := 0; i < len(a.args); i++ {
		arg := a.args[i]
		if arg == "--config" {
			if i+1 >= len(a.args) {
				return nil, merr.WrapErrParameterInvalidMsg("missing value after --config")
			}
			configPath = a.args[i+1]
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			configPath = val
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrap(merr.WrapErrConfigNotLoaded(configPath), err.Error())
	}
	return cfg, nil
}

// initLogging 用 logging 一节创建具名 Logger，再用 log 一节初始化全局 Logger。
//
// 示例：
//
//	log:
//	  level: info
//	logging:
//	  roundtrip:
//	    level: debug
//	    file:
//	      rootPath: ./logs
//	      filename: roundtrip.log
func (a *Application) initLogging() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return errors.Wrap(err, "decode logging section")
	}
	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		logger, _, err := zlog.InitLogger(&lc)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}

	// 全局 Logger 最后初始化，上下文 Logger 以它为准。
	global := zlog.Config{Level: "info", Format: zlog.FormatConsole}
	if a.cfg.IsSet("log") {
		if err := a.cfg.UnmarshalKey("log", &global); err != nil {
			return errors.Wrap(err, "decode log section")
		}
	}
	logger, props, err := zlog.InitLogger(&global)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

func (a *Application) loadSettings() error {
	a.settings = Settings{
		Provider: marshalling.ProviderFresh,
		SinkSize: roundtrip.DefaultSinkSize,
	}
	if err := a.cfg.UnmarshalKey("roundtrip", &a.settings); err != nil {
		return errors.Wrap(err, "decode roundtrip section")
	}
	if a.settings.SinkSize <= 0 {
		return merr.WrapErrConfigInvalid("roundtrip.sinkSize", a.settings.SinkSize)
	}
	a.settings.Provider = strings.ToLower(strings.TrimSpace(a.settings.Provider))
	switch a.settings.Provider {
	case "", marshalling.ProviderFresh:
		p := marshalling.NewFreshProvider()
		a.marshallers, a.unmarshallers = p, p
	case marshalling.ProviderPooled:
		p := marshalling.NewPooledProvider(0)
		a.marshallers, a.unmarshallers = p, p
	default:
		return merr.WrapErrConfigInvalid("roundtrip.provider", a.settings.Provider)
	}
	return nil
}

// buildConfiguration 以默认值为底，用 marshalling 一节覆盖后得到基础配置。
func (a *Application) buildConfiguration() error {
	base := marshalling.DefaultConfiguration()
	if a.registry != nil {
		base.TypeRegistry = a.registry
	}
	if err := a.cfg.UnmarshalKey("marshalling", base); err != nil {
		return errors.Wrap(err, "decode marshalling section")
	}
	if err := base.Validate(); err != nil {
		return err
	}
	a.base = base
	return nil
}
