package roundtrip

import (
	"bytes"
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/pkg/buffer/ring"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
)

// DefaultSinkSize 为每次往返字节缓冲区的初始容量。
const DefaultSinkSize = 10240

// ReadWriteTest 是一次往返的用例。Driver 按固定顺序调用：
// ConfigureRead、RunWrite、ConfigureWrite、RunRead，每个方法在一次往返中只调用一次。
//
// ConfigureRead 定制的是写阶段使用的配置（即之后读回这些数据所依据的配置），
// ConfigureWrite 定制的是读阶段使用的配置，两者相互独立。
type ReadWriteTest interface {
	ConfigureRead(cfg *marshalling.Configuration) error
	ConfigureWrite(cfg *marshalling.Configuration) error
	RunWrite(m marshalling.Marshaller) error
	RunRead(u marshalling.Unmarshaller) error
}

// ReadWriteFuncs 用函数实现 ReadWriteTest，未设置的函数视为空操作。
type ReadWriteFuncs struct {
	ConfigureReadFn  func(cfg *marshalling.Configuration) error
	ConfigureWriteFn func(cfg *marshalling.Configuration) error
	WriteFn          func(m marshalling.Marshaller) error
	ReadFn           func(u marshalling.Unmarshaller) error
}

var _ ReadWriteTest = ReadWriteFuncs{}

func (f ReadWriteFuncs) ConfigureRead(cfg *marshalling.Configuration) error {
	if f.ConfigureReadFn == nil {
		return nil
	}
	return f.ConfigureReadFn(cfg)
}

func (f ReadWriteFuncs) ConfigureWrite(cfg *marshalling.Configuration) error {
	if f.ConfigureWriteFn == nil {
		return nil
	}
	return f.ConfigureWriteFn(cfg)
}

func (f ReadWriteFuncs) RunWrite(m marshalling.Marshaller) error {
	if f.WriteFn == nil {
		return nil
	}
	return f.WriteFn(m)
}

func (f ReadWriteFuncs) RunRead(u marshalling.Unmarshaller) error {
	if f.ReadFn == nil {
		return nil
	}
	return f.ReadFn(u)
}

// Driver 编排单次往返。Driver 本身只持有只读的基础配置与 Provider，
// 每次 Run 使用独立的缓冲区与会话，因此同一个 Driver 可以被并发调用。
type Driver struct {
	log.Binder

	cfg           *marshalling.Configuration
	marshallers   marshalling.MarshallerProvider
	unmarshallers marshalling.UnmarshallerProvider
	sinkSize      int
}

// DriverOption 调整 Driver。
type DriverOption func(*Driver)

// WithSinkSize 设置字节缓冲区的初始容量。
func WithSinkSize(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.sinkSize = n
		}
	}
}

// WithLogger 设置 Driver 输出诊断信息使用的 Logger。
func WithLogger(logger *log.MLogger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.SetLogger(logger)
		}
	}
}

func NewDriver(mp marshalling.MarshallerProvider, up marshalling.UnmarshallerProvider, cfg *marshalling.Configuration, opts ...DriverOption) *Driver {
	d := &Driver{
		cfg:           cfg,
		marshallers:   mp,
		unmarshallers: up,
		sinkSize:      DefaultSinkSize,
	}
	d.SetLogger(log.With(log.FieldModule("roundtrip")))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configuration 返回基础配置。调用方不应修改它，需要定制时请在用例的 Configure 钩子中修改副本。
func (d *Driver) Configuration() *marshalling.Configuration {
	return d.cfg
}

// Run 执行一次往返。任何钩子、会话创建或 Finish 的错误都原样返回，不重试、不做部分恢复。
func (d *Driver) Run(test ReadWriteTest) error {
	return d.RunContext(context.Background(), test)
}

// RunContext 与 Run 相同，本次往返的日志携带 ctx 派生出的 span 的 traceID。
func (d *Driver) RunContext(ctx context.Context, test ReadWriteTest) error {
	ctx, span := log.NewIntentContext(log.IntoContext(ctx, d.Logger()), "roundtrip", "round-trip")
	defer span.End()

	start := time.Now()
	phase, err := d.run(ctx, test)
	result := metrics.SuccessLabel
	if err != nil {
		result = metrics.FailLabel
		span.RecordError(err)
		span.SetStatus(codes.Error, phase)
	}
	metrics.RoundTripTotal.WithLabelValues(result, phase).Inc()
	metrics.RoundTripLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return err
}

// run 返回失败所在的阶段，成功时阶段为空。
func (d *Driver) run(ctx context.Context, test ReadWriteTest) (string, error) {
	readCfg, err := d.cfg.Clone()
	if err != nil {
		return metrics.PhaseConfigureRead, err
	}
	if err := test.ConfigureRead(readCfg); err != nil {
		return metrics.PhaseConfigureRead, err
	}
	log.Ctx(ctx).Debug("Read Configuration", log.FieldStringer("configuration", readCfg))

	sink := ring.New(d.sinkSize)
	m, err := d.marshallers.CreateMarshaller(readCfg, marshalling.NewByteOutput(sink))
	if err != nil {
		return metrics.PhaseCreateWriter, err
	}
	log.Ctx(log.WithSession(ctx, metrics.RoleMarshaller, m.ID())).Debug("Marshaller created",
		log.FieldVersion(readCfg.Version))
	if err := test.RunWrite(m); err != nil {
		return metrics.PhaseWrite, err
	}
	if err := m.Finish(); err != nil {
		return metrics.PhaseFinishWriter, err
	}
	data := sink.Bytes()
	metrics.RoundTripBytes.Observe(float64(len(data)))

	writeCfg, err := d.cfg.Clone()
	if err != nil {
		return metrics.PhaseConfigureWrite, err
	}
	if err := test.ConfigureWrite(writeCfg); err != nil {
		return metrics.PhaseConfigureWrite, err
	}
	log.Ctx(ctx).Debug("Write Configuration", log.FieldStringer("configuration", writeCfg))

	u, err := d.unmarshallers.CreateUnmarshaller(writeCfg, marshalling.NewByteInput(bytes.NewReader(data)))
	if err != nil {
		return metrics.PhaseCreateReader, err
	}
	log.Ctx(log.WithSession(ctx, metrics.RoleUnmarshaller, u.ID())).Debug("Unmarshaller created",
		log.FieldVersion(writeCfg.Version),
		zap.Int("bytes", len(data)))
	if err := test.RunRead(u); err != nil {
		return metrics.PhaseRead, err
	}
	if err := u.Finish(); err != nil {
		return metrics.PhaseFinishReader, err
	}
	return metrics.PhaseNone, nil
}

// RunReadWriteTest 使用给定的 Provider 与基础配置执行一次往返。
func RunReadWriteTest(mp marshalling.MarshallerProvider, up marshalling.UnmarshallerProvider, cfg *marshalling.Configuration, test ReadWriteTest) error {
	return NewDriver(mp, up, cfg).Run(test)
}
