package marshalling

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/internal/pool/ringbuffer"
	"github.com/lk2023060901/danmu-marshalling/pkg/buffer/ring"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/typeutil"
)

const (
	ProviderFresh  = "fresh"
	ProviderPooled = "pooled"
)

// 会话日志按分组限流，并发往返时每秒最多输出 sessionLogCredit 条。
const (
	sessionLogGroup      = "marshalling.session"
	sessionLogCredit     = 20
	sessionLogMaxBalance = 200
)

// MarshallerProvider 创建绑定到给定配置与输出的写会话。
// 返回的会话已经 Start，调用方独占使用并负责 Finish。
type MarshallerProvider interface {
	CreateMarshaller(cfg *Configuration, out ByteOutput) (Marshaller, error)
}

// UnmarshallerProvider 创建绑定到给定配置与输入的读会话。
// 返回的会话已经 Start，调用方独占使用并负责 Finish。
type UnmarshallerProvider interface {
	CreateUnmarshaller(cfg *Configuration, in ByteInput) (Unmarshaller, error)
}

// MarshallerProviderFunc 把函数适配为 MarshallerProvider。
type MarshallerProviderFunc func(cfg *Configuration, out ByteOutput) (Marshaller, error)

func (f MarshallerProviderFunc) CreateMarshaller(cfg *Configuration, out ByteOutput) (Marshaller, error) {
	return f(cfg, out)
}

// UnmarshallerProviderFunc 把函数适配为 UnmarshallerProvider。
type UnmarshallerProviderFunc func(cfg *Configuration, in ByteInput) (Unmarshaller, error)

func (f UnmarshallerProviderFunc) CreateUnmarshaller(cfg *Configuration, in ByteInput) (Unmarshaller, error) {
	return f(cfg, in)
}

// FreshProvider 每次都分配全新的会话状态。
type FreshProvider struct{}

var (
	_ MarshallerProvider   = (*FreshProvider)(nil)
	_ UnmarshallerProvider = (*FreshProvider)(nil)
)

func NewFreshProvider() *FreshProvider {
	return &FreshProvider{}
}

func (p *FreshProvider) Name() string {
	return ProviderFresh
}

func (p *FreshProvider) CreateMarshaller(cfg *Configuration, out ByteOutput) (Marshaller, error) {
	if err := validateFor(metrics.RoleMarshaller, cfg); err != nil {
		return nil, err
	}
	st := newWriteState(ring.New(cfg.BufferSize), cfg.InstanceCount)
	m, err := newMarshaller(cfg, st, nil)
	if err != nil {
		return nil, merr.WrapErrSessionCreate(metrics.RoleMarshaller, err)
	}
	return startMarshaller(ProviderFresh, m, out)
}

func (p *FreshProvider) CreateUnmarshaller(cfg *Configuration, in ByteInput) (Unmarshaller, error) {
	if err := validateFor(metrics.RoleUnmarshaller, cfg); err != nil {
		return nil, err
	}
	st := newReadState(ring.New(cfg.BufferSize), cfg.InstanceCount)
	u, err := newUnmarshaller(cfg, st, nil)
	if err != nil {
		return nil, merr.WrapErrSessionCreate(metrics.RoleUnmarshaller, err)
	}
	return startUnmarshaller(ProviderFresh, u, in)
}

// PooledProvider 从复用池中取会话状态，会话 Finish 后状态被清空并放回池中。
// 帧缓冲区来自 ringbuffer.Pool，句柄表等其余状态由 sync.Pool 复用。
type PooledProvider struct {
	frames      *ringbuffer.Pool
	writeStates sync.Pool
	readStates  sync.Pool
	live        *typeutil.ConcurrentSet[string]
}

var (
	_ MarshallerProvider   = (*PooledProvider)(nil)
	_ UnmarshallerProvider = (*PooledProvider)(nil)
)

// NewPooledProvider 创建一个 PooledProvider，frameSize 为帧缓冲区的初始容量，小于等于 0 时使用默认值。
func NewPooledProvider(frameSize int) *PooledProvider {
	return &PooledProvider{
		frames: ringbuffer.NewPool(frameSize, 0),
		live:   typeutil.NewConcurrentSet[string](),
	}
}

func (p *PooledProvider) Name() string {
	return ProviderPooled
}

// Live 返回已创建但尚未 Finish 的会话数量。
func (p *PooledProvider) Live() int {
	return p.live.Len()
}

// FrameStats 返回帧缓冲区池的统计。
func (p *PooledProvider) FrameStats() ringbuffer.Stats {
	return p.frames.Stats()
}

func (p *PooledProvider) CreateMarshaller(cfg *Configuration, out ByteOutput) (Marshaller, error) {
	if err := validateFor(metrics.RoleMarshaller, cfg); err != nil {
		return nil, err
	}
	st, ok := p.writeStates.Get().(*writeState)
	if ok {
		metrics.SessionReused.WithLabelValues(metrics.RoleMarshaller).Inc()
		st.frame = p.frames.Get()
	} else {
		st = newWriteState(p.frames.Get(), cfg.InstanceCount)
	}

	var id string
	m, err := newMarshaller(cfg, st, func(st *writeState) {
		p.live.TryRemove(id)
		p.frames.Put(st.frame)
		st.frame = nil
		st.reset()
		p.writeStates.Put(st)
	})
	if err != nil {
		p.frames.Put(st.frame)
		return nil, merr.WrapErrSessionCreate(metrics.RoleMarshaller, err)
	}
	id = m.ID()
	p.live.Insert(id)
	return startMarshaller(ProviderPooled, m, out)
}

func (p *PooledProvider) CreateUnmarshaller(cfg *Configuration, in ByteInput) (Unmarshaller, error) {
	if err := validateFor(metrics.RoleUnmarshaller, cfg); err != nil {
		return nil, err
	}
	st, ok := p.readStates.Get().(*readState)
	if ok {
		metrics.SessionReused.WithLabelValues(metrics.RoleUnmarshaller).Inc()
		st.frame = p.frames.Get()
	} else {
		st = newReadState(p.frames.Get(), cfg.InstanceCount)
	}

	var id string
	u, err := newUnmarshaller(cfg, st, func(st *readState) {
		p.live.TryRemove(id)
		p.frames.Put(st.frame)
		st.frame = nil
		st.reset()
		p.readStates.Put(st)
	})
	if err != nil {
		p.frames.Put(st.frame)
		return nil, merr.WrapErrSessionCreate(metrics.RoleUnmarshaller, err)
	}
	id = u.ID()
	p.live.Insert(id)
	return startUnmarshaller(ProviderPooled, u, in)
}

func validateFor(role string, cfg *Configuration) error {
	if cfg == nil {
		return merr.WrapErrSessionCreate(role, merr.WrapErrParameterInvalidMsg("configuration is nil"))
	}
	if err := cfg.Validate(); err != nil {
		return merr.WrapErrSessionCreate(role, err)
	}
	return nil
}

// startMarshaller 绑定输出；Start 失败时会话立即结束并交还状态，错误原样返回。
func startMarshaller(provider string, m *marshaller, out ByteOutput) (Marshaller, error) {
	if err := m.Start(out); err != nil {
		m.abort()
		return nil, err
	}
	metrics.SessionCreated.WithLabelValues(metrics.RoleMarshaller, provider).Inc()
	logger := m.logger.WithRateGroup(sessionLogGroup, sessionLogCredit, sessionLogMaxBalance)
	logger.RatedDebug(1, "marshaller created",
		zap.String("provider", provider),
		log.FieldVersion(m.cfg.Version),
		log.FieldStringer("config", m.cfg))
	return m, nil
}

func startUnmarshaller(provider string, u *unmarshaller, in ByteInput) (Unmarshaller, error) {
	if err := u.Start(in); err != nil {
		u.abort()
		return nil, err
	}
	metrics.SessionCreated.WithLabelValues(metrics.RoleUnmarshaller, provider).Inc()
	logger := u.logger.WithRateGroup(sessionLogGroup, sessionLogCredit, sessionLogMaxBalance)
	logger.RatedDebug(1, "unmarshaller created",
		zap.String("provider", provider),
		log.FieldVersion(u.cfg.Version),
		log.FieldStringer("config", u.cfg))
	return u, nil
}
