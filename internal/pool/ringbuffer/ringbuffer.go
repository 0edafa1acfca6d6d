// Package ringbuffer 提供环形缓冲区的对象池，供会话复用帧缓冲以降低 GC 压力。
package ringbuffer

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-marshalling/pkg/buffer/ring"
)

const (
	// DefaultSize 为池中新建缓冲区的默认初始容量。
	DefaultSize = 4 * 1024
	// DefaultMaxRetainSize 为允许归还到池中的最大容量，超过则直接丢弃，避免池中长期滞留大块内存。
	DefaultMaxRetainSize = 4 * 1024 * 1024
)

// RingBuffer 是 ring.Buffer 的别名，便于在池中引用。
type RingBuffer = ring.Buffer

// Stats 记录池的使用情况。
type Stats struct {
	Gets      uint64
	Puts      uint64
	Allocated uint64
	Dropped   uint64
}

// Pool 表示环形缓冲区的对象池。
//
// 说明：
//   - 不同用途可以使用不同的 Pool，以减少内存浪费；
//   - Get 返回的缓冲区总是空的，归还前无需调用方 Reset。
type Pool struct {
	defaultSize   int
	maxRetainSize int

	gets      atomic.Uint64
	puts      atomic.Uint64
	allocated atomic.Uint64
	dropped   atomic.Uint64

	pool sync.Pool
}

var builtinPool = NewPool(DefaultSize, DefaultMaxRetainSize)

// NewPool 创建一个 Pool。defaultSize/maxRetainSize 小于等于 0 时使用默认值。
func NewPool(defaultSize, maxRetainSize int) *Pool {
	if defaultSize <= 0 {
		defaultSize = DefaultSize
	}
	if maxRetainSize <= 0 {
		maxRetainSize = DefaultMaxRetainSize
	}
	return &Pool{
		defaultSize:   defaultSize,
		maxRetainSize: maxRetainSize,
	}
}

// Get 从默认池中获取一个空的环形缓冲区。
func Get() *RingBuffer { return builtinPool.Get() }

// Put 将环形缓冲区归还到默认池中。
//
// 注意：归还后的 RingBuffer 不允许再被访问，否则会引发数据竞争。
func Put(b *RingBuffer) { builtinPool.Put(b) }

// Get 从指定 Pool 中获取一个空的环形缓冲区。
func (p *Pool) Get() *RingBuffer {
	p.gets.Inc()
	if v := p.pool.Get(); v != nil {
		return v.(*RingBuffer)
	}
	p.allocated.Inc()
	return ring.New(p.defaultSize)
}

// Put 将通过 Get 获取的缓冲区归还到 Pool 中。
func (p *Pool) Put(b *RingBuffer) {
	if b == nil {
		return
	}
	p.puts.Inc()
	if b.Cap() > p.maxRetainSize {
		p.dropped.Inc()
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// Stats 返回池的统计快照。
func (p *Pool) Stats() Stats {
	return Stats{
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Allocated: p.allocated.Load(),
		Dropped:   p.dropped.Load(),
	}
}
