package marshalling

import (
	"github.com/lk2023060901/danmu-marshalling/pkg/buffer/ring"
)

// writeState 是写会话的可复用状态，由 Provider 分配并在会话 Finish 时交还。
type writeState struct {
	frame   *ring.Buffer
	handles map[identity]uint32
	// pinned 持有所有已分配句柄的实例，保证会话期间它们的地址不会被回收复用。
	pinned  []any
	raw     []byte
	scratch []byte
}

func newWriteState(frame *ring.Buffer, instanceCount int) *writeState {
	return &writeState{
		frame:   frame,
		handles: make(map[identity]uint32, instanceCount),
		pinned:  make([]any, 0, instanceCount),
	}
}

// reset 清空上一次会话留下的全部内容，底层内存保留。
func (s *writeState) reset() {
	if s.frame != nil {
		s.frame.Reset()
	}
	clear(s.handles)
	clear(s.pinned)
	s.pinned = s.pinned[:0]
}

// readState 是读会话的可复用状态。
type readState struct {
	frame   *ring.Buffer
	handles []any
	raw     []byte
	scratch []byte
}

func newReadState(frame *ring.Buffer, instanceCount int) *readState {
	return &readState{
		frame:   frame,
		handles: make([]any, 0, instanceCount),
	}
}

func (s *readState) reset() {
	if s.frame != nil {
		s.frame.Reset()
	}
	clear(s.handles)
	s.handles = s.handles[:0]
}
