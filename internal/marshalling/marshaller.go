package marshalling

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/compressor"
	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/payload"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// marshaller 是 Marshaller 的实现。
//
// 会话只能 Start 一次；Finish 之后所有写操作返回 merr.ErrSessionFinished。
// 同一会话内多次写出的同一实例（指针、map、非空切片）只在第一次写出对象体，之后写出回引用。
type marshaller struct {
	id    uuid.UUID
	cfg   *Configuration
	codec payload.Codec
	fw    frameWriter
	st    *writeState
	next  uint32
	buf   []byte

	started  bool
	finished bool
	release  func(*writeState)
	logger   *log.MLogger
}

var _ Marshaller = (*marshaller)(nil)

func newMarshaller(cfg *Configuration, st *writeState, release func(*writeState)) (*marshaller, error) {
	codec, err := payload.Get(cfg.PayloadFormat)
	if err != nil {
		return nil, err
	}
	kind, err := compressor.ParseKind(cfg.Compression)
	if err != nil {
		return nil, err
	}
	comp, err := compressor.Get(kind)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &marshaller{
		id:    id,
		cfg:   cfg,
		codec: codec,
		st:    st,
		buf:   make([]byte, 0, 64),
		fw: frameWriter{
			version: cfg.Version,
			kind:    kind,
			comp:    comp,
			limit:   cfg.BufferSize,
			st:      st,
		},
		release: release,
		logger:  log.With(log.FieldRole(metrics.RoleMarshaller), log.FieldSession(id.String())),
	}, nil
}

func (m *marshaller) ID() string {
	return m.id.String()
}

func (m *marshaller) Version() int {
	return m.cfg.Version
}

func (m *marshaller) String() string {
	return "Marshaller[" + m.id.String() + "]"
}

// Start 绑定输出并写出流头。
func (m *marshaller) Start(out ByteOutput) error {
	if m.finished {
		return merr.WrapErrSessionFinished(m.ID())
	}
	if m.started {
		return merr.WrapErrOperationNotSupported("start", "marshaller already started")
	}
	if out == nil {
		return merr.WrapErrParameterInvalidMsg("byte output is nil")
	}
	m.fw.out = out
	m.started = true
	return m.fw.writeHeader(m.id)
}

func (m *marshaller) check() error {
	if m.finished {
		return merr.WrapErrSessionFinished(m.ID())
	}
	if !m.started {
		return merr.WrapErrSessionNotBound(m.ID())
	}
	return nil
}

func (m *marshaller) emit(p []byte) error {
	_, err := m.fw.Write(p)
	return err
}

func (m *marshaller) WriteBool(v bool) error {
	if v {
		return m.WriteByte(1)
	}
	return m.WriteByte(0)
}

func (m *marshaller) WriteByte(v byte) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.fw.WriteByte(v)
}

func (m *marshaller) WriteInt16(v int16) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.emit(binary.BigEndian.AppendUint16(m.buf[:0], uint16(v)))
}

func (m *marshaller) WriteInt32(v int32) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.emit(binary.BigEndian.AppendUint32(m.buf[:0], uint32(v)))
}

func (m *marshaller) WriteInt64(v int64) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.emit(binary.BigEndian.AppendUint64(m.buf[:0], uint64(v)))
}

func (m *marshaller) WriteFloat32(v float32) error {
	return m.WriteInt32(int32(math.Float32bits(v)))
}

func (m *marshaller) WriteFloat64(v float64) error {
	return m.WriteInt64(int64(math.Float64bits(v)))
}

func (m *marshaller) WriteString(v string) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.writeString(v)
}

func (m *marshaller) writeString(v string) error {
	if err := m.emit(binary.BigEndian.AppendUint32(m.buf[:0], uint32(len(v)))); err != nil {
		return err
	}
	if len(v) == 0 {
		return nil
	}
	_, err := m.fw.Write([]byte(v))
	return err
}

func (m *marshaller) writeUint32(v uint32) error {
	return m.emit(binary.BigEndian.AppendUint32(m.buf[:0], v))
}

// Write 写出原始字节，读端需用 ReadFull 或 Read 读取相同数量的字节。
func (m *marshaller) Write(p []byte) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.fw.Write(p)
}

// WriteObject 写出一个带类型标签的对象。
func (m *marshaller) WriteObject(v any) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.writeObject(v)
}

func (m *marshaller) writeObject(v any) error {
	if m.cfg.ObjectResolver != nil && !isNil(v) {
		replaced, err := m.cfg.ObjectResolver.WriteReplace(v)
		if err != nil {
			return errors.Wrapf(err, "write replace %T", v)
		}
		v = replaced
	}
	if isNil(v) {
		return m.fw.WriteByte(tagNull)
	}

	rv := reflect.ValueOf(v)
	t := rv.Type()
	if tag, ok := builtinTags[t]; ok {
		return m.emit(appendBuiltin(m.buf[:0], tag, rv))
	}
	if !isSerializableKind(t.Kind()) {
		return merr.WrapErrUnsupportedValue(v)
	}

	id, tracked := identityOf(rv)
	if tracked {
		if h, ok := m.st.handles[id]; ok {
			if err := m.fw.WriteByte(tagBackRef); err != nil {
				return err
			}
			return m.writeUint32(h)
		}
	}
	name, err := m.cfg.TypeRegistry.NameOf(t)
	if err != nil {
		return err
	}
	handle := noHandle
	if tracked {
		handle = m.next
		m.next++
		m.st.handles[id] = handle
		m.st.pinned = append(m.st.pinned, v)
	}

	if ext := m.externalizer(t); ext != nil {
		if err := m.writeObjectHeader(tagExternal, name, handle); err != nil {
			return err
		}
		if err := ext.WriteExternal(v, m); err != nil {
			return merr.WrapErrExternalizer(t.String(), err)
		}
		return nil
	}

	data, err := m.codec.Marshal(v)
	if err != nil {
		return merr.WrapErrPayloadEncode(m.codec.Name(), err)
	}
	if len(data) > maxFrameSize {
		return merr.WrapErrFrameTooLarge(len(data), maxFrameSize, "object payload")
	}
	if err := m.writeObjectHeader(tagObject, name, handle); err != nil {
		return err
	}
	if err := m.writeUint32(uint32(len(data))); err != nil {
		return err
	}
	_, err = m.fw.Write(data)
	return err
}

func (m *marshaller) writeObjectHeader(tag byte, name string, handle uint32) error {
	if err := m.fw.WriteByte(tag); err != nil {
		return err
	}
	if err := m.writeString(name); err != nil {
		return err
	}
	return m.writeUint32(handle)
}

func (m *marshaller) externalizer(t reflect.Type) Externalizer {
	if m.cfg.ExternalizerFactory == nil {
		return nil
	}
	return m.cfg.ExternalizerFactory(t)
}

// Flush 把当前未满的帧写出并刷新底层输出。
func (m *marshaller) Flush() error {
	if err := m.check(); err != nil {
		return err
	}
	if err := m.fw.flushFrame(); err != nil {
		return err
	}
	if err := m.fw.out.Flush(); err != nil {
		return merr.WrapErrIoFailed("flush", err)
	}
	return nil
}

// Finish 写出剩余数据与结束帧，并把会话状态交还给 Provider。
// 无论成功与否，会话都会结束；失败时返回 merr.ErrSessionFinish。
func (m *marshaller) Finish() error {
	if err := m.check(); err != nil {
		return err
	}
	m.finished = true
	err := m.fw.flushFrame()
	if err == nil {
		err = m.fw.writeEnd()
	}
	if err == nil {
		if ferr := m.fw.out.Flush(); ferr != nil {
			err = merr.WrapErrIoFailed("flush", ferr)
		}
	}
	m.logger.RatedDebug(1, "marshaller finished",
		zap.Int64("bytes", m.fw.written),
		zap.Uint32("instances", m.next),
		zap.Error(err))
	m.abort()
	if err != nil {
		metrics.SessionFinishFailures.WithLabelValues(metrics.RoleMarshaller).Inc()
		return merr.WrapErrSessionFinish(m.ID(), err)
	}
	return nil
}

// abort 结束会话并交还状态，可重复调用。
func (m *marshaller) abort() {
	m.finished = true
	if m.st == nil {
		return
	}
	st := m.st
	m.st = nil
	m.fw.st = nil
	m.fw.out = nil
	if m.release != nil {
		m.release(st)
	}
}
