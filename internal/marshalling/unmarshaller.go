package marshalling

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling/payload"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// unmarshaller 是 Unmarshaller 的实现。
//
// 读端接受协议版本不高于自身配置版本的流。回引用返回的是句柄表中已经 ReadResolve 过的同一个值，
// 因此写端共享的实例在读端同样是同一个实例。
type unmarshaller struct {
	id       uuid.UUID
	writerID uuid.UUID
	cfg      *Configuration
	codec    payload.Codec
	fr       frameReader
	st       *readState
	num      [16]byte

	started  bool
	finished bool
	release  func(*readState)
	logger   *log.MLogger
}

var _ Unmarshaller = (*unmarshaller)(nil)

func newUnmarshaller(cfg *Configuration, st *readState, release func(*readState)) (*unmarshaller, error) {
	codec, err := payload.Get(cfg.PayloadFormat)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &unmarshaller{
		id:      id,
		cfg:     cfg,
		codec:   codec,
		st:      st,
		fr:      frameReader{st: st},
		release: release,
		logger:  log.With(log.FieldRole(metrics.RoleUnmarshaller), log.FieldSession(id.String())),
	}, nil
}

func (u *unmarshaller) ID() string {
	return u.id.String()
}

func (u *unmarshaller) Version() int {
	return u.cfg.Version
}

func (u *unmarshaller) String() string {
	return "Unmarshaller[" + u.id.String() + "]"
}

// Start 绑定输入并校验流头。
func (u *unmarshaller) Start(in ByteInput) error {
	if u.finished {
		return merr.WrapErrSessionFinished(u.ID())
	}
	if u.started {
		return merr.WrapErrOperationNotSupported("start", "unmarshaller already started")
	}
	if in == nil {
		return merr.WrapErrParameterInvalidMsg("byte input is nil")
	}
	u.fr.in = in
	u.started = true
	version, writerID, err := u.fr.readHeader()
	if err != nil {
		return err
	}
	if !canRead(u.cfg.Version, version) {
		return merr.WrapErrVersionMismatch(version, u.cfg.Version)
	}
	u.fr.version = version
	u.writerID = writerID
	u.logger.Debug("stream accepted",
		zap.Int("streamVersion", version),
		zap.Stringer("writer", writerID))
	return nil
}

func (u *unmarshaller) check() error {
	if u.finished {
		return merr.WrapErrSessionFinished(u.ID())
	}
	if !u.started {
		return merr.WrapErrSessionNotBound(u.ID())
	}
	return nil
}

// ReadByte 读取一个原始字节，流中没有更多数据时返回 io.EOF。
func (u *unmarshaller) ReadByte() (byte, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	return u.fr.ReadByte()
}

// Read 读取至多 len(p) 个原始字节，流中没有更多数据时返回 io.EOF。
func (u *unmarshaller) Read(p []byte) (int, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	return u.fr.Read(p)
}

// ReadFull 精确读取 len(p) 个原始字节。
func (u *unmarshaller) ReadFull(p []byte) error {
	if err := u.check(); err != nil {
		return err
	}
	return u.fr.next(p)
}

func (u *unmarshaller) fixed(n int) ([]byte, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	b := u.num[:n]
	if err := u.fr.next(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (u *unmarshaller) ReadBool() (bool, error) {
	b, err := u.fixed(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (u *unmarshaller) ReadInt16() (int16, error) {
	b, err := u.fixed(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (u *unmarshaller) ReadInt32() (int32, error) {
	b, err := u.fixed(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (u *unmarshaller) ReadInt64() (int64, error) {
	b, err := u.fixed(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (u *unmarshaller) ReadFloat32() (float32, error) {
	v, err := u.ReadInt32()
	return math.Float32frombits(uint32(v)), err
}

func (u *unmarshaller) ReadFloat64() (float64, error) {
	v, err := u.ReadInt64()
	return math.Float64frombits(uint64(v)), err
}

func (u *unmarshaller) ReadString() (string, error) {
	if err := u.check(); err != nil {
		return "", err
	}
	return u.readString()
}

func (u *unmarshaller) readUint32() (uint32, error) {
	b := u.num[:4]
	if err := u.fr.next(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (u *unmarshaller) readString() (string, error) {
	n, err := u.readUint32()
	if err != nil {
		return "", err
	}
	if n > maxFrameSize {
		return "", merr.WrapErrFrameTooLarge(int(n), maxFrameSize, "string")
	}
	b := make([]byte, n)
	if err := u.fr.next(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadObject 读取 WriteObject 写出的一条记录。
func (u *unmarshaller) ReadObject() (any, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	return u.readObject()
}

// ReadObjectAs 读取一条记录并要求其类型可赋值给 t；读到 nil 时返回 nil。
func (u *unmarshaller) ReadObjectAs(t reflect.Type) (any, error) {
	v, err := u.ReadObject()
	if err != nil || v == nil {
		return v, err
	}
	if !reflect.TypeOf(v).AssignableTo(t) {
		return nil, merr.WrapErrParameterInvalidMsg("read object is %T, not %s", v, t)
	}
	return v, nil
}

func (u *unmarshaller) readObject() (any, error) {
	tagBuf := u.num[:1]
	if err := u.fr.next(tagBuf); err != nil {
		return nil, err
	}
	tag := tagBuf[0]

	switch tag {
	case tagNull:
		return nil, nil
	case tagString:
		return u.readString()
	case tagBackRef:
		h, err := u.readUint32()
		if err != nil {
			return nil, err
		}
		if int64(h) >= int64(len(u.st.handles)) {
			return nil, merr.WrapErrInvalidStream("dangling back reference")
		}
		return u.st.handles[h], nil
	case tagObject, tagExternal:
		return u.readInstance(tag)
	}

	width := builtinWidth(tag)
	if width < 0 {
		return nil, merr.WrapErrUnexpectedRecord("object", tag)
	}
	b := u.num[:width]
	if err := u.fr.next(b); err != nil {
		return nil, err
	}
	return decodeBuiltin(tag, b), nil
}

func (u *unmarshaller) readInstance(tag byte) (any, error) {
	name, err := u.readString()
	if err != nil {
		return nil, err
	}
	handle, err := u.readUint32()
	if err != nil {
		return nil, err
	}
	t, err := u.cfg.TypeRegistry.TypeOf(name)
	if err != nil {
		return nil, err
	}
	slot, err := u.reserve(handle)
	if err != nil {
		return nil, err
	}

	var v any
	if tag == tagExternal {
		ext := u.externalizer(t)
		if ext == nil {
			return nil, merr.WrapErrExternalizer(name, errors.New("no externalizer for type on read side"))
		}
		if v, err = ext.ReadExternal(u); err != nil {
			return nil, merr.WrapErrExternalizer(name, err)
		}
	} else if v, err = u.decode(t); err != nil {
		return nil, err
	}

	if u.cfg.ObjectResolver != nil {
		if v, err = u.cfg.ObjectResolver.ReadResolve(v); err != nil {
			return nil, errors.Wrapf(err, "read resolve %s", name)
		}
	}
	if slot >= 0 {
		u.st.handles[slot] = v
	}
	return v, nil
}

// reserve 在读取对象体之前为它占用句柄，返回 -1 表示对象没有实例身份。
func (u *unmarshaller) reserve(handle uint32) (int, error) {
	if handle == noHandle {
		return -1, nil
	}
	if int64(handle) != int64(len(u.st.handles)) {
		return -1, merr.WrapErrInvalidStream("instance handle out of order")
	}
	u.st.handles = append(u.st.handles, nil)
	return int(handle), nil
}

func (u *unmarshaller) decode(t reflect.Type) (any, error) {
	n, err := u.readUint32()
	if err != nil {
		return nil, err
	}
	if n > maxFrameSize {
		return nil, merr.WrapErrFrameTooLarge(int(n), maxFrameSize, "object payload")
	}
	data := make([]byte, n)
	if err := u.fr.next(data); err != nil {
		return nil, err
	}
	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := u.codec.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, merr.WrapErrPayloadDecode(u.codec.Name(), err)
		}
		return ptr.Interface(), nil
	}
	ptr := reflect.New(t)
	if err := u.codec.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, merr.WrapErrPayloadDecode(u.codec.Name(), err)
	}
	return ptr.Elem().Interface(), nil
}

func (u *unmarshaller) externalizer(t reflect.Type) Externalizer {
	if u.cfg.ExternalizerFactory == nil {
		return nil
	}
	return u.cfg.ExternalizerFactory(t)
}

// Finish 结束会话并把状态交还给 Provider，未读完的数据被丢弃。
func (u *unmarshaller) Finish() error {
	if err := u.check(); err != nil {
		return err
	}
	var err error
	if u.fr.missingEnd {
		err = merr.WrapErrInvalidStream("missing end frame")
	}
	u.logger.RatedDebug(1, "unmarshaller finished",
		zap.Int64("bytes", u.fr.read),
		zap.Int("instances", len(u.st.handles)),
		zap.Error(err))
	u.abort()
	if err != nil {
		metrics.SessionFinishFailures.WithLabelValues(metrics.RoleUnmarshaller).Inc()
		return merr.WrapErrSessionFinish(u.ID(), err)
	}
	return nil
}

// abort 结束会话并交还状态，可重复调用。
func (u *unmarshaller) abort() {
	u.finished = true
	if u.st == nil {
		return
	}
	st := u.st
	u.st = nil
	u.fr.st = nil
	u.fr.in = nil
	if u.release != nil {
		u.release(st)
	}
}
