package marshalling

import (
	"io"
	"reflect"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// ByteOutput 是 Marshaller 写出字节的目的地。
type ByteOutput interface {
	io.Writer
	Flush() error
}

// ByteInput 是 Unmarshaller 读取字节的来源。
type ByteInput interface {
	io.Reader
}

type flusher interface {
	Flush() error
}

type byteOutput struct {
	io.Writer
}

func (o byteOutput) Flush() error {
	if f, ok := o.Writer.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// NewByteOutput 把任意 io.Writer 适配为 ByteOutput；w 自带 Flush 时透传。
func NewByteOutput(w io.Writer) ByteOutput {
	if out, ok := w.(ByteOutput); ok {
		return out
	}
	return byteOutput{Writer: w}
}

type byteInput struct {
	io.Reader
}

// NewByteInput 把任意 io.Reader 适配为 ByteInput。
func NewByteInput(r io.Reader) ByteInput {
	if in, ok := r.(ByteInput); ok {
		return in
	}
	return byteInput{Reader: r}
}

// ObjectOutput 是写端的记录级操作。
//
// 原始类型（WriteBool ... WriteString、Write）不带类型标签，读端必须以相同的顺序与类型读取；
// WriteObject 带类型标签，并保持会话内共享实例的引用同一性。
type ObjectOutput interface {
	WriteObject(v any) error
	WriteBool(v bool) error
	WriteByte(v byte) error
	WriteInt16(v int16) error
	WriteInt32(v int32) error
	WriteInt64(v int64) error
	WriteFloat32(v float32) error
	WriteFloat64(v float64) error
	WriteString(v string) error
	Write(p []byte) (int, error)
}

// ObjectInput 是读端的记录级操作。
//
// ReadByte 与 Read 是“读一个单元”的原始操作：流中没有更多数据时返回 io.EOF。
// 其余带类型的读取在数据不足时返回 merr.ErrPrematureEOF。
type ObjectInput interface {
	ReadObject() (any, error)
	ReadObjectAs(t reflect.Type) (any, error)
	ReadBool() (bool, error)
	ReadByte() (byte, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadFull(p []byte) error
	Read(p []byte) (int, error)
}

// Marshaller 是单次使用的写会话：Start 绑定输出，Finish 结束会话，此后不允许再写。
type Marshaller interface {
	ObjectOutput
	Start(out ByteOutput) error
	Flush() error
	Finish() error
	ID() string
	Version() int
}

// Unmarshaller 是单次使用的读会话：Start 绑定输入并校验流头，Finish 结束会话。
type Unmarshaller interface {
	ObjectInput
	Start(in ByteInput) error
	Finish() error
	ID() string
	Version() int
}

// ReadAs 读取下一个对象并断言为 T。
// 读到 null 时，T 可以为 nil（指针、map、切片、接口等）则返回 nil，否则返回 ErrPresenceMismatch，
// 不会用零值冒充 null。
func ReadAs[T any](in ObjectInput) (T, error) {
	var zero T
	v, err := in.ReadObject()
	if err != nil {
		return zero, err
	}
	if v == nil {
		if t := reflect.TypeFor[T](); !isNillableKind(t.Kind()) {
			return zero, merr.WrapErrPresenceMismatch(false, "null record read as "+t.String())
		}
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, merr.WrapErrParameterInvalidMsg("read object is %T, not %s", v, reflect.TypeFor[T]())
	}
	return t, nil
}

func isNillableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}
