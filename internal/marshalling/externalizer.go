package marshalling

import (
	"reflect"
)

// Externalizer 接管某一类型对象体的读写。
//
// 写端在写出类型名与实例句柄之后调用 WriteExternal，读端在预留句柄之后调用 ReadExternal，
// 因此对象体内部再次出现的其它共享实例依然保持引用同一性。
type Externalizer interface {
	WriteExternal(v any, out ObjectOutput) error
	ReadExternal(in ObjectInput) (any, error)
}

// ExternalizerFactory 为给定类型返回 Externalizer，返回 nil 表示该类型走默认的对象体编码。
type ExternalizerFactory func(t reflect.Type) Externalizer

// ExternalizersByType 根据一个固定的类型表构造 ExternalizerFactory。
// 类型表在构造时复制，之后对入参的修改不影响返回的工厂。
func ExternalizersByType(table map[reflect.Type]Externalizer) ExternalizerFactory {
	snapshot := make(map[reflect.Type]Externalizer, len(table))
	for t, e := range table {
		snapshot[t] = e
	}
	return func(t reflect.Type) Externalizer {
		return snapshot[t]
	}
}

// ExternalizerFuncs 用一对函数实现 Externalizer。
type ExternalizerFuncs struct {
	Write func(v any, out ObjectOutput) error
	Read  func(in ObjectInput) (any, error)
}

var _ Externalizer = ExternalizerFuncs{}

func (f ExternalizerFuncs) WriteExternal(v any, out ObjectOutput) error {
	if f.Write == nil {
		return nil
	}
	return f.Write(v, out)
}

func (f ExternalizerFuncs) ReadExternal(in ObjectInput) (any, error) {
	if f.Read == nil {
		return nil, nil
	}
	return f.Read(in)
}
