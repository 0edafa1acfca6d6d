package marshalling

import (
	"reflect"
)

// identity 是一个引用类实例在会话内的身份：类型 + 地址，切片再加上长度与容量。
// 两个切片只有在三者都相同时才被视为同一实例，子切片不算。
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
	cap int
}

// identityOf 返回 rv 的实例身份，第二个返回值为 false 表示该值没有可追踪的身份：
// 值类型、nil、零容量切片以及指向零大小类型的指针（它们可能共享同一个地址）。
func identityOf(rv reflect.Value) (identity, bool) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Type().Elem().Size() == 0 {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Map:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.IsNil() || rv.Cap() == 0 {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len(), cap: rv.Cap()}, true
	default:
		return identity{}, false
	}
}

// isNil 判断 v 是否为“缺失”：无类型 nil，或值为 nil 的指针、map、切片、chan、func、接口。
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
