package marshalling

import (
	"reflect"
	"slices"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// singletonKeyName 是 SingletonKey 在每个 TypeRegistry 中的内置注册名。
const singletonKeyName = "marshalling.SingletonKey"

// TypeRegistry 维护类型名与 reflect.Type 之间的双向映射，是流中对象类型的解析策略。
//
// 写端用它把对象的动态类型翻译成类型名，读端再把类型名翻译回 reflect.Type；
// 两端注册表内容不一致时读端返回 merr.ErrUnknownType。
// TypeRegistry 不是并发安全的：基础配置中的注册表只读，每次往返使用 Clone 出来的副本。
type TypeRegistry struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewTypeRegistry 创建一个只包含内置类型的注册表。
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	r.put(singletonKeyName, reflect.TypeOf(SingletonKey("")))
	return r
}

// Register 以 name 注册 sample 的动态类型。
// 同一名字对应不同类型、或同一类型注册成不同名字时返回 merr.ErrTypeConflict；重复注册完全相同的映射是幂等的。
func (r *TypeRegistry) Register(name string, sample any) error {
	if name == "" {
		return merr.WrapErrParameterInvalidMsg("type name is empty")
	}
	if sample == nil {
		return merr.WrapErrParameterInvalidMsg("sample of %s is nil", name)
	}
	t := reflect.TypeOf(sample)
	if isBuiltinValueType(t) {
		return merr.WrapErrParameterInvalidMsg("builtin type %s needs no registration", t)
	}
	if !isSerializableKind(t.Kind()) {
		return merr.WrapErrUnsupportedValue(sample, "register "+name)
	}
	if existing, ok := r.byName[name]; ok && existing != t {
		return merr.WrapErrTypeConflict(name, existing, t)
	}
	if existing, ok := r.byType[t]; ok && existing != name {
		return merr.WrapErrTypeConflict(name, existing, t, "type already registered under another name")
	}
	r.put(name, t)
	return nil
}

// MustRegister 与 Register 相同，但在出错时 panic，便于在测试和初始化代码中链式调用。
func (r *TypeRegistry) MustRegister(name string, sample any) *TypeRegistry {
	if err := r.Register(name, sample); err != nil {
		panic(err)
	}
	return r
}

func (r *TypeRegistry) put(name string, t reflect.Type) {
	r.byName[name] = t
	r.byType[t] = name
}

// NameOf 返回 t 注册的类型名。
func (r *TypeRegistry) NameOf(t reflect.Type) (string, error) {
	if r != nil {
		if name, ok := r.byType[t]; ok {
			return name, nil
		}
	}
	return "", merr.WrapErrUnknownType(t.String())
}

// TypeOf 返回类型名 name 对应的类型。
func (r *TypeRegistry) TypeOf(name string) (reflect.Type, error) {
	if r != nil {
		if t, ok := r.byName[name]; ok {
			return t, nil
		}
	}
	return nil, merr.WrapErrUnknownType(name)
}

// Names 返回已注册的类型名，按字典序排列。
func (r *TypeRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := lo.Keys(r.byName)
	slices.Sort(names)
	return names
}

func (r *TypeRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}

// Clone 返回一个独立的副本，对副本的注册不会影响原注册表。
func (r *TypeRegistry) Clone() *TypeRegistry {
	if r == nil {
		return NewTypeRegistry()
	}
	return &TypeRegistry{
		byName: lo.Assign(r.byName),
		byType: lo.Assign(r.byType),
	}
}

// isBuiltinValueType 判断 t 是否为流中有专用记录标签的内置值类型。
func isBuiltinValueType(t reflect.Type) bool {
	_, ok := builtinTags[t]
	return ok
}

func isSerializableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Invalid:
		return false
	default:
		return true
	}
}
