package marshalling

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// ObjectResolver 在对象写出前和读入后做替换，用于把单例、缓存实例等规范化。
type ObjectResolver interface {
	// WriteReplace 返回实际写入流中的对象。
	WriteReplace(v any) (any, error)
	// ReadResolve 返回从流中读出的对象最终交给调用方的形式。
	ReadResolve(v any) (any, error)
}

// ResolverCloner 由持有可变状态的 ObjectResolver 实现，Configuration.Clone 会调用它。
type ResolverCloner interface {
	CloneResolver() ObjectResolver
}

// SingletonKey 是单例在流中的替身，内置注册在每个 TypeRegistry 中。
type SingletonKey string

// SingletonResolver 把登记过的单例实例替换为 SingletonKey 写出，读入时再换回同一个实例，
// 因此单例在往返后保持引用同一性。
type SingletonResolver struct {
	byKey      map[SingletonKey]any
	byIdentity map[identity]SingletonKey
}

var (
	_ ObjectResolver = (*SingletonResolver)(nil)
	_ ResolverCloner = (*SingletonResolver)(nil)
)

func NewSingletonResolver() *SingletonResolver {
	return &SingletonResolver{
		byKey:      make(map[SingletonKey]any),
		byIdentity: make(map[identity]SingletonKey),
	}
}

// Register 登记一个单例。instance 必须是有实例身份的值（非 nil 指针、map 或切片）。
func (r *SingletonResolver) Register(key string, instance any) error {
	if key == "" {
		return merr.WrapErrParameterInvalidMsg("singleton key is empty")
	}
	if isNil(instance) {
		return merr.WrapErrParameterInvalidMsg("singleton %s is nil", key)
	}
	id, ok := identityOf(reflect.ValueOf(instance))
	if !ok {
		return merr.WrapErrParameterInvalidMsg("singleton %s of type %T has no instance identity", key, instance)
	}
	k := SingletonKey(key)
	if existing, ok := r.byKey[k]; ok {
		return merr.WrapErrTypeConflict(key, fmt.Sprintf("%T", existing), fmt.Sprintf("%T", instance), "singleton key already registered")
	}
	r.byKey[k] = instance
	r.byIdentity[id] = k
	return nil
}

// MustRegister 与 Register 相同，但在出错时 panic。
func (r *SingletonResolver) MustRegister(key string, instance any) *SingletonResolver {
	if err := r.Register(key, instance); err != nil {
		panic(err)
	}
	return r
}

// Lookup 返回 key 对应的单例。
func (r *SingletonResolver) Lookup(key string) (any, bool) {
	v, ok := r.byKey[SingletonKey(key)]
	return v, ok
}

func (r *SingletonResolver) WriteReplace(v any) (any, error) {
	if isNil(v) {
		return v, nil
	}
	id, ok := identityOf(reflect.ValueOf(v))
	if !ok {
		return v, nil
	}
	if key, ok := r.byIdentity[id]; ok {
		return key, nil
	}
	return v, nil
}

func (r *SingletonResolver) ReadResolve(v any) (any, error) {
	key, ok := v.(SingletonKey)
	if !ok {
		return v, nil
	}
	inst, ok := r.byKey[key]
	if !ok {
		return nil, merr.WrapErrUnknownType(string(key), "singleton not registered on read side")
	}
	return inst, nil
}

// CloneResolver 复制登记表；单例实例本身是共享的规范实例，不复制。
func (r *SingletonResolver) CloneResolver() ObjectResolver {
	return &SingletonResolver{
		byKey:      lo.Assign(r.byKey),
		byIdentity: lo.Assign(r.byIdentity),
	}
}

// Keys 返回已登记的单例 key，按字典序排列。
func (r *SingletonResolver) Keys() []string {
	keys := lo.Map(lo.Keys(r.byKey), func(k SingletonKey, _ int) string { return string(k) })
	slices.Sort(keys)
	return keys
}

func (r *SingletonResolver) String() string {
	return fmt.Sprintf("SingletonResolver%v", r.Keys())
}
