package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameRole      = "role"
	FieldNameSession   = "session"
	FieldNameVersion   = "version"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldRole 标记日志来自写端还是读端。
func FieldRole(role string) zap.Field {
	return zap.String(FieldNameRole, role)
}

// FieldSession 返回一个包含会话 ID 的 zap 字段。
func FieldSession(id string) zap.Field {
	return zap.String(FieldNameSession, id)
}

// FieldVersion 返回一个包含协议版本号的 zap 字段。
func FieldVersion(version int) zap.Field {
	return zap.Int(FieldNameVersion, version)
}

// FieldStringer 以 %v 的形式延迟格式化 v，仅在日志真正输出时才调用 String。
func FieldStringer(key string, v fmt.Stringer) zap.Field {
	return zap.Stringer(key, v)
}

// FieldObject 返回一个包含结构化对象的 zap 字段。
func FieldObject(key string, obj zapcore.ObjectMarshaler) zap.Field {
	return zap.Object(key, obj)
}
