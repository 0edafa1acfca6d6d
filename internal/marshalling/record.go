package marshalling

import (
	"encoding/binary"
	"math"
	"reflect"
)

// 记录标签。原始类型的写入不带标签，只有 WriteObject 写出的记录以标签开头。
const (
	tagNull  byte = 0x01
	tagTrue  byte = 0x02
	tagFalse byte = 0x03

	tagInt     byte = 0x10
	tagInt8    byte = 0x11
	tagInt16   byte = 0x12
	tagInt32   byte = 0x13
	tagInt64   byte = 0x14
	tagUint    byte = 0x15
	tagUint8   byte = 0x16
	tagUint16  byte = 0x17
	tagUint32  byte = 0x18
	tagUint64  byte = 0x19
	tagUintptr byte = 0x1A

	tagFloat32    byte = 0x20
	tagFloat64    byte = 0x21
	tagComplex64  byte = 0x22
	tagComplex128 byte = 0x23
	tagString     byte = 0x24

	tagObject   byte = 0x30
	tagBackRef  byte = 0x31
	tagExternal byte = 0x32

	// noHandle 表示对象没有实例身份，读端不为它预留句柄。
	noHandle uint32 = math.MaxUint32
)

// builtinTags 为精确匹配的内置类型分配标签，具名类型（如 type Color int）需要注册到 TypeRegistry。
var builtinTags = map[reflect.Type]byte{
	reflect.TypeFor[bool]():       tagTrue,
	reflect.TypeFor[int]():        tagInt,
	reflect.TypeFor[int8]():       tagInt8,
	reflect.TypeFor[int16]():      tagInt16,
	reflect.TypeFor[int32]():      tagInt32,
	reflect.TypeFor[int64]():      tagInt64,
	reflect.TypeFor[uint]():       tagUint,
	reflect.TypeFor[uint8]():      tagUint8,
	reflect.TypeFor[uint16]():     tagUint16,
	reflect.TypeFor[uint32]():     tagUint32,
	reflect.TypeFor[uint64]():     tagUint64,
	reflect.TypeFor[uintptr]():    tagUintptr,
	reflect.TypeFor[float32]():    tagFloat32,
	reflect.TypeFor[float64]():    tagFloat64,
	reflect.TypeFor[complex64]():  tagComplex64,
	reflect.TypeFor[complex128](): tagComplex128,
	reflect.TypeFor[string]():     tagString,
}

// appendBuiltin 按标签把内置类型的值编码到 dst 之后。
func appendBuiltin(dst []byte, tag byte, rv reflect.Value) []byte {
	switch tag {
	case tagTrue:
		if rv.Bool() {
			return append(dst, tagTrue)
		}
		return append(dst, tagFalse)
	case tagInt8, tagUint8:
		dst = append(dst, tag)
		if tag == tagInt8 {
			return append(dst, byte(rv.Int()))
		}
		return append(dst, byte(rv.Uint()))
	case tagInt16:
		return binary.BigEndian.AppendUint16(append(dst, tag), uint16(rv.Int()))
	case tagUint16:
		return binary.BigEndian.AppendUint16(append(dst, tag), uint16(rv.Uint()))
	case tagInt32:
		return binary.BigEndian.AppendUint32(append(dst, tag), uint32(rv.Int()))
	case tagUint32:
		return binary.BigEndian.AppendUint32(append(dst, tag), uint32(rv.Uint()))
	case tagInt, tagInt64:
		return binary.BigEndian.AppendUint64(append(dst, tag), uint64(rv.Int()))
	case tagUint, tagUint64, tagUintptr:
		return binary.BigEndian.AppendUint64(append(dst, tag), rv.Uint())
	case tagFloat32:
		return binary.BigEndian.AppendUint32(append(dst, tag), math.Float32bits(float32(rv.Float())))
	case tagFloat64:
		return binary.BigEndian.AppendUint64(append(dst, tag), math.Float64bits(rv.Float()))
	case tagComplex64:
		c := rv.Complex()
		dst = binary.BigEndian.AppendUint32(append(dst, tag), math.Float32bits(float32(real(c))))
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(imag(c))))
	case tagComplex128:
		c := rv.Complex()
		dst = binary.BigEndian.AppendUint64(append(dst, tag), math.Float64bits(real(c)))
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(imag(c)))
	case tagString:
		s := rv.String()
		dst = binary.BigEndian.AppendUint32(append(dst, tag), uint32(len(s)))
		return append(dst, s...)
	default:
		return dst
	}
}

// builtinWidth 返回标签之后定长数据的字节数，字符串与非内置标签返回 -1。
func builtinWidth(tag byte) int {
	switch tag {
	case tagTrue, tagFalse:
		return 0
	case tagInt8, tagUint8:
		return 1
	case tagInt16, tagUint16:
		return 2
	case tagInt32, tagUint32, tagFloat32:
		return 4
	case tagInt, tagInt64, tagUint, tagUint64, tagUintptr, tagFloat64, tagComplex64:
		return 8
	case tagComplex128:
		return 16
	default:
		return -1
	}
}

// decodeBuiltin 把定长数据还原为与写入时完全相同的 Go 类型。
func decodeBuiltin(tag byte, b []byte) any {
	switch tag {
	case tagTrue:
		return true
	case tagFalse:
		return false
	case tagInt8:
		return int8(b[0])
	case tagUint8:
		return b[0]
	case tagInt16:
		return int16(binary.BigEndian.Uint16(b))
	case tagUint16:
		return binary.BigEndian.Uint16(b)
	case tagInt32:
		return int32(binary.BigEndian.Uint32(b))
	case tagUint32:
		return binary.BigEndian.Uint32(b)
	case tagInt:
		return int(int64(binary.BigEndian.Uint64(b)))
	case tagInt64:
		return int64(binary.BigEndian.Uint64(b))
	case tagUint:
		return uint(binary.BigEndian.Uint64(b))
	case tagUint64:
		return binary.BigEndian.Uint64(b)
	case tagUintptr:
		return uintptr(binary.BigEndian.Uint64(b))
	case tagFloat32:
		return math.Float32frombits(binary.BigEndian.Uint32(b))
	case tagFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	case tagComplex64:
		re := math.Float32frombits(binary.BigEndian.Uint32(b[:4]))
		im := math.Float32frombits(binary.BigEndian.Uint32(b[4:8]))
		return complex(re, im)
	case tagComplex128:
		re := math.Float64frombits(binary.BigEndian.Uint64(b[:8]))
		im := math.Float64frombits(binary.BigEndian.Uint64(b[8:16]))
		return complex(re, im)
	default:
		return nil
	}
}
