// Package types models the semantic types, methods and fields that the
// emitter consumes from the metadata provider.
//
// The emitter never resolves metadata itself. Front ends construct these
// values (or adapt their own type system to them) and hand them to the
// block lowering and the emission context, which only compare, classify
// and print them.
package types

import "strings"

// Kind classifies a Type for lowering decisions.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindChar
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindNativeInt
	KindFloat32
	KindFloat64
	KindString
	KindObject
	KindNull
	KindClass
	KindStruct
	KindPointer
	KindArray
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindBool:      "bool",
	KindChar:      "char",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindUInt8:     "uint8",
	KindUInt16:    "uint16",
	KindUInt32:    "uint32",
	KindUInt64:    "uint64",
	KindNativeInt: "native int",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindString:    "string",
	KindObject:    "object",
	KindNull:      "null",
	KindClass:     "class",
	KindStruct:    "struct",
	KindPointer:   "pointer",
	KindArray:     "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type is a semantic type as seen by the emitter.
type Type struct {
	Elem *Type // element type for pointers and arrays
	Name string
	Kind Kind
}

// Primitive singletons. Compare with Equal, not ==, when types may come
// from different providers.
var (
	Void      = &Type{Name: "void", Kind: KindVoid}
	Bool      = &Type{Name: "bool", Kind: KindBool}
	Char      = &Type{Name: "char", Kind: KindChar}
	Int8      = &Type{Name: "int8", Kind: KindInt8}
	Int16     = &Type{Name: "int16", Kind: KindInt16}
	Int32     = &Type{Name: "int32", Kind: KindInt32}
	Int64     = &Type{Name: "int64", Kind: KindInt64}
	UInt8     = &Type{Name: "uint8", Kind: KindUInt8}
	UInt16    = &Type{Name: "uint16", Kind: KindUInt16}
	UInt32    = &Type{Name: "uint32", Kind: KindUInt32}
	UInt64    = &Type{Name: "uint64", Kind: KindUInt64}
	NativeInt = &Type{Name: "native int", Kind: KindNativeInt}
	Float32   = &Type{Name: "float32", Kind: KindFloat32}
	Float64   = &Type{Name: "float64", Kind: KindFloat64}
	String    = &Type{Name: "string", Kind: KindString}
	Object    = &Type{Name: "object", Kind: KindObject}
	Null      = &Type{Name: "null", Kind: KindNull}
)

var primitives = []*Type{
	Void, Bool, Char, Int8, Int16, Int32, Int64, UInt8, UInt16, UInt32, UInt64,
	NativeInt, Float32, Float64, String, Object, Null,
}

// Primitive looks up a primitive type by name.
func Primitive(name string) (*Type, bool) {
	for _, t := range primitives {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Class returns a named reference type.
func Class(name string) *Type {
	return &Type{Name: name, Kind: KindClass}
}

// Struct returns a named value type.
func Struct(name string) *Type {
	return &Type{Name: name, Kind: KindStruct}
}

// PointerTo returns a managed pointer to elem.
func PointerTo(elem *Type) *Type {
	return &Type{Name: elem.Name + "&", Kind: KindPointer, Elem: elem}
}

// ArrayOf returns a single-dimensional zero-based array of elem.
func ArrayOf(elem *Type) *Type {
	return &Type{Name: elem.Name + "[]", Kind: KindArray, Elem: elem}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Equal reports whether a and b denote the same type.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind || a.Name != b.Name {
		return false
	}
	return Equal(a.Elem, b.Elem)
}

// IsVoid reports whether t is nil or void.
func (t *Type) IsVoid() bool {
	return t == nil || t.Kind == KindVoid
}

// IsInteger reports whether t is a signed or unsigned integer (including char and bool).
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case KindBool, KindChar, KindInt8, KindInt16, KindInt32, KindInt64,
		KindUInt8, KindUInt16, KindUInt32, KindUInt64, KindNativeInt:
		return true
	}
	return false
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t *Type) IsUnsigned() bool {
	switch t.Kind {
	case KindBool, KindChar, KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating-point type.
func (t *Type) IsFloat() bool {
	return t.Kind == KindFloat32 || t.Kind == KindFloat64
}

// IsNumeric reports whether arithmetic operators apply to t.
func (t *Type) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// IsValueType reports whether values of t are stored inline.
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case KindString, KindObject, KindNull, KindClass, KindArray, KindVoid:
		return false
	}
	return true
}

// IsReference reports whether t is a reference (heap object) type.
func (t *Type) IsReference() bool {
	switch t.Kind {
	case KindString, KindObject, KindNull, KindClass, KindArray:
		return true
	}
	return false
}

// Magnitude returns the size in bytes of a primitive numeric type, or 0.
func (t *Type) Magnitude() int {
	switch t.Kind {
	case KindBool, KindInt8, KindUInt8:
		return 1
	case KindChar, KindInt16, KindUInt16:
		return 2
	case KindInt32, KindUInt32, KindFloat32:
		return 4
	case KindInt64, KindUInt64, KindFloat64:
		return 8
	case KindNativeInt:
		return 8
	}
	return 0
}

// Method describes a callable member.
type Method struct {
	DeclaringType *Type
	Return        *Type
	Name          string
	Params        []*Type
	Static        bool
	Virtual       bool
	Constructor   bool
}

// FullName returns Type::Name.
func (m *Method) FullName() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return m.DeclaringType.Name + "::" + m.Name
}

func (m *Method) String() string {
	var b strings.Builder
	if m.Return != nil {
		b.WriteString(m.Return.Name)
		b.WriteByte(' ')
	}
	b.WriteString(m.FullName())
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
	}
	b.WriteByte(')')
	return b.String()
}

// Field describes a field member.
type Field struct {
	DeclaringType *Type
	Type          *Type
	Name          string
	Static        bool
}

// FullName returns Type::Name.
func (f *Field) FullName() string {
	if f.DeclaringType == nil {
		return f.Name
	}
	return f.DeclaringType.Name + "::" + f.Name
}
