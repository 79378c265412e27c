package ir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrUnknownType = errors.New("unknown data type")

// Identifies the kind of an IR type. Values follow the LLVM 3.4 Type::TypeID numbering
// so that they can be emitted verbatim in traces
type TypeID int

const (
	TypeID_Void TypeID = iota
	TypeID_Half
	TypeID_Float
	TypeID_Double
	TypeID_X86FP80
	TypeID_FP128
	TypeID_PPCFP128
	TypeID_Label
	TypeID_Metadata
	TypeID_X86MMX
	TypeID_Integer
	TypeID_Function
	TypeID_Struct
	TypeID_Array
	TypeID_Pointer
	TypeID_Vector
)

var typeIDNames = map[TypeID]string{
	TypeID_Void:     "void",
	TypeID_Half:     "half",
	TypeID_Float:    "float",
	TypeID_Double:   "double",
	TypeID_X86FP80:  "x86_fp80",
	TypeID_FP128:    "fp128",
	TypeID_PPCFP128: "ppc_fp128",
	TypeID_Label:    "label",
	TypeID_Metadata: "metadata",
	TypeID_X86MMX:   "x86_mmx",
	TypeID_Integer:  "integer",
	TypeID_Function: "function",
	TypeID_Struct:   "struct",
	TypeID_Array:    "array",
	TypeID_Pointer:  "pointer",
	TypeID_Vector:   "vector",
}

func (id TypeID) String() string {
	if name, ok := typeIDNames[id]; ok {
		return name
	}

	return fmt.Sprintf("type#%d", int(id))
}

// Returns true if the type id is one of the floating point kinds
func (id TypeID) IsFloatingPoint() bool {
	return id >= TypeID_Half && id <= TypeID_PPCFP128
}

// Type describes the type of an IR value
type Type struct {
	ID TypeID
	// Width is the bit width of integer types
	Width int
	// Elem is the pointee type of pointers and the element type of arrays and vectors
	Elem *Type
	// Count is the number of elements of arrays and vectors
	Count int
	// Fields are the member types of structs
	Fields []*Type
	// Result and Params describe function types
	Result *Type
	Params []*Type
}

func Void() *Type     { return &Type{ID: TypeID_Void} }
func Half() *Type     { return &Type{ID: TypeID_Half} }
func Float() *Type    { return &Type{ID: TypeID_Float} }
func Double() *Type   { return &Type{ID: TypeID_Double} }
func X86FP80() *Type  { return &Type{ID: TypeID_X86FP80} }
func FP128() *Type    { return &Type{ID: TypeID_FP128} }
func PPCFP128() *Type { return &Type{ID: TypeID_PPCFP128} }
func Label() *Type    { return &Type{ID: TypeID_Label} }
func Metadata() *Type { return &Type{ID: TypeID_Metadata} }

// Returns an integer type of the given bit width
func Int(width int) *Type {
	return &Type{ID: TypeID_Integer, Width: width}
}

// Returns a pointer type to the given element type
func Pointer(elem *Type) *Type {
	return &Type{ID: TypeID_Pointer, Elem: elem}
}

// Returns an array type of n elements
func Array(elem *Type, n int) *Type {
	return &Type{ID: TypeID_Array, Elem: elem, Count: n}
}

// Returns a vector type of n elements
func Vector(elem *Type, n int) *Type {
	return &Type{ID: TypeID_Vector, Elem: elem, Count: n}
}

// Returns a struct type with the given members
func Struct(fields ...*Type) *Type {
	return &Type{ID: TypeID_Struct, Fields: fields}
}

// Returns a function type
func FunctionOf(result *Type, params ...*Type) *Type {
	return &Type{ID: TypeID_Function, Result: result, Params: params}
}

func (t *Type) IsVoid() bool          { return t == nil || t.ID == TypeID_Void }
func (t *Type) IsInteger() bool       { return t != nil && t.ID == TypeID_Integer }
func (t *Type) IsFloatingPoint() bool { return t != nil && t.ID.IsFloatingPoint() }
func (t *Type) IsPointer() bool       { return t != nil && t.ID == TypeID_Pointer }
func (t *Type) IsVector() bool        { return t != nil && t.ID == TypeID_Vector }
func (t *Type) IsLabel() bool         { return t != nil && t.ID == TypeID_Label }
func (t *Type) IsArray() bool         { return t != nil && t.ID == TypeID_Array }

// Returns true if both types are structurally identical
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.String() == other.String()
}

// Returns the type in LLVM assembly syntax
func (t *Type) String() string {
	if t == nil {
		return "void"
	}

	switch t.ID {
	case TypeID_Integer:
		return fmt.Sprintf("i%d", t.Width)
	case TypeID_Pointer:
		return t.Elem.String() + "*"
	case TypeID_Array:
		return fmt.Sprintf("[%d x %v]", t.Count, t.Elem)
	case TypeID_Vector:
		return fmt.Sprintf("<%d x %v>", t.Count, t.Elem)
	case TypeID_Struct:
		return "{" + strings.Join(utils.Map(t.Fields, (*Type).String), ", ") + "}"
	case TypeID_Function:
		return fmt.Sprintf("%v (%v)", t.Result, strings.Join(utils.Map(t.Params, (*Type).String), ", "))
	}

	return t.ID.String()
}

// SizeInBits computes the bit width used to describe values of type t in traces.
//
// Structs add up the sizes of their members, arrays multiply the element size by
// the number of elements, pointers are always 64 bits wide and vectors use their
// aggregate width. Labels and functions have no size. Any other type is an
// internal inconsistency and reported as ErrUnknownType.
func SizeInBits(t *Type) (int, error) {
	if t == nil {
		return 0, utils.MakeError(ErrUnknownType, "nil type")
	}

	switch t.ID {
	case TypeID_Pointer:
		return 64, nil
	case TypeID_Function, TypeID_Label:
		return 0, nil
	case TypeID_Half:
		return 16, nil
	case TypeID_Float:
		return 32, nil
	case TypeID_Double:
		return 64, nil
	case TypeID_X86FP80:
		return 80, nil
	case TypeID_FP128, TypeID_PPCFP128:
		return 128, nil
	case TypeID_X86MMX:
		return 64, nil
	case TypeID_Integer:
		return t.Width, nil
	case TypeID_Struct:
		size := 0
		for _, field := range t.Fields {
			fieldSize, err := SizeInBits(field)
			if err != nil {
				return 0, err
			}
			size += fieldSize
		}
		return size, nil
	case TypeID_Array, TypeID_Vector:
		elemSize, err := SizeInBits(t.Elem)
		if err != nil {
			return 0, err
		}
		return t.Count * elemSize, nil
	}

	return 0, utils.MakeError(ErrUnknownType, "%v", t.ID)
}
