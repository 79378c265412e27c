package ir

import (
	"fmt"
	"strings"
)

// Value is anything that can be used as an instruction operand
type Value interface {
	// Name returns the symbolic name of the value, empty if the value is unnamed
	Name() string
	// Type returns the type of the value
	Type() *Type
}

// Argument is a formal parameter of a function
type Argument struct {
	ArgName string
	ArgType *Type
	Parent  *Function
	Index   int
}

func (a *Argument) Name() string { return a.ArgName }
func (a *Argument) Type() *Type  { return a.ArgType }

// Identifies the flavor of a constant
type ConstantKind int

const (
	ConstantKind_Int ConstantKind = iota
	ConstantKind_Float
	ConstantKind_Null
	ConstantKind_Undef
	ConstantKind_Vector
)

// Constant is an immediate value
type Constant struct {
	ConstType *Type
	Kind      ConstantKind
	Int       int64
	Float     float64
	// Elements holds the members of constant vectors
	Elements []*Constant
}

func (c *Constant) Name() string { return "" }
func (c *Constant) Type() *Type  { return c.ConstType }

// Returns an integer constant of the given width
func ConstInt(width int, value int64) *Constant {
	return &Constant{ConstType: Int(width), Kind: ConstantKind_Int, Int: value}
}

// Returns a floating point constant of the given type
func ConstFloat(t *Type, value float64) *Constant {
	return &Constant{ConstType: t, Kind: ConstantKind_Float, Float: value}
}

// Returns a null pointer constant
func ConstNull(t *Type) *Constant {
	return &Constant{ConstType: t, Kind: ConstantKind_Null}
}

// Returns an undefined value of the given type
func Undef(t *Type) *Constant {
	return &Constant{ConstType: t, Kind: ConstantKind_Undef}
}

func (c *Constant) String() string {
	switch c.Kind {
	case ConstantKind_Int:
		return fmt.Sprintf("%v %d", c.ConstType, c.Int)
	case ConstantKind_Float:
		return fmt.Sprintf("%v %g", c.ConstType, c.Float)
	case ConstantKind_Null:
		return fmt.Sprintf("%v null", c.ConstType)
	case ConstantKind_Vector:
		elems := make([]string, len(c.Elements))
		for i, e := range c.Elements {
			elems[i] = e.String()
		}
		return fmt.Sprintf("%v <%v>", c.ConstType, strings.Join(elems, ", "))
	}
	return fmt.Sprintf("%v undef", c.ConstType)
}

// ConstantData is the initializer of a global array
type ConstantData struct {
	DataType *Type
	Bytes    []byte
}

// Returns true if the data is a nul terminated i8 array, i.e. a C string literal
func (d *ConstantData) IsString() bool {
	if d == nil || !d.DataType.IsArray() || !d.DataType.Elem.IsInteger() || d.DataType.Elem.Width != 8 {
		return false
	}
	return len(d.Bytes) > 0 && d.Bytes[len(d.Bytes)-1] == 0
}

// Returns the contents of a string literal without its nul terminator
func (d *ConstantData) AsString() string {
	if !d.IsString() {
		return ""
	}
	return string(d.Bytes[:len(d.Bytes)-1])
}

// GlobalVariable is a module level variable. As a value it is a pointer to its storage
type GlobalVariable struct {
	GlobalName  string
	ValueType   *Type
	IsConstant  bool
	Initializer *ConstantData
}

func (g *GlobalVariable) Name() string { return g.GlobalName }
func (g *GlobalVariable) Type() *Type  { return Pointer(g.ValueType) }

// ConstantExpr is a constant computed from other constants, typically a
// getelementptr or bitcast of a global
type ConstantExpr struct {
	Op       Opcode
	Operands []Value
	ExprType *Type
}

func (e *ConstantExpr) Name() string { return "" }
func (e *ConstantExpr) Type() *Type  { return e.ExprType }

// LocalAsMetadata wraps a local value so it can be passed to debug intrinsics
type LocalAsMetadata struct {
	Wrapped Value
}

func (m *LocalAsMetadata) Name() string { return "" }
func (m *LocalAsMetadata) Type() *Type  { return Metadata() }

// DIVariable describes a source level variable in debug metadata
type DIVariable struct {
	VarName string
	Line    int
}

func (v *DIVariable) Name() string { return "" }
func (v *DIVariable) Type() *Type  { return Metadata() }

// DebugLoc is the source location attached to an instruction
type DebugLoc struct {
	// File is the path to the source file
	File string
	// Line is the 1-indexed line number in the source file
	Line int
	// Column is the 1-indexed column number (0 if unknown)
	Column int
}

// IsValid returns true if the source location has meaningful data
func (l *DebugLoc) IsValid() bool {
	return l != nil && l.Line > 0
}

// String returns a human-readable representation of the source location
func (l *DebugLoc) String() string {
	if !l.IsValid() {
		return "<unknown>"
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}
