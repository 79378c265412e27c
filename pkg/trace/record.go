// Package trace implements the dynamic trace text format: a label map preamble
// followed by line oriented instruction records, written through a compressing stream
package trace

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

const (
	// Param number of result records, written as "r"
	ResultLine = 19134
	// Param number of the callee side view of a call argument, written as "f"
	ForwardLine = 24601
	// Opcode of return instructions
	ReturnOpcode = 1

	LabelMapStart = "%%%% LABEL MAP START %%%%\n"
	LabelMapEnd   = "%%%% LABEL MAP END %%%%\n\n"
)

// Kind of value carried by an operand record
type ValueKind int

const (
	ValueKind_Int ValueKind = iota
	ValueKind_Ptr
	ValueKind_Double
	ValueKind_Vector
	ValueKind_String
)

var valueKindNames = map[ValueKind]string{
	ValueKind_Int:    "int",
	ValueKind_Ptr:    "ptr",
	ValueKind_Double: "double",
	ValueKind_Vector: "vector",
	ValueKind_String: "string",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind#%d", int(k))
}

// Value is the payload of an operand record
type Value struct {
	Kind   ValueKind
	Int    int64
	Ptr    uint64
	Double float64
	Bytes  []byte
	Text   string
}

func Int(v int64) Value        { return Value{Kind: ValueKind_Int, Int: v} }
func Ptr(v uint64) Value       { return Value{Kind: ValueKind_Ptr, Ptr: v} }
func Double(v float64) Value   { return Value{Kind: ValueKind_Double, Double: v} }
func Vector(v []byte) Value    { return Value{Kind: ValueKind_Vector, Bytes: v} }
func String(text string) Value { return Value{Kind: ValueKind_String, Text: text} }

// Returns the value as written in operand records. Integers are printed in
// decimal, pointers in C "%#llx" style, doubles in C "%f" style and vectors as
// the hex dump of their bytes in memory order
func (v Value) Format() string {
	switch v.Kind {
	case ValueKind_Int:
		return strconv.FormatInt(v.Int, 10)
	case ValueKind_Ptr:
		if v.Ptr == 0 {
			return "0"
		}
		return "0x" + strconv.FormatUint(v.Ptr, 16)
	case ValueKind_Double:
		switch {
		case math.IsInf(v.Double, 1):
			return "inf"
		case math.IsInf(v.Double, -1):
			return "-inf"
		case math.IsNaN(v.Double):
			return "nan"
		}
		return strconv.FormatFloat(v.Double, 'f', 6, 64)
	case ValueKind_Vector:
		return "0x" + hex.EncodeToString(v.Bytes)
	}
	return v.Text
}

func (v Value) String() string {
	return v.Format()
}

// Header starts the records of one executed instruction
type Header struct {
	Line        int
	Function    string
	Block       string
	Instruction string
	Opcode      int
	Count       int64
}

// Entry marks the invocation of a tracked function
type Entry struct {
	Function string
	Params   int
}

// Operand describes one operand, result or forwarded argument of the last header
type Operand struct {
	// Param is the 1-based operand index, ResultLine or ForwardLine
	Param int
	// Size is the operand width in bits
	Size      int
	Value     Value
	IsReg     bool
	Label     string
	IsPhi     bool
	PrevBlock string
}

// Returns the param field as written in traces
func (o *Operand) ParamField() string {
	switch o.Param {
	case ResultLine:
		return "r"
	case ForwardLine:
		return "f"
	}
	return strconv.Itoa(o.Param)
}

// Kind of a trace record
type RecordKind int

const (
	RecordKind_Header RecordKind = iota
	RecordKind_Entry
	RecordKind_Operand
)

func (k RecordKind) String() string {
	switch k {
	case RecordKind_Header:
		return "header"
	case RecordKind_Entry:
		return "entry"
	case RecordKind_Operand:
		return "operand"
	}
	return fmt.Sprintf("record#%d", int(k))
}

// Record is any of the records of a trace. Only the field matching Kind is set
type Record struct {
	Kind    RecordKind
	Header  *Header
	Entry   *Entry
	Operand *Operand
}

// Returns the record as written in traces, without surrounding blank lines
func (r Record) String() string {
	switch r.Kind {
	case RecordKind_Header:
		return formatHeader(r.Header)
	case RecordKind_Entry:
		return formatEntry(r.Entry)
	case RecordKind_Operand:
		line := formatOperand(r.Operand)
		return line[:len(line)-1]
	}
	return "<invalid record>"
}

func formatHeader(h *Header) string {
	return fmt.Sprintf("0,%d,%s,%s,%s,%d,%d", h.Line, h.Function, h.Block, h.Instruction, h.Opcode, h.Count)
}

func formatEntry(e *Entry) string {
	return fmt.Sprintf("entry,%s,%d,", e.Function, e.Params)
}

func formatOperand(o *Operand) string {
	isReg := 0
	if o.IsReg {
		isReg = 1
	}

	line := fmt.Sprintf("%s,%d,%s,%d", o.ParamField(), o.Size, o.Value.Format(), isReg)

	if o.IsReg {
		line += "," + o.Label
	} else {
		line += ", "
	}

	if o.IsPhi {
		line += "," + o.PrevBlock + ",\n"
	} else {
		line += ",\n"
	}

	return line
}
