package planner

import (
	"fmt"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracer/classifier"
	"github.com/Manu343726/lltrace/pkg/tracer/opcodes"
)

// Call is a call to the tracing runtime inserted in the instrumented program
type Call interface {
	// Symbol is the name of the runtime function called
	Symbol() string
	String() string
}

// EntryCall marks the invocation of a tracked function
type EntryCall struct {
	Function     string
	Params       int
	TopLevelMode bool
}

func (c *EntryCall) Symbol() string { return "trace_logger_log_entry" }

func (c *EntryCall) String() string {
	return fmt.Sprintf("entry %v(%v params)", c.Function, c.Params)
}

// HeaderCall starts the records of an instruction
type HeaderCall struct {
	Line         int
	Function     string
	Block        string
	Instruction  string
	Opcode       opcodes.Opcode
	Tracked      bool
	TopLevelMode bool
}

func (c *HeaderCall) Symbol() string { return "trace_logger_log0" }

func (c *HeaderCall) String() string {
	return fmt.Sprintf("header %v line %v %v/%v/%v tracked=%v toplevel=%v", c.Opcode, c.Line, c.Function, c.Block, c.Instruction, c.Tracked, c.TopLevelMode)
}

// OperandCall logs an operand, result or forwarded argument of the last header
type OperandCall struct {
	// Kind selects the runtime entry point and how Value is converted
	Kind      trace.ValueKind
	Param     int
	Size      int
	DataType  ir.TypeID
	IsReg     bool
	Label     string
	IsPhi     bool
	PrevBlock string
	// Value whose runtime contents are logged. Nil logs a zero
	Value ir.Value
	// Scratch buffer vectors are stored to before logging
	Scratch *classifier.Scratch
	// Text of string literals
	Text string
}

func (c *OperandCall) Symbol() string {
	return "trace_logger_log_" + c.Kind.String()
}

func (c *OperandCall) String() string {
	value := "0"
	switch {
	case c.Kind == trace.ValueKind_String:
		value = fmt.Sprintf("%q", c.Text)
	case c.Value != nil && c.Value.Name() != "":
		value = "%" + c.Value.Name()
	case c.Value != nil:
		value = fmt.Sprint(c.Value)
	}

	param := (&trace.Operand{Param: c.Param}).ParamField()
	s := fmt.Sprintf("%v %v size=%v value=%v", c.Kind, param, c.Size, value)
	if c.IsReg {
		s += " reg=" + c.Label
	}
	if c.IsPhi {
		s += " from=" + c.PrevBlock
	}
	return s
}

// StatusCall updates the logging status after the return of a tracked function
type StatusCall struct {
	Function     string
	Opcode       opcodes.Opcode
	Tracked      bool
	TopLevelMode bool
}

func (c *StatusCall) Symbol() string { return "trace_logger_update_status" }

func (c *StatusCall) String() string {
	return fmt.Sprintf("status %v %v", c.Function, c.Opcode)
}

// LabelMapCall registers the label map embedded in trace streams
type LabelMapCall struct {
	LabelMap string
}

func (c *LabelMapCall) Symbol() string { return "trace_logger_register_labelmap" }

func (c *LabelMapCall) String() string {
	return fmt.Sprintf("labelmap (%v bytes)", len(c.LabelMap))
}

// Inserter inserts runtime calls around instructions. Calls inserted at the same
// position run in insertion order
type Inserter interface {
	InsertBefore(inst *ir.Instruction, call Call)
	InsertAfter(inst *ir.Instruction, call Call)
}
