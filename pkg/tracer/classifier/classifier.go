// Package classifier determines how instruction operands are described in traces
package classifier

import (
	"errors"
	"fmt"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/utils"
)

var (
	ErrUnnamedValue = errors.New("value has no name nor local slot")
	ErrNoFunction   = errors.New("no function being classified")
)

// Provenance class of an operand
type Category int

const (
	// Value produced by an instruction of the current function
	Category_Register Category = iota
	// Arguments, globals, constants
	Category_Value
	// Basic block reference
	Category_Label
	// Bare function reference
	Category_Function
	// Vector typed value
	Category_Vector
)

var categoryNames = map[Category]string{
	Category_Register: "register",
	Category_Value:    "value",
	Category_Label:    "label",
	Category_Function: "function",
	Category_Vector:   "vector",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category#%d", int(c))
}

// Operand describes how a value is written in an operand record
type Operand struct {
	Category Category
	// ID is the textual identifier of the value, empty for unnamed immediates
	ID         string
	DataType   ir.TypeID
	DataSize   int
	IsRegister bool
	// Value is the value logged inline, nil when the operand has no inline value
	Value ir.Value
	// Scratch is the buffer vector values are spilled to before being logged
	Scratch *Scratch
	// IsString is set for constant string literals, logged as text instead of as an address
	IsString bool
	String   string
}

// Returns true if the operand carries an inline value
func (o *Operand) HasValue() bool {
	return o.Value != nil
}

// Shape of a vector scratch buffer
type ScratchKey struct {
	Elements     int
	ElementBytes int
	Element      ir.TypeID
}

// Scratch is a buffer a vector value is stored into so its raw bytes can be logged
type Scratch struct {
	Key   ScratchKey
	Bytes []byte
}

// Classifier classifies the operands of one function at a time. Name recovery
// caches, block counters and vector scratch buffers are scoped to the function
// passed to Begin
type Classifier struct {
	fn       *ir.Function
	slots    *ir.SlotTracker
	loops    *ir.LoopInfo
	names    map[ir.Value]string
	counters map[*ir.BasicBlock]int
	scratch  map[ScratchKey]*Scratch
}

func New() *Classifier {
	return &Classifier{}
}

// Starts classifying the given function, discarding all state of the previous one
func (c *Classifier) Begin(fn *ir.Function) {
	c.fn = fn
	c.slots = ir.NewSlotTracker(fn)
	c.loops = ir.AnalyzeLoops(fn)
	c.names = map[ir.Value]string{}
	c.counters = map[*ir.BasicBlock]int{}
	c.scratch = map[ScratchKey]*Scratch{}
}

// Returns the function being classified
func (c *Classifier) Function() *ir.Function {
	return c.fn
}

// Returns the loop analysis of the function being classified
func (c *Classifier) Loops() *ir.LoopInfo {
	return c.loops
}

// Returns the local slot of the value, -1 if it has none
func (c *Classifier) Slot(v ir.Value) int {
	if c.slots == nil {
		return -1
	}
	return c.slots.LocalSlot(v)
}

// Records a name recovered from debug info for an unnamed value
func (c *Classifier) RecordName(v ir.Value, name string) {
	c.names[v] = name
}

// Returns the name recovered for the value, if any
func (c *Classifier) RecoveredName(v ir.Value) (string, bool) {
	name, ok := c.names[v]
	return name, ok
}

// Resolves the identifier of a local value: symbolic name, then recovered name,
// then local slot number
func (c *Classifier) valueName(v ir.Value) (string, bool) {
	if name := v.Name(); name != "" {
		return name, true
	}
	if name, ok := c.names[v]; ok {
		return name, true
	}
	if slot := c.Slot(v); slot >= 0 {
		return fmt.Sprint(slot), true
	}
	return "", false
}

// Returns the identifier of a basic block: its name or slot followed by its loop depth
func (c *Classifier) BlockID(bb *ir.BasicBlock) string {
	depth := 0
	if c.loops != nil {
		depth = c.loops.Depth(bb)
	}

	if bb.BlockName != "" {
		return fmt.Sprintf("%s:%d", bb.BlockName, depth)
	}
	return fmt.Sprintf("%d:%d", c.Slot(bb), depth)
}

// Returns the identifier of an instruction as written in its header record.
// Instructions producing no value get a "<blockid>-<n>" identifier, where n
// counts such instructions within the block
func (c *Classifier) InstructionID(inst *ir.Instruction) (string, error) {
	if c.fn == nil {
		return "", ErrNoFunction
	}

	if id, ok := c.valueName(inst); ok {
		return id, nil
	}

	if !inst.IsVoid() {
		return "", utils.MakeError(ErrUnnamedValue, "%v instruction in block '%v'", inst.Op, c.BlockID(inst.Parent))
	}

	n := c.counters[inst.Parent]
	c.counters[inst.Parent]++
	return fmt.Sprintf("%s-%d", c.BlockID(inst.Parent), n), nil
}

// Consumes the identifier of an instruction that is not instrumented. Void
// instructions take their "<blockid>-<n>" number whether they are traced or not
func (c *Classifier) SkipInstruction(inst *ir.Instruction) {
	if c.fn == nil || !inst.IsVoid() {
		return
	}
	if _, ok := c.valueName(inst); ok {
		return
	}
	c.counters[inst.Parent]++
}

// Returns the scratch buffer for vectors of the given type, allocating it on first use
func (c *Classifier) ScratchFor(t *ir.Type) (*Scratch, error) {
	if !t.IsVector() {
		return nil, utils.MakeError(ir.ErrUnknownType, "'%v' is not a vector type", t)
	}

	elemBits, err := ir.SizeInBits(t.Elem)
	if err != nil {
		return nil, err
	}

	key := ScratchKey{Elements: t.Count, ElementBytes: (elemBits + 7) / 8, Element: t.Elem.ID}
	if scratch, ok := c.scratch[key]; ok {
		return scratch, nil
	}

	scratch := &Scratch{Key: key, Bytes: make([]byte, key.Elements*key.ElementBytes)}
	c.scratch[key] = scratch
	return scratch, nil
}

// Returns the number of distinct scratch buffers allocated for the current function
func (c *Classifier) ScratchBuffers() int {
	return len(c.scratch)
}

// Classifies an operand value
func (c *Classifier) Classify(v ir.Value) (Operand, error) {
	if c.fn == nil {
		return Operand{}, ErrNoFunction
	}

	t := v.Type()
	size, err := ir.SizeInBits(t)
	if err != nil {
		return Operand{}, utils.MakeError(err, "operand '%v'", v.Name())
	}

	op := Operand{DataType: t.ID, DataSize: size}

	switch value := v.(type) {
	case *ir.BasicBlock:
		op.Category = Category_Label
		op.ID = c.BlockID(value)
		op.IsRegister = true
		return op, nil

	case *ir.Function:
		op.Category = Category_Function
		op.ID = value.FuncName
		op.IsRegister = true
		return op, nil

	case *ir.Instruction:
		id, ok := c.valueName(value)
		if !ok {
			return Operand{}, utils.MakeError(ErrUnnamedValue, "%v instruction used as operand", value.Op)
		}
		op.Category = Category_Register
		op.ID = id
		op.IsRegister = true
		op.Value = value

	default:
		op.Category = Category_Value
		op.ID = v.Name()
		if op.ID == "" {
			op.ID, _ = c.RecoveredName(v)
		}
		op.IsRegister = op.ID != ""
		op.Value = v

		if text, ok := stringLiteral(v); ok {
			op.IsString = true
			op.String = text
		}
	}

	if t.IsVector() {
		scratch, err := c.ScratchFor(t)
		if err != nil {
			return Operand{}, err
		}
		op.Category = Category_Vector
		op.Scratch = scratch
	}

	return op, nil
}

// Detects pointers to constant string literals: a getelementptr or bitcast
// constant expression over a constant global whose initializer is a C string.
// Globals that are not constant are never read
func stringLiteral(v ir.Value) (string, bool) {
	expr, ok := v.(*ir.ConstantExpr)
	if !ok || !expr.ExprType.IsPointer() || len(expr.Operands) == 0 {
		return "", false
	}
	if expr.Op != ir.Opcode_GetElementPtr && expr.Op != ir.Opcode_BitCast {
		return "", false
	}

	global, ok := expr.Operands[0].(*ir.GlobalVariable)
	if !ok || !global.IsConstant || !global.Initializer.IsString() {
		return "", false
	}

	return global.Initializer.AsString(), true
}

// Searches the instructions following an unnamed alloca, up to the block
// terminator, for the llvm.dbg.declare call describing it and records the
// declared variable name
func (c *Classifier) RecoverAllocaName(alloca *ir.Instruction) (string, bool) {
	if alloca.Op != ir.Opcode_Alloca || alloca.InstName != "" {
		return "", false
	}
	if name, ok := c.names[alloca]; ok {
		return name, true
	}

	bb := alloca.Parent
	start := -1
	for i, inst := range bb.Instructions {
		if inst == alloca {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	for _, inst := range bb.Instructions[start+1:] {
		if inst.IsTerminator() {
			break
		}
		addr, name, ok := inst.DbgDeclare()
		if !ok || addr != ir.Value(alloca) {
			continue
		}
		c.RecordName(alloca, name)
		return name, true
	}

	return "", false
}

// Gives an unnamed pointer bitcast the name of its operand, since both refer to
// the same address. Returns the identifier to use for the bitcast result
func (c *Classifier) AliasBitcast(inst *ir.Instruction) (string, bool) {
	if inst.Op != ir.Opcode_BitCast || inst.InstName != "" || len(inst.Operands) == 0 {
		return "", false
	}
	if _, recovered := c.names[inst]; recovered {
		return "", false
	}

	operand := inst.Operands[0]
	if !operand.Type().IsPointer() {
		return "", false
	}

	name := operand.Name()
	if name == "" {
		name, _ = c.RecoveredName(operand)
	}
	if name == "" {
		return "", false
	}

	c.RecordName(inst, name)
	return name, true
}
