package ir

import "strings"

// Instruction is a single IR instruction. For calls the callee is the last
// operand, for phi nodes Incoming holds the predecessor block of each operand
type Instruction struct {
	InstName string
	InstType *Type
	Op       Opcode
	Operands []Value
	Incoming []*BasicBlock
	Parent   *BasicBlock
	Debug    *DebugLoc
}

func (i *Instruction) Name() string { return i.InstName }
func (i *Instruction) Type() *Type  { return i.InstType }

// Returns true if the instruction ends its basic block
func (i *Instruction) IsTerminator() bool {
	return i.Op.IsTerminator()
}

// Returns true if the instruction produces no value
func (i *Instruction) IsVoid() bool {
	return i.InstType.IsVoid()
}

// Returns the function containing the instruction
func (i *Instruction) Function() *Function {
	if i.Parent == nil {
		return nil
	}
	return i.Parent.Parent
}

// Returns the source line of the instruction, -1 if it carries no debug location
func (i *Instruction) Line() int {
	if i.Debug.IsValid() {
		return i.Debug.Line
	}
	return -1
}

// Returns the callee of a call or invoke instruction, nil for indirect calls and
// any other instruction
func (i *Instruction) CalledFunction() *Function {
	if (i.Op != Opcode_Call && i.Op != Opcode_Invoke) || len(i.Operands) == 0 {
		return nil
	}
	fn, _ := i.Operands[len(i.Operands)-1].(*Function)
	return fn
}

// Returns the actual arguments of a call instruction
func (i *Instruction) CallArgs() []Value {
	if i.Op != Opcode_Call && i.Op != Opcode_Invoke || len(i.Operands) == 0 {
		return nil
	}
	return i.Operands[:len(i.Operands)-1]
}

// Returns the address and variable name declared by a llvm.dbg.declare call
func (i *Instruction) DbgDeclare() (Value, string, bool) {
	callee := i.CalledFunction()
	if callee == nil || callee.FuncName != "llvm.dbg.declare" || len(i.Operands) < 3 {
		return nil, "", false
	}
	md, ok := i.Operands[0].(*LocalAsMetadata)
	if !ok {
		return nil, "", false
	}
	variable, ok := i.Operands[1].(*DIVariable)
	if !ok {
		return nil, "", false
	}
	return md.Wrapped, variable.VarName, true
}

// BasicBlock is a sequence of instructions ending with a terminator
type BasicBlock struct {
	BlockName    string
	Parent       *Function
	Instructions []*Instruction
}

func (b *BasicBlock) Name() string { return b.BlockName }
func (b *BasicBlock) Type() *Type  { return Label() }

// Returns the block terminator, nil if the block is not terminated
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

// Returns the index of the first instruction that is not a phi node
func (b *BasicBlock) FirstInsertionIndex() int {
	for i, inst := range b.Instructions {
		if inst.Op != Opcode_PHI {
			return i
		}
	}
	return len(b.Instructions)
}

// Returns the first instruction that is not a phi node, nil if there is none
func (b *BasicBlock) FirstInsertionPoint() *Instruction {
	index := b.FirstInsertionIndex()
	if index == len(b.Instructions) {
		return nil
	}
	return b.Instructions[index]
}

// Returns the phi nodes at the start of the block
func (b *BasicBlock) Phis() []*Instruction {
	return b.Instructions[:b.FirstInsertionIndex()]
}

// Returns the successors of the block in terminator operand order, without duplicates
func (b *BasicBlock) Successors() []*BasicBlock {
	term := b.Terminator()
	if term == nil {
		return nil
	}

	seen := map[*BasicBlock]bool{}
	succs := []*BasicBlock{}
	for _, op := range term.Operands {
		if bb, ok := op.(*BasicBlock); ok && !seen[bb] {
			seen[bb] = true
			succs = append(succs, bb)
		}
	}
	return succs
}

// Function is a function definition or declaration
type Function struct {
	FuncName string
	// LinkageName is the mangled name recorded in debug info, if any
	LinkageName string
	// DisplayName is the source level (demangled) name recorded in debug info, if any
	DisplayName string
	ResultType  *Type
	Args        []*Argument
	Blocks      []*BasicBlock
	Parent      *Module
}

func (f *Function) Name() string { return f.FuncName }

// As an operand a function is a pointer to its code
func (f *Function) Type() *Type {
	params := make([]*Type, len(f.Args))
	for i, arg := range f.Args {
		params[i] = arg.ArgType
	}
	return Pointer(FunctionOf(f.ResultType, params...))
}

// Returns true if the function has no body
func (f *Function) IsDeclaration() bool {
	return len(f.Blocks) == 0
}

// Returns true if the function is an LLVM intrinsic
func (f *Function) IsIntrinsic() bool {
	return strings.HasPrefix(f.FuncName, "llvm.")
}

// Returns true if the function name is an Itanium C++ mangled name
func (f *Function) IsMangled() bool {
	return strings.HasPrefix(f.FuncName, "_Z")
}

// Returns the entry block, nil for declarations
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Returns the block with the given name
func (f *Function) Block(name string) *BasicBlock {
	for _, bb := range f.Blocks {
		if bb.BlockName == name {
			return bb
		}
	}
	return nil
}

// Appends a new empty block to the function
func (f *Function) AddBlock(name string) *BasicBlock {
	bb := &BasicBlock{BlockName: name, Parent: f}
	f.Blocks = append(f.Blocks, bb)
	return bb
}

// Appends an instruction to the block, wiring its parent
func (b *BasicBlock) Append(inst *Instruction) *Instruction {
	inst.Parent = b
	b.Instructions = append(b.Instructions, inst)
	return inst
}

// Module is a translation unit
type Module struct {
	ModuleName string
	Functions  []*Function
	Globals    []*GlobalVariable
}

// Returns the function with the given IR name
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.FuncName == name {
			return fn
		}
	}
	return nil
}

// Returns the global with the given name
func (m *Module) Global(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.GlobalName == name {
			return g
		}
	}
	return nil
}

// Adds a function to the module
func (m *Module) AddFunction(fn *Function) *Function {
	fn.Parent = m
	for i, arg := range fn.Args {
		arg.Parent = fn
		arg.Index = i
	}
	m.Functions = append(m.Functions, fn)
	return fn
}
