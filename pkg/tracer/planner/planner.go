// Package planner decides which instructions of a module are traced and which
// runtime calls describe them
package planner

import (
	"log/slog"
	"strings"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracer/classifier"
	"github.com/Manu343726/lltrace/pkg/tracer/opcodes"
	"github.com/Manu343726/lltrace/pkg/tracer/workload"
	"github.com/Manu343726/lltrace/pkg/utils"
)

type Settings struct {
	// Functions to trace. Planning is a no-op without a workload
	Workload *workload.Workload
	// Label map registered by main, if not empty
	LabelMap string
	Logger   *slog.Logger
}

// Planner inserts the runtime calls of one module at a time
type Planner struct {
	workload     *workload.Workload
	labelMap     string
	logger       *slog.Logger
	warned       bool
	classifier   *classifier.Classifier
	tracked      *workload.TrackedSet
	toplevelMode bool
}

func New(settings Settings) *Planner {
	p := &Planner{
		workload:   settings.Workload,
		labelMap:   settings.LabelMap,
		logger:     settings.Logger,
		classifier: classifier.New(),
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	if p.workload != nil {
		p.toplevelMode = p.workload.TopLevelMode()
	}

	return p
}

// Returns the tracked set of the last planned module
func (p *Planner) Tracked() *workload.TrackedSet {
	return p.tracked
}

func (p *Planner) TopLevelMode() bool {
	return p.toplevelMode
}

// Plans the instrumentation of every selected function of the module
func (p *Planner) PlanModule(m *ir.Module, ins Inserter) error {
	p.planLabelMap(m, ins)

	if p.workload == nil {
		if !p.warned {
			p.warned = true
			p.logger.Warn("no workload specified, nothing will be traced")
		}
		return nil
	}

	p.tracked = p.workload.Resolve(m)

	for _, fn := range m.Functions {
		if !p.Instruments(fn) {
			continue
		}
		if err := p.PlanFunction(fn, ins); err != nil {
			return utils.MakeError(err, "function '%v'", fn.FuncName)
		}
	}

	return nil
}

// Inserts the label map at the start of main, whatever the workload is
func (p *Planner) planLabelMap(m *ir.Module, ins Inserter) {
	if p.labelMap == "" {
		return
	}

	main := m.Function("main")
	if main == nil || main.IsDeclaration() {
		return
	}

	if first := main.EntryBlock().FirstInsertionPoint(); first != nil {
		ins.InsertBefore(first, &LabelMapCall{LabelMap: p.labelMap})
	}
}

// Returns true if the body of the function is instrumented
func (p *Planner) Instruments(fn *ir.Function) bool {
	if fn.IsDeclaration() || opcodes.IsPseudoFunction(fn.FuncName) {
		return false
	}

	tracked := p.tracked.Contains(fn.FuncName)
	if !p.toplevelMode {
		return tracked
	}

	return tracked || !fn.IsMangled()
}

// Per function planning state
type functionEnv struct {
	fn         *ir.Function
	tracked    bool
	fixedPoint bool
	ins        Inserter
}

// Plans the instrumentation of a single function
func (p *Planner) PlanFunction(fn *ir.Function, ins Inserter) error {
	p.classifier.Begin(fn)

	env := &functionEnv{
		fn:         fn,
		tracked:    p.tracked.Contains(fn.FuncName),
		fixedPoint: strings.HasSuffix(fn.FuncName, opcodes.FixedPointSuffix),
		ins:        ins,
	}

	if env.tracked {
		p.logger.Debug("tracking function", slog.String("function", fn.FuncName))
	}

	if err := p.planEntry(env); err != nil {
		return err
	}

	for _, bb := range fn.Blocks {
		if err := p.planBlock(env, bb); err != nil {
			return utils.MakeError(err, "block '%v'", p.classifier.BlockID(bb))
		}
	}

	return nil
}

// Inserts the entry record of tracked functions and the callee side view of the
// arguments at the start of the function
func (p *Planner) planEntry(env *functionEnv) error {
	first := env.fn.EntryBlock().FirstInsertionPoint()
	if first == nil {
		return nil
	}

	if env.tracked {
		env.ins.InsertBefore(first, &EntryCall{Function: env.fn.FuncName, Params: len(env.fn.Args), TopLevelMode: p.toplevelMode})
	}

	for _, arg := range env.fn.Args {
		op, err := p.classifier.Classify(arg)
		if err != nil {
			return err
		}
		if !op.IsRegister {
			op.Value = nil
		}
		env.ins.InsertBefore(first, operandCall(trace.ForwardLine, op))
	}

	return nil
}

func (p *Planner) planBlock(env *functionEnv, bb *ir.BasicBlock) error {
	if err := p.planPhis(env, bb); err != nil {
		return err
	}

	for _, inst := range bb.Instructions[bb.FirstInsertionIndex():] {
		if skipped(inst) || (inst.Op == ir.Opcode_Call && !p.tracesCall(inst)) {
			p.classifier.SkipInstruction(inst)
			continue
		}

		var err error
		if inst.Op == ir.Opcode_Call {
			err = p.planCall(env, inst)
		} else {
			err = p.planInstruction(env, inst)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Exception handling constructs are not supported
func skipped(inst *ir.Instruction) bool {
	switch inst.Op {
	case ir.Opcode_Invoke, ir.Opcode_LandingPad, ir.Opcode_Resume:
		return true
	}
	return false
}

// Returns the header of an instruction
func (p *Planner) header(env *functionEnv, inst *ir.Instruction, opcode opcodes.Opcode) (*HeaderCall, error) {
	// The alloca name must be known before its id is computed
	if inst.Op == ir.Opcode_Alloca {
		p.classifier.RecoverAllocaName(inst)
	}

	id, err := p.classifier.InstructionID(inst)
	if err != nil {
		return nil, err
	}

	return &HeaderCall{
		Line:         p.line(inst),
		Function:     env.fn.FuncName,
		Block:        p.classifier.BlockID(inst.Parent),
		Instruction:  id,
		Opcode:       opcode,
		Tracked:      env.tracked,
		TopLevelMode: p.toplevelMode,
	}, nil
}

// Returns the source line of an instruction. The branch closing a loop preheader
// is attributed to the start of the loop
func (p *Planner) line(inst *ir.Instruction) int {
	if inst.Op == ir.Opcode_Br {
		if loop := p.classifier.Loops().PreheaderOf(inst.Parent); loop != nil && inst == inst.Parent.Terminator() {
			return loop.StartLine()
		}
	}
	return inst.Line()
}

func (p *Planner) opcode(env *functionEnv, op ir.Opcode) opcodes.Opcode {
	if env.fixedPoint {
		op = opcodes.FixedPoint(op)
	}
	return opcodes.Native(op)
}

// Phi nodes are logged as a group before the first non-phi instruction of the block
func (p *Planner) planPhis(env *functionEnv, bb *ir.BasicBlock) error {
	phis := bb.Phis()
	if len(phis) == 0 {
		return nil
	}

	at := bb.FirstInsertionPoint()
	if at == nil {
		return utils.MakeError(ir.ErrInvalidModule, "block '%v' has only phi nodes", bb.BlockName)
	}

	for _, phi := range phis {
		header, err := p.header(env, phi, p.opcode(env, phi.Op))
		if err != nil {
			return err
		}
		env.ins.InsertBefore(at, header)

		for i := len(phi.Operands) - 1; i >= 0; i-- {
			incoming := phi.Operands[i]
			op, err := p.classifier.Classify(incoming)
			if err != nil {
				return err
			}

			if _, isInst := incoming.(*ir.Instruction); isInst {
				op.Value = nil
			} else {
				op.IsRegister = incoming.Name() != ""
				op.ID = incoming.Name()
				if incoming.Type().IsVector() {
					op.Value = nil
				}
			}

			call := operandCall(i+1, op)
			call.IsPhi = true
			if i < len(phi.Incoming) {
				call.PrevBlock = p.classifier.BlockID(phi.Incoming[i])
			}
			env.ins.InsertBefore(at, call)
		}

		if !phi.IsVoid() {
			result, err := p.result(phi, header.Instruction)
			if err != nil {
				return err
			}
			env.ins.InsertBefore(at, result)
		}
	}

	return nil
}

// Returns the result record of an instruction
func (p *Planner) result(inst *ir.Instruction, id string) (*OperandCall, error) {
	size, err := ir.SizeInBits(inst.Type())
	if err != nil {
		return nil, utils.MakeError(err, "result of '%v'", id)
	}

	op := classifier.Operand{
		Category:   classifier.Category_Register,
		ID:         id,
		DataType:   inst.Type().ID,
		DataSize:   size,
		IsRegister: true,
		Value:      inst,
	}

	if inst.Type().IsVector() {
		op.Category = classifier.Category_Vector
		if op.Scratch, err = p.classifier.ScratchFor(inst.Type()); err != nil {
			return nil, err
		}
	}

	return operandCall(trace.ResultLine, op), nil
}

// Returns false for indirect calls, intrinsics outside the allow list and, in
// selective mode, calls to untracked functions
func (p *Planner) tracesCall(inst *ir.Instruction) bool {
	callee := inst.CalledFunction()
	if callee == nil {
		return false
	}

	if callee.IsIntrinsic() && !opcodes.IsAllowedIntrinsic(callee.FuncName) {
		return false
	}

	if !p.toplevelMode && !p.tracked.Contains(callee.FuncName) && !callee.IsIntrinsic() && !opcodes.IsPseudoFunction(callee.FuncName) {
		return false
	}

	return true
}

func (p *Planner) planCall(env *functionEnv, inst *ir.Instruction) error {
	callee := inst.CalledFunction()

	opcode, ok := opcodes.Lookup(callee.FuncName)
	if !ok {
		opcode = p.opcode(env, inst.Op)
	}

	header, err := p.header(env, inst, opcode)
	if err != nil {
		return err
	}
	env.ins.InsertBefore(inst, header)

	op, err := p.classifier.Classify(callee)
	if err != nil {
		return err
	}
	env.ins.InsertBefore(inst, operandCall(len(inst.Operands), op))

	args := inst.CallArgs()
	for i := range callee.Args {
		if i >= len(args) {
			break
		}
		op, err := p.classifier.Classify(args[i])
		if err != nil {
			return err
		}
		env.ins.InsertBefore(inst, operandCall(i+1, op))
	}

	if !inst.IsVoid() {
		result, err := p.result(inst, header.Instruction)
		if err != nil {
			return err
		}
		env.ins.InsertAfter(inst, result)
	}

	return nil
}

func (p *Planner) planInstruction(env *functionEnv, inst *ir.Instruction) error {
	header, err := p.header(env, inst, p.opcode(env, inst.Op))
	if err != nil {
		return err
	}
	env.ins.InsertBefore(inst, header)

	for i := len(inst.Operands) - 1; i >= 0; i-- {
		op, err := p.classifier.Classify(inst.Operands[i])
		if err != nil {
			return err
		}
		env.ins.InsertBefore(inst, operandCall(i+1, op))
	}

	if inst.Op == ir.Opcode_Ret && env.tracked && p.toplevelMode {
		env.ins.InsertBefore(inst, &StatusCall{
			Function:     env.fn.FuncName,
			Opcode:       header.Opcode,
			Tracked:      env.tracked,
			TopLevelMode: p.toplevelMode,
		})
	}

	if inst.IsVoid() || inst.IsTerminator() {
		return nil
	}

	id := header.Instruction
	if alias, ok := p.classifier.AliasBitcast(inst); ok {
		id = alias
	}

	result, err := p.result(inst, id)
	if err != nil {
		return err
	}
	env.ins.InsertAfter(inst, result)
	return nil
}

// Converts a classified operand into the runtime call logging it
func operandCall(param int, op classifier.Operand) *OperandCall {
	call := &OperandCall{
		Kind:     trace.ValueKind_Int,
		Param:    param,
		Size:     op.DataSize,
		DataType: op.DataType,
		IsReg:    op.IsRegister,
		Value:    op.Value,
	}

	if op.IsRegister {
		call.Label = op.ID
	}

	if op.IsString {
		call.Kind = trace.ValueKind_String
		call.Text = op.String
		call.Value = nil
		return call
	}

	if call.Value == nil {
		return call
	}

	t := call.Value.Type()
	switch {
	case op.Category == classifier.Category_Vector:
		call.Kind = trace.ValueKind_Vector
		call.Scratch = op.Scratch
	case t.IsInteger():
	case t.IsPointer():
		call.Kind = trace.ValueKind_Ptr
	case t.IsFloatingPoint():
		call.Kind = trace.ValueKind_Double
	default:
		call.Value = nil
	}

	return call
}
