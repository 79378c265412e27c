package planner

import (
	"fmt"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/xlab/treeprint"
)

// Plan records the calls inserted around each instruction of a module
type Plan struct {
	Module *ir.Module
	before map[*ir.Instruction][]Call
	after  map[*ir.Instruction][]Call
}

func NewPlan(m *ir.Module) *Plan {
	return &Plan{
		Module: m,
		before: map[*ir.Instruction][]Call{},
		after:  map[*ir.Instruction][]Call{},
	}
}

func (p *Plan) InsertBefore(inst *ir.Instruction, call Call) {
	p.before[inst] = append(p.before[inst], call)
}

func (p *Plan) InsertAfter(inst *ir.Instruction, call Call) {
	p.after[inst] = append(p.after[inst], call)
}

// Returns the calls that run before the instruction
func (p *Plan) Before(inst *ir.Instruction) []Call {
	return p.before[inst]
}

// Returns the calls that run after the instruction
func (p *Plan) After(inst *ir.Instruction) []Call {
	return p.after[inst]
}

// Returns true if any call was inserted in the function
func (p *Plan) Instrumented(fn *ir.Function) bool {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			if len(p.before[inst]) > 0 || len(p.after[inst]) > 0 {
				return true
			}
		}
	}
	return false
}

// Returns the calls inserted in a block, in program order
func (p *Plan) BlockCalls(bb *ir.BasicBlock) []Call {
	calls := []Call{}
	for _, inst := range bb.Instructions {
		calls = append(calls, p.before[inst]...)
		calls = append(calls, p.after[inst]...)
	}
	return calls
}

// Returns the calls inserted in a function, in program order
func (p *Plan) FunctionCalls(fn *ir.Function) []Call {
	calls := []Call{}
	for _, bb := range fn.Blocks {
		calls = append(calls, p.BlockCalls(bb)...)
	}
	return calls
}

// Returns the total number of inserted calls
func (p *Plan) Len() int {
	n := 0
	for _, calls := range p.before {
		n += len(calls)
	}
	for _, calls := range p.after {
		n += len(calls)
	}
	return n
}

// Renders the instrumented functions as a tree of blocks, instructions and calls
func (p *Plan) Tree() treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(p.Module.ModuleName)

	for _, fn := range p.Module.Functions {
		if !p.Instrumented(fn) {
			continue
		}

		fnNode := tree.AddBranch(fn.FuncName)
		for _, bb := range fn.Blocks {
			bbNode := fnNode.AddBranch(bb.BlockName)

			for i, inst := range bb.Instructions {
				for _, call := range p.before[inst] {
					bbNode.AddNode(call.String())
				}
				bbNode.AddMetaNode(fmt.Sprintf("#%d", i), describe(inst))
				for _, call := range p.after[inst] {
					bbNode.AddNode(call.String())
				}
			}
		}
	}

	return tree
}

func (p *Plan) String() string {
	return p.Tree().String()
}

func describe(inst *ir.Instruction) string {
	if inst.InstName != "" {
		return fmt.Sprintf("%%%v = %v", inst.InstName, inst.Op)
	}
	if callee := inst.CalledFunction(); callee != nil {
		return fmt.Sprintf("%v @%v", inst.Op, callee.FuncName)
	}
	return inst.Op.String()
}
