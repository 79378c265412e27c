package planner

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracer/opcodes"
	"github.com/Manu343726/lltrace/pkg/tracer/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = `
name: planner
globals:
  - {name: msg, constant: true, string: hello}
functions:
  - name: llvm.dbg.declare
    args: [{type: metadata}, {type: metadata}]
  - name: llvm.lifetime.start
    args: [{type: i64}, {type: "i8*"}]
  - name: dmaLoad
    result: i32
    args: [{name: dst, type: "i8*"}, {name: src, type: "i8*"}, {name: size, type: i64}]
    blocks:
      - name: entry
        instructions:
          - {op: ret, operands: ["i32 0"]}
  - name: puts
    result: i32
    args: [{name: s, type: "i8*"}]
  - name: bar
    result: i32
    args: [{name: a, type: i32}, {name: b, type: i32}]
    blocks:
      - name: entry
        instructions:
          - {name: c, op: add, type: i32, operands: ["%a", "%b"], line: 2}
          - {op: ret, operands: ["%c"], line: 3}
  - name: helper
    result: i32
    args: [{name: x, type: i32}]
    blocks:
      - name: entry
        instructions:
          - {name: y, op: mul, type: i32, operands: ["%x", "i32 2"], line: 10}
          - {op: ret, operands: ["%y"], line: 11}
  - name: _Z7mangledi
    result: i32
    args: [{name: x, type: i32}]
    blocks:
      - name: entry
        instructions:
          - {op: ret, operands: ["%x"]}
  - name: scale_fxp
    result: double
    args: [{name: x, type: double}]
    blocks:
      - name: entry
        instructions:
          - {name: y, op: fmul, type: double, operands: ["%x", "double 2.0"]}
          - {name: z, op: fadd, type: double, operands: ["%y", "%x"]}
          - {op: ret, operands: ["%z"]}
  - name: top
    result: i32
    args: [{name: n, type: i32}, {name: buf, type: "i8*"}]
    blocks:
      - name: entry
        instructions:
          - {op: alloca, type: "i32*"}
          - {op: call, operands: ["metadata %0", "!var counter", "@llvm.dbg.declare"]}
          - {op: store, operands: ["%n", "%0"], line: 20}
          - {op: bitcast, type: "i8*", operands: ["%0"], line: 20}
          - {op: call, operands: ["i64 4", "%buf", "@llvm.lifetime.start"]}
          - {name: r, op: call, type: i32, operands: ["%n", "@helper"], line: 21}
          - {name: d, op: call, type: i32, operands: ["%buf", "%buf", "i64 8", "@dmaLoad"], line: 22}
          - {name: s, op: call, type: i32, operands: ["getelementptr @msg", "@puts"], line: 23}
          - {name: m, op: call, type: i32, operands: ["%n", "@_Z7mangledi"], line: 24}
          - {op: br, operands: ["%loop"], line: 25}
      - name: loop
        instructions:
          - {name: i, op: phi, type: i32, incoming: [["i32 0", "%entry"], ["%next", "%loop"]], line: 26}
          - {name: acc, op: phi, type: i32, incoming: [["%n", "%entry"], ["%sum", "%loop"]], line: 26}
          - {name: sum, op: add, type: i32, operands: ["%acc", "%i"], line: 27}
          - {name: next, op: add, type: i32, operands: ["%i", "i32 1"], line: 26}
          - {name: done, op: icmp, type: i1, operands: ["%next", "%n"], line: 26}
          - {op: br, operands: ["%done", "%exit", "%loop"], line: 26}
      - name: exit
        instructions:
          - {op: ret, operands: ["%sum"], line: 29}
  - name: main
    result: i32
    blocks:
      - name: entry
        instructions:
          - {name: v, op: call, type: i32, operands: ["i32 3", "i8* null", "@top"], line: 40}
          - {op: ret, operands: ["i32 0"], line: 41}
`

func loadModule(t *testing.T) *ir.Module {
	t.Helper()
	m, err := ir.LoadModule(strings.NewReader(testModule))
	require.NoError(t, err)
	return m
}

func plan(t *testing.T, m *ir.Module, functions []string, traceAll bool, labelMap string) (*Planner, *Plan) {
	t.Helper()
	w, err := workload.New(functions, traceAll)
	require.NoError(t, err)

	p := New(Settings{
		Workload: w,
		LabelMap: labelMap,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	result := NewPlan(m)
	require.NoError(t, p.PlanModule(m, result))
	return p, result
}

func headers(calls []Call) []*HeaderCall {
	result := []*HeaderCall{}
	for _, call := range calls {
		if h, ok := call.(*HeaderCall); ok {
			result = append(result, h)
		}
	}
	return result
}

func TestBarScenario(t *testing.T) {
	m := loadModule(t)
	p, result := plan(t, m, []string{"bar"}, false, "")
	require.True(t, p.TopLevelMode())

	bar := m.Function("bar")
	a, b := bar.Args[0], bar.Args[1]
	c := bar.Blocks[0].Instructions[0]

	expected := []Call{
		&EntryCall{Function: "bar", Params: 2, TopLevelMode: true},
		&OperandCall{Kind: trace.ValueKind_Int, Param: trace.ForwardLine, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "a", Value: a},
		&OperandCall{Kind: trace.ValueKind_Int, Param: trace.ForwardLine, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "b", Value: b},
		&HeaderCall{Line: 2, Function: "bar", Block: "entry:0", Instruction: "c", Opcode: opcodes.Native(ir.Opcode_Add), Tracked: true, TopLevelMode: true},
		&OperandCall{Kind: trace.ValueKind_Int, Param: 2, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "b", Value: b},
		&OperandCall{Kind: trace.ValueKind_Int, Param: 1, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "a", Value: a},
		&OperandCall{Kind: trace.ValueKind_Int, Param: trace.ResultLine, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "c", Value: c},
		&HeaderCall{Line: 3, Function: "bar", Block: "entry:0", Instruction: "entry:0-0", Opcode: opcodes.Native(ir.Opcode_Ret), Tracked: true, TopLevelMode: true},
		&OperandCall{Kind: trace.ValueKind_Int, Param: 1, Size: 32, DataType: ir.TypeID_Integer, IsReg: true, Label: "c", Value: c},
		&StatusCall{Function: "bar", Opcode: opcodes.Native(ir.Opcode_Ret), Tracked: true, TopLevelMode: true},
	}

	assert.Equal(t, expected, result.FunctionCalls(bar))
	assert.Len(t, result.After(c), 1)
}

func TestSelectiveMode(t *testing.T) {
	m := loadModule(t)
	p, result := plan(t, m, []string{"top", "helper"}, false, "")
	require.False(t, p.TopLevelMode())
	assert.Equal(t, []string{"helper", "top"}, p.Tracked().Names())

	for _, fn := range m.Functions {
		t.Run(fn.FuncName, func(t *testing.T) {
			expected := fn.FuncName == "top" || fn.FuncName == "helper"
			assert.Equal(t, expected, result.Instrumented(fn))
		})
	}

	top := m.Function("top")
	entry := top.Block("entry")

	ids := []string{}
	ops := []opcodes.Opcode{}
	for _, h := range headers(result.BlockCalls(entry)) {
		ids = append(ids, h.Instruction)
		ops = append(ops, h.Opcode)
		assert.True(t, h.Tracked)
		assert.False(t, h.TopLevelMode)
	}
	// skipped void calls still take a number
	assert.Equal(t, []string{"counter", "entry:0-1", "1", "r", "d", "entry:0-3"}, ids)
	assert.Equal(t, []opcodes.Opcode{
		opcodes.Native(ir.Opcode_Alloca),
		opcodes.Native(ir.Opcode_Store),
		opcodes.Native(ir.Opcode_BitCast),
		opcodes.Native(ir.Opcode_Call),
		opcodes.Opcode_DmaLoad,
		opcodes.Native(ir.Opcode_Br),
	}, ops)

	// untracked callee, mangled callee and intrinsics are skipped
	for _, i := range []int{1, 4, 7, 8} {
		assert.Empty(t, result.Before(entry.Instructions[i]), "instruction %d", i)
		assert.Empty(t, result.After(entry.Instructions[i]), "instruction %d", i)
	}

	for _, call := range result.FunctionCalls(top) {
		_, isStatus := call.(*StatusCall)
		assert.False(t, isStatus)
	}
}

func TestCallRecords(t *testing.T) {
	m := loadModule(t)
	_, result := plan(t, m, []string{"top", "helper"}, false, "")

	entry := m.Function("top").Block("entry")
	buf := m.Function("top").Args[1]

	dma := result.Before(entry.Instructions[6])
	require.Len(t, dma, 5)
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_Int, Param: 4, Size: 64, DataType: ir.TypeID_Pointer, IsReg: true, Label: "dmaLoad"}, dma[1])
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_Ptr, Param: 1, Size: 64, DataType: ir.TypeID_Pointer, IsReg: true, Label: "buf", Value: buf}, dma[2])
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_Ptr, Param: 2, Size: 64, DataType: ir.TypeID_Pointer, IsReg: true, Label: "buf", Value: buf}, dma[3])

	size := dma[4].(*OperandCall)
	assert.Equal(t, 3, size.Param)
	assert.False(t, size.IsReg)
	assert.Empty(t, size.Label)
	assert.Equal(t, trace.ValueKind_Int, size.Kind)

	results := result.After(entry.Instructions[6])
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].(*OperandCall).Label)
	assert.Equal(t, trace.ResultLine, results[0].(*OperandCall).Param)
}

func TestRecoveredNames(t *testing.T) {
	m := loadModule(t)
	_, result := plan(t, m, []string{"top"}, false, "")

	entry := m.Function("top").Block("entry")
	alloca := entry.Instructions[0]

	allocaResult := result.After(alloca)
	require.Len(t, allocaResult, 1)
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_Ptr, Param: trace.ResultLine, Size: 64, DataType: ir.TypeID_Pointer, IsReg: true, Label: "counter", Value: alloca}, allocaResult[0])

	store := result.Before(entry.Instructions[2])
	require.Len(t, store, 3)
	assert.Equal(t, "counter", store[1].(*OperandCall).Label)
	assert.Equal(t, 2, store[1].(*OperandCall).Param)
	assert.Equal(t, "n", store[2].(*OperandCall).Label)

	bitcast := entry.Instructions[3]
	assert.Equal(t, "1", result.Before(bitcast)[0].(*HeaderCall).Instruction)
	assert.Equal(t, "counter", result.After(bitcast)[0].(*OperandCall).Label)
}

func TestPhiOrder(t *testing.T) {
	m := loadModule(t)
	_, result := plan(t, m, []string{"top"}, true, "")

	loop := m.Function("top").Block("loop")
	calls := result.Before(loop.Instructions[2])

	type phiRecord struct {
		Param     int
		Label     string
		PrevBlock string
		HasValue  bool
	}

	records := []phiRecord{}
	for _, call := range calls[:8] {
		if op, ok := call.(*OperandCall); ok {
			records = append(records, phiRecord{Param: op.Param, Label: op.Label, PrevBlock: op.PrevBlock, HasValue: op.Value != nil})
			continue
		}
		records = append(records, phiRecord{Label: call.(*HeaderCall).Instruction})
	}

	assert.Equal(t, []phiRecord{
		{Label: "i"},
		{Param: 2, Label: "next", PrevBlock: "loop:1"},
		{Param: 1, PrevBlock: "entry:0", HasValue: true},
		{Param: trace.ResultLine, Label: "i", HasValue: true},
		{Label: "acc"},
		{Param: 2, Label: "sum", PrevBlock: "loop:1"},
		{Param: 1, Label: "n", PrevBlock: "entry:0", HasValue: true},
		{Param: trace.ResultLine, Label: "acc", HasValue: true},
	}, records)

	for _, call := range calls[:8] {
		if op, ok := call.(*OperandCall); ok && op.Param != trace.ResultLine {
			assert.True(t, op.IsPhi)
		}
	}

	// the sum header follows the phi group
	require.Len(t, calls, 11)
	assert.Equal(t, "sum", calls[8].(*HeaderCall).Instruction)
}

func TestPreheaderLine(t *testing.T) {
	m := loadModule(t)
	_, result := plan(t, m, []string{"top"}, false, "")

	entry := m.Function("top").Block("entry")
	br := result.Before(entry.Terminator())
	require.Len(t, br, 2)
	assert.Equal(t, 26, br[0].(*HeaderCall).Line)
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_Int, Param: 1, Size: 0, DataType: ir.TypeID_Label, IsReg: true, Label: "loop:1"}, br[1])

	loop := m.Function("top").Block("loop")
	latch := result.Before(loop.Terminator())
	require.Len(t, latch, 4)
	assert.Equal(t, "loop:1-0", latch[0].(*HeaderCall).Instruction)
	assert.Equal(t, 26, latch[0].(*HeaderCall).Line)
	assert.Equal(t, "loop:1", latch[1].(*OperandCall).Label)
	assert.Equal(t, "exit:0", latch[2].(*OperandCall).Label)
	assert.Equal(t, "done", latch[3].(*OperandCall).Label)
}

func TestTopLevelMode(t *testing.T) {
	m := loadModule(t)
	p, result := plan(t, m, []string{"top"}, false, "top/end 29\n")
	require.True(t, p.TopLevelMode())

	for _, name := range []string{"top", "helper", "bar", "main", "scale_fxp"} {
		assert.True(t, result.Instrumented(m.Function(name)), name)
	}
	for _, name := range []string{"_Z7mangledi", "dmaLoad", "puts", "llvm.dbg.declare"} {
		assert.False(t, result.Instrumented(m.Function(name)), name)
	}

	top := m.Function("top")
	entry := top.Block("entry")

	puts := result.Before(entry.Instructions[7])
	require.Len(t, puts, 3)
	assert.Equal(t, &OperandCall{Kind: trace.ValueKind_String, Param: 1, Size: 64, DataType: ir.TypeID_Pointer, Text: "hello"}, puts[2])

	mangled := result.Before(entry.Instructions[8])
	require.Len(t, mangled, 3)
	assert.Equal(t, opcodes.Native(ir.Opcode_Call), mangled[0].(*HeaderCall).Opcode)

	ret := result.Before(top.Block("exit").Terminator())
	require.Len(t, ret, 3)
	assert.Equal(t, &StatusCall{Function: "top", Opcode: opcodes.Native(ir.Opcode_Ret), Tracked: true, TopLevelMode: true}, ret[2])

	helper := result.FunctionCalls(m.Function("helper"))
	_, isEntry := helper[0].(*EntryCall)
	assert.False(t, isEntry)
	assert.Equal(t, trace.ForwardLine, helper[0].(*OperandCall).Param)
	for _, call := range helper {
		_, isStatus := call.(*StatusCall)
		assert.False(t, isStatus)
	}
	assert.False(t, headers(helper)[0].Tracked)

	main := result.FunctionCalls(m.Function("main"))
	assert.Equal(t, &LabelMapCall{LabelMap: "top/end 29\n"}, main[0])
	assert.IsType(t, &HeaderCall{}, main[1])

	assert.Contains(t, result.String(), "labelmap (11 bytes)")
}

func TestFixedPoint(t *testing.T) {
	m := loadModule(t)
	_, result := plan(t, m, []string{"scale_fxp"}, false, "")

	ops := []opcodes.Opcode{}
	for _, h := range headers(result.FunctionCalls(m.Function("scale_fxp"))) {
		ops = append(ops, h.Opcode)
	}
	assert.Equal(t, []opcodes.Opcode{
		opcodes.Native(ir.Opcode_Mul),
		opcodes.Native(ir.Opcode_Add),
		opcodes.Native(ir.Opcode_Ret),
	}, ops)

	fmul := result.Before(m.Function("scale_fxp").Blocks[0].Instructions[0])
	assert.Equal(t, trace.ValueKind_Double, fmul[len(fmul)-1].(*OperandCall).Kind)
}

func TestNoWorkload(t *testing.T) {
	m := loadModule(t)
	p := New(Settings{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	result := NewPlan(m)

	require.NoError(t, p.PlanModule(m, result))
	require.NoError(t, p.PlanModule(m, result))
	assert.Zero(t, result.Len())
}

func TestLabelMapInSelectiveMode(t *testing.T) {
	m := loadModule(t)
	p, result := plan(t, m, []string{"top", "helper"}, false, "top/loop 26\n")
	require.False(t, p.TopLevelMode())
	require.False(t, p.Instruments(m.Function("main")))

	main := m.Function("main")
	calls := result.FunctionCalls(main)
	require.Len(t, calls, 1)
	assert.Equal(t, &LabelMapCall{LabelMap: "top/loop 26\n"}, calls[0])
	assert.Same(t, calls[0], result.Before(main.EntryBlock().FirstInsertionPoint())[0])
}

func TestLabelMapWithoutWorkload(t *testing.T) {
	m := loadModule(t)
	p := New(Settings{LabelMap: "top/loop 26\n", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	result := NewPlan(m)

	require.NoError(t, p.PlanModule(m, result))
	assert.Equal(t, []Call{&LabelMapCall{LabelMap: "top/loop 26\n"}}, result.FunctionCalls(m.Function("main")))
	assert.Equal(t, 1, result.Len())
}
