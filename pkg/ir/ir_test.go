package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		bits     int
	}{
		{input: "i32", expected: "i32", bits: 32},
		{input: "i1", expected: "i1", bits: 1},
		{input: "double", expected: "double", bits: 64},
		{input: "float*", expected: "float*", bits: 64},
		{input: "i8**", expected: "i8**", bits: 64},
		{input: "[4 x i16]", expected: "[4 x i16]", bits: 64},
		{input: "[2 x [3 x i8]]", expected: "[2 x [3 x i8]]", bits: 48},
		{input: "<4 x float>", expected: "<4 x float>", bits: 128},
		{input: "{i32, double}", expected: "{i32, double}", bits: 96},
		{input: "{ i32 , [2 x i8*] }", expected: "{i32, [2 x i8*]}", bits: 160},
		{input: "x86_fp80", expected: "x86_fp80", bits: 80},
		{input: "label", expected: "label", bits: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, err := ParseType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed.String())

			bits, err := SizeInBits(parsed)
			require.NoError(t, err)
			assert.Equal(t, tt.bits, bits)
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, input := range []string{"", "int", "[4 i8]", "<2 x float", "{i32 i8}", "i32 garbage", "i0"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseType(input)
			assert.ErrorIs(t, err, ErrInvalidType)
		})
	}
}

func TestSizeInBitsUnknownType(t *testing.T) {
	_, err := SizeInBits(Metadata())
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = SizeInBits(Struct(Int(32), Metadata()))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseOpcode(t *testing.T) {
	op, err := ParseOpcode("getelementptr")
	require.NoError(t, err)
	assert.Equal(t, Opcode_GetElementPtr, op)
	assert.Equal(t, 29, int(op))
	assert.Equal(t, 49, int(Opcode_Call))
	assert.Equal(t, 48, int(Opcode_PHI))
	assert.True(t, Opcode_Br.IsTerminator())
	assert.False(t, Opcode_Call.IsTerminator())

	_, err = ParseOpcode("frobnicate")
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

const loopsModule = `
name: loops
globals:
  - name: str
    constant: true
    string: hi
functions:
  - name: llvm.dbg.declare
    args:
      - {type: metadata}
      - {type: metadata}
  - name: nested
    file: nested.c
    args:
      - {name: n, type: i32}
    blocks:
      - name: entry
        instructions:
          - {name: x, op: alloca, type: "i32*"}
          - {op: call, operands: ["metadata %x", "!var count", "@llvm.dbg.declare"]}
          - {op: br, operands: ["%outer"], line: 3}
      - name: outer
        instructions:
          - {name: i, op: phi, type: i32, incoming: [["i32 0", "%entry"], ["%next", "%latch"]], line: 4}
          - {op: br, operands: ["i1 true", "%inner", "%exit"], line: 5}
      - name: inner
        instructions:
          - {op: br, operands: ["i1 false", "%inner", "%latch"], line: 6}
      - name: latch
        instructions:
          - {name: next, op: add, type: i32, operands: ["%i", "i32 1"], line: 4}
          - {op: br, operands: ["%outer"], line: 4}
      - name: exit
        instructions:
          - {op: ret, line: 8}
`

func TestLoadModule(t *testing.T) {
	m, err := LoadModule(strings.NewReader(loopsModule))
	require.NoError(t, err)

	fn := m.Function("nested")
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 5)
	assert.True(t, m.Function("llvm.dbg.declare").IsDeclaration())
	assert.True(t, m.Function("llvm.dbg.declare").IsIntrinsic())

	str := m.Global("str")
	require.NotNil(t, str)
	assert.True(t, str.Initializer.IsString())
	assert.Equal(t, "hi", str.Initializer.AsString())
	assert.Equal(t, "[3 x i8]*", str.Type().String())

	phi := fn.Block("outer").Instructions[0]
	assert.Equal(t, Opcode_PHI, phi.Op)
	require.Len(t, phi.Operands, 2)
	assert.Equal(t, []*BasicBlock{fn.Block("entry"), fn.Block("latch")}, phi.Incoming)
	assert.Same(t, fn.Block("latch").Instructions[0], phi.Operands[1])
	assert.Same(t, fn.Block("outer"), fn.Block("outer").Instructions[1].Parent)
	assert.Equal(t, 1, fn.Block("outer").FirstInsertionIndex())

	declare := fn.Block("entry").Instructions[1]
	addr, name, ok := declare.DbgDeclare()
	require.True(t, ok)
	assert.Same(t, fn.Block("entry").Instructions[0], addr)
	assert.Equal(t, "count", name)

	assert.Equal(t, -1, declare.Line())
	assert.Equal(t, "nested.c:8", fn.Block("exit").Instructions[0].Debug.String())
}

func TestLoadModuleErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected error
	}{
		{
			name:     "unresolved local",
			input:    "functions: [{name: f, blocks: [{name: entry, instructions: [{op: ret, operands: ['%missing']}]}]}]",
			expected: ErrUnresolvedValue,
		},
		{
			name:     "unresolved global",
			input:    "functions: [{name: f, blocks: [{name: entry, instructions: [{op: call, operands: ['@missing']}]}]}]",
			expected: ErrUnresolvedValue,
		},
		{
			name:     "unknown opcode",
			input:    "functions: [{name: f, blocks: [{name: entry, instructions: [{op: jump}]}]}]",
			expected: ErrUnknownOpcode,
		},
		{
			name:     "bad constant",
			input:    "functions: [{name: f, blocks: [{name: entry, instructions: [{op: ret, operands: ['i32 abc']}]}]}]",
			expected: ErrInvalidConstant,
		},
		{
			name:     "duplicated function",
			input:    "functions: [{name: f}, {name: f}]",
			expected: ErrDuplicatedSymbol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModule(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestParseConstant(t *testing.T) {
	c, err := parseConstant("i32 42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.Int)
	assert.Equal(t, "i32 42", c.String())

	c, err = parseConstant("i8 -0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(-16), c.Int)

	c, err = parseConstant("double 1.5")
	require.NoError(t, err)
	assert.Equal(t, ConstantKind_Float, c.Kind)
	assert.Equal(t, 1.5, c.Float)

	c, err = parseConstant("i8* null")
	require.NoError(t, err)
	assert.Equal(t, ConstantKind_Null, c.Kind)

	c, err = parseConstant("<2 x i32> <1, 2>")
	require.NoError(t, err)
	assert.Equal(t, ConstantKind_Vector, c.Kind)
	require.Len(t, c.Elements, 2)
	assert.Equal(t, int64(2), c.Elements[1].Int)

	_, err = parseConstant("<2 x i32> <1>")
	assert.ErrorIs(t, err, ErrInvalidConstant)

	_, err = parseConstant("i32 null")
	assert.ErrorIs(t, err, ErrInvalidConstant)
}

func TestSlotTracker(t *testing.T) {
	m, err := LoadModule(strings.NewReader(`
functions:
  - name: f
    result: i32
    args:
      - {type: i32}
      - {name: b, type: i32}
    blocks:
      - instructions:
          - {op: add, type: i32, operands: ["%0", "%b"]}
          - {op: store, operands: ["%2", "i32* null"]}
          - {op: ret, operands: ["%2"]}
`))
	require.NoError(t, err)

	fn := m.Function("f")
	slots := NewSlotTracker(fn)
	bb := fn.Blocks[0]

	assert.Equal(t, 0, slots.LocalSlot(fn.Args[0]))
	assert.Equal(t, -1, slots.LocalSlot(fn.Args[1]))
	assert.Equal(t, 1, slots.LocalSlot(bb))
	assert.Equal(t, 2, slots.LocalSlot(bb.Instructions[0]))
	assert.Equal(t, -1, slots.LocalSlot(bb.Instructions[1]))
	assert.Equal(t, 3, slots.Len())

	assert.Same(t, bb.Instructions[0], bb.Instructions[2].Operands[0])
	assert.Same(t, fn.Args[0], bb.Instructions[0].Operands[0])
}

func TestLoopInfo(t *testing.T) {
	m, err := LoadModule(strings.NewReader(loopsModule))
	require.NoError(t, err)

	fn := m.Function("nested")
	loops := AnalyzeLoops(fn)

	depths := map[string]int{"entry": 0, "outer": 1, "inner": 2, "latch": 1, "exit": 0}
	for name, depth := range depths {
		assert.Equal(t, depth, loops.Depth(fn.Block(name)), "block %v", name)
	}

	require.Len(t, loops.Loops(), 2)

	outer := loops.LoopFor(fn.Block("outer"))
	require.NotNil(t, outer)
	assert.Same(t, fn.Block("outer"), outer.Header)
	assert.Same(t, fn.Block("entry"), loops.Preheader(outer))
	assert.Same(t, outer, loops.PreheaderOf(fn.Block("entry")))
	assert.Equal(t, 4, outer.StartLine())

	inner := loops.LoopFor(fn.Block("inner"))
	require.NotNil(t, inner)
	assert.Same(t, outer, inner.Parent)
	assert.Nil(t, loops.Preheader(inner))
	assert.Nil(t, loops.PreheaderOf(fn.Block("latch")))

	assert.True(t, loops.Dominates(fn.Block("outer"), fn.Block("exit")))
	assert.False(t, loops.Dominates(fn.Block("inner"), fn.Block("exit")))
}
