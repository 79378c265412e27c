package ir

import (
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Manu343726/lltrace/pkg/utils"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidModule    = errors.New("invalid module description")
	ErrUnresolvedValue  = errors.New("unresolved value reference")
	ErrInvalidConstant  = errors.New("invalid constant")
	ErrDuplicatedSymbol = errors.New("duplicated symbol")
)

// YAML description of a module. Operands are written as references:
//
//	%name or %3      local argument, instruction or block (by name or slot number)
//	@name            function or global variable
//	i32 42           typed constant (also "double 1.5", "i8* null", "i32 undef")
//	<2 x i32> <1, 2> constant vector
//	getelementptr @g constant address of the first element of a global
//	bitcast @g to T  constant pointer cast of a global
//	metadata %x      local value wrapped for debug intrinsics
//	!var name        debug variable descriptor
type moduleDesc struct {
	Name      string         `yaml:"name"`
	Globals   []globalDesc   `yaml:"globals"`
	Functions []functionDesc `yaml:"functions"`
}

type globalDesc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Constant bool   `yaml:"constant"`
	String   string `yaml:"string"`
}

type argDesc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type functionDesc struct {
	Name        string      `yaml:"name"`
	LinkageName string      `yaml:"linkage_name"`
	DisplayName string      `yaml:"display_name"`
	File        string      `yaml:"file"`
	Result      string      `yaml:"result"`
	Args        []argDesc   `yaml:"args"`
	Blocks      []blockDesc `yaml:"blocks"`
}

type blockDesc struct {
	Name         string            `yaml:"name"`
	Instructions []instructionDesc `yaml:"instructions"`
}

type instructionDesc struct {
	Name     string     `yaml:"name"`
	Op       string     `yaml:"op"`
	Type     string     `yaml:"type"`
	Operands []string   `yaml:"operands"`
	Incoming [][]string `yaml:"incoming"`
	Line     int        `yaml:"line"`
	Column   int        `yaml:"column"`
}

// Loads a module from its YAML description file
func LoadModuleFile(path string) (*Module, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadModule(file)
}

// Loads a module from its YAML description. Functions and globals are created
// first so that operands can reference any symbol regardless of declaration order
func LoadModule(r io.Reader) (*Module, error) {
	var desc moduleDesc
	if err := yaml.NewDecoder(r).Decode(&desc); err != nil {
		return nil, utils.MakeError(ErrInvalidModule, "%w", err)
	}

	l := &loader{module: &Module{ModuleName: desc.Name}, symbols: map[string]Value{}}

	for _, g := range desc.Globals {
		if err := l.declareGlobal(g); err != nil {
			return nil, err
		}
	}

	for _, f := range desc.Functions {
		if err := l.declareFunction(f); err != nil {
			return nil, err
		}
	}

	for i, f := range desc.Functions {
		if err := l.defineFunction(l.module.Functions[i], f); err != nil {
			return nil, utils.MakeError(err, "in function '%v'", f.Name)
		}
	}

	return l.module, nil
}

type loader struct {
	module  *Module
	symbols map[string]Value
}

type localScope struct {
	names map[string]Value
	slots map[int]Value
}

func (l *loader) declareGlobal(desc globalDesc) error {
	if _, exists := l.symbols[desc.Name]; exists {
		return utils.MakeError(ErrDuplicatedSymbol, "@%v", desc.Name)
	}

	g := &GlobalVariable{GlobalName: desc.Name, IsConstant: desc.Constant}

	if desc.Type != "" {
		t, err := ParseType(desc.Type)
		if err != nil {
			return utils.MakeError(err, "in global '%v'", desc.Name)
		}
		g.ValueType = t
	}

	if desc.String != "" || (desc.Type == "" && desc.Constant) {
		data := append([]byte(desc.String), 0)
		if g.ValueType == nil {
			g.ValueType = Array(Int(8), len(data))
		}
		g.Initializer = &ConstantData{DataType: g.ValueType, Bytes: data}
	}

	if g.ValueType == nil {
		return utils.MakeError(ErrInvalidModule, "global '%v' has no type", desc.Name)
	}

	l.module.Globals = append(l.module.Globals, g)
	l.symbols[desc.Name] = g
	return nil
}

func (l *loader) declareFunction(desc functionDesc) error {
	if _, exists := l.symbols[desc.Name]; exists {
		return utils.MakeError(ErrDuplicatedSymbol, "@%v", desc.Name)
	}

	fn := &Function{
		FuncName:    desc.Name,
		LinkageName: desc.LinkageName,
		DisplayName: desc.DisplayName,
		ResultType:  Void(),
	}

	if desc.Result != "" {
		t, err := ParseType(desc.Result)
		if err != nil {
			return utils.MakeError(err, "in result of '%v'", desc.Name)
		}
		fn.ResultType = t
	}

	for _, arg := range desc.Args {
		t, err := ParseType(arg.Type)
		if err != nil {
			return utils.MakeError(err, "in argument '%v' of '%v'", arg.Name, desc.Name)
		}
		fn.Args = append(fn.Args, &Argument{ArgName: arg.Name, ArgType: t})
	}

	l.module.AddFunction(fn)
	l.symbols[desc.Name] = fn
	return nil
}

func (l *loader) defineFunction(fn *Function, desc functionDesc) error {
	if len(desc.Blocks) == 0 {
		return nil
	}

	scope := &localScope{names: map[string]Value{}, slots: map[int]Value{}}
	define := func(name string, v Value) error {
		if name == "" {
			return nil
		}
		if _, exists := scope.names[name]; exists {
			return utils.MakeError(ErrDuplicatedSymbol, "%%%v", name)
		}
		scope.names[name] = v
		return nil
	}

	for _, arg := range fn.Args {
		if err := define(arg.ArgName, arg); err != nil {
			return err
		}
	}

	// First pass: create blocks and instructions so forward references resolve
	for _, blockDesc := range desc.Blocks {
		bb := fn.AddBlock(blockDesc.Name)
		if err := define(blockDesc.Name, bb); err != nil {
			return err
		}

		for _, instDesc := range blockDesc.Instructions {
			op, err := ParseOpcode(instDesc.Op)
			if err != nil {
				return err
			}

			t := Void()
			if instDesc.Type != "" {
				if t, err = ParseType(instDesc.Type); err != nil {
					return err
				}
			}

			inst := bb.Append(&Instruction{InstName: instDesc.Name, InstType: t, Op: op})
			if instDesc.Line > 0 {
				inst.Debug = &DebugLoc{File: desc.File, Line: instDesc.Line, Column: instDesc.Column}
			}
			if err := define(instDesc.Name, inst); err != nil {
				return err
			}
		}
	}

	slots := NewSlotTracker(fn)
	for v, slot := range slots.slots {
		scope.slots[slot] = v
	}

	// Second pass: resolve operands
	for i, blockDesc := range desc.Blocks {
		bb := fn.Blocks[i]
		for j, instDesc := range blockDesc.Instructions {
			inst := bb.Instructions[j]

			for _, ref := range instDesc.Operands {
				v, err := l.resolve(scope, ref)
				if err != nil {
					return utils.MakeError(err, "in %v instruction of block '%v'", inst.Op, blockDesc.Name)
				}
				inst.Operands = append(inst.Operands, v)
			}

			for _, incoming := range instDesc.Incoming {
				if len(incoming) != 2 {
					return utils.MakeError(ErrInvalidModule, "phi incoming entries must be [value, block] pairs, got %v", incoming)
				}
				v, err := l.resolve(scope, incoming[0])
				if err != nil {
					return err
				}
				pred, err := l.resolve(scope, incoming[1])
				if err != nil {
					return err
				}
				block, ok := pred.(*BasicBlock)
				if !ok {
					return utils.MakeError(ErrInvalidModule, "'%v' is not a basic block", incoming[1])
				}
				inst.Operands = append(inst.Operands, v)
				inst.Incoming = append(inst.Incoming, block)
			}
		}
	}

	return nil
}

func (l *loader) resolve(scope *localScope, ref string) (Value, error) {
	ref = strings.TrimSpace(ref)

	switch {
	case strings.HasPrefix(ref, "%"):
		name := ref[1:]
		if v, ok := scope.names[name]; ok {
			return v, nil
		}
		if slot, err := strconv.Atoi(name); err == nil {
			if v, ok := scope.slots[slot]; ok {
				return v, nil
			}
		}
		return nil, utils.MakeError(ErrUnresolvedValue, "'%v'", ref)

	case strings.HasPrefix(ref, "@"):
		if v, ok := l.symbols[ref[1:]]; ok {
			return v, nil
		}
		return nil, utils.MakeError(ErrUnresolvedValue, "'%v'", ref)

	case strings.HasPrefix(ref, "metadata "):
		v, err := l.resolve(scope, strings.TrimPrefix(ref, "metadata "))
		if err != nil {
			return nil, err
		}
		return &LocalAsMetadata{Wrapped: v}, nil

	case strings.HasPrefix(ref, "!var "):
		return &DIVariable{VarName: strings.TrimSpace(strings.TrimPrefix(ref, "!var "))}, nil

	case strings.HasPrefix(ref, "getelementptr "):
		base, err := l.resolve(scope, strings.TrimPrefix(ref, "getelementptr "))
		if err != nil {
			return nil, err
		}
		elem := base.Type().Elem
		if elem != nil && (elem.IsArray() || elem.IsVector()) {
			elem = elem.Elem
		}
		return &ConstantExpr{Op: Opcode_GetElementPtr, Operands: []Value{base}, ExprType: Pointer(elem)}, nil

	case strings.HasPrefix(ref, "bitcast "):
		from, to, found := strings.Cut(strings.TrimPrefix(ref, "bitcast "), " to ")
		if !found {
			return nil, utils.MakeError(ErrInvalidConstant, "expected 'bitcast <value> to <type>', got '%v'", ref)
		}
		base, err := l.resolve(scope, from)
		if err != nil {
			return nil, err
		}
		t, err := ParseType(to)
		if err != nil {
			return nil, err
		}
		return &ConstantExpr{Op: Opcode_BitCast, Operands: []Value{base}, ExprType: t}, nil
	}

	return parseConstant(ref)
}

// Splits "<type> <literal>" where the type may contain spaces
func splitTypedLiteral(text string) (string, string, error) {
	depth := 0
	for i, r := range text {
		switch r {
		case '[', '<', '{':
			depth++
		case ']', '>', '}':
			depth--
		case ' ':
			if depth == 0 {
				return text[:i], strings.TrimSpace(text[i+1:]), nil
			}
		}
	}
	return "", "", utils.MakeError(ErrInvalidConstant, "expected '<type> <literal>', got '%v'", text)
}

func parseConstant(text string) (*Constant, error) {
	typeText, literal, err := splitTypedLiteral(text)
	if err != nil {
		return nil, err
	}

	t, err := ParseType(typeText)
	if err != nil {
		return nil, err
	}

	switch {
	case literal == "undef":
		return Undef(t), nil
	case literal == "null":
		if !t.IsPointer() {
			return nil, utils.MakeError(ErrInvalidConstant, "null constant of non pointer type '%v'", t)
		}
		return ConstNull(t), nil
	case t.IsVector():
		if !strings.HasPrefix(literal, "<") || !strings.HasSuffix(literal, ">") {
			return nil, utils.MakeError(ErrInvalidConstant, "expected '<e0, e1, ...>' vector literal, got '%v'", literal)
		}
		parts := strings.Split(literal[1:len(literal)-1], ",")
		if len(parts) != t.Count {
			return nil, utils.MakeError(ErrInvalidConstant, "vector '%v' expects %v elements, got %v", t, t.Count, len(parts))
		}
		c := &Constant{ConstType: t, Kind: ConstantKind_Vector}
		for _, part := range parts {
			elem, err := parseConstant(t.Elem.String() + " " + strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			c.Elements = append(c.Elements, elem)
		}
		return c, nil
	case t.IsInteger():
		switch literal {
		case "true":
			return ConstInt(t.Width, 1), nil
		case "false":
			return ConstInt(t.Width, 0), nil
		}
		value, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			return nil, utils.MakeError(ErrInvalidConstant, "'%v': %w", text, err)
		}
		return ConstInt(t.Width, value), nil
	case t.IsFloatingPoint():
		switch literal {
		case "inf":
			return ConstFloat(t, math.Inf(1)), nil
		case "-inf":
			return ConstFloat(t, math.Inf(-1)), nil
		case "nan":
			return ConstFloat(t, math.NaN()), nil
		}
		value, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, utils.MakeError(ErrInvalidConstant, "'%v': %w", text, err)
		}
		return ConstFloat(t, value), nil
	}

	return nil, utils.MakeError(ErrInvalidConstant, "unsupported constant '%v'", text)
}
