// Package opcodes defines the opcode numbering written in trace headers: native
// IR opcodes plus synthetic tags for recognized library calls
package opcodes

import (
	"fmt"
	"strings"

	"github.com/Manu343726/lltrace/pkg/ir"
)

// Opcode as written in trace header records
type Opcode int

const (
	Opcode_DmaFence          Opcode = 97
	Opcode_DmaStore          Opcode = 98
	Opcode_DmaLoad           Opcode = 99
	Opcode_Intrinsic         Opcode = 100
	Opcode_SpecialMathOp     Opcode = 101
	Opcode_Sine              Opcode = 102
	Opcode_Cosine            Opcode = 103
	Opcode_SetReadyBits      Opcode = 104
	Opcode_SetSamplingFactor Opcode = 105
	Opcode_HostLoad          Opcode = 106
	Opcode_HostStore         Opcode = 107
)

var syntheticNames = map[Opcode]string{
	Opcode_DmaFence:          "dma_fence",
	Opcode_DmaStore:          "dma_store",
	Opcode_DmaLoad:           "dma_load",
	Opcode_Intrinsic:         "intrinsic",
	Opcode_SpecialMathOp:     "special_math_op",
	Opcode_Sine:              "sine",
	Opcode_Cosine:            "cosine",
	Opcode_SetReadyBits:      "set_ready_bits",
	Opcode_SetSamplingFactor: "set_sampling_factor",
	Opcode_HostLoad:          "host_load",
	Opcode_HostStore:         "host_store",
}

// Returns the trace opcode of a native instruction
func Native(op ir.Opcode) Opcode {
	return Opcode(op)
}

// Returns true if the opcode is one of the synthetic pseudo-op tags
func (op Opcode) IsSynthetic() bool {
	_, ok := syntheticNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := syntheticNames[op]; ok {
		return name
	}
	if op > 0 && op < Opcode(ir.TOTAL_OPCODES) {
		return ir.Opcode(op).String()
	}
	return fmt.Sprintf("opcode#%d", int(op))
}

// A callee name pattern. A pattern matches a function named exactly Name or
// any overload of it, i.e. Name followed by a '.' suffix as in "llvm.sin.f64"
type Pattern struct {
	Name   string
	Opcode Opcode
}

func (p Pattern) Matches(function string) bool {
	return function == p.Name || strings.HasPrefix(function, p.Name+".")
}

// Callee patterns resolved to synthetic opcodes. The first match wins
var PseudoOps = []Pattern{
	{Name: "dmaLoad", Opcode: Opcode_DmaLoad},
	{Name: "dmaStore", Opcode: Opcode_DmaStore},
	{Name: "dmaFence", Opcode: Opcode_DmaFence},
	{Name: "hostLoad", Opcode: Opcode_HostLoad},
	{Name: "hostStore", Opcode: Opcode_HostStore},
	{Name: "setReadyBits", Opcode: Opcode_SetReadyBits},
	{Name: "setSamplingFactor", Opcode: Opcode_SetSamplingFactor},

	{Name: "sin", Opcode: Opcode_Sine},
	{Name: "sinf", Opcode: Opcode_Sine},
	{Name: "sinl", Opcode: Opcode_Sine},
	{Name: "llvm.sin", Opcode: Opcode_Sine},
	{Name: "cos", Opcode: Opcode_Cosine},
	{Name: "cosf", Opcode: Opcode_Cosine},
	{Name: "cosl", Opcode: Opcode_Cosine},
	{Name: "llvm.cos", Opcode: Opcode_Cosine},

	{Name: "sqrt", Opcode: Opcode_SpecialMathOp},
	{Name: "sqrtf", Opcode: Opcode_SpecialMathOp},
	{Name: "exp", Opcode: Opcode_SpecialMathOp},
	{Name: "expf", Opcode: Opcode_SpecialMathOp},
	{Name: "log", Opcode: Opcode_SpecialMathOp},
	{Name: "logf", Opcode: Opcode_SpecialMathOp},
	{Name: "pow", Opcode: Opcode_SpecialMathOp},
	{Name: "powf", Opcode: Opcode_SpecialMathOp},
	{Name: "tan", Opcode: Opcode_SpecialMathOp},
	{Name: "tanf", Opcode: Opcode_SpecialMathOp},
	{Name: "fabs", Opcode: Opcode_SpecialMathOp},
	{Name: "fabsf", Opcode: Opcode_SpecialMathOp},
}

// Functions whose bodies are never instrumented: their calls are traced as pseudo-ops
var PseudoFunctions = []string{
	"dmaLoad",
	"dmaStore",
	"dmaFence",
	"hostLoad",
	"hostStore",
	"setReadyBits",
	"setSamplingFactor",
}

// LLVM intrinsics that are traced. Any other intrinsic call (debug info, lifetime
// markers, ...) is skipped
var AllowedIntrinsics = []string{
	"llvm.memcpy",
	"llvm.memmove",
	"llvm.memset",
	"llvm.sqrt",
	"llvm.powi",
	"llvm.sin",
	"llvm.cos",
	"llvm.pow",
	"llvm.exp",
	"llvm.exp2",
	"llvm.log",
	"llvm.log10",
	"llvm.log2",
	"llvm.fma",
	"llvm.fmuladd",
	"llvm.fabs",
	"llvm.copysign",
	"llvm.floor",
	"llvm.ceil",
	"llvm.trunc",
	"llvm.rint",
	"llvm.nearbyint",
	"llvm.round",
	"llvm.bswap",
	"llvm.ctpop",
	"llvm.ctlz",
	"llvm.cttz",
	"llvm.sadd.with.overflow",
	"llvm.uadd.with.overflow",
	"llvm.ssub.with.overflow",
	"llvm.usub.with.overflow",
	"llvm.smul.with.overflow",
	"llvm.umul.with.overflow",
}

var allowedIntrinsicPatterns = func() []Pattern {
	patterns := make([]Pattern, len(AllowedIntrinsics))
	for i, name := range AllowedIntrinsics {
		patterns[i] = Pattern{Name: name, Opcode: Opcode_Intrinsic}
	}
	return patterns
}()

// Returns true if the function body must not be instrumented
func IsPseudoFunction(name string) bool {
	for _, pseudo := range PseudoFunctions {
		if name == pseudo {
			return true
		}
	}
	return false
}

// Returns true if calls to the intrinsic are traced
func IsAllowedIntrinsic(name string) bool {
	for _, p := range allowedIntrinsicPatterns {
		if p.Matches(name) {
			return true
		}
	}
	return false
}

// Returns the synthetic opcode for a call to the given function, if any. Allowed
// intrinsics without a specific pseudo-op map to Opcode_Intrinsic
func Lookup(callee string) (Opcode, bool) {
	for _, p := range PseudoOps {
		if p.Matches(callee) {
			return p.Opcode, true
		}
	}

	if IsAllowedIntrinsic(callee) {
		return Opcode_Intrinsic, true
	}

	return 0, false
}

var fixedPoint = map[ir.Opcode]ir.Opcode{
	ir.Opcode_FAdd:    ir.Opcode_Add,
	ir.Opcode_FSub:    ir.Opcode_Sub,
	ir.Opcode_FMul:    ir.Opcode_Mul,
	ir.Opcode_FDiv:    ir.Opcode_SDiv,
	ir.Opcode_FRem:    ir.Opcode_SRem,
	ir.Opcode_FPTrunc: ir.Opcode_Trunc,
	ir.Opcode_FPExt:   ir.Opcode_SExt,
	ir.Opcode_FCmp:    ir.Opcode_ICmp,
}

// Returns the integer counterpart of a floating point opcode, used for functions
// compiled to fixed point arithmetic. Other opcodes are returned unchanged
func FixedPoint(op ir.Opcode) ir.Opcode {
	if fixed, ok := fixedPoint[op]; ok {
		return fixed
	}
	return op
}

// Suffix of function names compiled to fixed point arithmetic
const FixedPointSuffix = "_fxp"

// Returns a human readable description of the synthetic opcodes and the calls
// that map to them, indented by leftpad spaces
func Documentation(leftpad int) string {
	var builder strings.Builder
	leftpad_str := strings.Repeat(" ", leftpad)

	builder.WriteString(leftpad_str)
	builder.WriteString("Synthetic opcodes:\n\n")

	for op := Opcode_DmaFence; op <= Opcode_HostStore; op++ {
		callees := []string{}
		for _, p := range PseudoOps {
			if p.Opcode == op {
				callees = append(callees, p.Name)
			}
		}
		if op == Opcode_Intrinsic {
			callees = AllowedIntrinsics
		}

		builder.WriteString(fmt.Sprintf(" - %v%v %v: %v\n", leftpad_str, int(op), op, strings.Join(callees, ", ")))
	}

	builder.WriteString("\n")
	builder.WriteString(leftpad_str)
	builder.WriteString("Functions never instrumented:\n\n")

	for _, name := range PseudoFunctions {
		builder.WriteString(fmt.Sprintf(" - %v%v\n", leftpad_str, name))
	}

	builder.WriteString("\n")
	builder.WriteString(leftpad_str)
	builder.WriteString(fmt.Sprintf("Functions named *%v use integer opcodes for floating point instructions\n", FixedPointSuffix))

	return builder.String()
}

// Like Documentation(), but with zero leftpad
func DocString() string {
	return Documentation(0)
}
