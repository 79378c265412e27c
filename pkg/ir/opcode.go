package ir

import (
	"errors"

	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrUnknownOpcode = errors.New("unknown opcode")

// Represents a native instruction opcode. Values follow the LLVM 3.4/3.5
// Instruction opcode numbering, which is what traces carry
type Opcode int

const (
	Opcode_Invalid Opcode = iota
	// Terminators
	Opcode_Ret
	Opcode_Br
	Opcode_Switch
	Opcode_IndirectBr
	Opcode_Invoke
	Opcode_Resume
	Opcode_Unreachable
	// Binary operators
	Opcode_Add
	Opcode_FAdd
	Opcode_Sub
	Opcode_FSub
	Opcode_Mul
	Opcode_FMul
	Opcode_UDiv
	Opcode_SDiv
	Opcode_FDiv
	Opcode_URem
	Opcode_SRem
	Opcode_FRem
	// Logical operators
	Opcode_Shl
	Opcode_LShr
	Opcode_AShr
	Opcode_And
	Opcode_Or
	Opcode_Xor
	// Memory operators
	Opcode_Alloca
	Opcode_Load
	Opcode_Store
	Opcode_GetElementPtr
	Opcode_Fence
	Opcode_AtomicCmpXchg
	Opcode_AtomicRMW
	// Casts
	Opcode_Trunc
	Opcode_ZExt
	Opcode_SExt
	Opcode_FPToUI
	Opcode_FPToSI
	Opcode_UIToFP
	Opcode_SIToFP
	Opcode_FPTrunc
	Opcode_FPExt
	Opcode_PtrToInt
	Opcode_IntToPtr
	Opcode_BitCast
	Opcode_AddrSpaceCast
	// Other
	Opcode_ICmp
	Opcode_FCmp
	Opcode_PHI
	Opcode_Call
	Opcode_Select
	Opcode_UserOp1
	Opcode_UserOp2
	Opcode_VAArg
	Opcode_ExtractElement
	Opcode_InsertElement
	Opcode_ShuffleVector
	Opcode_ExtractValue
	Opcode_InsertValue
	Opcode_LandingPad

	TOTAL_OPCODES
)

var opcodeMnemonics = map[Opcode]string{
	Opcode_Ret:            "ret",
	Opcode_Br:             "br",
	Opcode_Switch:         "switch",
	Opcode_IndirectBr:     "indirectbr",
	Opcode_Invoke:         "invoke",
	Opcode_Resume:         "resume",
	Opcode_Unreachable:    "unreachable",
	Opcode_Add:            "add",
	Opcode_FAdd:           "fadd",
	Opcode_Sub:            "sub",
	Opcode_FSub:           "fsub",
	Opcode_Mul:            "mul",
	Opcode_FMul:           "fmul",
	Opcode_UDiv:           "udiv",
	Opcode_SDiv:           "sdiv",
	Opcode_FDiv:           "fdiv",
	Opcode_URem:           "urem",
	Opcode_SRem:           "srem",
	Opcode_FRem:           "frem",
	Opcode_Shl:            "shl",
	Opcode_LShr:           "lshr",
	Opcode_AShr:           "ashr",
	Opcode_And:            "and",
	Opcode_Or:             "or",
	Opcode_Xor:            "xor",
	Opcode_Alloca:         "alloca",
	Opcode_Load:           "load",
	Opcode_Store:          "store",
	Opcode_GetElementPtr:  "getelementptr",
	Opcode_Fence:          "fence",
	Opcode_AtomicCmpXchg:  "cmpxchg",
	Opcode_AtomicRMW:      "atomicrmw",
	Opcode_Trunc:          "trunc",
	Opcode_ZExt:           "zext",
	Opcode_SExt:           "sext",
	Opcode_FPToUI:         "fptoui",
	Opcode_FPToSI:         "fptosi",
	Opcode_UIToFP:         "uitofp",
	Opcode_SIToFP:         "sitofp",
	Opcode_FPTrunc:        "fptrunc",
	Opcode_FPExt:          "fpext",
	Opcode_PtrToInt:       "ptrtoint",
	Opcode_IntToPtr:       "inttoptr",
	Opcode_BitCast:        "bitcast",
	Opcode_AddrSpaceCast:  "addrspacecast",
	Opcode_ICmp:           "icmp",
	Opcode_FCmp:           "fcmp",
	Opcode_PHI:            "phi",
	Opcode_Call:           "call",
	Opcode_Select:         "select",
	Opcode_UserOp1:        "userop1",
	Opcode_UserOp2:        "userop2",
	Opcode_VAArg:          "va_arg",
	Opcode_ExtractElement: "extractelement",
	Opcode_InsertElement:  "insertelement",
	Opcode_ShuffleVector:  "shufflevector",
	Opcode_ExtractValue:   "extractvalue",
	Opcode_InsertValue:    "insertvalue",
	Opcode_LandingPad:     "landingpad",
}

var mnemonicOpcodes = utils.InvertedMap(opcodeMnemonics)

// Returns the mnemonic of the opcode as written in LLVM assembly
func (op Opcode) String() string {
	if mnemonic, ok := opcodeMnemonics[op]; ok {
		return mnemonic
	}
	return "<invalid>"
}

// Returns true if the opcode ends a basic block
func (op Opcode) IsTerminator() bool {
	return op >= Opcode_Ret && op <= Opcode_Unreachable
}

// Returns the opcode with the given mnemonic
func ParseOpcode(mnemonic string) (Opcode, error) {
	if op, ok := mnemonicOpcodes[mnemonic]; ok {
		return op, nil
	}
	return Opcode_Invalid, utils.MakeError(ErrUnknownOpcode, "'%v'", mnemonic)
}
