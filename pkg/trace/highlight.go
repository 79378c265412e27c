package trace

import (
	"strings"

	"github.com/fatih/color"
)

// Record highlighting colors
var (
	// Header and entry markers
	markerColor = color.New(color.FgMagenta, color.Bold)
	// Source line numbers and instruction counters
	numberColor = color.New(color.FgYellow)
	// Function names
	functionColor = color.New(color.FgHiYellow)
	// Basic block ids
	blockColor = color.New(color.FgBlue)
	// Instruction and register ids
	registerColor = color.New(color.FgCyan)
	// Opcodes
	opcodeColor = color.New(color.FgRed)
	// Operand values
	valueColor = color.New(color.FgGreen)
	// Param numbers and sentinels
	paramColor = color.New(color.FgHiBlack)
)

// Describes an opcode for display, e.g. "add" or "dma_load"
type OpcodeNamer func(opcode int) string

// Highlight returns the record as written in traces with its fields colored.
// If namer is not nil header opcodes are annotated with their name
func Highlight(r Record, namer OpcodeNamer) string {
	var b strings.Builder
	comma := func() { b.WriteString(",") }

	switch r.Kind {
	case RecordKind_Header:
		h := r.Header
		b.WriteString(markerColor.Sprint("0"))
		comma()
		b.WriteString(numberColor.Sprint(h.Line))
		comma()
		b.WriteString(functionColor.Sprint(h.Function))
		comma()
		b.WriteString(blockColor.Sprint(h.Block))
		comma()
		b.WriteString(registerColor.Sprint(h.Instruction))
		comma()
		b.WriteString(opcodeColor.Sprint(h.Opcode))
		comma()
		b.WriteString(numberColor.Sprint(h.Count))
		if namer != nil {
			b.WriteString(paramColor.Sprintf("  ; %s", namer(h.Opcode)))
		}

	case RecordKind_Entry:
		b.WriteString(markerColor.Sprint("entry"))
		comma()
		b.WriteString(functionColor.Sprint(r.Entry.Function))
		comma()
		b.WriteString(numberColor.Sprint(r.Entry.Params))
		comma()

	case RecordKind_Operand:
		o := r.Operand
		b.WriteString("  ")
		b.WriteString(paramColor.Sprint(o.ParamField()))
		comma()
		b.WriteString(numberColor.Sprint(o.Size))
		comma()
		b.WriteString(valueColor.Sprint(o.Value.Format()))
		comma()
		if o.IsReg {
			b.WriteString("1,")
			b.WriteString(registerColor.Sprint(o.Label))
		} else {
			b.WriteString("0, ")
		}
		comma()
		if o.IsPhi {
			b.WriteString(blockColor.Sprint(o.PrevBlock))
			comma()
		}
	}

	return b.String()
}
