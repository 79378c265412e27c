package trace

import (
	"io"
)

// Encoder writes trace records to a stream. Records are appended, never rewritten
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Writes the label map preamble. Expected once, at the start of the stream
func (e *Encoder) WriteLabelMap(labelMap string) error {
	_, err := io.WriteString(e.w, LabelMapStart+labelMap+LabelMapEnd)
	return err
}

func (e *Encoder) WriteHeader(h *Header) error {
	_, err := io.WriteString(e.w, "\n"+formatHeader(h)+"\n")
	return err
}

func (e *Encoder) WriteEntry(entry *Entry) error {
	_, err := io.WriteString(e.w, "\n"+formatEntry(entry)+"\n")
	return err
}

func (e *Encoder) WriteOperand(o *Operand) error {
	_, err := io.WriteString(e.w, formatOperand(o))
	return err
}

// Writes any kind of record
func (e *Encoder) Write(r Record) error {
	switch r.Kind {
	case RecordKind_Header:
		return e.WriteHeader(r.Header)
	case RecordKind_Entry:
		return e.WriteEntry(r.Entry)
	}
	return e.WriteOperand(r.Operand)
}
