package trace

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrMalformedRecord = errors.New("malformed trace record")

// Reader decodes a trace stream back into records. Operand values are kept in
// their textual form as String values, since the text format does not carry
// the value kind
type Reader struct {
	scanner  *bufio.Scanner
	line     int
	labelMap strings.Builder
	started  bool
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Returns the label map preamble. Complete once the first record has been read
func (r *Reader) LabelMap() string {
	return r.labelMap.String()
}

// Returns the next record, io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()

		if !r.started {
			r.started = true
			if text+"\n" == LabelMapStart {
				if err := r.readLabelMap(); err != nil {
					return Record{}, err
				}
				continue
			}
		}

		if text == "" {
			continue
		}

		record, err := ParseRecord(text)
		if err != nil {
			return Record{}, utils.MakeError(err, "at line %v", r.line)
		}
		return record, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

func (r *Reader) readLabelMap() error {
	end := strings.TrimSuffix(LabelMapEnd, "\n\n")

	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if text == end {
			return nil
		}
		r.labelMap.WriteString(text)
		r.labelMap.WriteString("\n")
	}

	if err := r.scanner.Err(); err != nil {
		return err
	}
	return utils.MakeError(ErrMalformedRecord, "unterminated label map")
}

// Reads every record of a stream
func ReadAll(stream io.Reader) (string, []Record, error) {
	r := NewReader(stream)
	records := []Record{}

	for {
		record, err := r.Next()
		if err == io.EOF {
			return r.LabelMap(), records, nil
		}
		if err != nil {
			return r.LabelMap(), records, err
		}
		records = append(records, record)
	}
}

// Parses a single record line
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(line, ",")

	switch {
	case fields[0] == "entry":
		if len(fields) != 4 || fields[3] != "" {
			return Record{}, utils.MakeError(ErrMalformedRecord, "entry '%v'", line)
		}
		params, err := strconv.Atoi(fields[2])
		if err != nil {
			return Record{}, utils.MakeError(ErrMalformedRecord, "entry '%v': %w", line, err)
		}
		return Record{Kind: RecordKind_Entry, Entry: &Entry{Function: fields[1], Params: params}}, nil

	case fields[0] == "0" && len(fields) == 7:
		h := &Header{Function: fields[2], Block: fields[3], Instruction: fields[4]}
		var err error
		if h.Line, err = strconv.Atoi(fields[1]); err != nil {
			return Record{}, utils.MakeError(ErrMalformedRecord, "header '%v': %w", line, err)
		}
		if h.Opcode, err = strconv.Atoi(fields[5]); err != nil {
			return Record{}, utils.MakeError(ErrMalformedRecord, "header '%v': %w", line, err)
		}
		if h.Count, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
			return Record{}, utils.MakeError(ErrMalformedRecord, "header '%v': %w", line, err)
		}
		return Record{Kind: RecordKind_Header, Header: h}, nil
	}

	o, err := parseOperand(fields)
	if err != nil {
		return Record{}, utils.MakeError(err, "operand '%v'", line)
	}
	return Record{Kind: RecordKind_Operand, Operand: o}, nil
}

func isFlag(field string) bool {
	return field == "0" || field == "1"
}

// Operand lines are "<p>,<size>,<value>,<is_reg>,<label|' '>[,<prev>]," where
// string values may contain commas, so the layout is resolved from the right.
// Phi predecessor ids always carry a ":<depth>" suffix
func parseOperand(fields []string) (*Operand, error) {
	n := len(fields)
	if n < 6 || fields[n-1] != "" {
		return nil, ErrMalformedRecord
	}

	plain := isFlag(fields[n-3])
	phi := n >= 7 && isFlag(fields[n-4]) && strings.Contains(fields[n-2], ":")

	o := &Operand{}

	switch {
	case phi && (!plain || !strings.Contains(fields[n-3], ":")):
		o.IsPhi = true
		o.PrevBlock = fields[n-2]
		o.IsReg = fields[n-4] == "1"
		o.Label = fields[n-3]
		o.Value = String(strings.Join(fields[2:n-4], ","))
	case plain:
		o.IsReg = fields[n-3] == "1"
		o.Label = fields[n-2]
		o.Value = String(strings.Join(fields[2:n-3], ","))
	default:
		return nil, ErrMalformedRecord
	}

	if !o.IsReg {
		if o.Label != " " {
			return nil, ErrMalformedRecord
		}
		o.Label = ""
	}

	switch fields[0] {
	case "r":
		o.Param = ResultLine
	case "f":
		o.Param = ForwardLine
	default:
		param, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, ErrMalformedRecord
		}
		o.Param = param
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, ErrMalformedRecord
	}
	o.Size = size

	return o, nil
}
