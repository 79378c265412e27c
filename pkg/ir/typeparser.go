package ir

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrInvalidType = errors.New("invalid type syntax")

// ParseType parses a type written in LLVM assembly syntax, e.g. "i32",
// "double*", "[4 x i8]", "<2 x float>" or "{i32, i8*}"
func ParseType(text string) (*Type, error) {
	p := &typeParser{input: text}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}

	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, utils.MakeError(ErrInvalidType, "unexpected trailing input '%v' in '%v'", p.input[p.pos:], text)
	}

	return t, nil
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) consume(token string) bool {
	p.skipSpaces()
	if strings.HasPrefix(p.input[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

func (p *typeParser) word() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		r := rune(p.input[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *typeParser) number() (int, error) {
	text := p.word()
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, utils.MakeError(ErrInvalidType, "expected element count in '%v', got '%v'", p.input, text)
	}
	return n, nil
}

func (p *typeParser) sequence(open, close string) (int, *Type, error) {
	n, err := p.number()
	if err != nil {
		return 0, nil, err
	}
	if !p.consume("x") {
		return 0, nil, utils.MakeError(ErrInvalidType, "expected 'x' after element count in '%v'", p.input)
	}
	elem, err := p.parse()
	if err != nil {
		return 0, nil, err
	}
	if !p.consume(close) {
		return 0, nil, utils.MakeError(ErrInvalidType, "unterminated '%v' in '%v'", open, p.input)
	}
	return n, elem, nil
}

func (p *typeParser) parse() (*Type, error) {
	var t *Type

	switch {
	case p.consume("["):
		n, elem, err := p.sequence("[", "]")
		if err != nil {
			return nil, err
		}
		t = Array(elem, n)
	case p.consume("<"):
		n, elem, err := p.sequence("<", ">")
		if err != nil {
			return nil, err
		}
		t = Vector(elem, n)
	case p.consume("{"):
		fields := []*Type{}
		if !p.consume("}") {
			for {
				field, err := p.parse()
				if err != nil {
					return nil, err
				}
				fields = append(fields, field)
				if p.consume("}") {
					break
				}
				if !p.consume(",") {
					return nil, utils.MakeError(ErrInvalidType, "expected ',' or '}' in '%v'", p.input)
				}
			}
		}
		t = Struct(fields...)
	default:
		name := p.word()
		switch name {
		case "void":
			t = Void()
		case "half":
			t = Half()
		case "float":
			t = Float()
		case "double":
			t = Double()
		case "x86_fp80":
			t = X86FP80()
		case "fp128":
			t = FP128()
		case "ppc_fp128":
			t = PPCFP128()
		case "label":
			t = Label()
		case "metadata":
			t = Metadata()
		default:
			if len(name) < 2 || name[0] != 'i' {
				return nil, utils.MakeError(ErrInvalidType, "unknown type '%v' in '%v'", name, p.input)
			}
			width, err := strconv.Atoi(name[1:])
			if err != nil || width <= 0 {
				return nil, utils.MakeError(ErrInvalidType, "invalid integer type '%v'", name)
			}
			t = Int(width)
		}
	}

	for p.consume("*") {
		t = Pointer(t)
	}

	return t, nil
}
