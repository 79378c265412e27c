package labelmap

import (
	"errors"
	"io"
	"os"

	"github.com/Manu343726/lltrace/pkg/utils"
	"gopkg.in/yaml.v3"
)

var ErrInvalidAST = errors.New("invalid AST description")

// Kind of statement relevant to label recovery
type StmtKind int

const (
	StmtKind_Other StmtKind = iota
	// Labeled statement. Its only child is the labeled sub-statement
	StmtKind_Label
	// Direct call expression
	StmtKind_Call
)

// Stmt is a node of a function body
type Stmt struct {
	Kind   StmtKind
	Label  string
	Callee string
	// Line is the expansion line of the statement start
	Line int
	// SpellingLine is where the statement is written, which differs from Line
	// for statements expanded from macros
	SpellingLine int
	Children     []*Stmt
}

// Returns the statement a label is attached to, skipping nested labels
func (s *Stmt) Labeled() *Stmt {
	sub := s
	for sub != nil && sub.Kind == StmtKind_Label {
		if len(sub.Children) == 0 {
			return nil
		}
		sub = sub.Children[0]
	}
	return sub
}

// FunctionDecl is a function declaration of a translation unit
type FunctionDecl struct {
	Name         string
	Body         *Stmt
	IsMethod     bool
	IsTemplate   bool
	AlwaysInline bool
}

func (f *FunctionDecl) IsMain() bool {
	return f.Name == "main"
}

func (f *FunctionDecl) HasBody() bool {
	return f.Body != nil
}

// TranslationUnit is the AST of a source file
type TranslationUnit struct {
	File      string
	Functions []*FunctionDecl
}

type unitDesc struct {
	File      string         `yaml:"file"`
	Functions []functionDesc `yaml:"functions"`
}

type functionDesc struct {
	Name         string     `yaml:"name"`
	Method       bool       `yaml:"method"`
	Template     bool       `yaml:"template"`
	AlwaysInline bool       `yaml:"always_inline"`
	Body         []stmtDesc `yaml:"body"`
}

type stmtDesc struct {
	Label        string     `yaml:"label"`
	Call         string     `yaml:"call"`
	Line         int        `yaml:"line"`
	SpellingLine int        `yaml:"spelling_line"`
	Children     []stmtDesc `yaml:"children"`
}

func (d *stmtDesc) stmt() (*Stmt, error) {
	s := &Stmt{Line: d.Line, SpellingLine: d.SpellingLine, Label: d.Label, Callee: d.Call}
	if s.SpellingLine == 0 {
		s.SpellingLine = s.Line
	}

	switch {
	case d.Label != "" && d.Call != "":
		return nil, utils.MakeError(ErrInvalidAST, "statement at line %v is both a label and a call", d.Line)
	case d.Label != "":
		s.Kind = StmtKind_Label
		if len(d.Children) != 1 {
			return nil, utils.MakeError(ErrInvalidAST, "label '%v' must have exactly one sub-statement", d.Label)
		}
	case d.Call != "":
		s.Kind = StmtKind_Call
	}

	for i := range d.Children {
		child, err := d.Children[i].stmt()
		if err != nil {
			return nil, err
		}
		s.Children = append(s.Children, child)
	}

	return s, nil
}

// Loads a translation unit from its YAML description:
//
//	file: test.c
//	functions:
//	  - name: foo
//	    always_inline: false
//	    body:
//	      - label: foo_label
//	        line: 20
//	        children: [{line: 20}]
//	      - {call: bar, line: 21}
//
// Functions without body are declarations
func LoadTranslationUnit(r io.Reader) (*TranslationUnit, error) {
	var desc unitDesc
	if err := yaml.NewDecoder(r).Decode(&desc); err != nil {
		return nil, utils.MakeError(ErrInvalidAST, "%w", err)
	}

	unit := &TranslationUnit{File: desc.File}

	for _, f := range desc.Functions {
		if f.Name == "" {
			return nil, utils.MakeError(ErrInvalidAST, "function without name in '%v'", desc.File)
		}

		decl := &FunctionDecl{
			Name:         f.Name,
			IsMethod:     f.Method,
			IsTemplate:   f.Template,
			AlwaysInline: f.AlwaysInline,
		}

		if f.Body != nil {
			body := stmtDesc{Children: f.Body}
			stmt, err := body.stmt()
			if err != nil {
				return nil, utils.MakeError(err, "in function '%v'", f.Name)
			}
			decl.Body = stmt
		}

		unit.Functions = append(unit.Functions, decl)
	}

	return unit, nil
}

func LoadTranslationUnitFile(path string) (*TranslationUnit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadTranslationUnit(file)
}
