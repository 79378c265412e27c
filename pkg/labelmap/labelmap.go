// Package labelmap recovers the source line of every statement label of a
// program, so traces can be related back to labeled loops and regions
package labelmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Manu343726/lltrace/pkg/utils"
	"golang.org/x/exp/maps"
)

var ErrMalformedEntry = errors.New("malformed label map entry")

// What is known about a function after visiting the translation units
type FunctionInfo struct {
	// Source line of each label
	Labels map[string]int
	// Functions that call this function directly
	Callers map[string]struct{}
	Inlined bool
}

func newFunctionInfo() *FunctionInfo {
	return &FunctionInfo{
		Labels:  map[string]int{},
		Callers: map[string]struct{}{},
	}
}

// Map of labels and call relations of a set of functions
type Map struct {
	functions map[string]*FunctionInfo
}

func New() *Map {
	return &Map{functions: map[string]*FunctionInfo{}}
}

// Returns the label map of the given function declarations
func Collect(decls ...*FunctionDecl) *Map {
	m := New()
	for _, decl := range decls {
		m.AddFunction(decl)
	}
	return m
}

func (m *Map) info(name string) *FunctionInfo {
	info, ok := m.functions[name]
	if !ok {
		info = newFunctionInfo()
		m.functions[name] = info
	}
	return info
}

func (m *Map) AddUnit(unit *TranslationUnit) {
	for _, decl := range unit.Functions {
		m.AddFunction(decl)
	}
}

// Visits a function definition. Declarations, methods and templates are ignored
func (m *Map) AddFunction(decl *FunctionDecl) {
	if !decl.HasBody() || decl.IsMethod || decl.IsTemplate {
		return
	}

	info := m.info(decl.Name)
	if decl.AlwaysInline {
		info.Inlined = true
	}

	stack := []*Stmt{decl.Body}
	for len(stack) > 0 {
		stmt := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch stmt.Kind {
		case StmtKind_Label:
			if sub := stmt.Labeled(); sub != nil {
				info.Labels[stmt.Label] = sub.Line
			}
		case StmtKind_Call:
			if stmt.Callee != "" && !decl.IsMain() {
				m.info(stmt.Callee).Callers[decl.Name] = struct{}{}
			}
		}

		for i := len(stmt.Children) - 1; i >= 0; i-- {
			stack = append(stack, stmt.Children[i])
		}
	}
}

// Returns the info collected for a function
func (m *Map) Function(name string) (*FunctionInfo, bool) {
	info, ok := m.functions[name]
	return info, ok
}

// Returns the sorted names of all known functions
func (m *Map) Functions() []string {
	return utils.SortedKeys(m.functions)
}

// Returns the non-inlined functions that end up containing the body of the
// given function, following callers through inlined functions
func (m *Map) NonInlinedCallers(function string) []string {
	result := map[string]struct{}{}
	visited := map[string]struct{}{function: {}}

	info, ok := m.functions[function]
	if !ok {
		return []string{}
	}

	worklist := maps.Keys(info.Callers)
	for len(worklist) > 0 {
		caller := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if _, seen := visited[caller]; seen {
			continue
		}
		visited[caller] = struct{}{}

		callerInfo, ok := m.functions[caller]
		if !ok || !callerInfo.Inlined {
			result[caller] = struct{}{}
			continue
		}

		worklist = append(worklist, maps.Keys(callerInfo.Callers)...)
	}

	return utils.SortedKeys(result)
}

// Entry is a line of the label map
type Entry struct {
	Function string
	Label    string
	Line     int
	// Non-inlined callers of an inlined function
	Callers []string
}

func (e Entry) String() string {
	s := fmt.Sprintf("%v/%v %v", e.Function, e.Label, e.Line)
	if len(e.Callers) > 0 {
		s += " inline " + strings.Join(e.Callers, " ")
	}
	return s
}

// Returns the entries of the map sorted by function and label
func (m *Map) Entries() []Entry {
	entries := []Entry{}

	for _, name := range m.Functions() {
		info := m.functions[name]

		var callers []string
		if info.Inlined {
			callers = m.NonInlinedCallers(name)
		}

		for _, label := range utils.SortedKeys(info.Labels) {
			entries = append(entries, Entry{
				Function: name,
				Label:    label,
				Line:     info.Labels[label],
				Callers:  callers,
			})
		}
	}

	return entries
}

func (m *Map) Write(w io.Writer) error {
	for _, entry := range m.Entries() {
		if _, err := fmt.Fprintln(w, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) String() string {
	var b strings.Builder
	m.Write(&b)
	return b.String()
}

// Adds the functions of other maps to this one
func (m *Map) Merge(others ...*Map) *Map {
	for _, other := range others {
		for name, info := range other.functions {
			dst := m.info(name)
			dst.Inlined = dst.Inlined || info.Inlined
			maps.Copy(dst.Labels, info.Labels)
			maps.Copy(dst.Callers, info.Callers)
		}
	}
	return m
}

// Parses a single label map line
func ParseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, utils.MakeError(ErrMalformedEntry, "'%v'", line)
	}

	slash := strings.LastIndex(fields[0], "/")
	if slash <= 0 || slash == len(fields[0])-1 {
		return Entry{}, utils.MakeError(ErrMalformedEntry, "'%v': expected function/label", line)
	}

	lineNumber, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, utils.MakeError(ErrMalformedEntry, "'%v': %w", line, err)
	}

	entry := Entry{
		Function: fields[0][:slash],
		Label:    fields[0][slash+1:],
		Line:     lineNumber,
	}

	if len(fields) > 2 {
		if fields[2] != "inline" || len(fields) == 3 {
			return Entry{}, utils.MakeError(ErrMalformedEntry, "'%v': expected inline callers", line)
		}
		entry.Callers = fields[3:]
	}

	return entry, nil
}

// Parses a label map. Empty lines are ignored
func Parse(r io.Reader) ([]Entry, error) {
	entries := []Entry{}
	scanner := bufio.NewScanner(r)

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := ParseEntry(line)
		if err != nil {
			return nil, utils.MakeError(err, "line %v", n)
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Writes the map to a file, replacing its contents
func (m *Map) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	if err := m.Write(writer); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}

// Reads a label map file, returning its contents verbatim once validated
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if _, err := Parse(strings.NewReader(string(data))); err != nil {
		return "", utils.MakeError(err, "'%v'", path)
	}

	return string(data), nil
}
