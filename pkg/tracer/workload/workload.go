// Package workload selects the functions that are traced
package workload

import (
	"errors"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrNoWorkload = errors.New("no workload functions specified")

// Workload is the user supplied list of functions to trace
type Workload struct {
	// Functions are the requested function names, source level or mangled, without duplicates
	Functions []string
	// TraceAllCallees forces top-level mode even with multiple workload functions
	TraceAllCallees bool
}

// Builds a workload from a list of function names. Duplicates are ignored
func New(functions []string, traceAllCallees bool) (*Workload, error) {
	w := &Workload{TraceAllCallees: traceAllCallees}
	seen := map[string]bool{}

	for _, fn := range functions {
		if fn == "" || seen[fn] {
			continue
		}
		seen[fn] = true
		w.Functions = append(w.Functions, fn)
	}

	if len(w.Functions) == 0 {
		return nil, ErrNoWorkload
	}

	return w, nil
}

// Parses a comma separated list of function names, as in WORKLOAD=foo,bar
func Parse(text string, traceAllCallees bool) (*Workload, error) {
	return New(utils.SplitList(text), traceAllCallees)
}

// Returns true if the workload is traced in top-level mode: a single workload
// function (or all of them when forced) acts as an entry point whose whole call
// subtree is traced
func (w *Workload) TopLevelMode() bool {
	return len(w.Functions) == 1 || w.TraceAllCallees
}

// Returns true if the workload lists the given name
func (w *Workload) Lists(name string) bool {
	for _, fn := range w.Functions {
		if fn == name {
			return true
		}
	}
	return false
}

// Computes the tracked set of a module: the IR names of the functions whose IR,
// linkage or source level name is listed in the workload
func (w *Workload) Resolve(m *ir.Module) *TrackedSet {
	set := &TrackedSet{names: map[string]bool{}}

	for _, fn := range m.Functions {
		if w.Lists(fn.FuncName) ||
			(fn.LinkageName != "" && w.Lists(fn.LinkageName)) ||
			(fn.DisplayName != "" && w.Lists(fn.DisplayName)) {
			set.names[fn.FuncName] = true
		}
	}

	return set
}

// TrackedSet is the set of tracked functions of a module, by IR name
type TrackedSet struct {
	names map[string]bool
}

// Builds a tracked set from IR names
func NewTrackedSet(names ...string) *TrackedSet {
	set := &TrackedSet{names: map[string]bool{}}
	for _, name := range names {
		set.names[name] = true
	}
	return set
}

func (s *TrackedSet) Contains(name string) bool {
	return s != nil && s.names[name]
}

// Returns the tracked names in ascending order
func (s *TrackedSet) Names() []string {
	if s == nil {
		return nil
	}
	return utils.SortedKeys(s.names)
}

func (s *TrackedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
