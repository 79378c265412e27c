package replay

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Manu343726/lltrace/pkg/utils"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScript = errors.New("invalid replay script")

// Values of a function, keyed by the label of the operand they are logged for
type Values map[string]any

// Step executes a range of instructions of a block
type Step struct {
	Function string `yaml:"function"`
	Block    string `yaml:"block"`
	// First instruction index executed
	From int `yaml:"from"`
	// Index past the last instruction executed. Zero runs to the end of the block
	To int `yaml:"to"`
	// Values updated before running the step, in the function of the step
	Values Values `yaml:"values"`
}

// ThreadScript is the execution path of one thread
type ThreadScript struct {
	Name string `yaml:"name"`
	// Trace the thread writes to. The tracer default if empty
	Trace string `yaml:"trace"`
	// Initial values per function
	Values map[string]Values `yaml:"values"`
	Path   []Step            `yaml:"path"`
}

// Script describes a set of threads running concurrently
type Script struct {
	Threads []ThreadScript `yaml:"threads"`
}

// Loads a replay script:
//
//	threads:
//	  - name: main
//	    trace: main.gz
//	    values:
//	      bar: {a: 1, b: 5, c: 6}
//	    path:
//	      - {function: bar, block: entry}
func LoadScript(r io.Reader) (*Script, error) {
	var script Script
	if err := yaml.NewDecoder(r).Decode(&script); err != nil {
		return nil, utils.MakeError(ErrInvalidScript, "%w", err)
	}

	for i, thread := range script.Threads {
		if thread.Name == "" {
			script.Threads[i].Name = fmt.Sprintf("thread%d", i)
		}
		for j, step := range thread.Path {
			if step.Function == "" || step.Block == "" {
				return nil, utils.MakeError(ErrInvalidScript, "thread '%v' step %v: function and block are required", script.Threads[i].Name, j)
			}
			if step.From < 0 || step.To < 0 || (step.To != 0 && step.To < step.From) {
				return nil, utils.MakeError(ErrInvalidScript, "thread '%v' step %v: invalid range [%v, %v)", script.Threads[i].Name, j, step.From, step.To)
			}
		}
	}

	return &script, nil
}

func LoadScriptFile(path string) (*Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadScript(file)
}
