package instrument

import (
	"fmt"

	"github.com/Manu343726/lltrace/cmd/common"
	"github.com/Manu343726/lltrace/pkg/tracer/planner"
	"github.com/spf13/cobra"
)

var instrumentSummary bool

var InstrumentCmd = &cobra.Command{
	Use:   "instrument <module.yaml>",
	Short: "Plan the instrumentation of an IR module",
	Long: `Loads an IR module and computes the tracing runtime calls inserted around
each instruction of the workload functions.

The plan is printed as a tree of functions, blocks, instructions and calls.

Example:
  lltrace instrument --workload=kernel module.yaml
  WORKLOAD=a,b lltrace instrument --summary module.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runInstrument,
}

func init() {
	InstrumentCmd.Flags().BoolVarP(&instrumentSummary, "summary", "s", false, "Print the number of calls per function instead of the whole plan")
}

func runInstrument(cmd *cobra.Command, args []string) {
	c, logger := common.Setup()
	defer logger.Close()

	plan := common.Plan(c, logger.Logger, args[0])

	if !instrumentSummary {
		fmt.Println(plan.String())
		return
	}

	for _, fn := range plan.Module.Functions {
		if !plan.Instrumented(fn) {
			continue
		}

		headers := 0
		calls := plan.FunctionCalls(fn)
		for _, call := range calls {
			if _, ok := call.(*planner.HeaderCall); ok {
				headers++
			}
		}

		fmt.Printf("%v: %d instructions, %d calls\n", fn.FuncName, headers, len(calls))
	}
}
