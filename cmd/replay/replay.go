package replay

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Manu343726/lltrace/cmd/common"
	"github.com/Manu343726/lltrace/pkg/replay"
	"github.com/Manu343726/lltrace/pkg/tracelogger"
	"github.com/spf13/cobra"
)

var ReplayCmd = &cobra.Command{
	Use:   "replay <module.yaml> <script.yaml>",
	Short: "Write the traces of a scripted execution of a module",
	Long: `Plans the instrumentation of a module and runs the threads described by the
script through the tracing runtime, writing the traces an instrumented build
of the module would write.

Each thread follows a path of (function, block, instruction range) steps, with
operand values taken from the script.

Example:
  lltrace replay --workload=kernel module.yaml run.yaml
  lltrace replay --workload=kernel --trace-name=kernel.zst module.yaml run.yaml`,
	Args: cobra.ExactArgs(2),
	Run:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) {
	c, logger := common.Setup()
	defer logger.Close()

	plan := common.Plan(c, logger.Logger, args[0])

	script, err := replay.LoadScriptFile(args[1])
	if err != nil {
		common.Fail(2, "loading script: %v", err)
	}

	codec, err := c.Codec()
	if err != nil {
		common.Fail(1, "%v", err)
	}

	tracer := tracelogger.New(tracelogger.Settings{
		DefaultTraceName: c.TraceName,
		Codec:            codec,
		Logger:           logger.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := replay.New(replay.Settings{Tracer: tracer, Plan: plan, Logger: logger.Logger})
	runErr := r.Run(ctx, script)

	streams := tracer.Streams()
	if err := tracer.Close(); err != nil {
		common.Fail(4, "closing traces: %v", err)
	}
	if runErr != nil {
		common.Fail(5, "%v", runErr)
	}

	for _, name := range streams {
		fmt.Println(name)
	}
}
