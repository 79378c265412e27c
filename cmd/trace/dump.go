package trace

import (
	"bufio"
	"fmt"
	"os"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	dumpNoColor  bool
	dumpLabelMap bool
	dumpOpcodes  bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <trace>",
	Short: "Print the records of a trace",
	Long: `Decompresses a trace and prints its records with syntax highlighting.
The compression codec is detected from the stream contents.

Example:
  lltrace trace dump dynamic_trace.gz
  lltrace trace dump --labelmap --no-color kernel.zst | less`,
	Args: cobra.ExactArgs(1),
	Run:  runDump,
}

func init() {
	TraceCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpNoColor, "no-color", false, "Disable colored output")
	dumpCmd.Flags().BoolVarP(&dumpLabelMap, "labelmap", "l", false, "Print the label map preamble after the records")
	dumpCmd.Flags().BoolVarP(&dumpOpcodes, "opcodes", "o", true, "Annotate headers with the opcode name")
}

func runDump(cmd *cobra.Command, args []string) {
	if dumpNoColor {
		color.NoColor = true
	}

	var namer trace.OpcodeNamer
	if dumpOpcodes {
		namer = opcodeName
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	headers := 0
	labelMap := readTrace(args[0], func(r trace.Record) {
		if r.Kind == trace.RecordKind_Header {
			headers++
		}
		fmt.Fprintln(out, trace.Highlight(r, namer))
	})

	if dumpLabelMap {
		fmt.Fprint(out, "\n", trace.LabelMapStart, labelMap, trace.LabelMapEnd)
	}

	fmt.Fprintf(os.Stderr, "%d instructions\n", headers)
}
