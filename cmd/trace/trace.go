package trace

import (
	"io"

	"github.com/Manu343726/lltrace/cmd/common"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracer/opcodes"
	"github.com/spf13/cobra"
)

// TraceCmd groups the trace inspection commands
var TraceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect dynamic traces",
}

func opcodeName(opcode int) string {
	return opcodes.Opcode(opcode).String()
}

// Opens a trace and calls visit with each record. Returns the label map
func readTrace(path string, visit func(trace.Record)) string {
	stream, err := trace.Open(path)
	if err != nil {
		common.Fail(2, "opening '%v': %v", path, err)
	}
	defer stream.Close()

	reader := trace.NewReader(stream)
	for {
		record, err := reader.Next()
		if err == io.EOF {
			return reader.LabelMap()
		}
		if err != nil {
			common.Fail(3, "reading '%v': %v", path, err)
		}
		visit(record)
	}
}
