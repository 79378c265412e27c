package labelmap

import (
	"log/slog"
	"os"

	"github.com/Manu343726/lltrace/cmd/common"
	"github.com/Manu343726/lltrace/pkg/labelmap"
	"github.com/spf13/cobra"
)

var (
	labelMapOutput string
	labelMapStdout bool
)

var LabelMapCmd = &cobra.Command{
	Use:   "labelmap <ast.yaml>...",
	Short: "Generate the label map of a set of translation units",
	Long: `Walks the AST of each translation unit recording the source line of every
statement label and the callers of every function, and writes the label map
side file embedded in traces.

Labels of always_inline functions list the non-inlined functions their body ends
up in.

Example:
  lltrace labelmap kernel.yaml main.yaml
  lltrace labelmap -o build/labelmap kernel.yaml`,
	Args: cobra.MinimumNArgs(1),
	Run:  runLabelMap,
}

func init() {
	LabelMapCmd.Flags().StringVarP(&labelMapOutput, "output", "o", "", "Output file. The configured label map path if not specified")
	LabelMapCmd.Flags().BoolVar(&labelMapStdout, "stdout", false, "Dump the label map to stdout")
}

func runLabelMap(cmd *cobra.Command, args []string) {
	c, logger := common.Setup()
	defer logger.Close()

	m := labelmap.New()
	for _, path := range args {
		unit, err := labelmap.LoadTranslationUnitFile(path)
		if err != nil {
			common.Fail(2, "loading '%v': %v", path, err)
		}
		m.AddUnit(unit)
		logger.Debug("visited translation unit", slog.String("file", unit.File), slog.Int("functions", len(unit.Functions)))
	}

	if labelMapStdout {
		if err := m.Write(os.Stdout); err != nil {
			common.Fail(3, "%v", err)
		}
		return
	}

	output := labelMapOutput
	if output == "" {
		output = c.LabelMap
	}

	if err := m.WriteFile(output); err != nil {
		common.Fail(3, "writing '%v': %v", output, err)
	}

	logger.Info("label map written", slog.String("path", output), slog.Int("labels", len(m.Entries())))
}
