package cmd

import (
	"fmt"
	"os"

	"github.com/Manu343726/lltrace/cmd/instrument"
	"github.com/Manu343726/lltrace/cmd/labelmap"
	"github.com/Manu343726/lltrace/cmd/replay"
	"github.com/Manu343726/lltrace/cmd/tools"
	"github.com/Manu343726/lltrace/cmd/trace"
	"github.com/Manu343726/lltrace/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "lltrace",
	Short: "Dynamic instruction tracing for LLVM IR programs",
	Long: `lltrace plans the instrumentation of LLVM IR modules so that every executed
instruction of the selected workload functions is written to a compressed trace,
together with its operands, results and a map of the labeled source statements.

This CLI is the entry point for the lltrace toolchain: label map generation,
instrumentation planning, trace replay and trace inspection`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(
		instrument.InstrumentCmd,
		labelmap.LabelMapCmd,
		replay.ReplayCmd,
		trace.TraceCmd,
		tools.ToolsCmd,
	)
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lltrace.yaml)")
	flags.String("workload", "", "Comma separated list of functions to trace")
	flags.Bool("trace-all-callees", false, "Trace the whole call tree of every workload function")
	flags.String("labelmap", config.DefaultLabelMap, "Label map side file")
	flags.String("trace-name", "", "Default trace file name")
	flags.String("compression", "", "Trace compression codec. Derived from the trace file extension if not set")
	flags.BoolP("verbose", "v", false, "Debug logging")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Console log format: text or json")
	flags.String("log-file", "", "Additional JSON log file")

	config.Setup(viper.GetViper())

	for key, flag := range map[string]string{
		config.Key_Workload:        "workload",
		config.Key_TraceAllCallees: "trace-all-callees",
		config.Key_LabelMap:        "labelmap",
		config.Key_TraceName:       "trace-name",
		config.Key_Compression:     "compression",
		config.Key_Verbose:         "verbose",
		config.Key_LogLevel:        "log-level",
		config.Key_LogFormat:       "log-format",
		config.Key_LogFile:         "log-file",
	} {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".lltrace" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lltrace")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
