// Package common holds the setup shared by every lltrace command
package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Manu343726/lltrace/pkg/config"
	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/labelmap"
	"github.com/Manu343726/lltrace/pkg/logging"
	"github.com/Manu343726/lltrace/pkg/tracer/planner"
	"github.com/fatih/color"
	"github.com/spf13/viper"
)

var colorError = color.New(color.FgRed, color.Bold)

// Prints an error and exits with the given code
func Fail(code int, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorError.Sprint("error: ")+fmt.Sprintf(format, args...))
	os.Exit(code)
}

// Returns the configuration and the logger of the current command. Exits on
// invalid settings
func Setup() (*config.Config, *logging.Logger) {
	c, err := config.Load(viper.GetViper())
	if err != nil {
		Fail(1, "%v", err)
	}

	logger, err := logging.New(logging.Settings{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	})
	if err != nil {
		Fail(1, "%v", err)
	}

	slog.SetDefault(logger.Logger)
	return c, logger
}

// Reads the label map side file. A missing file is not an error, the traces
// just carry an empty label map
func ReadLabelMap(c *config.Config, logger *slog.Logger) string {
	contents, err := labelmap.ReadFile(c.LabelMap)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("no label map found", slog.String("path", c.LabelMap))
		return ""
	}
	if err != nil {
		Fail(2, "reading label map: %v", err)
	}
	return contents
}

// Loads a module and plans its instrumentation with the configured workload
func Plan(c *config.Config, logger *slog.Logger, modulePath string) *planner.Plan {
	m, err := ir.LoadModuleFile(modulePath)
	if err != nil {
		Fail(2, "loading module: %v", err)
	}

	w, err := c.LoadWorkload()
	if err != nil {
		Fail(1, "%v", err)
	}

	p := planner.New(planner.Settings{
		Workload: w,
		LabelMap: ReadLabelMap(c, logger),
		Logger:   logger,
	})

	plan := planner.NewPlan(m)
	if err := p.PlanModule(m, plan); err != nil {
		Fail(3, "planning '%v': %v", modulePath, err)
	}

	logger.Debug("planned module",
		slog.String("module", m.ModuleName),
		slog.Int("calls", plan.Len()),
		slog.Any("tracked", p.Tracked().Names()))

	return plan
}
