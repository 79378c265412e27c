// Package config reads the lltrace settings from viper: config file, environment
// variables and command line flags
package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracelogger"
	"github.com/Manu343726/lltrace/pkg/tracer/workload"
	"github.com/Manu343726/lltrace/pkg/utils"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Setting keys. Environment variables are the upper case key with dots
// replaced by underscores, as in WORKLOAD or LOG_LEVEL
const (
	Key_Workload        = "workload"
	Key_TraceAllCallees = "trace_all_callees"
	Key_LabelMap        = "labelmap"
	Key_TraceName       = "trace_name"
	Key_Compression     = "compression"
	Key_Verbose         = "verbose"
	Key_LogLevel        = "log.level"
	Key_LogFormat       = "log.format"
	Key_LogFile         = "log.file"
)

const DefaultLabelMap = "labelmap"

type Log struct {
	Level  slog.Level
	Format string
	// Additional JSON log file, none if empty
	File string
}

type Config struct {
	// Functions to trace, empty if no workload was given
	Workload        []string
	TraceAllCallees bool
	// Path of the label map side file
	LabelMap  string
	TraceName string
	// Codec name, derived from the trace name extension if empty
	Compression string
	Log         Log
}

// Sets the defaults and environment lookup of every key
func Setup(v *viper.Viper) {
	v.SetDefault(Key_TraceAllCallees, false)
	v.SetDefault(Key_LabelMap, DefaultLabelMap)
	v.SetDefault(Key_TraceName, tracelogger.DefaultTraceName)
	v.SetDefault(Key_Compression, "")
	v.SetDefault(Key_Verbose, false)
	v.SetDefault(Key_LogLevel, "info")
	v.SetDefault(Key_LogFormat, "text")
	v.SetDefault(Key_LogFile, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Returns a new viper instance with lltrace defaults
func New() *viper.Viper {
	v := viper.New()
	Setup(v)
	return v
}

// Reads the configuration. The workload is either a comma separated list or a
// YAML list
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		TraceAllCallees: v.GetBool(Key_TraceAllCallees),
		LabelMap:        v.GetString(Key_LabelMap),
		TraceName:       v.GetString(Key_TraceName),
		Compression:     v.GetString(Key_Compression),
		Log: Log{
			Format: strings.ToLower(v.GetString(Key_LogFormat)),
			File:   v.GetString(Key_LogFile),
		},
	}

	switch functions := v.Get(Key_Workload).(type) {
	case nil:
	case string:
		c.Workload = utils.SplitList(functions)
	default:
		c.Workload = v.GetStringSlice(Key_Workload)
	}

	if err := c.Log.Level.UnmarshalText([]byte(v.GetString(Key_LogLevel))); err != nil {
		return nil, utils.MakeError(ErrInvalidConfig, "%v: %w", Key_LogLevel, err)
	}
	if v.GetBool(Key_Verbose) {
		c.Log.Level = slog.LevelDebug
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return nil, utils.MakeError(ErrInvalidConfig, "%v: expected text or json, got '%v'", Key_LogFormat, c.Log.Format)
	}

	if _, err := c.Codec(); err != nil {
		return nil, err
	}

	return c, nil
}

// Returns the workload, nil if no function was given
func (c *Config) LoadWorkload() (*workload.Workload, error) {
	if len(c.Workload) == 0 {
		return nil, nil
	}
	return workload.New(c.Workload, c.TraceAllCallees)
}

// Returns the codec of trace files
func (c *Config) Codec() (trace.Codec, error) {
	if c.Compression == "" {
		return trace.CodecForPath(c.TraceName), nil
	}

	codec, err := trace.CodecByName(c.Compression)
	if err != nil {
		return nil, utils.MakeError(ErrInvalidConfig, "%v: %w", Key_Compression, err)
	}
	return codec, nil
}
