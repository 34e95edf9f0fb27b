package cmd

import "encoding/json"

// Options represents console arguments.
type Options struct {
	// ConfigPath is the path to the YAML configuration file.
	ConfigPath string `short:"c" long:"config" description:"Path to the YAML configuration file. Defaults are used if the file does not exist." default:"config.yaml"`

	// Verbose defines whether we should write the DEBUG-level log or not.
	// It overrides the level from the configuration file.
	Verbose bool `long:"verbose" description:"Verbose output (optional)" optional:"yes" optional-value:"true"`

	// LogOutput is the optional path to the log file.  It overrides the
	// logging section of the configuration file.
	LogOutput string `long:"output" description:"Path to the log file. If not set, write to stdout."`
}

// String implements fmt.Stringer interface for Options.
func (o *Options) String() (s string) {
	b, _ := json.MarshalIndent(o, "", "    ")
	return string(b)
}
