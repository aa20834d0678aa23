package cli

import (
	_ "embed"
)

//go:embed config.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the baseline configuration shipped with
// the binary. File and environment values are layered on top of it.
func EmbeddedDefaultConfiguration() []byte {
	return embeddedDefaultConfiguration
}

// CommonConfiguration carries settings shared by every command.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// AutosquashConfiguration carries the pipeline defaults applied when the
// corresponding command-line flags are not set.
type AutosquashConfiguration struct {
	Base       string `mapstructure:"base"`
	Strategy   string `mapstructure:"strategy"`
	LineByLine bool   `mapstructure:"line_by_line"`
	AutoAccept bool   `mapstructure:"auto_accept"`
}

// ApplicationConfiguration is the root configuration structure decoded from
// embedded defaults, configuration files, and environment variables.
type ApplicationConfiguration struct {
	Common     CommonConfiguration     `mapstructure:"common"`
	Autosquash AutosquashConfiguration `mapstructure:"autosquash"`
}
