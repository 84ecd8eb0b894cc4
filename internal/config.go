// Package internal holds the operational tooling shared by the auxiliary
// binaries: their configuration and the database inspection page.
package internal

import "github.com/kelseyhightower/envconfig"

// ToolConfig is the configuration of the inspection binaries. They read the
// same variables as the gateway where the meaning is shared.
type ToolConfig struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	DebugPort      int    `envconfig:"DEBUG_PORT" default:"8091"`
}

// LoadToolConfig reads the tool configuration from the environment.
func LoadToolConfig() (ToolConfig, error) {
	var config ToolConfig
	err := envconfig.Process("", &config)
	return config, err
}
