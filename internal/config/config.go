//
// Copyright 2023 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config contains a centralized structure for all configuration
// options, read through Viper so every value can also come from an env var
// or a CLI flag.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration structure.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Sandbox      SandboxConfig      `mapstructure:"sandbox"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// OrchestratorConfig governs the bounded worker pool that drives one
// evaluation per repo instance.
type OrchestratorConfig struct {
	// Concurrency bounds how many instances evaluate at once.
	Concurrency int `mapstructure:"concurrency" default:"4"`
	// ResultDir is the root directory results are read from / written to,
	// laid out as <result_dir>/<language>/<instance_id>/.
	ResultDir string `mapstructure:"result_dir" default:"./results"`
	// Resume skips instances that already have a result.json. When it is
	// off, prior state is backed up (rather than deleted) before the run.
	Resume bool `mapstructure:"resume" default:"true"`
	// CacheLevel governs how much of a finished instance's workspace is
	// kept on disk afterward ("all", "log", or "none").
	CacheLevel string `mapstructure:"cache_level" default:"log"`
	// PredictionsDir is the root a candidate patch is read from, laid out
	// as <predictions_dir>/<language>/<instance_id>/patch.diff.
	PredictionsDir string `mapstructure:"predictions_dir" default:""`
	// PatchExec, when set, additionally runs the CI job against a
	// workspace that only has the oracle patch applied, recording the
	// result in EvaluationResult.PatchExec.
	PatchExec bool `mapstructure:"patch_exec" default:"false"`
	// RemoveFake, when set, strips predicted dependencies flagged as
	// fake libraries and reruns the CI job, recording the result in
	// EvaluationResult.RemoveFake.
	RemoveFake bool `mapstructure:"remove_fake" default:"false"`
}

// SandboxConfig governs the per-instance sandboxed CI run.
type SandboxConfig struct {
	// TimeoutSeconds bounds the inner CI command.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"1800"`
	// Privileged requests the nested-container runtime a
	// Docker-in-Docker CI job needs.
	Privileged bool `mapstructure:"privileged" default:"true"`
	// Runtime names the OCI runtime to request (e.g. "sysbox-runc");
	// empty uses the daemon default.
	Runtime string `mapstructure:"runtime" default:""`
	// ContainerWorkDir is where the staged checkout is mounted inside
	// the sandbox container.
	ContainerWorkDir string `mapstructure:"container_workdir" default:"/workspace"`
	// ImageTemplate is a text/template string rendered against the
	// instance's EnvSpec ({{.SDK}}, {{.OS}}) to pick the prebuilt runner
	// image to start the container from.
	ImageTemplate string `mapstructure:"image_template" default:"ghcr.io/bigbuild/runner:{{.SDK}}-{{.OS}}"`
}

// RegistryConfig governs the fake-library registry probes.
type RegistryConfig struct {
	// TimeoutSeconds bounds each registry HTTP request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"10"`
}

// ReadConfigFromViper reads the configuration from the given Viper instance.
// This will return the already-parsed and validated configuration, or an error.
func ReadConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfigForTest returns a configuration with all the struct defaults
// set, but no other changes.
func DefaultConfigForTest() *Config {
	v := viper.New()
	SetViperDefaults(v)
	c, err := ReadConfigFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("failed to read default config: %v", err))
	}
	return c
}

// SetViperDefaults sets the default values for the configuration to be
// picked up by viper.
func SetViperDefaults(v *viper.Viper) {
	v.SetEnvPrefix("bigbuild")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperStructDefaults(v, "", Config{})
}

// setViperStructDefaults recursively sets the viper default values for the
// given struct.
//
// Per https://github.com/spf13/viper/issues/188#issuecomment-255519149, and
// https://github.com/spf13/viper/issues/761, we need to call
// viper.SetDefault() for each field in the struct to be able to use env var
// overrides. This also lets us use the struct as the source of default
// values, so yay?
func setViperStructDefaults(v *viper.Viper, prefix string, s any) {
	structType := reflect.TypeOf(s)

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if unicode.IsLower([]rune(field.Name)[0]) {
			continue
		}
		if field.Tag.Get("mapstructure") == "" {
			panic(fmt.Sprintf("untagged config struct field %q", field.Name))
		}
		valueName := strings.ToLower(prefix + field.Tag.Get("mapstructure"))

		if field.Type.Kind() == reflect.Struct {
			setViperStructDefaults(v, valueName+".", reflect.Zero(field.Type).Interface())
			continue
		}

		value := field.Tag.Get("default")
		defaultValue := reflect.Zero(field.Type).Interface()
		var err error
		fieldType := field.Type.Kind()
		//nolint:golint,exhaustive
		switch fieldType {
		case reflect.String:
			defaultValue = value
		case reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8, reflect.Int,
			reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uint:
			defaultValue, err = strconv.Atoi(value)
		case reflect.Float64:
			defaultValue, err = strconv.ParseFloat(value, 64)
		case reflect.Bool:
			defaultValue, err = strconv.ParseBool(value)
		default:
			err = fmt.Errorf("unhandled type %s", fieldType)
		}
		if err != nil {
			panic(fmt.Sprintf("bad value for field %q (%s): %q", valueName, fieldType, err))
		}

		if err := v.BindEnv(strings.ToUpper(valueName)); err != nil {
			panic(fmt.Sprintf("failed to bind %q to env var: %v", valueName, err))
		}
		v.SetDefault(valueName, defaultValue)
	}
}

// FlagInst is a function that creates a flag and returns a pointer to the value.
type FlagInst[V any] func(name string, value V, usage string) *V

// FlagInstShort is a function that creates a flag and returns a pointer to the value.
type FlagInstShort[V any] func(name, shorthand string, value V, usage string) *V

// BindConfigFlag is a helper function that binds a configuration value to a flag.
func BindConfigFlag[V any](
	v *viper.Viper,
	flags *pflag.FlagSet,
	viperPath string,
	cmdLineArg string,
	defaultValue V,
	help string,
	binder FlagInst[V],
) error {
	binder(cmdLineArg, defaultValue, help)
	return doViperBind[V](v, flags, viperPath, cmdLineArg, defaultValue)
}

// BindConfigFlagWithShort is a helper function that binds a configuration
// value to a flag, with a single-character shorthand.
func BindConfigFlagWithShort[V any](
	v *viper.Viper,
	flags *pflag.FlagSet,
	viperPath string,
	cmdLineArg string,
	short string,
	defaultValue V,
	help string,
	binder FlagInstShort[V],
) error {
	binder(cmdLineArg, short, defaultValue, help)
	return doViperBind[V](v, flags, viperPath, cmdLineArg, defaultValue)
}

func doViperBind[V any](
	v *viper.Viper,
	flags *pflag.FlagSet,
	viperPath string,
	cmdLineArg string,
	defaultValue V,
) error {
	v.SetDefault(viperPath, defaultValue)
	if err := v.BindPFlag(viperPath, flags.Lookup(cmdLineArg)); err != nil {
		return fmt.Errorf("failed to bind flag %s to viper path %s: %w", cmdLineArg, viperPath, err)
	}
	return nil
}
