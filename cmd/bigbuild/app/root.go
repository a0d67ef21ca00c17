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

// Package app provides the cli subcommands for the bigbuild evaluation
// harness.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justachillguy/bigbuild/internal/config"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "bigbuild",
	Short: "bigbuild evaluates dependency-manifest patches against sandboxed CI runs",
	Long: `bigbuild stages a repo instance's oracle and candidate patches into
isolated workspaces, runs each through a sandboxed CI job, compares the
candidate's declared dependencies against the oracle's, and records one
result per instance.`,
}

const configFileName = "bigbuild-config.yaml"

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	RootCmd.SetOut(os.Stdout)
	RootCmd.SetErr(os.Stderr)
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("error executing root command")
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetViperDefaults(viper.GetViper())
	RootCmd.PersistentFlags().String("config", "", fmt.Sprintf("config file (default is $PWD/%s)", configFileName))

	if err := viper.BindPFlag("config", RootCmd.PersistentFlags().Lookup("config")); err != nil {
		log.Fatal().Err(err).Msg("error binding config flag")
	}
}

func initConfig() {
	cfgFile := viper.GetString("config")
	cfgFileData, err := config.GetConfigFileData(cfgFile, filepath.Join(".", configFileName))
	if err != nil {
		log.Fatal().Err(err).Msg("error reading config file")
	}

	keysWithNullValue := config.GetKeysWithNullValueFromYAML(cfgFileData, "")
	if len(keysWithNullValue) > 0 {
		RootCmd.PrintErrln("Error: the following configuration keys are missing values:")
		for _, key := range keysWithNullValue {
			RootCmd.PrintErrln("null value at: " + key)
		}
		os.Exit(1)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(strings.TrimSuffix(configFileName, filepath.Ext(configFileName)))
		viper.AddConfigPath(".")
	}
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		fmt.Println("error reading config file:", err)
	}
}
