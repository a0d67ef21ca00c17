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

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GetConfigFileData returns the data from the given configuration file, or
// nil if neither cfgFile nor defaultCfgPath exist (the CLI then runs on
// struct defaults and env vars alone).
func GetConfigFileData(cfgFile, defaultCfgPath string) (interface{}, error) {
	var cfgFilePath string
	var err error
	if cfgFile != "" {
		cfgFilePath, err = filepath.Abs(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfgFilePath, err = filepath.Abs(defaultCfgPath)
		if err != nil {
			return nil, err
		}
	}

	cleanCfgFilePath := filepath.Clean(cfgFilePath)

	if info, err := os.Stat(cleanCfgFilePath); err == nil && info.IsDir() || err != nil && os.IsNotExist(err) {
		return nil, nil
	}

	cfgFileBytes, err := os.ReadFile(cleanCfgFilePath)
	if err != nil {
		return nil, err
	}

	var cfgFileData interface{}
	if err := yaml.Unmarshal(cfgFileBytes, &cfgFileData); err != nil {
		return nil, err
	}
	return cfgFileData, nil
}

// GetKeysWithNullValueFromYAML returns a list of paths to null values in the
// given configuration data, used to warn about a config file that sets a
// key to `null` (which viper silently treats as "unset" rather than the
// zero value the author likely intended).
func GetKeysWithNullValueFromYAML(data interface{}, currentPath string) []string {
	var keysWithNullValue []string
	switch v := data.(type) {
	case map[interface{}]interface{}:
		for key, value := range v {
			var newPath string
			if key == nil {
				newPath = fmt.Sprintf("%s.null", currentPath)
			} else {
				newPath = fmt.Sprintf("%s.%v", currentPath, key)
			}
			if value == nil {
				keysWithNullValue = append(keysWithNullValue, newPath)
			} else {
				keysWithNullValue = append(keysWithNullValue, GetKeysWithNullValueFromYAML(value, newPath)...)
			}
		}

	case map[string]interface{}:
		for key, value := range v {
			newPath := fmt.Sprintf("%s.%v", currentPath, key)
			if value == nil {
				keysWithNullValue = append(keysWithNullValue, newPath)
			} else {
				keysWithNullValue = append(keysWithNullValue, GetKeysWithNullValueFromYAML(value, newPath)...)
			}
		}

	case []interface{}:
		for i, item := range v {
			newPath := fmt.Sprintf("%s[%d]", currentPath, i)
			if item == nil {
				keysWithNullValue = append(keysWithNullValue, newPath)
			} else {
				keysWithNullValue = append(keysWithNullValue, GetKeysWithNullValueFromYAML(item, newPath)...)
			}
		}
	}

	return keysWithNullValue
}
