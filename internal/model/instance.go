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

// Package model holds the core data objects of the evaluation harness: the
// dataset record (RepoInstance), the dependency value objects, and the
// per-instance evaluation result.
package model

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// Language enumerates the ecosystems the harness understands.
type Language string

// Supported languages.
const (
	LanguagePython     Language = "python"
	LanguageRust       Language = "rust"
	LanguageCSharp     Language = "csharp"
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
)

// Normalize lower-cases the language the way dibench's dispatch does
// ("self.instance.language.lower()").
func (l Language) Normalize() Language {
	return Language(strings.ToLower(string(l)))
}

// EnvSpec carries the environment the CI job is expected to run under.
type EnvSpec struct {
	SDK string `json:"SDK"`
	OS  string `json:"OS"`
}

// RepoInstance is one repo/patch pair drawn from the benchmark dataset.
// Instances are constructed once at dataset-load time and never mutated
// afterwards; every evaluator treats it as read-only.
type RepoInstance struct {
	InstanceID string                 `json:"instance_id"`
	Language   Language               `json:"language"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
	ActCommand string                 `json:"act_command"`
	CIFile     string                 `json:"ci_file"`
	Patch      string                 `json:"patch"`
	BuildFiles []string `json:"build_files"`
	EnvSpecs   EnvSpec  `json:"env_specs"`
}

// Validate checks the invariants a loaded instance must satisfy.
func (r *RepoInstance) Validate() error {
	if r.InstanceID == "" {
		return fmt.Errorf("model: instance missing instance_id")
	}
	if len(r.BuildFiles) == 0 {
		return fmt.Errorf("model: instance %s has no build_files", r.InstanceID)
	}
	if r.ActCommand == "" {
		return fmt.Errorf("model: instance %s has no act_command", r.InstanceID)
	}
	return nil
}

// LoadDataset reads a JSON-lines dataset file, one RepoInstance per line,
// the way dibench/eval.py's `main` does before constructing evaluators.
// Blank lines are skipped; any malformed line aborts the load, since a
// dataset is expected to be well-formed by construction.
func LoadDataset(path string) ([]RepoInstance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: opening dataset %s: %w", path, err)
	}
	defer f.Close()

	var instances []RepoInstance
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var inst RepoInstance
		if err := json.Unmarshal([]byte(line), &inst); err != nil {
			return nil, fmt.Errorf("model: dataset %s line %d: %w", path, lineNo, err)
		}
		inst.Language = inst.Language.Normalize()
		if err := inst.Validate(); err != nil {
			return nil, fmt.Errorf("model: dataset %s line %d: %w", path, lineNo, err)
		}
		instances = append(instances, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("model: reading dataset %s: %w", path, err)
	}
	return instances, nil
}

// SliceRange applies an optional [start, end) window over a loaded dataset,
// mirroring dibench/eval.py's `id_range` flag.
func SliceRange(instances []RepoInstance, start, end int) ([]RepoInstance, error) {
	if start == 0 && end == 0 {
		return instances, nil
	}
	if start < 0 || end > len(instances) || start > end {
		return nil, fmt.Errorf("model: id-range [%d:%d) out of bounds for %d instances", start, end, len(instances))
	}
	return instances[start:end], nil
}
