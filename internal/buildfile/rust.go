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

package buildfile

import (
	"fmt"
	"os"
	"sort"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/model"
)

// RustDependency is (name, table): table may carry version, features
// (set-valued), optional, and other ignored keys.
type RustDependency struct {
	DepName  string
	Version  string
	Features []string
	Optional *bool
	// Extra holds any other table keys verbatim, for round-trip fidelity:
	// table values are taken as-is, not reinterpreted.
	Extra map[string]any
}

// Name implements model.Dependency.
func (d RustDependency) Name() string { return d.DepName }

type rustKey struct {
	name     string
	version  string
	features string
	optional string
}

// Key implements model.Dependency's exact-equality rule: name + version +
// features(set) + optional.
func (d RustDependency) Key() any {
	features := append([]string(nil), d.Features...)
	sort.Strings(features)
	optional := ""
	if d.Optional != nil {
		optional = fmt.Sprintf("%v", *d.Optional)
	}
	return rustKey{
		name:     model.CanonicalName(d.DepName),
		version:  d.Version,
		features: fmt.Sprintf("%v", features),
		optional: optional,
	}
}

// RustBuildFile parses/emits the `[dependencies]` table of a Cargo.toml.
type RustBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

// NewRustBuildFile constructs a RustBuildFile rooted at root, covering
// buildFiles (each a Cargo.toml path relative to root).
func NewRustBuildFile(root string, buildFiles []string, probe *RegistryProbe) *RustBuildFile {
	return &RustBuildFile{root: root, buildFiles: buildFiles, probe: probe}
}

// Language implements BuildFile.
func (*RustBuildFile) Language() string { return "toml" }

// ParseDependencies implements BuildFile.
func (b *RustBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		depsTable, _ := doc["dependencies"].(map[string]any)
		deps := make([]model.Dependency, 0, len(depsTable))
		for name, v := range depsTable {
			deps = append(deps, rustDependencyFromValue(name, v))
		}
		result[file] = deps
	}
	return result, nil
}

func rustDependencyFromValue(name string, raw any) RustDependency {
	switch v := raw.(type) {
	case string:
		return RustDependency{DepName: name, Version: v}
	case map[string]any:
		dep := RustDependency{DepName: name, Extra: map[string]any{}}
		for k, val := range v {
			switch k {
			case "version":
				if s, ok := val.(string); ok {
					dep.Version = s
				}
			case "features":
				if list, ok := val.([]any); ok {
					for _, f := range list {
						if s, ok := f.(string); ok {
							dep.Features = append(dep.Features, s)
						}
					}
				}
			case "optional":
				if bv, ok := val.(bool); ok {
					dep.Optional = &bv
				}
			default:
				dep.Extra[k] = val
			}
		}
		return dep
	default:
		return RustDependency{DepName: name}
	}
}

// DumpDependencies implements BuildFile: replaces the entire [dependencies]
// table, sorted by canonical name since Cargo.toml's dependency order is
// not semantically significant.
func (b *RustBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}

		sorted := append([]model.Dependency(nil), list...)
		sort.Slice(sorted, func(i, j int) bool {
			return model.CanonicalName(sorted[i].Name()) < model.CanonicalName(sorted[j].Name())
		})

		depTable := make(map[string]any, len(sorted))
		for _, d := range sorted {
			rd, ok := d.(RustDependency)
			if !ok {
				continue
			}
			depTable[rd.DepName] = rustValueFromDependency(rd)
		}
		doc["dependencies"] = depTable

		out, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("buildfile: rust dumps %s: %w", file, err)
		}
		result[file] = string(out)
	}
	return result, nil
}

func rustValueFromDependency(rd RustDependency) any {
	if len(rd.Features) == 0 && rd.Optional == nil && len(rd.Extra) == 0 {
		return rd.Version
	}
	table := map[string]any{}
	for k, v := range rd.Extra {
		table[k] = v
	}
	if rd.Version != "" {
		table["version"] = rd.Version
	}
	if len(rd.Features) > 0 {
		table["features"] = rd.Features
	}
	if rd.Optional != nil {
		table["optional"] = *rd.Optional
	}
	return table
}

// IsFakeLib implements BuildFile by probing crates.io.
func (b *RustBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	url := fmt.Sprintf("https://crates.io/api/v1/crates/%s/versions", dep.Name())
	return b.probe.IsFake(url), nil
}

// Example implements BuildFile.
func (*RustBuildFile) Example() Example {
	return Example{
		File: "Cargo.toml",
		Content: `[package]
name = "rust_example"
version = "0.1.0"
edition = "2021"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
serde_json = "1.0"
`,
	}
}
