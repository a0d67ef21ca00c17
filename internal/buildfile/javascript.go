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
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/model"
)

// JavaScriptDependency is (name, version range string), the value of one
// entry in package.json's "dependencies" object.
type JavaScriptDependency struct {
	DepName string
	Version string
}

// Name implements model.Dependency.
func (d JavaScriptDependency) Name() string { return d.DepName }

// Key implements the exact-equality rule: name + version range string.
func (d JavaScriptDependency) Key() any {
	return [2]string{model.CanonicalName(d.DepName), d.Version}
}

// JavaScriptBuildFile parses/emits the "dependencies" object of one or more
// package.json files, covering both TypeScript and JavaScript instances,
// since they share a manifest format.
type JavaScriptBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

// NewJavaScriptBuildFile constructs a JavaScriptBuildFile.
func NewJavaScriptBuildFile(root string, buildFiles []string, probe *RegistryProbe) *JavaScriptBuildFile {
	return &JavaScriptBuildFile{root: root, buildFiles: buildFiles, probe: probe}
}

// Language implements BuildFile.
func (*JavaScriptBuildFile) Language() string { return "json" }

// ParseDependencies implements BuildFile.
func (b *JavaScriptBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var deps []model.Dependency
		if depsRaw, ok := doc["dependencies"]; ok {
			names, err := orderedObjectKeys(depsRaw)
			if err != nil {
				return nil, &apperrors.ParseError{File: file, Cause: err}
			}
			var table map[string]string
			if err := json.Unmarshal(depsRaw, &table); err != nil {
				return nil, &apperrors.ParseError{File: file, Cause: err}
			}
			for _, name := range names {
				deps = append(deps, JavaScriptDependency{DepName: name, Version: table[name]})
			}
		}
		result[file] = deps
	}
	return result, nil
}

// orderedObjectKeys walks a JSON object's raw bytes with a streaming decoder
// to recover its original key order: dependency order must be preserved on
// dump, and Go maps don't preserve insertion order, so the dumper needs the
// source order recorded up front.
func orderedObjectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim.String() != "{" {
		return nil, fmt.Errorf("buildfile: javascript dependencies is not an object")
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("buildfile: javascript dependencies key is not a string")
		}
		keys = append(keys, key)
		// skip the value
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// DumpDependencies implements BuildFile: rewrites only the "dependencies"
// object, preserving every other top-level key's raw bytes, and ordering
// entries by the original manifest's key order for deps that still exist,
// then newly-added deps sorted by canonical name.
func (b *JavaScriptBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}

		var origOrder []string
		if depsRaw, ok := doc["dependencies"]; ok {
			origOrder, _ = orderedObjectKeys(depsRaw)
		}

		byName := make(map[string]JavaScriptDependency, len(list))
		for _, d := range list {
			jd, ok := d.(JavaScriptDependency)
			if !ok {
				continue
			}
			byName[jd.DepName] = jd
		}

		ordered := make([]string, 0, len(byName))
		seen := make(map[string]bool, len(byName))
		for _, name := range origOrder {
			if jd, ok := byName[name]; ok {
				ordered = append(ordered, jd.DepName)
				seen[name] = true
			}
		}
		var fresh []string
		for name := range byName {
			if !seen[name] {
				fresh = append(fresh, name)
			}
		}
		sort.Slice(fresh, func(i, j int) bool {
			return model.CanonicalName(fresh[i]) < model.CanonicalName(fresh[j])
		})
		ordered = append(ordered, fresh...)

		depsJSON, err := marshalOrderedStringMap(ordered, byName)
		if err != nil {
			return nil, fmt.Errorf("buildfile: javascript dumps %s: %w", file, err)
		}
		content, err := spliceTopLevelKey(raw, "dependencies", depsJSON)
		if err != nil {
			return nil, fmt.Errorf("buildfile: javascript dumps %s: %w", file, err)
		}
		result[file] = content
	}
	return result, nil
}

func marshalOrderedStringMap(order []string, byName map[string]JavaScriptDependency) (string, error) {
	var b strings.Builder
	b.WriteString("{")
	for i, name := range order {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n    ")
		key, err := json.Marshal(name)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(byName[name].Version)
		if err != nil {
			return "", err
		}
		b.Write(key)
		b.WriteString(": ")
		b.Write(val)
	}
	if len(order) > 0 {
		b.WriteString("\n  ")
	}
	b.WriteString("}")
	return b.String(), nil
}

// spliceTopLevelKey replaces (or appends) one top-level key's value in a
// JSON object's source bytes, without touching sibling keys' formatting.
func spliceTopLevelKey(raw []byte, key, newValueJSON string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if delim, ok := tok.(json.Delim); !ok || delim.String() != "{" {
		return "", fmt.Errorf("buildfile: manifest root is not an object")
	}

	type entry struct {
		key      string
		value    string
		isTarget bool
	}
	var entries []entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", err
		}
		k, _ := keyTok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return "", err
		}
		if k == key {
			entries = append(entries, entry{key: k, value: newValueJSON, isTarget: true})
		} else {
			entries = append(entries, entry{key: k, value: string(skip)})
		}
	}
	found := false
	for _, e := range entries {
		if e.isTarget {
			found = true
		}
	}
	if !found {
		entries = append(entries, entry{key: key, value: newValueJSON, isTarget: true})
	}

	var b strings.Builder
	b.WriteString("{\n")
	for i, e := range entries {
		keyJSON, err := json.Marshal(e.key)
		if err != nil {
			return "", err
		}
		b.WriteString("  ")
		b.Write(keyJSON)
		b.WriteString(": ")
		b.WriteString(e.value)
		if i != len(entries)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// IsFakeLib implements BuildFile by probing the npm registry.
func (b *JavaScriptBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	url := fmt.Sprintf("https://registry.npmjs.org/%s", dep.Name())
	return b.probe.IsFake(url), nil
}

// Example implements BuildFile.
func (*JavaScriptBuildFile) Example() Example {
	return Example{
		File: "package.json",
		Content: `{
  "name": "javascript_example",
  "version": "1.0.0",
  "dependencies": {
    "lodash": "^4.17.21",
    "express": "^4.18.2"
  }
}
`,
	}
}
