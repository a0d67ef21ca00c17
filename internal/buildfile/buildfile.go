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

// Package buildfile implements one parser per ecosystem, dispatched on a
// capability interface rather than a free function that switches on a
// language string. Ecosystem context (project root, build files, a probe
// client) is carried in the parser's construction. The one exception is
// IsFakeLib's FakeLibContext: the C# parser resolves a project reference
// against the project root and build file passed in that call-time
// argument, not against its constructor's root.
package buildfile

import (
	"fmt"

	"github.com/justachillguy/bigbuild/internal/model"
)

// Example is a canonical manifest snippet, used by prompt construction in
// the (out-of-scope) generation experiments; the core only needs to expose
// it.
type Example struct {
	File    string
	Content string
}

// BuildFile is the capability interface every ecosystem-specific parser
// satisfies.
type BuildFile interface {
	// Language names the underlying file syntax ("toml", "xml", "json",
	// "txt", "cfg", "python", ...), mirroring the source's per-class
	// `language` property.
	Language() string

	// ParseDependencies reads every build file this parser was
	// constructed with. The set of returned keys always equals the
	// constructor's build-files list exactly; a missing dependency
	// section parses as an empty slice, never an error. It fails only on
	// structurally invalid syntax, as an *apperrors.ParseError.
	ParseDependencies() (map[string][]model.Dependency, error)

	// DumpDependencies re-emits manifests with the given dependency set
	// substituted into the dependency section, preserving unrelated
	// content byte-for-byte where the format permits, and sorting by
	// canonical name where order is not semantically significant.
	DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error)

	// IsFakeLib probes the ecosystem's registry (or, for C# project
	// references, the filesystem) and reports whether the dependency
	// does not exist. ctx carries ecosystem-specific parameters the
	// constructor didn't already capture (today, only C# uses it, for
	// the build file a given project reference was declared in).
	IsFakeLib(dep model.Dependency, ctx FakeLibContext) (bool, error)

	// Example returns a canonical manifest snippet for this ecosystem.
	Example() Example
}

// FakeLibContext carries the per-call context IsFakeLib needs for C#
// project references. Other ecosystems ignore it.
type FakeLibContext struct {
	// ProjectRoot is the staged tree root the build file lives under.
	ProjectRoot string
	// BuildFile is the repo-relative path of the build file the
	// dependency was declared in.
	BuildFile string
}

// New dispatches to the ecosystem-specific parser for language, the Go
// analogue of dibench.utils.buildfile.make_buildfile. root is the staged
// tree to read/write under; buildFiles is instance.BuildFiles verbatim;
// probe is the shared registry HTTP client (nil selects the package
// default).
func New(language model.Language, root string, buildFiles []string, probe *RegistryProbe) (BuildFile, error) {
	if probe == nil {
		probe = DefaultRegistryProbe()
	}
	switch language.Normalize() {
	case model.LanguagePython:
		return newPythonBuildFile(root, buildFiles, probe)
	case model.LanguageRust:
		return NewRustBuildFile(root, buildFiles, probe), nil
	case model.LanguageCSharp:
		return NewCSharpBuildFile(root, buildFiles, probe), nil
	case model.LanguageTypeScript, model.LanguageJavaScript:
		return NewJavaScriptBuildFile(root, buildFiles, probe), nil
	case model.LanguageJava:
		return NewJavaBuildFile(root, buildFiles, probe), nil
	default:
		return nil, fmt.Errorf("buildfile: unsupported language %q", language)
	}
}
