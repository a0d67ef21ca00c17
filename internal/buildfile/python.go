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
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	forest "github.com/alexaandru/go-sitter-forest"
	_ "github.com/alexaandru/go-sitter-forest/python" // registers "python" with forest.GetLanguage
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/model"
)

// PythonDependency wraps one PEP 508 requirement string. Raw carries the
// requirement exactly as written ("requests>=2,<3; extra == 'foo'");
// DepName is the distribution name pulled out of its head.
type PythonDependency struct {
	DepName string
	Raw     string
}

// Name implements model.Dependency.
func (d PythonDependency) Name() string { return d.DepName }

// Key implements the exact-equality rule: the full normalized requirement
// string — unlike Rust/C#/JS, Python dependencies carry no separate
// structured fields worth hashing independently.
func (d PythonDependency) Key() any {
	return model.CanonicalName(d.DepName) + "|" + strings.Join(strings.Fields(d.Raw), " ")
}

var requirementNameRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)`)

// parseRequirement builds a PythonDependency from one PEP 508-ish line,
// extracting just the distribution name and keeping everything else as Raw.
// A full PEP 508 parser is out of scope here; name + exact string round-trip
// is what the evaluator needs.
func parseRequirement(raw string) (PythonDependency, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return PythonDependency{}, false
	}
	m := requirementNameRE.FindStringSubmatch(trimmed)
	if m == nil {
		return PythonDependency{}, false
	}
	return PythonDependency{DepName: m[1], Raw: trimmed}, true
}

func requirementsToDeps(lines []string) []model.Dependency {
	var deps []model.Dependency
	for _, l := range lines {
		if d, ok := parseRequirement(l); ok {
			deps = append(deps, d)
		}
	}
	return deps
}

func sortedRequirementStrings(list []model.Dependency) []string {
	sorted := append([]model.Dependency(nil), list...)
	sort.Slice(sorted, func(i, j int) bool {
		return model.CanonicalName(sorted[i].Name()) < model.CanonicalName(sorted[j].Name())
	})
	out := make([]string, 0, len(sorted))
	for _, d := range sorted {
		if pd, ok := d.(PythonDependency); ok {
			out = append(out, pd.Raw)
		}
	}
	return out
}

// pypiIsFake probes PyPI's JSON API for the package's existence.
func pypiIsFake(probe *RegistryProbe, name string) bool {
	url := fmt.Sprintf("https://pypi.org/pypi/%s/json", name)
	return probe.IsFake(url)
}

// newPythonBuildFile dispatches among the four Python manifest conventions,
// the Go analogue of dibench's make_buildfile Python branch: the single
// build file's name and, for pyproject.toml, its content decide which
// sub-parser handles it.
func newPythonBuildFile(root string, buildFiles []string, probe *RegistryProbe) (BuildFile, error) {
	if len(buildFiles) == 0 {
		return nil, fmt.Errorf("buildfile: python requires at least one build file")
	}
	name := buildFiles[0]
	switch {
	case strings.HasSuffix(name, ".cfg"):
		return &setupCfgBuildFile{root: root, buildFiles: buildFiles, probe: probe}, nil
	case strings.HasSuffix(name, ".py"):
		return &setupPyBuildFile{root: root, buildFiles: buildFiles, probe: probe}, nil
	case strings.HasSuffix(name, ".txt"):
		return &pipBuildFile{root: root, buildFiles: buildFiles, probe: probe}, nil
	case strings.HasSuffix(name, ".toml"):
		raw, err := os.ReadFile(joinRoot(root, name))
		if err != nil {
			return nil, &apperrors.ParseError{File: name, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: name, Cause: err}
		}
		if hasPoetryDependencies(doc) {
			return &poetryBuildFile{root: root, buildFiles: buildFiles, probe: probe}, nil
		}
		return &pep621BuildFile{root: root, buildFiles: buildFiles, probe: probe}, nil
	default:
		return nil, fmt.Errorf("buildfile: unsupported python build file %q", name)
	}
}

func hasPoetryDependencies(doc map[string]any) bool {
	tool, _ := doc["tool"].(map[string]any)
	poetry, _ := tool["poetry"].(map[string]any)
	_, ok := poetry["dependencies"]
	return ok
}

// --- requirements.txt (pip) -------------------------------------------------

type pipBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

func (*pipBuildFile) Language() string { return "txt" }

func (b *pipBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		result[file] = requirementsToDeps(strings.Split(string(raw), "\n"))
	}
	return result, nil
}

func (b *pipBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		result[file] = strings.Join(sortedRequirementStrings(list), "\n") + "\n"
	}
	return result, nil
}

func (b *pipBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	return pypiIsFake(b.probe, dep.Name()), nil
}

func (*pipBuildFile) Example() Example {
	return Example{File: "requirements/base.txt", Content: "requests\nnumpy\n"}
}

// --- setup.cfg ---------------------------------------------------------------

type setupCfgBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

func (*setupCfgBuildFile) Language() string { return "cfg" }

var installRequiresHeaderRE = regexp.MustCompile(`(?m)^install_requires\s*=\s*(.*)$`)

// ParseDependencies reads the `install_requires` key of the `[options]`
// section, a minimal hand-rolled equivalent of Python's configparser
// covering the continuation-line list form dibench's generated setup.cfg
// files actually use; nothing in this pack wires a general-purpose INI
// library that handles configparser's semantics faithfully enough to
// round-trip a production setup.cfg.
func (b *setupCfgBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		lines := extractInstallRequiresBlock(string(raw))
		result[file] = requirementsToDeps(lines)
	}
	return result, nil
}

// extractInstallRequiresBlock finds the install_requires value, which may
// start on the header line itself or run as indented continuation lines
// below it, terminated by the first unindented or blank-then-new-key line.
func extractInstallRequiresBlock(content string) []string {
	lines := strings.Split(content, "\n")
	var out []string
	inBlock := false
	for i, line := range lines {
		if !inBlock {
			m := installRequiresHeaderRE.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			inBlock = true
			if strings.TrimSpace(m[1]) != "" {
				out = append(out, m[1])
			}
			continue
		}
		if i >= len(lines) {
			break
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			out = append(out, line)
			continue
		}
		break
	}
	return out
}

func (b *setupCfgBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		content := string(raw)
		loc := installRequiresHeaderRE.FindStringIndex(content)
		block := extractInstallRequiresBlock(content)
		blockLen := len(strings.Join(block, "\n"))
		_ = blockLen

		replacement := "install_requires =\n"
		for _, r := range sortedRequirementStrings(list) {
			replacement += "    " + r + "\n"
		}
		if loc == nil {
			result[file] = content + "\n[options]\n" + replacement
			continue
		}
		// replace from the header through the end of its continuation block
		headerLineEnd := strings.Index(content[loc[0]:], "\n")
		bodyStart := loc[0]
		if headerLineEnd >= 0 {
			bodyStart = loc[0] + headerLineEnd + 1
		}
		bodyEnd := bodyStart
		rest := strings.Split(content[bodyStart:], "\n")
		for _, l := range rest {
			if l != "" && !strings.HasPrefix(l, " ") && !strings.HasPrefix(l, "\t") {
				break
			}
			bodyEnd += len(l) + 1
		}
		result[file] = content[:loc[0]] + strings.TrimRight(replacement, "\n") + "\n" + content[bodyEnd:]
	}
	return result, nil
}

func (b *setupCfgBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	return pypiIsFake(b.probe, dep.Name()), nil
}

func (*setupCfgBuildFile) Example() Example {
	return Example{
		File: "setup.cfg",
		Content: `[metadata]
name = example
version = 0.1.0

[options]
zip_safe = False
packages = find:
python_requires = >=3.9
setup_requires = setuptools_scm
install_requires =
    numpy
    requests
`,
	}
}

// --- setup.py ------------------------------------------------------------

type setupPyBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

func (*setupPyBuildFile) Language() string { return "python" }

func (b *setupPyBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		lines, err := extractInstallRequiresFromSetupPy(raw)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		result[file] = requirementsToDeps(lines)
	}
	return result, nil
}

// extractInstallRequiresFromSetupPy walks the parsed tree for a
// `setup(install_requires=[...])` keyword argument and reads its string
// literals, falling back to a bracket-aware regex over the argument's
// source text if the list isn't made of plain string literals (mirrors the
// ast.literal_eval-then-regex fallback in the original extractor).
func extractInstallRequiresFromSetupPy(code []byte) ([]string, error) {
	lang := forest.GetLanguage("python")
	if lang == nil {
		return regexInstallRequires(code), nil
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseString(context.Background(), nil, code)
	if err != nil {
		return regexInstallRequires(code), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return regexInstallRequires(code), nil
	}

	valueNode, ok := findInstallRequiresValue(root, code)
	if !ok {
		return regexInstallRequires(code), nil
	}
	if valueNode.Type() == "identifier" {
		name := strings.TrimSpace(valueNode.Content(code))
		if listNode, ok := findVariableListAssignment(root, name, code); ok {
			valueNode = listNode
		}
	}
	if valueNode.Type() != "list" {
		return regexInstallRequires(code), nil
	}

	var lines []string
	for i := 0; i < int(valueNode.NamedChildCount()); i++ {
		child := valueNode.NamedChild(i)
		if child.Type() != "string" {
			continue
		}
		lines = append(lines, stripPyStringQuotes(child.Content(code)))
	}
	if len(lines) == 0 {
		return regexInstallRequires(code[valueNode.StartByte():valueNode.EndByte()]), nil
	}
	return lines, nil
}

// findInstallRequiresValue walks the tree looking for a keyword_argument
// node named install_requires and returns its value node.
func findInstallRequiresValue(n sitter.Node, code []byte) (sitter.Node, bool) {
	if n.Type() == "keyword_argument" {
		nameNode := n.ChildByFieldName("name")
		if !nameNode.IsNull() && strings.TrimSpace(nameNode.Content(code)) == "install_requires" {
			if valueNode := n.ChildByFieldName("value"); !valueNode.IsNull() {
				return valueNode, true
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if v, ok := findInstallRequiresValue(n.NamedChild(i), code); ok {
			return v, true
		}
	}
	return sitter.Node{}, false
}

// findVariableListAssignment resolves a bare name used as
// install_requires's value back to that name's own top-level
// `name = [...]` assignment elsewhere in the module: a single-hop
// name-to-list lookup, not a general data-flow resolution.
func findVariableListAssignment(n sitter.Node, name string, code []byte) (sitter.Node, bool) {
	if n.Type() == "assignment" {
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if !left.IsNull() && !right.IsNull() && left.Type() == "identifier" &&
			strings.TrimSpace(left.Content(code)) == name && right.Type() == "list" {
			return right, true
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if v, ok := findVariableListAssignment(n.NamedChild(i), name, code); ok {
			return v, true
		}
	}
	return sitter.Node{}, false
}

func stripPyStringQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

var pyStringLiteralRE = regexp.MustCompile(`['"]([^'"]*)['"]`)

func regexInstallRequires(code []byte) []string {
	m := pyStringLiteralRE.FindAllStringSubmatch(string(code), -1)
	out := make([]string, 0, len(m))
	for _, g := range m {
		out = append(out, g[1])
	}
	return out
}

func (b *setupPyBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		content := string(raw)
		sorted := sortedRequirementStrings(list)
		listLiteral := "[\n"
		for _, r := range sorted {
			listLiteral += fmt.Sprintf("        %q,\n", r)
		}
		listLiteral += "    ]"

		replaced, ok := replaceInstallRequiresList(content, listLiteral)
		if !ok {
			return nil, fmt.Errorf("buildfile: python setup.py dumps %s: install_requires not found", file)
		}
		result[file] = replaced
	}
	return result, nil
}

// replaceInstallRequiresList substitutes the bracketed install_requires=[...]
// argument's text span with newListLiteral, via a bracket-depth scan rather
// than re-walking the parse tree a second time.
func replaceInstallRequiresList(content, newListLiteral string) (string, bool) {
	idx := strings.Index(content, "install_requires")
	if idx == -1 {
		return "", false
	}
	rest := content[idx:]
	open := strings.Index(rest, "[")
	if open == -1 {
		return "", false
	}
	depth := 0
	end := -1
	for i := open; i < len(rest); i++ {
		switch rest[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return "", false
	}
	return content[:idx+open] + newListLiteral + content[idx+end+1:], true
}

func (b *setupPyBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	return pypiIsFake(b.probe, dep.Name()), nil
}

func (*setupPyBuildFile) Example() Example {
	return Example{
		File: "setup.py",
		Content: `from setuptools import setup, find_packages

setup(
    name="example",
    version="0.1.0",
    install_requires=[
        "numpy",
        "requests",
    ],
    packages=find_packages(),
)
`,
	}
}

// --- pyproject.toml / poetry ------------------------------------------------

type poetryBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

func (*poetryBuildFile) Language() string { return "toml" }

func (b *poetryBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		table := poetryDependenciesTable(doc)
		var deps []model.Dependency
		for name, v := range table {
			if strings.EqualFold(name, "python") {
				continue
			}
			deps = append(deps, PythonDependency{DepName: name, Raw: name + poetryConstraintString(v)})
		}
		result[file] = deps
	}
	return result, nil
}

func poetryDependenciesTable(doc map[string]any) map[string]any {
	tool, _ := doc["tool"].(map[string]any)
	poetry, _ := tool["poetry"].(map[string]any)
	deps, _ := poetry["dependencies"].(map[string]any)
	return deps
}

func poetryConstraintString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if ver, ok := c["version"].(string); ok {
			return ver
		}
	}
	return "*"
}

func (b *poetryBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		tool, _ := doc["tool"].(map[string]any)
		if tool == nil {
			tool = map[string]any{}
		}
		poetry, _ := tool["poetry"].(map[string]any)
		if poetry == nil {
			poetry = map[string]any{}
		}
		table := poetryDependenciesTable(doc)
		if table == nil {
			table = map[string]any{}
		}
		for _, d := range list {
			pd, ok := d.(PythonDependency)
			if !ok {
				continue
			}
			_, version, _ := strings.Cut(pd.Raw, pd.DepName)
			version = strings.TrimSpace(version)
			if version == "" {
				version = "*"
			}
			table[pd.DepName] = version
		}
		poetry["dependencies"] = table
		tool["poetry"] = poetry
		doc["tool"] = tool

		out, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("buildfile: poetry dumps %s: %w", file, err)
		}
		result[file] = string(out)
	}
	return result, nil
}

func (b *poetryBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	return pypiIsFake(b.probe, dep.Name()), nil
}

func (*poetryBuildFile) Example() Example {
	return Example{
		File: "pyproject.toml",
		Content: `[project]
name = "example"
version = "0.1.0"

[tool.poetry.dependencies]
requests = "*"
numpy = "*"
`,
	}
}

// --- pyproject.toml / PEP 621 -----------------------------------------------

type pep621BuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

func (*pep621BuildFile) Language() string { return "toml" }

func (b *pep621BuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		project, _ := doc["project"].(map[string]any)
		raws, _ := project["dependencies"].([]any)
		var lines []string
		for _, r := range raws {
			if s, ok := r.(string); ok {
				lines = append(lines, s)
			}
		}
		result[file] = requirementsToDeps(lines)
	}
	return result, nil
}

func (b *pep621BuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		project, _ := doc["project"].(map[string]any)
		if project == nil {
			project = map[string]any{}
		}
		sorted := sortedRequirementStrings(list)
		arr := make([]any, len(sorted))
		for i, s := range sorted {
			arr[i] = s
		}
		project["dependencies"] = arr
		doc["project"] = project

		out, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("buildfile: pep621 dumps %s: %w", file, err)
		}
		result[file] = string(out)
	}
	return result, nil
}

func (b *pep621BuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	return pypiIsFake(b.probe, dep.Name()), nil
}

func (*pep621BuildFile) Example() Example {
	return Example{
		File: "pyproject.toml",
		Content: `[project]
name = "example"
version = "0.1.0"
description = "example project"
dependencies = [
    "requests",
    "numpy",
]
`,
	}
}
