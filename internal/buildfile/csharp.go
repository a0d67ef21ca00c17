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
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/model"
)

// CSharpDependency is (name, version, external): external is true for a
// <PackageReference>, false for a <ProjectReference>.
type CSharpDependency struct {
	DepName  string
	Version  string
	External bool
}

// Name implements model.Dependency.
func (d CSharpDependency) Name() string { return d.DepName }

// Key implements the exact-equality rule: name + version + external.
func (d CSharpDependency) Key() any {
	return [3]string{model.CanonicalName(d.DepName), d.Version, fmt.Sprintf("%v", d.External)}
}

// CSharpBuildFile parses/emits PackageReference and ProjectReference items
// from one or more .csproj files.
type CSharpBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

// NewCSharpBuildFile constructs a CSharpBuildFile.
func NewCSharpBuildFile(root string, buildFiles []string, probe *RegistryProbe) *CSharpBuildFile {
	return &CSharpBuildFile{root: root, buildFiles: buildFiles, probe: probe}
}

// Language implements BuildFile.
func (*CSharpBuildFile) Language() string { return "xml" }

// minimal XML model: namespace-aware enough to find ItemGroup/PackageReference/ProjectReference
// regardless of whether the project carries a default xmlns.

type xmlAttr struct {
	Name  xml.Name
	Value string
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xmlAttr `xml:"-"`
	RawAttrs []xml.Attr
	Children []*xmlNode
}

func (n *xmlNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.XMLName = start.Name
	n.RawAttrs = start.Attr
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &xmlNode{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case xml.EndElement:
			return nil
		}
	}
}

func (n *xmlNode) attr(local string) (string, bool) {
	for _, a := range n.RawAttrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) findAll(local string) []*xmlNode {
	var out []*xmlNode
	var walk func(*xmlNode)
	walk = func(cur *xmlNode) {
		for _, c := range cur.Children {
			if c.XMLName.Local == local {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// ParseDependencies implements BuildFile.
func (b *CSharpBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		root := &xmlNode{}
		dec := xml.NewDecoder(strings.NewReader(string(raw)))
		tok, err := dec.Token()
		for err == nil {
			if start, ok := tok.(xml.StartElement); ok {
				if err := root.UnmarshalXML(dec, start); err != nil {
					return nil, &apperrors.ParseError{File: file, Cause: err}
				}
				break
			}
			tok, err = dec.Token()
		}
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}

		var deps []model.Dependency
		for _, itemGroup := range root.findAll("ItemGroup") {
			for _, pkg := range itemGroup.findAll("PackageReference") {
				name, ok := pkg.attr("Include")
				if !ok {
					name, ok = pkg.attr("Update")
				}
				if !ok {
					continue
				}
				version, _ := pkg.attr("Version")
				deps = append(deps, CSharpDependency{DepName: name, Version: version, External: true})
			}
			for _, proj := range itemGroup.findAll("ProjectReference") {
				name, ok := proj.attr("Include")
				if !ok {
					name, ok = proj.attr("Update")
				}
				if !ok {
					continue
				}
				deps = append(deps, CSharpDependency{DepName: name, External: false})
			}
		}
		result[file] = deps
	}
	return result, nil
}

// DumpDependencies implements BuildFile: removes every ItemGroup that held
// package/project references and appends two fresh groups (external first,
// internal second), each sorted by name.
func (b *CSharpBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		path := joinRoot(b.root, file)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}

		external := make([]CSharpDependency, 0)
		internal := make([]CSharpDependency, 0)
		for _, d := range list {
			cd, ok := d.(CSharpDependency)
			if !ok {
				continue
			}
			if cd.External {
				external = append(external, cd)
			} else {
				internal = append(internal, cd)
			}
		}
		sort.Slice(external, func(i, j int) bool { return external[i].DepName < external[j].DepName })
		sort.Slice(internal, func(i, j int) bool { return internal[i].DepName < internal[j].DepName })

		content := string(raw)
		content = stripReferenceItemGroups(content)
		content = appendReferenceItemGroups(content, external, internal)
		result[file] = content
	}
	return result, nil
}

// stripReferenceItemGroups removes ItemGroup elements that contain a
// PackageReference or ProjectReference, leaving every other top-level
// section byte-for-byte.
func stripReferenceItemGroups(content string) string {
	for {
		idx := findItemGroupWithReference(content)
		if idx == nil {
			return content
		}
		content = content[:idx[0]] + content[idx[1]:]
	}
}

// findItemGroupWithReference returns the [start,end) byte span of the first
// <ItemGroup>...</ItemGroup> block containing a reference element, or nil.
func findItemGroupWithReference(content string) []int {
	const open = "<ItemGroup"
	start := 0
	for {
		i := strings.Index(content[start:], open)
		if i == -1 {
			return nil
		}
		blockStart := start + i
		closeTag := "</ItemGroup>"
		j := strings.Index(content[blockStart:], closeTag)
		if j == -1 {
			return nil
		}
		blockEnd := blockStart + j + len(closeTag)
		block := content[blockStart:blockEnd]
		if strings.Contains(block, "PackageReference") || strings.Contains(block, "ProjectReference") {
			return []int{blockStart, blockEnd}
		}
		start = blockEnd
	}
}

func appendReferenceItemGroups(content string, external, internal []CSharpDependency) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteString("\n")

	if len(external) > 0 {
		b.WriteString("\n<ItemGroup>\n")
		for _, d := range external {
			if d.Version != "" {
				fmt.Fprintf(&b, "    <PackageReference Include=%q Version=%q />\n", d.DepName, d.Version)
			} else {
				fmt.Fprintf(&b, "    <PackageReference Include=%q />\n", d.DepName)
			}
		}
		b.WriteString("</ItemGroup>\n")
	}
	if len(internal) > 0 {
		b.WriteString("\n<ItemGroup>\n")
		for _, d := range internal {
			fmt.Fprintf(&b, "    <ProjectReference Include=%q />\n", d.DepName)
		}
		b.WriteString("</ItemGroup>\n")
	}
	return b.String()
}

// IsFakeLib implements BuildFile: package references are probed against
// NuGet; project references are resolved as on-disk paths relative to the
// build file's directory.
func (b *CSharpBuildFile) IsFakeLib(dep model.Dependency, ctx FakeLibContext) (bool, error) {
	cd, ok := dep.(CSharpDependency)
	if !ok {
		return false, fmt.Errorf("buildfile: csharp IsFakeLib given non-csharp dependency")
	}
	if cd.External {
		url := fmt.Sprintf("https://api.nuget.org/v3-flatcontainer/%s/index.json", strings.ToLower(cd.DepName))
		return b.probe.IsFake(url), nil
	}
	if ctx.ProjectRoot == "" || ctx.BuildFile == "" {
		return false, fmt.Errorf("buildfile: csharp IsFakeLib requires ProjectRoot and BuildFile for a project reference")
	}
	buildFilePath := filepath.Join(ctx.ProjectRoot, ctx.BuildFile)
	depended := strings.ReplaceAll(cd.DepName, "\\", "/")
	resolved := filepath.Join(filepath.Dir(buildFilePath), depended)
	if _, err := os.Stat(resolved); err != nil {
		return true, nil
	}
	return false, nil
}

// Example implements BuildFile.
func (*CSharpBuildFile) Example() Example {
	return Example{
		File: "src/src.csproj",
		Content: `<?xml version="1.0" encoding="utf-8"?>
<Project Sdk="Microsoft.NET.Sdk">
    <PropertyGroup>
        <OutputType>Exe</OutputType>
        <TargetFramework>netcoreapp2.1</TargetFramework>
    </PropertyGroup>

    <ItemGroup>
        <PackageReference Include="Newtonsoft.Json" Version="12.0.3" />
    </ItemGroup>

    <ItemGroup>
        <ProjectReference Include="lib/lib.csproj" />
    </ItemGroup>
</Project>
`,
	}
}
