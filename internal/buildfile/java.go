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
	"regexp"
	"sort"
	"strings"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/model"
)

// JavaDependency is (groupId, artifactId, version), keyed by
// groupId:artifactId. Java support is explicitly best-effort here; this
// parser covers the common pom.xml <dependency> shape and nothing of
// Gradle's DSL beyond a single regex line form.
type JavaDependency struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// Name implements model.Dependency, returning the "groupId:artifactId"
// coordinate dibench treats as the Java dependency's display name.
func (d JavaDependency) Name() string { return d.GroupID + ":" + d.ArtifactID }

// Key implements the exact-equality rule: groupId:artifactId + version.
func (d JavaDependency) Key() any {
	return [2]string{model.CanonicalName(d.Name()), d.Version}
}

// JavaBuildFile is a best-effort, stub-grade parser for pom.xml and
// build.gradle(.kts) — Java is the one ecosystem here allowed to stay a
// stub rather than a full parser.
type JavaBuildFile struct {
	root       string
	buildFiles []string
	probe      *RegistryProbe
}

// NewJavaBuildFile constructs a JavaBuildFile.
func NewJavaBuildFile(root string, buildFiles []string, probe *RegistryProbe) *JavaBuildFile {
	return &JavaBuildFile{root: root, buildFiles: buildFiles, probe: probe}
}

// Language implements BuildFile.
func (b *JavaBuildFile) Language() string {
	if len(b.buildFiles) > 0 && strings.HasSuffix(b.buildFiles[0], ".xml") {
		return "xml"
	}
	return "gradle"
}

var mavenDependencyRE = regexp.MustCompile(`(?s)<dependency>\s*<groupId>(.*?)</groupId>\s*<artifactId>(.*?)</artifactId>(?:\s*<version>(.*?)</version>)?.*?</dependency>`)
var gradleDependencyRE = regexp.MustCompile(`(?m)^\s*(?:implementation|api|compile|testImplementation)\s+['"]([^:'"]+):([^:'"]+):([^'"]+)['"]`)

// ParseDependencies implements BuildFile. pom.xml is read with a regex over
// <dependency> blocks (a full Maven POM inheritance/property-resolution
// model is out of scope); build.gradle(.kts) is read line-by-line for the
// common `implementation "group:artifact:version"` form.
func (b *JavaBuildFile) ParseDependencies() (map[string][]model.Dependency, error) {
	result := make(map[string][]model.Dependency, len(b.buildFiles))
	for _, file := range b.buildFiles {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		content := string(raw)
		var deps []model.Dependency
		if strings.HasSuffix(file, ".xml") {
			for _, m := range mavenDependencyRE.FindAllStringSubmatch(content, -1) {
				deps = append(deps, JavaDependency{
					GroupID:    strings.TrimSpace(m[1]),
					ArtifactID: strings.TrimSpace(m[2]),
					Version:    strings.TrimSpace(m[3]),
				})
			}
		} else {
			for _, m := range gradleDependencyRE.FindAllStringSubmatch(content, -1) {
				deps = append(deps, JavaDependency{GroupID: m[1], ArtifactID: m[2], Version: m[3]})
			}
		}
		result[file] = deps
	}
	return result, nil
}

// DumpDependencies implements BuildFile by appending a dependencies block;
// a faithful structural rewrite of an arbitrary pom.xml/build.gradle is out
// of scope for this stub-grade parser.
func (b *JavaBuildFile) DumpDependencies(deps map[string][]model.Dependency) (map[string]string, error) {
	result := make(map[string]string, len(deps))
	for file, list := range deps {
		raw, err := os.ReadFile(joinRoot(b.root, file))
		if err != nil {
			return nil, &apperrors.ParseError{File: file, Cause: err}
		}
		sorted := append([]model.Dependency(nil), list...)
		sort.Slice(sorted, func(i, j int) bool {
			return model.CanonicalName(sorted[i].Name()) < model.CanonicalName(sorted[j].Name())
		})

		var block strings.Builder
		if strings.HasSuffix(file, ".xml") {
			block.WriteString("\n<dependencies>\n")
			for _, d := range sorted {
				jd, ok := d.(JavaDependency)
				if !ok {
					continue
				}
				fmt.Fprintf(&block, "  <dependency>\n    <groupId>%s</groupId>\n    <artifactId>%s</artifactId>\n    <version>%s</version>\n  </dependency>\n", jd.GroupID, jd.ArtifactID, jd.Version)
			}
			block.WriteString("</dependencies>\n")
		} else {
			block.WriteString("\ndependencies {\n")
			for _, d := range sorted {
				jd, ok := d.(JavaDependency)
				if !ok {
					continue
				}
				fmt.Fprintf(&block, "    implementation \"%s:%s:%s\"\n", jd.GroupID, jd.ArtifactID, jd.Version)
			}
			block.WriteString("}\n")
		}
		result[file] = string(raw) + block.String()
	}
	return result, nil
}

// IsFakeLib implements BuildFile by probing Maven Central, the natural
// registry analogue for groupId:artifactId coordinates.
func (b *JavaBuildFile) IsFakeLib(dep model.Dependency, _ FakeLibContext) (bool, error) {
	jd, ok := dep.(JavaDependency)
	if !ok {
		return false, fmt.Errorf("buildfile: java IsFakeLib given non-java dependency")
	}
	groupPath := strings.ReplaceAll(jd.GroupID, ".", "/")
	url := fmt.Sprintf("https://repo1.maven.org/maven2/%s/%s/maven-metadata.xml", groupPath, jd.ArtifactID)
	return b.probe.IsFake(url), nil
}

// Example implements BuildFile.
func (*JavaBuildFile) Example() Example {
	return Example{
		File: "pom.xml",
		Content: `<project>
  <dependencies>
    <dependency>
      <groupId>com.google.guava</groupId>
      <artifactId>guava</artifactId>
      <version>31.1-jre</version>
    </dependency>
  </dependencies>
</project>
`,
	}
}
