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

package buildfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/buildfile"
)

const pomXML = `<project>
  <dependencies>
    <dependency>
      <groupId>com.google.guava</groupId>
      <artifactId>guava</artifactId>
      <version>31.1-jre</version>
    </dependency>
  </dependencies>
</project>
`

func TestJavaBuildFileParsePomDependencies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte(pomXML), 0o600))

	bf := buildfile.NewJavaBuildFile(dir, []string{"pom.xml"}, nil)
	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	list := deps["pom.xml"]
	require.Len(t, list, 1)
	assert.Equal(t, "com.google.guava:guava", list[0].Name())
}

func TestJavaBuildFileParseGradleDependencies(t *testing.T) {
	dir := t.TempDir()
	content := "dependencies {\n    implementation \"com.google.guava:guava:31.1-jre\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.gradle"), []byte(content), 0o600))

	bf := buildfile.NewJavaBuildFile(dir, []string{"build.gradle"}, nil)
	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	list := deps["build.gradle"]
	require.Len(t, list, 1)
	assert.Equal(t, "com.google.guava:guava", list[0].Name())
}

func TestJavaBuildFileDumpDependenciesAppendsBlock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte(pomXML), 0o600))

	bf := buildfile.NewJavaBuildFile(dir, []string{"pom.xml"}, nil)
	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	deps["pom.xml"] = append(deps["pom.xml"], buildfile.JavaDependency{GroupID: "junit", ArtifactID: "junit", Version: "4.13.2"})
	dumped, err := bf.DumpDependencies(deps)
	require.NoError(t, err)
	assert.Contains(t, dumped["pom.xml"], "junit")
	assert.Contains(t, dumped["pom.xml"], "guava")
}

func TestJavaDependencyKey(t *testing.T) {
	a := buildfile.JavaDependency{GroupID: "com.google.guava", ArtifactID: "guava", Version: "31.1-jre"}
	b := buildfile.JavaDependency{GroupID: "com.google.guava", ArtifactID: "Guava", Version: "31.1-jre"}
	assert.Equal(t, a.Key(), b.Key())
}
