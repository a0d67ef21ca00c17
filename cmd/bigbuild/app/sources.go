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

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/justachillguy/bigbuild/internal/model"
)

// filePatchSource resolves the candidate patch for an instance from
// <dir>/<language>/<instance_id>/patch.diff. A missing file is not an
// error: it yields an empty patch, which downstream the Evaluator treats
// as a staged-but-unpatched model tree.
type filePatchSource struct {
	dir string
}

func (s filePatchSource) CandidatePatch(inst model.RepoInstance) (string, error) {
	if s.dir == "" {
		return "", nil
	}
	path := filepath.Join(s.dir, string(inst.Language), inst.InstanceID, "patch.diff")
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("app: reading candidate patch %s: %w", path, err)
	}
	return string(data), nil
}

// dirProjectRootSource resolves an instance's checkout to <dir>/<instance_id>,
// the same layout dibench's own fixture repos use. How that checkout gets
// there (cloning, cache warmup) is out of scope here; this just names the
// path.
type dirProjectRootSource struct {
	dir string
}

func (s dirProjectRootSource) ProjectRoot(inst model.RepoInstance) (string, error) {
	root := filepath.Join(s.dir, inst.InstanceID)
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("app: resolving project root for %s: %w", inst.InstanceID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("app: project root %s is not a directory", root)
	}
	return root, nil
}
