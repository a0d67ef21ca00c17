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

// Package evaluate is the per-instance evaluator. Workspace is its scoped
// on-disk resource: acquired at evaluator entry, released at every exit
// path, with the cache policy consulted only in the release path.
package evaluate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/justachillguy/bigbuild/internal/model"
)

// Workspace is the per-instance directory:
// <result_dir>/<language>/<instance_id>/{run.log, result.json,
// exec-output.log, oracle/, model/}.
type Workspace struct {
	Dir       string
	OracleDir string
	ModelDir  string
}

// Open creates (if absent) the workspace directory for instanceID under
// root (<result_dir>/<language>). It does not touch oracle/ or model/;
// those are created by StageOracle/StageModel.
func Open(root, instanceID string) (*Workspace, error) {
	dir := filepath.Join(root, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evaluate: create workspace %s: %w", dir, err)
	}
	return &Workspace{
		Dir:       dir,
		OracleDir: filepath.Join(dir, "oracle"),
		ModelDir:  filepath.Join(dir, "model"),
	}, nil
}

// ResultPath is the path result.json is read from / written to.
func (w *Workspace) ResultPath() string {
	return filepath.Join(w.Dir, "result.json")
}

// LogPath names <workspace>/evaluate.log. Nothing in this module writes to
// it: the per-instance logger (internal/logger.OpenInstanceLogger) writes
// run.log in the same directory instead.
func (w *Workspace) LogPath() string {
	return filepath.Join(w.Dir, "evaluate.log")
}

// ExecOutputPath is where the sandboxed CI run's demuxed stdout/stderr is
// captured.
func (w *Workspace) ExecOutputPath() string {
	return filepath.Join(w.Dir, "exec-output.log")
}

// StageOracle replaces OracleDir with a fresh copy of projectRoot.
func (w *Workspace) StageOracle(projectRoot string) error {
	if err := os.RemoveAll(w.OracleDir); err != nil {
		return fmt.Errorf("evaluate: clear oracle dir: %w", err)
	}
	return copyTree(projectRoot, w.OracleDir)
}

// StageModel replaces ModelDir with a fresh copy of projectRoot.
func (w *Workspace) StageModel(projectRoot string) error {
	if err := os.RemoveAll(w.ModelDir); err != nil {
		return fmt.Errorf("evaluate: clear model dir: %w", err)
	}
	return copyTree(projectRoot, w.ModelDir)
}

// Release applies the cache policy. It is idempotent and safe to call on
// every exit path, including after a mid-stage failure.
func (w *Workspace) Release(level model.CacheLevel) error {
	switch level {
	case model.CacheAll:
		return nil
	case model.CacheLog:
		if err := os.RemoveAll(w.OracleDir); err != nil {
			return err
		}
		return os.RemoveAll(w.ModelDir)
	case model.CacheNone:
		return os.RemoveAll(w.Dir)
	default:
		return fmt.Errorf("evaluate: unknown cache level %q", level)
	}
}

// copyTree recursively copies src into dst, creating dst if needed and
// preserving symlinks verbatim. No third-party library in the pack does a
// symlink-preserving recursive directory copy; this is plain os/filepath,
// the same posture minder's own file-staging code in
// internal/engine/ingester/git takes (see DESIGN.md).
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("evaluate: readlink %s: %w", path, err)
			}
			return os.Symlink(link, target)
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		default:
			return copyFile(path, target, d)
		}
	})
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("evaluate: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("evaluate: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return fmt.Errorf("evaluate: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}
