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

// Package diffutil synthesizes a unified diff from two (path -> content)
// snapshots, for generation experiments that need to turn an LLM's
// free-form file edits into the same patch shape the oracle ships. It
// reuses the same go-git/go-billy stack as
// internal/engine/actions/remediate/pull_request but against an in-memory
// repository instead of a clone, since nothing here needs to touch disk.
package diffutil

import (
	"fmt"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Snapshot is a repo-relative path to file content mapping, the unit
// Synthesize diffs between.
type Snapshot map[string]string

// Synthesize returns a unified diff turning old into new, computed by
// committing both snapshots into a scratch in-memory repository and asking
// go-git for the patch between the two commits. Paths present in old but
// absent from new are recorded as deletions; paths present only in new are
// additions.
func Synthesize(old, new Snapshot) (string, error) {
	storer := memory.NewStorage()
	fs := memfs.New()
	repo, err := git.Init(storer, fs)
	if err != nil {
		return "", fmt.Errorf("diffutil: init scratch repo: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("diffutil: worktree: %w", err)
	}

	oldHash, err := commitSnapshot(repo, wt, fs, old, "oracle")
	if err != nil {
		return "", fmt.Errorf("diffutil: commit old snapshot: %w", err)
	}
	newHash, err := commitSnapshot(repo, wt, fs, new, "candidate")
	if err != nil {
		return "", fmt.Errorf("diffutil: commit new snapshot: %w", err)
	}

	oldCommit, err := repo.CommitObject(oldHash)
	if err != nil {
		return "", fmt.Errorf("diffutil: load old commit: %w", err)
	}
	newCommit, err := repo.CommitObject(newHash)
	if err != nil {
		return "", fmt.Errorf("diffutil: load new commit: %w", err)
	}

	p, err := oldCommit.Patch(newCommit)
	if err != nil {
		return "", fmt.Errorf("diffutil: compute patch: %w", err)
	}
	return p.String(), nil
}

// commitSnapshot overwrites the worktree's filesystem with snapshot's
// content, stages it, and commits. Files from a prior snapshot that aren't
// present in this one are removed first so each commit reflects that
// snapshot exactly.
func commitSnapshot(repo *git.Repository, wt *git.Worktree, fs billy.Filesystem, snap Snapshot, who string) (plumbing.Hash, error) {
	if err := clearWorktree(fs, "."); err != nil {
		return plumbing.Hash{}, err
	}
	for path, content := range snap {
		if err := writeFile(fs, path, content); err != nil {
			return plumbing.Hash{}, err
		}
		if _, err := wt.Add(path); err != nil {
			return plumbing.Hash{}, err
		}
	}
	hash, err := wt.Commit(who, &git.CommitOptions{
		Author:            &object.Signature{Name: who, Email: who + "@bigbuild.local", When: time.Now()},
		AllowEmptyCommits: true,
		All:               true,
	})
	if err != nil {
		return plumbing.Hash{}, err
	}
	return hash, nil
}

func writeFile(fs billy.Filesystem, path, content string) error {
	if dir := parentDir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(content))
	return err
}

func clearWorktree(fs billy.Filesystem, dir string) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		name := dir + "/" + e.Name()
		if e.Name() == ".git" {
			continue
		}
		if e.IsDir() {
			if err := clearWorktree(fs, name); err != nil {
				return err
			}
			_ = fs.Remove(name)
			continue
		}
		if err := fs.Remove(name); err != nil {
			return err
		}
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
