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

package patch

import (
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitAll stages every change under a working tree opened from root and
// commits it with the given message and (name, email) author identity. A
// patch must be committed before the CI job runs, since several build
// tools diff against HEAD. root must already be a git repository; the
// evaluator stages a copy of the instance's project root (its .git
// included) there before handing it to patch.Apply.
func CommitAll(root, message, authorName, authorEmail string) (plumbing string, err error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return "", fmt.Errorf("patch: open repo at %s: %w", root, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("patch: worktree: %w", err)
	}

	if _, err := wt.Add("."); err != nil {
		return "", fmt.Errorf("patch: stage changes: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("patch: status: %w", err)
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("patch: head: %w", err)
		}
		return head.Hash().String(), nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("patch: commit: %w", err)
	}
	return hash.String(), nil
}
