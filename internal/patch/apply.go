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

// Package patch applies a unified diff onto a staged working tree. There
// is no Go library in this pack for fuzzy patch application (go-git's
// storer model has no "patch -p1 --fuzz" analogue), so this shells out to
// the same two CLI tools dibench's own applier falls back through: git
// apply, then GNU patch.
package patch

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/justachillguy/bigbuild/internal/apperrors"
)

// Apply writes diff to root using a strict `git apply --ignore-whitespace`
// attempt first, falling back to a fuzzy `patch --fuzz=5 -p1` application if
// the strict attempt fails. Returns the stderr of whichever attempt ran
// last as *apperrors.PatchError if both fail.
func Apply(ctx context.Context, root string, diff string) error {
	if strings.TrimSpace(diff) == "" {
		return nil
	}

	if err := gitApply(ctx, root, diff); err == nil {
		return nil
	}

	if err := patchApply(ctx, root, diff); err != nil {
		return err
	}
	return nil
}

func gitApply(ctx context.Context, root, diff string) error {
	cmd := exec.CommandContext(ctx, "git", "apply", "--ignore-whitespace", "--whitespace=nowarn", "-")
	cmd.Dir = root
	cmd.Stdin = strings.NewReader(diff)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &apperrors.PatchError{Stderr: stderr.String()}
	}
	return nil
}

func patchApply(ctx context.Context, root, diff string) error {
	cmd := exec.CommandContext(ctx, "patch", "--fuzz=5", "-p1", "--batch", "--forward")
	cmd.Dir = root
	cmd.Stdin = strings.NewReader(diff)
	var stderr, stdout bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		return &apperrors.PatchError{Stderr: msg}
	}
	return nil
}

// ErrEmptyDiff is returned by callers that require a non-trivial patch;
// Apply itself treats an empty diff as a no-op success.
var ErrEmptyDiff = errors.New("patch: diff is empty")
