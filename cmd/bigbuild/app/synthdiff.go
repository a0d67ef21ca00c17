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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/justachillguy/bigbuild/internal/diffutil"
)

var synthDiffCmd = &cobra.Command{
	Use:   "synth-diff",
	Short: "Synthesize a unified diff between two directory trees",
	Long: `synth-diff walks --old and --new, treating each as a snapshot of repo
relative paths to file content, and prints the unified diff between them the
same way the generation side turns an LLM's free-form file edits into the
patch shape the oracle ships.`,
	RunE: runSynthDiff,
}

func init() {
	flags := synthDiffCmd.Flags()
	flags.String("old", "", "directory holding the old snapshot (required)")
	flags.String("new", "", "directory holding the new snapshot (required)")
	for _, name := range []string{"old", "new"} {
		if err := synthDiffCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	RootCmd.AddCommand(synthDiffCmd)
}

func runSynthDiff(cmd *cobra.Command, _ []string) error {
	oldDir, _ := cmd.Flags().GetString("old")
	newDir, _ := cmd.Flags().GetString("new")

	oldSnap, err := readSnapshot(oldDir)
	if err != nil {
		return fmt.Errorf("app: reading old snapshot: %w", err)
	}
	newSnap, err := readSnapshot(newDir)
	if err != nil {
		return fmt.Errorf("app: reading new snapshot: %w", err)
	}

	out, err := diffutil.Synthesize(oldSnap, newSnap)
	if err != nil {
		return fmt.Errorf("app: synthesizing diff: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// readSnapshot walks dir into a diffutil.Snapshot keyed by slash-separated
// paths relative to dir, skipping directories and anything under .git (a
// synth-diff input is a plain working tree, not a repo to reuse).
func readSnapshot(dir string) (diffutil.Snapshot, error) {
	snap := diffutil.Snapshot{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == ".git" || filepath.Dir(rel) == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		snap[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
