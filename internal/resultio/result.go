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

// Package resultio implements result persistence: one result.json per
// workspace, and a single-writer aggregate results.jsonl.
package resultio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/justachillguy/bigbuild/internal/model"
)

// ReadResult loads a previously written result.json, or (nil, nil) if path
// does not exist — the caller decides whether that means "no cached
// result" on the resume path.
func ReadResult(path string) (*model.EvaluationResult, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resultio: read %s: %w", path, err)
	}
	var result model.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("resultio: decode %s: %w", path, err)
	}
	return &result, nil
}

// WriteResult marshals result as indented JSON and writes it to path,
// via a temp-file-then-rename so a concurrent reader never observes a
// half-written file.
func WriteResult(path string, result *model.EvaluationResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("resultio: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("resultio: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("resultio: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
