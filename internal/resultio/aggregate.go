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

package resultio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/justachillguy/bigbuild/internal/model"
)

// Aggregate is the single writer onto <workspace_root>/results.jsonl. The
// orchestrator owns exactly one Aggregate per batch.
type Aggregate struct {
	mu   sync.Mutex
	file *os.File
}

// OpenAggregate opens (creating if absent) the aggregate file for append.
func OpenAggregate(path string) (*Aggregate, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resultio: open aggregate %s: %w", path, err)
	}
	return &Aggregate{file: f}, nil
}

// Append writes one JSON line for result, in completion order. Safe for
// concurrent callers; serialises under a mutex rather than requiring the
// orchestrator to collect results first.
func (a *Aggregate) Append(result *model.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("resultio: encode aggregate entry: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(data); err != nil {
		return fmt.Errorf("resultio: append aggregate entry: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (a *Aggregate) Close() error {
	return a.file.Close()
}

// BackupPath renames an existing file or directory at path to the first
// free "<path>-bak", "<path>-bak-bak", ... suffix, mirroring dibench's own
// resume behavior of backing up rather than deleting partial state. It is
// a no-op (returning "") if nothing exists at path.
func BackupPath(path string) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("resultio: stat %s: %w", path, err)
	}

	candidate := path + "-bak"
	for {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			break
		}
		candidate += "-bak"
	}
	if err := os.Rename(path, candidate); err != nil {
		return "", fmt.Errorf("resultio: backup %s -> %s: %w", path, candidate, err)
	}
	return candidate, nil
}
