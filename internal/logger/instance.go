// Copyright 2023 Stacklok, Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// InstanceLogger is one repo instance's log file, opened alongside its
// result.json. Records written through Logger go to both the process-wide
// logger's writers and this file, so a single `tail -f` on the aggregate
// log and a `cat` of one instance's log agree on what happened.
type InstanceLogger struct {
	Logger zerolog.Logger
	file   *os.File
}

// OpenInstanceLogger creates (or truncates) <dir>/run.log and returns a
// logger that writes to it as well as to parent, tagged with instanceID.
func OpenInstanceLogger(parent zerolog.Logger, dir, instanceID string) (*InstanceLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create instance dir: %w", err)
	}
	path := filepath.Join(filepath.Clean(dir), "run.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logger: open instance log: %w", err)
	}

	writer := zerolog.MultiLevelWriter(parent, file)
	logger := zerolog.New(writer).With().Timestamp().Str("instance_id", instanceID).Logger()
	return &InstanceLogger{Logger: logger, file: file}, nil
}

// Close releases the underlying file. Safe to call once per OpenInstanceLogger.
func (l *InstanceLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
