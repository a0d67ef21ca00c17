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

package model

// CacheLevel controls what a workspace keeps on disk after an evaluation
// completes.
type CacheLevel string

// Cache levels.
const (
	// CacheAll keeps every staged file, log, and result.
	CacheAll CacheLevel = "all"
	// CacheLog deletes staged trees but keeps logs and result.json.
	CacheLog CacheLevel = "log"
	// CacheNone deletes the entire workspace.
	CacheNone CacheLevel = "none"
)

// ExecResult is the outcome of the execution evaluation. EvaluationResult
// holds it by pointer so that "not run" (nil) is distinguishable from "fail".
type ExecResult string

// Possible exec results.
const (
	ExecPass ExecResult = "pass"
	ExecFail ExecResult = "fail"
)

// TextMetrics holds the two families of TP/FP/FN counts plus the fake-
// library count.
type TextMetrics struct {
	Exact    Counts `json:"exact"`
	NameOnly Counts `json:"name_only"`
	FakeLibs int    `json:"fake_libs"`
}

// Detail records the dependency names observed on each side, keyed by build
// file, for debugging and reporting.
type Detail struct {
	Oracle    map[string][]string `json:"oracle"`
	Predicted map[string][]string `json:"predicted"`
}

// EvaluationResult is the per-instance result persisted to
// `<workspace>/result.json` and appended (one line each) to
// `<workspace_root>/results.jsonl`.
type EvaluationResult struct {
	InstanceID string       `json:"instance_id"`
	Text       *TextMetrics `json:"text"`
	Exec       *ExecResult  `json:"exec"`
	Detail     *Detail      `json:"detail"`

	// PatchExec and RemoveFake carry the outcome of the optional
	// patch-exec / remove-fake evaluation modes. Nil unless the
	// corresponding evaluator flag is set.
	PatchExec  *string `json:"patch-exec,omitempty"`
	RemoveFake *string `json:"remove-fake,omitempty"`
}

// Succeeded reports whether the execution evaluation, if it ran, passed.
func (r *EvaluationResult) Succeeded() bool {
	return r.Exec != nil && *r.Exec == ExecPass
}
