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

// Package provider declares the abstract external collaborators of the
// generation side of this repo: an LLM client and a tokenizer. Patch
// generation itself — prompting an LLM to restore masked dependency
// declarations — is explicitly out of scope for the evaluation harness;
// these interfaces exist only so the same repository can carry both the
// evaluation harness and an independent generation experiment against the
// same abstractions. The core evaluator never constructs an implementation
// of either interface.
package provider

import "context"

// Message is one turn of a chat-style prompt, the shape every mainstream
// LLM API (and minder's own provider clients) converges on.
type Message struct {
	Role    string
	Content string
}

// GenerateOptions controls one LLMClient.Generate call.
type GenerateOptions struct {
	MaxNewTokens int
	Temperature  float64
	// N is the number of candidate completions requested; implementations
	// that only support one may ignore values greater than 1 and return a
	// single-element slice.
	N int
}

// LLMClient is the abstract provider for patch-generation experiments. The
// core never calls this; it exists for the out-of-scope generation side of
// the repo.
type LLMClient interface {
	// Generate returns up to opts.N completions for messages.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) ([]string, error)
	// GenerateJSON is the optional structured-output variant;
	// implementations that don't support constrained decoding may return
	// an error.
	GenerateJSON(ctx context.Context, messages []Message, opts GenerateOptions, v any) error
}
