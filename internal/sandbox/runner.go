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

// Package sandbox runs a repo instance's CI job inside a nested container.
// Nothing in this pack wires a Docker engine-API client; minder's own
// internal/container package only ever talks to registries (pulling
// manifests for signature verification), never to a daemon. So this package
// drives the `docker` CLI directly via os/exec, the same posture minder's
// own cmd/dev/app/testserver takes toward ephemeral test infrastructure, and
// uses google/go-containerregistry purely to validate/normalize the image
// reference before handing it to docker.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justachillguy/bigbuild/internal/apperrors"
)

const (
	successMarker = "🏁  Job succeeded"
	failureMarker = "🏁  Job failed"
	timeoutExit   = 124
)

// Config controls one sandboxed run.
type Config struct {
	// Image is the env image reference to run (typically derived from
	// instance.EnvSpecs and the instance's language).
	Image string
	// WorkDir is the host directory mounted read-write into the
	// container at ContainerWorkDir (the staged, patched, committed
	// checkout).
	WorkDir string
	// ContainerWorkDir is the in-container mount point, also used as the
	// working directory for Command.
	ContainerWorkDir string
	// Command is the CI job's act-equivalent invocation (instance's
	// ActCommand), run under `timeout <TimeoutSeconds>s`.
	Command string
	// TimeoutSeconds bounds the inner command; a 124 exit is classified
	// as CITimeout.
	TimeoutSeconds int
	// Privileged runs the container with the nested/sysbox-style runtime
	// a Docker-in-Docker CI job needs.
	Privileged bool
	// Runtime names the OCI runtime to request (e.g. "sysbox-runc");
	// empty uses the daemon default.
	Runtime string
}

// Result is the outcome of one sandboxed run.
type Result struct {
	Outcome  apperrors.CIOutcome
	Stdout   string
	ExitCode int
}

// Runner executes Configs against the local docker CLI.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner constructs a Runner logging through logger.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts a container from cfg.Image, waits for its inner daemon (if any)
// to become healthy, executes cfg.Command under a timeout, classifies the
// outcome, and always tears the container down before returning.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	ref, err := name.ParseReference(cfg.Image)
	if err != nil {
		return nil, &apperrors.SandboxError{Cause: fmt.Errorf("invalid image reference %q: %w", cfg.Image, err)}
	}

	containerName := fmt.Sprintf("bigbuild-%s", uuid.NewString())
	log := r.logger.With().Str("container", containerName).Str("image", ref.Name()).Logger()

	if err := r.start(ctx, containerName, ref.Name(), cfg); err != nil {
		return nil, &apperrors.SandboxError{Cause: err}
	}
	defer r.cleanup(context.Background(), containerName, log)

	if err := r.waitHealthy(ctx, containerName, log); err != nil {
		return nil, &apperrors.SandboxError{Cause: err}
	}

	return r.exec(ctx, containerName, cfg, log)
}

func (r *Runner) start(ctx context.Context, containerName, image string, cfg Config) error {
	args := []string{
		"run", "-d",
		"--name", containerName,
		"--mount", fmt.Sprintf("type=bind,src=%s,dst=%s", cfg.WorkDir, cfg.ContainerWorkDir),
	}
	if cfg.Privileged {
		args = append(args, "--privileged")
	}
	if cfg.Runtime != "" {
		args = append(args, "--runtime", cfg.Runtime)
	}
	args = append(args, image, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker run: %w: %s", err, stderr.String())
	}
	return nil
}

// waitHealthy polls `docker exec <name> docker info` until it succeeds or
// the context is cancelled, giving a nested Docker-in-Docker daemon time to
// come up before the CI command runs against it.
func (r *Runner) waitHealthy(ctx context.Context, containerName string, log zerolog.Logger) error {
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		cmd := exec.CommandContext(ctx, "docker", "exec", containerName, "docker", "info")
		if err := cmd.Run(); err == nil {
			return nil
		}
		log.Debug().Msg("inner daemon not ready yet")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("inner daemon did not become healthy within deadline")
}

func (r *Runner) exec(ctx context.Context, containerName string, cfg Config, log zerolog.Logger) (*Result, error) {
	timeoutCmd := fmt.Sprintf("timeout %ds %s", cfg.TimeoutSeconds, cfg.Command)
	cmd := exec.CommandContext(ctx, "docker", "exec", "-w", cfg.ContainerWorkDir, containerName, "sh", "-c", timeoutCmd)

	var combined bytes.Buffer
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // merge into one stream, the way CI logs are consumed line-by-line

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("docker exec start: %w", err)
	}

	tee := io.TeeReader(stdout, &combined)
	marker, sawMarker := scanForMarker(tee)

	runErr := cmd.Wait()
	exitCode := exitCodeOf(runErr)
	outcome := classifyOutcome(marker, sawMarker, exitCode)

	log.Debug().Int("exit_code", exitCode).Str("outcome", outcome.String()).Msg("CI job finished")
	return &Result{Outcome: outcome, Stdout: combined.String(), ExitCode: exitCode}, nil
}

// scanForMarker reads r line by line looking for the job's terminal marker,
// returning the outcome it names and whether either marker ever appeared.
func scanForMarker(r io.Reader) (outcome apperrors.CIOutcome, found bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, successMarker):
			outcome, found = apperrors.CIPass, true
		case strings.Contains(line, failureMarker):
			outcome, found = apperrors.CIFail, true
		}
	}
	return outcome, found
}

// classifyOutcome reports pass only when the job's own stdout carried the
// success marker. A timeout exit with no marker is CITimeout; every other
// markerless terminal state - including a clean exit - is CIFail, since a
// harness that never emitted either marker never actually confirmed a pass.
func classifyOutcome(marker apperrors.CIOutcome, sawMarker bool, exitCode int) apperrors.CIOutcome {
	if sawMarker {
		return marker
	}
	if exitCode == timeoutExit {
		return apperrors.CITimeout
	}
	return apperrors.CIFail
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// cleanup stops, then force-kills, then removes the container, retrying the
// final removal up to three times with exponential backoff: container
// teardown must never be allowed to leak a stuck container across instances
// in the orchestrator's pool.
func (r *Runner) cleanup(ctx context.Context, containerName string, log zerolog.Logger) {
	_ = exec.CommandContext(ctx, "docker", "stop", "-t", "5", containerName).Run()
	_ = exec.CommandContext(ctx, "docker", "kill", containerName).Run()

	op := func() error {
		cmd := exec.CommandContext(ctx, "docker", "rm", "-f", containerName)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("docker rm: %w: %s", err, stderr.String())
		}
		return nil
	}
	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, boff); err != nil {
		log.Warn().Err(err).Msg("failed to remove sandbox container after retries")
	}
}

// ParseTimeout is a small helper for config layers that store the sandbox
// timeout as a duration string (e.g. viper's "300s" convention) rather than
// a bare integer.
func ParseTimeout(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("sandbox: invalid timeout %q: %w", s, err)
	}
	return int(d.Seconds()), nil
}
