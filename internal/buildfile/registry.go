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

package buildfile

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/justachillguy/bigbuild/internal/apperrors"
)

// RegistryProbe is the shared HTTPS client the per-ecosystem fake-library
// probes use. Probes are stateless and best-effort: a single client, safe
// for concurrent use by every worker in the orchestrator's pool, is
// deliberately shared rather than recreated per instance.
type RegistryProbe struct {
	client *retryablehttp.Client
}

var defaultProbe *RegistryProbe

// DefaultRegistryProbe returns the package-wide probe client, built lazily
// with sane defaults (short retries, quiet logging).
func DefaultRegistryProbe() *RegistryProbe {
	if defaultProbe == nil {
		defaultProbe = NewRegistryProbe(10 * time.Second)
	}
	return defaultProbe
}

// NewRegistryProbe builds a RegistryProbe with the given per-request
// timeout. Retries use an exponential backoff capped well under a typical
// instance timeout, since registry probes must never be allowed to stall an
// evaluation.
func NewRegistryProbe(timeout time.Duration) *RegistryProbe {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.Logger = nil // minder's own retryablehttp wiring quiets this; callers log outcomes themselves
	c.HTTPClient = &http.Client{Timeout: timeout}
	c.Backoff = func(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = min
		b.MaxInterval = max
		var d time.Duration
		for i := 0; i <= attempt; i++ {
			d = b.NextBackOff()
			if d == backoff.Stop {
				return max
			}
		}
		return d
	}
	return &RegistryProbe{client: c}
}

// Exists performs an HTTPS GET against url and classifies the result: true
// means the registry confirmed the package exists, false+nil means a 404
// ("not found"), and a non-nil error means the probe could not get a
// definitive answer (RegistryUnavailable) — callers must treat that as
// "not fake", never as fatal.
func (p *RegistryProbe) Exists(url string) (bool, error) {
	resp, err := p.client.Get(url)
	if err != nil {
		return false, &apperrors.RegistryUnavailable{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &apperrors.RegistryUnavailable{
			URL:   url,
			Cause: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}

// IsFake reports whether url's subject is a fake library: true only on a
// confirmed 404. A RegistryUnavailable error is swallowed into `false` here
// — the conservative not-fake default — callers that want to observe the
// distinction should call Exists directly.
func (p *RegistryProbe) IsFake(url string) bool {
	exists, err := p.Exists(url)
	if err != nil {
		return false
	}
	return !exists
}
