// SPDX-FileCopyrightText: Copyright 2024 The Minder Authors
// SPDX-License-Identifier: Apache-2.0

// Package scalibr wraps osv-scalibr for a single purpose: a best-effort
// sanity cross-check in the per-instance evaluator. It scans a staged tree
// independently of the ecosystem-specific build-file parser and reports how
// many packages it found, so a parser regression that silently returns zero
// dependencies where scalibr finds dozens shows up in the log without ever
// gating the result.
package scalibr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"

	scalibr "github.com/google/osv-scalibr"
	"github.com/google/osv-scalibr/extractor/filesystem/language/golang/gobinary"
	scalibr_fs "github.com/google/osv-scalibr/fs"
	scalibr_plugin "github.com/google/osv-scalibr/plugin"
	"github.com/google/osv-scalibr/plugin/list"
)

// Extractor scans a filesystem with osv-scalibr's default (offline)
// extractor set.
type Extractor struct{}

// NewExtractor creates a new sanity-check extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// PackageCount is the result of a sanity scan: how many packages scalibr
// found, and their names, for log comparison against the build-file
// parser's own count.
type PackageCount struct {
	Count int
	Names []string
}

// ScanFilesystem runs scalibr's default extractor set against iofs and
// returns the packages it inventoried. Network access is disabled since
// this runs against an already-staged, possibly offline sandbox tree.
func (*Extractor) ScanFilesystem(ctx context.Context, iofs fs.FS) (*PackageCount, error) {
	return scanFilesystem(ctx, iofs)
}

func scanFilesystem(ctx context.Context, iofs fs.FS) (*PackageCount, error) {
	if iofs == nil {
		return nil, errors.New("unable to scan dependencies, no filesystem")
	}
	// have to down-cast here, because scalibr needs multiple io/fs types
	wrapped, ok := iofs.(scalibr_fs.FS)
	if !ok {
		return nil, errors.New("error converting filesystem to ReadDirFS")
	}

	desiredCaps := scalibr_plugin.Capabilities{
		OS:            scalibr_plugin.OSLinux,
		Network:       scalibr_plugin.NetworkOffline, // never fetch over the network during a sandboxed scan
		DirectFS:      false,
		RunningSystem: false,
	}

	scalibrFs := scalibr_fs.ScanRoot{FS: wrapped}
	extractors := list.FromCapabilities(&desiredCaps)
	// the go binary extractor sometimes panics on arbitrary staged trees; skip it
	extractors = slices.DeleteFunc(extractors, func(e scalibr_plugin.Plugin) bool {
		_, ok := e.(*gobinary.Extractor)
		return ok
	})
	scanConfig := scalibr.ScanConfig{
		ScanRoots:    []*scalibr_fs.ScanRoot{&scalibrFs},
		Plugins:      extractors,
		Capabilities: &desiredCaps,
	}

	scanner := scalibr.New()
	scanResults := scanner.Scan(ctx, &scanConfig)

	if scanResults == nil || scanResults.Status == nil {
		return nil, fmt.Errorf("error scanning files: no results")
	}
	if scanResults.Status.Status != scalibr_plugin.ScanStatusSucceeded {
		return nil, fmt.Errorf("error scanning files: %s", scanResults.Status)
	}

	out := &PackageCount{Count: len(scanResults.Inventory.Packages)}
	for _, inv := range scanResults.Inventory.Packages {
		out.Names = append(out.Names, inv.Name)
	}
	return out, nil
}
