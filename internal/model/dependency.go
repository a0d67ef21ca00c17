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

import "strings"

// Dependency is the abstract value object every ecosystem-specific
// dependency type implements; set operations on collections of Dependency
// are how the textual comparison metrics are computed.
//
// Key and Name must be stable and consistent with each other: two
// dependencies that are Key-equal must report the same Name.
type Dependency interface {
	// Name returns the dependency's display name, uncanonicalized.
	Name() string
	// Key returns a comparable value suitable for use as a map key under
	// the ecosystem's "exact" equality rule (full payload comparison).
	Key() any
}

// CanonicalName applies the name-only canonicalisation rule shared across
// every ecosystem: case-insensitive, with '-' normalised to '_'.
func CanonicalName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// DependencySet is a set of Dependency values keyed by their exact-equality
// Key(), used to avoid list-linear comparisons on large inputs.
type DependencySet struct {
	byKey  map[any]Dependency
	byName map[string][]Dependency
}

// NewDependencySet builds a DependencySet from a slice of dependencies.
func NewDependencySet(deps []Dependency) *DependencySet {
	s := &DependencySet{
		byKey:  make(map[any]Dependency, len(deps)),
		byName: make(map[string][]Dependency, len(deps)),
	}
	for _, d := range deps {
		s.byKey[d.Key()] = d
		name := CanonicalName(d.Name())
		s.byName[name] = append(s.byName[name], d)
	}
	return s
}

// Len returns the number of distinct (by exact key) dependencies.
func (s *DependencySet) Len() int {
	return len(s.byKey)
}

// NameSet returns the set of canonicalised names, for the name-only metric.
func (s *DependencySet) NameSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.byName))
	for name := range s.byName {
		out[name] = struct{}{}
	}
	return out
}

// Counts is the TP/FP/FN triple shared by both the exact and name-only
// metrics.
type Counts struct {
	TP int `json:"TP"`
	FP int `json:"FP"`
	FN int `json:"FN"`
}

// Add accumulates another Counts into the receiver, used when summing
// per-file metrics across a RepoInstance's build files.
func (c *Counts) Add(other Counts) {
	c.TP += other.TP
	c.FP += other.FP
	c.FN += other.FN
}

// ExactCounts computes TP/FP/FN over the full-payload ("exact") equality
// rule: model ∩ oracle, model \ oracle, oracle \ model, by Key().
func ExactCounts(model, oracle []Dependency) Counts {
	modelSet := NewDependencySet(model)
	oracleSet := NewDependencySet(oracle)

	var tp, fp, fn int
	for key := range modelSet.byKey {
		if _, ok := oracleSet.byKey[key]; ok {
			tp++
		} else {
			fp++
		}
	}
	for key := range oracleSet.byKey {
		if _, ok := modelSet.byKey[key]; !ok {
			fn++
		}
	}
	return Counts{TP: tp, FP: fp, FN: fn}
}

// NameOnlyCounts computes TP/FP/FN over the canonicalised-name set
// (case-folded, '-' -> '_').
func NameOnlyCounts(model, oracle []Dependency) Counts {
	modelNames := NewDependencySet(model).NameSet()
	oracleNames := NewDependencySet(oracle).NameSet()

	var tp, fp, fn int
	for name := range modelNames {
		if _, ok := oracleNames[name]; ok {
			tp++
		} else {
			fp++
		}
	}
	for name := range oracleNames {
		if _, ok := modelNames[name]; !ok {
			fn++
		}
	}
	return Counts{TP: tp, FP: fp, FN: fn}
}
