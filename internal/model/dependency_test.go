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

package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/justachillguy/bigbuild/internal/model"
)

// fakeDep is a minimal model.Dependency for exercising set operations
// without pulling in a concrete ecosystem parser.
type fakeDep struct {
	name string
	key  string
}

func (d fakeDep) Name() string { return d.name }
func (d fakeDep) Key() any     { return d.key }

func deps(pairs ...[2]string) []model.Dependency {
	out := make([]model.Dependency, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, fakeDep{name: p[0], key: p[1]})
	}
	return out
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "my_lib", model.CanonicalName("My-Lib"))
	assert.Equal(t, "my_lib", model.CanonicalName("my_lib"))
	assert.Equal(t, "", model.CanonicalName(""))
}

func TestExactCounts(t *testing.T) {
	oracle := deps([2]string{"requests", "requests==2.31.0"}, [2]string{"flask", "flask==3.0.0"})
	modelDeps := deps([2]string{"requests", "requests==2.31.0"}, [2]string{"flask", "flask==2.0.0"})

	counts := model.ExactCounts(modelDeps, oracle)
	assert.Equal(t, model.Counts{TP: 1, FP: 1, FN: 1}, counts)
}

func TestNameOnlyCounts(t *testing.T) {
	oracle := deps([2]string{"My-Lib", "My-Lib==1.0"}, [2]string{"other", "other==2.0"})
	modelDeps := deps([2]string{"my_lib", "my_lib==9.9"}, [2]string{"extra", "extra==1.0"})

	counts := model.NameOnlyCounts(modelDeps, oracle)
	assert.Equal(t, model.Counts{TP: 1, FP: 1, FN: 1}, counts)
}

func TestCountsAdd(t *testing.T) {
	var total model.Counts
	total.Add(model.Counts{TP: 1, FP: 2, FN: 3})
	total.Add(model.Counts{TP: 4, FP: 0, FN: 1})
	assert.Equal(t, model.Counts{TP: 5, FP: 2, FN: 4}, total)
}

func TestDependencySetLen(t *testing.T) {
	set := model.NewDependencySet(deps([2]string{"a", "a==1"}, [2]string{"a", "a==1"}, [2]string{"b", "b==1"}))
	assert.Equal(t, 2, set.Len())
}

func TestSliceRangeDefaultsToFullDataset(t *testing.T) {
	instances := []model.RepoInstance{{InstanceID: "1"}, {InstanceID: "2"}}
	out, err := model.SliceRange(instances, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, instances, out)
}

func TestSliceRangeBounds(t *testing.T) {
	instances := []model.RepoInstance{{InstanceID: "1"}, {InstanceID: "2"}, {InstanceID: "3"}}
	out, err := model.SliceRange(instances, 1, 3)
	assert.NoError(t, err)
	assert.Equal(t, []model.RepoInstance{{InstanceID: "2"}, {InstanceID: "3"}}, out)

	_, err = model.SliceRange(instances, 2, 1)
	assert.Error(t, err)

	_, err = model.SliceRange(instances, 0, 10)
	assert.Error(t, err)
}

func TestLanguageNormalize(t *testing.T) {
	assert.Equal(t, model.LanguagePython, model.Language("Python").Normalize())
}
