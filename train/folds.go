package train

import (
	"sort"

	"github.com/pkg/errors"
)

// FoldSet is an immutable set of fold ids.
type FoldSet struct {
	ids []int
}

// NewFoldSet builds a FoldSet from fold ids; duplicates are dropped and ids sorted.
func NewFoldSet(ids ...int) FoldSet {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return FoldSet{ids: out}
}

// IDs returns a copy of the fold ids in ascending order.
func (fs FoldSet) IDs() []int {
	return append([]int(nil), fs.ids...)
}

// Len returns the number of folds.
func (fs FoldSet) Len() int { return len(fs.ids) }

// Contains reports whether fold is in the set.
func (fs FoldSet) Contains(fold int) bool {
	i := sort.SearchInts(fs.ids, fold)
	return i < len(fs.ids) && fs.ids[i] == fold
}

// TrainFolds returns the training folds for a validation fold: every fold but
// validFold, or all folds when validFold is NoValidFold.
func TrainFolds(validFold int) (FoldSet, error) {
	all := make([]int, 0, NumberFolds)
	for f := 1; f <= NumberFolds; f++ {
		all = append(all, f)
	}
	if validFold == NoValidFold {
		return NewFoldSet(all...), nil
	}
	if validFold < 1 || validFold > NumberFolds {
		return FoldSet{}, errors.Wrapf(ErrInvalidFold, "the validation fold needs to be one of the %d possible folds, got %d", NumberFolds, validFold)
	}
	train := make([]int, 0, NumberFolds-1)
	for _, f := range all {
		if f != validFold {
			train = append(train, f)
		}
	}
	return NewFoldSet(train...), nil
}

// ValidationFolds returns the held-out fold, or an empty set for NoValidFold.
func ValidationFolds(validFold int) (FoldSet, error) {
	if validFold == NoValidFold {
		return FoldSet{}, nil
	}
	if _, err := TrainFolds(validFold); err != nil {
		return FoldSet{}, err
	}
	return NewFoldSet(validFold), nil
}

// SceneIDs returns the scene ids used for training and validation.
func SceneIDs(firstSceneOnly bool) []int {
	if firstSceneOnly {
		return []int{FirstScene}
	}
	ids := make([]int, NumberScenesTrainValid)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// FilterScope returns the files whose fold is in folds and whose scene is in scenes,
// sorted by path.
func FilterScope(files []SceneFile, folds FoldSet, scenes []int) []SceneFile {
	sceneSet := make(map[int]bool, len(scenes))
	for _, s := range scenes {
		sceneSet[s] = true
	}
	out := make([]SceneFile, 0, len(files))
	for _, f := range files {
		if folds.Contains(f.Fold) && sceneSet[f.Scene] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
