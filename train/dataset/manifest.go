package dataset

import (
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/twoears/scenetcn/train"
)

// ManifestName is the manifest file looked up in a data directory.
const ManifestName = "manifest.csv"

// LoadManifest reads the manifest at path and resolves relative scene file
// paths against its directory. Entries are returned sorted by path.
func LoadManifest(fs afero.Fs, path string) ([]train.SceneFile, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()

	var files []train.SceneFile
	if err := gocsv.Unmarshal(f, &files); err != nil {
		return nil, errors.Wrapf(train.ErrConfiguration, "parsing manifest %s: %v", path, err)
	}
	dir := filepath.Dir(path)
	for i := range files {
		if err := checkEntry(files[i]); err != nil {
			return nil, errors.Wrapf(err, "manifest %s, row %d", path, i+2)
		}
		if !filepath.IsAbs(files[i].Path) {
			files[i].Path = filepath.Join(dir, files[i].Path)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// WriteManifest writes files as a manifest at path.
func WriteManifest(fs afero.Fs, path string, files []train.SceneFile) error {
	for i, f := range files {
		if err := checkEntry(f); err != nil {
			return errors.Wrapf(err, "manifest entry %d", i)
		}
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating manifest directory for %s", path)
	}
	out, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating manifest %s", path)
	}
	if err := gocsv.Marshal(files, out); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "writing manifest %s", path)
	}
	return errors.Wrapf(out.Close(), "closing manifest %s", path)
}

func checkEntry(f train.SceneFile) error {
	if f.Path == "" {
		return errors.Wrap(train.ErrConfiguration, "empty scene file path")
	}
	if f.Fold < 1 || f.Fold > train.NumberFolds {
		return errors.Wrapf(train.ErrInvalidFold, "%s: fold %d is outside 1..%d", f.Path, f.Fold, train.NumberFolds)
	}
	if f.Scene < train.FirstScene {
		return errors.Wrapf(train.ErrConfiguration, "%s: scene id %d is below %d", f.Path, f.Scene, train.FirstScene)
	}
	return nil
}
