package cmd

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/twoears/scenetcn/train"
)

// resolveHyper applies the hyperparameter mode of p. In manual mode p is used
// as given. A file name loads the parameters from that YAML file; the output
// path, validation fold and runner options of p are kept. Hyperparameter
// sampling is not available.
func resolveHyper(fs afero.Fs, p train.RunParams) (train.RunParams, error) {
	switch p.Hyper {
	case train.HyperManual, "":
		p.Hyper = train.HyperManual
		return p, nil
	case train.HyperRandomCoarse, train.HyperRandomFine:
		return p, fmt.Errorf("hyperparameter sampling %q: %w", p.Hyper, train.ErrNotConfigured)
	}

	ok, err := afero.Exists(fs, p.Hyper)
	if err != nil {
		return p, fmt.Errorf("checking hyperparameter file %s: %w", p.Hyper, err)
	}
	if !ok {
		return p, fmt.Errorf("--hyper must be manual, %s, %s or an existing file, got %q: %w",
			train.HyperRandomCoarse, train.HyperRandomFine, p.Hyper, train.ErrConfiguration)
	}
	loaded, err := train.LoadRunParams(fs, p.Hyper)
	if err != nil {
		return p, err
	}
	loaded.Hyper = p.Hyper
	loaded.Path = p.Path
	loaded.ValidFold = p.ValidFold
	loaded.Manifest = p.Manifest
	loaded.Seed = p.Seed
	loaded.Workers = p.Workers
	loaded.BatchTimeout = p.BatchTimeout
	loaded.SceneCache = p.SceneCache
	return loaded, nil
}
