// register.go wires train/model constructors into the train package's
// registration variables (NewModelFunc, NewOptimizerFunc). This init() runs
// when any package imports train/model, breaking the import cycle between
// train/ (interface owner) and train/model/ (implementation). Production code
// imports train/model directly; test code in package train uses a blank import
// from an external test package.
package model

import (
	"math/rand"

	"github.com/twoears/scenetcn/train"
)

func init() {
	train.NewModelFunc = func(p train.RunParams, rng *rand.Rand) (train.Model, error) {
		return NewFramewise(p, rng)
	}
	train.NewOptimizerFunc = NewOptimizer
}
