// Package train provides the training core for the scene TCN runner.
//
// # Reading Guide
//
// Start with these files to understand the data path:
//   - scene.go: SceneInstance, one loaded recording with its feature and label tensors
//   - loader.go: the scene-instance buffer and its state machine (Empty → Filling → Ready ⇄ Draining → Exhausted)
//   - orchestrator.go: the epoch loop that drives loaders, the model and persistence
//
// # Architecture
//
// The train package defines interfaces and data types; implementations that touch
// storage or the model live in sub-packages:
//   - train/model/: model architecture, the framewise classifier and the optimizer variants
//   - train/dataset/: scene manifests, scene file codec and the cached scene source
//   - train/labelstats/: persistent cache of per-file label counts
//   - train/trace/: window-level recording of loader activity
//
// train/model registers its constructor via init() by setting NewModelFunc.
//
// # Key Interfaces
//
//   - SceneReader: load one scene instance file
//   - LabelCounter: class counts for one scene file under a label mode
//   - SelectionPolicy: choose which pool entry feeds the next batch row
//   - BatchLoader: stream fixed-shape BatchWindows until ErrLoaderExhausted
//   - Model / Optimizer / Loss: the compiled training step
package train
