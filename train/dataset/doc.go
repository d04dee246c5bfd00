// Package dataset reads and writes scene instance files and the manifest that
// lists them, and serves decoded scene instances to the batch loader.
//
// A scene instance file holds the feature and label matrices of one scene
// instance. The encoding follows the file extension:
//
//	.gob  encoding/gob
//	.sz   snappy-compressed gob
//	.pb   protobuf wire format (see codec_proto.go)
//
// The manifest is a CSV file with the columns path, fold and scene; paths are
// relative to the manifest's directory unless absolute.
package dataset
