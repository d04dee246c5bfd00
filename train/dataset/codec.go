package dataset

import (
	"bytes"
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/twoears/scenetcn/train"
)

// Format is the on-disk encoding of a scene instance file.
type Format int

const (
	FormatGob Format = iota
	FormatSnappy
	FormatProto
)

// FormatOf selects the encoding from the file extension. Unknown extensions are gob.
func FormatOf(path string) Format {
	switch filepath.Ext(path) {
	case ".sz":
		return FormatSnappy
	case ".pb":
		return FormatProto
	}
	return FormatGob
}

// sceneRecord is the gob form of a scene instance.
type sceneRecord struct {
	Scene      int
	Fold       int
	FeatureDim int
	LabelDim   int
	Features   []float32
	Labels     []int32
}

// Encode writes s to w in format.
func Encode(w io.Writer, s *train.SceneInstance, format Format) error {
	switch format {
	case FormatProto:
		_, err := w.Write(marshalProto(s))
		return errors.Wrap(err, "writing scene instance")
	case FormatSnappy:
		sw := snappy.NewBufferedWriter(w)
		if err := encodeGob(sw, s); err != nil {
			return err
		}
		return errors.Wrap(sw.Close(), "flushing snappy stream")
	}
	return encodeGob(w, s)
}

// Decode reads a scene instance in format from r. Undecodable input yields
// ErrMalformedScene.
func Decode(r io.Reader, format Format) (*train.SceneInstance, error) {
	switch format {
	case FormatProto:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading scene instance")
		}
		return unmarshalProto(data)
	case FormatSnappy:
		return decodeGob(snappy.NewReader(r))
	}
	return decodeGob(r)
}

func encodeGob(w io.Writer, s *train.SceneInstance) error {
	err := gob.NewEncoder(w).Encode(sceneRecord{
		Scene:      s.Scene,
		Fold:       s.Fold,
		FeatureDim: s.FeatureDim,
		LabelDim:   s.LabelDim,
		Features:   s.Features,
		Labels:     s.Labels,
	})
	return errors.Wrap(err, "encoding scene instance")
}

func decodeGob(r io.Reader) (*train.SceneInstance, error) {
	var rec sceneRecord
	if err := gob.NewDecoder(r).Decode(&rec); err != nil {
		return nil, errors.Wrapf(train.ErrMalformedScene, "decoding: %v", err)
	}
	return &train.SceneInstance{
		Scene:      rec.Scene,
		Fold:       rec.Fold,
		FeatureDim: rec.FeatureDim,
		LabelDim:   rec.LabelDim,
		Features:   rec.Features,
		Labels:     rec.Labels,
	}, nil
}

// WriteScene writes s to path on fs in the format of the path's extension.
func WriteScene(fs afero.Fs, path string, s *train.SceneInstance) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s, FormatOf(path)); err != nil {
		return errors.Wrapf(err, "scene file %s", path)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	return errors.Wrapf(afero.WriteFile(fs, path, buf.Bytes(), 0o644), "writing scene file %s", path)
}

// ReadScene reads the scene instance at path on fs.
func ReadScene(fs afero.Fs, path string) (*train.SceneInstance, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening scene file %s", path)
	}
	defer f.Close()
	s, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, errors.Wrapf(err, "scene file %s", path)
	}
	s.File = path
	return s, nil
}
