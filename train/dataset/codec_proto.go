package dataset

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/twoears/scenetcn/train"
)

// Field numbers of the protobuf scene message:
//
//	message Scene {
//	  int64 scene = 1;
//	  int64 fold = 2;
//	  int64 feature_dim = 3;
//	  int64 label_dim = 4;
//	  repeated float features = 5 [packed = true];
//	  repeated sint32 labels = 6 [packed = true];
//	}
const (
	fieldScene      protowire.Number = 1
	fieldFold       protowire.Number = 2
	fieldFeatureDim protowire.Number = 3
	fieldLabelDim   protowire.Number = 4
	fieldFeatures   protowire.Number = 5
	fieldLabels     protowire.Number = 6
)

func marshalProto(s *train.SceneInstance) []byte {
	b := make([]byte, 0, 32+4*len(s.Features)+2*len(s.Labels))
	for _, f := range []struct {
		num protowire.Number
		v   int
	}{{fieldScene, s.Scene}, {fieldFold, s.Fold}, {fieldFeatureDim, s.FeatureDim}, {fieldLabelDim, s.LabelDim}} {
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.v))
	}

	b = protowire.AppendTag(b, fieldFeatures, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(4*len(s.Features)))
	for _, v := range s.Features {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}

	var labels []byte
	for _, l := range s.Labels {
		labels = protowire.AppendVarint(labels, protowire.EncodeZigZag(int64(l)))
	}
	b = protowire.AppendTag(b, fieldLabels, protowire.BytesType)
	b = protowire.AppendBytes(b, labels)
	return b
}

func unmarshalProto(b []byte) (*train.SceneInstance, error) {
	s := &train.SceneInstance{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformedProto(n)
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && num <= fieldLabelDim:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformedProto(n)
			}
			b = b[n:]
			switch num {
			case fieldScene:
				s.Scene = int(v)
			case fieldFold:
				s.Fold = int(v)
			case fieldFeatureDim:
				s.FeatureDim = int(v)
			case fieldLabelDim:
				s.LabelDim = int(v)
			}
		case typ == protowire.BytesType && num == fieldFeatures:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformedProto(n)
			}
			b = b[n:]
			if len(packed)%4 != 0 {
				return nil, errors.Wrapf(train.ErrMalformedScene, "packed features of %d bytes", len(packed))
			}
			for len(packed) > 0 {
				v, n := protowire.ConsumeFixed32(packed)
				if n < 0 {
					return nil, malformedProto(n)
				}
				s.Features = append(s.Features, math.Float32frombits(v))
				packed = packed[n:]
			}
		case typ == protowire.BytesType && num == fieldLabels:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformedProto(n)
			}
			b = b[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return nil, malformedProto(n)
				}
				s.Labels = append(s.Labels, int32(protowire.DecodeZigZag(v)))
				packed = packed[n:]
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformedProto(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func malformedProto(n int) error {
	return errors.Wrapf(train.ErrMalformedScene, "decoding: %v", protowire.ParseError(n))
}
