package providers

import (
	"encoding/binary"

	"github.com/nvr-ai/edgebench/inference"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"
)

// ElementTypeOf maps an ONNX Runtime element type to the inference element type.
func ElementTypeOf(dt ort.TensorElementDataType) inference.ElementType {
	switch dt {
	case ort.TensorElementDataTypeFloat:
		return inference.ElementFloat32
	case ort.TensorElementDataTypeDouble:
		return inference.ElementFloat64
	case ort.TensorElementDataTypeFloat16:
		return inference.ElementFloat16
	case ort.TensorElementDataTypeInt8:
		return inference.ElementInt8
	case ort.TensorElementDataTypeInt16:
		return inference.ElementInt16
	case ort.TensorElementDataTypeInt32:
		return inference.ElementInt32
	case ort.TensorElementDataTypeInt64:
		return inference.ElementInt64
	case ort.TensorElementDataTypeUint8:
		return inference.ElementUint8
	case ort.TensorElementDataTypeUint16:
		return inference.ElementUint16
	case ort.TensorElementDataTypeUint32:
		return inference.ElementUint32
	case ort.TensorElementDataTypeUint64:
		return inference.ElementUint64
	case ort.TensorElementDataTypeBool:
		return inference.ElementBool
	case ort.TensorElementDataTypeString:
		return inference.ElementString
	default:
		return inference.ElementUnknown
	}
}

// NewValue creates an ONNX Runtime tensor holding t's data converted to the
// declared element type. Integer types truncate the synthetic [0, 1) values and
// booleans are true from 0.5 upwards.
func NewValue(t inference.Tensor, et inference.ElementType) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)

	var (
		v   ort.Value
		err error
	)
	switch et {
	case inference.ElementFloat32, inference.ElementUnknown, "":
		v, err = ort.NewTensor(shape, t.Data)
	case inference.ElementFloat64:
		v, err = ort.NewTensor(shape, convertElements[float64](t.Data))
	case inference.ElementInt8:
		v, err = ort.NewTensor(shape, convertElements[int8](t.Data))
	case inference.ElementInt16:
		v, err = ort.NewTensor(shape, convertElements[int16](t.Data))
	case inference.ElementInt32:
		v, err = ort.NewTensor(shape, convertElements[int32](t.Data))
	case inference.ElementInt64:
		v, err = ort.NewTensor(shape, convertElements[int64](t.Data))
	case inference.ElementUint8:
		v, err = ort.NewTensor(shape, convertElements[uint8](t.Data))
	case inference.ElementUint16:
		v, err = ort.NewTensor(shape, convertElements[uint16](t.Data))
	case inference.ElementUint32:
		v, err = ort.NewTensor(shape, convertElements[uint32](t.Data))
	case inference.ElementUint64:
		v, err = ort.NewTensor(shape, convertElements[uint64](t.Data))
	case inference.ElementFloat16:
		v, err = ort.NewCustomDataTensor(shape, float16Bytes(t.Data), ort.TensorElementDataTypeFloat16)
	case inference.ElementBool:
		v, err = ort.NewTensor(shape, boolElements(t.Data))
	default:
		return nil, errors.Errorf("input %q: unsupported element type %s", t.Name, et)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error creating tensor for input %q", t.Name)
	}
	return v, nil
}

func convertElements[T ort.FloatData | ort.IntData](src []float32) []T {
	dst := make([]T, len(src))
	for i, v := range src {
		dst[i] = T(v)
	}
	return dst
}

// float16Bytes encodes src as little-endian IEEE 754 half precision values,
// rounding to nearest even.
func float16Bytes(src []float32) []byte {
	dst := make([]byte, 2*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], float16.Fromfloat32(v).Bits())
	}
	return dst
}

func boolElements(src []float32) []bool {
	dst := make([]bool, len(src))
	for i, v := range src {
		dst[i] = v >= 0.5
	}
	return dst
}
