// Package inference - Input signatures, synthetic tensors and the inference invoker.
package inference

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// DynamicDim is the sentinel a model uses for a dimension whose size is chosen at call time.
// Any negative dimension is treated as dynamic.
const DynamicDim int64 = -1

// DefaultDynamicSize is the size substituted for every dynamic dimension.
const DefaultDynamicSize int64 = 1

// MaxElements bounds the number of elements of one synthesized tensor.
const MaxElements int64 = math.MaxInt32

// ElementType is the declared element type of a model input.
type ElementType string

const (
	ElementFloat32 ElementType = "float32"
	ElementFloat64 ElementType = "float64"
	ElementFloat16 ElementType = "float16"
	ElementInt8    ElementType = "int8"
	ElementInt16   ElementType = "int16"
	ElementInt32   ElementType = "int32"
	ElementInt64   ElementType = "int64"
	ElementUint8   ElementType = "uint8"
	ElementUint16  ElementType = "uint16"
	ElementUint32  ElementType = "uint32"
	ElementUint64  ElementType = "uint64"
	ElementBool    ElementType = "bool"
	ElementString  ElementType = "string"
	ElementUnknown ElementType = "unknown"
)

// Signature is the name/shape/type contract a model declares for one input.
type Signature struct {
	// Name is unique within a model.
	Name string `json:"name"`
	// ElementType is the declared element type.
	ElementType ElementType `json:"element_type"`
	// Shape holds one entry per dimension; negative entries are dynamic.
	Shape []int64 `json:"shape"`
}

// IsDynamic reports whether any dimension of the signature is dynamic.
func (s Signature) IsDynamic() bool {
	for _, dim := range s.Shape {
		if dim < 0 {
			return true
		}
	}
	return false
}

// String renders the signature as name:type[d0,d1,...].
func (s Signature) String() string {
	return fmt.Sprintf("%s:%s%s", s.Name, s.ElementType, FormatShape(s.Shape))
}

// Tensor is a named, fully shaped input buffer.
//
// The length of Data always equals the product of Shape.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	return len(t.Data)
}

// ResolveShape returns a copy of shape with every dynamic dimension replaced by
// DefaultDynamicSize.
//
// Arguments:
//   - shape: The declared dimensions.
//
// Returns:
//   - []int64: The concrete dimensions.
func ResolveShape(shape []int64) []int64 {
	resolved := make([]int64, len(shape))
	for i, dim := range shape {
		if dim < 0 {
			dim = DefaultDynamicSize
		}
		resolved[i] = dim
	}
	return resolved
}

// ElementCount returns the product of the given concrete dimensions.
// A scalar (empty shape) holds one element.
//
// Arguments:
//   - shape: The concrete dimensions.
//
// Returns:
//   - int64: The number of elements.
//   - error: An error if a dimension is negative or the product exceeds MaxElements.
func ElementCount(shape []int64) (int64, error) {
	count := uint64(1)
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shape %s has a negative dimension", FormatShape(shape))
		}
		hi, lo := bits.Mul64(count, uint64(dim))
		if hi != 0 || lo > uint64(MaxElements) {
			return 0, fmt.Errorf("shape %s exceeds %d elements", FormatShape(shape), MaxElements)
		}
		count = lo
	}
	return int64(count), nil
}

// FormatShape renders dimensions as [d0,d1,...], with dynamic dimensions shown as -1.
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, dim := range shape {
		if dim < 0 {
			dim = DynamicDim
		}
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
