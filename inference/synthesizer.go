package inference

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Synthesizer produces randomly populated input tensors for arbitrary signatures.
//
// Values are drawn uniformly from [0.0, 1.0) regardless of the declared element type;
// nothing downstream inspects them. A Synthesizer is not safe for concurrent use.
type Synthesizer struct {
	rng *rand.Rand
}

// NewSynthesizer creates a synthesizer seeded from the wall clock.
func NewSynthesizer() *Synthesizer {
	seed := uint64(time.Now().UnixNano())
	return NewSeededSynthesizer(seed, seed>>1|1)
}

// NewSeededSynthesizer creates a synthesizer with a deterministic random stream.
//
// Arguments:
//   - seed1: First PCG seed word.
//   - seed2: Second PCG seed word.
//
// Returns:
//   - *Synthesizer: The synthesizer.
func NewSeededSynthesizer(seed1, seed2 uint64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Synthesize builds one tensor for the given signature.
//
// Dynamic dimensions resolve to DefaultDynamicSize. A shape with a zero dimension
// yields an empty tensor; the engine decides whether that is valid.
//
// Arguments:
//   - sig: The declared input signature.
//
// Returns:
//   - Tensor: The concrete, populated tensor.
//   - error: An error if the resolved shape holds more than MaxElements elements.
func (s *Synthesizer) Synthesize(sig Signature) (Tensor, error) {
	shape := ResolveShape(sig.Shape)
	n, err := ElementCount(shape)
	if err != nil {
		return Tensor{}, fmt.Errorf("input %q: %w", sig.Name, err)
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = s.rng.Float32()
	}

	return Tensor{
		Name:  sig.Name,
		Shape: shape,
		Data:  data,
	}, nil
}

// SynthesizeAll builds one tensor per signature, in declaration order.
func (s *Synthesizer) SynthesizeAll(sigs []Signature) ([]Tensor, error) {
	tensors := make([]Tensor, len(sigs))
	for i, sig := range sigs {
		t, err := s.Synthesize(sig)
		if err != nil {
			return nil, err
		}
		tensors[i] = t
	}
	return tensors, nil
}
