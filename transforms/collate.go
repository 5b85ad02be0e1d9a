package transforms

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vision/data"
)

// Batch is a group of processed samples.
type Batch struct {
	// Input is a stacked tensor (DefaultCollate) or one entry per sample (ListCollate).
	Input any
	// Target follows the layout of Input; nil for unlabeled batches.
	Target any
	// Metadata has one entry per sample.
	Metadata []*data.Metadata
	// Preds is set after inference.
	Preds any
	// Size is the number of samples.
	Size int
}

// ListCollate keeps inputs and targets as per-sample lists. Detection targets
// vary in length and are never stacked.
func ListCollate(_ context.Context, samples []data.Sample) (Batch, error) {
	b := Batch{Size: len(samples)}
	inputs := make([]any, len(samples))
	var targets []any
	for i, s := range samples {
		inputs[i] = s.Input
		b.Metadata = append(b.Metadata, s.Metadata)
		if s.Target != nil {
			if targets == nil {
				targets = make([]any, len(samples))
			}
			targets[i] = s.Target
		}
	}
	b.Input = inputs
	if targets != nil {
		b.Target = targets
	}
	return b, nil
}

// DefaultCollate stacks float32 INPUT tensors along a new leading batch axis
// and integer TARGET values into a 1-D int64 tensor.
func DefaultCollate(_ context.Context, samples []data.Sample) (Batch, error) {
	if len(samples) == 0 {
		return Batch{}, errors.New("collate: empty batch")
	}

	b := Batch{Size: len(samples)}
	var (
		shape   tensor.Shape
		backing []float32
	)
	labels := make([]int64, 0, len(samples))
	for i, s := range samples {
		t, ok := s.Input.(*tensor.Dense)
		if !ok {
			return Batch{}, errors.Errorf("collate: sample %d input is %T, not a tensor", i, s.Input)
		}
		values, ok := t.Data().([]float32)
		if !ok {
			return Batch{}, errors.Errorf("collate: sample %d input has dtype %v", i, t.Dtype())
		}
		if i == 0 {
			shape = t.Shape().Clone()
			backing = make([]float32, 0, len(samples)*len(values))
		} else if !shape.Eq(t.Shape()) {
			return Batch{}, errors.Errorf("collate: sample %d shape %v differs from %v", i, t.Shape(), shape)
		}
		backing = append(backing, values...)
		b.Metadata = append(b.Metadata, s.Metadata)

		if s.Target == nil {
			continue
		}
		label, err := scalarInt64(s.Target)
		if err != nil {
			return Batch{}, errors.Wrapf(err, "collate: sample %d target", i)
		}
		labels = append(labels, label)
	}

	b.Input = tensor.New(tensor.WithShape(append([]int{len(samples)}, shape...)...), tensor.WithBacking(backing))
	switch len(labels) {
	case 0:
	case len(samples):
		b.Target = tensor.New(tensor.WithShape(len(labels)), tensor.WithBacking(labels))
	default:
		return Batch{}, errors.Errorf("collate: %d of %d samples have targets", len(labels), len(samples))
	}
	return b, nil
}

func scalarInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case *tensor.Dense:
		switch d := x.Data().(type) {
		case int64:
			return d, nil
		case []int64:
			if len(d) == 1 {
				return d[0], nil
			}
		}
		return 0, errors.Errorf("tensor of shape %v and dtype %v is not an integer scalar", x.Shape(), x.Dtype())
	default:
		return 0, errors.Errorf("cannot collate target of type %T", v)
	}
}

// Unbatch splits a ListCollate batch back into samples.
func Unbatch(b Batch) ([]data.Sample, error) {
	inputs, ok := b.Input.([]any)
	if !ok {
		return nil, errors.Errorf("unbatch expects list inputs, got %T", b.Input)
	}
	samples := make([]data.Sample, len(inputs))
	targets, _ := b.Target.([]any)
	preds, _ := b.Preds.([]any)
	for i := range inputs {
		samples[i].Input = inputs[i]
		if i < len(targets) {
			samples[i].Target = targets[i]
		}
		if i < len(b.Metadata) {
			samples[i].Metadata = b.Metadata[i]
		}
		if i < len(preds) {
			samples[i].Preds = preds[i]
		}
	}
	return samples, nil
}
