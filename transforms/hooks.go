// Package transforms - Per-stage sample transforms and their composition.
//
// A pipeline runs, for every sample and in this order: the data source's
// LoadSample, then pre_tensor_transform, to_tensor_transform and
// post_tensor_transform. The processed samples are then collated into a Batch
// and handed to per_batch_transform. A hook left unset is the identity (the
// default collate keeps samples as lists).
package transforms

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-vision/data"
)

// Hook names a transform stage.
type Hook string

const (
	PreTensorTransform  Hook = "pre_tensor_transform"
	ToTensorTransform   Hook = "to_tensor_transform"
	PostTensorTransform Hook = "post_tensor_transform"
	Collate             Hook = "collate"
	PerBatchTransform   Hook = "per_batch_transform"
)

// Hooks lists the hooks in execution order.
var Hooks = []Hook{PreTensorTransform, ToTensorTransform, PostTensorTransform, Collate, PerBatchTransform}

// ErrUnknownHook is returned for hook names outside of Hooks.
var ErrUnknownHook = errors.New("transforms: unknown hook")

// SampleFunc transforms one sample.
type SampleFunc func(ctx context.Context, s data.Sample) (data.Sample, error)

// CollateFunc merges processed samples into a batch.
type CollateFunc func(ctx context.Context, samples []data.Sample) (Batch, error)

// BatchFunc transforms a collated batch.
type BatchFunc func(ctx context.Context, b Batch) (Batch, error)

// Transforms holds one optional function per hook.
type Transforms struct {
	PreTensor  SampleFunc
	ToTensor   SampleFunc
	PostTensor SampleFunc
	Collate    CollateFunc
	PerBatch   BatchFunc
}

// Merge returns t with every hook set in overrides replaced.
func (t Transforms) Merge(overrides Transforms) Transforms {
	if overrides.PreTensor != nil {
		t.PreTensor = overrides.PreTensor
	}
	if overrides.ToTensor != nil {
		t.ToTensor = overrides.ToTensor
	}
	if overrides.PostTensor != nil {
		t.PostTensor = overrides.PostTensor
	}
	if overrides.Collate != nil {
		t.Collate = overrides.Collate
	}
	if overrides.PerBatch != nil {
		t.PerBatch = overrides.PerBatch
	}
	return t
}

// Set assigns fn to the hook named h. fn must match the hook's signature; nil
// clears the hook.
func (t *Transforms) Set(h Hook, fn any) error {
	switch h {
	case PreTensorTransform, ToTensorTransform, PostTensorTransform:
		var sf SampleFunc
		switch f := fn.(type) {
		case nil:
		case SampleFunc:
			sf = f
		case func(context.Context, data.Sample) (data.Sample, error):
			sf = f
		default:
			return errors.Errorf("%s takes a SampleFunc, got %T", h, fn)
		}
		switch h {
		case PreTensorTransform:
			t.PreTensor = sf
		case ToTensorTransform:
			t.ToTensor = sf
		default:
			t.PostTensor = sf
		}
	case Collate:
		switch f := fn.(type) {
		case nil:
			t.Collate = nil
		case CollateFunc:
			t.Collate = f
		case func(context.Context, []data.Sample) (Batch, error):
			t.Collate = f
		default:
			return errors.Errorf("%s takes a CollateFunc, got %T", h, fn)
		}
	case PerBatchTransform:
		switch f := fn.(type) {
		case nil:
			t.PerBatch = nil
		case BatchFunc:
			t.PerBatch = f
		case func(context.Context, Batch) (Batch, error):
			t.PerBatch = f
		default:
			return errors.Errorf("%s takes a BatchFunc, got %T", h, fn)
		}
	default:
		return errors.Wrapf(ErrUnknownHook, "%q", h)
	}
	return nil
}

// Lookup returns the function of the hook named h, nil when unset.
func (t Transforms) Lookup(h Hook) (any, error) {
	switch h {
	case PreTensorTransform:
		return orNil(t.PreTensor), nil
	case ToTensorTransform:
		return orNil(t.ToTensor), nil
	case PostTensorTransform:
		return orNil(t.PostTensor), nil
	case Collate:
		if t.Collate == nil {
			return nil, nil
		}
		return t.Collate, nil
	case PerBatchTransform:
		if t.PerBatch == nil {
			return nil, nil
		}
		return t.PerBatch, nil
	default:
		return nil, errors.Wrapf(ErrUnknownHook, "%q", h)
	}
}

// Names returns the hooks that are set, in execution order.
func (t Transforms) Names() []Hook {
	var names []Hook
	for _, h := range Hooks {
		if fn, _ := t.Lookup(h); fn != nil {
			names = append(names, h)
		}
	}
	return names
}

// ParseHook returns the hook named s.
func ParseHook(s string) (Hook, error) {
	for _, h := range Hooks {
		if string(h) == s {
			return h, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownHook, "%q", s)
}

func orNil(f SampleFunc) any {
	if f == nil {
		return nil
	}
	return f
}
