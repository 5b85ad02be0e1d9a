package transforms

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-vision/data"
)

// Pipeline applies a data source's loader and a set of transforms.
type Pipeline struct {
	// Source loads each sample first; skipped when nil.
	Source data.DataSource
	// Dataset is handed to Source.LoadSample.
	Dataset    *data.Dataset
	Transforms Transforms
}

// ProcessSample runs load, pre_tensor_transform, to_tensor_transform and
// post_tensor_transform on one sample.
func (p Pipeline) ProcessSample(ctx context.Context, s data.Sample) (data.Sample, error) {
	if p.Source != nil {
		var err error
		if s, err = p.Source.LoadSample(ctx, s, p.Dataset); err != nil {
			return s, errors.Wrap(err, "load sample")
		}
	}

	stages := []struct {
		hook Hook
		fn   SampleFunc
	}{
		{PreTensorTransform, p.Transforms.PreTensor},
		{ToTensorTransform, p.Transforms.ToTensor},
		{PostTensorTransform, p.Transforms.PostTensor},
	}
	for _, st := range stages {
		if st.fn == nil {
			continue
		}
		out, err := st.fn(ctx, s)
		if err != nil {
			return s, errors.Wrapf(err, "%s", st.hook)
		}
		s = out
	}
	return s, nil
}

// CollateBatch runs collate and per_batch_transform on processed samples.
func (p Pipeline) CollateBatch(ctx context.Context, samples []data.Sample) (Batch, error) {
	collate := p.Transforms.Collate
	if collate == nil {
		collate = ListCollate
	}
	b, err := collate(ctx, samples)
	if err != nil {
		return Batch{}, errors.Wrapf(err, "%s", Collate)
	}
	if p.Transforms.PerBatch != nil {
		if b, err = p.Transforms.PerBatch(ctx, b); err != nil {
			return Batch{}, errors.Wrapf(err, "%s", PerBatchTransform)
		}
	}
	return b, nil
}

// Process runs every hook over samples, in order, and returns the batch.
//
// Arguments:
//   - ctx: Cancels between samples.
//   - samples: The raw samples of one batch.
//
// Returns:
//   - Batch: The collated batch after per_batch_transform.
//   - error: The first failing stage, wrapped with its hook name.
func (p Pipeline) Process(ctx context.Context, samples []data.Sample) (Batch, error) {
	processed := make([]data.Sample, len(samples))
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		out, err := p.ProcessSample(ctx, s)
		if err != nil {
			return Batch{}, errors.Wrapf(err, "sample %d", i)
		}
		processed[i] = out
	}
	return p.CollateBatch(ctx, processed)
}
