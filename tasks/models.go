package tasks

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vision/annotations"
	"github.com/nvr-ai/go-vision/backbones"
	"github.com/nvr-ai/go-vision/registry"
	"github.com/nvr-ai/go-vision/transforms"
)

// ErrInvalidModel is returned for models that cannot be built from their arguments.
var ErrInvalidModel = errors.New("tasks: invalid model")

// ImageClassifier is a classification backbone sized for a dataset.
type ImageClassifier struct {
	Backbone   *backbones.Backbone `json:"backbone" yaml:"backbone"`
	NumClasses int                 `json:"num_classes" yaml:"num_classes"`
	Classes    []string            `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// NewImageClassifier resolves backbone from the classification namespace of reg.
//
// Arguments:
//   - ctx: Cancels weight downloads.
//   - reg: See backbones.NewClassificationBackbones.
//   - backbone: The backbone name, e.g. "resnet18".
//   - classes: The dataset classes; at least one.
//   - args: Backbone factory arguments.
//
// Returns:
//   - *ImageClassifier: The classifier.
//   - error: ErrInvalidModel, registry.ErrNotFound or a factory error.
func NewImageClassifier(ctx context.Context, reg *backbones.Registry, backbone string, classes []string, args backbones.Args) (*ImageClassifier, error) {
	if len(classes) == 0 {
		return nil, errors.Wrap(ErrInvalidModel, "classifier needs at least one class")
	}
	b, err := reg.Resolve(ctx, backbone, args, registry.WithNamespace(backbones.ClassificationNamespace))
	if err != nil {
		return nil, err
	}
	return &ImageClassifier{Backbone: b, NumClasses: len(classes), Classes: append([]string(nil), classes...)}, nil
}

// ObjectDetector is a detection head over a feature pyramid backbone.
type ObjectDetector struct {
	Head    *backbones.Head `json:"head" yaml:"head"`
	Classes []string        `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// NewObjectDetector resolves backbone from bbs and head from heads. The
// background class is prepended to classes when missing.
func NewObjectDetector(ctx context.Context, bbs *backbones.Registry, heads *backbones.HeadRegistry, backbone, head string, classes []string, args backbones.Args) (*ObjectDetector, error) {
	if len(classes) > 0 && classes[0] != annotations.Background {
		classes = append([]string{annotations.Background}, classes...)
	}
	if !heads.Contains(head) {
		return nil, errors.Wrapf(registry.ErrNotFound, "head %q", head)
	}
	b, err := bbs.Resolve(ctx, backbone, args)
	if err != nil {
		return nil, err
	}
	h, err := heads.Resolve(ctx, head, backbones.HeadArgs{NumClasses: len(classes), Backbone: b})
	if err != nil {
		return nil, err
	}
	return &ObjectDetector{Head: h, Classes: append([]string(nil), classes...)}, nil
}

// NumClasses returns the class count including background.
func (d *ObjectDetector) NumClasses() int {
	return d.Head.NumClasses
}

// AttachPredictions stores preds in the batch. Per-sample lists and tensors
// must have one entry per sample.
func AttachPredictions(b transforms.Batch, preds any) (transforms.Batch, error) {
	var n int
	switch p := preds.(type) {
	case nil:
		return b, errors.Wrap(ErrInvalidModel, "nil predictions")
	case []any:
		n = len(p)
	case tensor.Tensor:
		if len(p.Shape()) == 0 {
			return b, errors.Wrap(ErrInvalidModel, "scalar predictions")
		}
		n = p.Shape()[0]
	default:
		b.Preds = preds
		return b, nil
	}
	if n != b.Size {
		return b, errors.Wrapf(ErrInvalidModel, "%d predictions for %d samples", n, b.Size)
	}
	b.Preds = preds
	return b, nil
}

// PredictFunc runs a model over one batch.
type PredictFunc func(ctx context.Context, b transforms.Batch) (any, error)

// Predict runs fn over every predict batch of dm and returns the batches
// with their predictions attached.
func Predict(ctx context.Context, dm *DataModule, fn PredictFunc) ([]transforms.Batch, error) {
	var out []transforms.Batch
	for b, err := range dm.Batches(ctx, StagePredict) {
		if err != nil {
			return nil, err
		}
		preds, err := fn(ctx, b)
		if err != nil {
			return nil, errors.Wrap(err, "predict step failed")
		}
		b, err = AttachPredictions(b, preds)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
