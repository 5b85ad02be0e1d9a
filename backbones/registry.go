package backbones

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/registry"
)

const (
	// ClassificationNamespace holds the image classification backbones.
	ClassificationNamespace = "vision"
	// ClassificationType is the registry type of classification backbones.
	ClassificationType = "resnet"
	// DetectionType is the registry type of detection backbones.
	DetectionType = "resnet-fpn"
	// FPNFeatures is the channel count of every feature pyramid level.
	FPNFeatures = 256
	// MaxTrainableLayers is the number of ResNet stages.
	MaxTrainableLayers = 5
)

// ErrInvalidArgs is returned for out of range factory arguments.
var ErrInvalidArgs = errors.New("backbones: invalid arguments")

// Registry maps backbone names to factories.
type Registry = registry.Registry[*Backbone, Args]

// NewClassificationBackbones returns the ResNet classification backbones in the
// ClassificationNamespace.
//
// Arguments:
//   - fetcher: Provides the pretrained weights.
//   - logger: Receives the pretrained fallback warning.
//
// Returns:
//   - *Registry: One entry per Names variant.
//
// @example
// reg := NewClassificationBackbones(NewHTTPFetcher("", "", time.Minute, nil), nil)
// b, err := reg.Resolve(ctx, "resnet18", DefaultArgs(), registry.WithNamespace(ClassificationNamespace))
func NewClassificationBackbones(fetcher WeightsFetcher, logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reg := registry.New[*Backbone, Args]("backbones")
	for _, n := range Names {
		reg.MustRegister(
			WithPretrainedFallback(resnet(n, fetcher), logger.WithField("backbone", n)),
			string(n),
			registry.WithNamespace(ClassificationNamespace),
			registry.WithType(ClassificationType),
			registry.WithMetadata("package", "torchvision"),
			registry.WithMetadata("num_features", strconv.Itoa(n.FeatureWidth())),
		)
	}
	return reg
}

// NewDetectionBackbones returns the ResNet feature pyramid backbones in the
// default namespace.
func NewDetectionBackbones(fetcher WeightsFetcher, logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reg := registry.New[*Backbone, Args]("backbones")
	for _, n := range Names {
		reg.MustRegister(
			WithPretrainedFallback(resnetFPN(n, fetcher), logger.WithField("backbone", n)),
			string(n),
			registry.WithType(DetectionType),
			registry.WithMetadata("package", "torchvision"),
			registry.WithMetadata("num_features", strconv.Itoa(FPNFeatures)),
		)
	}
	return reg
}

func resnet(n Name, fetcher WeightsFetcher) Factory {
	return func(ctx context.Context, args Args) (*Backbone, error) {
		b := &Backbone{
			Name:        string(n),
			Variant:     n,
			Kind:        ClassificationType,
			NumFeatures: n.FeatureWidth(),
		}
		if err := fetchWeights(ctx, fetcher, b, string(n), args.Pretrained); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func resnetFPN(n Name, fetcher WeightsFetcher) Factory {
	return func(ctx context.Context, args Args) (*Backbone, error) {
		if args.TrainableLayers < 0 || args.TrainableLayers > MaxTrainableLayers {
			return nil, errors.Wrapf(ErrInvalidArgs, "trainable layers %d not in [0, %d]", args.TrainableLayers, MaxTrainableLayers)
		}
		b := &Backbone{
			Name:            string(n),
			Variant:         n,
			Kind:            DetectionType,
			NumFeatures:     FPNFeatures,
			TrainableLayers: args.TrainableLayers,
		}
		if err := fetchWeights(ctx, fetcher, b, string(n)+"_fpn", args.Pretrained); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func fetchWeights(ctx context.Context, fetcher WeightsFetcher, b *Backbone, file string, pretrained bool) error {
	if !pretrained {
		return nil
	}
	if fetcher == nil {
		return errors.Wrap(ErrUnreachable, "no weights fetcher configured")
	}
	path, err := fetcher.Fetch(ctx, file)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch pretrained %s", b.Name)
	}
	b.Pretrained = true
	b.WeightsPath = path
	return nil
}
