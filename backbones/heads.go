package backbones

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-vision/registry"
)

// Detection head names.
const (
	RetinaNet  = "retinanet"
	FasterRCNN = "faster_rcnn"
)

// HeadArgs are the arguments of a detection head factory.
type HeadArgs struct {
	// NumClasses counts the background class.
	NumClasses int
	Backbone   *Backbone
}

// Head is a detection head attached to a backbone.
type Head struct {
	Name       string    `json:"name" yaml:"name"`
	NumClasses int       `json:"num_classes" yaml:"num_classes"`
	Backbone   *Backbone `json:"backbone" yaml:"backbone"`
}

// HeadRegistry maps head names to factories.
type HeadRegistry = registry.Registry[*Head, HeadArgs]

// NewDetectionHeads returns the RetinaNet and Faster R-CNN heads.
func NewDetectionHeads() *HeadRegistry {
	reg := registry.New[*Head, HeadArgs]("heads")
	for _, name := range []string{RetinaNet, FasterRCNN} {
		reg.MustRegister(head(name), name,
			registry.WithType("detection-head"),
			registry.WithMetadata("package", "torchvision"),
		)
	}
	return reg
}

func head(name string) registry.Factory[*Head, HeadArgs] {
	return func(_ context.Context, args HeadArgs) (*Head, error) {
		if args.NumClasses < 2 {
			return nil, errors.Wrapf(ErrInvalidArgs, "%s needs background plus at least one class, got %d classes", name, args.NumClasses)
		}
		if args.Backbone == nil {
			return nil, errors.Wrapf(ErrInvalidArgs, "%s needs a backbone", name)
		}
		return &Head{Name: name, NumClasses: args.NumClasses, Backbone: args.Backbone}, nil
	}
}
