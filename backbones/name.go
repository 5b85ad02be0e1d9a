// Package backbones - Feature extractor registries for image tasks.
//
// Backbones are resolved by name from a registry.Registry. Pretrained weights
// are fetched as ONNX files through a WeightsFetcher; when the weight store is
// unreachable the backbone is built untrained instead (see WithPretrainedFallback).
package backbones

import (
	"github.com/pkg/errors"
)

// Name is a ResNet family variant.
type Name string

const (
	ResNet18         Name = "resnet18"
	ResNet34         Name = "resnet34"
	ResNet50         Name = "resnet50"
	ResNet101        Name = "resnet101"
	ResNet152        Name = "resnet152"
	ResNeXt50x32x4d  Name = "resnext50_32x4d"
	ResNeXt101x32x8d Name = "resnext101_32x8d"
)

// Names lists the variants in registration order.
var Names = []Name{ResNet18, ResNet34, ResNet50, ResNet101, ResNet152, ResNeXt50x32x4d, ResNeXt101x32x8d}

// ErrUnknownName is returned for names outside of Names.
var ErrUnknownName = errors.New("backbones: unknown backbone name")

// FeatureWidth returns the channel count of the variant's last stage.
func (n Name) FeatureWidth() int {
	switch n {
	case ResNet18, ResNet34:
		return 512
	default:
		return 2048
	}
}

// Valid reports whether n is one of Names.
func (n Name) Valid() bool {
	for _, v := range Names {
		if v == n {
			return true
		}
	}
	return false
}

// ParseName returns the variant named s.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", errors.Wrapf(ErrUnknownName, "%q", s)
	}
	return n, nil
}
