package transforms

import (
	"github.com/nvr-ai/go-vision/data"
)

// Default image sizes of the two tasks.
const (
	DefaultClassificationSize = 64
	DefaultDetectionSize      = 128
)

// ClassificationDefaults resizes INPUT to size x size, converts INPUT and
// TARGET to tensors and stacks them into a batch.
func ClassificationDefaults(size int) Transforms {
	return Transforms{
		PreTensor: ApplyToKeys(data.KeyInput, Resize(size, size)),
		ToTensor: Sequential(
			ApplyToKeys(data.KeyInput, ToTensor),
			ApplyToKeys(data.KeyTarget, AsTensor),
		),
		Collate: DefaultCollate,
	}
}

// DetectionDefaults letterboxes INPUT to size x size with the boxes, converts
// INPUT to a tensor normalized with ImageNet statistics and keeps the batch as lists.
func DetectionDefaults(size int) Transforms {
	return Transforms{
		PreTensor:  LetterboxSample(size),
		ToTensor:   ApplyToKeys(data.KeyInput, ToTensor),
		PostTensor: ApplyToKeys(data.KeyInput, Normalize(ImageNetMean, ImageNetStd)),
		Collate:    ListCollate,
	}
}
