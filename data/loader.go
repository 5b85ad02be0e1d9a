package data

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-vision/images"
)

// loadImageSample decodes a path INPUT into an image.Image and completes the
// metadata. An image INPUT is kept as is, so loading twice yields the same sample.
func loadImageSample(ctx context.Context, s Sample) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	out := s
	out.Metadata = s.Metadata.Clone()

	switch in := s.Input.(type) {
	case image.Image:
		if out.Metadata == nil {
			size := images.SizeOf(in)
			out.Metadata = &Metadata{Height: size.Height, Width: size.Width}
		}
		return out, nil
	case string:
		img, err := images.Load(in)
		if err != nil {
			return Sample{}, err
		}
		size := images.SizeOf(img)
		if out.Metadata == nil {
			out.Metadata = &Metadata{}
		}
		out.Metadata.Path = in
		out.Metadata.Height = size.Height
		out.Metadata.Width = size.Width
		out.Input = img
		return out, nil
	default:
		return Sample{}, errors.Errorf("cannot load sample input of type %T", s.Input)
	}
}
