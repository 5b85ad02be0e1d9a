package transforms

import (
	"context"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vision/data"
	"github.com/nvr-ai/go-vision/images"
)

// ImageNet channel statistics for inputs scaled to [0, 1].
var (
	ImageNetMean = []float32{0.485, 0.456, 0.406}
	ImageNetStd  = []float32{0.229, 0.224, 0.225}
)

// LetterboxFill is the padding color of DetectionDefaults.
var LetterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Resize returns a ValueFunc scaling an image.Image to width x height.
func Resize(width, height int) ValueFunc {
	return func(v any) (any, error) {
		img, ok := v.(image.Image)
		if !ok {
			return nil, errors.Errorf("resize expects an image.Image, got %T", v)
		}
		return images.Resize(img, width, height), nil
	}
}

// ToTensor converts an image.Image into a float32 CHW tensor with values in [0, 1].
func ToTensor(v any) (any, error) {
	img, ok := v.(image.Image)
	if !ok {
		return nil, errors.Errorf("to tensor expects an image.Image, got %T", v)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	backing := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			backing[i] = float32(r>>8) / 255
			backing[plane+i] = float32(g>>8) / 255
			backing[2*plane+i] = float32(b>>8) / 255
		}
	}
	return tensor.New(tensor.WithShape(3, height, width), tensor.WithBacking(backing)), nil
}

// AsTensor converts an integer class index into an int64 scalar tensor.
func AsTensor(v any) (any, error) {
	switch x := v.(type) {
	case *tensor.Dense:
		return x, nil
	case int:
		return tensor.New(tensor.FromScalar(int64(x))), nil
	case int64:
		return tensor.New(tensor.FromScalar(x)), nil
	case int32:
		return tensor.New(tensor.FromScalar(int64(x))), nil
	default:
		return nil, errors.Errorf("as tensor expects an integer, got %T", v)
	}
}

// Normalize returns a ValueFunc standardizing a float32 CHW tensor per channel.
// The input tensor is left untouched.
func Normalize(mean, std []float32) ValueFunc {
	return func(v any) (any, error) {
		t, ok := v.(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("normalize expects a *tensor.Dense, got %T", v)
		}
		shape := t.Shape()
		if len(shape) != 3 || shape[0] != len(mean) || len(mean) != len(std) {
			return nil, errors.Errorf("normalize: tensor shape %v does not match %d channel statistics", shape, len(mean))
		}
		for c, s := range std {
			if s == 0 || math32.IsNaN(s) || math32.IsInf(s, 0) {
				return nil, errors.Errorf("normalize: invalid std %v for channel %d", s, c)
			}
		}
		src, ok := t.Data().([]float32)
		if !ok {
			return nil, errors.Errorf("normalize expects float32 data, got %v", t.Dtype())
		}

		plane := shape[1] * shape[2]
		out := make([]float32, len(src))
		for c := range mean {
			for i := c * plane; i < (c+1)*plane; i++ {
				out[i] = (src[i] - mean[c]) / std[c]
			}
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
	}
}

// LetterboxSample resizes INPUT into a size x size canvas keeping the aspect
// ratio, and moves the boxes of a DetectionTarget along.
func LetterboxSample(size int) SampleFunc {
	return func(_ context.Context, s data.Sample) (data.Sample, error) {
		img, ok := s.Input.(image.Image)
		if !ok {
			return s, errors.Errorf("letterbox expects an image.Image input, got %T", s.Input)
		}
		lb := images.Letterbox(img, size, size, LetterboxFill)

		out := s
		out.Input = lb.Image
		out.Metadata = s.Metadata.Clone()
		if out.Metadata == nil {
			natural := images.SizeOf(img)
			out.Metadata = &data.Metadata{Width: natural.Width, Height: natural.Height}
		}
		if out.Metadata.Extra == nil {
			out.Metadata.Extra = map[string]any{}
		}
		out.Metadata.Extra["letterbox"] = map[string]float64{
			"scale":    lb.Scale,
			"pad_left": float64(lb.PadLeft),
			"pad_top":  float64(lb.PadTop),
		}

		if target, ok := s.Target.(data.DetectionTarget); ok {
			moved := target.Clone()
			for i, b := range moved.Boxes {
				moved.Boxes[i] = b.Scale(lb.Scale, lb.Scale, float64(lb.PadLeft), float64(lb.PadTop))
				moved.Area[i] = moved.Boxes[i].Width() * moved.Boxes[i].Height()
			}
			out.Target = moved
		}
		return out, nil
	}
}
