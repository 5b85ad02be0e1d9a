// Package images - Image loading and resizing utilities.
package images

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Size is the natural size of an image in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Load decodes the image file at path. EXIF orientation is not applied, so the
// bounds always match DecodeSize and annotation boxes keep their frame.
//
// Arguments:
//   - path: Path to the image file.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: Filesystem errors are returned wrapped; errors.Is(err, fs.ErrNotExist) still holds.
func Load(path string) (image.Image, error) {
	if FormatFromPath(path) == FormatWEBP {
		return loadWebP(path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	return img, nil
}

func loadWebP(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	defer f.Close()

	img, err := webp.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode webp %s", path)
	}
	return img, nil
}

// DecodeSize reads only the image header at path and returns its dimensions.
func DecodeSize(path string) (Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return Size{}, errors.Wrapf(err, "failed to open image %s", path)
	}
	defer f.Close()

	var cfg image.Config
	if FormatFromPath(path) == FormatWEBP {
		cfg, err = webp.DecodeConfig(f)
	} else {
		// imaging registers the bmp and tiff decoders on import.
		cfg, _, err = image.DecodeConfig(f)
	}
	if err != nil {
		return Size{}, errors.Wrapf(err, "failed to decode image header %s", path)
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// SizeOf returns the size of a decoded image.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// Resize resizes img to width x height with bilinear interpolation.
func Resize(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// LetterboxResult describes how an image was placed inside a letterbox.
type LetterboxResult struct {
	// Image is the letterboxed image.
	Image image.Image
	// Scale is the factor applied to both axes.
	Scale float64
	// PadLeft is the left padding in pixels.
	PadLeft int
	// PadTop is the top padding in pixels.
	PadTop int
}

// Letterbox resizes img to fit inside width x height while keeping its aspect
// ratio, and pads the remainder with fill.
//
// Arguments:
//   - img: The image to resize.
//   - width: The target width.
//   - height: The target height.
//   - fill: The padding color; nil means black.
//
// Returns:
//   - LetterboxResult: The padded image with the scale and offsets applied.
//
// @example
// res := Letterbox(img, 640, 640, color.Black)
// x := box.XMin*res.Scale + float64(res.PadLeft)
func Letterbox(img image.Image, width, height int, fill color.Color) LetterboxResult {
	if fill == nil {
		fill = color.Black
	}
	src := SizeOf(img)

	scale := math.Min(float64(width)/float64(src.Width), float64(height)/float64(src.Height))
	newWidth := max(1, int(float64(src.Width)*scale))
	newHeight := max(1, int(float64(src.Height)*scale))
	resized := Resize(img, newWidth, newHeight)

	padLeft := (width - newWidth) / 2
	padTop := (height - newHeight) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{fill}, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Over)

	return LetterboxResult{Image: dst, Scale: scale, PadLeft: padLeft, PadTop: padTop}
}
