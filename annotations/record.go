// Package annotations - Parsers for object detection annotation formats.
//
// Each parser turns an annotation file (or directory) plus an image folder into
// a list of records with absolute-pixel boxes and a class map. Mapping records
// into samples is done by the data package.
package annotations

import (
	"context"

	"github.com/pkg/errors"
)

// ErrParse is returned when an annotation file cannot be understood.
var ErrParse = errors.New("annotations: parse error")

// Object is one annotated object of an image.
type Object struct {
	// Label is the class name.
	Label string `json:"label"`
	// XMin, YMin, XMax, YMax are absolute pixel coordinates.
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
	// IsCrowd marks a box covering a crowd of objects.
	IsCrowd bool `json:"iscrowd"`
}

// Record is one image with its objects.
type Record struct {
	// ImageID is the id assigned by the annotation file. It is only meaningful
	// when HasImageID is set; COCO ids may start at 0.
	ImageID    int  `json:"image_id"`
	HasImageID bool `json:"has_image_id"`
	// Filepath is the path to the image file.
	Filepath string `json:"filepath"`
	// Width and Height are the image size from the annotations, 0 when unknown.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Objects are the annotated objects, possibly none.
	Objects []Object `json:"objects"`
}

// Parsed is the output of a parser.
type Parsed struct {
	Records  []Record
	ClassMap *ClassMap
}

// Parser reads annotations for the images in folder.
type Parser interface {
	Parse(ctx context.Context, folder, annotations string) (*Parsed, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, folder, annotations string) (*Parsed, error)

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, folder, annotations string) (*Parsed, error) {
	return f(ctx, folder, annotations)
}

// checkLabel rejects class names that would collide with Background at label 0.
func checkLabel(name string) error {
	if name == Background {
		return errors.Errorf("class name %q is reserved for label 0", Background)
	}
	return nil
}

func parseErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrParse, format, args...)
}
