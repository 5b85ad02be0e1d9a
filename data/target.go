package data

import (
	"github.com/pkg/errors"
)

// ErrInvalidTarget is returned for malformed annotations, e.g. mismatched box
// and label counts or inverted boxes.
var ErrInvalidTarget = errors.New("data: invalid target")

// DetectionTarget is the ground truth of one image for object detection.
//
// All five sequences have the same length, one entry per object.
type DetectionTarget struct {
	// Boxes are [xmin, ymin, xmax, ymax] in absolute pixel coordinates.
	Boxes []Box `json:"boxes"`
	// Labels are class indices.
	Labels []int `json:"labels"`
	// ImageID identifies the image within its dataset.
	ImageID int `json:"image_id"`
	// Area is box width * box height in pixels.
	Area []float64 `json:"area"`
	// IsCrowd holds 0/1 crowd flags.
	IsCrowd []int `json:"iscrowd"`
}

// Len returns the number of objects.
func (t DetectionTarget) Len() int {
	return len(t.Boxes)
}

// Validate checks the length and coordinate invariants.
func (t DetectionTarget) Validate() error {
	n := len(t.Boxes)
	if len(t.Labels) != n || len(t.Area) != n || len(t.IsCrowd) != n {
		return errors.Wrapf(ErrInvalidTarget,
			"image %d: %d boxes, %d labels, %d areas, %d crowd flags",
			t.ImageID, n, len(t.Labels), len(t.Area), len(t.IsCrowd))
	}
	for i, b := range t.Boxes {
		if !b.Valid() {
			return errors.Wrapf(ErrInvalidTarget, "image %d: box %d %s is empty or inverted", t.ImageID, i, b)
		}
		if t.IsCrowd[i] != 0 && t.IsCrowd[i] != 1 {
			return errors.Wrapf(ErrInvalidTarget, "image %d: crowd flag %d is %d", t.ImageID, i, t.IsCrowd[i])
		}
	}
	return nil
}

// Clone returns a deep copy of t.
func (t DetectionTarget) Clone() DetectionTarget {
	return DetectionTarget{
		Boxes:   append([]Box(nil), t.Boxes...),
		Labels:  append([]int(nil), t.Labels...),
		ImageID: t.ImageID,
		Area:    append([]float64(nil), t.Area...),
		IsCrowd: append([]int(nil), t.IsCrowd...),
	}
}

// Add appends one object, computing its area.
func (t *DetectionTarget) Add(box Box, label int, crowd bool) {
	t.Boxes = append(t.Boxes, box)
	t.Labels = append(t.Labels, label)
	t.Area = append(t.Area, box.Width()*box.Height())
	flag := 0
	if crowd {
		flag = 1
	}
	t.IsCrowd = append(t.IsCrowd, flag)
}

// ReformatBBox converts a normalized [xmin, ymin, width, height] box (fractions
// of the image size) to absolute [xmin, ymin, xmax, ymax] pixels.
//
// Arguments:
//   - xmin, ymin, boxW, boxH: The normalized box.
//   - imgW, imgH: The image size in pixels.
//
// Returns:
//   - Box: The absolute box.
//   - float64: The box area in pixels.
//
// @example
// box, area := ReformatBBox(0.1, 0.2, 0.5, 0.25, 640, 480)
// // box = [64, 96, 384, 216], area = 320 * 120
func ReformatBBox(xmin, ymin, boxW, boxH, imgW, imgH float64) (Box, float64) {
	xmin *= imgW
	ymin *= imgH
	boxW *= imgW
	boxH *= imgH
	return Box{XMin: xmin, YMin: ymin, XMax: xmin + boxW, YMax: ymin + boxH}, boxW * boxH
}
