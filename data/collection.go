package data

import (
	"context"
	"iter"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/images"
)

// DefaultLabelField is the collection field holding detections.
const DefaultLabelField = "ground_truth"

// DefaultCrowdAttribute is the detection attribute holding the crowd flag.
const DefaultCrowdAttribute = "iscrowd"

// Detection is one labeled box of a collection sample.
type Detection struct {
	Label string `json:"label"`
	// BoundingBox is [x, y, width, height] as fractions of the image size.
	BoundingBox [4]float64 `json:"bounding_box"`
	// Attributes holds per-detection values such as the crowd flag.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CollectionSample is one image of an in-memory labeled collection.
type CollectionSample struct {
	Filepath string `json:"filepath"`
	// Width and Height are computed from the image header when zero.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Fields maps a label field name to its detections.
	Fields map[string][]Detection `json:"fields,omitempty"`
}

// Collection is an in-memory dataset of labeled images.
//
// Samples must yield the same order on every pass: image ids are assigned by
// position.
type Collection interface {
	Samples() iter.Seq[CollectionSample]
	// DefaultClasses returns the class list, or nil to derive it from the labels.
	DefaultClasses() []string
}

// SampleCollection is a slice backed Collection.
type SampleCollection struct {
	Items   []CollectionSample `json:"samples"`
	Classes []string           `json:"classes,omitempty"`
}

// Samples implements Collection. A nil collection is empty.
func (c *SampleCollection) Samples() iter.Seq[CollectionSample] {
	if c == nil {
		return func(func(CollectionSample) bool) {}
	}
	return slices.Values(c.Items)
}

// DefaultClasses implements Collection.
func (c *SampleCollection) DefaultClasses() []string {
	if c == nil {
		return nil
	}
	return c.Classes
}

// CollectionDataSource loads object detection data from a Collection.
//
// Boxes are converted from normalized [x, y, w, h] to absolute corners, a
// missing crowd flag counts as 0, and image ids count from 1 in collection order.
type CollectionDataSource struct {
	// LabelField selects the detections; DefaultLabelField when empty.
	LabelField string
	// CrowdAttribute names the crowd flag; DefaultCrowdAttribute when empty.
	CrowdAttribute string
	Logger         logrus.FieldLogger
}

func (c CollectionDataSource) labelField() string {
	if c.LabelField == "" {
		return DefaultLabelField
	}
	return c.LabelField
}

func (c CollectionDataSource) crowdAttribute() string {
	if c.CrowdAttribute == "" {
		return DefaultCrowdAttribute
	}
	return c.CrowdAttribute
}

// Classes returns the collection's default classes, or its sorted distinct labels.
func (c CollectionDataSource) Classes(coll Collection) []string {
	if classes := coll.DefaultClasses(); len(classes) > 0 {
		return classes
	}
	field := c.labelField()
	seen := map[string]struct{}{}
	for s := range coll.Samples() {
		for _, d := range s.Fields[field] {
			seen[d.Label] = struct{}{}
		}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)
	return classes
}

// LoadData implements DataSource.
func (c CollectionDataSource) LoadData(ctx context.Context, src Source, ds *Dataset) ([]Sample, error) {
	if src.Collection == nil {
		return nil, errors.Wrap(ErrInvalidSource, "collection data source needs a collection")
	}

	classes := c.Classes(src.Collection)
	classToIdx := make(map[string]int, len(classes))
	for i, name := range classes {
		classToIdx[name] = i
	}
	ds.SetClasses(classes)

	field := c.labelField()
	crowdKey := c.crowdAttribute()

	var samples []Sample
	imageID := 1
	for item := range src.Collection.Samples() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w, h := item.Width, item.Height
		if w == 0 || h == 0 {
			size, err := images.DecodeSize(item.Filepath)
			if err != nil {
				return nil, err
			}
			w, h = size.Width, size.Height
		}

		target := DetectionTarget{ImageID: imageID}
		for _, d := range item.Fields[field] {
			label, ok := classToIdx[d.Label]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidTarget, "%s: label %q is not one of the collection classes", item.Filepath, d.Label)
			}
			crowd, err := crowdFlag(d.Attributes[crowdKey])
			if err != nil {
				return nil, errors.Wrapf(err, "%s", item.Filepath)
			}
			bb := d.BoundingBox
			box, area := ReformatBBox(bb[0], bb[1], bb[2], bb[3], float64(w), float64(h))
			target.Boxes = append(target.Boxes, box)
			target.Labels = append(target.Labels, label)
			target.Area = append(target.Area, area)
			target.IsCrowd = append(target.IsCrowd, crowd)
		}
		if err := target.Validate(); err != nil {
			return nil, errors.Wrapf(err, "%s", item.Filepath)
		}

		samples = append(samples, Sample{Input: item.Filepath, Target: target})
		imageID++
	}

	ds.setSamples(len(samples))
	loggerOrStandard(c.Logger).WithFields(logrus.Fields{
		"label_field": field,
		"samples":     len(samples),
		"classes":     len(classes),
	}).Debug("loaded collection")
	return samples, nil
}

// LoadSample implements DataSource.
func (CollectionDataSource) LoadSample(ctx context.Context, s Sample, _ *Dataset) (Sample, error) {
	return loadImageSample(ctx, s)
}

func crowdFlag(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		return boolInt(x), nil
	case int:
		return boolInt(x != 0), nil
	case int64:
		return boolInt(x != 0), nil
	case float64:
		return boolInt(x != 0), nil
	default:
		return 0, errors.Wrapf(ErrInvalidTarget, "crowd flag of type %T", v)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
