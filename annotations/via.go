package annotations

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// DefaultVIALabelField is the region attribute holding the class name.
const DefaultVIALabelField = "label"

type viaImage struct {
	Filename string          `json:"filename"`
	Regions  json.RawMessage `json:"regions"`
}

type viaRegion struct {
	Shape      viaShape                   `json:"shape_attributes"`
	Attributes map[string]json.RawMessage `json:"region_attributes"`
}

type viaShape struct {
	Name    string    `json:"name"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Width   float64   `json:"width"`
	Height  float64   `json:"height"`
	PointsX []float64 `json:"all_points_x"`
	PointsY []float64 `json:"all_points_y"`
}

// VIAParser reads VGG Image Annotator exports. Rectangles are used as is and
// polygons are reduced to their bounding box.
//
// Records are ordered by file name and numbered 1, 2, ... Classes are sorted by name.
type VIAParser struct {
	// LabelField is the region attribute holding the class name.
	LabelField string
}

// Parse implements Parser.
func (p VIAParser) Parse(ctx context.Context, folder, annotations string) (*Parsed, error) {
	field := p.LabelField
	if field == "" {
		field = DefaultVIALabelField
	}

	raw, err := os.ReadFile(annotations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read VIA annotations")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, parseErrorf("%s: %v", annotations, err)
	}
	// Full project files nest the image metadata.
	if meta, ok := top["_via_img_metadata"]; ok {
		top = nil
		if err := json.Unmarshal(meta, &top); err != nil {
			return nil, parseErrorf("%s: _via_img_metadata: %v", annotations, err)
		}
	}

	imgs := make([]viaImage, 0, len(top))
	for key, msg := range top {
		var img viaImage
		if err := json.Unmarshal(msg, &img); err != nil {
			return nil, parseErrorf("%s: entry %q: %v", annotations, key, err)
		}
		if img.Filename == "" {
			return nil, parseErrorf("%s: entry %q has no filename", annotations, key)
		}
		imgs = append(imgs, img)
	}
	sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].Filename < imgs[j].Filename })

	var labels []string
	records := make([]Record, 0, len(imgs))
	for i, img := range imgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regions, err := viaRegions(img.Regions)
		if err != nil {
			return nil, parseErrorf("%s: %s: %v", annotations, img.Filename, err)
		}

		rec := Record{ImageID: i + 1, HasImageID: true, Filepath: filepath.Join(folder, img.Filename)}
		for _, r := range regions {
			obj, err := viaObject(r, field)
			if err != nil {
				return nil, parseErrorf("%s: %s: %v", annotations, img.Filename, err)
			}
			labels = append(labels, obj.Label)
			rec.Objects = append(rec.Objects, obj)
		}
		records = append(records, rec)
	}

	return &Parsed{Records: records, ClassMap: NewSortedClassMap(labels)}, nil
}

// viaRegions accepts both the list form (VIA 2) and the keyed form (VIA 1).
func viaRegions(raw json.RawMessage) ([]viaRegion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var regions []viaRegion
		err := json.Unmarshal(raw, &regions)
		return regions, err
	}

	var keyed map[string]viaRegion
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	regions := make([]viaRegion, 0, len(keys))
	for _, k := range keys {
		regions = append(regions, keyed[k])
	}
	return regions, nil
}

func viaObject(r viaRegion, field string) (Object, error) {
	rawLabel, ok := r.Attributes[field]
	if !ok {
		return Object{}, errors.Errorf("region without %q attribute", field)
	}
	var label string
	if err := json.Unmarshal(rawLabel, &label); err != nil || label == "" {
		return Object{}, errors.Errorf("region attribute %q is not a class name", field)
	}
	if err := checkLabel(label); err != nil {
		return Object{}, err
	}

	switch r.Shape.Name {
	case "rect":
		return Object{
			Label: label,
			XMin:  r.Shape.X,
			YMin:  r.Shape.Y,
			XMax:  r.Shape.X + r.Shape.Width,
			YMax:  r.Shape.Y + r.Shape.Height,
		}, nil
	case "polygon", "polyline":
		if len(r.Shape.PointsX) == 0 || len(r.Shape.PointsX) != len(r.Shape.PointsY) {
			return Object{}, errors.Errorf("polygon with %d x and %d y points",
				len(r.Shape.PointsX), len(r.Shape.PointsY))
		}
		return Object{
			Label: label,
			XMin:  slices.Min(r.Shape.PointsX),
			YMin:  slices.Min(r.Shape.PointsY),
			XMax:  slices.Max(r.Shape.PointsX),
			YMax:  slices.Max(r.Shape.PointsY),
		}, nil
	default:
		return Object{}, errors.Errorf("unsupported region shape %q", r.Shape.Name)
	}
}
