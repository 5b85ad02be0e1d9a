package annotations

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

type cocoFile struct {
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ID         int       `json:"id"`
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	BBox       []float64 `json:"bbox"`
	IsCrowd    int       `json:"iscrowd"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// COCOParser reads COCO object detection annotations (a single JSON file).
//
// Images without any annotation are skipped. Classes are ordered by category id.
type COCOParser struct{}

// Parse implements Parser.
func (COCOParser) Parse(ctx context.Context, folder, annotations string) (*Parsed, error) {
	raw, err := os.ReadFile(annotations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read COCO annotations")
	}

	var f cocoFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, parseErrorf("%s: %v", annotations, err)
	}

	cats := append([]cocoCategory(nil), f.Categories...)
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	names := make([]string, 0, len(cats))
	catNames := make(map[int]string, len(cats))
	for _, c := range cats {
		if err := checkLabel(c.Name); err != nil {
			return nil, parseErrorf("%s: category %d: %v", annotations, c.ID, err)
		}
		names = append(names, c.Name)
		catNames[c.ID] = c.Name
	}

	byImage := make(map[int][]Object, len(f.Images))
	for _, a := range f.Annotations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok := catNames[a.CategoryID]
		if !ok {
			return nil, parseErrorf("%s: annotation %d has unknown category %d", annotations, a.ID, a.CategoryID)
		}
		if len(a.BBox) != 4 {
			return nil, parseErrorf("%s: annotation %d has %d bbox values, want 4", annotations, a.ID, len(a.BBox))
		}
		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		byImage[a.ImageID] = append(byImage[a.ImageID], Object{
			Label:   name,
			XMin:    x,
			YMin:    y,
			XMax:    x + w,
			YMax:    y + h,
			IsCrowd: a.IsCrowd != 0,
		})
	}

	parsed := &Parsed{ClassMap: NewClassMap(names)}
	for _, img := range f.Images {
		objs, ok := byImage[img.ID]
		if !ok {
			continue
		}
		parsed.Records = append(parsed.Records, Record{
			ImageID:    img.ID,
			HasImageID: true,
			Filepath:   filepath.Join(folder, img.FileName),
			Width:      img.Width,
			Height:     img.Height,
			Objects:    objs,
		})
	}
	return parsed, nil
}
