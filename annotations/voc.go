package annotations

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type vocAnnotation struct {
	Filename string      `xml:"filename"`
	Size     vocSize     `xml:"size"`
	Objects  []vocObject `xml:"object"`
}

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
}

type vocObject struct {
	Name   string `xml:"name"`
	BndBox struct {
		XMin float64 `xml:"xmin"`
		YMin float64 `xml:"ymin"`
		XMax float64 `xml:"xmax"`
		YMax float64 `xml:"ymax"`
	} `xml:"bndbox"`
}

// VOCParser reads Pascal VOC annotations: one XML file per image, found in the
// annotations directory (or a single XML file).
//
// Image ids are assigned 1, 2, ... in file name order. Classes are sorted by name.
type VOCParser struct{}

// Parse implements Parser.
func (VOCParser) Parse(ctx context.Context, folder, annotations string) (*Parsed, error) {
	files, err := vocFiles(annotations)
	if err != nil {
		return nil, err
	}

	var labels []string
	records := make([]Record, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read VOC annotation")
		}
		var a vocAnnotation
		if err := xml.Unmarshal(raw, &a); err != nil {
			return nil, parseErrorf("%s: %v", file, err)
		}
		if a.Filename == "" {
			return nil, parseErrorf("%s: missing <filename>", file)
		}

		rec := Record{
			ImageID:    i + 1,
			HasImageID: true,
			Filepath:   filepath.Join(folder, a.Filename),
			Width:      a.Size.Width,
			Height:     a.Size.Height,
		}
		for _, o := range a.Objects {
			name := strings.TrimSpace(o.Name)
			if name == "" {
				return nil, parseErrorf("%s: object without <name>", file)
			}
			if err := checkLabel(name); err != nil {
				return nil, parseErrorf("%s: %v", file, err)
			}
			labels = append(labels, name)
			rec.Objects = append(rec.Objects, Object{
				Label: name,
				XMin:  o.BndBox.XMin,
				YMin:  o.BndBox.YMin,
				XMax:  o.BndBox.XMax,
				YMax:  o.BndBox.YMax,
			})
		}
		records = append(records, rec)
	}

	return &Parsed{Records: records, ClassMap: NewSortedClassMap(labels)}, nil
}

func vocFiles(annotations string) ([]string, error) {
	info, err := os.Stat(annotations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat VOC annotations")
	}
	if !info.IsDir() {
		return []string{annotations}, nil
	}

	entries, err := os.ReadDir(annotations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list VOC annotations")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			files = append(files, filepath.Join(annotations, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
