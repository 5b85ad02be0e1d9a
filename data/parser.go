package data

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/annotations"
	"github.com/nvr-ai/go-vision/images"
)

// ParserDataSource loads object detection data through an annotation parser
// (COCO, VOC, VIA or a custom one).
//
// Every record becomes one sample with INPUT set to the image path and TARGET to
// a DetectionTarget. The class map, background included, is recorded on the Dataset.
// Image ids come from the parser when it sets Record.HasImageID, otherwise they
// count from 1 in record order. Duplicate ids fail with ErrInvalidTarget.
type ParserDataSource struct {
	Parser annotations.Parser
	Logger logrus.FieldLogger
}

// LoadData implements DataSource.
func (p ParserDataSource) LoadData(ctx context.Context, src Source, ds *Dataset) ([]Sample, error) {
	if p.Parser == nil {
		return nil, errors.Wrap(ErrInvalidSource, "no annotation parser")
	}
	if src.AnnotationFile == "" {
		return nil, errors.Wrap(ErrInvalidSource, "annotation data source needs an annotation file")
	}

	parsed, err := p.Parser.Parse(ctx, src.Folder, src.AnnotationFile)
	if err != nil {
		return nil, err
	}
	if parsed.ClassMap == nil {
		parsed.ClassMap = annotations.NewClassMap(nil)
	}

	samples := make([]Sample, 0, len(parsed.Records))
	seen := make(map[int]string, len(parsed.Records))
	for i, rec := range parsed.Records {
		target := DetectionTarget{ImageID: i + 1}
		if rec.HasImageID {
			target.ImageID = rec.ImageID
		}
		if prev, ok := seen[target.ImageID]; ok {
			return nil, errors.Wrapf(ErrInvalidTarget, "%s: image id %d already used by %s", rec.Filepath, target.ImageID, prev)
		}
		seen[target.ImageID] = rec.Filepath
		for _, obj := range rec.Objects {
			label, err := parsed.ClassMap.Index(obj.Label)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidTarget, "%s: %v", rec.Filepath, err)
			}
			target.Add(Box{XMin: obj.XMin, YMin: obj.YMin, XMax: obj.XMax, YMax: obj.YMax}, label, obj.IsCrowd)
		}
		if err := target.Validate(); err != nil {
			return nil, errors.Wrapf(err, "%s", rec.Filepath)
		}
		samples = append(samples, Sample{Input: rec.Filepath, Target: target})
	}

	ds.SetClasses(parsed.ClassMap.Names())
	ds.setSamples(len(samples))
	loggerOrStandard(p.Logger).WithFields(logrus.Fields{
		"annotations": src.AnnotationFile,
		"samples":     len(samples),
		"classes":     parsed.ClassMap.Len(),
	}).Debug("parsed annotations")
	return samples, nil
}

// LoadSample implements DataSource.
func (ParserDataSource) LoadSample(ctx context.Context, s Sample, _ *Dataset) (Sample, error) {
	return loadImageSample(ctx, s)
}

// DetectionPathsDataSource loads unannotated images for object detection
// prediction. Every sample carries an empty DetectionTarget.
type DetectionPathsDataSource struct {
	Extensions []string
}

// LoadData implements DataSource.
func (p DetectionPathsDataSource) LoadData(ctx context.Context, src Source, ds *Dataset) ([]Sample, error) {
	paths := src.Files
	if src.Folder != "" {
		var err error
		paths, err = images.ListImageFiles(src.Folder, p.Extensions...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list images in %s", src.Folder)
		}
	} else if len(paths) == 0 {
		return nil, errors.Wrap(ErrInvalidSource, "detection files data source needs a folder or files")
	}

	samples := make([]Sample, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !images.IsImageFile(path, p.Extensions...) {
			continue
		}
		samples = append(samples, Sample{Input: path, Target: DetectionTarget{ImageID: len(samples) + 1}})
	}
	ds.setSamples(len(samples))
	return samples, nil
}

// LoadSample implements DataSource.
func (DetectionPathsDataSource) LoadSample(ctx context.Context, s Sample, _ *Dataset) (Sample, error) {
	return loadImageSample(ctx, s)
}
