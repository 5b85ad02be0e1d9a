package data

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/images"
)

// PathsDataSource loads image classification data from a folder of class
// directories, or from explicit file paths.
//
// With a folder, every sub-directory is a class and every image below it
// (recursively) is a sample of that class. Class indices follow the sorted
// directory names, or the position in Labels when set. A folder without
// sub-directories yields unlabeled samples.
type PathsDataSource struct {
	// Extensions restricts the accepted files; images.Extensions when empty.
	Extensions []string
	// Labels fixes the class order. Directories not in Labels are skipped.
	Labels []string
	// Logger receives per-folder debug output; logrus.StandardLogger() when nil.
	Logger logrus.FieldLogger
}

// LoadData implements DataSource.
func (p PathsDataSource) LoadData(ctx context.Context, src Source, ds *Dataset) ([]Sample, error) {
	var (
		samples []Sample
		err     error
	)
	switch {
	case src.Folder != "":
		samples, err = p.loadFolder(ctx, src.Folder, ds)
	case len(src.Files) > 0:
		samples, err = p.loadFiles(src.Files, src.Targets, ds)
	default:
		return nil, errors.Wrap(ErrInvalidSource, "paths data source needs a folder or files")
	}
	if err != nil {
		return nil, err
	}
	ds.setSamples(len(samples))
	return samples, nil
}

// LoadSample implements DataSource.
func (PathsDataSource) LoadSample(ctx context.Context, s Sample, _ *Dataset) (Sample, error) {
	return loadImageSample(ctx, s)
}

func (p PathsDataSource) loadFolder(ctx context.Context, dir string, ds *Dataset) ([]Sample, error) {
	log := loggerOrStandard(p.Logger)

	classes, err := images.ListSubdirectories(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list class folders in %s", dir)
	}

	if len(classes) == 0 {
		files, err := images.ListImageFiles(dir, p.Extensions...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list images in %s", dir)
		}
		log.WithFields(logrus.Fields{"folder": dir, "samples": len(files)}).Debug("loaded unlabeled folder")
		samples := make([]Sample, len(files))
		for i, f := range files {
			samples[i] = Sample{Input: f}
		}
		return samples, nil
	}

	if len(p.Labels) > 0 {
		classes = p.Labels
	}
	ds.SetClasses(classes)

	var samples []Sample
	for idx, class := range classes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := p.walk(filepath.Join(dir, class))
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"class": class, "target": idx, "samples": len(files)}).Debug("loaded class folder")
		for _, f := range files {
			samples = append(samples, Sample{Input: f, Target: idx})
		}
	}
	return samples, nil
}

// walk lists the images below root in lexical order.
func (p PathsDataSource) walk(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && images.IsImageFile(path, p.Extensions...) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}
	sort.Strings(files)
	return files, nil
}

func (p PathsDataSource) loadFiles(paths []string, targets []any, ds *Dataset) ([]Sample, error) {
	if targets != nil && len(targets) != len(paths) {
		return nil, errors.Wrapf(ErrInvalidTarget, "%d files but %d targets", len(paths), len(targets))
	}
	if len(p.Labels) > 0 {
		ds.SetClasses(p.Labels)
	}

	samples := make([]Sample, 0, len(paths))
	for i, path := range paths {
		if !images.IsImageFile(path, p.Extensions...) {
			continue
		}
		s := Sample{Input: path}
		if targets != nil {
			s.Target = targets[i]
		}
		samples = append(samples, s)
	}
	return samples, nil
}
