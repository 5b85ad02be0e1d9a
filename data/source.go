package data

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSource is returned when a Source does not carry what a data source needs.
var ErrInvalidSource = errors.New("data: invalid source")

// DataSource turns a raw dataset description into samples.
//
// LoadData produces the list of samples whose INPUT still references the raw
// datum (usually a path) and may record the class count and names on ds.
// LoadSample decodes one sample. It never mutates its argument, and loading an
// already loaded sample returns it unchanged.
type DataSource interface {
	LoadData(ctx context.Context, src Source, ds *Dataset) ([]Sample, error)
	LoadSample(ctx context.Context, s Sample, ds *Dataset) (Sample, error)
}

// Source describes where a stage's data comes from. Only the fields relevant to
// the data source in use are read.
type Source struct {
	// Folder is a directory of images, or of class directories.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`
	// AnnotationFile is a COCO/VIA json file, or a VOC xml file or directory.
	AnnotationFile string `json:"annotation_file,omitempty" yaml:"annotation_file,omitempty"`
	// Files is an explicit list of image paths.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`
	// Targets pairs with Files. Nil for unlabeled files.
	Targets []any `json:"targets,omitempty" yaml:"targets,omitempty"`
	// Collection is an in-memory labeled collection.
	Collection Collection `json:"-" yaml:"-"`
}

// IsZero reports whether s describes no data at all.
func (s Source) IsZero() bool {
	return s.Folder == "" && s.AnnotationFile == "" && len(s.Files) == 0 && s.Collection == nil
}

// FromFolder describes a directory of images.
func FromFolder(dir string) Source {
	return Source{Folder: dir}
}

// FromAnnotations describes images in folder annotated by annotationFile.
func FromAnnotations(folder, annotationFile string) Source {
	return Source{Folder: folder, AnnotationFile: annotationFile}
}

// FromFiles describes explicit image paths with their targets. targets may be
// nil for unlabeled data.
func FromFiles(paths []string, targets []any) Source {
	return Source{Files: paths, Targets: targets}
}

// FromCollection describes an in-memory collection.
func FromCollection(c Collection) Source {
	return Source{Collection: c}
}

func loggerOrStandard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
