// Package tasks - Image classification and object detection wiring.
//
// A Preprocess bundles the named data sources and per-stage transforms of a
// task. A DataModule loads every stage through one of those data sources and
// serves batches. ImageClassifier and ObjectDetector resolve their backbone
// (and head) from the registries.
package tasks

import (
	"context"
	"maps"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/annotations"
	"github.com/nvr-ai/go-vision/data"
	"github.com/nvr-ai/go-vision/registry"
	"github.com/nvr-ai/go-vision/transforms"
)

// Task names.
const (
	Classification = "classification"
	Detection      = "detection"
)

// Stage is a phase of the model lifecycle.
type Stage string

const (
	StageTrain   Stage = "train"
	StageVal     Stage = "val"
	StageTest    Stage = "test"
	StagePredict Stage = "predict"
)

// Stages lists the stages in lifecycle order.
var Stages = []Stage{StageTrain, StageVal, StageTest, StagePredict}

// Data source names.
const (
	DataSourceFolders    = "folders"
	DataSourceFiles      = "files"
	DataSourceCOCO       = "coco"
	DataSourceVOC        = "voc"
	DataSourceVIA        = "via"
	DataSourceCollection = "collection"
)

// ErrNoParser is returned when the detection "folders" data source has no parser.
var ErrNoParser = errors.New("tasks: no annotation parser configured")

// PreprocessOptions configures a Preprocess.
type PreprocessOptions struct {
	// ImageSize is the side of the square model input; the task default when 0.
	ImageSize int
	// Labels fixes the class order of classification folders.
	Labels []string
	// Parser reads the annotations of the detection "folders" data source.
	Parser annotations.Parser
	// Transforms overrides hooks of the default transforms, per stage.
	Transforms map[Stage]transforms.Transforms
	Logger     logrus.FieldLogger
}

// DataSources maps data source names to constructors.
type DataSources = registry.Registry[data.DataSource, PreprocessOptions]

// Preprocess holds the data sources and transforms of a task.
type Preprocess struct {
	task          string
	sources       *DataSources
	defaultSource string
	transforms    map[Stage]transforms.Transforms
	opts          PreprocessOptions
}

// PreprocessState is the serializable description of a Preprocess.
type PreprocessState struct {
	Task              string                      `json:"task" yaml:"task"`
	ImageSize         int                         `json:"image_size" yaml:"image_size"`
	DefaultDataSource string                      `json:"default_data_source" yaml:"default_data_source"`
	DataSources       []string                    `json:"data_sources" yaml:"data_sources"`
	Transforms        map[Stage][]transforms.Hook `json:"transforms" yaml:"transforms"`
}

func constant(ds data.DataSource) registry.Factory[data.DataSource, PreprocessOptions] {
	return func(context.Context, PreprocessOptions) (data.DataSource, error) {
		return ds, nil
	}
}

// NewClassificationDataSources returns the "folders" and "files" image
// classification data sources.
func NewClassificationDataSources() *DataSources {
	reg := registry.New[data.DataSource, PreprocessOptions]("classification data sources")
	paths := func(_ context.Context, o PreprocessOptions) (data.DataSource, error) {
		return data.PathsDataSource{Labels: o.Labels, Logger: o.Logger}, nil
	}
	reg.MustRegister(paths, DataSourceFolders, registry.WithType("paths"))
	reg.MustRegister(paths, DataSourceFiles, registry.WithType("paths"))
	return reg
}

// NewDetectionDataSources returns the object detection data sources: COCO,
// VOC and VIA annotation files, a custom parser over folders, unannotated
// files and in-memory collections.
func NewDetectionDataSources() *DataSources {
	reg := registry.New[data.DataSource, PreprocessOptions]("detection data sources")
	parser := func(p annotations.Parser) registry.Factory[data.DataSource, PreprocessOptions] {
		return func(_ context.Context, o PreprocessOptions) (data.DataSource, error) {
			return data.ParserDataSource{Parser: p, Logger: o.Logger}, nil
		}
	}
	reg.MustRegister(parser(annotations.COCOParser{}), DataSourceCOCO, registry.WithType("parser"))
	reg.MustRegister(parser(annotations.VOCParser{}), DataSourceVOC, registry.WithType("parser"))
	reg.MustRegister(parser(annotations.VIAParser{}), DataSourceVIA, registry.WithType("parser"))
	reg.MustRegister(func(_ context.Context, o PreprocessOptions) (data.DataSource, error) {
		if o.Parser == nil {
			return nil, ErrNoParser
		}
		return data.ParserDataSource{Parser: o.Parser, Logger: o.Logger}, nil
	}, DataSourceFolders, registry.WithType("parser"))
	reg.MustRegister(constant(data.DetectionPathsDataSource{}), DataSourceFiles, registry.WithType("paths"))
	reg.MustRegister(func(_ context.Context, o PreprocessOptions) (data.DataSource, error) {
		return data.CollectionDataSource{Logger: o.Logger}, nil
	}, DataSourceCollection, registry.WithType("collection"))
	return reg
}

// NewClassificationPreprocess returns the image classification preprocess.
// Its default data source is "folders" and its default image size 64.
func NewClassificationPreprocess(opts PreprocessOptions) *Preprocess {
	if opts.ImageSize == 0 {
		opts.ImageSize = transforms.DefaultClassificationSize
	}
	return newPreprocess(Classification, NewClassificationDataSources(), DataSourceFolders,
		transforms.ClassificationDefaults(opts.ImageSize), opts)
}

// NewDetectionPreprocess returns the object detection preprocess. Its
// default data source is "files" and its default image size 128.
func NewDetectionPreprocess(opts PreprocessOptions) *Preprocess {
	if opts.ImageSize == 0 {
		opts.ImageSize = transforms.DefaultDetectionSize
	}
	return newPreprocess(Detection, NewDetectionDataSources(), DataSourceFiles,
		transforms.DetectionDefaults(opts.ImageSize), opts)
}

func newPreprocess(task string, sources *DataSources, def string, defaults transforms.Transforms, opts PreprocessOptions) *Preprocess {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	p := &Preprocess{
		task:          task,
		sources:       sources,
		defaultSource: def,
		transforms:    make(map[Stage]transforms.Transforms, len(Stages)),
		opts:          opts,
	}
	for _, st := range Stages {
		p.transforms[st] = defaults.Merge(opts.Transforms[st])
	}
	return p
}

// Task returns Classification or Detection.
func (p *Preprocess) Task() string {
	return p.task
}

// ImageSize returns the model input side.
func (p *Preprocess) ImageSize() int {
	return p.opts.ImageSize
}

// DataSource builds the data source called name; the default one when name is empty.
func (p *Preprocess) DataSource(ctx context.Context, name string) (data.DataSource, error) {
	if name == "" {
		name = p.defaultSource
	}
	return p.sources.Resolve(ctx, name, p.opts)
}

// DataSourceNames returns the available data sources, sorted.
func (p *Preprocess) DataSourceNames() []string {
	return p.sources.Names()
}

// Transforms returns the transforms of stage.
func (p *Preprocess) Transforms(stage Stage) transforms.Transforms {
	return p.transforms[stage]
}

// Pipeline returns the pipeline of stage over source.
func (p *Preprocess) Pipeline(stage Stage, source data.DataSource, ds *data.Dataset) transforms.Pipeline {
	return transforms.Pipeline{Source: source, Dataset: ds, Transforms: p.transforms[stage]}
}

// State describes the preprocess for serialization.
func (p *Preprocess) State() PreprocessState {
	st := PreprocessState{
		Task:              p.task,
		ImageSize:         p.opts.ImageSize,
		DefaultDataSource: p.defaultSource,
		DataSources:       p.DataSourceNames(),
		Transforms:        make(map[Stage][]transforms.Hook, len(p.transforms)),
	}
	for _, stage := range slices.Sorted(maps.Keys(p.transforms)) {
		st.Transforms[stage] = p.transforms[stage].Names()
	}
	return st
}
