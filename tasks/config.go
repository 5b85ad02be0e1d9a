package tasks

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/backbones"
	"github.com/nvr-ai/go-vision/config"
	"github.com/nvr-ai/go-vision/data"
)

// NewPreprocess returns the preprocess of cfg.Task.
func NewPreprocess(cfg config.Config, logger logrus.FieldLogger) (*Preprocess, error) {
	opts := PreprocessOptions{ImageSize: cfg.ImageSize, Labels: cfg.Labels, Logger: logger}
	switch cfg.Task {
	case config.TaskClassification:
		return NewClassificationPreprocess(opts), nil
	case config.TaskDetection:
		return NewDetectionPreprocess(opts), nil
	default:
		return nil, errors.Wrapf(config.ErrInvalidConfig, "unknown task %q", cfg.Task)
	}
}

func stageSource(s *config.Stage) data.Source {
	if s == nil {
		return data.Source{}
	}
	return data.Source{Folder: s.Folder, AnnotationFile: s.AnnotationFile, Files: s.Files}
}

// FromConfig loads the data module described by cfg.
//
// Arguments:
//   - ctx: Cancels loading.
//   - cfg: A validated configuration.
//   - logger: Receives loading logs; the standard logger when nil.
//
// Returns:
//   - *DataModule: The loaded stages.
//   - error: A configuration or loading error.
func FromConfig(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*DataModule, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pre, err := NewPreprocess(cfg, logger)
	if err != nil {
		return nil, err
	}
	return FromDataSource(ctx, pre, cfg.DataSource, StageSources{
		Train:   stageSource(cfg.Train),
		Val:     stageSource(cfg.Val),
		Test:    stageSource(cfg.Test),
		Predict: stageSource(cfg.Predict),
	}, DataModuleOptions{
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		ValSplit:   cfg.ValSplit,
		Seed:       cfg.Seed,
		Logger:     logger,
	})
}

// NewFetcher returns the weights fetcher of cfg.
func NewFetcher(cfg config.Config, logger logrus.FieldLogger) *backbones.HTTPFetcher {
	return backbones.NewHTTPFetcher(cfg.WeightsURL, cfg.CacheDir, time.Duration(cfg.DownloadTimeout)*time.Second, logger)
}

// Model is an ImageClassifier or an ObjectDetector.
type Model struct {
	Classifier *ImageClassifier `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	Detector   *ObjectDetector  `json:"detector,omitempty" yaml:"detector,omitempty"`
}

// Backbone returns the model's backbone.
func (m Model) Backbone() *backbones.Backbone {
	if m.Detector != nil {
		return m.Detector.Head.Backbone
	}
	if m.Classifier != nil {
		return m.Classifier.Backbone
	}
	return nil
}

// ModelFromConfig builds the model of cfg.Task for the classes of ds. A
// detection config without a head uses RetinaNet.
func ModelFromConfig(ctx context.Context, cfg config.Config, ds data.Dataset, fetcher backbones.WeightsFetcher, logger logrus.FieldLogger) (Model, error) {
	args := backbones.DefaultArgs()
	args.Pretrained = cfg.Pretrained
	switch cfg.Task {
	case config.TaskClassification:
		cls, err := NewImageClassifier(ctx, backbones.NewClassificationBackbones(fetcher, logger), cfg.Backbone, ds.Classes, args)
		return Model{Classifier: cls}, err
	case config.TaskDetection:
		head := cfg.Head
		if head == "" {
			head = backbones.RetinaNet
		}
		det, err := NewObjectDetector(ctx, backbones.NewDetectionBackbones(fetcher, logger), backbones.NewDetectionHeads(),
			cfg.Backbone, head, ds.Classes, args)
		return Model{Detector: det}, err
	default:
		return Model{}, errors.Wrapf(config.ErrInvalidConfig, "unknown task %q", cfg.Task)
	}
}
