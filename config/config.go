// Package config - Run configuration for the vision tasks.
package config

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/backbones"
)

// Task names.
const (
	TaskClassification = "classification"
	TaskDetection      = "detection"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Stage points at the data of one stage.
type Stage struct {
	// Folder is a directory of images or class directories.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty" hcl:"folder,optional"`
	// AnnotationFile is a COCO/VIA json file or a VOC xml file or directory.
	AnnotationFile string `json:"annotation_file,omitempty" yaml:"annotation_file,omitempty" hcl:"annotation_file,optional"`
	// Files is an explicit list of images.
	Files []string `json:"files,omitempty" yaml:"files,omitempty" hcl:"files,optional"`
}

// Config describes one run: which task, where the data is and how to batch it.
type Config struct {
	// Task is TaskClassification or TaskDetection.
	Task string `json:"task" yaml:"task" hcl:"task,optional"`

	// DataSource names the data source, e.g. "folders", "coco", "voc", "via" or "files".
	// Empty selects the task's default.
	DataSource string `json:"data_source,omitempty" yaml:"data_source,omitempty" hcl:"data_source,optional"`

	// Train, Val, Test and Predict are the per-stage inputs; nil stages are skipped.
	Train   *Stage `json:"train,omitempty" yaml:"train,omitempty" hcl:"train,block"`
	Val     *Stage `json:"val,omitempty" yaml:"val,omitempty" hcl:"val,block"`
	Test    *Stage `json:"test,omitempty" yaml:"test,omitempty" hcl:"test,block"`
	Predict *Stage `json:"predict,omitempty" yaml:"predict,omitempty" hcl:"predict,block"`

	// Labels fixes the class order of folder datasets.
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty" hcl:"labels,optional"`

	// ImageSize is the side of the square model input; 0 selects the task's default.
	ImageSize int `json:"image_size" yaml:"image_size" hcl:"image_size,optional"`
	BatchSize int `json:"batch_size" yaml:"batch_size" hcl:"batch_size,optional"`
	// NumWorkers bounds concurrent sample loading within a batch.
	NumWorkers int `json:"num_workers" yaml:"num_workers" hcl:"num_workers,optional"`
	// ValSplit moves this fraction of the train samples to validation.
	ValSplit float64 `json:"val_split" yaml:"val_split" hcl:"val_split,optional"`
	// Seed drives the validation split shuffle.
	Seed int64 `json:"seed" yaml:"seed" hcl:"seed,optional"`

	// Backbone is one of backbones.Names.
	Backbone string `json:"backbone" yaml:"backbone" hcl:"backbone,optional"`
	// Head is the detection head, "retinanet" or "faster_rcnn".
	Head       string `json:"head,omitempty" yaml:"head,omitempty" hcl:"head,optional"`
	Pretrained bool   `json:"pretrained" yaml:"pretrained" hcl:"pretrained,optional"`
	// WeightsURL hosts <backbone>.onnx files.
	WeightsURL string `json:"weights_url" yaml:"weights_url" hcl:"weights_url,optional"`
	CacheDir   string `json:"cache_dir" yaml:"cache_dir" hcl:"cache_dir,optional"`
	// DownloadTimeout is in seconds.
	DownloadTimeout int `json:"download_timeout" yaml:"download_timeout" hcl:"download_timeout,optional"`
	// RuntimeLibrary is the onnxruntime shared library.
	RuntimeLibrary string `json:"runtime_library,omitempty" yaml:"runtime_library,omitempty" hcl:"runtime_library,optional"`
	// ExecutionProvider is one of backbones.Providers; "cpu" when empty.
	ExecutionProvider string `json:"execution_provider,omitempty" yaml:"execution_provider,omitempty" hcl:"execution_provider,optional"`

	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level" yaml:"log_level" hcl:"log_level,optional"`
}

// DefaultConfig returns an image classification configuration with a
// pretrained resnet18.
//
// Returns:
//   - Config: The defaults; stages still need to be set.
//
// @example
// cfg := DefaultConfig()
// cfg.Train = &Stage{Folder: "data/train"}
// err := cfg.Validate()
func DefaultConfig() Config {
	return Config{
		Task:            TaskClassification,
		BatchSize:       4,
		NumWorkers:      0,
		Seed:            42,
		Backbone:        string(backbones.ResNet18),
		Pretrained:      true,
		WeightsURL:      backbones.DefaultWeightsURL,
		DownloadTimeout: 60,
		LogLevel:        logrus.InfoLevel.String(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Task != TaskClassification && c.Task != TaskDetection {
		return errors.Wrapf(ErrInvalidConfig, "unknown task %q", c.Task)
	}
	if c.ImageSize < 0 {
		return errors.Wrapf(ErrInvalidConfig, "image size %d is negative", c.ImageSize)
	}
	if c.BatchSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "batch size must be positive, got %d", c.BatchSize)
	}
	if c.NumWorkers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "num workers %d is negative", c.NumWorkers)
	}
	if c.ValSplit < 0 || c.ValSplit >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "val split %v not in [0, 1)", c.ValSplit)
	}
	if _, err := backbones.ParseName(c.Backbone); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if c.Task == TaskDetection && c.Head != "" && !slices.Contains([]string{backbones.RetinaNet, backbones.FasterRCNN}, c.Head) {
		return errors.Wrapf(ErrInvalidConfig, "unknown detection head %q", c.Head)
	}
	if _, err := backbones.ParseProvider(c.ExecutionProvider); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if c.Train == nil && c.Val == nil && c.Test == nil && c.Predict == nil {
		return errors.Wrap(ErrInvalidConfig, "no stage has data")
	}
	return nil
}

// Level returns the parsed LogLevel, Info when it is invalid.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
