// Command vision inspects the registries, preprocesses and datasets of the
// vision tasks.
//
//	vision list
//	vision state -task detection -image-size 256
//	vision inspect -config run.yaml [-model] [-batches 2]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-vision/backbones"
	"github.com/nvr-ai/go-vision/config"
	"github.com/nvr-ai/go-vision/registry"
	"github.com/nvr-ai/go-vision/tasks"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.WithError(err).Error("vision failed")
		stop()
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: vision <list|state|inspect> [flags]")
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *logrus.Logger) error {
	if len(args) == 0 {
		usage(stdout)
		return errors.New("missing command")
	}
	switch args[0] {
	case "list":
		return list(stdout)
	case "state":
		return state(args[1:], stdout, logger)
	case "inspect":
		return inspect(ctx, args[1:], stdout, logger)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return errors.Errorf("unknown command %q", args[0])
	}
}

// list prints every backbone, head and data source name.
func list(w io.Writer) error {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	cls := backbones.NewClassificationBackbones(nil, quiet)
	det := backbones.NewDetectionBackbones(nil, quiet)
	heads := backbones.NewDetectionHeads()

	out := map[string]map[string][]string{
		"backbones": {
			tasks.Classification: cls.Names(registry.WithNamespace(backbones.ClassificationNamespace)),
			tasks.Detection:      det.Names(),
		},
		"heads": {
			tasks.Detection: heads.Names(),
		},
		"data_sources": {
			tasks.Classification: tasks.NewClassificationDataSources().Names(),
			tasks.Detection:      tasks.NewDetectionDataSources().Names(),
		},
	}
	return writeYAML(w, out)
}

// state prints the preprocess state of a task.
func state(args []string, w io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(w)
	task := fs.String("task", config.TaskClassification, "Task: classification or detection")
	imageSize := fs.Int("image-size", 0, "Model input side, 0 for the task default")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.Task = *task
	cfg.ImageSize = *imageSize
	pre, err := tasks.NewPreprocess(cfg, logger)
	if err != nil {
		return err
	}
	return writeYAML(w, pre.State())
}

type stageSummary struct {
	Samples int `yaml:"samples"`
	Batches int `yaml:"batches"`
}

type summary struct {
	Task       string                       `yaml:"task"`
	DataSource string                       `yaml:"data_source"`
	NumClasses int                          `yaml:"num_classes"`
	Classes    []string                     `yaml:"classes,omitempty"`
	Stages     map[tasks.Stage]stageSummary `yaml:"stages"`
	Preprocess tasks.PreprocessState        `yaml:"preprocess"`
	Model      *tasks.Model                 `yaml:"model,omitempty"`
	Checked    map[tasks.Stage]int          `yaml:"checked_batches,omitempty"`
}

// inspect loads a configuration, its data module and optionally its model,
// and prints a summary.
func inspect(ctx context.Context, args []string, w io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(w)
	path := fs.String("config", "", "Configuration file (.yaml, .yml, .json or .hcl)")
	withModel := fs.Bool("model", false, "Resolve the backbone, downloading pretrained weights")
	batches := fs.Int("batches", 0, "Process this many batches of every stage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-config is required")
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	log := logger.WithField("config", *path)

	dm, err := tasks.FromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}

	ds := dm.Dataset()
	pre := dm.Preprocess()
	out := summary{
		Task:       cfg.Task,
		DataSource: cfg.DataSource,
		NumClasses: ds.NumClasses,
		Classes:    ds.Classes,
		Stages:     make(map[tasks.Stage]stageSummary),
		Preprocess: pre.State(),
	}
	if out.DataSource == "" {
		out.DataSource = out.Preprocess.DefaultDataSource
	}
	for _, st := range dm.Stages() {
		out.Stages[st] = stageSummary{Samples: len(dm.Samples(st)), Batches: dm.NumBatches(st)}
	}

	if *batches > 0 {
		out.Checked = make(map[tasks.Stage]int)
		for _, st := range dm.Stages() {
			n := 0
			for _, err := range dm.Batches(ctx, st) {
				if err != nil {
					return errors.Wrapf(err, "%s batch %d", st, n)
				}
				n++
				if n == *batches {
					break
				}
			}
			out.Checked[st] = n
		}
	}

	if *withModel {
		m, err := tasks.ModelFromConfig(ctx, cfg, ds, tasks.NewFetcher(cfg, log), log)
		if err != nil {
			return err
		}
		out.Model = &m
		if b := m.Backbone(); b != nil && b.WeightsPath != "" {
			sess, err := b.Open(backbones.SessionOptions{
				LibraryPath: cfg.RuntimeLibrary,
				Provider:    backbones.Provider(cfg.ExecutionProvider),
			})
			if err != nil {
				log.WithError(err).Warn("backbone weights could not be opened")
			} else {
				log.WithFields(logrus.Fields{
					"inputs":  strings.Join(sess.Inputs, ","),
					"outputs": strings.Join(sess.Outputs, ","),
				}).Info("backbone session opened")
				if err := sess.Close(); err != nil {
					return err
				}
			}
		}
	}
	return writeYAML(w, out)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	return enc.Close()
}
