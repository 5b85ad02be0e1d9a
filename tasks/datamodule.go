package tasks

import (
	"context"
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-vision/data"
	"github.com/nvr-ai/go-vision/transforms"
)

// ErrNoData is returned when no stage has data, or a stage without data is batched.
var ErrNoData = errors.New("tasks: no data")

// StageSources holds the input of every stage; zero sources are skipped.
type StageSources struct {
	Train   data.Source
	Val     data.Source
	Test    data.Source
	Predict data.Source
}

func (s StageSources) get(stage Stage) data.Source {
	switch stage {
	case StageTrain:
		return s.Train
	case StageVal:
		return s.Val
	case StageTest:
		return s.Test
	default:
		return s.Predict
	}
}

// DataModuleOptions configures the loading and batching of a DataModule.
type DataModuleOptions struct {
	BatchSize int
	// NumWorkers bounds the samples loaded concurrently within a batch; 0 loads serially.
	NumWorkers int
	// ValSplit moves this fraction of the train samples to validation when
	// no validation source is given.
	ValSplit float64
	// Seed drives the validation split.
	Seed   int64
	Logger logrus.FieldLogger
}

// DefaultDataModuleOptions returns a batch size of 4, serial loading and no split.
func DefaultDataModuleOptions() DataModuleOptions {
	return DataModuleOptions{BatchSize: 4, Seed: 42}
}

type stageData struct {
	source  data.DataSource
	dataset *data.Dataset
	samples []data.Sample
}

// DataModule holds the samples of every stage and serves their batches.
type DataModule struct {
	preprocess *Preprocess
	stages     map[Stage]*stageData
	opts       DataModuleOptions
	logger     logrus.FieldLogger
}

// FromDataSource loads every stage of sources through the data source called
// name (the preprocess default when empty).
//
// Arguments:
//   - ctx: Cancels loading.
//   - pre: The task preprocess.
//   - name: The data source name, see Preprocess.DataSourceNames.
//   - sources: The per-stage inputs.
//   - opts: Batching and split options.
//
// Returns:
//   - *DataModule: The loaded stages.
//   - error: An unknown data source, a loading error or ErrNoData.
//
// @example
// pre := NewClassificationPreprocess(PreprocessOptions{})
// dm, err := FromDataSource(ctx, pre, "folders", StageSources{Train: data.FromFolder("train")}, DefaultDataModuleOptions())
func FromDataSource(ctx context.Context, pre *Preprocess, name string, sources StageSources, opts DataModuleOptions) (*DataModule, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("tasks: batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.ValSplit < 0 || opts.ValSplit >= 1 {
		return nil, errors.Errorf("tasks: val split %v not in [0, 1)", opts.ValSplit)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if name == "" {
		name = pre.defaultSource
	}

	dm := &DataModule{
		preprocess: pre,
		stages:     make(map[Stage]*stageData),
		opts:       opts,
		logger:     opts.Logger.WithFields(logrus.Fields{"task": pre.task, "data_source": name}),
	}
	for _, stage := range Stages {
		src := sources.get(stage)
		if src.IsZero() {
			continue
		}
		sd, err := dm.load(ctx, stage, name, src)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s data", stage)
		}
		dm.stages[stage] = sd
	}
	if len(dm.stages) == 0 {
		return nil, ErrNoData
	}
	dm.split()

	fields := logrus.Fields{"num_classes": dm.NumClasses()}
	for stage, sd := range dm.stages {
		fields[string(stage)] = len(sd.samples)
	}
	dm.logger.WithFields(fields).Info("data module loaded")
	return dm, nil
}

// load reads one stage. Unannotated detection predict inputs go through the
// "files" data source whatever name says.
func (dm *DataModule) load(ctx context.Context, stage Stage, name string, src data.Source) (*stageData, error) {
	if stage == StagePredict && dm.preprocess.task == Detection &&
		src.AnnotationFile == "" && src.Collection == nil {
		name = DataSourceFiles
	}
	source, err := dm.preprocess.DataSource(ctx, name)
	if err != nil {
		return nil, err
	}
	ds := &data.Dataset{}
	samples, err := source.LoadData(ctx, src, ds)
	if err != nil {
		return nil, err
	}
	return &stageData{source: source, dataset: ds, samples: samples}, nil
}

// split moves a seeded random ValSplit share of the train samples to a new
// val stage. Both stages keep the original sample order.
func (dm *DataModule) split() {
	train, ok := dm.stages[StageTrain]
	if dm.opts.ValSplit == 0 || !ok || dm.stages[StageVal] != nil {
		return
	}
	n := int(float64(len(train.samples)) * dm.opts.ValSplit)
	if n == 0 {
		return
	}
	rng := rand.New(rand.NewPCG(uint64(dm.opts.Seed), 0))
	perm := rng.Perm(len(train.samples))
	val := perm[:n]
	slices.Sort(val)

	inVal := make(map[int]bool, n)
	for _, i := range val {
		inVal[i] = true
	}
	valSamples := make([]data.Sample, 0, n)
	trainSamples := make([]data.Sample, 0, len(train.samples)-n)
	for i, s := range train.samples {
		if inVal[i] {
			valSamples = append(valSamples, s)
		} else {
			trainSamples = append(trainSamples, s)
		}
	}
	train.samples = trainSamples
	dm.stages[StageVal] = &stageData{source: train.source, dataset: train.dataset, samples: valSamples}
}

// FromFolders loads class folders through the "folders" data source, or
// unannotated detection image folders through "files". Empty paths are skipped.
func FromFolders(ctx context.Context, pre *Preprocess, train, val, test, predict string, opts DataModuleOptions) (*DataModule, error) {
	folder := func(dir string) data.Source {
		if dir == "" {
			return data.Source{}
		}
		return data.FromFolder(dir)
	}
	name := DataSourceFolders
	if pre.task == Detection {
		name = DataSourceFiles
	}
	return FromDataSource(ctx, pre, name, StageSources{
		Train:   folder(train),
		Val:     folder(val),
		Test:    folder(test),
		Predict: folder(predict),
	}, opts)
}

// FromCOCO loads COCO annotation files; each stage pairs an image folder
// with its annotation file.
func FromCOCO(ctx context.Context, pre *Preprocess, sources StageSources, opts DataModuleOptions) (*DataModule, error) {
	return FromDataSource(ctx, pre, DataSourceCOCO, sources, opts)
}

// FromVOC loads Pascal VOC xml annotations.
func FromVOC(ctx context.Context, pre *Preprocess, sources StageSources, opts DataModuleOptions) (*DataModule, error) {
	return FromDataSource(ctx, pre, DataSourceVOC, sources, opts)
}

// FromVIA loads VGG Image Annotator json exports.
func FromVIA(ctx context.Context, pre *Preprocess, sources StageSources, opts DataModuleOptions) (*DataModule, error) {
	return FromDataSource(ctx, pre, DataSourceVIA, sources, opts)
}

// FromCollection loads in-memory collections; nil collections are skipped.
// The predict collection may be unlabeled.
func FromCollection(ctx context.Context, pre *Preprocess, train, val, test, predict data.Collection, opts DataModuleOptions) (*DataModule, error) {
	coll := func(c data.Collection) data.Source {
		if c == nil {
			return data.Source{}
		}
		return data.FromCollection(c)
	}
	return FromDataSource(ctx, pre, DataSourceCollection, StageSources{
		Train:   coll(train),
		Val:     coll(val),
		Test:    coll(test),
		Predict: coll(predict),
	}, opts)
}

// Preprocess returns the task preprocess.
func (dm *DataModule) Preprocess() *Preprocess {
	return dm.preprocess
}

// Stages returns the stages that have data, in lifecycle order.
func (dm *DataModule) Stages() []Stage {
	var out []Stage
	for _, st := range Stages {
		if _, ok := dm.stages[st]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Samples returns the unprocessed samples of stage.
func (dm *DataModule) Samples(stage Stage) []data.Sample {
	if sd, ok := dm.stages[stage]; ok {
		return sd.samples
	}
	return nil
}

// Dataset returns the class information of the first labeled stage.
func (dm *DataModule) Dataset() data.Dataset {
	for _, st := range Stages {
		if sd, ok := dm.stages[st]; ok && sd.dataset.NumClasses > 0 {
			return *sd.dataset
		}
	}
	return data.Dataset{}
}

// NumClasses returns the class count of the first labeled stage, 0 if none is labeled.
func (dm *DataModule) NumClasses() int {
	return dm.Dataset().NumClasses
}

// NumBatches returns the number of batches of stage.
func (dm *DataModule) NumBatches(stage Stage) int {
	n := len(dm.Samples(stage))
	return (n + dm.opts.BatchSize - 1) / dm.opts.BatchSize
}

// Batches yields the processed batches of stage in sample order. Samples of
// one batch are loaded and transformed by up to NumWorkers goroutines.
// Iteration stops after the first error.
func (dm *DataModule) Batches(ctx context.Context, stage Stage) iter.Seq2[transforms.Batch, error] {
	return func(yield func(transforms.Batch, error) bool) {
		sd, ok := dm.stages[stage]
		if !ok {
			yield(transforms.Batch{}, errors.Wrapf(ErrNoData, "stage %s", stage))
			return
		}
		pipeline := dm.preprocess.Pipeline(stage, sd.source, sd.dataset)
		for chunk := range slices.Chunk(sd.samples, dm.opts.BatchSize) {
			b, err := dm.batch(ctx, pipeline, chunk)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

func (dm *DataModule) batch(ctx context.Context, p transforms.Pipeline, samples []data.Sample) (transforms.Batch, error) {
	processed := make([]data.Sample, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, dm.opts.NumWorkers))
	for i, s := range samples {
		g.Go(func() error {
			out, err := p.ProcessSample(gctx, s)
			if err != nil {
				return err
			}
			processed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return transforms.Batch{}, err
	}
	return p.CollateBatch(ctx, processed)
}
