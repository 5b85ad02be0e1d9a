package data

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-vision/annotations"
)

func writePNG(t *testing.T, path string, w, h int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestPathsDataSourceTwoClassFolder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ants", "a.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "bees", "nested", "b.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bees", "notes.txt"), []byte("x"), 0o644))

	var ds Dataset
	samples, err := PathsDataSource{Logger: quietLogger()}.LoadData(context.Background(), FromFolder(dir), &ds)
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, 0, samples[0].Target)
	assert.Equal(t, 1, samples[1].Target)
	assert.Equal(t, filepath.Join(dir, "bees", "nested", "b.png"), samples[1].Input)
	for _, s := range samples {
		assert.True(t, s.Labeled())
		assert.Nil(t, s.Metadata)
	}
	assert.Equal(t, 2, ds.NumClasses)
	assert.Equal(t, []string{"ants", "bees"}, ds.Classes)
	assert.Equal(t, 2, ds.Samples)
}

func TestPathsDataSourceExplicitLabels(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ants", "a.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "bees", "b.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "wasps", "w.png"), 2, 2)

	var ds Dataset
	samples, err := PathsDataSource{Labels: []string{"bees", "ants"}, Logger: quietLogger()}.
		LoadData(context.Background(), FromFolder(dir), &ds)
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, filepath.Join(dir, "bees", "b.png"), samples[0].Input)
	assert.Equal(t, 0, samples[0].Target)
	assert.Equal(t, 1, samples[1].Target)
	assert.Equal(t, []string{"bees", "ants"}, ds.Classes)
}

func TestPathsDataSourceUnlabeledFolder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "2.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "1.png"), 2, 2)

	samples, err := PathsDataSource{Logger: quietLogger()}.LoadData(context.Background(), FromFolder(dir), nil)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, filepath.Join(dir, "1.png"), samples[0].Input)
	assert.Nil(t, samples[0].Target)
}

func TestPathsDataSourceFiles(t *testing.T) {
	src := PathsDataSource{}
	samples, err := src.LoadData(context.Background(), FromFiles([]string{"a.png", "b.txt", "c.jpg"}, []any{1, 2, 0}), nil)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, Sample{Input: "c.jpg", Target: 0}, samples[1])

	_, err = src.LoadData(context.Background(), FromFiles([]string{"a.png"}, []any{1, 2}), nil)
	assert.True(t, errors.Is(err, ErrInvalidTarget))

	_, err = src.LoadData(context.Background(), Source{}, nil)
	assert.True(t, errors.Is(err, ErrInvalidSource))
}

func TestPathsDataSourceMissingFolder(t *testing.T) {
	_, err := PathsDataSource{}.LoadData(context.Background(), FromFolder(filepath.Join(t.TempDir(), "nope")), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadSampleIdempotent(t *testing.T) {
	path := writePNG(t, filepath.Join(t.TempDir(), "img.png"), 6, 3)
	src := PathsDataSource{}
	in := Sample{Input: path, Target: 1}

	once, err := src.LoadSample(context.Background(), in, nil)
	require.NoError(t, err)
	twice, err := src.LoadSample(context.Background(), once, nil)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, &Metadata{Path: path, Height: 3, Width: 6}, once.Metadata)
	assert.Implements(t, (*image.Image)(nil), once.Input)
	assert.Equal(t, 1, once.Target)

	// The caller's sample is untouched.
	assert.Equal(t, path, in.Input)
	assert.Nil(t, in.Metadata)
}

func TestLoadSampleErrors(t *testing.T) {
	_, err := PathsDataSource{}.LoadSample(context.Background(), Sample{Input: filepath.Join(t.TempDir(), "gone.png")}, nil)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = PathsDataSource{}.LoadSample(context.Background(), Sample{Input: 42}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PathsDataSource{}.LoadSample(ctx, Sample{Input: "x.png"}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReformatBBox(t *testing.T) {
	cases := []struct {
		x, y, w, h, imgW, imgH float64
	}{
		{0.1, 0.2, 0.5, 0.25, 640, 480},
		{0, 0, 1, 1, 33, 17},
		{0.333, 0.9, 0.01, 0.05, 1920, 1080},
	}
	for _, c := range cases {
		box, area := ReformatBBox(c.x, c.y, c.w, c.h, c.imgW, c.imgH)
		assert.InDelta(t, c.x*c.imgW, box.XMin, 1e-9)
		assert.InDelta(t, c.y*c.imgH, box.YMin, 1e-9)
		assert.InDelta(t, c.w*c.imgW, box.Width(), 1e-9)
		assert.InDelta(t, c.h*c.imgH, box.Height(), 1e-9)
		assert.InDelta(t, c.w*c.imgW*c.h*c.imgH, area, 1e-6)
		assert.True(t, box.Valid())
	}

	box, area := ReformatBBox(0.1, 0.2, 0.5, 0.25, 640, 480)
	assert.Equal(t, Box{XMin: 64, YMin: 96, XMax: 384, YMax: 216}, box)
	assert.InDelta(t, 320*120, area, 1e-9)
}

func TestDetectionTargetValidate(t *testing.T) {
	var target DetectionTarget
	target.Add(Box{XMin: 0, YMin: 0, XMax: 2, YMax: 3}, 1, false)
	target.Add(Box{XMin: 1, YMin: 1, XMax: 4, YMax: 5}, 2, true)
	require.NoError(t, target.Validate())
	assert.Equal(t, []float64{6, 12}, target.Area)
	assert.Equal(t, []int{0, 1}, target.IsCrowd)

	short := target.Clone()
	short.Labels = short.Labels[:1]
	assert.True(t, errors.Is(short.Validate(), ErrInvalidTarget))

	inverted := target.Clone()
	inverted.Boxes[0] = Box{XMin: 5, YMin: 0, XMax: 1, YMax: 1}
	assert.True(t, errors.Is(inverted.Validate(), ErrInvalidTarget))
	assert.NoError(t, target.Validate(), "clone must not share storage")
}

func TestBoxIoU(t *testing.T) {
	a := Box{XMin: 0, YMin: 0, XMax: 2, YMax: 2}
	b := Box{XMin: 1, YMin: 1, XMax: 3, YMax: 3}
	assert.InDelta(t, 1.0/7.0, a.IoU(b), 1e-9)
	assert.Equal(t, 1.0, a.IoU(a))
	assert.Equal(t, 0.0, a.IoU(Box{XMin: 5, YMin: 5, XMax: 6, YMax: 6}))
	assert.Equal(t, image.Rect(0, 0, 3, 3), Box{XMin: 0.2, YMin: 0.7, XMax: 2.1, YMax: 2.9}.ToRect())
}

func TestSampleKeys(t *testing.T) {
	s := Sample{Input: "a.png", Target: 3}

	v, err := s.Get(KeyTarget)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	s2, err := s.With(KeyPreds, []float32{0.1})
	require.NoError(t, err)
	assert.Nil(t, s.Preds)
	assert.Equal(t, []float32{0.1}, s2.Preds)

	_, err = s.Get("label")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	_, err = s.With(KeyMetadata, "not metadata")
	assert.Error(t, err)
}

func TestParserDataSource(t *testing.T) {
	parser := annotations.ParserFunc(func(_ context.Context, folder, _ string) (*annotations.Parsed, error) {
		return &annotations.Parsed{
			Records: []annotations.Record{
				{Filepath: filepath.Join(folder, "a.jpg"), Objects: []annotations.Object{
					{Label: "cat", XMin: 1, YMin: 1, XMax: 3, YMax: 4, IsCrowd: true},
				}},
				{ImageID: 42, HasImageID: true, Filepath: filepath.Join(folder, "b.jpg")},
			},
			ClassMap: annotations.NewClassMap([]string{"cat", "dog"}),
		}, nil
	})

	var ds Dataset
	samples, err := ParserDataSource{Parser: parser, Logger: quietLogger()}.
		LoadData(context.Background(), FromAnnotations("imgs", "ann.json"), &ds)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	want := DetectionTarget{
		Boxes:   []Box{{XMin: 1, YMin: 1, XMax: 3, YMax: 4}},
		Labels:  []int{1},
		ImageID: 1,
		Area:    []float64{6},
		IsCrowd: []int{1},
	}
	if diff := cmp.Diff(want, samples[0].Target); diff != "" {
		t.Errorf("target mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 42, samples[1].Target.(DetectionTarget).ImageID)
	assert.Equal(t, 3, ds.NumClasses)
	assert.Equal(t, []string{annotations.Background, "cat", "dog"}, ds.Classes)

	_, err = ParserDataSource{Parser: parser}.LoadData(context.Background(), FromFolder("imgs"), nil)
	assert.True(t, errors.Is(err, ErrInvalidSource))
}

func TestParserDataSourceKeepsZeroImageIDs(t *testing.T) {
	dir := t.TempDir()
	ann := filepath.Join(dir, "instances.json")
	require.NoError(t, os.WriteFile(ann, []byte(`{
	  "images": [{"id": 0, "file_name": "a.png"}, {"id": 1, "file_name": "b.png"}],
	  "annotations": [
	    {"id": 1, "image_id": 0, "category_id": 1, "bbox": [0, 0, 2, 2]},
	    {"id": 2, "image_id": 1, "category_id": 1, "bbox": [1, 1, 2, 2]}
	  ],
	  "categories": [{"id": 1, "name": "cat"}]
	}`), 0o644))

	samples, err := ParserDataSource{Parser: annotations.COCOParser{}, Logger: quietLogger()}.
		LoadData(context.Background(), FromAnnotations(dir, ann), nil)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 0, samples[0].Target.(DetectionTarget).ImageID)
	assert.Equal(t, 1, samples[1].Target.(DetectionTarget).ImageID)
}

func TestParserDataSourceDuplicateImageIDs(t *testing.T) {
	parser := annotations.ParserFunc(func(_ context.Context, folder, _ string) (*annotations.Parsed, error) {
		return &annotations.Parsed{Records: []annotations.Record{
			{Filepath: filepath.Join(folder, "a.jpg")},
			{ImageID: 1, HasImageID: true, Filepath: filepath.Join(folder, "b.jpg")},
		}}, nil
	})

	_, err := ParserDataSource{Parser: parser}.LoadData(context.Background(), FromAnnotations("imgs", "ann.json"), nil)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
}

func TestParserDataSourcePropagatesParseErrors(t *testing.T) {
	dir := t.TempDir()
	ann := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(ann, []byte("{"), 0o644))

	_, err := ParserDataSource{Parser: annotations.COCOParser{}}.LoadData(context.Background(), FromAnnotations(dir, ann), nil)
	assert.True(t, errors.Is(err, annotations.ErrParse))
}

func TestDetectionPathsDataSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)

	samples, err := DetectionPathsDataSource{}.LoadData(context.Background(), FromFolder(dir), nil)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, filepath.Join(dir, "a.png"), samples[0].Input)
	assert.Equal(t, DetectionTarget{ImageID: 2}, samples[1].Target)
}

func TestCollectionDataSource(t *testing.T) {
	dir := t.TempDir()
	sized := writePNG(t, filepath.Join(dir, "sized.png"), 20, 10)

	coll := &SampleCollection{Items: []CollectionSample{
		{Filepath: "first.jpg", Width: 100, Height: 50, Fields: map[string][]Detection{
			DefaultLabelField: {
				{Label: "dog", BoundingBox: [4]float64{0.1, 0.2, 0.5, 0.4}},
				{Label: "cat", BoundingBox: [4]float64{0, 0, 1, 1}, Attributes: map[string]any{"iscrowd": 1}},
			},
			"predictions": {{Label: "zebra", BoundingBox: [4]float64{0, 0, 1, 1}}},
		}},
		{Filepath: "empty.jpg", Width: 8, Height: 8},
		{Filepath: sized, Fields: map[string][]Detection{
			DefaultLabelField: {{Label: "dog", BoundingBox: [4]float64{0.5, 0.5, 0.5, 0.5}, Attributes: map[string]any{"iscrowd": false}}},
		}},
	}}

	var ds Dataset
	samples, err := CollectionDataSource{Logger: quietLogger()}.LoadData(context.Background(), FromCollection(coll), &ds)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, []string{"cat", "dog"}, ds.Classes)
	assert.Equal(t, 2, ds.NumClasses)

	for i, s := range samples {
		target := s.Target.(DetectionTarget)
		assert.Equal(t, i+1, target.ImageID)
		assert.NoError(t, target.Validate())
	}

	first := samples[0].Target.(DetectionTarget)
	assert.Equal(t, []int{1, 0}, first.Labels)
	assert.Equal(t, []int{0, 1}, first.IsCrowd)
	assert.Equal(t, Box{XMin: 10, YMin: 10, XMax: 60, YMax: 30}, first.Boxes[0])
	assert.InDelta(t, 50*20, first.Area[0], 1e-9)

	// Size comes from the image header when the collection has none.
	last := samples[2].Target.(DetectionTarget)
	assert.Equal(t, Box{XMin: 10, YMin: 5, XMax: 20, YMax: 10}, last.Boxes[0])
	assert.Equal(t, []int{0}, last.IsCrowd)
}

func TestCollectionDataSourceLabelFieldAndUnknownLabels(t *testing.T) {
	coll := &SampleCollection{
		Classes: []string{"dog"},
		Items: []CollectionSample{{Filepath: "a.jpg", Width: 10, Height: 10, Fields: map[string][]Detection{
			"predictions": {{Label: "zebra", BoundingBox: [4]float64{0, 0, 1, 1}, Attributes: map[string]any{"crowd": true}}},
		}}},
	}

	_, err := CollectionDataSource{LabelField: "predictions"}.LoadData(context.Background(), FromCollection(coll), nil)
	assert.True(t, errors.Is(err, ErrInvalidTarget))

	coll.Classes = nil
	samples, err := CollectionDataSource{LabelField: "predictions", CrowdAttribute: "crowd"}.
		LoadData(context.Background(), FromCollection(coll), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, samples[0].Target.(DetectionTarget).IsCrowd)

	_, err = CollectionDataSource{}.LoadData(context.Background(), Source{}, nil)
	assert.True(t, errors.Is(err, ErrInvalidSource))
}

func TestCollectionDataSourceNilSampleCollection(t *testing.T) {
	var coll *SampleCollection
	var ds Dataset
	samples, err := CollectionDataSource{Logger: quietLogger()}.LoadData(context.Background(), FromCollection(coll), &ds)
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Equal(t, 0, ds.NumClasses)
}
