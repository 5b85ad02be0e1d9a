package backbones

import (
	"context"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-vision/registry"
)

func offlineFactory(calls *[]bool) Factory {
	return func(_ context.Context, args Args) (*Backbone, error) {
		*calls = append(*calls, args.Pretrained)
		if args.Pretrained {
			return nil, &net.DNSError{Err: "no such host", Name: "weights.example", IsNotFound: true}
		}
		return &Backbone{Name: "stub", Pretrained: false}, nil
	}
}

func TestPretrainedFallback(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []bool

	b, err := WithPretrainedFallback(offlineFactory(&calls), logger)(context.Background(), Args{Pretrained: true})
	require.NoError(t, err)

	assert.Equal(t, &Backbone{Name: "stub"}, b)
	assert.Equal(t, []bool{true, false}, calls)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, FallbackWarning, hook.LastEntry().Message)
}

func TestPretrainedFallbackNotTriggered(t *testing.T) {
	logger, hook := test.NewNullLogger()
	boom := errors.New("corrupt weights")
	var calls int
	fn := WithPretrainedFallback(func(_ context.Context, args Args) (*Backbone, error) {
		calls++
		return nil, boom
	}, logger)

	_, err := fn(context.Background(), Args{Pretrained: true})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, hook.AllEntries())

	// Untrained requests are never retried.
	var offline []bool
	_, err = WithPretrainedFallback(func(_ context.Context, args Args) (*Backbone, error) {
		offline = append(offline, args.Pretrained)
		return nil, ErrUnreachable
	}, logger)(context.Background(), Args{Pretrained: false})
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Equal(t, []bool{false}, offline)
	assert.Empty(t, hook.AllEntries())
}

func TestPretrainedFallbackRetryFails(t *testing.T) {
	logger, hook := test.NewNullLogger()
	second := errors.New("out of memory")
	var calls int
	fn := WithPretrainedFallback(func(_ context.Context, args Args) (*Backbone, error) {
		calls++
		if args.Pretrained {
			return nil, ErrUnreachable
		}
		return nil, second
	}, logger)

	_, err := fn(context.Background(), Args{Pretrained: true})
	assert.Equal(t, second, err)
	assert.Equal(t, 2, calls)
	assert.Empty(t, hook.AllEntries())
}

func TestPretrainedFallbackCanceled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []bool
	fn := WithPretrainedFallback(func(ctx context.Context, args Args) (*Backbone, error) {
		calls = append(calls, args.Pretrained)
		return nil, &url.Error{Op: "Get", URL: "https://weights.example/resnet18.onnx", Err: ctx.Err()}
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := fn(ctx, Args{Pretrained: true})
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, context.Canceled))

	expired, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()
	_, err = fn(expired, Args{Pretrained: true})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.Equal(t, []bool{true, true}, calls)
	assert.Empty(t, hook.AllEntries())
}

func TestIsUnreachable(t *testing.T) {
	assert.False(t, IsUnreachable(nil))
	assert.False(t, IsUnreachable(errors.New("x")))
	assert.False(t, IsUnreachable(errors.Wrap(ErrDownload, "404")))
	assert.True(t, IsUnreachable(errors.Wrap(ErrUnreachable, "offline")))
	assert.True(t, IsUnreachable(errors.Wrap(&net.DNSError{Name: "h"}, "lookup")))
	assert.True(t, IsUnreachable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, IsUnreachable(&url.Error{Op: "Get", URL: "https://weights.example", Err: errors.New("connection reset")}))
	assert.False(t, IsUnreachable(&url.Error{Op: "Get", URL: "https://weights.example", Err: context.Canceled}))
	assert.False(t, IsUnreachable(errors.Wrap(context.Canceled, "download")))
}

func TestHTTPFetcherCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/resnet18.onnx" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	f := NewHTTPFetcher(srv.URL+"/", t.TempDir(), 5*time.Second, logger)

	path, err := f.Fetch(context.Background(), "resnet18")
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(content))

	again, err := f.Fetch(context.Background(), "resnet18")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load())

	_, err = f.Fetch(context.Background(), "resnet34")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownload))
	assert.False(t, IsUnreachable(err))
	_, statErr := os.Stat(filepath.Join(f.CacheDir, "resnet34.onnx"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestHTTPFetcherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	logger, _ := test.NewNullLogger()
	_, err := NewHTTPFetcher(addr, t.TempDir(), time.Second, logger).Fetch(context.Background(), "resnet18")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestClassificationBackbones(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := t.TempDir()
	fetcher := WeightsFetcherFunc(func(_ context.Context, name string) (string, error) {
		return filepath.Join(dir, name+".onnx"), nil
	})
	reg := NewClassificationBackbones(fetcher, logger)

	assert.Equal(t, len(Names), reg.Len())
	assert.Empty(t, reg.Names(), "nothing in the default namespace")
	assert.Len(t, reg.Names(registry.WithNamespace(ClassificationNamespace)), len(Names))

	e, err := reg.Get("resnet50", registry.WithNamespace(ClassificationNamespace))
	require.NoError(t, err)
	assert.Equal(t, ClassificationType, e.Key.Type)
	assert.Equal(t, "torchvision", e.Metadata["package"])

	b, err := reg.Resolve(context.Background(), "resnet50", DefaultArgs(), registry.WithNamespace(ClassificationNamespace))
	require.NoError(t, err)
	assert.Equal(t, 2048, b.NumFeatures)
	assert.True(t, b.Pretrained)
	assert.Equal(t, filepath.Join(dir, "resnet50.onnx"), b.WeightsPath)

	b, err = reg.Resolve(context.Background(), "resnet18", Args{}, registry.WithNamespace(ClassificationNamespace))
	require.NoError(t, err)
	assert.Equal(t, 512, b.NumFeatures)
	assert.Empty(t, b.WeightsPath)
	assert.Empty(t, hook.AllEntries())

	_, err = reg.Resolve(context.Background(), "resnet50", DefaultArgs())
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestDetectionBackbonesOffline(t *testing.T) {
	logger, hook := test.NewNullLogger()
	reg := NewDetectionBackbones(nil, logger)

	b, err := reg.Resolve(context.Background(), "resnet101", DefaultArgs())
	require.NoError(t, err)
	assert.Equal(t, FPNFeatures, b.NumFeatures)
	assert.Equal(t, DetectionType, b.Kind)
	assert.Equal(t, 3, b.TrainableLayers)
	assert.False(t, b.Pretrained)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, ResNet101, hook.LastEntry().Data["backbone"])

	_, err = reg.Resolve(context.Background(), "resnet18", Args{TrainableLayers: 6})
	assert.True(t, errors.Is(err, ErrInvalidArgs))

	_, err = b.Open(SessionOptions{})
	assert.True(t, errors.Is(err, ErrNoWeights))
}

func TestBackboneOpenMissingLibrary(t *testing.T) {
	b := &Backbone{Name: "resnet18", WeightsPath: filepath.Join(t.TempDir(), "resnet18.onnx")}
	_, err := b.Open(SessionOptions{LibraryPath: filepath.Join(t.TempDir(), "libonnxruntime.so")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDetectionHeads(t *testing.T) {
	heads := NewDetectionHeads()
	assert.Equal(t, []string{FasterRCNN, RetinaNet}, heads.Names())

	backbone := &Backbone{Name: "resnet50", NumFeatures: FPNFeatures}
	h, err := heads.Resolve(context.Background(), RetinaNet, HeadArgs{NumClasses: 3, Backbone: backbone})
	require.NoError(t, err)
	assert.Equal(t, &Head{Name: RetinaNet, NumClasses: 3, Backbone: backbone}, h)

	_, err = heads.Resolve(context.Background(), FasterRCNN, HeadArgs{NumClasses: 1, Backbone: backbone})
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	_, err = heads.Resolve(context.Background(), FasterRCNN, HeadArgs{NumClasses: 2})
	assert.True(t, errors.Is(err, ErrInvalidArgs))
}

func TestParseName(t *testing.T) {
	n, err := ParseName("resnext101_32x8d")
	require.NoError(t, err)
	assert.Equal(t, 2048, n.FeatureWidth())

	_, err = ParseName("vgg16")
	assert.True(t, errors.Is(err, ErrUnknownName))
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderCPU, p)

	p, err = ParseProvider("CUDA")
	require.NoError(t, err)
	assert.Equal(t, ProviderCUDA, p)
	assert.Equal(t, map[string]string{"device_id": "1"}, providerConfig(p, 1))
	assert.Nil(t, providerConfig(ProviderCoreML, 0))

	_, err = ParseProvider("tensorrt")
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	b := &Backbone{Name: "resnet18", WeightsPath: "resnet18.onnx"}
	_, err = b.Open(SessionOptions{Provider: "tpu"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}
