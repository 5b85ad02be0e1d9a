package backbones

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultWeightsURL hosts the ONNX exports of the pretrained backbones.
const DefaultWeightsURL = "https://pl-bolts-weights.s3.us-east-2.amazonaws.com/onnx"

// ErrDownload is returned when the weight store answers with an error status.
var ErrDownload = errors.New("backbones: weight download failed")

// WeightsFetcher returns a local path to the weights of the named model.
type WeightsFetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// WeightsFetcherFunc adapts a function to WeightsFetcher.
type WeightsFetcherFunc func(ctx context.Context, name string) (string, error)

// Fetch calls f.
func (f WeightsFetcherFunc) Fetch(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// HTTPFetcher downloads <BaseURL>/<name>.onnx into CacheDir and reuses cached files.
type HTTPFetcher struct {
	BaseURL  string
	CacheDir string
	Client   *resty.Client
	Logger   logrus.FieldLogger
}

// NewHTTPFetcher returns a fetcher with a resty client using timeout.
func NewHTTPFetcher(baseURL, cacheDir string, timeout time.Duration, logger logrus.FieldLogger) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultWeightsURL
	}
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPFetcher{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		CacheDir: cacheDir,
		Client:   resty.New().SetTimeout(timeout),
		Logger:   logger,
	}
}

// DefaultCacheDir is the user cache directory, or the temp directory when unset.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "go-vision", "weights")
}

// Fetch implements WeightsFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, name string) (string, error) {
	path := filepath.Join(f.CacheDir, name+".onnx")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create weights cache")
	}

	url := strings.TrimRight(f.BaseURL, "/") + "/" + name + ".onnx"
	part := path + ".part"
	log := f.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithField("url", url).Debug("downloading weights")

	client := f.Client
	if client == nil {
		client = resty.New()
	}
	resp, err := client.R().SetContext(ctx).SetOutput(part).Get(url)
	if err != nil {
		_ = os.Remove(part)
		return "", errors.Wrapf(err, "failed to download %s", url)
	}
	if resp.IsError() {
		_ = os.Remove(part)
		return "", errors.Wrapf(ErrDownload, "%s: %s", url, resp.Status())
	}
	if err := os.Rename(part, path); err != nil {
		return "", errors.Wrap(err, "failed to store weights")
	}
	return path, nil
}
