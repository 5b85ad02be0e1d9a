package backbones

import (
	"context"
	"net"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-vision/registry"
)

// FallbackWarning is logged when a backbone is built without its pretrained weights.
const FallbackWarning = "Failed to download pretrained weights for the selected backbone. " +
	"The backbone has been created with pretrained=false instead. " +
	"If you are loading from a local checkpoint, this warning can be safely ignored."

// ErrUnreachable marks a weight store that could not be reached.
var ErrUnreachable = errors.New("backbones: weight store unreachable")

// Args are the arguments of a backbone factory.
type Args struct {
	// Pretrained requests pretrained weights.
	Pretrained bool `json:"pretrained" yaml:"pretrained"`
	// TrainableLayers is the number of trainable ResNet stages (0..5), detection only.
	TrainableLayers int `json:"trainable_layers" yaml:"trainable_layers"`
}

// DefaultArgs returns pretrained weights with three trainable stages.
func DefaultArgs() Args {
	return Args{Pretrained: true, TrainableLayers: 3}
}

// Factory builds a backbone.
type Factory = registry.Factory[*Backbone, Args]

// IsUnreachable reports whether err means the network or the remote host could
// not be reached. HTTP status errors and cancellation do not count.
func IsUnreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// WithPretrainedFallback wraps a factory so that a pretrained build failing
// with an unreachable weight store is retried once with Pretrained=false.
//
// The retry logs FallbackWarning once on success. Other errors, errors of the
// retry itself and any error once ctx is done are returned unchanged.
//
// Arguments:
//   - factory: The backbone factory to wrap.
//   - logger: Receives the warning; logrus.StandardLogger() when nil.
//
// Returns:
//   - Factory: The wrapped factory.
//
// @example
// fn := WithPretrainedFallback(resnet, log)
// b, err := fn(ctx, Args{Pretrained: true}) // b.Pretrained == false when offline
func WithPretrainedFallback(factory Factory, logger logrus.FieldLogger) Factory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(ctx context.Context, args Args) (*Backbone, error) {
		b, err := factory(ctx, args)
		if err == nil || !args.Pretrained || ctx.Err() != nil || !IsUnreachable(err) {
			return b, err
		}

		args.Pretrained = false
		b, retryErr := factory(ctx, args)
		if retryErr != nil {
			return nil, retryErr
		}
		logger.WithError(err).Warn(FallbackWarning)
		return b, nil
	}
}
