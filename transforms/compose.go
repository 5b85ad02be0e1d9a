package transforms

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-vision/data"
)

// ValueFunc transforms a single sample field.
type ValueFunc func(v any) (any, error)

// ApplyToKeys returns a SampleFunc applying fn to the field under key. A nil
// field is passed through untouched, so unlabeled samples survive target transforms.
func ApplyToKeys(key data.Key, fn ValueFunc) SampleFunc {
	return func(_ context.Context, s data.Sample) (data.Sample, error) {
		v, err := s.Get(key)
		if err != nil {
			return s, err
		}
		if isNil(v) {
			return s, nil
		}
		out, err := fn(v)
		if err != nil {
			return s, errors.Wrapf(err, "%s", key)
		}
		return s.With(key, out)
	}
}

// Sequential chains sample transforms. Nil entries are skipped.
func Sequential(fns ...SampleFunc) SampleFunc {
	return func(ctx context.Context, s data.Sample) (data.Sample, error) {
		var err error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if s, err = fn(ctx, s); err != nil {
				return s, err
			}
		}
		return s, nil
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if m, ok := v.(*data.Metadata); ok {
		return m == nil
	}
	return false
}
