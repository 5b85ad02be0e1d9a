// Package data - Sample schema and data sources.
//
// A data source turns a raw dataset description (a folder of class
// directories, an annotation file, an in-memory labeled collection) into a
// list of samples whose INPUT still references the raw datum, and loads one
// sample at a time into its decoded form.
package data

import (
	"maps"

	"github.com/pkg/errors"
)

// Key names a reserved field of a Sample.
type Key string

const (
	// KeyInput is the raw or loaded datum.
	KeyInput Key = "input"
	// KeyTarget is the label or structured annotation.
	KeyTarget Key = "target"
	// KeyMetadata is auxiliary provenance such as the file path and natural size.
	KeyMetadata Key = "metadata"
	// KeyPreds holds predictions, set only after inference.
	KeyPreds Key = "preds"
)

// Keys lists the reserved keys.
var Keys = []Key{KeyInput, KeyTarget, KeyMetadata, KeyPreds}

// ErrUnknownKey is returned for keys outside of Keys.
var ErrUnknownKey = errors.New("data: unknown sample key")

// Metadata is the provenance of a loaded sample.
type Metadata struct {
	// Path is the original file path.
	Path string `json:"filepath" yaml:"filepath"`
	// Height and Width are the natural dimensions of the image.
	Height int `json:"height" yaml:"height"`
	Width  int `json:"width" yaml:"width"`
	// Extra holds loader specific values.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Extra = maps.Clone(m.Extra)
	return &c
}

// Sample is the unit exchanged between data sources, transforms and the
// training framework.
type Sample struct {
	Input    any       `json:"input"`
	Target   any       `json:"target,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Preds    any       `json:"preds,omitempty"`
}

// Get returns the field stored under k.
func (s Sample) Get(k Key) (any, error) {
	switch k {
	case KeyInput:
		return s.Input, nil
	case KeyTarget:
		return s.Target, nil
	case KeyMetadata:
		return s.Metadata, nil
	case KeyPreds:
		return s.Preds, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKey, "%q", k)
	}
}

// With returns a copy of s with the field under k replaced by v. Metadata must
// be a *Metadata or nil.
func (s Sample) With(k Key, v any) (Sample, error) {
	switch k {
	case KeyInput:
		s.Input = v
	case KeyTarget:
		s.Target = v
	case KeyMetadata:
		if v == nil {
			s.Metadata = nil
			break
		}
		m, ok := v.(*Metadata)
		if !ok {
			return s, errors.Errorf("metadata must be *data.Metadata, got %T", v)
		}
		s.Metadata = m
	case KeyPreds:
		s.Preds = v
	default:
		return s, errors.Wrapf(ErrUnknownKey, "%q", k)
	}
	return s, nil
}

// Labeled reports whether the sample carries both INPUT and TARGET.
func (s Sample) Labeled() bool {
	return s.Input != nil && s.Target != nil
}
