package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML, JSON nor HCL.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Load reads a configuration file on top of DefaultConfig and validates it.
//
// The format follows the extension: .yaml, .yml and .json are decoded as YAML,
// .hcl as HCL. HCL files can reference environment variables as env.NAME.
//
// Arguments:
//   - path: The configuration file.
//
// Returns:
//   - Config: The decoded configuration.
//   - error: Read, decode or validation error.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		err = decodeYAML(raw, &cfg)
	case ".hcl":
		err = decodeHCL(filepath.Base(path), raw, &cfg)
	default:
		return Config{}, errors.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to decode %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeHCL(filename string, raw []byte, cfg *Config) error {
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envObject(os.Environ())},
	}
	return hclsimple.Decode(filename, raw, ctx, cfg)
}

// envObject exposes KEY=VALUE pairs as a cty object of strings.
func envObject(environ []string) cty.Value {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}
