package backbones

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider is an onnxruntime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCoreML uses Apple's CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA Provider = "cuda"
)

// Providers lists the supported execution providers.
var Providers = []Provider{ProviderCPU, ProviderCoreML, ProviderOpenVINO, ProviderCUDA}

// ErrUnknownProvider is returned for provider names outside of Providers.
var ErrUnknownProvider = errors.New("backbones: unknown execution provider")

// ParseProvider returns the provider called s; empty selects ProviderCPU.
func ParseProvider(s string) (Provider, error) {
	if s == "" {
		return ProviderCPU, nil
	}
	p := Provider(strings.ToLower(s))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownProvider, "%q", s)
}

// providerConfig returns the key/value options handed to the provider.
// See https://onnxruntime.ai/docs/execution-providers/ for the keys.
func providerConfig(p Provider, deviceID int) map[string]string {
	switch p {
	case ProviderCUDA:
		return map[string]string{"device_id": strconv.Itoa(deviceID)}
	case ProviderOpenVINO:
		return map[string]string{"device_type": "CPU", "num_of_threads": "0"}
	default:
		return nil
	}
}

// appendProvider enables p on options. ProviderCPU needs no setup.
func appendProvider(options *ort.SessionOptions, p Provider, deviceID int) error {
	switch p {
	case ProviderCPU, "":
		return nil
	case ProviderCoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "error enabling CoreML")
	case ProviderOpenVINO:
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(providerConfig(p, deviceID)), "error enabling OpenVINO")
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(providerConfig(p, deviceID)); err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		return errors.Wrap(options.AppendExecutionProviderCUDA(cuda), "error enabling CUDA")
	default:
		return errors.Wrapf(ErrUnknownProvider, "%q", p)
	}
}
