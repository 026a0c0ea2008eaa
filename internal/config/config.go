// Package config loads the YAML run configuration of the mrdiff command.
//
// A file only needs the keys it changes: Load decodes it over Default, and
// unknown keys are rejected so that typos do not silently fall back to
// defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/mrdiff/internal/phantom"
	"github.com/born-ml/mrdiff/internal/sampler"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

var validate = newValidator()

// newValidator reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Sampler names.
const (
	SamplerEDM      = "edm"
	SamplerAblation = "ablation"
)

// Denoiser kinds.
const (
	DenoiserNetwork  = "network"
	DenoiserGaussian = "gaussian"
	DenoiserIdentity = "identity"
)

// Run is the configuration of one generation run.
type Run struct {
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Seeds   string `yaml:"seeds" validate:"required"`
	Batch   int    `yaml:"batch" validate:"gte=1"`
	Workers int    `yaml:"workers" validate:"gte=1"`
	// Class fixes the class label; -1 draws one per seed.
	Class   int    `yaml:"class" validate:"gte=-1"`
	OutDir  string `yaml:"outdir" validate:"required"`
	Subdirs bool   `yaml:"subdirs"`

	// Resolution is the image size when neither the measurement nor the
	// denoiser fixes one.
	Resolution int `yaml:"resolution" validate:"gte=0"`

	Sampler  string   `yaml:"sampler" validate:"oneof=edm ablation"`
	Denoiser Denoiser `yaml:"denoiser"`

	// Measurement is an optional safetensors acquisition; Rank selects
	// its number of coefficient images, 0 for all.
	Measurement string `yaml:"measurement"`
	Rank        int    `yaml:"rank" validate:"gte=0"`

	EDM      sampler.EDMConfig      `yaml:"edm" validate:"-"`
	Ablation sampler.AblationConfig `yaml:"ablation" validate:"-"`

	Output  Output         `yaml:"output"`
	Metrics Metrics        `yaml:"metrics"`
	Phantom phantom.Config `yaml:"phantom" validate:"-"`
}

// Denoiser selects the model.
type Denoiser struct {
	Kind    string `yaml:"kind" validate:"oneof=network gaussian identity"`
	Weights string `yaml:"weights" validate:"required_if=Kind network"`
	// Channels of the built-in models; a network takes them from its weights.
	Channels int       `yaml:"channels" validate:"gte=1"`
	Std      float64   `yaml:"std" validate:"required_if=Kind gaussian,gte=0"`
	Means    []float64 `yaml:"means"`
}

// Output selects what is written per seed.
type Output struct {
	PNG     bool   `yaml:"png"`
	Tensors bool   `yaml:"tensors"`
	Zoom    int    `yaml:"zoom" validate:"gte=0"`
	DType   string `yaml:"dtype" validate:"oneof=F32 F64"`
	// LogEvery logs one line per LogEvery sampler steps; 0 disables.
	LogEvery int `yaml:"log_every" validate:"gte=0"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Default returns a runnable configuration: 64 seeds of the EDM sampler
// over a two-channel Gaussian prior.
func Default() Run {
	return Run{
		LogLevel:   "info",
		Seeds:      "0-63",
		Batch:      64,
		Workers:    1,
		Class:      -1,
		OutDir:     "out",
		Resolution: 64,
		Sampler:    SamplerEDM,
		Denoiser:   Denoiser{Kind: DenoiserGaussian, Channels: 2, Std: 0.5},
		EDM:        sampler.DefaultEDMConfig(),
		Ablation:   sampler.DefaultAblationConfig(),
		Output:     Output{PNG: true, DType: "F32"},
		Phantom:    phantom.DefaultConfig(),
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Run, error) {
	cfg := Default()
	//nolint:gosec // G304: path is the user's config file
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the run and the options of the selected sampler.
func (r Run) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return newFieldErrors(verrs)
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	var err error
	switch r.Sampler {
	case SamplerEDM:
		err = r.EDM.Validate()
	case SamplerAblation:
		err = r.Ablation.Validate()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, r.Sampler, err)
	}
	return nil
}

// Level returns the slog level of LogLevel.
func (r Run) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(r.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// FieldError is one failed field rule.
type FieldError struct {
	Field string // dotted YAML path, e.g. "denoiser.weights"
	Rule  string
	Param string
}

// FieldErrors lists every field that failed validation.
type FieldErrors []FieldError

func newFieldErrors(verrs validator.ValidationErrors) FieldErrors {
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out = append(out, FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Field + ": " + f.Rule
		if f.Param != "" {
			parts[i] += "=" + f.Param
		}
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalid.
func (e FieldErrors) Unwrap() error {
	return ErrInvalid
}

// Has reports whether field failed validation.
func (e FieldErrors) Has(field string) bool {
	for _, f := range e {
		if f.Field == field {
			return true
		}
	}
	return false
}
