package sampler

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/born-ml/mrdiff/internal/schedule"
)

// ErrInvalidConfig is returned by the sampler constructors for configuration
// values outside their allowed ranges.
var ErrInvalidConfig = errors.New("sampler: invalid configuration")

// configValidate checks the numeric ranges declared in struct tags.
var configValidate = validator.New()

// Stochasticity controls the temporary noise increase ("churn") of each step.
type Stochasticity struct {
	Churn float64 `yaml:"s_churn" validate:"gte=0"`
	Min   float64 `yaml:"s_min" validate:"gte=0"`
	Max   float64 `yaml:"s_max" validate:"gte=0"`
	Noise float64 `yaml:"s_noise" validate:"gte=0"`
}

// Gamma returns the churn factor for a step at noise level sigma.
func (s Stochasticity) Gamma(sigma float64, numSteps int) float64 {
	if sigma < s.Min || sigma > s.Max {
		return 0
	}
	return math.Min(s.Churn/float64(numSteps), math.Sqrt2-1)
}

// EDMConfig configures the EDM sampler. Zero SigmaMin or SigmaMax select
// the defaults 0.002 and 80.
type EDMConfig struct {
	NumSteps      int     `yaml:"num_steps" validate:"gte=1"`
	SigmaMin      float64 `yaml:"sigma_min" validate:"gte=0"`
	SigmaMax      float64 `yaml:"sigma_max" validate:"gte=0"`
	Rho           float64 `yaml:"rho" validate:"gt=0"`
	Stochasticity `yaml:",inline"`

	// ConsistencyWeight scales the measurement-consistency direction added
	// to the Euler step.
	ConsistencyWeight float64 `yaml:"consistency_weight" validate:"gte=0"`
	ResidualFloor     float64 `yaml:"residual_floor" validate:"gt=0"`
}

// DefaultEDMConfig returns the deterministic EDM recipe with 18 steps.
func DefaultEDMConfig() EDMConfig {
	return EDMConfig{
		NumSteps:          18,
		Rho:               7,
		Stochasticity:     Stochasticity{Max: math.Inf(1), Noise: 1},
		ConsistencyWeight: 1,
		ResidualFloor:     1e-8,
	}
}

// Validate checks the configuration.
func (c EDMConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return checkRange(c.SigmaMin, c.SigmaMax)
}

func (c EDMConfig) grid() schedule.Config {
	return schedule.Config{
		Discretization: schedule.DiscretizationEDM,
		Schedule:       schedule.KindLinear,
		Scaling:        schedule.ScalingNone,
		NumSteps:       c.NumSteps,
		SigmaMin:       c.SigmaMin,
		SigmaMax:       c.SigmaMax,
		Rho:            c.Rho,
	}
}

// Solver selects the ODE integrator of the ablation sampler.
type Solver int

// Supported solvers.
const (
	SolverEuler Solver = iota
	SolverHeun
)

// ParseSolver parses "euler" or "heun".
func ParseSolver(name string) (Solver, error) {
	switch name {
	case "euler":
		return SolverEuler, nil
	case "heun":
		return SolverHeun, nil
	}
	return 0, fmt.Errorf("%w: solver %q", schedule.ErrUnsupported, name)
}

func (s Solver) String() string {
	if s == SolverHeun {
		return "heun"
	}
	return "euler"
}

// AblationConfig configures the generalized sampler. Zero SigmaMin or
// SigmaMax select the defaults of the discretization.
type AblationConfig struct {
	NumSteps      int     `yaml:"num_steps" validate:"gte=1"`
	SigmaMin      float64 `yaml:"sigma_min" validate:"gte=0"`
	SigmaMax      float64 `yaml:"sigma_max" validate:"gte=0"`
	Rho           float64 `yaml:"rho" validate:"gt=0"`
	Stochasticity `yaml:",inline"`

	Solver         string `yaml:"solver" validate:"required"`
	Discretization string `yaml:"discretization" validate:"required"`
	Schedule       string `yaml:"schedule" validate:"required"`
	Scaling        string `yaml:"scaling" validate:"required"`

	EpsilonS float64 `yaml:"epsilon_s" validate:"gt=0,lt=1"`
	C1       float64 `yaml:"c_1" validate:"gt=0"`
	C2       float64 `yaml:"c_2" validate:"gt=0"`
	M        int     `yaml:"m" validate:"gte=1"`
	Alpha    float64 `yaml:"alpha" validate:"gt=0,lte=1"`

	// LikelihoodSteps weights the likelihood correction per coefficient
	// image: either one value for all of them or one per basis component,
	// repeated for every reconstruction in the batch.
	LikelihoodSteps []float64 `yaml:"likelihood_steps" validate:"min=1,dive,gte=0"`
	ResidualFloor   float64   `yaml:"residual_floor" validate:"gt=0"`

	// KSpaceQuantile, when positive, divides k-space by this quantile of the
	// reference magnitude before sampling.
	KSpaceQuantile float64 `yaml:"kspace_quantile" validate:"gte=0,lte=1"`
}

// DefaultAblationConfig returns the VP-preserving Euler setup with the
// original EDM ablation constants.
func DefaultAblationConfig() AblationConfig {
	return AblationConfig{
		NumSteps:        18,
		Rho:             7,
		Stochasticity:   Stochasticity{Max: math.Inf(1), Noise: 1},
		Solver:          "euler",
		Discretization:  "vp",
		Schedule:        "vp",
		Scaling:         "vp",
		EpsilonS:        1e-3,
		C1:              0.001,
		C2:              0.008,
		M:               1000,
		Alpha:           1,
		LikelihoodSteps: []float64{7.5},
		ResidualFloor:   1e-8,
		KSpaceQuantile:  0.99,
	}
}

// resolved holds the parsed option names of an AblationConfig.
type resolved struct {
	solver         Solver
	discretization schedule.Discretization
	kind           schedule.Kind
	scaling        schedule.Scaling
}

func (c AblationConfig) parse() (resolved, error) {
	var r resolved
	var err error
	if r.solver, err = ParseSolver(c.Solver); err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if r.discretization, err = schedule.ParseDiscretization(c.Discretization); err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if r.kind, err = schedule.ParseKind(c.Schedule); err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if r.scaling, err = schedule.ParseScaling(c.Scaling); err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return r, nil
}

// Validate checks option names first and numeric ranges second.
func (c AblationConfig) Validate() error {
	if _, err := c.parse(); err != nil {
		return err
	}
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return checkRange(c.SigmaMin, c.SigmaMax)
}

func (c AblationConfig) grid(r resolved) schedule.Config {
	return schedule.Config{
		Discretization: r.discretization,
		Schedule:       r.kind,
		Scaling:        r.scaling,
		NumSteps:       c.NumSteps,
		SigmaMin:       c.SigmaMin,
		SigmaMax:       c.SigmaMax,
		Rho:            c.Rho,
		EpsilonS:       c.EpsilonS,
		C1:             c.C1,
		C2:             c.C2,
		M:              c.M,
	}
}

// stepSizes expands LikelihoodSteps to one weight per batch element of a
// batch made of rank-sized groups.
func (c AblationConfig) stepSizes(batch, rank int) ([]float64, error) {
	n := len(c.LikelihoodSteps)
	if n != 1 && n != rank {
		return nil, fmt.Errorf("%w: %d likelihood steps for rank %d", ErrInvalidConfig, n, rank)
	}
	out := make([]float64, batch)
	for i := range out {
		out[i] = c.LikelihoodSteps[i%n]
	}
	return out, nil
}

func checkRange(lo, hi float64) error {
	if lo > 0 && hi > 0 && lo > hi {
		return fmt.Errorf("%w: sigma_min %g above sigma_max %g", ErrInvalidConfig, lo, hi)
	}
	return nil
}
