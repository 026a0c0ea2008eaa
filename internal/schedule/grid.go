package schedule

import (
	"fmt"
	"math"
)

// Range is a closed interval of noise levels.
type Range struct {
	Min float64
	Max float64
}

// Clamp intersects r with the range supported by a denoiser.
func (r Range) Clamp(supported Range) Range {
	return Range{
		Min: math.Max(r.Min, supported.Min),
		Max: math.Min(r.Max, supported.Max),
	}
}

// DefaultRange returns the noise range used for d when the caller leaves it unset.
func DefaultRange(d Discretization, epsilonS float64) Range {
	switch d {
	case DiscretizationVP:
		return Range{Min: DefaultVP.Sigma(epsilonS), Max: DefaultVP.Sigma(1)}
	case DiscretizationVE:
		return Range{Min: 0.02, Max: 100}
	case DiscretizationIDDPM:
		return Range{Min: 0.002, Max: 81}
	default:
		return Range{Min: 0.002, Max: 80}
	}
}

// Config describes a time grid. Zero SigmaMin or SigmaMax select the
// discretization's default.
type Config struct {
	Discretization Discretization
	Schedule       Kind
	Scaling        Scaling

	NumSteps int
	SigmaMin float64
	SigmaMax float64
	Rho      float64
	EpsilonS float64
	C1       float64
	C2       float64
	M        int
}

// Plan is a resolved time grid together with the schedule functions needed
// to integrate over it.
type Plan struct {
	Range  Range
	VP     VPParams
	Noise  Noise
	Scale  SignalScale
	Sigmas []float64 // num_steps noise levels before rounding
	Times  []float64 // num_steps+1 times, the last one 0
}

// NewPlan resolves cfg against the range a denoiser supports. round snaps a
// noise level to one the denoiser was trained on; nil means identity.
func NewPlan(cfg Config, supported Range, round func(float64) float64) (*Plan, error) {
	if cfg.NumSteps < 1 {
		return nil, fmt.Errorf("%w: num_steps %d", ErrEmptyRange, cfg.NumSteps)
	}
	if round == nil {
		round = func(s float64) float64 { return s }
	}

	r := DefaultRange(cfg.Discretization, cfg.EpsilonS)
	if cfg.SigmaMin > 0 {
		r.Min = cfg.SigmaMin
	}
	if cfg.SigmaMax > 0 {
		r.Max = cfg.SigmaMax
	}
	r = r.Clamp(supported)
	if !(r.Min > 0 && r.Min <= r.Max) {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrEmptyRange, r.Min, r.Max)
	}

	vp := FitVP(r.Min, r.Max, cfg.EpsilonS)
	noise, err := NoiseFor(cfg.Schedule, vp)
	if err != nil {
		return nil, err
	}
	scale, err := ScaleFor(cfg.Scaling, noise)
	if err != nil {
		return nil, err
	}
	sigmas, err := SigmaSteps(cfg, r, vp)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Range:  r,
		VP:     vp,
		Noise:  noise,
		Scale:  scale,
		Sigmas: sigmas,
		Times:  TimeGrid(sigmas, round, noise.SigmaInv),
	}, nil
}

// Steps returns the number of integration steps.
func (p *Plan) Steps() int {
	return len(p.Times) - 1
}

// SigmaSteps returns cfg.NumSteps decreasing noise levels over r.
func SigmaSteps(cfg Config, r Range, vp VPParams) ([]float64, error) {
	n := cfg.NumSteps
	frac := func(i int) float64 {
		if n == 1 {
			return 0
		}
		return float64(i) / float64(n-1)
	}

	out := make([]float64, n)
	switch cfg.Discretization {
	case DiscretizationEDM:
		lo, hi := math.Pow(r.Min, 1/cfg.Rho), math.Pow(r.Max, 1/cfg.Rho)
		for i := range out {
			out[i] = math.Pow(hi+frac(i)*(lo-hi), cfg.Rho)
		}
	case DiscretizationVP:
		for i := range out {
			out[i] = vp.Sigma(1 + frac(i)*(cfg.EpsilonS-1))
		}
	case DiscretizationVE:
		ratio := r.Min * r.Min / (r.Max * r.Max)
		for i := range out {
			out[i] = math.Sqrt(r.Max * r.Max * math.Pow(ratio, frac(i)))
		}
	case DiscretizationIDDPM:
		levels := iddpmLevels(cfg.M, cfg.C1, cfg.C2, r)
		if len(levels) == 0 {
			return nil, fmt.Errorf("%w: no iDDPM level in [%g, %g]", ErrEmptyRange, r.Min, r.Max)
		}
		for i := range out {
			out[i] = levels[int(math.RoundToEven(float64(len(levels)-1)*frac(i)))]
		}
	default:
		return nil, fmt.Errorf("%w: discretization %d", ErrUnsupported, int(cfg.Discretization))
	}
	return out, nil
}

// iddpmLevels inverts the cosine ᾱ schedule over m bins and returns the levels
// inside r in decreasing order.
func iddpmLevels(m int, c1, c2 float64, r Range) []float64 {
	alphaBar := func(j int) float64 {
		s := math.Sin(0.5 * math.Pi * float64(j) / float64(m) / (c2 + 1))
		return s * s
	}
	u := make([]float64, m+1)
	for j := m; j > 0; j-- {
		ratio := math.Max(alphaBar(j-1)/alphaBar(j), c1)
		u[j-1] = math.Sqrt((u[j]*u[j]+1)/ratio - 1)
	}

	levels := make([]float64, 0, m+1)
	for _, v := range u {
		if v >= r.Min && v <= r.Max {
			levels = append(levels, v)
		}
	}
	return levels
}

// TimeGrid maps rounded noise levels to times and appends the terminal 0.
func TimeGrid(sigmas []float64, round, sigmaInv func(float64) float64) []float64 {
	t := make([]float64, len(sigmas)+1)
	for i, s := range sigmas {
		t[i] = sigmaInv(round(s))
	}
	return t
}
