// Package schedule provides the noise-level parameterizations used by the
// samplers: the time-step discretizations, the noise schedules σ(t) with their
// derivatives and inverses, and the signal scaling s(t).
//
// Every option is a small tag parsed from its configuration name. Tags map
// through lookup tables to structs of pure functions, so choosing a schedule
// never branches inside the sampling loop.
package schedule

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnsupported is returned for an unknown discretization, schedule or scaling name.
	ErrUnsupported = errors.New("schedule: unsupported option")

	// ErrEmptyRange is returned when the resolved noise range holds no levels.
	ErrEmptyRange = errors.New("schedule: empty noise range")
)

// Discretization selects how the noise levels of the time grid are spaced.
type Discretization int

// Supported discretizations.
const (
	DiscretizationEDM Discretization = iota
	DiscretizationVP
	DiscretizationVE
	DiscretizationIDDPM
)

var discretizationNames = map[string]Discretization{
	"edm":   DiscretizationEDM,
	"vp":    DiscretizationVP,
	"ve":    DiscretizationVE,
	"iddpm": DiscretizationIDDPM,
}

// ParseDiscretization parses one of "edm", "vp", "ve", "iddpm".
func ParseDiscretization(name string) (Discretization, error) {
	d, ok := discretizationNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: discretization %q", ErrUnsupported, name)
	}
	return d, nil
}

func (d Discretization) String() string {
	return nameOf(discretizationNames, d)
}

// Kind selects the noise schedule σ(t).
type Kind int

// Supported noise schedules.
const (
	KindLinear Kind = iota
	KindVP
	KindVE
)

var kindNames = map[string]Kind{
	"linear": KindLinear,
	"vp":     KindVP,
	"ve":     KindVE,
}

// ParseKind parses one of "linear", "vp", "ve".
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: schedule %q", ErrUnsupported, name)
	}
	return k, nil
}

func (k Kind) String() string {
	return nameOf(kindNames, k)
}

// Scaling selects the signal scaling s(t).
type Scaling int

// Supported scalings.
const (
	ScalingNone Scaling = iota
	ScalingVP
)

var scalingNames = map[string]Scaling{
	"none": ScalingNone,
	"vp":   ScalingVP,
}

// ParseScaling parses one of "none", "vp".
func ParseScaling(name string) (Scaling, error) {
	s, ok := scalingNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: scaling %q", ErrUnsupported, name)
	}
	return s, nil
}

func (s Scaling) String() string {
	return nameOf(scalingNames, s)
}

func nameOf[T ~int](names map[string]T, v T) string {
	for name, tag := range names {
		if tag == v {
			return name
		}
	}
	return fmt.Sprintf("unknown(%d)", int(v))
}

// Noise holds σ(t), dσ/dt and σ⁻¹ for one schedule.
type Noise struct {
	Sigma      func(t float64) float64
	SigmaDeriv func(t float64) float64
	SigmaInv   func(sigma float64) float64
}

// SignalScale holds s(t) and ds/dt.
type SignalScale struct {
	Scale      func(t float64) float64
	ScaleDeriv func(t float64) float64
}

var noiseTable = map[Kind]func(vp VPParams) Noise{
	KindLinear: func(VPParams) Noise {
		return Noise{
			Sigma:      func(t float64) float64 { return t },
			SigmaDeriv: func(float64) float64 { return 1 },
			SigmaInv:   func(s float64) float64 { return s },
		}
	},
	KindVP: func(vp VPParams) Noise {
		return Noise{Sigma: vp.Sigma, SigmaDeriv: vp.SigmaDeriv, SigmaInv: vp.SigmaInv}
	},
	KindVE: func(VPParams) Noise {
		return Noise{
			Sigma:      math.Sqrt,
			SigmaDeriv: func(t float64) float64 { return 0.5 / math.Sqrt(t) },
			SigmaInv:   func(s float64) float64 { return s * s },
		}
	},
}

var scalingTable = map[Scaling]func(n Noise) SignalScale{
	ScalingNone: func(Noise) SignalScale {
		return SignalScale{
			Scale:      func(float64) float64 { return 1 },
			ScaleDeriv: func(float64) float64 { return 0 },
		}
	},
	ScalingVP: func(n Noise) SignalScale {
		scale := func(t float64) float64 {
			s := n.Sigma(t)
			return 1 / math.Sqrt(1+s*s)
		}
		return SignalScale{
			Scale: scale,
			ScaleDeriv: func(t float64) float64 {
				s := scale(t)
				return -n.Sigma(t) * n.SigmaDeriv(t) * s * s * s
			},
		}
	},
}

// NoiseFor returns the σ functions of schedule k. vp is only used by KindVP.
func NoiseFor(k Kind, vp VPParams) (Noise, error) {
	build, ok := noiseTable[k]
	if !ok {
		return Noise{}, fmt.Errorf("%w: schedule %d", ErrUnsupported, int(k))
	}
	return build(vp), nil
}

// ScaleFor returns the signal scaling s for the given noise schedule.
func ScaleFor(s Scaling, n Noise) (SignalScale, error) {
	build, ok := scalingTable[s]
	if !ok {
		return SignalScale{}, fmt.Errorf("%w: scaling %d", ErrUnsupported, int(s))
	}
	return build(n), nil
}
