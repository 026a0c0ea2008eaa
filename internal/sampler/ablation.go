package sampler

import (
	"context"
	"fmt"
	"math"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/schedule"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Ablation is the generalized sampler over solver, discretization, noise
// schedule and signal scaling. With an operator attached, every step is
// followed by a likelihood correction computed through the denoiser.
type Ablation struct {
	cfg    AblationConfig
	opt    resolved
	net    denoise.Denoiser
	diff   denoise.Differentiable
	plan   *schedule.Plan
	opts   options
	kScale float64
	// ref is the operator as attached; the final norm match uses its
	// unnormalized reference.
	ref *mri.Operator
}

// NewAblation validates cfg, resolves the time grid against the denoiser and,
// when a measurement is attached, normalizes its k-space.
func NewAblation(net denoise.Denoiser, cfg AblationConfig, opts ...Option) (*Ablation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opt, err := cfg.parse()
	if err != nil {
		return nil, err
	}
	supported := schedule.Range{Min: net.SigmaMin(), Max: net.SigmaMax()}
	plan, err := schedule.NewPlan(cfg.grid(opt), supported, net.RoundSigma)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	a := &Ablation{cfg: cfg, opt: opt, net: net, plan: plan, opts: buildOptions(opts), kScale: 1}
	if a.opts.op == nil {
		return a, nil
	}

	diff, ok := net.(denoise.Differentiable)
	if !ok {
		return nil, fmt.Errorf("%w: likelihood correction needs a differentiable denoiser, got %T", ErrInvalidConfig, net)
	}
	a.diff = diff
	a.ref = a.opts.op
	if _, err := cfg.stepSizes(a.ref.Rank(), a.ref.Rank()); err != nil {
		return nil, err
	}
	if cfg.KSpaceQuantile > 0 {
		if a.opts.op, a.kScale, err = mri.NormalizeQuantile(a.opts.op, cfg.KSpaceQuantile); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Times returns the time grid.
func (a *Ablation) Times() []float64 {
	return a.plan.Times
}

// KSpaceScale returns the factor k-space was divided by, 1 without normalization.
func (a *Ablation) KSpaceScale() float64 {
	return a.kScale
}

// Sample runs the sampler from latents scaled to the first grid point.
func (a *Ablation) Sample(ctx context.Context, latents, labels *tensor.Real, noise NoiseSource) (x *tensor.Real, err error) {
	obs := a.opts.observer
	obs.RunStarted(RunInfo{Sampler: "ablation", Steps: a.plan.Steps(), Shape: latents.Shape(), Times: a.plan.Times})
	defer func() { obs.RunFinished(err) }()

	op := a.opts.op
	var weights *tensor.Real
	if op != nil {
		if err := checkGroups(latents, op); err != nil {
			return nil, err
		}
		steps, err := a.cfg.stepSizes(latents.Dim(0), op.Rank())
		if err != nil {
			return nil, err
		}
		if weights, err = tensor.FromSlice(steps, tensor.Shape{len(steps), 1, 1, 1}); err != nil {
			return nil, err
		}
	}

	sigma, sigmaDeriv, sigmaInv := a.plan.Noise.Sigma, a.plan.Noise.SigmaDeriv, a.plan.Noise.SigmaInv
	s, sDeriv := a.plan.Scale.Scale, a.plan.Scale.ScaleDeriv
	t := a.plan.Times
	n := a.plan.Steps()

	// dxdt evaluates the ODE direction at (x, tt) given D(x/s; σ).
	dxdt := func(x, denoised *tensor.Real, tt float64) *tensor.Real {
		sig, sd, st, sdt := sigma(tt), sigmaDeriv(tt), s(tt), sDeriv(tt)
		return x.Scale(sd/sig+sdt/st).AddScaled(-sd*st/sig, denoised)
	}

	xNext := latents.Scale(sigma(t[0]) * s(t[0]))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ablation step %d: %w", i, err)
		}
		tCur, tNext := t[i], t[i+1]
		xCur := xNext

		// Increase noise temporarily.
		gamma := a.cfg.Gamma(sigma(tCur), n)
		tHat := sigmaInv(a.net.RoundSigma(sigma(tCur) + gamma*sigma(tCur)))
		eps, err := noise.RandnLike(xCur)
		if err != nil {
			return nil, err
		}
		spread := math.Sqrt(max(sigma(tHat)*sigma(tHat)-sigma(tCur)*sigma(tCur), 0)) * s(tHat) * a.cfg.Noise
		xHat := xCur.Scale(s(tHat)/s(tCur)).AddScaled(spread, eps)

		// Euler step, traced when the likelihood correction needs it.
		var (
			denoised *tensor.Real
			grad     *tensor.Real
			residual = math.NaN()
		)
		if op != nil {
			var sse float64
			denoised, grad, sse, err = a.likelihoodGradient(xHat, sigma(tHat), s(tHat), labels)
			residual = math.Sqrt(sse)
		} else {
			denoised, err = query(a.net, xHat.Scale(1/s(tHat)), sigma(tHat), labels)
		}
		if err != nil {
			return nil, err
		}
		h := tNext - tHat
		dCur := dxdt(xHat, denoised, tHat)

		if a.opt.solver == SolverEuler || i == n-1 {
			xNext = xHat.AddScaled(h, dCur)
		} else {
			// Apply 2nd order correction.
			alpha := a.cfg.Alpha
			xPrime := xHat.AddScaled(alpha*h, dCur)
			tPrime := tHat + alpha*h
			denoised2, err := query(a.net, xPrime.Scale(1/s(tPrime)), sigma(tPrime), labels)
			if err != nil {
				return nil, err
			}
			dPrime := dxdt(xPrime, denoised2, tPrime)
			wCur, wPrime := 1-1/(2*alpha), 1/(2*alpha)
			xNext = xHat.AddScaled(h, tensor.Combine(dCur, dPrime, func(u, v float64) float64 {
				return wCur*u + wPrime*v
			}))
		}

		if grad != nil {
			xNext = xNext.Sub(grad.Mul(weights))
		}

		xs, ds := snapshot(obs, xNext, denoised)
		obs.StepFinished(Step{
			Index: i, TCur: tCur, THat: tHat, TNext: tNext, Sigma: sigma(tHat),
			Residual: residual, X: xs, Denoised: ds,
		})
	}

	if op == nil {
		return xNext, nil
	}
	return finish(xNext, a.ref, a.cfg.ResidualFloor)
}
