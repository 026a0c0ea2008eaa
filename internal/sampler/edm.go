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

// EDM is the second-order stochastic sampler of Karras et al. (Algorithm 2)
// with an optional data-consistency direction.
type EDM struct {
	cfg  EDMConfig
	net  denoise.Denoiser
	plan *schedule.Plan
	opts options
}

// NewEDM validates cfg and resolves the time grid against the denoiser.
func NewEDM(net denoise.Denoiser, cfg EDMConfig, opts ...Option) (*EDM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	supported := schedule.Range{Min: net.SigmaMin(), Max: net.SigmaMax()}
	plan, err := schedule.NewPlan(cfg.grid(), supported, net.RoundSigma)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &EDM{cfg: cfg, net: net, plan: plan, opts: buildOptions(opts)}, nil
}

// Times returns the time grid, which for EDM equals the noise levels.
func (e *EDM) Times() []float64 {
	return e.plan.Times
}

// Sample runs the sampler from latents scaled to the largest noise level.
func (e *EDM) Sample(ctx context.Context, latents, labels *tensor.Real, noise NoiseSource) (x *tensor.Real, err error) {
	obs := e.opts.observer
	obs.RunStarted(RunInfo{Sampler: "edm", Steps: e.plan.Steps(), Shape: latents.Shape(), Times: e.plan.Times})
	defer func() { obs.RunFinished(err) }()

	if err := checkGroups(latents, e.opts.op); err != nil {
		return nil, err
	}

	t := e.plan.Times
	n := e.plan.Steps()
	xNext := latents.Scale(t[0])
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("edm step %d: %w", i, err)
		}
		tCur, tNext := t[i], t[i+1]
		xCur := xNext

		// Increase noise temporarily.
		gamma := e.cfg.Gamma(tCur, n)
		tHat := e.net.RoundSigma(tCur + gamma*tCur)
		eps, err := noise.RandnLike(xCur)
		if err != nil {
			return nil, err
		}
		xHat := xCur.AddScaled(math.Sqrt(max(tHat*tHat-tCur*tCur, 0))*e.cfg.Noise, eps)

		// Euler step.
		denoised, err := query(e.net, xHat, tHat, labels)
		if err != nil {
			return nil, err
		}
		dCur := xHat.Sub(denoised).Scale(1 / tHat)
		dir := dCur
		residual := math.NaN()
		if e.opts.op != nil {
			m, r, err := e.consistency(xCur, dCur)
			if err != nil {
				return nil, err
			}
			dir, residual = dCur.Add(m), r
		}
		h := tNext - tHat
		xNext = xHat.AddScaled(h, dir)

		// Apply 2nd order correction.
		if i < n-1 {
			denoised2, err := query(e.net, xNext, tNext, labels)
			if err != nil {
				return nil, err
			}
			dPrime := xNext.Sub(denoised2).Scale(1 / tNext)
			xNext = xHat.AddScaled(h, tensor.Combine(dCur, dPrime, func(u, v float64) float64 {
				return 0.5*u + 0.5*v
			}))
		}

		xs, ds := snapshot(obs, xNext, denoised)
		obs.StepFinished(Step{
			Index: i, TCur: tCur, THat: tHat, TNext: tNext, Sigma: tHat,
			Residual: residual, X: xs, Denoised: ds,
		})
	}
	return xNext, nil
}

// consistency returns the data-consistency direction for x: the gradient of
// ½‖y − A x‖² normalized to unit norm per plane, then rescaled to the plane
// norms of d and the configured weight. It also returns ‖y − A x‖.
func (e *EDM) consistency(x, d *tensor.Real) (*tensor.Real, float64, error) {
	op := e.opts.op
	grad := tensor.ZerosLike(x)
	sse := 0.0
	err := forGroups(x.Dim(0), op, func(start, end int) error {
		g, s, err := mri.DataGradient(x.Slice(start, end), op)
		if err != nil {
			return err
		}
		grad.Slice(start, end).CopyFrom(g)
		sse += s
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return matchPlaneNorms(grad, d, e.cfg.ResidualFloor).Scale(e.cfg.ConsistencyWeight), math.Sqrt(sse), nil
}
