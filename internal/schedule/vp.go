package schedule

import "math"

// VPParams are the β parameters of the variance-preserving schedule
// σ(t) = sqrt(exp(½·βd·t² + βmin·t) − 1).
type VPParams struct {
	BetaD   float64
	BetaMin float64
}

// DefaultVP is the variance-preserving schedule the VP default noise range is
// derived from.
var DefaultVP = VPParams{BetaD: 19.9, BetaMin: 0.1}

// FitVP returns the VP parameters whose σ spans [sigmaMin, sigmaMax] over t ∈ [epsilonS, 1].
func FitVP(sigmaMin, sigmaMax, epsilonS float64) VPParams {
	lmin := math.Log(sigmaMin*sigmaMin + 1)
	lmax := math.Log(sigmaMax*sigmaMax + 1)
	betaD := 2 * (lmin/epsilonS - lmax) / (epsilonS - 1)
	return VPParams{BetaD: betaD, BetaMin: lmax - 0.5*betaD}
}

// Sigma returns σ(t).
func (p VPParams) Sigma(t float64) float64 {
	return math.Sqrt(math.Exp(0.5*p.BetaD*t*t+p.BetaMin*t) - 1)
}

// SigmaDeriv returns dσ/dt.
func (p VPParams) SigmaDeriv(t float64) float64 {
	s := p.Sigma(t)
	return 0.5 * (p.BetaMin + p.BetaD*t) * (s + 1/s)
}

// SigmaInv returns the t with σ(t) = sigma.
func (p VPParams) SigmaInv(sigma float64) float64 {
	return (math.Sqrt(p.BetaMin*p.BetaMin+2*p.BetaD*math.Log(sigma*sigma+1)) - p.BetaMin) / p.BetaD
}
