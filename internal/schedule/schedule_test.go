package schedule_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/schedule"
)

var unbounded = schedule.Range{Min: 0, Max: math.Inf(1)}

func baseConfig(d schedule.Discretization, k schedule.Kind, s schedule.Scaling) schedule.Config {
	return schedule.Config{
		Discretization: d,
		Schedule:       k,
		Scaling:        s,
		NumSteps:       18,
		Rho:            7,
		EpsilonS:       1e-3,
		C1:             0.001,
		C2:             0.008,
		M:              1000,
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := schedule.ParseDiscretization("bogus")
	require.ErrorIs(t, err, schedule.ErrUnsupported)
	assert.Contains(t, err.Error(), "bogus")

	_, err = schedule.ParseKind("cosine")
	require.ErrorIs(t, err, schedule.ErrUnsupported)

	_, err = schedule.ParseScaling("ve")
	require.ErrorIs(t, err, schedule.ErrUnsupported)
}

func TestParse_RoundTrip(t *testing.T) {
	for _, name := range []string{"edm", "vp", "ve", "iddpm"} {
		d, err := schedule.ParseDiscretization(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.String())
	}
	for _, name := range []string{"linear", "vp", "ve"} {
		k, err := schedule.ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, name, k.String())
	}
	assert.Equal(t, "unknown(9)", schedule.Scaling(9).String())
}

func TestNewPlan_GridIsMonotoneWithFinalZero(t *testing.T) {
	combos := []struct {
		d schedule.Discretization
		k schedule.Kind
		s schedule.Scaling
	}{
		{schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone},
		{schedule.DiscretizationVP, schedule.KindVP, schedule.ScalingVP},
		{schedule.DiscretizationVE, schedule.KindVE, schedule.ScalingNone},
		{schedule.DiscretizationIDDPM, schedule.KindLinear, schedule.ScalingNone},
		{schedule.DiscretizationEDM, schedule.KindVP, schedule.ScalingVP},
	}
	for _, c := range combos {
		t.Run(c.d.String()+"/"+c.k.String()+"/"+c.s.String(), func(t *testing.T) {
			plan, err := schedule.NewPlan(baseConfig(c.d, c.k, c.s), unbounded, nil)
			require.NoError(t, err)
			require.Len(t, plan.Times, 19)
			assert.Equal(t, 18, plan.Steps())
			assert.Equal(t, 0.0, plan.Times[18])
			for i := 1; i < len(plan.Times); i++ {
				assert.LessOrEqual(t, plan.Times[i], plan.Times[i-1], "step %d", i)
			}
			for i := 1; i < len(plan.Sigmas); i++ {
				assert.LessOrEqual(t, plan.Sigmas[i], plan.Sigmas[i-1]*(1+1e-12))
			}
		})
	}
}

func TestNewPlan_EDMEndpoints(t *testing.T) {
	plan, err := schedule.NewPlan(baseConfig(schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone), unbounded, nil)
	require.NoError(t, err)
	assert.InDelta(t, 80, plan.Times[0], 1e-9)
	assert.InDelta(t, 0.002, plan.Times[17], 1e-12)
}

func TestNewPlan_ClampsToDenoiserRange(t *testing.T) {
	cfg := baseConfig(schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone)
	cfg.SigmaMin = 0.0001
	cfg.SigmaMax = 500

	plan, err := schedule.NewPlan(cfg, schedule.Range{Min: 0.01, Max: 20}, nil)
	require.NoError(t, err)
	assert.Equal(t, schedule.Range{Min: 0.01, Max: 20}, plan.Range)
	assert.InDelta(t, 20, plan.Times[0], 1e-9)
}

func TestNewPlan_RoundSigma(t *testing.T) {
	cfg := baseConfig(schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone)
	plan, err := schedule.NewPlan(cfg, unbounded, math.Round)
	require.NoError(t, err)
	for _, v := range plan.Times {
		assert.Equal(t, math.Round(v), v)
	}
}

func TestNewPlan_SingleStep(t *testing.T) {
	for _, d := range []schedule.Discretization{
		schedule.DiscretizationEDM, schedule.DiscretizationVP,
		schedule.DiscretizationVE, schedule.DiscretizationIDDPM,
	} {
		cfg := baseConfig(d, schedule.KindLinear, schedule.ScalingNone)
		cfg.NumSteps = 1
		plan, err := schedule.NewPlan(cfg, unbounded, nil)
		require.NoError(t, err, d.String())
		require.Len(t, plan.Times, 2)
		if d == schedule.DiscretizationIDDPM {
			// The largest iDDPM bin inside the range.
			assert.LessOrEqual(t, plan.Sigmas[0], plan.Range.Max)
			assert.Greater(t, plan.Sigmas[0], plan.Range.Max/2)
		} else {
			assert.InDelta(t, plan.Range.Max, plan.Sigmas[0], 1e-6*plan.Range.Max, d.String())
		}
		assert.Equal(t, 0.0, plan.Times[1])
	}
}

func TestNewPlan_Errors(t *testing.T) {
	cfg := baseConfig(schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone)
	cfg.NumSteps = 0
	_, err := schedule.NewPlan(cfg, unbounded, nil)
	require.ErrorIs(t, err, schedule.ErrEmptyRange)

	cfg = baseConfig(schedule.DiscretizationEDM, schedule.KindLinear, schedule.ScalingNone)
	_, err = schedule.NewPlan(cfg, schedule.Range{Min: 100, Max: 200}, nil)
	require.ErrorIs(t, err, schedule.ErrEmptyRange)

	cfg = baseConfig(schedule.Discretization(42), schedule.KindLinear, schedule.ScalingNone)
	_, err = schedule.NewPlan(cfg, unbounded, nil)
	require.ErrorIs(t, err, schedule.ErrUnsupported)
}

func TestVPParams_InverseAndDerivative(t *testing.T) {
	vp := schedule.FitVP(0.002, 80, 1e-3)
	assert.InDelta(t, 80, vp.Sigma(1), 1e-6)
	assert.InDelta(t, 0.002, vp.Sigma(1e-3), 1e-9)

	for _, tt := range []float64{0.01, 0.2, 0.5, 0.9} {
		assert.InDelta(t, tt, vp.SigmaInv(vp.Sigma(tt)), 1e-9)

		h := 1e-6
		numeric := (vp.Sigma(tt+h) - vp.Sigma(tt-h)) / (2 * h)
		assert.InEpsilon(t, numeric, vp.SigmaDeriv(tt), 1e-5)
	}
}

func TestDefaultRange_VP(t *testing.T) {
	r := schedule.DefaultRange(schedule.DiscretizationVP, 1e-3)
	assert.InDelta(t, schedule.DefaultVP.Sigma(1e-3), r.Min, 1e-15)
	assert.InDelta(t, math.Sqrt(math.Exp(0.5*19.9+0.1)-1), r.Max, 1e-9)
}

func TestScaleFor_VPDerivative(t *testing.T) {
	noise, err := schedule.NoiseFor(schedule.KindVE, schedule.VPParams{})
	require.NoError(t, err)
	scale, err := schedule.ScaleFor(schedule.ScalingVP, noise)
	require.NoError(t, err)

	tt, h := 4.0, 1e-6
	numeric := (scale.Scale(tt+h) - scale.Scale(tt-h)) / (2 * h)
	assert.InDelta(t, numeric, scale.ScaleDeriv(tt), 1e-8)
	assert.InDelta(t, 1/math.Sqrt(5), scale.Scale(tt), 1e-12)
}
