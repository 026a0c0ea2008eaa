package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/serialization"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Network weight keys.
const (
	KeyInWeight    = "in.weight"
	KeyInBias      = "in.bias"
	KeyNoiseWeight = "noise.weight"
	KeyOutWeight   = "out.weight"
	KeyOutBias     = "out.bias"
)

// Network metadata keys.
const (
	MetaSigmaData  = "sigma_data"
	MetaSigmaMin   = "sigma_min"
	MetaSigmaMax   = "sigma_max"
	MetaResolution = "resolution"
	MetaLevels     = "sigma_levels"
)

// DefaultSigmaData is used when the weights file does not record sigma_data.
const DefaultSigmaData = 0.5

// LoadNetwork reads the weights and metadata of a pointwise denoiser.
// Missing metadata falls back to sigma_data 0.5, the range [0, +Inf) and
// any resolution. sigma_levels is a comma-separated list of the discrete
// noise levels the model supports.
func LoadNetwork(path string) (*denoise.Network, error) {
	f, err := serialization.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	n, err := readNetwork(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func readNetwork(f *serialization.File) (*denoise.Network, error) {
	var w denoise.NetworkWeights
	fields := []struct {
		key string
		dst **tensor.Real
	}{
		{KeyInWeight, &w.InWeight},
		{KeyInBias, &w.InBias},
		{KeyNoiseWeight, &w.NoiseWeight},
		{KeyOutWeight, &w.OutWeight},
		{KeyOutBias, &w.OutBias},
	}
	for _, field := range fields {
		if !f.Has(field.key) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, field.key)
		}
		x, err := f.Real(field.key)
		if err != nil {
			return nil, err
		}
		*field.dst = x
	}
	if w.InWeight.Dims() != 2 {
		return nil, fmt.Errorf("%w: %s must be [Hd, C], got %v", tensor.ErrShape, KeyInWeight, w.InWeight.Shape())
	}

	meta := f.Metadata()
	info := denoise.Info{MaxSigma: math.Inf(1), Channels: w.InWeight.Dim(1)}
	sigmaData := DefaultSigmaData
	var err error
	if info.MinSigma, err = metaFloat(meta, MetaSigmaMin, 0); err != nil {
		return nil, err
	}
	if info.MaxSigma, err = metaFloat(meta, MetaSigmaMax, info.MaxSigma); err != nil {
		return nil, err
	}
	if sigmaData, err = metaFloat(meta, MetaSigmaData, sigmaData); err != nil {
		return nil, err
	}
	if v, ok := meta[MetaResolution]; ok {
		if info.Resolution, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", MetaResolution, err)
		}
	}
	if v, ok := meta[MetaLevels]; ok && v != "" {
		for _, s := range strings.Split(v, ",") {
			level, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("metadata %s: %w", MetaLevels, err)
			}
			info.Levels = append(info.Levels, level)
		}
	}
	return denoise.NewNetwork(info, sigmaData, w)
}

func metaFloat(meta map[string]string, key string, def float64) (float64, error) {
	v, ok := meta[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("metadata %s: %w", key, err)
	}
	return f, nil
}

// SaveNetwork writes the weights and metadata of n.
func SaveNetwork(path string, n *denoise.Network) error {
	w, err := serialization.NewWriter(serialization.F64)
	if err != nil {
		return err
	}
	weights := n.Weights()
	for key, x := range map[string]*tensor.Real{
		KeyInWeight:    weights.InWeight,
		KeyInBias:      weights.InBias,
		KeyNoiseWeight: weights.NoiseWeight,
		KeyOutWeight:   weights.OutWeight,
		KeyOutBias:     weights.OutBias,
	} {
		if err := w.AddReal(key, x); err != nil {
			return err
		}
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	w.SetMetadata(MetaSigmaData, format(n.SigmaData))
	w.SetMetadata(MetaSigmaMin, format(n.SigmaMin()))
	w.SetMetadata(MetaSigmaMax, format(n.SigmaMax()))
	if n.Resolution > 0 {
		w.SetMetadata(MetaResolution, strconv.Itoa(n.Resolution))
	}
	if len(n.Levels) > 0 {
		levels := make([]string, len(n.Levels))
		for i, l := range n.Levels {
			levels[i] = format(l)
		}
		w.SetMetadata(MetaLevels, strings.Join(levels, ","))
	}
	return w.WriteFile(path)
}
