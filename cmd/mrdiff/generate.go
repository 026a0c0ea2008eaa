package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/born-ml/mrdiff/internal/config"
	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/generate"
	"github.com/born-ml/mrdiff/internal/imageio"
	"github.com/born-ml/mrdiff/internal/loader"
	"github.com/born-ml/mrdiff/internal/metrics"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/serialization"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample one image per seed",
		Long: `Sample one image per seed with the EDM or ablation sampler.

With a measurement, every sample is pulled toward agreement with its k-space
and holds one coefficient image per basis component.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}
	f := cmd.Flags()
	f.String("seeds", "", "seed list, e.g. 0-63 or 1,5,7-9")
	f.String("outdir", "", "output directory")
	f.Bool("subdirs", false, "group outputs in subdirectories of 1000 seeds")
	f.Int("batch", 0, "maximum batch size")
	f.Int("workers", 0, "batches sampled concurrently")
	f.Int("class", 0, "class label, -1 for random")
	f.String("sampler", "", "sampler (edm, ablation)")
	f.String("network", "", "denoiser weights (safetensors)")
	f.String("measurement", "", "acquisition to reconstruct (safetensors)")
	f.Int("rank", 0, "number of basis components, 0 for all")
	f.Int("steps", 0, "number of sampling steps")
	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(f *pflag.FlagSet, cfg *config.Run) {
	if f.Changed("seeds") {
		cfg.Seeds, _ = f.GetString("seeds")
	}
	if f.Changed("outdir") {
		cfg.OutDir, _ = f.GetString("outdir")
	}
	if f.Changed("subdirs") {
		cfg.Subdirs, _ = f.GetBool("subdirs")
	}
	if f.Changed("batch") {
		cfg.Batch, _ = f.GetInt("batch")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("class") {
		cfg.Class, _ = f.GetInt("class")
	}
	if f.Changed("sampler") {
		cfg.Sampler, _ = f.GetString("sampler")
	}
	if f.Changed("network") {
		cfg.Denoiser.Kind = config.DenoiserNetwork
		cfg.Denoiser.Weights, _ = f.GetString("network")
	}
	if f.Changed("measurement") {
		cfg.Measurement, _ = f.GetString("measurement")
	}
	if f.Changed("rank") {
		cfg.Rank, _ = f.GetInt("rank")
	}
	if f.Changed("steps") {
		steps, _ := f.GetInt("steps")
		cfg.EDM.NumSteps = steps
		cfg.Ablation.NumSteps = steps
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	runID := uuid.NewString()
	logger := newLogger(cmd, cfg).With("run", runID)

	seeds, err := generate.ParseIntList(cfg.Seeds)
	if err != nil {
		return err
	}
	net, err := newDenoiser(cfg.Denoiser)
	if err != nil {
		return err
	}

	runner := &generate.Runner{
		Channels: net.ImgChannels(),
		LabelDim: net.LabelDim(),
		ClassIdx: cfg.Class,
		MaxBatch: cfg.Batch,
		Workers:  cfg.Workers,
		Logger:   logger,
	}

	var m *mri.Measurement
	if cfg.Measurement != "" {
		if m, err = loader.LoadMeasurement(cfg.Measurement); err != nil {
			return err
		}
		op, err := mri.NewOperator(m, cfg.Rank)
		if err != nil {
			return err
		}
		runner.Rank = op.Rank()
		runner.Height, runner.Width = m.Size()
		logger.Info("measurement loaded", "path", cfg.Measurement,
			"frames", m.Frames(), "coils", m.Coils(), "rank", op.Rank(), "sampling_rate", m.SamplingRate())
	} else {
		res := net.ImgResolution()
		if res == 0 {
			res = cfg.Resolution
		}
		if res == 0 {
			return errors.New("generate: image size unknown; set resolution or a measurement")
		}
		runner.Height, runner.Width = res, res
	}
	runner.NewSampler = samplerFactory(cfg, net, m, runner.Rank)

	met := metrics.New()
	runner.Observer = func(seeds []int64) sampler.Observer {
		log := sampler.LogObserver{
			Logger: logger.With("seeds", fmt.Sprintf("%d-%d", seeds[0], seeds[len(seeds)-1])),
			Every:  cfg.Output.LogEvery,
		}
		return sampler.Multi{log, met.Observer()}
	}

	if err := os.MkdirAll(cfg.OutDir, 0o750); err != nil {
		return err
	}
	runner.Sink = met.Sink(newSinks(cfg, runID, logger))

	runErr := runner.Run(cmd.Context(), seeds)
	if cfg.Metrics.Textfile != "" {
		if err := met.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	return runErr
}

func newDenoiser(cfg config.Denoiser) (denoise.Denoiser, error) {
	switch cfg.Kind {
	case config.DenoiserNetwork:
		return loader.LoadNetwork(cfg.Weights)
	case config.DenoiserGaussian:
		return denoise.NewGaussian(cfg.Channels, cfg.Std, cfg.Means...)
	case config.DenoiserIdentity:
		return denoise.NewIdentity(cfg.Channels), nil
	}
	return nil, fmt.Errorf("%w: denoiser kind %q", config.ErrInvalid, cfg.Kind)
}

// samplerFactory builds one sampler per batch. Operators are not safe for
// concurrent use, so every batch gets its own.
func samplerFactory(cfg config.Run, net denoise.Denoiser, m *mri.Measurement, rank int) generate.Factory {
	return func(obs sampler.Observer) (sampler.Sampler, error) {
		opts := []sampler.Option{sampler.WithObserver(obs)}
		if m != nil {
			op, err := mri.NewOperator(m, rank)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sampler.WithOperator(op))
		}
		if cfg.Sampler == config.SamplerAblation {
			return sampler.NewAblation(net, cfg.Ablation, opts...)
		}
		return sampler.NewEDM(net, cfg.EDM, opts...)
	}
}

func newSinks(cfg config.Run, runID string, logger *slog.Logger) generate.Sink {
	var sinks generate.MultiSink
	if cfg.Output.PNG {
		sinks = append(sinks, imageio.PNGSink{Dir: cfg.OutDir, Subdirs: cfg.Subdirs, Zoom: cfg.Output.Zoom})
	}
	if cfg.Output.Tensors {
		sinks = append(sinks, imageio.TensorSink{
			Dir:      cfg.OutDir,
			Subdirs:  cfg.Subdirs,
			DType:    serialization.DType(cfg.Output.DType),
			Metadata: map[string]string{"run": runID, "sampler": cfg.Sampler},
		})
	}
	if len(sinks) == 0 {
		logger.Warn("no output selected; images are discarded")
	}
	return sinks
}
