package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"astroseg/internal/models"
	"astroseg/pkg/checkimg"
	"astroseg/pkg/config"
	"astroseg/pkg/convolve"
	"astroseg/pkg/imageio"
	"astroseg/pkg/segment"
	"astroseg/pkg/tile"
)

type options struct {
	configPath string
	imagePath  string
	detPath    string
	convPath   string
	stdPath    string
	outDir     string
	checkDir   string
	threads    int
	threshold  float64
	debug      bool
}

func main() {
	var opt options
	flag.StringVar(&opt.configPath, "config", "segment.yaml", "YAML configuration file")
	flag.StringVar(&opt.imagePath, "image", "", "Sky-subtracted input image (.tif, .png or .seg)")
	flag.StringVar(&opt.detPath, "detections", "", "Detection map; the whole image is one detection when empty")
	flag.StringVar(&opt.convPath, "convolved", "", "Pre-convolved image; built from the kernel section when empty")
	flag.StringVar(&opt.stdPath, "std", "", "Per-pixel noise map; the noise section is used when empty")
	flag.StringVar(&opt.outDir, "out", "segmented", "Output directory")
	flag.StringVar(&opt.checkDir, "check", "", "Directory for stage snapshots (overrides the config)")
	flag.IntVar(&opt.threads, "threads", 0, "Number of worker threads (overrides the config)")
	flag.Float64Var(&opt.threshold, "sn-threshold", 0, "Clump S/N threshold; skips the sky measurement")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug mode with verbose logging")
	flag.Parse()

	logger := initLogger(opt.debug)

	if *initConfig {
		if err := config.CreateDefaultConfigFile(opt.configPath); err != nil {
			logger.WithError(err).Fatal("Failed to write configuration")
		}
		logger.WithField("path", opt.configPath).Info("Default configuration written")
		return
	}

	if opt.imagePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opt, logger); err != nil {
		entry := logger.WithError(err)
		switch {
		case errors.Is(err, segment.ErrInsufficientSky):
			entry.Fatal("Sky measurement failed")
		case errors.Is(err, segment.ErrInput):
			entry.Fatal("Invalid input")
		default:
			entry.Fatal("Segmentation failed")
		}
	}
}

func run(ctx context.Context, opt options, logger *logrus.Logger) error {
	cfg, err := config.LoadConfig(opt.configPath)
	if err != nil {
		return err
	}
	if opt.checkDir != "" {
		cfg.Output.CheckDir = opt.checkDir
	}
	if opt.threads > 0 {
		cfg.Processing.NumThreads = opt.threads
	}
	if opt.threshold > 0 {
		cfg.Segment.SNThreshold = opt.threshold
	}
	if cfg.Output.Verbose && !opt.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	in, err := loadInput(cfg, opt, logger)
	if err != nil {
		return err
	}

	s, err := segment.New(cfg.SegmentParams(), logger)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := s.Process(ctx, in)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"detections": res.NumDetections,
		"clumps":     res.NumClumps,
		"objects":    res.NumObjects,
		"threshold":  res.Threshold,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("Segmentation completed")

	return writeOutputs(cfg, opt, in, res, logger)
}

func loadInput(cfg *config.Config, opt options, logger *logrus.Logger) (segment.Input, error) {
	var in segment.Input

	img, err := imageio.ReadImage(opt.imagePath)
	if err != nil {
		return in, err
	}
	in.Image = img
	logger.WithFields(logrus.Fields{
		"path":   opt.imagePath,
		"width":  img.Width,
		"height": img.Height,
	}).Info("Image loaded")

	if opt.detPath != "" {
		if in.Detections, err = imageio.ReadLabels(opt.detPath); err != nil {
			return in, err
		}
	}

	switch {
	case opt.convPath != "":
		if in.Convolved, err = imageio.ReadImage(opt.convPath); err != nil {
			return in, err
		}
	case cfg.Kernel.Enabled:
		k, err := convolve.Gaussian(cfg.Kernel.FWHM, cfg.Kernel.Truncation)
		if err != nil {
			return in, err
		}
		if in.Convolved, err = convolve.Convolve(img, k); err != nil {
			return in, err
		}
		logger.WithFields(logrus.Fields{"fwhm": cfg.Kernel.FWHM, "size": k.Size}).Debug("Image convolved")
	}

	switch {
	case opt.stdPath != "":
		std, err := imageio.ReadImage(opt.stdPath)
		if err != nil {
			return in, err
		}
		if !models.SameShape(std.Width, std.Height, img.Width, img.Height) {
			return in, fmt.Errorf("%w: noise map is %dx%d, image is %dx%d",
				segment.ErrInput, std.Width, std.Height, img.Width, img.Height)
		}
		in.Noise = segment.NewPixelNoise(std.Data, cfg.Noise.IsVariance)
	case cfg.Noise.Std > 0:
		std := cfg.Noise.Std
		if cfg.Noise.IsVariance {
			std = math.Sqrt(std)
		}
		in.Noise = segment.ConstantNoise(std)
	}

	size, channels := cfg.TileGeometry()
	if in.Tiles, err = tile.Build(img.Width, img.Height, size, channels); err != nil {
		return in, fmt.Errorf("%w: %w", segment.ErrInput, err)
	}
	return in, nil
}

func writeOutputs(cfg *config.Config, opt options, in segment.Input, res *segment.Result, logger *logrus.Logger) error {
	if err := os.MkdirAll(opt.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	clumpsPath := filepath.Join(opt.outDir, "clumps"+imageio.RawExt)
	objectsPath := filepath.Join(opt.outDir, "objects"+imageio.RawExt)
	if err := imageio.WriteLabels(clumpsPath, res.Clumps); err != nil {
		return err
	}
	if err := imageio.WriteLabels(objectsPath, res.Objects); err != nil {
		return err
	}

	if err := writeText(filepath.Join(opt.outDir, "clumps.txt"), func(f *os.File) error {
		return checkimg.WriteTable(f, res.Table)
	}); err != nil {
		return err
	}
	if res.Sky != nil {
		if err := writeText(filepath.Join(opt.outDir, "sky_sn.txt"), func(f *os.File) error {
			return checkimg.WriteSkySN(f, res.Sky)
		}); err != nil {
			return err
		}
	}
	logger.WithField("dir", opt.outDir).Info("Outputs written")

	if cfg.Output.CheckDir == "" {
		return nil
	}
	r := checkimg.NewRenderer(cfg.Output.CheckScale)
	if err := r.SaveSnapshots(cfg.Output.CheckDir, res.Snapshots); err != nil {
		return err
	}
	sig := in.Convolved
	if sig == nil {
		sig = in.Image
	}
	if err := r.Save(r.Signal(sig), filepath.Join(cfg.Output.CheckDir, "00_signal.png")); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"dir":       cfg.Output.CheckDir,
		"snapshots": len(res.Snapshots),
	}).Info("Check images written")
	return nil
}

func writeText(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
