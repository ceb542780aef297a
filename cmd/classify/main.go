package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/invisible-tech/hybrid-ids/internal/config"
	"github.com/invisible-tech/hybrid-ids/internal/model"
	"github.com/invisible-tech/hybrid-ids/internal/pipeline"
	"github.com/invisible-tech/hybrid-ids/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", config.GetEnv("IDS_CONFIG", ""), "path to TOML config file")
		checkpoint  = flag.String("checkpoint", "", "checkpoint manifest (overrides config)")
		batchSize   = flag.Int("batch-size", 0, "rows per classifier call (overrides config)")
		workers     = flag.Int("workers", 0, "concurrent classifier calls (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.csv>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *checkpoint, *batchSize, *workers, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "classify: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, checkpoint string, batchSize, workers int, input string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if checkpoint != "" {
		cfg.CheckpointPath = checkpoint
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	log, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	handle, err := model.Load(cfg.CheckpointPath, model.LoadOptions{
		LibraryPath: cfg.ONNXLibraryPath,
		Threads:     cfg.InferenceThreads,
	})
	if err != nil {
		return err
	}
	defer handle.Close()

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(handle, pipeline.Config{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		TopN:      cfg.TopN,
	}, log)
	summary, err := pipe.ClassifyFile(ctx, filepath.Base(input), f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
