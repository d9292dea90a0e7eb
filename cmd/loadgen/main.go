package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/minkalla/valyze/internal/loadgen"
	"github.com/minkalla/valyze/pkg/logger"
)

const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultDeadline = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "loadgen",
		Usage: "submit generated records to a Valyze service and verify every valuation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: loadgen.DefaultBaseURL, Usage: "base URL of the service"},
			&cli.IntFlag{Name: "records", Value: loadgen.DefaultRecords, Usage: "number of records to submit"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent submissions (default: 2 x CPUs)"},
			&cli.DurationFlag{Name: "timeout", Value: loadgen.DefaultTimeout, Usage: "HTTP request timeout"},
			&cli.DurationFlag{Name: "deadline", Value: defaultDeadline, Usage: "overall run deadline"},
			&cli.FloatFlag{Name: "sensitive-ratio", Value: loadgen.DefaultSensitiveRatio, Usage: "share of records flagged sensitive"},
			&cli.IntFlag{Name: "provenance-sample", Value: loadgen.DefaultProvenanceSample, Usage: "records whose provenance is checked"},
			&cli.StringFlag{Name: "output", Usage: "write records and responses to this JSON file"},
			&cli.BoolFlag{Name: "verbose", Usage: "log every rejection and mismatch"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if err := logger.Init(); err != nil {
		return err
	}
	if cmd.Bool("verbose") {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("deadline"))
	defer cancel()

	workers := int(cmd.Int("workers"))
	if workers <= 0 {
		workers = runtime.NumCPU() * defaultWorkers
	}

	cfg := &loadgen.Config{
		BaseURL:          cmd.String("url"),
		Records:          int(cmd.Int("records")),
		Workers:          workers,
		Timeout:          cmd.Duration("timeout"),
		SensitiveRatio:   cmd.Float("sensitive-ratio"),
		ProvenanceSample: int(cmd.Int("provenance-sample")),
		OutputFile:       cmd.String("output"),
		Verbose:          cmd.Bool("verbose"),
	}
	_, err := loadgen.Run(ctx, cfg)
	return err
}
