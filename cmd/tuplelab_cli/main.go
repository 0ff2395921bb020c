// Command tuplelab_cli loads order tuples into a slotted-page record store,
// searches join orders over relation metadata, and compares secondary index
// shapes.
//
//	tuplelab_cli [flags] load <orders.tbl>
//	tuplelab_cli [flags] plan <metadata> [strategy ...]
//	tuplelab_cli [flags] index [tuples] [seed]
//	tuplelab_cli [flags] shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sushant-115/tuplelab/pkg/config"
	"github.com/sushant-115/tuplelab/pkg/logger"
	"github.com/sushant-115/tuplelab/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tuplelab_cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML configuration file")
	pageSize := fs.Int("page-size", 0, "Page size in bytes (overrides config)")
	pointers := fs.Int("pointers", 0, "Pointer slots per page (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: tuplelab_cli [flags] load|plan|index|shell [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, "CRITICAL:", err)
			return 1
		}
	}
	if *pageSize > 0 {
		cfg.Storage.PageSize = *pageSize
	}
	if *pointers > 0 {
		cfg.Storage.NumPointers = *pointers
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "CRITICAL: invalid configuration:", err)
		return 1
	}

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(stderr, "CRITICAL: can't initialize logger:", err)
		return 1
	}
	zlogger = zlogger.With(zap.String("run_id", uuid.NewString()))
	defer func() { _ = zlogger.Sync() }()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlogger.Error("Failed to initialize telemetry", zap.Error(err))
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			zlogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, zlogger, tel, stdout)
	defer a.close()

	command, rest := fs.Arg(0), fs.Args()[1:]
	zlogger.Debug("Running command", zap.String("command", command), zap.Strings("args", rest))

	switch command {
	case "shell":
		err = a.shell(ctx, stderr)
	case "load", "plan", "index":
		err = a.dispatch(ctx, fs.Args())
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
			return 2
		}
		zlogger.Error("Command failed", zap.String("command", command), zap.Error(err))
		return 1
	}
	return 0
}
