// Package main is the declpipe CLI: it loads a declarative pipeline
// document, optionally lints it and exits, and otherwise executes it. The
// layer stays thin; storage backends arrive through the blank import of
// storage/all, never directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/logging"
	"declpipe/internal/metrics"
	"declpipe/internal/metrics/prompush"
	"declpipe/internal/runner"
	"declpipe/internal/sink"
	"declpipe/internal/step"

	// register all storage backends with the factory.
	_ "declpipe/internal/storage/all"
)

// Named exit codes, so wrappers can branch on them.
const (
	exitOK        = 0
	exitRunFailed = 1
	exitBadConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("declpipe", flag.ContinueOnError)

	var (
		cfgPath        = fs.String("config", "pipeline.yaml", "pipeline config path (.yaml, .yml, or .json)")
		dryRun         = fs.Bool("dry-run", false, "lint the configuration and exit without executing")
		onStepFailure  = fs.String("on-step-failure", "", "override on_step_failure (abort, skip_dependents)")
		onValidation   = fs.String("on-validation-failure", "", "override on_validation_failure (abort, continue)")
		loggingType    = fs.String("logging-type", logging.Tint, "log handler (tint, json, text)")
		logLevel       = fs.String("log-level", "info", "log level (debug, info, warn, error)")
		logFile        = fs.String("log-file", "", "append step transition lines to this file")
		lineageFile    = fs.String("lineage-file", "", "append lineage edges (JSONL) to this file")
		concurrent     = fs.Bool("concurrent", false, "run independent steps in parallel waves")
		retries        = fs.Int("retries", 2, "retry budget for transient step failures")
		retryBackoff   = fs.Duration("retry-backoff", 250*time.Millisecond, "base backoff between retries")
		metricsBackend = fs.String("metrics-backend", "", "metrics backend (pushgateway or empty for none)")
		pushgatewayURL = fs.String("pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	)
	if err := fs.Parse(args); err != nil {
		return exitBadConfig
	}

	// .env is optional; DSNs and gateway URLs may come from it.
	_ = godotenv.Load()

	if err := logging.Initialize(*loggingType, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadConfig
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("configuration rejected", "path", *cfgPath, "error", err)
		return exitBadConfig
	}

	if *dryRun {
		for _, issue := range config.Lint(cfg) {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", issue.Severity, issue.Path, issue.Message)
		}
		slog.Info("configuration is valid", "path", *cfgPath, "steps", len(cfg.Steps))
		return exitOK
	}

	if *onStepFailure != "" {
		cfg.OnStepFailure = config.FailurePolicy(*onStepFailure)
	}
	if *onValidation != "" {
		cfg.OnValidationFailure = config.ValidationPolicy(*onValidation)
	}
	// Flag overrides bypass Load's validation, so re-lint before running.
	for _, issue := range config.Lint(cfg) {
		if issue.Severity == config.SeverityError {
			slog.Error("policy override rejected", "issue", issue.Error())
			return exitBadConfig
		}
	}

	if code := setupMetrics(*metricsBackend, *pushgatewayURL, cfg.Name); code != exitOK {
		return code
	}
	defer func() {
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics flush failed", "error", err)
		}
	}()

	opts := []runner.Option{
		runner.WithRetries(*retries, *retryBackoff),
		runner.WithConcurrency(*concurrent),
	}
	logSink, lineageSink, err := buildSinks(*logFile, *lineageFile)
	if err != nil {
		slog.Error("sink setup failed", "error", err)
		return exitBadConfig
	}
	defer logSink.Close()
	defer lineageSink.Close()
	opts = append(opts, runner.WithSinks(logSink, lineageSink))

	r := runner.New(step.NewDispatcher(), opts...)
	result, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	if err != nil {
		if errs.KindOf(err) == errs.KindConfig {
			slog.Error("pipeline rejected", "error", err)
			return exitBadConfig
		}
		slog.Error("pipeline did not run", "error", err)
		return exitRunFailed
	}

	for _, s := range result.Steps {
		slog.Info("step result",
			"step", s.StepName, "status", s.Status, "rows", s.Rows,
			"attempts", s.Attempts, "duration", s.Duration(), "error_kind", s.ErrorKind)
	}

	if result.HardFailure {
		return exitRunFailed
	}
	return exitOK
}

// buildSinks wires the log and lineage outputs: files when requested,
// stdout lines otherwise.
func buildSinks(logFile, lineageFile string) (sink.LogSink, sink.LineageSink, error) {
	var (
		logSink     sink.LogSink
		lineageSink sink.LineageSink
		err         error
	)
	if logFile != "" {
		logSink, err = sink.NewFileLog(logFile)
		if err != nil {
			return nil, nil, err
		}
	} else {
		logSink = sink.NewWriterLog(os.Stdout)
	}
	if lineageFile != "" {
		lineageSink, err = sink.NewFileLineage(lineageFile)
		if err != nil {
			logSink.Close()
			return nil, nil, err
		}
	} else {
		lineageSink = sink.NewMemoryLineage()
	}
	return logSink, lineageSink, nil
}

func setupMetrics(backendName, gatewayURL, pipeline string) int {
	switch backendName {
	case "", "none":
		return exitOK
	case "pushgateway":
		if gatewayURL == "" {
			gatewayURL = os.Getenv("PUSHGATEWAY_URL")
		}
		b, err := prompush.NewBackend(pipeline, gatewayURL)
		if err != nil {
			slog.Error("metrics backend setup failed", "error", err)
			return exitBadConfig
		}
		metrics.SetBackend(b)
		return exitOK
	default:
		slog.Error("unknown metrics backend", "backend", backendName)
		return exitBadConfig
	}
}
