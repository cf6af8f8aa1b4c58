package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"dataload/internal/components"
	"dataload/internal/config"
	"dataload/internal/logging"
	"dataload/internal/materialize"
	"dataload/internal/metrics"
	"dataload/internal/metrics/datadog"
	"dataload/internal/metrics/prompush"
	"dataload/internal/pipeline"
	"dataload/internal/sink"
)

const defaultJob = "dataload_job"

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute a configured pipeline",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Required: true, Usage: "pipeline config (.json or .toml)"},
			&cli.BoolFlag{Name: "validate", Usage: "validate the configuration and exit"},
			&cli.StringFlag{Name: "metrics-backend", Value: "none", EnvVars: []string{"METRICS_BACKEND"}, Usage: "pushgateway, datadog or none"},
			&cli.StringFlag{Name: "pushgateway-url", Value: "http://localhost:9091", EnvVars: []string{"PUSHGATEWAY_URL"}, Usage: "Pushgateway base URL"},
			&cli.StringFlag{Name: "metrics-tags", EnvVars: []string{"METRICS_TAGS"}, Usage: "extra Datadog tags, comma separated"},
			&cli.StringFlag{Name: "dsn", EnvVars: []string{"DATALOAD_DSN"}, Usage: "override storage.db.dsn"},
		}, logFlags()...),
		Action: runMain,
	}
}

// runResult is what run prints for a materialize pipeline.
type runResult struct {
	RunID     string                  `json:"run_id"`
	Count     int                     `json:"count"`
	Instances []*materialize.Instance `json:"instances"`
}

// loadResult is what run prints for a relational pipeline.
type loadResult struct {
	RunID  string       `json:"run_id"`
	Report *sink.Report `json:"report"`
}

func runMain(c *cli.Context) error {
	log := setupLogger(c)
	path := c.String("config")

	p, err := config.Load(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if dsn := c.String("dsn"); dsn != "" {
		p.Storage.DB.DSN = dsn
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(c.App.ErrWriter, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return cli.Exit(fmt.Sprintf("configuration is invalid: %s", path), 1)
	}
	if c.Bool("validate") {
		fmt.Fprintf(c.App.Writer, "configuration is valid: %s\n", path)
		return nil
	}

	job := p.Job
	if job == "" {
		job = defaultJob
	}
	closeMetrics := initMetrics(c.Context, log, metricsOptions{
		Backend:        c.String("metrics-backend"),
		PushgatewayURL: c.String("pushgateway-url"),
		Tags:           datadog.ParseTagsCSV(c.String("metrics-tags")),
		Job:            job,
	})
	defer closeMetrics()

	// Components log through the run-scoped context logger.
	reg, err := components.Default(nil)
	if err != nil {
		return err
	}
	spec, cfg := components.Plan(p)
	ctx := logging.WithLogger(c.Context, log)

	start := time.Now()
	log.Info("pipeline: start", "job", job, "source", p.Source.Path, "loader", spec.Loader,
		"parser", spec.Parser, "transforms", spec.Transformers, "converter", spec.Converter)

	var out any
	switch p.Convert.Kind {
	case components.Materialize:
		pl, err := pipeline.Assemble[[]*materialize.Instance](reg, spec, log)
		if err != nil {
			return err
		}
		got, err := pl.Execute(ctx, p.Source.Path, cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		out = runResult{RunID: pl.RunID(), Count: len(got), Instances: got}
	case components.Relational:
		pl, err := pipeline.Assemble[*sink.Report](reg, spec, log)
		if err != nil {
			return err
		}
		rep, err := pl.Execute(ctx, p.Source.Path, cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		out = loadResult{RunID: pl.RunID(), Report: rep}
	default:
		return cli.Exit(fmt.Sprintf("unknown convert kind %q", p.Convert.Kind), 1)
	}

	log.Info("pipeline: completed", "job", job, "dur", time.Since(start).Truncate(time.Millisecond))
	return writeJSON(c.App.Writer, out)
}

type metricsOptions struct {
	Backend        string
	PushgatewayURL string
	Tags           []string
	Job            string
}

// initMetrics installs the selected metrics backend and returns the function
// that flushes and stops it. A backend that fails to start leaves the nop
// backend in place.
func initMetrics(ctx context.Context, log *slog.Logger, o metricsOptions) func() {
	switch o.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(o.Job, o.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: prom push backend unavailable; using nop", "err", err)
			return func() {}
		}
		log.Debug("metrics: enabled", "backend", o.Backend, "url", o.PushgatewayURL, "job", o.Job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: flush error", "err", err)
			}
		}

	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    o.Job,
			Tags:       o.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; using nop", "err", err)
			return func() {}
		}
		log.Debug("metrics: enabled", "backend", o.Backend, "job", o.Job, "tags", o.Tags)
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is left.
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", "err", err)
			}
		}

	case "", "none":
		return func() {}

	default:
		log.Warn("metrics: unknown backend; metrics disabled", "backend", o.Backend)
		return func() {}
	}
}
