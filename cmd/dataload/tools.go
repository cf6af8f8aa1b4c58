package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"dataload/internal/alias"
	"dataload/internal/config"
	"dataload/internal/datasource/file"
	"dataload/internal/inference"
	"dataload/internal/materialize"
	"dataload/internal/parser/auto"
	"dataload/internal/sink"
	"dataload/internal/storage"
	"dataload/pkg/records"
)

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "encoding", Value: "utf-8", Usage: "source text encoding"},
		&cli.StringSliceFlag{Name: "option", Aliases: []string{"o"}, Usage: "parser option as key=value (repeatable)"},
	}
}

func inferCommand() *cli.Command {
	return &cli.Command{
		Name:      "infer",
		Usage:     "print the inferred schema and generated shape of a file",
		ArgsUsage: "<file>",
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{Name: "sample-size", Value: inference.DefaultSampleSize, Usage: "rows sampled per column"},
			&cli.Float64Flag{Name: "confidence-threshold", Value: inference.DefaultThreshold, Usage: "majority share needed for a non-string type"},
			&cli.StringFlag{Name: "class-name", Value: materialize.DefaultShapeName, Usage: "name of the generated shape"},
		}, sourceFlags()...), logFlags()...),
		Action: inferMain,
	}
}

type inferResult struct {
	Source  string                 `json:"source"`
	Rows    int                    `json:"rows"`
	Columns []string               `json:"columns"`
	Schema  inference.Schema       `json:"schema"`
	Shape   materialize.SchemaInfo `json:"shape"`
}

func inferMain(c *cli.Context) error {
	log := setupLogger(c)
	path, err := oneArg(c)
	if err != nil {
		return err
	}
	recs, err := readRecords(c.Context, log, path, c.String("encoding"), c.StringSlice("option"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	schema := inference.InferSchema(recs, c.Int("sample-size"), c.Float64("confidence-threshold"))
	shape := materialize.BuildShape(c.String("class-name"), schema)
	return writeJSON(c.App.Writer, inferResult{
		Source:  path,
		Rows:    len(recs),
		Columns: records.Columns(recs),
		Schema:  schema,
		Shape:   shape.Info(),
	})
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "match target field names against the columns of a file",
		ArgsUsage: "<file>",
		Flags: append(append([]cli.Flag{
			&cli.StringSliceFlag{Name: "fields", Aliases: []string{"f"}, Required: true, Usage: "target fields, comma separated"},
			&cli.Float64Flag{Name: "threshold", Value: alias.DefaultThreshold, Usage: "minimum fuzzy score for a match"},
		}, sourceFlags()...), logFlags()...),
		Action: resolveMain,
	}
}

func resolveMain(c *cli.Context) error {
	log := setupLogger(c)
	path, err := oneArg(c)
	if err != nil {
		return err
	}
	recs, err := readRecords(c.Context, log, path, c.String("encoding"), c.StringSlice("option"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r := alias.Resolver{Threshold: c.Float64("threshold")}
	return writeJSON(c.App.Writer, r.Explain(c.StringSlice("fields"), records.Columns(recs)))
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "describe a table, or run a read query against a database",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "kind", Value: sink.DefaultKind, Usage: "storage backend"},
			&cli.StringFlag{Name: "dsn", EnvVars: []string{"DATALOAD_DSN"}, Required: true, Usage: "connection string or database file"},
			&cli.StringFlag{Name: "table", Value: sink.DefaultTable, Usage: "table to describe"},
			&cli.StringFlag{Name: "query", Usage: "read query; rows are printed as JSON"},
		}, logFlags()...),
		Action: inspectMain,
	}
}

func inspectMain(c *cli.Context) error {
	setupLogger(c)
	cfg := storage.Config{Kind: c.String("kind"), DSN: c.String("dsn")}

	if q := c.String("query"); q != "" {
		rows, err := sink.Query(c.Context, cfg, q)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if rows == nil {
			rows = []records.Record{}
		}
		return writeJSON(c.App.Writer, rows)
	}

	info, err := sink.TableInfo(c.Context, cfg, c.String("table"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return writeJSON(c.App.Writer, info)
}

func oneArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: dataload %s [options] <file>", c.Command.Name), 2)
	}
	return c.Args().First(), nil
}

// readRecords loads path with the any-format loader and parses it by
// extension.
func readRecords(ctx context.Context, log *slog.Logger, path, encoding string, kv []string) ([]records.Record, error) {
	opts, err := parseKV(kv)
	if err != nil {
		return nil, err
	}
	loader := file.New()
	loader.Logger = log
	payload, err := loader.Load(ctx, path, config.Options{"encoding": encoding})
	if err != nil {
		return nil, err
	}
	return auto.New(log).Parse(ctx, payload, opts)
}

func parseKV(kv []string) (config.Options, error) {
	opts := config.Options{}
	for _, s := range kv {
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", s)
		}
		opts[strings.TrimSpace(k)] = v
	}
	return opts, nil
}
