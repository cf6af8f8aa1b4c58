// Command dataload runs configured loading pipelines and exposes the schema
// inference, alias resolution and table inspection steps on their own.
//
//	dataload run --config pipeline.toml
//	dataload infer data.csv
//	dataload resolve --fields question,answer data.csv
//	dataload inspect --dsn out.db --table data
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"dataload/internal/logging"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "dataload",
		Usage:     "load tabular files into typed records or relational tables",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			runCommand(),
			inferCommand(),
			resolveCommand(),
			inspectCommand(),
		},
	}
}

// logFlags are shared by every command.
func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"DATALOAD_LOG_LEVEL"}, Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-format", Value: "auto", EnvVars: []string{"DATALOAD_LOG_FORMAT"}, Usage: "text, json or auto"},
	}
}

func setupLogger(c *cli.Context) *slog.Logger {
	return logging.Setup(c.App.ErrWriter, c.String("log-level"), c.String("log-format"))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
