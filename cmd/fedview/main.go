package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"fedview/internal/compose"
	"fedview/internal/config"
	"fedview/internal/output"
	"fedview/internal/sink"
	"fedview/internal/source/flatfile"
	"fedview/internal/source/sqldb"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fedview error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		printUsage()
		return nil
	}

	switch args[1] {
	case "compose":
		return runCompose(args[2:])
	case "check":
		return runCheck(args[2:])
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[1])
	}
}

func runCompose(args []string) error {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml")
	format := fs.String("format", "csv", "Output format: csv or json")
	out := fs.String("out", "-", "Output path, or - for stdout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("missing required flag: --config")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	relational, file := buildSources(cfg)
	view := buildView(cfg.View)

	ctx := context.Background()
	res, err := compose.Run(ctx, relational, file, view)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "csv":
		err = output.WriteCSV(w, res)
	case "json":
		err = output.WriteJSON(w, res)
	default:
		return fmt.Errorf("unknown format: %s", *format)
	}
	if err != nil {
		return err
	}

	if cfg.Sink != nil {
		s := sink.NewKafka(*cfg.Sink)
		defer s.Close()
		if err := s.Publish(ctx, res); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "run %s: indexed=%d probed=%d emitted=%d skipped=%d\n",
		res.RunID, res.Indexed, res.Probed, res.Emitted, res.Skipped)
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("missing required flag: --config")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	relational, _ := buildSources(cfg)
	if err := relational.Ping(context.Background()); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.File.Path); err != nil {
		return fmt.Errorf("file source: %w", err)
	}

	fmt.Println("Config is valid, both sources are reachable")
	fmt.Printf("Relational: %s (%d columns)\n", cfg.Relational.Driver, len(cfg.Relational.Schema))
	fmt.Printf("File: %s (%d columns)\n", cfg.File.Path, len(cfg.File.Schema))
	return nil
}

func buildSources(cfg *config.Config) (*sqldb.Adapter, *flatfile.Adapter) {
	relational := sqldb.New(
		"relational",
		cfg.Relational.Driver,
		cfg.Relational.DSN,
		cfg.Relational.Query,
		config.Columns(cfg.Relational.Schema),
	)
	file := flatfile.New(
		"file",
		cfg.File.Path,
		cfg.File.Comma(),
		cfg.File.Header,
		config.Columns(cfg.File.Schema),
		flatfile.ErrorPolicy(cfg.File.OnError),
	)
	return relational, file
}

func buildView(v config.ViewConfig) compose.View {
	view := compose.View{
		RelationalKey: v.Join.RelationalKey,
		FileKey:       v.Join.FileKey,
	}
	for _, s := range v.Select {
		view.Select = append(view.Select, compose.Field{
			From:   compose.Side(s.From),
			Column: s.Column,
			As:     s.As,
		})
	}
	return view
}

func printUsage() {
	fmt.Print(`fedview - federated view over a SQL table and a flat file

Usage:
  fedview compose --config <path> [--format csv|json] [--out <path>]
  fedview check --config <path>

Commands:
  compose   Run the composed view and write the records
  check     Validate the config and probe both sources
  help      Show this help message
`)
}
