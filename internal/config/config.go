package config

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"fedview/internal/schema"
)

type Config struct {
	Relational RelationalConfig `yaml:"relational"`
	File       FileConfig       `yaml:"file"`
	View       ViewConfig       `yaml:"view"`
	Sink       *SinkConfig      `yaml:"sink,omitempty"`
}

type ColumnConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type RelationalConfig struct {
	Driver string         `yaml:"driver"`
	DSN    string         `yaml:"dsn"`
	Query  string         `yaml:"query"`
	Schema []ColumnConfig `yaml:"schema"`
}

type FileConfig struct {
	Path      string         `yaml:"path"`
	Delimiter string         `yaml:"delimiter"`
	Header    bool           `yaml:"header"`
	OnError   string         `yaml:"on_error"`
	Schema    []ColumnConfig `yaml:"schema"`
}

type ViewConfig struct {
	Join   JoinConfig     `yaml:"join"`
	Select []SelectConfig `yaml:"select"`
}

type JoinConfig struct {
	RelationalKey string `yaml:"relational_key"`
	FileKey       string `yaml:"file_key"`
}

type SelectConfig struct {
	From   string `yaml:"from"`
	Column string `yaml:"column"`
	As     string `yaml:"as"`
}

type SinkConfig struct {
	Type    string   `yaml:"type"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Relational.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("relational.driver must be mysql or sqlite, got %q", c.Relational.Driver)
	}
	if c.Relational.DSN == "" {
		return errors.New("relational.dsn is required")
	}
	if c.Relational.Query == "" {
		return errors.New("relational.query is required")
	}
	if err := validateColumns("relational.schema", c.Relational.Schema); err != nil {
		return err
	}

	if c.File.Path == "" {
		return errors.New("file.path is required")
	}
	if c.File.Delimiter != "" && utf8.RuneCountInString(c.File.Delimiter) != 1 {
		return fmt.Errorf("file.delimiter must be a single character, got %q", c.File.Delimiter)
	}
	switch c.File.OnError {
	case "", "abort", "skip":
	default:
		return fmt.Errorf("file.on_error must be abort or skip, got %q", c.File.OnError)
	}
	if err := validateColumns("file.schema", c.File.Schema); err != nil {
		return err
	}

	if c.View.Join.RelationalKey == "" {
		return errors.New("view.join.relational_key is required")
	}
	if c.View.Join.FileKey == "" {
		return errors.New("view.join.file_key is required")
	}
	if len(c.View.Select) == 0 {
		return errors.New("view.select must list at least one field")
	}
	for _, s := range c.View.Select {
		if s.From != "relational" && s.From != "file" {
			return fmt.Errorf("view.select from must be relational or file, got %q", s.From)
		}
		if s.Column == "" {
			return errors.New("view.select column is required")
		}
	}

	if c.Sink != nil {
		if c.Sink.Type != "kafka" {
			return fmt.Errorf("sink.type must be kafka, got %q", c.Sink.Type)
		}
		if len(c.Sink.Brokers) == 0 {
			return errors.New("sink.brokers is required")
		}
		if c.Sink.Topic == "" {
			return errors.New("sink.topic is required")
		}
	}
	return nil
}

func validateColumns(field string, cols []ColumnConfig) error {
	if len(cols) == 0 {
		return fmt.Errorf("%s must declare at least one column", field)
	}
	seen := map[string]bool{}
	for _, col := range cols {
		if col.Name == "" {
			return fmt.Errorf("%s: column name is required", field)
		}
		if seen[col.Name] {
			return fmt.Errorf("%s: duplicate column %s", field, col.Name)
		}
		seen[col.Name] = true
		if _, err := schema.ParseColumnType(col.Type); err != nil {
			return fmt.Errorf("%s: column %s: %w", field, col.Name, err)
		}
	}
	return nil
}

// Columns converts declared config columns into a schema. Call after
// validation; unknown types have already been rejected.
func Columns(cols []ColumnConfig) schema.Schema {
	sch := make(schema.Schema, len(cols))
	for i, col := range cols {
		t, _ := schema.ParseColumnType(col.Type)
		sch[i] = schema.Column{Name: col.Name, Type: t}
	}
	return sch
}

// Comma returns the file delimiter as a rune, defaulting to comma.
func (f FileConfig) Comma() rune {
	if f.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(f.Delimiter)
	return r
}
