// Package config loads codpop settings: compiled-in defaults, an optional
// YAML file decoded over them, then CODPOP_* environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/cod-population/pkg/ingest"
)

//go:embed config.yaml
var defaultYAML []byte

// Tag maps an output column to its HXL hashtag. Order is column order.
type Tag struct {
	Header string `yaml:"header"`
	Tag    string `yaml:"tag"`
}

// Catalog configures the dataset catalog client.
type Catalog struct {
	Site      string `yaml:"site"`
	UserAgent string `yaml:"user_agent"`
	Attempts  int    `yaml:"attempts"`
}

// Ingest configures the pipeline.
type Ingest struct {
	DatasetPrefix           string            `yaml:"dataset_prefix"`
	NAPopulation            string            `yaml:"na_population"`
	EncodingExceptions      map[string]string `yaml:"encoding_exceptions"`
	ReferenceYearExceptions map[string]int    `yaml:"reference_year_exceptions"`
	NonLatinAlphabets       []string          `yaml:"non_latin_alphabets"`
	KnownErrors             []string          `yaml:"known_errors"`
}

// Dataset describes a published output dataset.
type Dataset struct {
	Name                string   `yaml:"name"`
	Title               string   `yaml:"title"`
	CODLevel            string   `yaml:"cod_level,omitempty"`
	Tags                []string `yaml:"tags"`
	ResourceName        string   `yaml:"resource_name,omitempty"`
	ResourceDescription string   `yaml:"resource_description,omitempty"`
}

// Config is the full configuration.
type Config struct {
	Catalog      Catalog  `yaml:"catalog"`
	PCodesURL    string   `yaml:"pcodes_url"`
	Countries    []string `yaml:"countries"`
	Workers      int      `yaml:"workers"`
	OutputDir    string   `yaml:"output_dir"`
	LedgerPath   string   `yaml:"ledger_path"`
	SnapshotPath string   `yaml:"snapshot_path"`
	Addr         string   `yaml:"addr"`
	Outputs      []string `yaml:"outputs"`
	ErrToHDX     bool     `yaml:"err_to_hdx"`
	Ingest       Ingest   `yaml:"ingest"`
	Dataset      Dataset  `yaml:"dataset"`
	HAPIDataset  Dataset  `yaml:"hapi_dataset"`
	HXLTags      []Tag    `yaml:"hxl_tags"`
	HAPIHXLTags  []Tag    `yaml:"hapi_hxl_tags"`
}

// Default returns the compiled-in configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse default config: %w", err)
	}
	return &cfg, nil
}

// Load returns the defaults overlaid with the file at path, if it exists,
// and with CODPOP_* environment variables.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CODPOP_CATALOG_SITE": &c.Catalog.Site,
		"CODPOP_USER_AGENT":   &c.Catalog.UserAgent,
		"CODPOP_PCODES_URL":   &c.PCodesURL,
		"CODPOP_OUTPUT_DIR":   &c.OutputDir,
		"CODPOP_LEDGER_PATH":  &c.LedgerPath,
		"CODPOP_SNAPSHOT":     &c.SnapshotPath,
		"CODPOP_ADDR":         &c.Addr,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CODPOP_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CODPOP_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v, ok := lookup("CODPOP_COUNTRIES"); ok && v != "" {
		c.Countries = splitList(v)
	}
	if v, ok := lookup("CODPOP_OUTPUTS"); ok && v != "" {
		c.Outputs = splitList(v)
	}
	if v, ok := lookup("CODPOP_ERR_TO_HDX"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CODPOP_ERR_TO_HDX: %w", err)
		}
		c.ErrToHDX = b
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks values that cannot be used as given.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch ingest.NAPolicy(c.Ingest.NAPopulation) {
	case ingest.NAZero, ingest.NASkip:
	default:
		errs = append(errs, fmt.Errorf("ingest.na_population must be %q or %q, got %q", ingest.NAZero, ingest.NASkip, c.Ingest.NAPopulation))
	}
	if len(c.HXLTags) == 0 {
		errs = append(errs, errors.New("hxl_tags is empty"))
	}
	if err := uniqueHeaders("hxl_tags", c.HXLTags); err != nil {
		errs = append(errs, err)
	}
	if err := uniqueHeaders("hapi_hxl_tags", c.HAPIHXLTags); err != nil {
		errs = append(errs, err)
	}
	if c.Dataset.Name == "" {
		errs = append(errs, errors.New("dataset.name is empty"))
	}
	return errors.Join(errs...)
}

func uniqueHeaders(field string, tags []Tag) error {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t.Header == "" {
			return fmt.Errorf("%s: empty header", field)
		}
		if seen[t.Header] {
			return fmt.Errorf("%s: duplicate header %q", field, t.Header)
		}
		seen[t.Header] = true
	}
	return nil
}

// Headers returns the column names of tags in order.
func Headers(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Header
	}
	return out
}

// PipelineConfig returns the ingest settings in pipeline form.
func (c *Config) PipelineConfig() ingest.Config {
	return ingest.Config{
		DatasetPrefix:           c.Ingest.DatasetPrefix,
		EncodingExceptions:      c.Ingest.EncodingExceptions,
		ReferenceYearExceptions: c.Ingest.ReferenceYearExceptions,
		NonLatinScripts:         c.Ingest.NonLatinAlphabets,
		KnownErrors:             c.Ingest.KnownErrors,
		NAPopulation:            ingest.NAPolicy(c.Ingest.NAPopulation),
		Workers:                 c.Workers,
	}
}
