// Package assemble folds an ingestion session into publishable datasets:
// CSV tables with an HXL tag row, plus a YAML manifest per dataset.
package assemble

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/cod-population/pkg/boundary"
	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/config"
	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ingest"
)

// ErrNoRows is returned when the session holds nothing to publish.
var ErrNoRows = errors.New("no population rows to assemble")

// Output builds one published dataset from a session.
type Output interface {
	// ID returns the name used to select the output in configuration (e.g. "hapi").
	ID() string
	// Description returns a human-readable description.
	Description() string
	// Write writes the dataset's tables into dir and returns its manifest.
	Write(ctx context.Context, a *Assembler, s *ingest.Session, dir string) (*Manifest, error)
}

var (
	registryMu sync.RWMutex
	outputs    = make(map[string]Output)
)

// Register adds an output to the global registry.
func Register(o Output) {
	registryMu.Lock()
	defer registryMu.Unlock()
	outputs[o.ID()] = o
}

// Get returns a registered output by ID, or an error if not found.
func Get(id string) (Output, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	o, ok := outputs[id]
	if !ok {
		return nil, fmt.Errorf("unknown output: %q", id)
	}
	return o, nil
}

// All returns all registered outputs sorted by ID.
func All() []Output {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Output, 0, len(outputs))
	for _, o := range outputs {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// Manifest is the hand-off description of a written dataset.
type Manifest struct {
	Name        string             `yaml:"name" json:"name"`
	Title       string             `yaml:"title" json:"title"`
	Groups      []string           `yaml:"groups" json:"groups"`
	DatasetDate string             `yaml:"dataset_date" json:"dataset_date"`
	Tags        []string           `yaml:"tags" json:"tags"`
	CODLevel    string             `yaml:"cod_level,omitempty" json:"cod_level,omitempty"`
	Resources   []ManifestResource `yaml:"resources" json:"resources"`
}

// ManifestResource is one table of a dataset.
type ManifestResource struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	File        string `yaml:"file" json:"file"`
	Rows        int    `yaml:"rows" json:"rows"`
}

// Assembler carries what outputs need beyond the session.
type Assembler struct {
	Config *config.Config
	// Boundaries resolves p-codes; only the hapi output uses it.
	Boundaries *boundary.Reference
	Sink       diag.Sink
	Logger     *slog.Logger
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Assembler) add(d diag.Diagnostic) {
	if a.Sink != nil {
		a.Sink.Add(d)
	}
}

// datasetKey is the diagnostic key of a country's source dataset.
func (a *Assembler) datasetKey(iso3 string) string {
	prefix := a.Config.Ingest.DatasetPrefix
	if prefix == "" {
		prefix = "cod-ps-"
	}
	return prefix + strings.ToLower(iso3)
}

// Write runs the outputs named by ids, in order, into dir.
func (a *Assembler) Write(ctx context.Context, s *ingest.Session, dir string, ids []string) ([]*Manifest, error) {
	if s.RowCount() == 0 {
		return nil, ErrNoRows
	}
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var manifests []*Manifest
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return manifests, err
		}
		o, err := Get(id)
		if err != nil {
			return manifests, err
		}
		m, err := o.Write(ctx, a, s, dir)
		if err != nil {
			return manifests, fmt.Errorf("output %s: %w", id, err)
		}
		if err := writeManifest(dir, m); err != nil {
			return manifests, err
		}
		a.logger().Info("dataset written", "output", id, "dataset", m.Name, "resources", len(m.Resources))
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// baseManifest fills the fields shared by every output from ds and the
// session metadata.
func baseManifest(ds config.Dataset, s *ingest.Session) (*Manifest, error) {
	first, last, ok := s.Metadata.YearRange()
	if !ok {
		return nil, errors.New("no reference year recorded")
	}
	groups := make([]string, 0, len(s.Metadata.Countries))
	for _, iso3 := range s.Metadata.Countries {
		g := strings.ToLower(iso3)
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return &Manifest{
		Name:        ds.Name,
		Title:       ds.Title,
		Groups:      groups,
		DatasetDate: catalog.FormatYearRange(first, last),
		Tags:        ds.Tags,
		CODLevel:    ds.CODLevel,
	}, nil
}

// writeManifest writes m as YAML to dir/<name>.yaml.
func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, m.Name+".yaml"), data, 0o644)
}

// ensureDir creates a directory if it doesn't exist.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// yesNo renders a flag as Y or N.
type yesNo bool

func (b yesNo) MarshalText() ([]byte, error) {
	if b {
		return []byte("Y"), nil
	}
	return []byte("N"), nil
}

// checkColumns fails when a configured header names no field of T.
func checkColumns[T any](field string, tags []config.Tag) error {
	var zero T
	cols, err := csvutil.Header(zero, "csv")
	if err != nil {
		return err
	}
	var missing []string
	for _, t := range tags {
		if !slices.Contains(cols, t.Header) {
			missing = append(missing, t.Header)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: unknown columns %s", field, strings.Join(missing, ", "))
	}
	return nil
}

// writeTable writes records to path as UTF-8 CSV with a byte order mark:
// the configured headers, the HXL tag row, then one line per record.
func writeTable[T any](path string, tags []config.Tag, records []T) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString("\ufeff"); err != nil {
		return err
	}
	w := csv.NewWriter(bw)
	enc := csvutil.NewEncoder(w)
	enc.SetHeader(config.Headers(tags))

	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	hashtags := make([]string, len(tags))
	for i, t := range tags {
		hashtags[i] = t.Tag
	}
	if err := w.Write(hashtags); err != nil {
		return fmt.Errorf("write hxl row: %w", err)
	}
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
