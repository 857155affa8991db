// Package ingest turns per-country population datasets into normalized
// population rows, one admin level at a time.
package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/tabular"
)

// MaxLevel is the deepest administrative level ingested.
const MaxLevel = 4

// Category is the diagnostic category of everything this package reports.
const Category = "Population"

// Catalog looks datasets up by name. catalog.Client satisfies it.
type Catalog interface {
	Dataset(ctx context.Context, name string) (*catalog.Dataset, error)
}

// Fetcher downloads and parses a tabular resource. tabular.Client satisfies it.
// Download failures wrap tabular.ErrDownload.
type Fetcher interface {
	Rows(ctx context.Context, url, encoding string) (*tabular.Table, error)
}

// NAPolicy decides what a literal NA population cell becomes.
type NAPolicy string

const (
	NAZero NAPolicy = "zero"
	NASkip NAPolicy = "skip"
)

// Config parameterizes the pipeline.
type Config struct {
	DatasetPrefix           string
	EncodingExceptions      map[string]string
	ReferenceYearExceptions map[string]int
	NonLatinScripts         []string
	KnownErrors             []string
	NAPopulation            NAPolicy
	Workers                 int
	// Now is the clock used for ongoing dataset periods; nil means time.Now.
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) prefix() string {
	if c.DatasetPrefix == "" {
		return "cod-ps-"
	}
	return c.DatasetPrefix
}

func (c Config) encoding(resource string) string {
	if enc, ok := c.EncodingExceptions[resource]; ok && enc != "" {
		return enc
	}
	return "utf-8"
}

// PopulationRow is one population count for one admin unit and one
// gender × age group. PCodes[i] and Names[i] hold admin level i+1; levels
// deeper than the row's AdminLevel, or with no usable column, are empty.
type PopulationRow struct {
	ISO3            string
	Country         string
	HasHRP          bool
	InGHO           bool
	AdminLevel      int
	PCodes          [MaxLevel]string
	Names           [MaxLevel]string
	PopulationGroup string
	Gender          string
	AgeRange        string
	MinAge          *int
	MaxAge          *int
	Population      int64
	ReferenceYear   int
	Source          string
	Contributor     string
	DatasetID       string
	ResourceID      string
}

// PCode returns the p-code for admin level (1..4).
func (r PopulationRow) PCode(level int) string {
	if level < 1 || level > MaxLevel {
		return ""
	}
	return r.PCodes[level-1]
}

// Name returns the unit name for admin level (1..4).
func (r PopulationRow) Name(level int) string {
	if level < 1 || level > MaxLevel {
		return ""
	}
	return r.Names[level-1]
}

// rowKey identifies a row within one country's admin level: every field
// but the population count and provenance. Age bounds derive from AgeRange.
type rowKey struct {
	level         int
	pcodes, names [MaxLevel]string
	group         string
	gender        string
	ageRange      string
	referenceYear int
}

func (r PopulationRow) key() rowKey {
	return rowKey{
		level:         r.AdminLevel,
		pcodes:        r.PCodes,
		names:         r.Names,
		group:         r.PopulationGroup,
		gender:        r.Gender,
		ageRange:      r.AgeRange,
		referenceYear: r.ReferenceYear,
	}
}

// Resource statuses recorded per selected (or rejected) admin level resource.
const (
	StatusIngested   = "ingested"
	StatusAmbiguous  = "ambiguous"
	StatusDownload   = "download_failed"
	StatusParse      = "parse_failed"
	StatusDuplicates = "duplicates"
	StatusInvalid    = "invalid_values"
	StatusEmpty      = "empty"
)

// ResourceOutcome records what happened to the resource of one admin level.
type ResourceOutcome struct {
	ISO3       string `json:"iso3"`
	Dataset    string `json:"dataset"`
	AdminLevel int    `json:"admin_level"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	URL        string `json:"url,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Rows       int    `json:"rows"`
	Status     string `json:"status"`
}

// Metadata accumulates facts about the whole run.
type Metadata struct {
	// Countries lists every country whose dataset was processed, in order.
	Countries []string
	// ReferenceYears counts rows-producing resources per reference year.
	ReferenceYears map[int]int
	// ResourceNames maps "<ISO3>_<level>" to the resource used.
	ResourceNames map[string]string
	// NonMatchingHeaders lists, per country, headers that were neither
	// population nor admin columns.
	NonMatchingHeaders map[string][]string
	// YearSources lists, per country, the reference year strategies used.
	YearSources map[string][]string
}

// YearRange returns the smallest and largest reference year seen.
func (m Metadata) YearRange() (first, last int, ok bool) {
	for y := range m.ReferenceYears {
		if !ok || y < first {
			first = y
		}
		if !ok || y > last {
			last = y
		}
		ok = true
	}
	return first, last, ok
}

// Session owns everything accumulated by one ingestion run. It is not safe
// for concurrent use; Pipeline.Run merges country results sequentially.
type Session struct {
	Rows     map[int][]PopulationRow
	Metadata Metadata
	Outcomes []ResourceOutcome
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		Rows: make(map[int][]PopulationRow),
		Metadata: Metadata{
			ReferenceYears:     make(map[int]int),
			ResourceNames:      make(map[string]string),
			NonMatchingHeaders: make(map[string][]string),
			YearSources:        make(map[string][]string),
		},
	}
}

// Merge appends a country result. Results of skipped countries only
// contribute their outcomes.
func (s *Session) Merge(r *CountryResult) {
	s.Outcomes = append(s.Outcomes, r.Outcomes...)
	if !r.Processed {
		return
	}
	md := &s.Metadata
	md.Countries = append(md.Countries, r.ISO3)
	for level := 0; level <= MaxLevel; level++ {
		if rows := r.Rows[level]; len(rows) > 0 {
			s.Rows[level] = append(s.Rows[level], rows...)
		}
	}
	for _, y := range r.ReferenceYears {
		md.ReferenceYears[y]++
	}
	for k, v := range r.ResourceNames {
		md.ResourceNames[k] = v
	}
	if len(r.NonMatchingHeaders) > 0 {
		md.NonMatchingHeaders[r.ISO3] = mergeSet(md.NonMatchingHeaders[r.ISO3], r.NonMatchingHeaders)
	}
	if len(r.YearSources) > 0 {
		md.YearSources[r.ISO3] = mergeSet(md.YearSources[r.ISO3], r.YearSources)
	}
}

// Levels returns the admin levels holding rows, ascending.
func (s *Session) Levels() []int {
	levels := make([]int, 0, len(s.Rows))
	for l, rows := range s.Rows {
		if len(rows) > 0 {
			levels = append(levels, l)
		}
	}
	sort.Ints(levels)
	return levels
}

// RowCount returns the number of rows across all levels.
func (s *Session) RowCount() int {
	n := 0
	for _, rows := range s.Rows {
		n += len(rows)
	}
	return n
}

func mergeSet(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
