package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/country"
	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/header"
	"github.com/hazyhaar/cod-population/pkg/normalize"
	"github.com/hazyhaar/cod-population/pkg/tabular"
)

// Reference year strategies, in priority order.
const (
	YearFromException = "exception"
	YearFromColumn    = "date header"
	YearFromName      = "resource name"
	YearFromDataset   = "dataset date"
)

// Pipeline ingests country datasets. Domain problems become diagnostics on
// Sink; only cancellation and unexpected failures are returned as errors.
type Pipeline struct {
	Catalog   Catalog
	Fetcher   Fetcher
	Countries *country.Table
	Sink      diag.Sink
	Logger    *slog.Logger
	Config    Config
}

// CountryResult is everything one country contributed. It is built by a
// single goroutine and merged into a Session afterwards.
type CountryResult struct {
	ISO3    string
	Dataset string
	// Processed is false when the dataset was missing, unreadable,
	// archived or not a COD.
	Processed          bool
	Rows               map[int][]PopulationRow
	MissingLevels      []int
	ResourceNames      map[string]string
	ReferenceYears     []int
	NonMatchingHeaders []string
	YearSources        []string
	Outcomes           []ResourceOutcome
}

// RowCount returns the number of rows kept across all levels.
func (r *CountryResult) RowCount() int {
	n := 0
	for _, rows := range r.Rows {
		n += len(rows)
	}
	return n
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run ingests every country in iso3s and merges the results into s in the
// order given, whatever the number of workers.
func (p *Pipeline) Run(ctx context.Context, iso3s []string, s *Session) error {
	results := make([]*CountryResult, len(iso3s))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Config.Workers))
	for i, iso3 := range iso3s {
		g.Go(func() error {
			r, err := p.Country(gctx, iso3)
			if err != nil {
				return fmt.Errorf("country %s: %w", iso3, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		s.Merge(r)
	}
	return nil
}

// countryRun is the working state of one country.
type countryRun struct {
	p       *Pipeline
	dataset *catalog.Dataset
	info    country.Country
	endYear int
	result  *CountryResult
}

func (cr *countryRun) report(level int, resource string, severity diag.Severity, format string, args ...any) {
	if cr.p.Sink == nil {
		return
	}
	cr.p.Sink.Add(diag.Diagnostic{
		Category:   Category,
		Key:        cr.result.Dataset,
		AdminLevel: level,
		Resource:   resource,
		Message:    fmt.Sprintf(format, args...),
		Severity:   severity,
	})
}

func (cr *countryRun) errorf(level int, resource, format string, args ...any) {
	cr.report(level, resource, diag.SeverityError, format, args...)
}

func (cr *countryRun) warnf(level int, resource, format string, args ...any) {
	cr.report(level, resource, diag.SeverityWarning, format, args...)
}

// Country ingests the dataset of one country, levels 0 to MaxLevel.
func (p *Pipeline) Country(ctx context.Context, iso3 string) (*CountryResult, error) {
	iso3 = strings.ToUpper(iso3)
	name := p.Config.prefix() + strings.ToLower(iso3)
	result := &CountryResult{
		ISO3:          iso3,
		Dataset:       name,
		Rows:          make(map[int][]PopulationRow),
		ResourceNames: make(map[string]string),
	}
	log := p.logger().With("iso3", iso3)

	ds, err := p.Catalog.Dataset(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, catalog.ErrNotFound) {
			log.Debug("no population dataset", "dataset", name)
		} else {
			log.Info("can't read dataset", "dataset", name, "error", err)
		}
		return result, nil
	}
	if ds.Archived || ds.CODLevel == "" {
		log.Info("skipping dataset", "dataset", name, "archived", ds.Archived, "cod_level", ds.CODLevel)
		return result, nil
	}

	log.Info("downloading population data", "dataset", name)
	result.Processed = true
	cr := &countryRun{
		p:       p,
		dataset: ds,
		endYear: ds.TimePeriod.EndYear(p.Config.now()),
		result:  result,
	}
	if p.Countries != nil {
		cr.info, _ = p.Countries.Lookup(iso3)
	}
	if cr.info.Name == "" {
		cr.info = country.Country{ISO3: iso3, Name: iso3}
	}

	for level := 0; level <= MaxLevel; level++ {
		if err := cr.level(ctx, level); err != nil {
			return nil, err
		}
	}

	if missing := UnexpectedMissingLevels(result.MissingLevels); len(missing) > 0 {
		msg := "missing unexpected admin levels: " + formatLevels(missing)
		if !p.known(name, msg) {
			cr.errorf(diag.NoLevel, "", "%s", msg)
		}
	}

	log.Info("country done", "rows", result.RowCount(), "missing_levels", result.MissingLevels)
	return result, nil
}

// known reports whether msg is listed as an accepted error, either bare or
// prefixed with the dataset name ("cod-ps-xyz: msg").
func (p *Pipeline) known(dataset, msg string) bool {
	return slices.Contains(p.Config.KnownErrors, msg) ||
		slices.Contains(p.Config.KnownErrors, dataset+": "+msg)
}

func (cr *countryRun) level(ctx context.Context, level int) error {
	candidates := LevelResources(cr.dataset.Resources, level)
	if len(candidates) == 0 {
		cr.result.MissingLevels = append(cr.result.MissingLevels, level)
		return nil
	}
	if len(candidates) > 1 {
		candidates = SelectLatest(candidates)
	}

	outcome := ResourceOutcome{
		ISO3:       cr.result.ISO3,
		Dataset:    cr.result.Dataset,
		AdminLevel: level,
	}
	if len(candidates) > 1 {
		cr.errorf(level, "", "more than one adm%d resource found", level)
		outcome.Status = StatusAmbiguous
		cr.result.Outcomes = append(cr.result.Outcomes, outcome)
		return nil
	}

	res := candidates[0]
	enc := cr.p.Config.encoding(res.Name)
	outcome.Resource, outcome.ResourceID, outcome.URL, outcome.Encoding = res.Name, res.ID, res.URL, enc
	defer func() { cr.result.Outcomes = append(cr.result.Outcomes, outcome) }()

	tbl, err := cr.p.Fetcher.Rows(ctx, res.URL, enc)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, tabular.ErrDownload) {
			cr.errorf(level, res.Name, "download failed for %s", res.Name)
			outcome.Status = StatusDownload
		} else {
			cr.errorf(level, res.Name, "could not parse %s: %v", res.Name, err)
			outcome.Status = StatusParse
		}
		return nil
	}

	rows, status := cr.normalize(level, res, enc, tbl)
	outcome.Status = status
	outcome.Rows = len(rows)
	cr.result.ResourceNames[fmt.Sprintf("%s_%d", cr.result.ISO3, level)] = res.Name
	if len(rows) > 0 {
		cr.result.Rows[level] = rows
	}
	return nil
}

// column is a decoded population column.
type column struct {
	index int
	demo  header.Demographic
}

// normalize turns the table of a level resource into population rows. Any
// level-scoped error yields no rows.
func (cr *countryRun) normalize(level int, res catalog.Resource, enc string, tbl *tabular.Table) ([]PopulationRow, string) {
	cfg := cr.p.Config
	cls := header.Classify(tbl.Headers, level, cfg.NonLatinScripts)
	cr.result.NonMatchingHeaders = mergeSet(cr.result.NonMatchingHeaders, cls.Unrecognized)

	var codeIdx, nameIdx [MaxLevel + 1]int
	for sub := 1; sub <= level; sub++ {
		codeIdx[sub] = cr.adminColumn(tbl, cls.Admin.Codes[sub], sub, level, res.Name, "code")
		nameIdx[sub] = cr.adminColumn(tbl, cls.Admin.Names[sub], sub, level, res.Name, "name")
	}

	var columns []column
	for i, h := range tbl.Headers {
		if !header.IsPopulationHeader(h) {
			continue
		}
		demo, err := header.DecodeDemographic(h)
		if err != nil {
			cr.errorf(level, res.Name, "adm%d has weird header %s", level, h)
			continue
		}
		columns = append(columns, column{index: i, demo: demo})
	}

	fold := normalize.ForEncoding(enc)
	year, yearSource := 0, ""
	if y, ok := cfg.ReferenceYearExceptions[res.Name]; ok {
		year, yearSource = y, YearFromException
	}

	var rows []PopulationRow
	seen := make(map[rowKey]bool)
	duplicates := 0
	nonLatin := false
	for _, rec := range tbl.Rows {
		if tabular.IsBlank(rec) || tabular.IsHashtagRow(rec) {
			continue
		}
		if yearSource == "" {
			year, yearSource = cr.referenceYear(tbl, rec, res.Name)
		}

		base := PopulationRow{
			ISO3:          cr.result.ISO3,
			Country:       cr.info.Name,
			HasHRP:        cr.info.HasHRP,
			InGHO:         cr.info.InGHO,
			AdminLevel:    level,
			ReferenceYear: year,
			Source:        cr.dataset.Source,
			Contributor:   cr.dataset.Organization,
			DatasetID:     cr.dataset.ID,
			ResourceID:    res.ID,
		}
		for sub := 1; sub <= level; sub++ {
			if i := codeIdx[sub]; i >= 0 {
				base.PCodes[sub-1] = strings.TrimSpace(rec[i])
			}
			if i := nameIdx[sub]; i >= 0 {
				base.Names[sub-1] = fold(strings.TrimSpace(rec[i]))
				if !nonLatin && !normalize.IsUTF8(enc) && normalize.HasNonLatin(base.Names[sub-1]) {
					nonLatin = true
					cr.warnf(level, res.Name, "adm%d has non-latin names kept as read from %s", level, enc)
				}
			}
		}

		for _, col := range columns {
			value, kind := parsePopulation(rec[col.index])
			switch kind {
			case cellEmpty:
				continue
			case cellInvalid:
				cr.errorf(level, res.Name, "adm%d has invalid population value %q in %s", level, rec[col.index], col.demo.Group)
				return nil, StatusInvalid
			case cellNA:
				cr.warnf(level, res.Name, "adm%d has NA population values", level)
				if cfg.NAPopulation == NASkip {
					continue
				}
			}

			row := base
			row.PopulationGroup = col.demo.Group
			row.Gender = col.demo.Gender
			row.AgeRange = col.demo.AgeRange
			row.MinAge = col.demo.MinAge
			row.MaxAge = col.demo.MaxAge
			row.Population = value

			k := row.key()
			if seen[k] {
				duplicates++
			}
			seen[k] = true
			rows = append(rows, row)
		}
	}

	if duplicates > 0 {
		cr.errorf(level, res.Name, "%d duplicate values found in adm%d", duplicates, level)
		return nil, StatusDuplicates
	}
	if len(rows) == 0 {
		return nil, StatusEmpty
	}
	cr.result.ReferenceYears = append(cr.result.ReferenceYears, year)
	cr.result.YearSources = mergeSet(cr.result.YearSources, []string{yearSource})
	return rows, StatusIngested
}

// adminColumn resolves the column index of a classified admin header, or -1
// after reporting why there is none.
func (cr *countryRun) adminColumn(tbl *tabular.Table, m header.Match, sub, level int, resource, kind string) int {
	switch m.Outcome() {
	case header.None:
		cr.errorf(level, resource, "adm%d %s header not found in adm%d", sub, kind, level)
		return -1
	case header.Many:
		cr.errorf(level, resource, "adm%d %s header ambiguous in adm%d: %s", sub, kind, level, strings.Join(m.Headers, ", "))
		return -1
	}
	return slices.Index(tbl.Headers, m.Header())
}

// referenceYear picks the year for a resource without a configured
// exception, from the first data row.
func (cr *countryRun) referenceYear(tbl *tabular.Table, rec []string, resource string) (int, string) {
	if i := tbl.Column("year"); i >= 0 {
		if y, err := strconv.Atoi(strings.TrimSpace(rec[i])); err == nil {
			return y, YearFromColumn
		}
	}
	if y, ok := header.ResourceYear(resource); ok {
		return y, YearFromName
	}
	return cr.endYear, YearFromDataset
}

type cellKind int

const (
	cellValue cellKind = iota
	cellEmpty
	cellNA
	cellInvalid
)

// parsePopulation coerces a population cell: thousands separators are
// stripped and decimals truncated.
func parsePopulation(cell string) (int64, cellKind) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, cellEmpty
	}
	if strings.EqualFold(s, "NA") {
		return 0, cellNA
	}
	s = strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v < 0 {
			return 0, cellInvalid
		}
		return v, cellValue
	}
	f, err := strconv.ParseFloat(s, 64)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0, cellInvalid
	}
	return int64(f), cellValue
}
