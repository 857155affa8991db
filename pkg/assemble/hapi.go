package assemble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ingest"
)

func init() {
	Register(&hapiOutput{})
}

// HAPI table file names, split by whether the country has a humanitarian
// response plan.
const (
	HAPIFileHRP    = "hdx_hapi_population_global_hrp.csv"
	HAPIFileNonHRP = "hdx_hapi_population_global_non_hrp.csv"
)

// hapiMaxLevel is the deepest admin level published in the HAPI schema.
const hapiMaxLevel = 2

type hapiOutput struct{}

func (o *hapiOutput) ID() string { return "hapi" }
func (o *hapiOutput) Description() string {
	return "Baseline population in the HAPI schema, admin levels 0 to 2 with canonical p-codes"
}

// hapiRecord is a row of the HAPI tables.
type hapiRecord struct {
	LocationCode         string `csv:"location_code"`
	HasHRP               yesNo  `csv:"has_hrp"`
	InGHO                yesNo  `csv:"in_gho"`
	ProviderAdmin1Name   string `csv:"provider_admin1_name"`
	ProviderAdmin2Name   string `csv:"provider_admin2_name"`
	Admin1Code           string `csv:"admin1_code"`
	Admin1Name           string `csv:"admin1_name"`
	Admin2Code           string `csv:"admin2_code"`
	Admin2Name           string `csv:"admin2_name"`
	AdminLevel           int    `csv:"admin_level"`
	Gender               string `csv:"gender"`
	AgeRange             string `csv:"age_range"`
	MinAge               *int   `csv:"min_age"`
	MaxAge               *int   `csv:"max_age"`
	Population           int64  `csv:"population"`
	ReferencePeriodStart string `csv:"reference_period_start"`
	ReferencePeriodEnd   string `csv:"reference_period_end"`
	DatasetHDXID         string `csv:"dataset_hdx_id"`
	ResourceHDXID        string `csv:"resource_hdx_id"`
	Warning              string `csv:"warning"`
}

// toHAPI re-keys r and resolves its deepest p-code against the
// boundary reference. A missing or unknown p-code leaves the canonical
// columns empty and records a warning.
func (a *Assembler) toHAPI(r ingest.PopulationRow) hapiRecord {
	start, end := catalog.YearBounds(r.ReferenceYear)
	rec := hapiRecord{
		LocationCode:         r.ISO3,
		HasHRP:               yesNo(r.HasHRP),
		InGHO:                yesNo(r.InGHO),
		ProviderAdmin1Name:   r.Name(1),
		ProviderAdmin2Name:   r.Name(2),
		AdminLevel:           r.AdminLevel,
		Gender:               r.Gender,
		AgeRange:             r.AgeRange,
		MinAge:               r.MinAge,
		MaxAge:               r.MaxAge,
		Population:           r.Population,
		ReferencePeriodStart: start,
		ReferencePeriodEnd:   end,
		DatasetHDXID:         r.DatasetID,
		ResourceHDXID:        r.ResourceID,
	}
	level := r.AdminLevel
	if level < 1 {
		return rec
	}

	pcode := r.PCode(level)
	valueType := fmt.Sprintf("admin %d pcode", level)
	if pcode == "" {
		d := diag.MissingValue(ingest.Category, a.datasetKey(r.ISO3), valueType, r.Name(level))
		a.add(d)
		rec.Warning = d.Message
		return rec
	}
	u, ok := a.Boundaries.Resolve(level, r.ISO3, pcode)
	if !ok {
		d := diag.MissingValue(ingest.Category, a.datasetKey(r.ISO3), valueType, pcode)
		a.add(d)
		rec.Warning = d.Message
		return rec
	}

	switch level {
	case 1:
		rec.Admin1Code, rec.Admin1Name = u.PCode, u.Name
	case 2:
		rec.Admin2Code, rec.Admin2Name = u.PCode, u.Name
		if p, ok := a.Boundaries.Parent(u); ok {
			rec.Admin1Code, rec.Admin1Name = p.PCode, p.Name
		} else {
			rec.Admin1Code = u.Parent
		}
	}
	return rec
}

func (o *hapiOutput) Write(ctx context.Context, a *Assembler, s *ingest.Session, dir string) (*Manifest, error) {
	if a.Boundaries == nil {
		return nil, errors.New("boundary reference not loaded")
	}
	tags := a.Config.HAPIHXLTags
	if err := checkColumns[hapiRecord]("hapi_hxl_tags", tags); err != nil {
		return nil, err
	}
	m, err := baseManifest(a.Config.HAPIDataset, s)
	if err != nil {
		return nil, err
	}

	var hrp, nonHRP []hapiRecord
	for level := 0; level <= hapiMaxLevel; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range s.Rows[level] {
			rec := a.toHAPI(r)
			if r.HasHRP {
				hrp = append(hrp, rec)
			} else {
				nonHRP = append(nonHRP, rec)
			}
		}
	}

	ds := a.Config.HAPIDataset
	for _, part := range []struct {
		file, label string
		records     []hapiRecord
	}{
		{HAPIFileHRP, "HRP countries", hrp},
		{HAPIFileNonHRP, "non-HRP countries", nonHRP},
	} {
		if err := writeTable(filepath.Join(dir, part.file), tags, part.records); err != nil {
			return nil, err
		}
		name := part.file
		if ds.ResourceName != "" {
			name = fmt.Sprintf("%s (%s)", ds.ResourceName, part.label)
		}
		m.Resources = append(m.Resources, ManifestResource{
			Name:        name,
			Description: ds.ResourceDescription,
			File:        part.file,
			Rows:        len(part.records),
		})
	}
	return m, nil
}
