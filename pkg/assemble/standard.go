package assemble

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hazyhaar/cod-population/pkg/ingest"
)

func init() {
	Register(&standardOutput{})
}

type standardOutput struct{}

func (o *standardOutput) ID() string { return "standard" }
func (o *standardOutput) Description() string {
	return "Global subnational population statistics, one table per admin level"
}

// standardRecord is a row of cod_population_admin<N>.csv.
type standardRecord struct {
	ISO3            string `csv:"ISO3"`
	Country         string `csv:"Country"`
	HasHRP          yesNo  `csv:"has_hrp"`
	InGHO           yesNo  `csv:"in_gho"`
	AdminLevel      int    `csv:"admin_level"`
	ADM1PCode       string `csv:"ADM1_PCODE"`
	ADM1Name        string `csv:"ADM1_NAME"`
	ADM2PCode       string `csv:"ADM2_PCODE"`
	ADM2Name        string `csv:"ADM2_NAME"`
	ADM3PCode       string `csv:"ADM3_PCODE"`
	ADM3Name        string `csv:"ADM3_NAME"`
	ADM4PCode       string `csv:"ADM4_PCODE"`
	ADM4Name        string `csv:"ADM4_NAME"`
	PopulationGroup string `csv:"Population_group"`
	Gender          string `csv:"Gender"`
	AgeRange        string `csv:"Age_range"`
	AgeMin          *int   `csv:"Age_min"`
	AgeMax          *int   `csv:"Age_max"`
	Population      int64  `csv:"Population"`
	ReferenceYear   int    `csv:"Reference_year"`
	Source          string `csv:"Source"`
	Contributor     string `csv:"Contributor"`
	DatasetID       string `csv:"dataset_id"`
	ResourceID      string `csv:"resource_id"`
}

func newStandardRecord(r ingest.PopulationRow) standardRecord {
	return standardRecord{
		ISO3:            r.ISO3,
		Country:         r.Country,
		HasHRP:          yesNo(r.HasHRP),
		InGHO:           yesNo(r.InGHO),
		AdminLevel:      r.AdminLevel,
		ADM1PCode:       r.PCode(1),
		ADM1Name:        r.Name(1),
		ADM2PCode:       r.PCode(2),
		ADM2Name:        r.Name(2),
		ADM3PCode:       r.PCode(3),
		ADM3Name:        r.Name(3),
		ADM4PCode:       r.PCode(4),
		ADM4Name:        r.Name(4),
		PopulationGroup: r.PopulationGroup,
		Gender:          r.Gender,
		AgeRange:        r.AgeRange,
		AgeMin:          r.MinAge,
		AgeMax:          r.MaxAge,
		Population:      r.Population,
		ReferenceYear:   r.ReferenceYear,
		Source:          r.Source,
		Contributor:     r.Contributor,
		DatasetID:       r.DatasetID,
		ResourceID:      r.ResourceID,
	}
}

// StandardFile is the file name of the standard table for an admin level.
func StandardFile(level int) string {
	return fmt.Sprintf("cod_population_admin%d.csv", level)
}

func (o *standardOutput) Write(ctx context.Context, a *Assembler, s *ingest.Session, dir string) (*Manifest, error) {
	tags := a.Config.HXLTags
	if err := checkColumns[standardRecord]("hxl_tags", tags); err != nil {
		return nil, err
	}
	m, err := baseManifest(a.Config.Dataset, s)
	if err != nil {
		return nil, err
	}

	for _, level := range s.Levels() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := s.Rows[level]
		records := make([]standardRecord, len(rows))
		for i, r := range rows {
			records[i] = newStandardRecord(r)
		}
		name := StandardFile(level)
		if err := writeTable(filepath.Join(dir, name), tags, records); err != nil {
			return nil, err
		}
		m.Resources = append(m.Resources, ManifestResource{
			Name:        name,
			Description: " ",
			File:        name,
			Rows:        len(records),
		})
	}
	return m, nil
}
