// Package country holds the reference table of countries covered by the
// consolidation: ISO codes, display names and humanitarian plan status.
package country

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
)

//go:embed countries.csv
var defaultCSV []byte

// Country is one row of the reference table.
type Country struct {
	ISO3   string `csv:"iso3"`
	ISO2   string `csv:"iso2"`
	Name   string `csv:"name"`
	HasHRP bool   `csv:"has_hrp"`
	InGHO  bool   `csv:"in_gho"`
}

// Table indexes countries by ISO3 and ISO2 code.
type Table struct {
	countries []Country
	byISO3    map[string]int
	byISO2    map[string]int
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	return Load(bytes.NewReader(defaultCSV))
}

// Load decodes a table from CSV with iso3, iso2, name, has_hrp and in_gho columns.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read countries: %w", err)
	}
	var rows []Country
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}

	t := &Table{
		byISO3: make(map[string]int, len(rows)),
		byISO2: make(map[string]int, len(rows)),
	}
	for _, c := range rows {
		c.ISO3 = strings.ToUpper(strings.TrimSpace(c.ISO3))
		c.ISO2 = strings.ToUpper(strings.TrimSpace(c.ISO2))
		if c.ISO3 == "" {
			continue
		}
		if _, dup := t.byISO3[c.ISO3]; dup {
			return nil, fmt.Errorf("duplicate country %s", c.ISO3)
		}
		t.byISO3[c.ISO3] = len(t.countries)
		if c.ISO2 != "" {
			t.byISO2[c.ISO2] = len(t.countries)
		}
		t.countries = append(t.countries, c)
	}
	return t, nil
}

// Lookup returns the country with the given ISO3 code.
func (t *Table) Lookup(iso3 string) (Country, bool) {
	i, ok := t.byISO3[strings.ToUpper(iso3)]
	if !ok {
		return Country{}, false
	}
	return t.countries[i], true
}

// ByISO2 returns the country with the given ISO2 code.
func (t *Table) ByISO2(iso2 string) (Country, bool) {
	i, ok := t.byISO2[strings.ToUpper(iso2)]
	if !ok {
		return Country{}, false
	}
	return t.countries[i], true
}

// Name returns the display name for iso3, or iso3 itself when unknown.
func (t *Table) Name(iso3 string) string {
	if c, ok := t.Lookup(iso3); ok {
		return c.Name
	}
	return iso3
}

// ISO3s returns every ISO3 code in table order.
func (t *Table) ISO3s() []string {
	out := make([]string, len(t.countries))
	for i, c := range t.countries {
		out[i] = c.ISO3
	}
	return out
}

// Len returns the number of countries.
func (t *Table) Len() int { return len(t.countries) }
