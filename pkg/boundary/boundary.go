// Package boundary holds administrative boundary reference data: the
// canonical p-code, name and parent of every admin unit.
package boundary

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hazyhaar/cod-population/pkg/country"
	"github.com/hazyhaar/cod-population/pkg/tabular"
	"github.com/jszwec/csvutil"
)

// Unit is one administrative unit of the global p-code list.
type Unit struct {
	Location string `csv:"Location" json:"location"`
	Level    int    `csv:"Admin Level" json:"admin_level"`
	PCode    string `csv:"P-Code" json:"pcode"`
	Name     string `csv:"Name" json:"name"`
	Parent   string `csv:"Parent P-Code" json:"parent,omitempty"`
}

// Opener returns the raw content of a source. tabular.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, src string) (io.ReadCloser, error)
}

// Reference indexes units by admin level and p-code. It is safe for
// concurrent reads once loaded.
type Reference struct {
	mu        sync.RWMutex
	levels    map[int]map[string]Unit
	countries *country.Table
}

// NewReference returns an empty reference. countries is used to translate
// between ISO2 and ISO3 p-code prefixes; it may be nil.
func NewReference(countries *country.Table) *Reference {
	return &Reference{
		levels:    make(map[int]map[string]Unit),
		countries: countries,
	}
}

// Fetch loads the global p-code list from src.
func (r *Reference) Fetch(ctx context.Context, o Opener, src string) error {
	rc, err := o.Open(ctx, src)
	if err != nil {
		return fmt.Errorf("open p-codes %s: %w", src, err)
	}
	defer rc.Close()
	return r.Load(rc)
}

// Load replaces the reference with units decoded from CSV. HXL hashtag
// rows are skipped.
func (r *Reference) Load(rd io.Reader) error {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	dec, err := csvutil.NewDecoder(hashtagSkipper{cr})
	if err != nil {
		return fmt.Errorf("read p-code header: %w", err)
	}

	var units []Unit
	if err := dec.Decode(&units); err != nil && err != io.EOF {
		return fmt.Errorf("decode p-codes: %w", err)
	}

	levels := make(map[int]map[string]Unit)
	for _, u := range units {
		u.PCode = canonical(u.PCode)
		u.Parent = canonical(u.Parent)
		u.Location = strings.ToUpper(strings.TrimSpace(u.Location))
		if u.PCode == "" {
			continue
		}
		if levels[u.Level] == nil {
			levels[u.Level] = make(map[string]Unit)
		}
		levels[u.Level][u.PCode] = u
	}

	r.mu.Lock()
	r.levels = levels
	r.mu.Unlock()
	return nil
}

// Resolve finds the unit for pcode at level. An exact match (ignoring case
// and surrounding space) wins; otherwise the country prefix is swapped
// between its ISO3 and ISO2 forms.
func (r *Reference) Resolve(level int, iso3, pcode string) (Unit, bool) {
	pcode = canonical(pcode)
	if pcode == "" {
		return Unit{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	units := r.levels[level]
	if u, ok := units[pcode]; ok {
		return u, true
	}
	for _, alt := range r.prefixSwaps(iso3, pcode) {
		if u, ok := units[alt]; ok {
			return u, true
		}
	}
	return Unit{}, false
}

func (r *Reference) prefixSwaps(iso3, pcode string) []string {
	if r.countries == nil {
		return nil
	}
	c, ok := r.countries.Lookup(iso3)
	if !ok || c.ISO2 == "" {
		return nil
	}
	switch {
	case strings.HasPrefix(pcode, c.ISO3):
		return []string{c.ISO2 + strings.TrimPrefix(pcode, c.ISO3)}
	case strings.HasPrefix(pcode, c.ISO2):
		return []string{c.ISO3 + strings.TrimPrefix(pcode, c.ISO2)}
	}
	return nil
}

// Parent returns the unit one level above u.
func (r *Reference) Parent(u Unit) (Unit, bool) {
	if u.Parent == "" || u.Level < 1 {
		return Unit{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.levels[u.Level-1][u.Parent]
	return p, ok
}

// Count returns the number of units at level.
func (r *Reference) Count(level int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.levels[level])
}

func canonical(pcode string) string {
	return strings.ToUpper(strings.TrimSpace(pcode))
}

// hashtagSkipper drops records whose first non-empty cell starts with '#'.
type hashtagSkipper struct {
	r *csv.Reader
}

func (h hashtagSkipper) Read() ([]string, error) {
	for {
		rec, err := h.r.Read()
		if err != nil {
			return nil, err
		}
		if !tabular.IsHashtagRow(rec) {
			return rec, nil
		}
	}
}
