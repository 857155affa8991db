package boundary

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/cod-population/pkg/country"
)

const globalPCodes = `Location,Admin Level,P-Code,Name,Parent P-Code,Valid from date
#country+code,#geo+admin_level,#adm+code,#adm+name,#adm+code+parent,#date+start
CAF,1,CF11,Ombella-Mpoko,CF,2017-08-09
CAF,2,CF111,Bimbo,CF11,2017-08-09
COD,1,CD10,Kinshasa,CD,2019-01-01
COD,2,CD1000,Kinshasa,CD10,2019-01-01
COD,1,CD20,Kongo-Central,CD,2019-01-01
`

func setupReference(t *testing.T) *Reference {
	t.Helper()
	countries, err := country.Default()
	if err != nil {
		t.Fatalf("country.Default: %v", err)
	}
	ref := NewReference(countries)
	if err := ref.Load(strings.NewReader(globalPCodes)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ref
}

func TestReferenceLoad(t *testing.T) {
	ref := setupReference(t)
	if ref.Count(1) != 3 || ref.Count(2) != 2 || ref.Count(3) != 0 {
		t.Errorf("counts = %d/%d/%d", ref.Count(1), ref.Count(2), ref.Count(3))
	}
}

func TestReferenceResolve(t *testing.T) {
	ref := setupReference(t)

	tests := []struct {
		level      int
		iso3, code string
		want       string
		ok         bool
	}{
		{1, "CAF", "CF11", "Ombella-Mpoko", true},
		{1, "CAF", " cf11 ", "Ombella-Mpoko", true},
		{2, "COD", "COD1000", "Kinshasa", true},
		{1, "COD", "CD99", "", false},
		{1, "COD", "", "", false},
		{2, "CAF", "CF11", "", false},
	}
	for _, tt := range tests {
		u, ok := ref.Resolve(tt.level, tt.iso3, tt.code)
		if ok != tt.ok || u.Name != tt.want {
			t.Errorf("Resolve(%d, %s, %q) = %q, %v; want %q, %v", tt.level, tt.iso3, tt.code, u.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestReferenceParent(t *testing.T) {
	ref := setupReference(t)
	bimbo, ok := ref.Resolve(2, "CAF", "CF111")
	if !ok {
		t.Fatal("CF111 not found")
	}
	p, ok := ref.Parent(bimbo)
	if !ok || p.PCode != "CF11" || p.Name != "Ombella-Mpoko" {
		t.Errorf("Parent = %+v, %v", p, ok)
	}

	adm1, _ := ref.Resolve(1, "CAF", "CF11")
	if _, ok := ref.Parent(adm1); ok {
		t.Error("level-1 units have no admin parent in the list")
	}
}

type fileOpener struct{}

func (fileOpener) Open(_ context.Context, src string) (io.ReadCloser, error) {
	return os.Open(src)
}

func TestReferenceFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global_pcodes.csv")
	if err := os.WriteFile(path, []byte(globalPCodes), 0o644); err != nil {
		t.Fatal(err)
	}
	ref := NewReference(nil)
	if err := ref.Fetch(context.Background(), fileOpener{}, path); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := ref.Resolve(2, "COD", "COD1000"); ok {
		t.Error("prefix swap needs a country table")
	}
	if _, ok := ref.Resolve(2, "COD", "CD1000"); !ok {
		t.Error("exact match failed")
	}
}
