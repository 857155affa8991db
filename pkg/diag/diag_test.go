package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestCollector_Dedup(t *testing.T) {
	c := NewCollector(false)
	d := Diagnostic{Category: "Population", Key: "cod-ps-caf", AdminLevel: 2, Message: "adm2 has NA population values", Severity: SeverityWarning}
	c.Add(d)
	c.Add(d)
	d.AdminLevel = 3
	c.Add(d)

	if got := len(c.All()); got != 1 {
		t.Fatalf("All() = %d diagnostics, want 1", got)
	}
	if c.All()[0].AdminLevel != 2 {
		t.Errorf("first recorded diagnostic should win")
	}
}

func TestCollector_Sorted(t *testing.T) {
	c := NewCollector(false)
	c.Add(Diagnostic{Category: "Population", Key: "cod-ps-cod", Message: "b", Severity: SeverityError})
	c.Add(Diagnostic{Category: "Population", Key: "cod-ps-caf", Message: "z", Severity: SeverityWarning})
	c.Add(Diagnostic{Category: "Population", Key: "cod-ps-caf", Message: "a", Severity: SeverityError})
	c.Add(Diagnostic{Category: "Boundaries", Key: "global", Message: "x", Severity: SeverityError})

	var got []string
	for _, d := range c.All() {
		got = append(got, d.Key+"/"+d.Message)
	}
	want := "global/x cod-ps-caf/a cod-ps-caf/z cod-ps-cod/b"
	if strings.Join(got, " ") != want {
		t.Errorf("order = %v, want %s", got, want)
	}
	if c.Count(SeverityError) != 3 || c.Count(SeverityWarning) != 1 {
		t.Errorf("counts = %d errors, %d warnings", c.Count(SeverityError), c.Count(SeverityWarning))
	}
}

func TestCollector_Surface(t *testing.T) {
	c := NewCollector(true)
	c.Add(Diagnostic{Category: "Population", Key: "k", Message: "m", Severity: SeverityError})
	if !c.All()[0].Surface {
		t.Error("expected diagnostic to be flagged for surfacing")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(false)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(Diagnostic{Category: "Population", Key: "k", Message: "same", Severity: SeverityError})
		}()
	}
	wg.Wait()
	if got := len(c.All()); got != 1 {
		t.Errorf("All() = %d, want 1", got)
	}
}

func TestCollector_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c := NewCollector(false)
	c.Add(Diagnostic{Category: "Population", Key: "cod-ps-caf", AdminLevel: 1, Resource: "caf_adm1.csv", Message: "adm1 code header not found in adm1", Severity: SeverityError})
	c.Add(MissingValue("Population", "cod-ps-cod", "admin 1 pcode", "CD99"))
	c.Log(logger)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "adm1 code header not found", "resource=caf_adm1.csv", "level=WARN", "admin 1 pcode CD99 not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
