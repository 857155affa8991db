// Package diag collects keyed warnings and errors raised while ingesting
// source files, for reporting once the run is over.
package diag

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// NoLevel marks a diagnostic that is not tied to an admin level.
const NoLevel = -1

// Diagnostic is one recorded problem. Key is usually the dataset name
// (cod-ps-caf); AdminLevel and Resource locate it inside that dataset.
type Diagnostic struct {
	Category   string   `json:"category"`
	Key        string   `json:"key"`
	AdminLevel int      `json:"admin_level"`
	Resource   string   `json:"resource,omitempty"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Surface    bool     `json:"surface,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s - %s: %s", d.Category, d.Key, d.Message)
}

// Sink accepts diagnostics.
type Sink interface {
	Add(d Diagnostic)
}

type entryKey struct {
	category, key, message string
	severity               Severity
}

// Collector is a Sink that keeps each distinct (category, key, message,
// severity) once. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	entries map[entryKey]Diagnostic
	surface bool
}

// NewCollector returns an empty collector. When surface is true every
// diagnostic is flagged for external surfacing.
func NewCollector(surface bool) *Collector {
	return &Collector{
		entries: make(map[entryKey]Diagnostic),
		surface: surface,
	}
}

// Add records d unless an identical message was already recorded.
func (c *Collector) Add(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface {
		d.Surface = true
	}
	k := entryKey{d.Category, d.Key, d.Message, d.Severity}
	if _, ok := c.entries[k]; ok {
		return
	}
	c.entries[k] = d
}

// All returns the recorded diagnostics sorted by category, key, severity and message.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, 0, len(c.entries))
	for _, d := range c.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		return a.Message < b.Message
	})
	return out
}

// Count returns how many diagnostics of severity were recorded.
func (c *Collector) Count(severity Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.severity == severity {
			n++
		}
	}
	return n
}

// Log writes the report, errors at Error level and warnings at Warn level.
func (c *Collector) Log(logger *slog.Logger) {
	for _, d := range c.All() {
		attrs := []any{"category", d.Category, "key", d.Key}
		if d.AdminLevel != NoLevel {
			attrs = append(attrs, "admin_level", d.AdminLevel)
		}
		if d.Resource != "" {
			attrs = append(attrs, "resource", d.Resource)
		}
		if d.Severity == SeverityError {
			logger.Error(d.Message, attrs...)
		} else {
			logger.Warn(d.Message, attrs...)
		}
	}
}

// MissingValue builds the warning used when a value cannot be resolved
// against reference data.
func MissingValue(category, key, valueType, value string) Diagnostic {
	return Diagnostic{
		Category:   category,
		Key:        key,
		AdminLevel: NoLevel,
		Message:    fmt.Sprintf("%s %s not found", valueType, value),
		Severity:   SeverityWarning,
	}
}
