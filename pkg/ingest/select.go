package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/header"
)

var levelResourcePatterns [MaxLevel + 1]*regexp.Regexp

func init() {
	for l := range levelResourcePatterns {
		levelResourcePatterns[l] = regexp.MustCompile(fmt.Sprintf(`(?i)adm(in)?%d`, l))
	}
}

// LevelResources returns the CSV resources whose name mentions admin level
// (adm1, admin1, ADM1...).
func LevelResources(resources []catalog.Resource, level int) []catalog.Resource {
	if level < 0 || level > MaxLevel {
		return nil
	}
	var out []catalog.Resource
	for _, r := range resources {
		if r.IsCSV() && levelResourcePatterns[level].MatchString(r.Name) {
			out = append(out, r)
		}
	}
	return out
}

// SelectLatest narrows resources of the same admin level to the most recent
// one by the year token in their names. When any name carries zero or
// several year tokens the input is returned unchanged. Names sharing the
// latest year are all kept, which leaves the caller with an ambiguity.
func SelectLatest(resources []catalog.Resource) []catalog.Resource {
	if len(resources) < 2 {
		return resources
	}
	years := make([]int, len(resources))
	for i, r := range resources {
		ys := header.ResourceYears(r.Name)
		if len(ys) != 1 {
			return resources
		}
		years[i] = ys[0]
	}

	latest := years[0]
	for _, y := range years[1:] {
		latest = max(latest, y)
	}
	var out []catalog.Resource
	for i, r := range resources {
		if years[i] == latest {
			out = append(out, r)
		}
	}
	return out
}

// UnexpectedMissingLevels returns missing (ascending admin levels without a
// resource) unless it is a suffix of 0..MaxLevel, in which case it returns nil.
func UnexpectedMissingLevels(missing []int) []int {
	start := MaxLevel + 1 - len(missing)
	for i, l := range missing {
		if l != start+i {
			return missing
		}
	}
	return nil
}

func formatLevels(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprint(l)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
